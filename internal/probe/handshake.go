package probe

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/vburojevic/mprobe/internal/domain"
)

// ReaderConfig holds the handshake reader's timing policy.
type ReaderConfig struct {
	Host         string
	ConnectDelay time.Duration // wait before connecting, lets the server start
	DialTimeout  time.Duration
	ReadBudget   time.Duration // overall wall-clock bound on the read loop
	ReadTimeout  time.Duration // idle bound on one read once data has arrived
	ChunkSize    int
	HexDumpLimit int // bytes rendered in the hex dump
}

// DefaultReaderConfig returns the reader defaults.
func DefaultReaderConfig() ReaderConfig {
	return ReaderConfig{
		Host:         "127.0.0.1",
		ConnectDelay: 2 * time.Second,
		DialTimeout:  5 * time.Second,
		ReadBudget:   8 * time.Second,
		ReadTimeout:  5 * time.Second,
		ChunkSize:    1024,
		HexDumpLimit: 256,
	}
}

// HandshakeReader connects to the forwarded port and captures the first
// bytes the server sends.
type HandshakeReader struct {
	cfg   ReaderConfig
	clock clock.Clock
	log   *zap.Logger
}

// NewHandshakeReader creates a reader. The clock only drives the connect
// delay; socket deadlines use wall time.
func NewHandshakeReader(cfg ReaderConfig, clk clock.Clock, log *zap.Logger) *HandshakeReader {
	def := DefaultReaderConfig()
	if cfg.Host == "" {
		cfg.Host = def.Host
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = def.ChunkSize
	}
	if cfg.HexDumpLimit <= 0 {
		cfg.HexDumpLimit = def.HexDumpLimit
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = def.DialTimeout
	}
	if cfg.ReadBudget <= 0 {
		cfg.ReadBudget = def.ReadBudget
	}
	if clk == nil {
		clk = clock.New()
	}
	return &HandshakeReader{cfg: cfg, clock: clk, log: log}
}

// Read performs one connect-and-read cycle against the session's port.
// Every failure is recorded on the result; Read never retries.
func (r *HandshakeReader) Read(ctx context.Context, sess *domain.Session) *domain.HandshakeResult {
	res := &domain.HandshakeResult{}
	r.enter(res, domain.StateDisconnected)

	if r.cfg.ConnectDelay > 0 {
		select {
		case <-r.clock.After(r.cfg.ConnectDelay):
		case <-ctx.Done():
		}
	}

	r.enter(res, domain.StateConnecting)
	addr := net.JoinHostPort(r.cfg.Host, strconv.Itoa(sess.VideoPort))
	if err := ctx.Err(); err != nil {
		res.Err = domain.NewError(domain.KindConnectFailed, "connect "+addr, err)
		return r.finish(res, nil)
	}
	dialer := net.Dialer{Timeout: r.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		res.Err = domain.NewError(domain.KindConnectFailed, "connect "+addr, err)
		return r.finish(res, nil)
	}
	defer conn.Close()
	r.enter(res, domain.StateConnected)

	// cancellation unblocks a pending read
	stop := context.AfterFunc(ctx, func() { _ = conn.SetReadDeadline(time.Unix(1, 0)) })
	defer stop()

	r.enter(res, domain.StateReading)
	capture := r.readLoop(ctx, conn, res)
	return r.finish(res, capture)
}

func (r *HandshakeReader) readLoop(ctx context.Context, conn net.Conn, res *domain.HandshakeResult) []byte {
	start := time.Now()
	budgetEnd := start.Add(r.cfg.ReadBudget)
	defer func() { res.Elapsed = time.Since(start) }()

	var capture []byte
	buf := make([]byte, r.cfg.ChunkSize)
	for {
		// The idle bound only applies once the server has started talking;
		// a silent server is bounded by the budget alone.
		deadline := budgetEnd
		if len(capture) > 0 && r.cfg.ReadTimeout > 0 {
			if idle := time.Now().Add(r.cfg.ReadTimeout); idle.Before(deadline) {
				deadline = idle
			}
		}
		_ = conn.SetReadDeadline(deadline)
		if ctx.Err() != nil {
			// cancelled before or while the deadline was set
			_ = conn.SetReadDeadline(time.Unix(1, 0))
		}

		n, err := conn.Read(buf)
		if n > 0 {
			capture = append(capture, buf[:n]...)
			res.Reads++
			r.log.Debug("handshake bytes", zap.Int("n", n), zap.Int("total", len(capture)))
		}
		if err == nil {
			continue
		}

		switch {
		case errors.Is(err, io.EOF):
			res.Exit = domain.ExitRemoteClosed
			res.Err = domain.Errorf(domain.KindRemoteClosed, "read", "peer closed after %d bytes", len(capture))
			r.enter(res, domain.StateRemoteClosed)
		case ctx.Err() != nil:
			res.Exit = domain.ExitCancelled
			res.Err = domain.NewError(domain.KindTimedOut, "read cancelled", ctx.Err())
			r.enter(res, domain.StateTimedOut)
		case errors.Is(err, os.ErrDeadlineExceeded):
			if time.Now().Before(budgetEnd) {
				res.Exit = domain.ExitIdle
			} else {
				res.Exit = domain.ExitBudget
				res.Err = domain.Errorf(domain.KindTimedOut, "read", "budget of %s elapsed after %d bytes", r.cfg.ReadBudget, len(capture))
			}
			r.enter(res, domain.StateTimedOut)
		default:
			res.Exit = domain.ExitReadError
			res.Err = domain.NewError(domain.KindRemoteClosed, "read", err)
			r.enter(res, domain.StateRemoteClosed)
		}
		return capture
	}
}

func (r *HandshakeReader) finish(res *domain.HandshakeResult, capture []byte) *domain.HandshakeResult {
	res.Capture = capture
	res.HexDump = hexDump(capture, r.cfg.HexDumpLimit)
	res.Frame = domain.DecodeHandshake(capture)
	if derr := res.Frame.DecodeErr(); derr != nil {
		res.Err = errors.Join(res.Err, derr)
	}
	if res.Err != nil {
		res.ErrorMsg = res.Err.Error()
	}
	r.enter(res, domain.StateDecoded)
	r.log.Info("handshake read",
		zap.Int("bytes", len(capture)),
		zap.String("exit", string(res.Exit)),
		zap.String("name_state", string(res.Frame.NameState)),
		zap.String("device_name", res.Frame.Name),
		zap.Duration("elapsed", res.Elapsed),
		zap.String("hex", res.HexDump))
	return res
}

func (r *HandshakeReader) enter(res *domain.HandshakeResult, s domain.ReaderState) {
	if n := len(res.States); n > 0 && !domain.CanTransition(res.States[n-1], s) {
		r.log.Error("invalid reader transition", zap.String("from", string(res.States[n-1])), zap.String("to", string(s)))
	}
	res.States = append(res.States, s)
	r.log.Debug("reader state", zap.String("state", string(s)))
}

func hexDump(b []byte, limit int) string {
	if len(b) <= limit {
		return hex.EncodeToString(b)
	}
	return fmt.Sprintf("%s... (+%d bytes)", hex.EncodeToString(b[:limit]), len(b)-limit)
}
