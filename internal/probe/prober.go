package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/vburojevic/mprobe/internal/adb"
	"github.com/vburojevic/mprobe/internal/domain"
)

// Observer receives stage events as the run progresses.
type Observer func(*domain.StageEvent)

// Options are the per-run inputs.
type Options struct {
	Serial         string // empty = first ready device
	Spec           ServerSpec
	LocalArtifact  string
	KillStale      bool
	CleanupTimeout time.Duration // bound on teardown commands, independent of the run context
}

// Prober runs the diagnostic sequence.
type Prober struct {
	locator  *DeviceLocator
	verifier *ArtifactVerifier
	tunnels  *TunnelManager
	launcher *ServerLauncher
	reader   *HandshakeReader
	log      *zap.Logger
	clock    clock.Clock
	observe  Observer
}

// Option configures a Prober.
type Option func(*Prober)

// WithObserver sets the stage event callback.
func WithObserver(fn Observer) Option {
	return func(p *Prober) { p.observe = fn }
}

// WithClock replaces the wall clock used for timestamps and the connect delay.
func WithClock(clk clock.Clock) Option {
	return func(p *Prober) { p.clock = clk }
}

// New wires a Prober over tool.
func New(tool DeviceTool, log *zap.Logger, rc ReaderConfig, drain time.Duration, opts ...Option) *Prober {
	if log == nil {
		log = zap.NewNop()
	}
	p := &Prober{
		log:     log,
		clock:   clock.New(),
		observe: func(*domain.StageEvent) {},
	}
	for _, opt := range opts {
		opt(p)
	}
	p.locator = NewDeviceLocator(tool, log.Named("locate"))
	p.verifier = NewArtifactVerifier(tool, log.Named("verify"))
	p.tunnels = NewTunnelManager(tool, log.Named("tunnel"))
	p.launcher = NewServerLauncher(tool, log.Named("server"), drain)
	p.reader = NewHandshakeReader(rc, p.clock, log.Named("handshake"))
	return p
}

// Run executes one probe. Forward removal and server termination are
// attempted on every path that reached them, including failures. The
// returned error is non-nil only for failures that stop the sequence
// (DEVICE_NOT_FOUND, FORWARD_FAILED, LAUNCH_FAILED); handshake outcomes are
// carried by the report's verdict.
func (p *Prober) Run(ctx context.Context, sess *domain.Session, o Options) (report *domain.Report, err error) {
	report = domain.NewReport(sess, p.clock.Now())
	log := p.log.With(zap.String("run_id", sess.RunID), zap.String("scid", sess.SessionID))
	defer func() {
		report.FinishedAt = p.clock.Now()
		if err != nil {
			report.Verdict = domain.VerdictFailed
			report.Code = domain.KindOf(err)
			report.Error = err.Error()
		}
		log.Info("probe finished",
			zap.String("verdict", string(report.Verdict)),
			zap.String("code", string(report.Code)),
			zap.Duration("duration", report.FinishedAt.Sub(report.StartedAt)))
	}()

	// locate
	p.emit(sess, domain.StageLocate, domain.StatusRunning, adb.Describe(adb.DevicesArgs()...), "", nil)
	dev, err := p.locator.Locate(ctx, o.Serial)
	if err != nil {
		p.emit(sess, domain.StageLocate, domain.StatusFailed, "", "", err)
		return report, err
	}
	sess.DeviceID = dev.Serial
	report.Device = dev.Serial
	log = log.With(zap.String("device", dev.Serial))
	p.emit(sess, domain.StageLocate, domain.StatusOK, "", describeDevice(dev), nil)

	// verify
	p.emit(sess, domain.StageVerify, domain.StatusRunning, o.Spec.VersionCommand(), "", nil)
	vr := p.verifier.Verify(ctx, sess, o.Spec, o.LocalArtifact)
	report.Version = vr
	switch {
	case vr.Err != nil:
		p.emit(sess, domain.StageVerify, domain.StatusFailed, "", vr.ErrDescription, vr.Err)
	case !vr.Matches:
		p.emit(sess, domain.StageVerify, domain.StatusPartial, "", fmt.Sprintf("observed %q, expected %q", vr.Observed, vr.Expected), nil)
	default:
		p.emit(sess, domain.StageVerify, domain.StatusOK, "", vr.Observed, nil)
	}

	// kill stale
	if o.KillStale {
		cmd := p.launcher.KillStale(ctx, sess, o.Spec)
		p.emit(sess, domain.StageCleanup, domain.StatusOK, cmd, "", nil)
	} else {
		p.emit(sess, domain.StageCleanup, domain.StatusSkipped, "", "", nil)
	}

	// forward
	fwd := adb.Describe(adb.ForwardArgs(sess.DeviceID, sess.VideoPort, sess.SocketName())...)
	p.emit(sess, domain.StageForward, domain.StatusRunning, fwd, "", nil)
	tunnel, err := p.tunnels.Establish(ctx, sess)
	defer func() {
		cctx, cancel := p.cleanupContext(ctx, o)
		defer cancel()
		cmd := adb.Describe(adb.RemoveForwardArgs(sess.DeviceID, sess.VideoPort)...)
		if terr := p.tunnels.Teardown(cctx, tunnel); terr != nil {
			p.emit(sess, domain.StageTeardown, domain.StatusFailed, cmd, terr.Error(), nil)
			return
		}
		p.emit(sess, domain.StageTeardown, domain.StatusOK, cmd, "", nil)
	}()
	if err != nil {
		p.emit(sess, domain.StageForward, domain.StatusFailed, "", "", err)
		return report, err
	}
	p.emit(sess, domain.StageForward, domain.StatusOK, "", fmt.Sprintf("tcp:%d -> %s", sess.VideoPort, sess.SocketName()), nil)

	// launch
	p.emit(sess, domain.StageLaunch, domain.StatusRunning, o.Spec.Command(), "", nil)
	proc, err := p.launcher.Launch(ctx, sess, o.Spec)
	if err != nil {
		p.emit(sess, domain.StageLaunch, domain.StatusFailed, "", "", err)
		return report, err
	}
	var aliveAfterHandshake bool
	defer func() {
		out := p.launcher.Terminate(proc)
		out.AliveAfterHandshake = aliveAfterHandshake
		report.Server = &out
		p.emit(sess, domain.StageTerminate, domain.StatusOK, "", fmt.Sprintf("exit %d", out.ExitCode), nil)
	}()
	p.emit(sess, domain.StageLaunch, domain.StatusOK, "", fmt.Sprintf("pid %d", proc.PID()), nil)

	// handshake
	p.emit(sess, domain.StageHandshake, domain.StatusRunning, "", fmt.Sprintf("127.0.0.1:%d", sess.VideoPort), nil)
	hs := p.reader.Read(ctx, sess)
	report.Handshake = hs
	aliveAfterHandshake = proc.Alive()
	if !aliveAfterHandshake {
		log.Warn("server exited before the handshake finished", zap.Int("pid", proc.PID()))
	}
	report.Verdict = verdictFor(hs)
	if report.Verdict != domain.VerdictOK && hs.Err != nil {
		report.Code = domain.KindOf(hs.Err)
		report.Error = hs.ErrorMsg
	}
	ev := domain.NewStageEvent(sess.RunID, domain.StageHandshake, stageStatus(report.Verdict))
	ev.Detail = handshakeDetail(hs)
	if !aliveAfterHandshake {
		ev.Detail += "; server exited"
	}
	ev.Bytes = hs.Frame.Length
	if report.Verdict != domain.VerdictOK {
		ev.Code = report.Code
	}
	p.publish(sess, ev)
	return report, nil
}

func (p *Prober) cleanupContext(ctx context.Context, o Options) (context.Context, context.CancelFunc) {
	base := context.WithoutCancel(ctx)
	if o.CleanupTimeout <= 0 {
		return context.WithCancel(base)
	}
	return context.WithTimeout(base, o.CleanupTimeout)
}

func (p *Prober) emit(sess *domain.Session, stage string, status domain.Status, command, detail string, err error) {
	ev := domain.NewStageEvent(sess.RunID, stage, status)
	ev.Command = command
	ev.Detail = detail
	p.publish(sess, ev.WithErr(err))
}

func (p *Prober) publish(sess *domain.Session, ev *domain.StageEvent) {
	fields := []zap.Field{
		zap.String("run_id", ev.RunID),
		zap.String("stage", ev.Stage),
		zap.String("status", string(ev.Status)),
	}
	if sess.HasDevice() {
		fields = append(fields, zap.String("device", sess.DeviceID))
	}
	if ev.Command != "" {
		fields = append(fields, zap.String("command", ev.Command))
	}
	if ev.Detail != "" {
		fields = append(fields, zap.String("detail", ev.Detail))
	}
	if ev.Code != "" {
		fields = append(fields, zap.String("code", string(ev.Code)))
	}
	if ev.Status == domain.StatusFailed {
		p.log.Warn("stage", fields...)
	} else {
		p.log.Info("stage", fields...)
	}
	p.observe(ev)
}

func verdictFor(hs *domain.HandshakeResult) domain.Verdict {
	switch {
	case hs.Frame.Complete():
		return domain.VerdictOK
	case hs.Frame.Length > 0:
		return domain.VerdictPartial
	default:
		return domain.VerdictFailed
	}
}

func stageStatus(v domain.Verdict) domain.Status {
	switch v {
	case domain.VerdictOK:
		return domain.StatusOK
	case domain.VerdictPartial:
		return domain.StatusPartial
	default:
		return domain.StatusFailed
	}
}

func handshakeDetail(hs *domain.HandshakeResult) string {
	switch hs.Frame.NameState {
	case domain.NameComplete, domain.NamePartial:
		return fmt.Sprintf("%s name %q after %d bytes (%s)", hs.Frame.NameState, hs.Frame.Name, hs.Frame.Length, hs.Final())
	case domain.NameUndecodable:
		return fmt.Sprintf("undecodable name after %d bytes (%s)", hs.Frame.Length, hs.Final())
	default:
		return fmt.Sprintf("%d bytes (%s)", hs.Frame.Length, hs.Final())
	}
}

func describeDevice(d adb.Device) string {
	if d.Model != "" {
		return fmt.Sprintf("%s (%s)", d.Serial, d.Model)
	}
	return d.Serial
}
