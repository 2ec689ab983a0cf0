package probe

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/vburojevic/mprobe/internal/adb"
	"github.com/vburojevic/mprobe/internal/domain"
)

// Tunnel is a local TCP port forwarded to the device's abstract socket.
type Tunnel struct {
	Serial     string
	LocalPort  int
	SocketName string
	Confirmed  bool // the forward command succeeded

	once sync.Once
	err  error
}

// TunnelManager creates and removes forwards.
type TunnelManager struct {
	tool DeviceTool
	log  *zap.Logger
}

// NewTunnelManager creates a tunnel manager
func NewTunnelManager(tool DeviceTool, log *zap.Logger) *TunnelManager {
	return &TunnelManager{tool: tool, log: log}
}

// Establish forwards the session's video port. It returns a tunnel even when
// forwarding fails so the caller can always hand it to Teardown: a forward
// that reported failure may still exist.
func (m *TunnelManager) Establish(ctx context.Context, sess *domain.Session) (*Tunnel, error) {
	t := &Tunnel{Serial: sess.DeviceID, LocalPort: sess.VideoPort, SocketName: sess.SocketName()}
	op := adb.Describe(adb.ForwardArgs(t.Serial, t.LocalPort, t.SocketName)...)
	if err := m.tool.Forward(ctx, t.Serial, t.LocalPort, t.SocketName); err != nil {
		return t, domain.NewError(domain.KindForwardFailed, op, err)
	}
	t.Confirmed = true
	m.log.Debug("forward established", zap.String("command", op))
	return t, nil
}

// Teardown removes the forward. It runs the removal at most once per tunnel
// and tolerates a nil tunnel. Failures are logged and returned but never
// change the run's outcome.
func (m *TunnelManager) Teardown(ctx context.Context, t *Tunnel) error {
	if t == nil {
		return nil
	}
	t.once.Do(func() {
		op := adb.Describe(adb.RemoveForwardArgs(t.Serial, t.LocalPort)...)
		if err := m.tool.RemoveForward(ctx, t.Serial, t.LocalPort); err != nil {
			t.err = err
			m.log.Warn("forward removal failed", zap.String("command", op), zap.Error(err))
			return
		}
		m.log.Debug("forward removed", zap.String("command", op))
	})
	return t.err
}
