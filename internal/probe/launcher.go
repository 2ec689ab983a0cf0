package probe

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/vburojevic/mprobe/internal/adb"
	"github.com/vburojevic/mprobe/internal/domain"
	"github.com/vburojevic/mprobe/internal/filter"
)

// ServerLauncher starts the server on the device and collects what it wrote.
type ServerLauncher struct {
	tool  DeviceTool
	log   *zap.Logger
	drain time.Duration
}

// NewServerLauncher creates a launcher. drain bounds how long Terminate
// waits for the server's output once it has been stopped.
func NewServerLauncher(tool DeviceTool, log *zap.Logger, drain time.Duration) *ServerLauncher {
	return &ServerLauncher{tool: tool, log: log, drain: drain}
}

// KillStale stops servers left over from earlier runs. Errors are ignored:
// pkill exits non-zero when nothing matched.
func (l *ServerLauncher) KillStale(ctx context.Context, sess *domain.Session, spec ServerSpec) string {
	cmd := spec.KillCommand()
	if _, err := l.tool.Shell(ctx, sess.DeviceID, cmd); err != nil {
		l.log.Debug("stale server cleanup", zap.String("command", cmd), zap.Error(err))
	}
	return cmd
}

// Launch spawns the server without waiting for it. Launch does not wait for
// readiness; the handshake reader's connect delay covers startup.
func (l *ServerLauncher) Launch(_ context.Context, sess *domain.Session, spec ServerSpec) (ServerProcess, error) {
	cmd := spec.Command()
	p, err := l.tool.StartShell(sess.DeviceID, cmd, l.drain)
	if err != nil {
		return nil, domain.NewError(domain.KindLaunchFailed, adb.Describe(adb.ShellArgs(sess.DeviceID, cmd)...), err)
	}
	l.log.Info("server launched", zap.String("command", cmd), zap.Int("pid", p.PID()))
	return p, nil
}

// Terminate stops the server if it is still running and returns its drained
// output with repeated lines collapsed.
func (l *ServerLauncher) Terminate(p ServerProcess) domain.ServerOutput {
	if p == nil {
		return domain.ServerOutput{}
	}
	out := p.Terminate(l.drain)
	if out.Err != nil {
		l.log.Warn("server wait failed", zap.Error(out.Err))
	}
	so := domain.ServerOutput{
		Stdout:   filter.CollapseLines(out.Stdout),
		Stderr:   filter.CollapseLines(out.Stderr),
		ExitCode: out.ExitCode,
		Signaled: out.Signaled,
	}
	l.log.Debug("server output",
		zap.String("stdout", so.Stdout),
		zap.String("stderr", so.Stderr),
		zap.Int("exit_code", so.ExitCode),
		zap.Bool("signaled", so.Signaled))
	return so
}
