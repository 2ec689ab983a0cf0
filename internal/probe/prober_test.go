package probe

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vburojevic/mprobe/internal/adb"
	"github.com/vburojevic/mprobe/internal/domain"
)

type eventLog struct {
	mu     sync.Mutex
	events []*domain.StageEvent
}

func (l *eventLog) observe(ev *domain.StageEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

// finished returns "stage:status" for every non-running event.
func (l *eventLog) finished() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, ev := range l.events {
		if ev.Status != domain.StatusRunning {
			out = append(out, ev.Stage+":"+string(ev.Status))
		}
	}
	return out
}

type harness struct {
	tool   *fakeTool
	events *eventLog
	logs   *observer.ObservedLogs
	prober *Prober
}

func newHarness(t *testing.T, tool *fakeTool) *harness {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	events := &eventLog{}
	rc := ReaderConfig{ReadBudget: time.Second, ReadTimeout: 300 * time.Millisecond}
	return &harness{
		tool:   tool,
		events: events,
		logs:   logs,
		prober: New(tool, zap.New(core), rc, 0, WithObserver(events.observe)),
	}
}

func runOptions() Options {
	return Options{Spec: testSpec(), KillStale: true, CleanupTimeout: time.Second}
}

func TestProber_HappyPath(t *testing.T) {
	port := serveOnce(t, func(c net.Conn) {
		defer c.Close()
		c.Write(pixelFrame())
	})
	h := newHarness(t, &fakeTool{devices: []adb.Device{readyDevice()}, versionOutputs: []*string{str("2.7")}})
	sess := domain.NewSession("12345678", port)

	report, err := h.prober.Run(context.Background(), sess, runOptions())
	require.NoError(t, err)

	assert.Equal(t, domain.VerdictOK, report.Verdict)
	assert.Empty(t, report.Code)
	assert.Equal(t, "0A121FDD4003BZ", report.Device)
	assert.Equal(t, "mirror_12345678", report.SocketName)
	assert.Equal(t, "Pixel 7", report.Handshake.Frame.Name)
	require.NotNil(t, report.Server)
	assert.Contains(t, report.Server.Stdout, "[server]")
	assert.True(t, report.Server.AliveAfterHandshake)
	assert.False(t, report.FinishedAt.Before(report.StartedAt))

	assert.Equal(t, []string{"devices", "version", "kill", "forward", "start", "remove"}, h.tool.Calls())
	assert.Equal(t, 1, h.tool.proc.terminates)
	assert.Equal(t, []string{
		"locate:ok", "verify:ok", "kill_stale:ok", "forward:ok", "launch:ok",
		"handshake:ok", "terminate:ok", "teardown:ok",
	}, h.events.finished())

	finished := h.logs.FilterMessage("probe finished").All()
	require.Len(t, finished, 1)
	assert.Equal(t, "ok", finished[0].ContextMap()["verdict"])
	assert.Equal(t, sess.RunID, finished[0].ContextMap()["run_id"])
	assert.Equal(t, "0A121FDD4003BZ", finished[0].ContextMap()["device"])

	for _, e := range h.logs.FilterMessage("stage").FilterField(zap.String("stage", domain.StageHandshake)).All() {
		assert.Equal(t, "0A121FDD4003BZ", e.ContextMap()["device"])
	}
}

func TestProber_ServerExitedBeforeHandshake(t *testing.T) {
	port := serveOnce(t, func(c net.Conn) { c.Close() })
	h := newHarness(t, &fakeTool{devices: []adb.Device{readyDevice()}, versionOutputs: []*string{str("2.7")}, serverExits: true})

	report, err := h.prober.Run(context.Background(), domain.NewSession("12345678", port), runOptions())
	require.NoError(t, err)

	assert.Equal(t, domain.VerdictFailed, report.Verdict)
	assert.Equal(t, domain.KindRemoteClosed, report.Code)
	require.NotNil(t, report.Server)
	assert.False(t, report.Server.AliveAfterHandshake)
	assert.Equal(t, 1, h.tool.removeCalls)

	var detail string
	for _, ev := range h.events.events {
		if ev.Stage == domain.StageHandshake && ev.Status != domain.StatusRunning {
			detail = ev.Detail
		}
	}
	assert.Contains(t, detail, "server exited")
	assert.Equal(t, 1, h.logs.FilterMessage("server exited before the handshake finished").Len())
}

func TestProber_NoDevice(t *testing.T) {
	h := newHarness(t, &fakeTool{})
	report, err := h.prober.Run(context.Background(), domain.NewSession("1", 27183), runOptions())

	assert.ErrorIs(t, err, domain.ErrDeviceNotFound)
	assert.Equal(t, domain.VerdictFailed, report.Verdict)
	assert.Equal(t, domain.KindDeviceNotFound, report.Code)
	assert.Equal(t, []string{"devices"}, h.tool.Calls(), "nothing runs after locate fails")
	assert.Equal(t, []string{"locate:failed"}, h.events.finished())
}

func TestProber_VerificationFailureDoesNotStopRun(t *testing.T) {
	port := serveOnce(t, func(c net.Conn) {
		defer c.Close()
		c.Write(pixelFrame())
	})
	h := newHarness(t, &fakeTool{devices: []adb.Device{readyDevice()}})
	report, err := h.prober.Run(context.Background(), domain.NewSession("1", port), runOptions())

	require.NoError(t, err)
	assert.Equal(t, domain.VerdictOK, report.Verdict)
	assert.ErrorIs(t, report.Version.Err, domain.ErrVerificationFailed)
	assert.Contains(t, h.events.finished(), "verify:failed")
}

func TestProber_ForwardFailureStillTearsDown(t *testing.T) {
	h := newHarness(t, &fakeTool{
		devices:        []adb.Device{readyDevice()},
		versionOutputs: []*string{str("2.7")},
		forwardErr:     errors.New("cannot bind listener"),
	})
	report, err := h.prober.Run(context.Background(), domain.NewSession("1", 27183), runOptions())

	assert.ErrorIs(t, err, domain.ErrForwardFailed)
	assert.Equal(t, domain.KindForwardFailed, report.Code)
	assert.Equal(t, 1, h.tool.removeCalls)
	assert.NotContains(t, h.tool.Calls(), "start")
	assert.Nil(t, report.Server)
}

func TestProber_LaunchFailure(t *testing.T) {
	h := newHarness(t, &fakeTool{
		devices:        []adb.Device{readyDevice()},
		versionOutputs: []*string{str("2.7")},
		startErr:       errors.New("exec failed"),
	})
	report, err := h.prober.Run(context.Background(), domain.NewSession("1", 27183), runOptions())

	assert.ErrorIs(t, err, domain.ErrLaunchFailed)
	assert.Equal(t, domain.KindLaunchFailed, report.Code)
	assert.Equal(t, 1, h.tool.removeCalls)
	assert.Nil(t, report.Handshake)
}

func TestProber_ConnectFailureCleansUp(t *testing.T) {
	h := newHarness(t, &fakeTool{devices: []adb.Device{readyDevice()}, versionOutputs: []*string{str("2.7")}})
	report, err := h.prober.Run(context.Background(), domain.NewSession("1", closedPort(t)), runOptions())

	require.NoError(t, err, "connect failure is reported on the verdict")
	assert.Equal(t, domain.VerdictFailed, report.Verdict)
	assert.Equal(t, domain.KindConnectFailed, report.Code)
	assert.Equal(t, 1, h.tool.removeCalls)
	assert.Equal(t, 1, h.tool.proc.terminates)
	assert.Contains(t, h.events.finished(), "handshake:failed")
}

func TestProber_PartialFrame(t *testing.T) {
	port := serveOnce(t, func(c net.Conn) {
		c.Write([]byte{0x00, 'P', 'i', 'x'})
		c.Close()
	})
	h := newHarness(t, &fakeTool{devices: []adb.Device{readyDevice()}, versionOutputs: []*string{str("2.7")}})
	opts := runOptions()
	opts.KillStale = false
	report, err := h.prober.Run(context.Background(), domain.NewSession("1", port), opts)

	require.NoError(t, err)
	assert.Equal(t, domain.VerdictPartial, report.Verdict)
	assert.Equal(t, domain.KindRemoteClosed, report.Code)
	assert.Equal(t, "Pix", report.Handshake.Frame.Name)
	assert.Contains(t, h.events.finished(), "kill_stale:skipped")
	assert.NotContains(t, h.tool.Calls(), "kill")
}

func TestProber_TeardownFailureDoesNotChangeVerdict(t *testing.T) {
	port := serveOnce(t, func(c net.Conn) {
		defer c.Close()
		c.Write(pixelFrame())
	})
	h := newHarness(t, &fakeTool{
		devices:        []adb.Device{readyDevice()},
		versionOutputs: []*string{str("2.7")},
		removeErr:      errors.New("listener 'tcp:27183' not found"),
	})
	report, err := h.prober.Run(context.Background(), domain.NewSession("1", port), runOptions())

	require.NoError(t, err)
	assert.Equal(t, domain.VerdictOK, report.Verdict)
	assert.Contains(t, h.events.finished(), "teardown:failed")
}

func TestProber_CancelledRunStillCleansUp(t *testing.T) {
	hold := make(chan struct{})
	t.Cleanup(func() { close(hold) })
	port := serveOnce(t, func(c net.Conn) {
		defer c.Close()
		<-hold
	})
	h := newHarness(t, &fakeTool{devices: []adb.Device{readyDevice()}, versionOutputs: []*string{str("2.7")}})
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	report, err := h.prober.Run(ctx, domain.NewSession("1", port), runOptions())

	require.NoError(t, err)
	assert.Equal(t, domain.VerdictFailed, report.Verdict)
	assert.Equal(t, domain.KindTimedOut, report.Code)
	assert.Equal(t, domain.ExitCancelled, report.Handshake.Exit)
	assert.Equal(t, 1, h.tool.removeCalls)
	assert.Equal(t, 1, h.tool.proc.terminates)
}
