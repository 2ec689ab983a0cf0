package probe

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/vburojevic/mprobe/internal/adb"
)

// fakeTool is an in-memory DeviceTool that records every call.
type fakeTool struct {
	mu sync.Mutex

	devices    []adb.Device
	devicesErr error
	forwardErr error
	removeErr  error
	pushErr    error
	startErr   error
	// versionOutputs are returned by successive version checks; a nil
	// entry means the check fails.
	versionOutputs []*string
	// serverExits makes the started server report itself as already gone.
	serverExits bool

	calls       []string
	removeCalls int
	pushCalls   int
	proc        *fakeProcess
}

func str(s string) *string { return &s }

func readyDevice() adb.Device {
	return adb.Device{Serial: "0A121FDD4003BZ", State: adb.StateDevice, Model: "Pixel_7"}
}

func (f *fakeTool) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeTool) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeTool) Devices(context.Context) ([]adb.Device, error) {
	f.record("devices")
	return f.devices, f.devicesErr
}

func (f *fakeTool) Forward(context.Context, string, int, string) error {
	f.record("forward")
	return f.forwardErr
}

func (f *fakeTool) RemoveForward(context.Context, string, int) error {
	f.record("remove")
	f.mu.Lock()
	f.removeCalls++
	f.mu.Unlock()
	return f.removeErr
}

func (f *fakeTool) Push(context.Context, string, string, string) error {
	f.record("push")
	f.mu.Lock()
	f.pushCalls++
	f.mu.Unlock()
	return f.pushErr
}

func (f *fakeTool) Shell(_ context.Context, _ string, command string) (string, error) {
	switch {
	case strings.HasPrefix(command, "pkill"):
		f.record("kill")
		return "", errors.New("exit status 1")
	case strings.HasSuffix(command, " -v"):
		f.record("version")
		f.mu.Lock()
		defer f.mu.Unlock()
		if len(f.versionOutputs) == 0 {
			return "", errors.New("no version configured")
		}
		out := f.versionOutputs[0]
		f.versionOutputs = f.versionOutputs[1:]
		if out == nil {
			return "", errors.New("ClassNotFoundException")
		}
		return *out, nil
	}
	f.record("shell")
	return "", nil
}

func (f *fakeTool) StartShell(string, string, time.Duration) (ServerProcess, error) {
	f.record("start")
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.proc = &fakeProcess{exited: f.serverExits, out: adb.Output{Stdout: "[server] INFO: Device\n", ExitCode: -1, Signaled: true}}
	return f.proc, nil
}

type fakeProcess struct {
	mu         sync.Mutex
	terminates int
	exited     bool
	out        adb.Output
}

func (p *fakeProcess) PID() int { return 4242 }

func (p *fakeProcess) Alive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.terminates == 0 && !p.exited
}

func (p *fakeProcess) Terminate(time.Duration) adb.Output {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.terminates++
	return p.out
}
