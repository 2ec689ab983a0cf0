// Package probe drives one mirroring session against a device: locate,
// verify the server artifact, forward, launch, read the handshake, clean up.
package probe

import (
	"context"
	"time"

	"github.com/vburojevic/mprobe/internal/adb"
)

// DeviceTool is the subset of the device-management CLI the probe uses.
type DeviceTool interface {
	Devices(ctx context.Context) ([]adb.Device, error)
	Forward(ctx context.Context, serial string, localPort int, socketName string) error
	RemoveForward(ctx context.Context, serial string, localPort int) error
	Push(ctx context.Context, serial, local, remote string) error
	Shell(ctx context.Context, serial, command string) (string, error)
	StartShell(serial, command string, drain time.Duration) (ServerProcess, error)
}

// ServerProcess is a spawned server the probe observes but does not
// synchronize with.
type ServerProcess interface {
	PID() int
	Alive() bool
	Terminate(grace time.Duration) adb.Output
}

type adbTool struct {
	*adb.Client
}

// NewADBTool adapts an adb client to DeviceTool.
func NewADBTool(c *adb.Client) DeviceTool {
	return adbTool{Client: c}
}

func (t adbTool) StartShell(serial, command string, drain time.Duration) (ServerProcess, error) {
	p, err := t.Client.StartShell(serial, command, drain)
	if err != nil {
		return nil, err
	}
	return p, nil
}
