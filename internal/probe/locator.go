package probe

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/vburojevic/mprobe/internal/adb"
	"github.com/vburojevic/mprobe/internal/domain"
)

// DeviceLocator picks the device the run talks to.
type DeviceLocator struct {
	tool DeviceTool
	log  *zap.Logger
}

// NewDeviceLocator creates a locator
func NewDeviceLocator(tool DeviceTool, log *zap.Logger) *DeviceLocator {
	return &DeviceLocator{tool: tool, log: log}
}

// Locate returns the first ready device, restricted to serial when set.
// A failed listing and an empty or all-not-ready listing both yield
// DEVICE_NOT_FOUND; device absence is never retried.
func (l *DeviceLocator) Locate(ctx context.Context, serial string) (adb.Device, error) {
	op := adb.Describe(adb.DevicesArgs()...)
	devices, err := l.tool.Devices(ctx)
	if err != nil {
		l.log.Warn("device listing failed", zap.String("command", op), zap.Error(err))
		return adb.Device{}, domain.NewError(domain.KindDeviceNotFound, op, err)
	}
	l.log.Debug("devices listed", zap.Int("count", len(devices)), zap.Any("devices", devices))

	d, ok := adb.FirstReady(devices, serial)
	if !ok {
		if serial != "" {
			return adb.Device{}, domain.Errorf(domain.KindDeviceNotFound, op, "device %s is not attached and ready (%d listed)", serial, len(devices))
		}
		return adb.Device{}, domain.NewError(domain.KindDeviceNotFound, op, fmt.Errorf("no ready device among %d listed", len(devices)))
	}
	return d, nil
}
