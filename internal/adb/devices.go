package adb

import (
	"context"
	"strings"

	"github.com/samber/lo"
)

// Device states reported by `adb devices`.
const (
	StateDevice       = "device" // connected and authorized
	StateOffline      = "offline"
	StateUnauthorized = "unauthorized"
)

// Device is one entry of `adb devices -l`.
type Device struct {
	Serial      string `json:"serial"`
	State       string `json:"state"`
	Model       string `json:"model,omitempty"`
	Product     string `json:"product,omitempty"`
	DeviceName  string `json:"device,omitempty"`
	TransportID string `json:"transport_id,omitempty"`
}

// Ready reports whether the device can accept commands.
func (d Device) Ready() bool {
	return d.State == StateDevice
}

// ParseDevices parses the output of `adb devices [-l]`. The header line,
// daemon notices and blank lines are skipped.
func ParseDevices(output string) []Device {
	var devices []Device
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "List of devices") || strings.HasPrefix(line, "*") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		d := Device{Serial: fields[0], State: strings.ToLower(fields[1])}
		for _, f := range fields[2:] {
			key, value, ok := strings.Cut(f, ":")
			if !ok {
				continue
			}
			switch key {
			case "model":
				d.Model = value
			case "product":
				d.Product = value
			case "device":
				d.DeviceName = value
			case "transport_id":
				d.TransportID = value
			}
		}
		devices = append(devices, d)
	}
	return devices
}

// FirstReady returns the first ready device, optionally restricted to serial.
func FirstReady(devices []Device, serial string) (Device, bool) {
	return lo.Find(devices, func(d Device) bool {
		return d.Ready() && (serial == "" || d.Serial == serial)
	})
}

// Devices lists attached devices.
func (c *Client) Devices(ctx context.Context) ([]Device, error) {
	out, err := c.Run(ctx, DevicesArgs()...)
	if err != nil {
		return nil, err
	}
	return ParseDevices(out), nil
}
