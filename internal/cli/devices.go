package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"

	"github.com/vburojevic/mprobe/internal/adb"
	"github.com/vburojevic/mprobe/internal/output"
)

// DevicesCmd lists devices known to adb
type DevicesCmd struct {
	Ready bool `help:"Only list devices in the ready state"`
}

// DeviceOutput is the NDJSON form of one device
type DeviceOutput struct {
	Type          string `json:"type"`
	SchemaVersion int    `json:"schemaVersion"`
	adb.Device
	Ready bool `json:"ready"`
}

// Run executes the devices command
func (c *DevicesCmd) Run(globals *Globals) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout(globals))
	defer cancel()

	client := adb.NewClient(globals.AdbPath, c.timeout(globals))
	devices, err := client.Devices(ctx)
	if err != nil {
		return outputErrorCommon(globals, "ADB_ERROR", err.Error(), "check that adb is installed or set --adb")
	}
	if c.Ready {
		devices = lo.Filter(devices, func(d adb.Device, _ int) bool { return d.Ready() })
	}

	if globals.Format == "ndjson" {
		w := output.NewNDJSONWriter(globals.Stdout)
		for _, d := range devices {
			if err := w.Write(DeviceOutput{Type: "device", SchemaVersion: output.SchemaVersion, Device: d, Ready: d.Ready()}); err != nil {
				return err
			}
		}
		return nil
	}

	if version, err := client.Version(ctx); err == nil {
		fmt.Fprintln(globals.Stdout, version)
	}
	if len(devices) == 0 {
		fmt.Fprintln(globals.Stdout, "No devices attached")
		return nil
	}
	rows := lo.Map(devices, func(d adb.Device, _ int) []string {
		return []string{d.Serial, d.State, d.Model, d.Product, d.TransportID}
	})
	return output.NewTextWriter(globals.Stdout, isTerminal(globals.Stdout)).
		WriteTable([]string{"Serial", "State", "Model", "Product", "Transport"}, rows)
}

func (c *DevicesCmd) timeout(globals *Globals) time.Duration {
	if globals.Config != nil {
		if t, err := globals.Config.Timing.Parse(); err == nil {
			return t.CommandTimeout
		}
	}
	return adb.DefaultTimeout
}
