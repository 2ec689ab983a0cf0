package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/vburojevic/mprobe/internal/cli"
	"github.com/vburojevic/mprobe/internal/config"
)

const quickStart = `mprobe - screen-mirroring handshake probe for adb devices

Quick start:
  mprobe devices                        List attached devices
  mprobe probe                          Probe the first ready device
  mprobe probe -s SERIAL --port 27183   Probe one device on a given port
  mprobe history                        Recent runs

For help:
  mprobe --help                         All commands and flags
  mprobe schema                         NDJSON output schemas
`

func main() {
	// Show quick start if no args provided
	if len(os.Args) == 1 {
		fmt.Print(quickStart)
		return
	}

	// Load configuration from files/environment
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load config: %v\n", err)
		cfg = config.Default()
	}

	var c cli.CLI

	// Config values become flag defaults; explicit flags still win
	ctx := kong.Parse(&c,
		kong.Name("mprobe"),
		kong.Description("mprobe: verify an adb device can bootstrap a screen-mirroring session"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}),
		cli.KongVars(cfg),
	)

	globals := cli.NewGlobalsWithConfig(&c, cfg)
	err = ctx.Run(globals)
	if err != nil {
		os.Exit(1)
	}
}
