// Package cli implements the mprobe command line.
package cli

import (
	"io"
	"os"
	"strconv"

	"github.com/alecthomas/kong"
	"github.com/mattn/go-isatty"

	"github.com/vburojevic/mprobe/internal/config"
)

// Set via -ldflags at release time.
var (
	Version = "dev"
	Commit  = "none"
)

// CLI is the root command
type CLI struct {
	Format  string `short:"f" default:"${config_format}" enum:"ndjson,text" help:"Output format (ndjson or text)"`
	Quiet   bool   `short:"q" default:"${config_quiet}" help:"Only print the final report (ndjson only)"`
	Verbose bool   `short:"v" default:"${config_verbose}" help:"Mirror the diagnostic log to stderr"`
	Adb     string `default:"${config_adb}" help:"Path to the adb executable"`
	LogFile string `default:"${config_log_file}" help:"Append-only diagnostic log file"`

	Probe   ProbeCmd   `cmd:"" help:"Run one mirroring session and decode the handshake"`
	Devices DevicesCmd `cmd:"" help:"List attached devices"`
	History HistoryCmd `cmd:"" help:"Show recent probe runs"`
	Config  ConfigCmd  `cmd:"" help:"Show or generate configuration"`
	Schema  SchemaCmd  `cmd:"" help:"Print JSON Schema for NDJSON output"`
	Version VersionCmd `cmd:"" help:"Show version and upgrade instructions"`
}

// Globals carries resolved global flags into every command
type Globals struct {
	Format  string
	Quiet   bool
	Verbose bool
	AdbPath string
	LogFile string
	Stdout  io.Writer
	Stderr  io.Writer
	Config  *config.Config

	debug *debugLogger
}

// NewGlobalsWithConfig resolves globals from parsed flags, falling back to cfg.
func NewGlobalsWithConfig(c *CLI, cfg *config.Config) *Globals {
	if cfg == nil {
		cfg = config.Default()
	}
	g := &Globals{
		Format:  c.Format,
		Quiet:   c.Quiet,
		Verbose: c.Verbose,
		AdbPath: c.Adb,
		LogFile: c.LogFile,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		Config:  cfg,
	}
	if g.Format == "" {
		g.Format = cfg.Format
	}
	if g.AdbPath == "" {
		g.AdbPath = cfg.AdbPath
	}
	if g.LogFile == "" {
		g.LogFile = cfg.LogFile
	}
	return g
}

// Debug prints a debug line to stderr when --verbose is set
func (g *Globals) Debug(format string, args ...any) {
	if g == nil || !g.Verbose {
		return
	}
	if g.debug == nil {
		g.debug = newDebugLogger(g)
	}
	g.debug.Debugf(format, args...)
}

// KongVars exposes configuration values as flag defaults.
func KongVars(cfg *config.Config) kong.Vars {
	return kong.Vars{
		"config_format":         cfg.Format,
		"config_quiet":          strconv.FormatBool(cfg.Quiet),
		"config_verbose":        strconv.FormatBool(cfg.Verbose),
		"config_adb":            cfg.AdbPath,
		"config_log_file":       cfg.LogFile,
		"config_scid":           cfg.Server.SessionID,
		"config_port":           strconv.Itoa(cfg.Server.Port),
		"config_server_version": cfg.Server.Version,
		"config_artifact":       cfg.Server.LocalArtifact,
		"config_remote_path":    cfg.Server.RemoteArtifact,
		"config_class":          cfg.Server.Class,
		"config_max_size":       strconv.Itoa(cfg.Server.MaxSize),
		"config_log_level":      cfg.Server.LogLevel,
		"config_connect_delay":  cfg.Timing.ConnectDelay,
		"config_read_budget":    cfg.Timing.ReadBudget,
		"config_read_timeout":   cfg.Timing.ReadTimeout,
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
