package cli

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/vburojevic/mprobe/internal/config"
	"github.com/vburojevic/mprobe/internal/output"
)

// ConfigCmd groups configuration subcommands
type ConfigCmd struct {
	Show     ConfigShowCmd     `cmd:"" default:"1" help:"Show the effective configuration"`
	Path     ConfigPathCmd     `cmd:"" help:"Show which config file is loaded"`
	Generate ConfigGenerateCmd `cmd:"" help:"Print a sample config file"`
}

// ConfigShowCmd prints the effective configuration
type ConfigShowCmd struct{}

// ConfigOutput is the NDJSON form of the configuration
type ConfigOutput struct {
	Type          string `json:"type"`
	SchemaVersion int    `json:"schemaVersion"`
	Source        string `json:"source,omitempty"`
	*config.Config
}

// Run executes the config show command
func (c *ConfigShowCmd) Run(globals *Globals) error {
	cfg := globals.Config
	if cfg == nil {
		cfg = config.Default()
	}
	source := config.ConfigFile()

	if globals.Format == "ndjson" {
		return output.NewNDJSONWriter(globals.Stdout).Write(ConfigOutput{
			Type:          "config",
			SchemaVersion: output.SchemaVersion,
			Source:        source,
			Config:        cfg,
		})
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return outputErrorCommon(globals, "CONFIG_ERROR", err.Error())
	}
	fmt.Fprintln(globals.Stdout, "Current Configuration:")
	if source != "" {
		fmt.Fprintf(globals.Stdout, "# loaded from %s\n", source)
	} else {
		fmt.Fprintln(globals.Stdout, "# defaults (no config file found)")
	}
	fmt.Fprint(globals.Stdout, string(data))
	return nil
}

// ConfigPathCmd prints the loaded config file path
type ConfigPathCmd struct{}

// Run executes the config path command
func (c *ConfigPathCmd) Run(globals *Globals) error {
	path := config.ConfigFile()
	if globals.Format == "ndjson" {
		return output.NewNDJSONWriter(globals.Stdout).Write(map[string]any{
			"type":          "config_path",
			"schemaVersion": output.SchemaVersion,
			"path":          path,
		})
	}
	if path == "" {
		fmt.Fprintln(globals.Stdout, "No configuration file found")
		fmt.Fprintln(globals.Stdout, "Searched: /etc/mprobe/, user config dir, home directory, current directory")
		return nil
	}
	fmt.Fprintf(globals.Stdout, "Config file: %s\n", path)
	return nil
}

// ConfigGenerateCmd prints a sample config
type ConfigGenerateCmd struct{}

const sampleConfig = `# mprobe configuration file
# Place as ./.mproberc.yaml, ~/.mprobe.yaml or <user config dir>/mprobe/mprobe.yaml

format: text          # text or ndjson
quiet: false
verbose: false
adb_path: adb
log_file: ""          # default: <user cache dir>/mprobe/probe.log

server:
  local_artifact: resources/scrcpy-server.jar
  remote_artifact: /data/local/tmp/scrcpy-server.jar
  class: com.genymobile.scrcpy.Server
  version: "2.7"
  scid: "12345678"
  port: 27183
  max_size: 720
  log_level: info
  kill_stale: true

timing:
  connect_delay: 2s
  read_budget: 8s
  read_timeout: 5s
  drain_timeout: 3s
  command_timeout: 10s

history:
  enabled: true
  path: ""            # default: ~/.mprobe/history.db
`

// Run executes the config generate command
func (c *ConfigGenerateCmd) Run(globals *Globals) error {
	fmt.Fprint(globals.Stdout, sampleConfig)
	return nil
}
