package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	// Global settings
	Format  string `mapstructure:"format" yaml:"format" json:"format"`
	Quiet   bool   `mapstructure:"quiet" yaml:"quiet" json:"quiet"`
	Verbose bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`
	AdbPath string `mapstructure:"adb_path" yaml:"adb_path" json:"adb_path"`
	LogFile string `mapstructure:"log_file" yaml:"log_file" json:"log_file"`

	Server  ServerConfig  `mapstructure:"server" yaml:"server" json:"server"`
	Timing  TimingConfig  `mapstructure:"timing" yaml:"timing" json:"timing"`
	History HistoryConfig `mapstructure:"history" yaml:"history" json:"history"`
}

// ServerConfig describes the server build under test and how to launch it
type ServerConfig struct {
	LocalArtifact  string `mapstructure:"local_artifact" yaml:"local_artifact" json:"local_artifact"`
	RemoteArtifact string `mapstructure:"remote_artifact" yaml:"remote_artifact" json:"remote_artifact"`
	Class          string `mapstructure:"class" yaml:"class" json:"class"`
	Version        string `mapstructure:"version" yaml:"version" json:"version"`
	SessionID      string `mapstructure:"scid" yaml:"scid" json:"scid"`
	Port           int    `mapstructure:"port" yaml:"port" json:"port"`
	MaxSize        int    `mapstructure:"max_size" yaml:"max_size" json:"max_size"`
	LogLevel       string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	KillStale      bool   `mapstructure:"kill_stale" yaml:"kill_stale" json:"kill_stale"`
}

// TimingConfig holds the probe's policy timeouts as duration strings
type TimingConfig struct {
	ConnectDelay   string `mapstructure:"connect_delay" yaml:"connect_delay" json:"connect_delay"`
	ReadBudget     string `mapstructure:"read_budget" yaml:"read_budget" json:"read_budget"`
	ReadTimeout    string `mapstructure:"read_timeout" yaml:"read_timeout" json:"read_timeout"`
	DrainTimeout   string `mapstructure:"drain_timeout" yaml:"drain_timeout" json:"drain_timeout"`
	CommandTimeout string `mapstructure:"command_timeout" yaml:"command_timeout" json:"command_timeout"`
}

// HistoryConfig controls the run history database
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Path    string `mapstructure:"path" yaml:"path" json:"path"`
}

// Timings are the parsed TimingConfig values
type Timings struct {
	ConnectDelay   time.Duration
	ReadBudget     time.Duration
	ReadTimeout    time.Duration
	DrainTimeout   time.Duration
	CommandTimeout time.Duration
}

// Default returns a Config with default values
func Default() *Config {
	return &Config{
		Format:  "text",
		Quiet:   false,
		Verbose: false,
		AdbPath: "adb",
		Server: ServerConfig{
			LocalArtifact:  "resources/scrcpy-server.jar",
			RemoteArtifact: "/data/local/tmp/scrcpy-server.jar",
			Class:          "com.genymobile.scrcpy.Server",
			Version:        "2.7",
			SessionID:      "12345678",
			Port:           27183,
			MaxSize:        720,
			LogLevel:       "info",
			KillStale:      true,
		},
		Timing: TimingConfig{
			ConnectDelay:   "2s",
			ReadBudget:     "8s",
			ReadTimeout:    "5s",
			DrainTimeout:   "3s",
			CommandTimeout: "10s",
		},
		History: HistoryConfig{
			Enabled: true,
		},
	}
}

// Parse converts the duration strings, reporting the first invalid one.
func (t TimingConfig) Parse() (Timings, error) {
	var out Timings
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"connect_delay", t.ConnectDelay, &out.ConnectDelay},
		{"read_budget", t.ReadBudget, &out.ReadBudget},
		{"read_timeout", t.ReadTimeout, &out.ReadTimeout},
		{"drain_timeout", t.DrainTimeout, &out.DrainTimeout},
		{"command_timeout", t.CommandTimeout, &out.CommandTimeout},
	}
	for _, f := range fields {
		d, err := time.ParseDuration(strings.TrimSpace(f.raw))
		if err != nil {
			return Timings{}, fmt.Errorf("timing.%s: %w", f.name, err)
		}
		if d < 0 {
			return Timings{}, fmt.Errorf("timing.%s: must not be negative", f.name)
		}
		*f.dst = d
	}
	if out.ReadBudget == 0 {
		return Timings{}, fmt.Errorf("timing.read_budget: must be positive")
	}
	return out, nil
}

// DefaultLogFile is the append-only diagnostic log used when log_file is unset
func DefaultLogFile() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "mprobe", "probe.log")
	}
	return "mprobe.log"
}

// DefaultHistoryPath is the history database used when history.path is unset
func DefaultHistoryPath() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".mprobe", "history.db")
	}
	return "mprobe-history.db"
}

// Load loads configuration from files and environment
func Load() (*Config, error) {
	v := viper.New()

	// Environment variables
	v.SetEnvPrefix("MPROBE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Bind specific environment variables
	v.BindEnv("format", "MPROBE_FORMAT")
	v.BindEnv("quiet", "MPROBE_QUIET")
	v.BindEnv("verbose", "MPROBE_VERBOSE")
	v.BindEnv("adb_path", "MPROBE_ADB", "ADB")
	v.BindEnv("log_file", "MPROBE_LOG_FILE")
	v.BindEnv("server.scid", "MPROBE_SCID")
	v.BindEnv("server.port", "MPROBE_PORT")

	setDefaults(v, Default())

	path, err := findConfigFile()
	if err != nil {
		return nil, err
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// searchLocation is one config base name and the directories it is looked up in
type searchLocation struct {
	name string
	dirs []string
}

// searchPath lists config locations, most specific first
func searchPath() []searchLocation {
	var locs []searchLocation
	// 1. Current directory
	locs = append(locs, searchLocation{".mproberc", []string{"."}}, searchLocation{"mprobe", []string{"."}})
	// 2. Home directory
	if home, err := os.UserHomeDir(); err == nil {
		locs = append(locs, searchLocation{".mproberc", []string{home}}, searchLocation{".mprobe", []string{home}})
	}
	// 3. User config directory
	if configDir, err := os.UserConfigDir(); err == nil {
		locs = append(locs, searchLocation{"mprobe", []string{filepath.Join(configDir, "mprobe")}})
	}
	// 4. System-wide config
	locs = append(locs, searchLocation{"mprobe", []string{"/etc/mprobe/"}})
	return locs
}

// findConfigFile returns the first config file on the search path, or "" when
// there is none. A file that exists but does not parse is returned with its error.
func findConfigFile() (string, error) {
	for _, loc := range searchPath() {
		v := viper.New()
		v.SetConfigName(loc.name)
		for _, dir := range loc.dirs {
			v.AddConfigPath(dir)
		}
		err := v.ReadInConfig()
		if err == nil {
			return v.ConfigFileUsed(), nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return v.ConfigFileUsed(), err
		}
	}
	return "", nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("format", cfg.Format)
	v.SetDefault("quiet", cfg.Quiet)
	v.SetDefault("verbose", cfg.Verbose)
	v.SetDefault("adb_path", cfg.AdbPath)
	v.SetDefault("log_file", cfg.LogFile)
	v.SetDefault("server.local_artifact", cfg.Server.LocalArtifact)
	v.SetDefault("server.remote_artifact", cfg.Server.RemoteArtifact)
	v.SetDefault("server.class", cfg.Server.Class)
	v.SetDefault("server.version", cfg.Server.Version)
	v.SetDefault("server.scid", cfg.Server.SessionID)
	v.SetDefault("server.port", cfg.Server.Port)
	v.SetDefault("server.max_size", cfg.Server.MaxSize)
	v.SetDefault("server.log_level", cfg.Server.LogLevel)
	v.SetDefault("server.kill_stale", cfg.Server.KillStale)
	v.SetDefault("timing.connect_delay", cfg.Timing.ConnectDelay)
	v.SetDefault("timing.read_budget", cfg.Timing.ReadBudget)
	v.SetDefault("timing.read_timeout", cfg.Timing.ReadTimeout)
	v.SetDefault("timing.drain_timeout", cfg.Timing.DrainTimeout)
	v.SetDefault("timing.command_timeout", cfg.Timing.CommandTimeout)
	v.SetDefault("history.enabled", cfg.History.Enabled)
	v.SetDefault("history.path", cfg.History.Path)
}

// LoadFromFile loads configuration from a specific file
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ConfigFile returns the path to the config file Load reads, or "" if none
func ConfigFile() string {
	path, _ := findConfigFile()
	return path
}
