package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points HOME and the working directory at an empty temp dir so no
// real config file leaks into the test.
func isolate(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, ".config"))
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(tmpDir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return tmpDir
}

func TestDefault(t *testing.T) {
	cfg := Default()

	require.NotNil(t, cfg)
	assert.Equal(t, "text", cfg.Format)
	assert.False(t, cfg.Quiet)
	assert.False(t, cfg.Verbose)
	assert.Equal(t, "adb", cfg.AdbPath)
	assert.Equal(t, "12345678", cfg.Server.SessionID)
	assert.Equal(t, 27183, cfg.Server.Port)
	assert.Equal(t, "2.7", cfg.Server.Version)
	assert.Equal(t, 720, cfg.Server.MaxSize)
	assert.True(t, cfg.Server.KillStale)
	assert.Equal(t, "2s", cfg.Timing.ConnectDelay)
	assert.Equal(t, "8s", cfg.Timing.ReadBudget)
	assert.Equal(t, "5s", cfg.Timing.ReadTimeout)
	assert.True(t, cfg.History.Enabled)
}

func TestLoad(t *testing.T) {
	t.Run("returns defaults when no config file exists", func(t *testing.T) {
		isolate(t)

		cfg, err := Load()
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, "text", cfg.Format)
		assert.Equal(t, 27183, cfg.Server.Port)
		assert.Equal(t, "8s", cfg.Timing.ReadBudget)
	})

	t.Run("reads .mproberc.yaml from current directory", func(t *testing.T) {
		dir := isolate(t)
		content := "format: ndjson\nserver:\n  port: 27999\n"
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".mproberc.yaml"), []byte(content), 0o644))

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "ndjson", cfg.Format)
		assert.Equal(t, 27999, cfg.Server.Port)
		assert.Equal(t, "12345678", cfg.Server.SessionID, "unset keys keep defaults")
	})

	t.Run("reads mprobe.yaml from current directory", func(t *testing.T) {
		dir := isolate(t)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "mprobe.yaml"), []byte("server:\n  port: 1111\n"), 0o644))

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 1111, cfg.Server.Port)
		assert.Equal(t, "mprobe.yaml", filepath.Base(ConfigFile()))
	})

	t.Run("reads .mprobe.yaml from home", func(t *testing.T) {
		home := isolate(t)
		require.NoError(t, os.Chdir(t.TempDir()))
		require.NoError(t, os.WriteFile(filepath.Join(home, ".mprobe.yaml"), []byte("server:\n  max_size: 1080\n"), 0o644))

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 1080, cfg.Server.MaxSize)
		assert.Equal(t, filepath.Join(home, ".mprobe.yaml"), ConfigFile())
	})

	t.Run("reads mprobe.yaml from user config dir", func(t *testing.T) {
		isolate(t)
		configDir, err := os.UserConfigDir()
		require.NoError(t, err)
		require.NoError(t, os.MkdirAll(filepath.Join(configDir, "mprobe"), 0o755))
		path := filepath.Join(configDir, "mprobe", "mprobe.yaml")
		require.NoError(t, os.WriteFile(path, []byte("timing:\n  read_budget: 4s\n"), 0o644))
		require.NoError(t, os.Chdir(t.TempDir()))

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "4s", cfg.Timing.ReadBudget)
		assert.Equal(t, path, ConfigFile())
	})

	t.Run("current directory wins over home", func(t *testing.T) {
		dir := isolate(t)
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".mprobe.yaml"), []byte("server:\n  port: 2222\n"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "mprobe.yaml"), []byte("server:\n  port: 3333\n"), 0o644))

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 3333, cfg.Server.Port)
		assert.Equal(t, "mprobe.yaml", filepath.Base(ConfigFile()))
	})

	t.Run("invalid file is an error", func(t *testing.T) {
		dir := isolate(t)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "mprobe.yaml"), []byte("server: ["), 0o644))

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("environment overrides defaults", func(t *testing.T) {
		isolate(t)
		t.Setenv("MPROBE_FORMAT", "ndjson")
		t.Setenv("MPROBE_SCID", "0badcafe")
		t.Setenv("MPROBE_ADB", "/opt/platform-tools/adb")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "ndjson", cfg.Format)
		assert.Equal(t, "0badcafe", cfg.Server.SessionID)
		assert.Equal(t, "/opt/platform-tools/adb", cfg.AdbPath)
	})
}

func TestLoadFromFile(t *testing.T) {
	t.Run("returns error for non-existent file", func(t *testing.T) {
		cfg, err := LoadFromFile("/nonexistent/path/config.yaml")
		assert.Error(t, err)
		assert.Nil(t, cfg)
	})

	t.Run("returns error for invalid YAML", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "bad.yaml")
		err := os.WriteFile(configPath, []byte("invalid: yaml: content: ["), 0644)
		require.NoError(t, err)

		cfg, err := LoadFromFile(configPath)
		assert.Error(t, err)
		assert.Nil(t, cfg)
	})

	t.Run("parses all config fields", func(t *testing.T) {
		tmpDir := t.TempDir()
		configContent := `
format: ndjson
quiet: true
verbose: true
adb_path: /usr/local/bin/adb
log_file: /tmp/mprobe.log
server:
  local_artifact: build/server.jar
  remote_artifact: /data/local/tmp/server.jar
  class: com.example.Server
  version: "3.1"
  scid: "00c0ffee"
  port: 27200
  max_size: 1024
  log_level: verbose
  kill_stale: false
timing:
  connect_delay: 500ms
  read_budget: 3s
  read_timeout: 1s
  drain_timeout: 2s
  command_timeout: 4s
history:
  enabled: false
  path: /tmp/history.db
`
		configPath := filepath.Join(tmpDir, "mprobe.yaml")
		err := os.WriteFile(configPath, []byte(configContent), 0644)
		require.NoError(t, err)

		cfg, err := LoadFromFile(configPath)
		require.NoError(t, err)

		assert.Equal(t, "ndjson", cfg.Format)
		assert.True(t, cfg.Quiet)
		assert.True(t, cfg.Verbose)
		assert.Equal(t, "/usr/local/bin/adb", cfg.AdbPath)
		assert.Equal(t, "/tmp/mprobe.log", cfg.LogFile)
		assert.Equal(t, "build/server.jar", cfg.Server.LocalArtifact)
		assert.Equal(t, "/data/local/tmp/server.jar", cfg.Server.RemoteArtifact)
		assert.Equal(t, "com.example.Server", cfg.Server.Class)
		assert.Equal(t, "3.1", cfg.Server.Version)
		assert.Equal(t, "00c0ffee", cfg.Server.SessionID)
		assert.Equal(t, 27200, cfg.Server.Port)
		assert.Equal(t, 1024, cfg.Server.MaxSize)
		assert.Equal(t, "verbose", cfg.Server.LogLevel)
		assert.False(t, cfg.Server.KillStale)
		assert.False(t, cfg.History.Enabled)
		assert.Equal(t, "/tmp/history.db", cfg.History.Path)

		timings, err := cfg.Timing.Parse()
		require.NoError(t, err)
		assert.Equal(t, 500*time.Millisecond, timings.ConnectDelay)
		assert.Equal(t, 3*time.Second, timings.ReadBudget)
		assert.Equal(t, time.Second, timings.ReadTimeout)
		assert.Equal(t, 2*time.Second, timings.DrainTimeout)
		assert.Equal(t, 4*time.Second, timings.CommandTimeout)
	})
}

func TestTimingParse(t *testing.T) {
	t.Run("defaults parse", func(t *testing.T) {
		timings, err := Default().Timing.Parse()
		require.NoError(t, err)
		assert.Equal(t, 2*time.Second, timings.ConnectDelay)
		assert.Equal(t, 8*time.Second, timings.ReadBudget)
		assert.Equal(t, 5*time.Second, timings.ReadTimeout)
	})

	t.Run("rejects malformed duration", func(t *testing.T) {
		tc := Default().Timing
		tc.ReadTimeout = "soon"
		_, err := tc.Parse()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "timing.read_timeout")
	})

	t.Run("rejects negative duration", func(t *testing.T) {
		tc := Default().Timing
		tc.ConnectDelay = "-1s"
		_, err := tc.Parse()
		assert.Error(t, err)
	})

	t.Run("rejects zero budget", func(t *testing.T) {
		tc := Default().Timing
		tc.ReadBudget = "0s"
		_, err := tc.Parse()
		assert.Error(t, err)
	})
}
