package output

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSessionLogger_AppendsAcrossRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "probe.log")

	for i := 0; i < 2; i++ {
		l, err := NewSessionLogger(path, false, nil)
		require.NoError(t, err)
		l.Info("stage", zap.String("run_id", "run"), zap.Int("i", i))
		require.NoError(t, l.Close())
	}

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	require.Len(t, lines, 2)

	for i, line := range lines {
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		assert.Equal(t, "stage", m["msg"])
		assert.EqualValues(t, i, m["i"])
		assert.NotEmpty(t, m["ts"])
	}
}

func TestSessionLogger_VerboseMirrorsToConsole(t *testing.T) {
	console := &bytes.Buffer{}
	l, err := NewSessionLogger("", true, console)
	require.NoError(t, err)
	l.Debug("connect", zap.String("addr", "127.0.0.1:27183"))
	require.NoError(t, l.Close())

	assert.Contains(t, console.String(), `"addr":"127.0.0.1:27183"`)
	assert.Empty(t, l.Path())
}

func TestSessionLogger_QuietWithoutSinks(t *testing.T) {
	l, err := NewSessionLogger("", false, &bytes.Buffer{})
	require.NoError(t, err)
	l.Info("dropped")
	require.NoError(t, l.Close())
	require.NoError(t, NopSessionLogger().Close())
}
