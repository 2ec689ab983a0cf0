package output

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// SessionLogger is the append-only diagnostic sink of probe runs. Every
// line is JSON; the file is never truncated.
type SessionLogger struct {
	*zap.Logger
	file *os.File
	path string
}

// NewSessionLogger appends to path (created with its directory if missing).
// When verbose is set, debug lines are mirrored to console.
func NewSessionLogger(path string, verbose bool, console io.Writer) (*SessionLogger, error) {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var cores []zapcore.Core
	l := &SessionLogger{path: path}

	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		l.file = f
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.Lock(f), zap.DebugLevel))
	}
	if verbose && console != nil {
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(console), zap.DebugLevel))
	}

	if len(cores) == 0 {
		l.Logger = zap.NewNop()
		return l, nil
	}
	l.Logger = zap.New(zapcore.NewTee(cores...))
	return l, nil
}

// NopSessionLogger discards everything
func NopSessionLogger() *SessionLogger {
	return &SessionLogger{Logger: zap.NewNop()}
}

// Path returns the log file path, empty when logging only to console
func (l *SessionLogger) Path() string { return l.path }

// Close flushes and closes the log file
func (l *SessionLogger) Close() error {
	_ = l.Logger.Sync()
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}
