package cli

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// debugLogger wraps zap for --verbose command-level debug lines.
type debugLogger struct {
	sugared *zap.SugaredLogger
}

func newDebugLogger(globals *Globals) *debugLogger {
	if globals == nil || !globals.Verbose || globals.Stderr == nil {
		return &debugLogger{}
	}
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.TimeKey = ""
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(globals.Stderr), zap.DebugLevel)
	return &debugLogger{sugared: zap.New(core).Sugar().With("format", globals.Format)}
}

func (l *debugLogger) Debugf(format string, args ...any) {
	if l.sugared == nil {
		return
	}
	l.sugared.Debugf(format, args...)
}
