package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// JSONLogger writes one JSON object per line through zap.
// Intended for unattended runs where output is shipped to a log pipeline.
type JSONLogger struct {
	sugar *zap.SugaredLogger
}

// NewJSONLogger builds a production zap logger on stderr.
// Debug level is enabled when verbose is true.
func NewJSONLogger(verbose bool) (*JSONLogger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = true
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	z, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return NewJSONLoggerFromZap(z), nil
}

// NewJSONLoggerFromZap wraps an existing zap logger.
// Panics if z is nil.
func NewJSONLoggerFromZap(z *zap.Logger) *JSONLogger {
	if z == nil {
		panic("zap logger cannot be nil")
	}
	return &JSONLogger{sugar: z.Sugar()}
}

func (l *JSONLogger) Verbose(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

func (l *JSONLogger) Info(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

func (l *JSONLogger) Warn(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

func (l *JSONLogger) Error(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// Sync flushes buffered entries.
func (l *JSONLogger) Sync() error {
	return l.sugar.Sync()
}
