package logger

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"fxHistory/internal/ports"
)

// ZapLogger implements ports.Logger on top of zap with JSON output.
type ZapLogger struct {
	raw *zap.Logger
}

// NewZapLogger builds a production zap logger at the given level ("debug", "info", "warn", "error").
func NewZapLogger(level string) (*ZapLogger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("logger: invalid level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	ec := &cfg.EncoderConfig
	ec.TimeKey = "ts"
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	ec.CallerKey = "caller"
	ec.EncodeCaller = zapcore.ShortCallerEncoder

	raw, err := cfg.Build(zap.AddCallerSkip(2))
	if err != nil {
		return nil, fmt.Errorf("logger: build zap: %w", err)
	}
	return &ZapLogger{raw: raw}, nil
}

// NewZapLoggerFrom wraps an existing zap logger.
func NewZapLoggerFrom(raw *zap.Logger) *ZapLogger {
	return &ZapLogger{raw: raw}
}

// Sync flushes buffered log entries.
func (l *ZapLogger) Sync() { _ = l.raw.Sync() }

func (l *ZapLogger) log(ctx context.Context, level zapcore.Level, msg string, err error, fields ...map[string]interface{}) {
	ce := l.raw.Check(level, msg)
	if ce == nil {
		return
	}
	kv := contextFields(ctx)
	zf := make([]zap.Field, 0, len(kv)+1)
	for k, v := range kv {
		zf = append(zf, zap.Any(k, v))
	}
	for _, f := range fields {
		for k, v := range f {
			zf = append(zf, zap.Any(k, v))
		}
	}
	if err != nil {
		zf = append(zf, zap.Error(err))
	}
	ce.Write(zf...)
}

// Debug logs a message at Debug level.
func (l *ZapLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.log(ctx, zapcore.DebugLevel, msg, nil, fields...)
}

// Info logs a message at Info level.
func (l *ZapLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.log(ctx, zapcore.InfoLevel, msg, nil, fields...)
}

// Warn logs a message at Warning level.
func (l *ZapLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.log(ctx, zapcore.WarnLevel, msg, nil, fields...)
}

// Error logs an error message at Error level.
func (l *ZapLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	l.log(ctx, zapcore.ErrorLevel, msg, err, fields...)
}

// New returns the logger for a LOG_FORMAT value: "json" selects zap, anything else the text logger.
func New(format, level string) (ports.Logger, error) {
	if format == "json" {
		return NewZapLogger(level)
	}
	return NewStdLogger(ParseLevel(level)), nil
}
