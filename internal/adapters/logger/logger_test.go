package logger

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"warning", LevelWarn},
		{"Error", LevelError},
		{" warn ", LevelWarn},
		{"verbose", LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestStdLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewStdLoggerTo(&buf, LevelInfo)
	ctx := ContextWithRunID(context.Background(), "01HRUN")

	l.Debug(ctx, "hidden")
	l.Warn(ctx, "History file too small", map[string]interface{}{"path": "/tmp/EURUSD1.hst", "bytes": 10})
	l.Error(context.Background(), errors.New("disk full"), "Write failed")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `level=WARN msg="History file too small" bytes=10 path=/tmp/EURUSD1.hst run_id=01HRUN`+"\n")
	assert.Contains(t, out, `level=ERROR msg="Write failed" error="disk full"`+"\n")
}

func TestZapLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	l := NewZapLoggerFrom(zap.New(core))
	ctx := ContextWithRunID(context.Background(), "01HRUN")

	l.Debug(ctx, "hidden")
	l.Info(ctx, "Sync finished", map[string]interface{}{"symbol": "EURUSD"})
	l.Error(ctx, errors.New("boom"), "Sync failed")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "Sync finished", entries[0].Message)
	assert.Equal(t, "EURUSD", entries[0].ContextMap()["symbol"])
	assert.Equal(t, "01HRUN", entries[0].ContextMap()["run_id"])
	assert.Equal(t, "boom", entries[1].ContextMap()["error"])
}

func TestNew(t *testing.T) {
	l, err := New("json", "debug")
	require.NoError(t, err)
	assert.IsType(t, &ZapLogger{}, l)

	l, err = New("text", "debug")
	require.NoError(t, err)
	assert.IsType(t, &StdLogger{}, l)

	_, err = New("json", "loud")
	assert.Error(t, err)
}
