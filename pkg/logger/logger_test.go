package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"WARN", zapcore.WarnLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"", zapcore.InfoLevel},
		{"development", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.in))
		})
	}
}

func TestGet_BeforeInit(t *testing.T) {
	mu.Lock()
	global = nil
	mu.Unlock()

	l := Get()
	require.NotNil(t, l)
	l.Info("dropped")
}

func TestInit(t *testing.T) {
	require.NoError(t, Init(&Config{Level: "debug", ServiceName: "busmate-test", Development: true}))
	assert.NotNil(t, Get().Zap())
	Sync()
}

func TestLogger_With(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := New(zap.New(core)).With(zap.String("booking_id", "b-1"))

	l.Info("booking confirmed")
	l.Debug("hidden")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "booking confirmed", entries[0].Message)
	assert.Equal(t, "b-1", entries[0].ContextMap()["booking_id"])
}
