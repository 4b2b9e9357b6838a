package log

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigure_Stdout(t *testing.T) {
	logger := Configure(&Options{Stdout: true, Level: "INFO"})
	assert.NotNil(t, logger)
	assert.True(t, logger.Enabled(nil, slog.LevelInfo))
	assert.False(t, logger.Enabled(nil, slog.LevelDebug))
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"TRACE", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.in))
		})
	}
}

func TestConfigure_DiscardsByDefault(t *testing.T) {
	logger := Configure(&Options{Level: "ERROR"})
	assert.NotNil(t, logger)
	assert.True(t, logger.Enabled(nil, slog.LevelError))
	assert.False(t, logger.Enabled(nil, slog.LevelWarn))
}
