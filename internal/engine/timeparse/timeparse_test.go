package timeparse

import (
	"testing"
	"time"

	"github.com/bascanada/logmerge/internal/engine/entry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeString(t *testing.T) {
	t.Run("RFC3339 with timezone", func(t *testing.T) {
		ts, ok := ParseTimeString("2024-01-02T10:00:00Z", time.Time{})
		require.True(t, ok)
		want, _ := time.Parse(time.RFC3339, "2024-01-02T10:00:00Z")
		assert.Equal(t, want.UnixMilli(), ts)
	})

	t.Run("ISO without timezone assumed local", func(t *testing.T) {
		ts, ok := ParseTimeString("2024-01-02T10:00:00", time.Time{})
		require.True(t, ok)
		want, _ := time.ParseInLocation("2006-01-02T15:04:05", "2024-01-02T10:00:00", time.Local)
		assert.Equal(t, want.UnixMilli(), ts)
	})

	t.Run("empty string fails", func(t *testing.T) {
		_, ok := ParseTimeString("", time.Time{})
		assert.False(t, ok)
	})

	t.Run("syslog style infers year from file mtime", func(t *testing.T) {
		mtime := time.Date(2024, time.March, 15, 0, 0, 0, 0, time.Local)
		ts, ok := ParseTimeString("Mar 10 08:30:00", mtime)
		require.True(t, ok)
		want := time.Date(2024, time.March, 10, 8, 30, 0, 0, time.Local)
		assert.Equal(t, want.UnixMilli(), ts)
	})

	t.Run("syslog style rolls back a year across rotation boundary", func(t *testing.T) {
		mtime := time.Date(2024, time.January, 2, 0, 0, 0, 0, time.Local)
		ts, ok := ParseTimeString("Dec 31 23:00:00", mtime)
		require.True(t, ok)
		want := time.Date(2023, time.December, 31, 23, 0, 0, 0, time.Local)
		assert.Equal(t, want.UnixMilli(), ts)
	})
}

func TestParser_ParseLine_MonotonicBump(t *testing.T) {
	p := NewParser(time.Time{})
	first := p.ParseLine("2024-01-02T10:00:00Z line one")
	second := p.ParseLine("2024-01-02T10:00:00Z line two")
	assert.Equal(t, first+1, second)
}

func TestGuessLevel(t *testing.T) {
	cases := []struct {
		line string
		want entry.Level
	}{
		{"this is an ERROR in the pipeline", entry.LevelError},
		{"warning: disk almost full", entry.LevelWarn},
		{"DEBUG starting worker", entry.LevelDebug},
		{"just a regular message", entry.LevelInfo},
		{"fatal: crash", entry.LevelError},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, GuessLevel(c.line), c.line)
	}
}
