package log

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/bascanada/logmerge/internal/engine/entry"
)

// ColorState tracks whether colorized CLI output is currently enabled.
type ColorState struct {
	enabled bool
}

var globalColorState = &ColorState{}

// InitColorState mirrors the priority order of an explicit flag, then
// NO_COLOR, then TTY auto-detection, then disabled.
func InitColorState(explicitSetting *bool, writer io.Writer) {
	if explicitSetting != nil {
		color.NoColor = !*explicitSetting
		globalColorState.enabled = *explicitSetting
		return
	}

	if os.Getenv("NO_COLOR") != "" {
		color.NoColor = true
		globalColorState.enabled = false
		return
	}

	if f, ok := writer.(*os.File); ok {
		globalColorState.enabled = isatty.IsTerminal(f.Fd())
		color.NoColor = !globalColorState.enabled
		return
	}

	color.NoColor = true
	globalColorState.enabled = false
}

// IsColorEnabled reports whether colorized output is currently active.
func IsColorEnabled() bool {
	return globalColorState.enabled
}

var levelColors = map[entry.Level]*color.Color{
	entry.LevelDebug: color.New(color.FgWhite),
	entry.LevelInfo:  color.New(color.FgCyan),
	entry.LevelWarn:  color.New(color.FgYellow),
	entry.LevelError: color.New(color.FgRed, color.Bold),
}

// FormatEntry renders a single entry for a human terminal, colorizing the
// level when color is enabled. Used by the page CLI command in --pretty
// mode; NDJSON output never goes through this path.
func FormatEntry(e entry.LogEntry) string {
	level := string(e.Level)
	if c, ok := levelColors[e.Level]; ok {
		level = c.Sprint(level)
	}
	return fmt.Sprintf("[%s] %s %s: %s", level, e.Source, e.Type, e.Text)
}
