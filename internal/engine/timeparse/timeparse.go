// Package timeparse converts extracted time strings into monotonic
// epoch-millisecond timestamps, and guesses a log line's severity level.
package timeparse

import (
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/bascanada/logmerge/internal/engine/entry"
)

var syslogRe = regexp.MustCompile(`^([A-Z][a-z]{2})\s+(\d{1,2})\s+(\d{2}):(\d{2}):(\d{2})(?:\.(\d{1,3}))?`)

// isoRe locates an ISO-8601 timestamp embedded in a raw line ("T" or space
// separated, optional fraction, optional Z/offset).
var isoRe = regexp.MustCompile(`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(?:\.\d{1,9})?(?:Z|[+-]\d{2}:\d{2})?`)

var monthByAbbrev = map[string]time.Month{
	"Jan": time.January, "Feb": time.February, "Mar": time.March,
	"Apr": time.April, "May": time.May, "Jun": time.June,
	"Jul": time.July, "Aug": time.August, "Sep": time.September,
	"Oct": time.October, "Nov": time.November, "Dec": time.December,
}

// Parser converts a raw line's embedded time string into an epoch-ms
// timestamp, bumping runs of identical timestamps within a single file to
// keep intra-file order stable.
type Parser struct {
	fileMtime   time.Time
	lastRaw     int64
	lastEmitted int64
	haveLast    bool
}

// NewParser creates a TimeParser for one input file. fileMtime is used to
// disambiguate the year for syslog-style timestamps that carry no year.
func NewParser(fileMtime time.Time) *Parser {
	return &Parser{fileMtime: fileMtime}
}

// ParseLine attempts, in order: ISO-8601 with timezone, ISO-8601 without
// timezone (assumed local), syslog "Mon DD HH:MM:SS[.mmm]" (year inferred),
// and finally falls back to wall-clock. When consecutive lines within one
// file produce an identical raw timestamp, each later one is bumped +1ms
// past the previous emission so intra-file order survives a sort on ts.
func (p *Parser) ParseLine(line string) int64 {
	raw := p.parseRaw(line)
	ts := raw
	if p.haveLast && raw == p.lastRaw {
		ts = p.lastEmitted + 1
	}
	p.lastRaw = raw
	p.lastEmitted = ts
	p.haveLast = true
	return ts
}

// ParseTimeString parses an already-extracted time field, without the
// monotonic intra-file bump ParseLine applies.
func ParseTimeString(s string, fileMtime time.Time) (int64, bool) {
	if s == "" {
		return 0, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UnixMilli(), true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UnixMilli(), true
	}
	isoLocalFormats := []string{
		"2006-01-02T15:04:05.000",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05.000",
		"2006-01-02 15:04:05",
	}
	for _, f := range isoLocalFormats {
		if t, err := time.ParseInLocation(f, s, time.Local); err == nil {
			return t.UnixMilli(), true
		}
	}
	if m := syslogRe.FindStringSubmatch(s); m != nil {
		if ts, ok := syslogToEpochMs(m, fileMtime); ok {
			return ts, true
		}
	}
	return 0, false
}

func (p *Parser) parseRaw(line string) int64 {
	if m := isoRe.FindString(line); m != "" {
		if ts, ok := ParseTimeString(m, p.fileMtime); ok {
			return ts
		}
	}
	if ts, ok := ParseTimeString(strings.TrimSpace(line), p.fileMtime); ok {
		return ts
	}
	return time.Now().UnixMilli()
}

// syslogToEpochMs resolves the "Mon DD HH:MM:SS[.mmm]" format. The year is
// taken from the file's mtime (the current time only when the mtime is
// unknown), decremented by one when the resulting timestamp would land more
// than 30 days after that reference (handles year-end log rotation). The
// current date's year is not consulted when an mtime is known.
func syslogToEpochMs(m []string, fileMtime time.Time) (int64, bool) {
	month, ok := monthByAbbrev[m[1]]
	if !ok {
		return 0, false
	}
	day, _ := strconv.Atoi(m[2])
	hour, _ := strconv.Atoi(m[3])
	min, _ := strconv.Atoi(m[4])
	sec, _ := strconv.Atoi(m[5])
	msec := 0
	if m[6] != "" {
		msPadded := (m[6] + "000")[:3]
		msec, _ = strconv.Atoi(msPadded)
	}

	ref := fileMtime
	if ref.IsZero() {
		ref = time.Now()
	}
	year := ref.Year()
	t := time.Date(year, month, day, hour, min, sec, msec*int(time.Millisecond), time.Local)
	if t.After(ref.AddDate(0, 0, 30)) {
		t = time.Date(year-1, month, day, hour, min, sec, msec*int(time.Millisecond), time.Local)
	}
	return t.UnixMilli(), true
}

var levelTokens = []struct {
	token string
	level entry.Level
}{
	{"error", entry.LevelError},
	{"err", entry.LevelError},
	{"fatal", entry.LevelError},
	{"panic", entry.LevelError},
	{"warn", entry.LevelWarn},
	{"warning", entry.LevelWarn},
	{"debug", entry.LevelDebug},
	{"trace", entry.LevelDebug},
	{"info", entry.LevelInfo},
}

// GuessLevel scans a line case-insensitively for standard severity tokens,
// defaulting to Info when nothing matches.
func GuessLevel(line string) entry.Level {
	lower := strings.ToLower(line)
	for _, lt := range levelTokens {
		if strings.Contains(lower, lt.token) {
			return lt.level
		}
	}
	return entry.LevelInfo
}

// FileMtime is a small helper so callers don't need to import os directly
// just to build a timeparse.Parser.
func FileMtime(path string) time.Time {
	fi, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return fi.ModTime()
}
