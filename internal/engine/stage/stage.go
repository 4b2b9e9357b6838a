// Package stage reads one producer's rotated log files newest-to-oldest,
// parses and time-corrects each line, and writes a descending-by-ts NDJSON
// staging file for the merger to consume.
package stage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/bascanada/logmerge/internal/engine/entry"
	"github.com/bascanada/logmerge/internal/engine/linereader"
	"github.com/bascanada/logmerge/internal/engine/parser"
	"github.com/bascanada/logmerge/internal/engine/timeparse"
	"github.com/bascanada/logmerge/internal/engine/tzcorrect"
)

var rotationSuffixRe = regexp.MustCompile(`\.log(?:\.(\d+))?$`)

// TypeKeyOf derives the producer group name from a file's base name,
// stripping a trailing ".log" or ".log.N" rotation suffix.
func TypeKeyOf(baseName string) string {
	m := rotationSuffixRe.FindStringSubmatchIndex(baseName)
	if m == nil {
		return baseName
	}
	return baseName[:m[0]]
}

// rotationIndexOf returns the rotation number of a base name (0 for the
// live "foo.log", N for "foo.log.N"), used to order files newest-first.
func rotationIndexOf(baseName string) int {
	m := rotationSuffixRe.FindStringSubmatch(baseName)
	if m == nil || m[1] == "" {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

// FileGroup is one producer's ordered set of rotated files, newest first.
type FileGroup struct {
	TypeKey string
	Files   []string // absolute paths, ordered newest -> oldest
}

// GroupFilesByType scans dir non-recursively for "*.log" / "*.log.N"
// files and groups them by type key, each group's files ordered
// newest-to-oldest.
func GroupFilesByType(dir string) ([]FileGroup, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("stage: read dir %s: %w", dir, err)
	}
	byType := map[string][]string{}
	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		name := de.Name()
		if !rotationSuffixRe.MatchString(name) {
			continue
		}
		tk := TypeKeyOf(name)
		byType[tk] = append(byType[tk], filepath.Join(dir, name))
	}
	var groups []FileGroup
	for tk, files := range byType {
		sort.Slice(files, func(i, j int) bool {
			return rotationIndexOf(filepath.Base(files[i])) < rotationIndexOf(filepath.Base(files[j]))
		})
		groups = append(groups, FileGroup{TypeKey: tk, Files: files})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].TypeKey < groups[j].TypeKey })
	return groups, nil
}

// Warner receives non-fatal warnings (an unreadable raw file, a malformed
// line) so the caller can surface them without the stager failing the
// whole session over a single bad input.
type Warner func(format string, args ...any)

// Options tunes the stager's preflight and timezone-correction behavior.
type Options struct {
	Rules           *parser.RuleSet
	JumpThresholdMs int64
	MinSuspectLines int
	Warn            Warner
}

const preflightSampleLines = 32

// sampleLinesForPreflight reads up to preflightSampleLines lines from the
// head of path, for parser.ShouldUseParserForFile's bounded preflight.
func sampleLinesForPreflight(path string) []string {
	fr, err := linereader.OpenForward(path)
	if err != nil {
		return nil
	}
	defer fr.Close()
	lines, _ := fr.NextLines(preflightSampleLines)
	return lines
}

// StageType runs the PerTypeStager for one file group: reads every file
// tail-to-head, parses and time-corrects each line, sorts the result
// descending by ts, and writes it to {typeKey}.jsonl under stagingDir.
func StageType(group FileGroup, stagingDir string, opts Options) (string, int, error) {
	warn := opts.Warn
	if warn == nil {
		warn = func(string, ...any) {}
	}

	var rule *parser.Rule
	if opts.Rules != nil {
		rule = opts.Rules.MatchRuleForPath(group.TypeKey + ".log")
		if rule != nil && len(group.Files) > 0 {
			sample := sampleLinesForPreflight(group.Files[0])
			if !parser.ShouldUseParserForFile(rule, sample) {
				rule = nil
			}
		}
	}

	corrector := tzcorrect.NewWithTunables(opts.JumpThresholdMs, opts.MinSuspectLines)

	var buf []entry.LogEntry
	seq := 0

	for _, path := range group.Files {
		if err := stageOneFile(path, group.TypeKey, rule, corrector, &buf, &seq); err != nil {
			warn("stage: skipping unreadable file %s: %v", path, err)
			continue
		}
	}
	corrector.FinalizeSuspected()

	sort.SliceStable(buf, func(i, j int) bool { return buf[i].Ts > buf[j].Ts })

	outPath := filepath.Join(stagingDir, group.TypeKey+".jsonl")
	if err := writeJSONL(outPath, buf); err != nil {
		return "", 0, err
	}
	return outPath, len(buf), nil
}

func stageOneFile(path, typeKey string, rule *parser.Rule, corrector *tzcorrect.Corrector, buf *[]entry.LogEntry, seq *int) error {
	rr, err := linereader.OpenReverse(path)
	if err != nil {
		return err
	}
	defer rr.Close()

	mtime := timeparse.FileMtime(path)
	tp := timeparse.NewParser(mtime)

	for {
		line, err := rr.NextLine()
		if err != nil {
			break
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		var parsed *entry.Parsed
		if rule != nil {
			p := rule.Extract(line)
			if p.GatePassed() {
				parsed = p
			}
		}

		ts := tp.ParseLine(line)
		if parsed != nil && parsed.Time != "" {
			if resolved, ok := timeparse.ParseTimeString(parsed.Time, mtime); ok {
				ts = resolved
			}
		}

		e := entry.LogEntry{
			ID:     int64(*seq),
			Ts:     ts,
			Level:  timeparse.GuessLevel(line),
			Type:   typeKey,
			Source: typeKey,
			Text:   line,
			Parsed: parsed,
		}
		idx := len(*buf)
		*buf = append(*buf, e)

		corrected := corrector.Adjust(e.Ts, idx)
		(*buf)[idx].Ts = corrected
		for _, seg := range corrector.DrainRetroSegments() {
			for j := seg.Start; j <= seg.End && j < len(*buf); j++ {
				(*buf)[j].Ts += seg.DeltaMs
			}
		}

		*seq++
	}
	return nil
}

func writeJSONL(path string, entries []entry.LogEntry) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("stage: create %s: %w", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("stage: encode entry into %s: %w", path, err)
		}
	}
	return nil
}
