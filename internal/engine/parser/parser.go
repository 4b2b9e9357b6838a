// Package parser compiles a declarative rule set and extracts
// time/process/pid/message fields from raw log lines.
package parser

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bascanada/logmerge/internal/engine/entry"
)

// preflightSampleLines is how many leading non-blank lines ShouldUse scans
// before deciding whether a rule applies to a file.
const preflightSampleLines = 32

// preflightMinMatchRatio is the fraction of sampled lines whose time
// extractor must match for ShouldUse to accept the rule for a file.
const preflightMinMatchRatio = 0.5

// RawRule is the JSON-decoded shape of one entry in a parser template
// (version 1): {"match": glob, "time"/"process"/"pid"/"message": extractor}.
type RawRule struct {
	Match   string `json:"match"`
	Time    string `json:"time,omitempty"`
	Process string `json:"process,omitempty"`
	Pid     string `json:"pid,omitempty"`
	Message string `json:"message,omitempty"`
}

// Template is the top-level parser configuration document.
type Template struct {
	Version int       `json:"version"`
	Rules   []RawRule `json:"rules"`
}

// extractor is a compiled regex used to pull one field out of a line. The
// template format allows named groups (`(?P<name>...)` or `(?<name>...)`);
// extract prefers a group named after the field, then falls back to the
// first non-empty capture group; the whole match is used only when the
// pattern has no capture groups.
type extractor struct {
	re       *regexp.Regexp
	namedIdx int // index of the group matching the field name, or -1
}

func compileExtractor(pattern string) (*extractor, error) {
	if pattern == "" {
		return nil, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("parser: invalid extractor %q: %w", pattern, err)
	}
	return &extractor{re: re, namedIdx: -1}, nil
}

// extract runs the extractor against a line and returns the preferred
// capture group, or the whole match when the pattern has no groups.
func (x *extractor) extract(line string) (string, bool) {
	if x == nil {
		return "", false
	}
	m := x.re.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	if x.namedIdx >= 0 && x.namedIdx < len(m) && strings.TrimSpace(m[x.namedIdx]) != "" {
		return strings.TrimSpace(m[x.namedIdx]), true
	}
	if len(m) > 1 {
		for _, g := range m[1:] {
			if strings.TrimSpace(g) != "" {
				return strings.TrimSpace(g), true
			}
		}
		return "", false
	}
	return strings.TrimSpace(m[0]), true
}

// bindNamedGroup records which capture group (if any) is named after
// fieldName, so extract can prefer it over positional capture order.
func (x *extractor) bindNamedGroup(fieldName string) {
	if x == nil {
		return
	}
	for i, n := range x.re.SubexpNames() {
		if n == fieldName {
			x.namedIdx = i
			return
		}
	}
}

// Rule is a compiled ParserRule: a glob match predicate plus four
// extractors.
type Rule struct {
	match   string
	time    *extractor
	process *extractor
	pid     *extractor
	message *extractor
}

// Compile builds a Rule from its JSON declaration, compiling every
// extractor once.
func Compile(raw RawRule) (*Rule, error) {
	if raw.Match == "" {
		return nil, fmt.Errorf("parser: rule is missing a match glob")
	}
	r := &Rule{match: raw.Match}
	var err error
	if r.time, err = compileExtractor(raw.Time); err != nil {
		return nil, err
	}
	r.time.bindNamedGroup("time")
	if r.process, err = compileExtractor(raw.Process); err != nil {
		return nil, err
	}
	r.process.bindNamedGroup("process")
	if r.pid, err = compileExtractor(raw.Pid); err != nil {
		return nil, err
	}
	r.pid.bindNamedGroup("pid")
	if r.message, err = compileExtractor(raw.Message); err != nil {
		return nil, err
	}
	r.message.bindNamedGroup("message")
	return r, nil
}

// Extract returns the parsed fields for a single line. Every returned
// field is already trimmed.
func (r *Rule) Extract(line string) *entry.Parsed {
	p := &entry.Parsed{}
	if v, ok := r.time.extract(line); ok {
		p.Time = v
	}
	if v, ok := r.process.extract(line); ok {
		p.Process = v
	}
	if v, ok := r.pid.extract(line); ok {
		p.Pid = v
	}
	if v, ok := r.message.extract(line); ok {
		p.Message = v
	}
	return p
}

// RuleSet is a compiled parser template: an ordered list of rules matched
// by first-declared order on ties.
type RuleSet struct {
	rules []*Rule
}

// CompileRuleSet compiles every rule in a Template, refusing the whole set
// if any rule fails to compile (a fatal configuration error to the caller).
func CompileRuleSet(tmpl Template) (*RuleSet, error) {
	rs := &RuleSet{}
	for i, raw := range tmpl.Rules {
		rule, err := Compile(raw)
		if err != nil {
			return nil, fmt.Errorf("parser: rule %d: %w", i, err)
		}
		rs.rules = append(rs.rules, rule)
	}
	return rs, nil
}

// LoadTemplate decodes a version-1 parser template from JSON bytes.
func LoadTemplate(data []byte) (Template, error) {
	var t Template
	if err := json.Unmarshal(data, &t); err != nil {
		return t, fmt.Errorf("parser: invalid template json: %w", err)
	}
	if t.Version != 1 {
		return t, fmt.Errorf("parser: unsupported template version %d", t.Version)
	}
	return t, nil
}

// MatchRuleForPath picks the rule whose glob matches the given
// basename-relative path. Deterministic on ties: first-declared order.
func (rs *RuleSet) MatchRuleForPath(relPath string) *Rule {
	base := filepath.Base(relPath)
	for _, r := range rs.rules {
		if matchGlob(r.match, base) || matchGlob(r.match, relPath) {
			return r
		}
	}
	return nil
}

// matchGlob matches path-style globs that may contain "**" recursive
// segments, which filepath.Match does not understand on its own. A "**"
// segment consumes zero or more path segments; every other segment is
// matched with filepath.Match's usual *, ?, and [...] semantics.
func matchGlob(pattern, name string) bool {
	patSegs := strings.Split(pattern, "/")
	nameSegs := strings.Split(name, "/")
	return matchSegs(patSegs, nameSegs)
}

func matchSegs(pat, name []string) bool {
	if len(pat) == 0 {
		return len(name) == 0
	}
	if pat[0] == "**" {
		if matchSegs(pat[1:], name) {
			return true
		}
		if len(name) == 0 {
			return false
		}
		return matchSegs(pat, name[1:])
	}
	if len(name) == 0 {
		return false
	}
	if ok, _ := filepath.Match(pat[0], name[0]); !ok {
		return false
	}
	return matchSegs(pat[1:], name[1:])
}

// ShouldUseParserForFile performs the bounded preflight: it scans up to
// preflightSampleLines non-blank lines and returns true if at least
// preflightMinMatchRatio of them match the rule's time extractor.
func ShouldUseParserForFile(rule *Rule, sampleLines []string) bool {
	if rule == nil || rule.time == nil {
		return false
	}
	matched := 0
	sampled := 0
	for _, line := range sampleLines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		sampled++
		if rule.time.re.MatchString(line) {
			matched++
		}
		if sampled >= preflightSampleLines {
			break
		}
	}
	if sampled == 0 {
		return false
	}
	return float64(matched)/float64(sampled) >= preflightMinMatchRatio
}
