// Package pagination layers a logical, ascending 1-based index onto the
// physically descending-by-ts chunk storage, with optional filtering and
// full-scan search, guarded by a monotonically increasing version counter
// so stale reads can be detected and dropped by the caller.
package pagination

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/bascanada/logmerge/internal/engine/entry"
	"github.com/bascanada/logmerge/internal/engine/filter"
	"github.com/bascanada/logmerge/internal/engine/paged"
)

// SearchOptions tunes a SearchAll call.
type SearchOptions struct {
	Regex         bool
	CaseSensitive bool
	StartAsc      int // 1-based logical range, 0 means unset
	EndAsc        int
	Top           int // 0 means unbounded
}

// Hit is one SearchAll match.
type Hit struct {
	Idx  int // logical ascending index
	Text string
}

// Service is the session-scoped pagination façade. It holds at most one
// open manifest directory and one active filter at a time.
type Service struct {
	mu sync.RWMutex

	version int

	dir    string
	reader *paged.Reader

	f             *filter.Filter
	filteredIndex []int // ascending physical 0-based indices, active only when f != nil

	warmActive bool
	warmTotal  int
}

// New returns an empty, unopened Service.
func New() *Service { return &Service{} }

// Version returns the current version counter.
func (s *Service) Version() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// SetManifestDir opens (or reopens) dir's manifest, clears any active
// filter, and bumps version.
func (s *Service) SetManifestDir(dir string) error {
	r, err := paged.Open(dir)
	if err != nil {
		return fmt.Errorf("pagination: open manifest dir %s: %w", dir, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dir = dir
	s.reader = r
	s.f = nil
	s.filteredIndex = nil
	s.warmActive = false
	s.warmTotal = 0
	s.version++
	return nil
}

// Reload re-opens the manifest at the current directory, picking up any
// chunks/entries written since the last open.
func (s *Service) Reload() error {
	s.mu.RLock()
	dir := s.dir
	s.mu.RUnlock()
	if dir == "" {
		return fmt.Errorf("pagination: reload called with no manifest dir set")
	}
	return s.SetManifestDir(dir)
}

// SetWarmup installs a provisional total (the warm-up prepass result)
// ahead of the full manifest being ready, and bumps version.
func (s *Service) SetWarmup(total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warmActive = true
	s.warmTotal = total
	s.version++
}

// ClearWarmup ends warm-up mode (the full merge has caught up) and bumps
// version.
func (s *Service) ClearWarmup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warmActive = false
	s.version++
}

// IsWarmupActive reports whether a warm-up result is still standing in
// for the full manifest.
func (s *Service) IsWarmupActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.warmActive
}

// GetWarmTotal returns the warm-up prepass's delivered line count.
func (s *Service) GetWarmTotal() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.warmTotal
}

// GetManifestDir returns the currently open manifest directory, if any.
func (s *Service) GetManifestDir() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dir
}

// GetFileTotal returns the unfiltered mergedLines count.
func (s *Service) GetFileTotal() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.reader == nil {
		return 0
	}
	return s.reader.GetTotalLines()
}

// SetFilter installs f (nil clears it), rebuilding the filtered index by
// streaming the whole manifest once. Bumps version.
func (s *Service) SetFilter(ctx context.Context, f *filter.Filter) error {
	s.mu.Lock()
	reader := s.reader
	total := 0
	if reader != nil {
		total = reader.GetTotalLines()
	}
	s.mu.Unlock()

	if f == nil || reader == nil {
		s.mu.Lock()
		s.f = nil
		s.filteredIndex = nil
		s.version++
		s.mu.Unlock()
		return nil
	}

	const scanBatch = 4096
	idx := make([]int, 0)
	for start := 0; start < total; start += scanBatch {
		end := start + scanBatch
		if end > total {
			end = total
		}
		entries, err := reader.ReadLineRange(ctx, start, end, true)
		if err != nil {
			return fmt.Errorf("pagination: scan for filter: %w", err)
		}
		for i, e := range entries {
			if f.Match(e) {
				idx = append(idx, start+i)
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.f = f
	s.filteredIndex = idx
	s.version++
	return nil
}

// GetFilteredTotal returns the size of the active filtered index, or the
// unfiltered total when no filter is active.
func (s *Service) GetFilteredTotal() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.f != nil {
		return len(s.filteredIndex)
	}
	if s.reader == nil {
		return 0
	}
	return s.reader.GetTotalLines()
}

// Page is one readRangeByIdx result: the logical ascending entries plus
// the version captured at generation time.
type Page struct {
	StartIdx int
	EndIdx   int
	Logs     []entry.LogEntry
	Version  int
}

// ReadRangeByIdx returns the logical ascending-ts range [startIdxAsc,
// endIdxAsc] (1-based, inclusive), converting through the physical
// descending index space and, when a filter is active, through the
// filtered index. Contiguous physical ranges are consolidated into the
// minimum number of underlying reads.
func (s *Service) ReadRangeByIdx(ctx context.Context, startIdxAsc, endIdxAsc int) (Page, error) {
	s.mu.RLock()
	reader := s.reader
	f := s.f
	filteredIndex := s.filteredIndex
	version := s.version
	s.mu.RUnlock()

	if reader == nil {
		return Page{Version: version}, fmt.Errorf("pagination: no manifest open")
	}

	total := reader.GetTotalLines()
	if f != nil {
		total = len(filteredIndex)
	}
	if startIdxAsc < 1 {
		startIdxAsc = 1
	}
	if endIdxAsc > total {
		endIdxAsc = total
	}
	if startIdxAsc > endIdxAsc {
		return Page{StartIdx: startIdxAsc, EndIdx: endIdxAsc, Version: version}, nil
	}

	out, err := s.readRangeAtVersion(ctx, reader, f, filteredIndex, total, startIdxAsc, endIdxAsc, version)
	if err != nil {
		return Page{Version: version}, err
	}
	return Page{StartIdx: startIdxAsc, EndIdx: endIdxAsc, Logs: out, Version: version}, nil
}

// SearchAll performs a single forward pass over the (filtered) logical
// space, returning up to opts.Top hits honoring an optional logical range.
func (s *Service) SearchAll(ctx context.Context, query string, opts SearchOptions) ([]Hit, int, error) {
	s.mu.RLock()
	reader := s.reader
	f := s.f
	filteredIndex := s.filteredIndex
	version := s.version
	s.mu.RUnlock()

	if reader == nil {
		return nil, version, fmt.Errorf("pagination: no manifest open")
	}

	total := reader.GetTotalLines()
	if f != nil {
		total = len(filteredIndex)
	}

	startAsc := 1
	endAsc := total
	if opts.StartAsc > 0 {
		startAsc = opts.StartAsc
	}
	if opts.EndAsc > 0 && opts.EndAsc < endAsc {
		endAsc = opts.EndAsc
	}

	var re *regexp.Regexp
	if opts.Regex {
		pattern := query
		if !opts.CaseSensitive {
			pattern = "(?i)" + pattern
		}
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			return nil, version, fmt.Errorf("pagination: invalid search regex: %w", err)
		}
		re = compiled
	}

	matches := func(text string) bool {
		if re != nil {
			return re.MatchString(text)
		}
		if opts.CaseSensitive {
			return strings.Contains(text, query)
		}
		return strings.Contains(strings.ToLower(text), strings.ToLower(query))
	}

	const scanBatch = 4096
	var hits []Hit
	for start := startAsc; start <= endAsc; start += scanBatch {
		select {
		case <-ctx.Done():
			return hits, version, nil
		default:
		}

		end := start + scanBatch - 1
		if end > endAsc {
			end = endAsc
		}

		page, err := s.readRangeAtVersion(ctx, reader, f, filteredIndex, total, start, end, version)
		if err != nil {
			return hits, version, err
		}
		for k, e := range page {
			text := e.Text
			if matches(text) {
				hits = append(hits, Hit{Idx: start + k, Text: text})
				if opts.Top > 0 && len(hits) >= opts.Top {
					return hits, version, nil
				}
			}
		}
	}

	return hits, version, nil
}

// readRangeAtVersion is the physical-mapping logic shared by ReadRangeByIdx
// and SearchAll, run against a captured snapshot, so SearchAll's long scan
// never has to re-acquire the lock mid-pass.
func (s *Service) readRangeAtVersion(ctx context.Context, reader *paged.Reader, f *filter.Filter, filteredIndex []int, total, startIdxAsc, endIdxAsc, _ int) ([]entry.LogEntry, error) {
	physOf := func(idxAsc int) int {
		p := total - idxAsc + 1 - 1
		if f != nil {
			if p < 0 || p >= len(filteredIndex) {
				return -1
			}
			return filteredIndex[p]
		}
		return p
	}

	physIdxs := make([]int, 0, endIdxAsc-startIdxAsc+1)
	for i := startIdxAsc; i <= endIdxAsc; i++ {
		if p := physOf(i); p >= 0 {
			physIdxs = append(physIdxs, p)
		}
	}
	for l, r := 0, len(physIdxs)-1; l < r; l, r = l+1, r-1 {
		physIdxs[l], physIdxs[r] = physIdxs[r], physIdxs[l]
	}

	byPhys := make(map[int]entry.LogEntry, len(physIdxs))
	runStart := 0
	for runStart < len(physIdxs) {
		runEnd := runStart + 1
		for runEnd < len(physIdxs) && physIdxs[runEnd] == physIdxs[runEnd-1]+1 {
			runEnd++
		}
		lo := physIdxs[runStart]
		hi := physIdxs[runEnd-1] + 1
		entries, err := reader.ReadLineRange(ctx, lo, hi, true)
		if err != nil {
			return nil, err
		}
		for k, e := range entries {
			byPhys[lo+k] = e
		}
		runStart = runEnd
	}

	out := make([]entry.LogEntry, 0, endIdxAsc-startIdxAsc+1)
	for i := startIdxAsc; i <= endIdxAsc; i++ {
		if e, ok := byPhys[physOf(i)]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}
