package session

import (
	"container/heap"
	"context"
	"sort"
	"strings"

	"github.com/bascanada/logmerge/internal/engine/entry"
	"github.com/bascanada/logmerge/internal/engine/linereader"
	"github.com/bascanada/logmerge/internal/engine/parser"
	"github.com/bascanada/logmerge/internal/engine/stage"
	"github.com/bascanada/logmerge/internal/engine/timeparse"
	"github.com/bascanada/logmerge/internal/engine/tzcorrect"
)

// warmupTailChunk bounds how many lines a single tail-walker pull asks
// for at once, to keep I/O granular enough for cooperative cancellation.
const warmupTailChunk = 64

// typeTailWalker pulls lines tail-to-head across one type's ordered,
// rotated files, opening the next file lazily as each one is exhausted.
type typeTailWalker struct {
	files     []string
	fileIdx   int
	rr        *linereader.ReverseLineReader
	exhausted bool
}

func newTypeTailWalker(files []string) *typeTailWalker {
	return &typeTailWalker{files: files}
}

func (w *typeTailWalker) ensureReader() {
	for w.rr == nil && w.fileIdx < len(w.files) {
		rr, err := linereader.OpenReverse(w.files[w.fileIdx])
		if err != nil {
			w.fileIdx++
			continue
		}
		w.rr = rr
	}
	if w.rr == nil && w.fileIdx >= len(w.files) {
		w.exhausted = true
	}
}

type tailLine struct {
	line string
	file string
}

func (w *typeTailWalker) next(n int) []tailLine {
	if w.exhausted {
		return nil
	}
	w.ensureReader()
	var out []tailLine
	for len(out) < n && !w.exhausted {
		if w.rr == nil {
			w.exhausted = true
			break
		}
		line, err := w.rr.NextLine()
		if err != nil {
			w.rr.Close()
			w.rr = nil
			w.fileIdx++
			w.ensureReader()
			continue
		}
		out = append(out, tailLine{line: line, file: w.files[w.fileIdx]})
	}
	return out
}

func (w *typeTailWalker) close() {
	if w.rr != nil {
		w.rr.Close()
		w.rr = nil
	}
}

// WarmupOptions tunes the bounded tail prepass.
type WarmupOptions struct {
	Target          int // total lines to deliver; default 500
	PerTypeLimit    int // 0 means unbounded
	Rules           *parser.RuleSet
	JumpThresholdMs int64
	MinSuspectLines int
}

// RunWarmup delivers up to opts.Target globally-newest lines across
// groups without waiting for the full staged merge, by pulling a bounded
// tail allocation per type, redistributing any deficit round-robin, and
// k-way merging the small in-memory result.
func RunWarmup(ctx context.Context, groups []stage.FileGroup, opts WarmupOptions) []entry.LogEntry {
	target := opts.Target
	if target <= 0 {
		target = 500
	}
	perTypeCap := opts.PerTypeLimit
	if perTypeCap <= 0 {
		perTypeCap = 1 << 30
	}
	if len(groups) == 0 {
		return nil
	}

	n := len(groups)
	base := target / n
	rem := target % n
	alloc := make(map[string]int, n)
	walkers := make(map[string]*typeTailWalker, n)
	buffers := make(map[string][]entry.LogEntry, n)

	for _, g := range groups {
		want := base
		if rem > 0 {
			want++
			rem--
		}
		if want > perTypeCap {
			want = perTypeCap
		}
		alloc[g.TypeKey] = want
		walkers[g.TypeKey] = newTypeTailWalker(g.Files)
		buffers[g.TypeKey] = nil
	}
	defer func() {
		for _, w := range walkers {
			w.close()
		}
	}()

	parsers := make(map[string]*timeparse.Parser)
	toEntry := func(typeKey, fileName, line string) entry.LogEntry {
		var rule *parser.Rule
		if opts.Rules != nil {
			rule = opts.Rules.MatchRuleForPath(typeKey + ".log")
		}
		mtime := timeparse.FileMtime(fileName)
		var parsed *entry.Parsed
		if rule != nil {
			p := rule.Extract(line)
			if p.GatePassed() {
				parsed = p
			}
		}
		tp, ok := parsers[fileName]
		if !ok {
			tp = timeparse.NewParser(mtime)
			parsers[fileName] = tp
		}
		ts := tp.ParseLine(line)
		if parsed != nil && parsed.Time != "" {
			if resolved, ok := timeparse.ParseTimeString(parsed.Time, mtime); ok {
				ts = resolved
			}
		}
		return entry.LogEntry{
			Ts:     ts,
			Level:  timeparse.GuessLevel(line),
			Type:   typeKey,
			Source: typeKey,
			Text:   line,
			Parsed: parsed,
		}
	}

	batchRead := func(typeKey string, need int) int {
		if need <= 0 {
			return 0
		}
		w := walkers[typeKey]
		got := 0
		for got < need && !w.exhausted {
			select {
			case <-ctx.Done():
				return got
			default:
			}
			n := warmupTailChunk
			if need-got < n {
				n = need - got
			}
			part := w.next(n)
			if len(part) == 0 {
				break
			}
			for _, tl := range part {
				if strings.TrimSpace(tl.line) == "" {
					continue
				}
				buffers[typeKey] = append(buffers[typeKey], toEntry(typeKey, tl.file, tl.line))
				got++
			}
		}
		return got
	}

	total := 0
	typeKeys := make([]string, 0, n)
	for _, g := range groups {
		typeKeys = append(typeKeys, g.TypeKey)
	}
	sort.Strings(typeKeys)
	for _, k := range typeKeys {
		total += batchRead(k, alloc[k])
	}

	deficit := target - total
	if deficit > 0 {
		for deficit > 0 {
			progressed := false
			for _, k := range typeKeys {
				if deficit <= 0 {
					break
				}
				room := perTypeCap - len(buffers[k])
				if room <= 0 || walkers[k].exhausted {
					continue
				}
				take := warmupTailChunk
				if take > room {
					take = room
				}
				if take > deficit {
					take = deficit
				}
				got := batchRead(k, take)
				if got > 0 {
					progressed = true
					deficit -= got
					total += got
				}
			}
			if !progressed {
				break
			}
		}
	}

	if total == 0 {
		return nil
	}

	for _, k := range typeKeys {
		buf := buffers[k]
		if len(buf) == 0 {
			continue
		}
		corrector := tzcorrect.NewWithTunables(opts.JumpThresholdMs, opts.MinSuspectLines)
		for i := range buf {
			corrected := corrector.Adjust(buf[i].Ts, i)
			buf[i].Ts = corrected
			for _, seg := range corrector.DrainRetroSegments() {
				for j := seg.Start; j <= seg.End && j < len(buf); j++ {
					buf[j].Ts += seg.DeltaMs
				}
			}
		}
		corrector.FinalizeSuspected()
		sort.SliceStable(buf, func(i, j int) bool { return buf[i].Ts > buf[j].Ts })
		buffers[k] = buf
	}

	merged := kWayMergeInMemory(typeKeys, buffers)
	if len(merged) > target {
		merged = merged[:target]
	}
	return merged
}

type warmHeapItem struct {
	e       entry.LogEntry
	typeKey string
	seq     int
}

type warmHeap []warmHeapItem

func (h warmHeap) Len() int { return len(h) }
func (h warmHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.e.Ts != b.e.Ts {
		return a.e.Ts > b.e.Ts
	}
	if a.typeKey != b.typeKey {
		return a.typeKey < b.typeKey
	}
	return a.seq < b.seq
}
func (h warmHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *warmHeap) Push(x any)   { *h = append(*h, x.(warmHeapItem)) }
func (h *warmHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// kWayMergeInMemory merges already-descending per-type slices into one
// globally descending slice, same tie-break rule as the on-disk merger.
func kWayMergeInMemory(typeKeys []string, buffers map[string][]entry.LogEntry) []entry.LogEntry {
	positions := make(map[string]int, len(typeKeys))
	h := &warmHeap{}
	heap.Init(h)
	for _, k := range typeKeys {
		if len(buffers[k]) > 0 {
			heap.Push(h, warmHeapItem{e: buffers[k][0], typeKey: k, seq: 0})
			positions[k] = 1
		}
	}
	var out []entry.LogEntry
	for h.Len() > 0 {
		top := heap.Pop(h).(warmHeapItem)
		out = append(out, top.e)
		pos := positions[top.typeKey]
		if pos < len(buffers[top.typeKey]) {
			heap.Push(h, warmHeapItem{e: buffers[top.typeKey][pos], typeKey: top.typeKey, seq: pos})
			positions[top.typeKey] = pos + 1
		}
	}
	return out
}
