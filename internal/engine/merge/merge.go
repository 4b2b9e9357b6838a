// Package merge performs the external k-way merge across a session's
// per-type staging files, each already sorted descending by ts, into one
// globally descending stream delivered in fixed-size batches.
package merge

import (
	"container/heap"
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/bascanada/logmerge/internal/engine/entry"
	"github.com/bascanada/logmerge/internal/engine/linereader"
)

// DefaultBatchSize is the batch size KWayMerger uses when none is given.
const DefaultBatchSize = 1000

// seedPerType is how many entries are pulled ahead for each type cursor
// when the merge starts.
const seedPerType = 100

type cursor struct {
	typeKey string
	fr      *linereader.ForwardLineReader
	seq     int
	pending []entry.LogEntry
}

func (c *cursor) fill(n int) error {
	for len(c.pending) < n {
		line, err := c.fr.NextLine()
		if err != nil {
			break
		}
		var e entry.LogEntry
		if jerr := json.Unmarshal([]byte(line), &e); jerr != nil {
			return fmt.Errorf("merge: decode staging line for %s: %w", c.typeKey, jerr)
		}
		c.pending = append(c.pending, e)
	}
	return nil
}

func (c *cursor) pop() (entry.LogEntry, bool) {
	if len(c.pending) == 0 {
		return entry.LogEntry{}, false
	}
	e := c.pending[0]
	c.pending = c.pending[1:]
	return e, true
}

// heapItem is one in-flight candidate from a single type cursor.
type heapItem struct {
	entry   entry.LogEntry
	typeKey string
	seq     int
	cur     *cursor
}

type itemHeap []*heapItem

func (h itemHeap) Len() int { return len(h) }
func (h itemHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.entry.Ts != b.entry.Ts {
		return a.entry.Ts > b.entry.Ts // max-heap on ts
	}
	if a.typeKey != b.typeKey {
		return a.typeKey < b.typeKey
	}
	return a.seq < b.seq
}
func (h itemHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *itemHeap) Push(x any)   { *h = append(*h, x.(*heapItem)) }
func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// BatchFunc is invoked with each full (or final, on flush) batch. Entries
// within a batch are non-increasing by ts, with equal timestamps ordered by
// the merger's tie-break rule.
type BatchFunc func(batch []entry.LogEntry) error

// Run drives the k-way merge over the staging directory's {typeKey}.jsonl
// files, calling onBatch every batchSize entries (and once more for any
// remainder at the end, unless ctx is canceled first, in which case no
// partial trailing batch is ever emitted).
func Run(ctx context.Context, stagingFiles map[string]string, batchSize int, onBatch BatchFunc) error {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	typeKeys := make([]string, 0, len(stagingFiles))
	for tk := range stagingFiles {
		typeKeys = append(typeKeys, tk)
	}
	sort.Strings(typeKeys)

	cursors := make(map[string]*cursor, len(typeKeys))
	for _, tk := range typeKeys {
		fr, err := linereader.OpenForward(stagingFiles[tk])
		if err != nil {
			return fmt.Errorf("merge: open staging file for %s: %w", tk, err)
		}
		cursors[tk] = &cursor{typeKey: tk, fr: fr}
	}
	defer func() {
		for _, c := range cursors {
			c.fr.Close()
		}
	}()

	h := &itemHeap{}
	heap.Init(h)
	for _, tk := range typeKeys {
		c := cursors[tk]
		if err := c.fill(seedPerType); err != nil {
			return err
		}
		if e, ok := c.pop(); ok {
			heap.Push(h, &heapItem{entry: e, typeKey: tk, seq: c.seq, cur: c})
			c.seq++
		}
	}

	batch := make([]entry.LogEntry, 0, batchSize)
	for h.Len() > 0 {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		top := heap.Pop(h).(*heapItem)
		batch = append(batch, top.entry)

		c := top.cur
		if len(c.pending) == 0 {
			if err := c.fill(1); err != nil {
				return err
			}
		}
		if e, ok := c.pop(); ok {
			heap.Push(h, &heapItem{entry: e, typeKey: c.typeKey, seq: c.seq, cur: c})
			c.seq++
		}

		if len(batch) >= batchSize {
			if err := onBatch(batch); err != nil {
				return err
			}
			batch = make([]entry.LogEntry, 0, batchSize)
		}
	}

	select {
	case <-ctx.Done():
		return nil
	default:
	}
	if len(batch) > 0 {
		if err := onBatch(batch); err != nil {
			return err
		}
	}
	return nil
}
