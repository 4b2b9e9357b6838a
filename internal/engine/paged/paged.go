// Package paged serves arbitrary line ranges out of a merged session's
// manifest and chunk files, without ever loading a whole chunk into
// memory beyond what the requested range requires.
package paged

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bascanada/logmerge/internal/engine/entry"
	"github.com/bascanada/logmerge/internal/engine/linereader"
	"github.com/bascanada/logmerge/internal/engine/manifest"
)

// Reader opens a manifest directory and serves physical-index range reads
// over its chunk files.
type Reader struct {
	dir string
	m   manifest.Manifest
}

// Open loads dir's manifest and returns a Reader over its chunks. A dir
// without a readable manifest.json is an error.
func Open(dir string) (*Reader, error) {
	if _, err := os.Stat(filepath.Join(dir, "manifest.json")); err != nil {
		return nil, fmt.Errorf("paged: open manifest in %s: %w", dir, err)
	}
	w, err := manifest.LoadOrCreate(dir)
	if err != nil {
		return nil, err
	}
	return &Reader{dir: dir, m: w.Snapshot()}, nil
}

// GetTotalLines returns the only total value guaranteed to correspond to
// readable data: MergedLines. TotalLines (if present) may be larger and is
// never treated as authoritative here.
func (r *Reader) GetTotalLines() int { return r.m.MergedLines }

// ReadLineRange returns entries for the half-open physical-index range
// [start, endExcl). Only the chunks overlapping the range are opened.
// Invalid lines are skipped when skipInvalid is true, otherwise the first
// bad line aborts the read with an error. ctx is checked between chunks.
func (r *Reader) ReadLineRange(ctx context.Context, start, endExcl int, skipInvalid bool) ([]entry.LogEntry, error) {
	if start < 0 {
		start = 0
	}
	if endExcl > r.m.MergedLines {
		endExcl = r.m.MergedLines
	}
	if start >= endExcl {
		return nil, nil
	}

	out := make([]entry.LogEntry, 0, endExcl-start)
	for _, c := range r.m.Chunks {
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		default:
		}

		chunkEnd := c.Start + c.Lines
		if chunkEnd <= start || c.Start >= endExcl {
			continue
		}

		lo := start - c.Start
		if lo < 0 {
			lo = 0
		}
		hi := endExcl - c.Start
		if hi > c.Lines {
			hi = c.Lines
		}

		entries, err := readChunkSlice(filepath.Join(r.dir, c.File), lo, hi, skipInvalid)
		if err != nil {
			return out, err
		}
		out = append(out, entries...)
	}
	return out, nil
}

func readChunkSlice(path string, lo, hi int, skipInvalid bool) ([]entry.LogEntry, error) {
	fr, err := linereader.OpenForward(path)
	if err != nil {
		return nil, fmt.Errorf("paged: open chunk %s: %w", path, err)
	}
	defer fr.Close()

	var out []entry.LogEntry
	idx := 0
	for idx < hi {
		line, err := fr.NextLine()
		if err != nil {
			break
		}
		if idx >= lo {
			var e entry.LogEntry
			if jerr := json.Unmarshal([]byte(line), &e); jerr != nil {
				if skipInvalid {
					idx++
					continue
				}
				return out, fmt.Errorf("paged: invalid json in %s at line %d: %w", path, idx, jerr)
			}
			out = append(out, e)
		}
		idx++
	}
	return out, nil
}
