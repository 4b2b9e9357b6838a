// Package manifest maintains manifest.json, the index mapping chunk files
// to their position in the globally merged, descending-by-ts sequence.
package manifest

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
)

const fileName = "manifest.json"

// ChunkMeta describes one chunk's place in the merged sequence.
type ChunkMeta struct {
	File  string `json:"file"`
	Lines int    `json:"lines"`
	Start int    `json:"start"`
}

// Manifest is the persisted index for one merge session's output
// directory.
type Manifest struct {
	Version     int         `json:"version"`
	CreatedAt   string      `json:"createdAt"`
	TotalLines  *int        `json:"totalLines,omitempty"`
	MergedLines int         `json:"mergedLines"`
	ChunkCount  int         `json:"chunkCount"`
	Chunks      []ChunkMeta `json:"chunks"`
}

// Writer owns manifest.json for one output directory exclusively.
type Writer struct {
	dir string
	m   Manifest
}

// LoadOrCreate reads dir's existing manifest.json, or starts a fresh empty
// one if none exists. On load, chunks are re-sorted by start and
// mergedLines is recomputed from them; if the persisted mergedLines
// disagrees, the in-memory value is corrected and a warning logged, but
// the file on disk is left untouched until the next Save.
func LoadOrCreate(dir string) (*Writer, error) {
	w := &Writer{dir: dir, m: Manifest{Version: 1, CreatedAt: nowISO()}}

	data, err := os.ReadFile(filepath.Join(dir, fileName))
	if err != nil {
		if os.IsNotExist(err) {
			return w, nil
		}
		return nil, fmt.Errorf("manifest: read %s: %w", fileName, err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("manifest: invalid manifest.json: %w", err)
	}
	w.m = m
	w.m.Chunks = append([]ChunkMeta(nil), m.Chunks...)
	sortChunksByStart(w.m.Chunks)

	recomputed := 0
	for _, c := range w.m.Chunks {
		recomputed += c.Lines
	}
	if recomputed != w.m.MergedLines {
		slog.Warn("manifest: persisted mergedLines disagrees with chunk sum, correcting in memory",
			"persisted", w.m.MergedLines, "recomputed", recomputed)
		w.m.MergedLines = recomputed
	}
	w.m.ChunkCount = len(w.m.Chunks)
	return w, nil
}

// AddChunk records a newly completed chunk at the current mergedLines
// offset and advances mergedLines/chunkCount.
func (w *Writer) AddChunk(file string, lines int) {
	w.m.Chunks = append(w.m.Chunks, ChunkMeta{File: file, Lines: lines, Start: w.m.MergedLines})
	w.m.MergedLines += lines
	w.m.ChunkCount = len(w.m.Chunks)
}

// SetTotal records an externally known upper bound on total raw lines
// (which may exceed MergedLines, e.g. before the merge finishes).
func (w *Writer) SetTotal(n int) {
	w.m.TotalLines = &n
}

// MergedLines returns the running total of lines committed to chunks.
func (w *Writer) MergedLines() int { return w.m.MergedLines }

// Snapshot returns a copy of the current in-memory manifest.
func (w *Writer) Snapshot() Manifest {
	cp := w.m
	cp.Chunks = append([]ChunkMeta(nil), w.m.Chunks...)
	return cp
}

// Save atomically writes manifest.json (temp file + rename). On failure it
// retries once with a fresh temp name before surfacing the error.
func (w *Writer) Save() error {
	data, err := json.MarshalIndent(w.m, "", "  ")
	if err != nil {
		return fmt.Errorf("manifest: marshal: %w", err)
	}

	if err := w.writeAtomic(data); err != nil {
		if err2 := w.writeAtomic(data); err2 != nil {
			return fmt.Errorf("manifest: save failed after retry: %w", err2)
		}
	}
	return nil
}

func (w *Writer) writeAtomic(data []byte) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("manifest: mkdir %s: %w", w.dir, err)
	}
	tmpPath := filepath.Join(w.dir, ".tmp-manifest-"+uuid.NewString())
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("manifest: write temp file: %w", err)
	}
	target := filepath.Join(w.dir, fileName)
	if err := os.Rename(tmpPath, target); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("manifest: rename into place: %w", err)
	}
	return nil
}

func sortChunksByStart(chunks []ChunkMeta) {
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Start < chunks[j].Start })
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}
