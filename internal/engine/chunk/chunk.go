// Package chunk rotates a stream of log entries into fixed-line NDJSON
// chunk files, written atomically and resumable across process restarts.
package chunk

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/bascanada/logmerge/internal/engine/entry"
)

var partNameRe = regexp.MustCompile(`^part-(\d{6})\.ndjson$`)

const maxRenameAttempts = 10000

// Result describes one completed chunk flush.
type Result struct {
	File  string
	Lines int
}

// Writer buffers incoming entries and rotates them into part-NNNNNN.ndjson
// files once chunkMaxLines is reached. A Writer owns chunk file creation
// exclusively in its output directory; flushes are serialized through an
// internal mutex so concurrent callers never race on part allocation.
type Writer struct {
	mu sync.Mutex

	outDir       string
	chunkMax     int
	currentIndex int
	fsInit       bool

	buf []entry.LogEntry
}

// New creates a Writer for outDir. startIndex is the 0-based part index to
// resume from before the directory scan in the first flush corrects it.
func New(outDir string, chunkMaxLines int, startIndex int) *Writer {
	return &Writer{outDir: outDir, chunkMax: chunkMaxLines, currentIndex: startIndex}
}

// AppendBatch buffers entries and flushes a chunk every time chunkMaxLines
// is reached, returning one Result per chunk completed during this call.
func (w *Writer) AppendBatch(entries []entry.LogEntry) ([]Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var results []Result
	for _, e := range entries {
		w.buf = append(w.buf, e)
		if len(w.buf) >= w.chunkMax {
			r, err := w.flushLocked()
			if err != nil {
				return results, err
			}
			results = append(results, r)
		}
	}
	return results, nil
}

// FlushRemainder writes any partial buffer as a final, possibly
// shorter-than-chunkMaxLines, part file.
func (w *Writer) FlushRemainder() (*Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buf) == 0 {
		return nil, nil
	}
	r, err := w.flushLocked()
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (w *Writer) flushLocked() (Result, error) {
	if !w.fsInit {
		w.recoverIndexFromDisk()
		w.fsInit = true
	}

	buf := w.buf
	w.buf = nil
	if len(buf) == 0 {
		return Result{}, nil
	}

	var out bytes.Buffer
	enc := json.NewEncoder(&out)
	for _, e := range buf {
		if err := enc.Encode(e); err != nil {
			return Result{}, fmt.Errorf("chunk: encode entry: %w", err)
		}
	}

	if err := os.MkdirAll(w.outDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("chunk: mkdir %s: %w", w.outDir, err)
	}

	tmpPath := filepath.Join(w.outDir, ".tmp-"+uuid.NewString())
	if err := os.WriteFile(tmpPath, out.Bytes(), 0o644); err != nil {
		return Result{}, fmt.Errorf("chunk: write temp file: %w", err)
	}

	partName, err := w.renameWithRetry(tmpPath, out.Bytes())
	if err != nil {
		return Result{}, err
	}

	w.currentIndex++
	return Result{File: partName, Lines: len(buf)}, nil
}

// renameWithRetry renames tmpPath to the next part-NNNNNN.ndjson name,
// advancing the part index on any transient collision until it succeeds.
func (w *Writer) renameWithRetry(tmpPath string, content []byte) (string, error) {
	for attempt := 0; attempt < maxRenameAttempts; attempt++ {
		partName := fmt.Sprintf("part-%06d.ndjson", w.currentIndex+1)
		target := filepath.Join(w.outDir, partName)

		err := os.Rename(tmpPath, target)
		if err == nil {
			return partName, nil
		}

		switch {
		case errors.Is(err, fs.ErrExist):
			w.currentIndex++
			continue
		case errors.Is(err, fs.ErrNotExist):
			if mkErr := os.MkdirAll(w.outDir, 0o755); mkErr != nil {
				_ = os.Remove(tmpPath)
				return "", fmt.Errorf("chunk: recreate dir %s: %w", w.outDir, mkErr)
			}
			if _, statErr := os.Stat(tmpPath); statErr != nil {
				tmpPath = filepath.Join(w.outDir, ".tmp-"+uuid.NewString())
				if werr := os.WriteFile(tmpPath, content, 0o644); werr != nil {
					return "", fmt.Errorf("chunk: rewrite temp file: %w", werr)
				}
			}
			continue
		case isLockedErr(err):
			w.currentIndex++
			time.Sleep(10 * time.Millisecond)
			continue
		default:
			_ = os.Remove(tmpPath)
			return "", fmt.Errorf("chunk: rename %s -> %s: %w", tmpPath, target, err)
		}
	}
	_ = os.Remove(tmpPath)
	return "", fmt.Errorf("chunk: failed to allocate a unique part file name in %s", w.outDir)
}

// isLockedErr reports whether err looks like a Windows-style sharing
// violation (EPERM/EBUSY) on the rename target.
func isLockedErr(err error) bool {
	return errors.Is(err, syscall.EPERM) || errors.Is(err, syscall.EBUSY)
}

// recoverIndexFromDisk scans outDir once for the highest existing
// part-NNNNNN.ndjson index and resumes numbering from it.
func (w *Writer) recoverIndexFromDisk() {
	entries, err := os.ReadDir(w.outDir)
	if err != nil {
		return
	}
	maxIdx := w.currentIndex
	for _, de := range entries {
		m := partNameRe.FindStringSubmatch(de.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if n > maxIdx {
			maxIdx = n
		}
	}
	w.currentIndex = maxIdx
}

// ListExistingParts returns the part file names already present in dir,
// sorted ascending by index.
func ListExistingParts(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("chunk: read dir %s: %w", dir, err)
	}
	var parts []string
	for _, de := range entries {
		if partNameRe.MatchString(de.Name()) {
			parts = append(parts, de.Name())
		}
	}
	sort.Strings(parts)
	return parts, nil
}
