// Package linereader provides tail-to-head and head-to-tail line readers
// over plain-text log files, without ever buffering a whole file in memory.
package linereader

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// reverseChunkSize is how many bytes ReverseLineReader pulls from the file
// per read, once its in-memory carry buffer runs dry of newlines.
const reverseChunkSize = 64 * 1024

// ReverseLineReader yields the lines of a file tail-to-head, one at a time,
// without ever holding more than a couple of chunks in memory.
type ReverseLineReader struct {
	f      *os.File
	pos    int64
	buf    string
	closed bool

	// firstPop is false until the first segment (content past the
	// rightmost '\n' seen so far, or the whole file if it has none) has
	// been popped off buf. dropFirst tells us whether that very first
	// segment is the artifact of a trailing newline (always "" in that
	// case) rather than a real line, and so must be discarded instead of
	// returned. Every later empty segment is a genuine blank line.
	firstPop  bool
	dropFirst bool

	// bofDone guards the final, leftmost segment (the one still in buf
	// once pos reaches 0): it must be returned exactly once, even when
	// empty, then NextLine must report io.EOF on every call after.
	bofDone bool
}

// OpenReverse opens path and positions a ReverseLineReader at its end.
func OpenReverse(path string) (*ReverseLineReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("linereader: open %s: %w", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("linereader: stat %s: %w", path, err)
	}
	size := fi.Size()
	r := &ReverseLineReader{f: f, pos: size}
	if size == 0 {
		// An empty file has zero lines, not one empty line.
		r.bofDone = true
	} else {
		var last [1]byte
		if _, err := f.ReadAt(last[:], size-1); err != nil && !errors.Is(err, io.EOF) {
			f.Close()
			return nil, fmt.Errorf("linereader: read %s: %w", path, err)
		} else if err == nil {
			r.dropFirst = last[0] == '\n'
		}
	}
	return r, nil
}

// NextLine returns the next line walking backward from the end of the
// file, with any trailing '\r' stripped. It returns io.EOF once the start
// of the file has been reached and the carry buffer is empty. Interior
// blank lines are returned like any other line; only the single artifact
// segment introduced by a trailing newline is ever dropped.
func (r *ReverseLineReader) NextLine() (string, error) {
	if r.closed {
		return "", io.EOF
	}
	for {
		if idx := strings.LastIndexByte(r.buf, '\n'); idx >= 0 {
			line := r.buf[idx+1:]
			r.buf = r.buf[:idx]
			drop := !r.firstPop && r.dropFirst
			r.firstPop = true
			if drop {
				continue
			}
			return strings.TrimSuffix(line, "\r"), nil
		}
		if r.pos == 0 {
			if r.bofDone {
				return "", io.EOF
			}
			r.bofDone = true
			last := r.buf
			r.buf = ""
			drop := !r.firstPop && r.dropFirst
			r.firstPop = true
			if drop {
				return "", io.EOF
			}
			return strings.TrimSuffix(last, "\r"), nil
		}
		readSize := int64(reverseChunkSize)
		if readSize > r.pos {
			readSize = r.pos
		}
		start := r.pos - readSize
		chunk := make([]byte, readSize)
		if _, err := r.f.ReadAt(chunk, start); err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("linereader: read %s: %w", r.f.Name(), err)
		}
		r.buf = string(chunk) + r.buf
		r.pos = start
	}
}

// Close releases the underlying file handle. Safe to call more than once.
func (r *ReverseLineReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.f.Close()
}

// ForwardLineReader yields the lines of a file head-to-tail, via a
// buffered scanner.
type ForwardLineReader struct {
	f   *os.File
	sc  *bufio.Scanner
	err error
}

// OpenForward opens path for head-to-tail line scanning.
func OpenForward(path string) (*ForwardLineReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("linereader: open %s: %w", path, err)
	}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &ForwardLineReader{f: f, sc: sc}, nil
}

// NextLine returns the next line, or io.EOF once the file is exhausted.
func (r *ForwardLineReader) NextLine() (string, error) {
	if r.err != nil {
		return "", r.err
	}
	if !r.sc.Scan() {
		if err := r.sc.Err(); err != nil {
			r.err = fmt.Errorf("linereader: scan %s: %w", r.f.Name(), err)
			return "", r.err
		}
		r.err = io.EOF
		return "", io.EOF
	}
	return r.sc.Text(), nil
}

// NextLines reads up to n lines, returning fewer than n only at EOF (or on
// error, together with the error).
func (r *ForwardLineReader) NextLines(n int) ([]string, error) {
	out := make([]string, 0, n)
	for len(out) < n {
		line, err := r.NextLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return out, err
		}
		out = append(out, line)
	}
	return out, nil
}

// Close releases the underlying file handle.
func (r *ForwardLineReader) Close() error {
	return r.f.Close()
}
