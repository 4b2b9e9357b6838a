// Package session drives one merge session end-to-end: staging, the
// k-way merge, chunk/manifest persistence, and an optional warm-up fast
// path, reporting progress and completion to the host via callbacks.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/bascanada/logmerge/internal/engine/chunk"
	"github.com/bascanada/logmerge/internal/engine/entry"
	"github.com/bascanada/logmerge/internal/engine/manifest"
	"github.com/bascanada/logmerge/internal/engine/merge"
	"github.com/bascanada/logmerge/internal/engine/parser"
	"github.com/bascanada/logmerge/internal/engine/stage"
)

// State is one step of the session state machine.
type State string

const (
	StateIdle       State = "idle"
	StateWarmup     State = "warmup"
	StateStaging    State = "staging"
	StateMerging    State = "merging"
	StateFinalizing State = "finalizing"
	StateDone       State = "done"
	StateCanceled   State = "canceled"
	StateFailed     State = "failed"
)

// DefaultChunkMaxLines matches the chunk size used across the worked
// examples and tests unless a session overrides it.
const DefaultChunkMaxLines = 1000

// DefaultProgressMinMs is the minimum spacing between coalesced progress
// events.
const DefaultProgressMinMs = 100

// SavedInfo is reported once via OnSaved after a successful Finalizing
// step.
type SavedInfo struct {
	OutDir       string
	ManifestPath string
	ChunkCount   int
	Merged       int
	Total        int
}

// Config configures one merge session.
type Config struct {
	Dir           string // input directory of rotated log files
	OutDir        string // output directory for chunks + manifest
	BatchSize     int
	ChunkMaxLines int
	Rules         *parser.RuleSet

	JumpThresholdMs int64
	MinSuspectLines int

	ProgressMinMs int

	Warmup *WarmupOptions // nil disables the warm-up fast path

	OnWarmupBatch func([]entry.LogEntry)
	OnBatch       func(batch []entry.LogEntry, seq int) error
	OnProgress    func(inc, done, total int)
	OnSaved       func(SavedInfo)
	OnError       func(err error)
}

// Orchestrator drives one merge session. It is not safe for concurrent
// use by more than one caller of Start at a time.
type Orchestrator struct {
	cfg    Config
	state  atomic.Value // State
	cancel atomic.Bool
}

// New creates an Orchestrator in the Idle state.
func New(cfg Config) *Orchestrator {
	o := &Orchestrator{cfg: cfg}
	o.state.Store(StateIdle)
	return o
}

// State returns the orchestrator's current state.
func (o *Orchestrator) State() State { return o.state.Load().(State) }

// Cancel requests cancellation. The in-flight sub-state finishes its
// current write and then aborts; no further batch, progress, or saved
// event is emitted afterward.
func (o *Orchestrator) Cancel() { o.cancel.Store(true) }

func (o *Orchestrator) canceled() bool { return o.cancel.Load() }

// Start runs the session to completion (or to Canceled/Failed) and
// returns the terminal state.
func (o *Orchestrator) Start(ctx context.Context) (State, error) {
	cfg := o.cfg
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = merge.DefaultBatchSize
	}
	chunkMaxLines := cfg.ChunkMaxLines
	if chunkMaxLines <= 0 {
		chunkMaxLines = DefaultChunkMaxLines
	}
	progressMinMs := cfg.ProgressMinMs
	if progressMinMs <= 0 {
		progressMinMs = DefaultProgressMinMs
	}

	groups, err := stage.GroupFilesByType(cfg.Dir)
	if err != nil {
		return o.fail(fmt.Errorf("session: list input files: %w", err))
	}

	if cfg.Warmup != nil {
		o.state.Store(StateWarmup)
		wopts := *cfg.Warmup
		if wopts.Rules == nil {
			wopts.Rules = cfg.Rules
		}
		if wopts.JumpThresholdMs <= 0 {
			wopts.JumpThresholdMs = cfg.JumpThresholdMs
		}
		if wopts.MinSuspectLines <= 0 {
			wopts.MinSuspectLines = cfg.MinSuspectLines
		}
		warm := RunWarmup(ctx, groups, wopts)
		if o.canceled() {
			return o.cancelNow()
		}
		if len(warm) > 0 && cfg.OnWarmupBatch != nil {
			cfg.OnWarmupBatch(warm)
		}
	}

	o.state.Store(StateStaging)
	stagingDir, err := ensureTempStagingDir(cfg.OutDir)
	if err != nil {
		return o.fail(err)
	}
	defer os.RemoveAll(stagingDir)
	stagingFiles := make(map[string]string, len(groups))
	doneLines := 0
	lastProgress := time.Time{}
	for _, g := range groups {
		if o.canceled() {
			return o.cancelNow()
		}
		path, n, err := stage.StageType(g, stagingDir, stage.Options{
			Rules:           cfg.Rules,
			JumpThresholdMs: cfg.JumpThresholdMs,
			MinSuspectLines: cfg.MinSuspectLines,
			Warn: func(format string, args ...any) {
				slog.Warn(fmt.Sprintf(format, args...))
			},
		})
		if err != nil {
			return o.fail(fmt.Errorf("session: staging type %s: %w", g.TypeKey, err))
		}
		stagingFiles[g.TypeKey] = path
		doneLines += n
		if cfg.OnProgress != nil && time.Since(lastProgress) >= time.Duration(progressMinMs)*time.Millisecond {
			cfg.OnProgress(n, doneLines, 0)
			lastProgress = time.Now()
		}
	}

	if o.canceled() {
		return o.cancelNow()
	}

	o.state.Store(StateMerging)
	cw := chunk.New(cfg.OutDir, chunkMaxLines, 0)
	mw, err := manifest.LoadOrCreate(cfg.OutDir)
	if err != nil {
		return o.fail(fmt.Errorf("session: load manifest: %w", err))
	}

	seq := 0
	emittedSinceProgress := 0
	mergeCtx, cancelMerge := context.WithCancel(ctx)
	defer cancelMerge()

	onBatch := func(batch []entry.LogEntry) error {
		if o.canceled() {
			cancelMerge()
			return nil
		}
		results, err := cw.AppendBatch(batch)
		if err != nil {
			return err
		}
		for _, r := range results {
			mw.AddChunk(r.File, r.Lines)
		}
		if cfg.OnBatch != nil {
			if err := cfg.OnBatch(batch, seq); err != nil {
				return err
			}
		}
		seq++
		emittedSinceProgress += len(batch)
		if cfg.OnProgress != nil && time.Since(lastProgress) >= time.Duration(progressMinMs)*time.Millisecond {
			cfg.OnProgress(emittedSinceProgress, mw.MergedLines(), doneLines)
			lastProgress = time.Now()
			emittedSinceProgress = 0
		}
		return nil
	}

	if err := merge.Run(mergeCtx, stagingFiles, batchSize, onBatch); err != nil {
		return o.fail(fmt.Errorf("session: merge: %w", err))
	}

	if o.canceled() {
		return o.cancelNow()
	}

	o.state.Store(StateFinalizing)
	if r, err := cw.FlushRemainder(); err != nil {
		return o.fail(fmt.Errorf("session: flush remainder: %w", err))
	} else if r != nil {
		mw.AddChunk(r.File, r.Lines)
	}
	mw.SetTotal(doneLines)
	if err := mw.Save(); err != nil {
		return o.fail(fmt.Errorf("session: save manifest: %w", err))
	}

	if cfg.OnSaved != nil {
		cfg.OnSaved(SavedInfo{
			OutDir:       cfg.OutDir,
			ManifestPath: filepath.Join(cfg.OutDir, "manifest.json"),
			ChunkCount:   len(mw.Snapshot().Chunks),
			Merged:       mw.MergedLines(),
			Total:        doneLines,
		})
	}

	o.state.Store(StateDone)
	return StateDone, nil
}

func (o *Orchestrator) fail(err error) (State, error) {
	o.state.Store(StateFailed)
	if o.cfg.OnError != nil {
		o.cfg.OnError(err)
	}
	return StateFailed, err
}

func (o *Orchestrator) cancelNow() (State, error) {
	o.state.Store(StateCanceled)
	return StateCanceled, nil
}

func ensureTempStagingDir(outDir string) (string, error) {
	dir := filepath.Join(outDir, ".staging")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("session: create staging dir: %w", err)
	}
	return dir, nil
}
