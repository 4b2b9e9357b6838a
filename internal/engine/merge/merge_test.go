package merge

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/bascanada/logmerge/internal/engine/entry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeStagingFile(t *testing.T, dir, typeKey string, tss ...int64) string {
	t.Helper()
	path := filepath.Join(dir, typeKey+".jsonl")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	enc := json.NewEncoder(f)
	for i, ts := range tss {
		require.NoError(t, enc.Encode(entry.LogEntry{ID: int64(i), Ts: ts, Type: typeKey, Source: typeKey}))
	}
	return path
}

func TestRun_ThreeFilesNoRotation(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"a": writeStagingFile(t, dir, "a", 3, 2, 1),
		"b": writeStagingFile(t, dir, "b", 5, 4),
		"c": writeStagingFile(t, dir, "c", 6),
	}

	var got []entry.LogEntry
	err := Run(context.Background(), files, 2, func(batch []entry.LogEntry) error {
		got = append(got, batch...)
		return nil
	})
	require.NoError(t, err)

	var ts []int64
	for _, e := range got {
		ts = append(ts, e.Ts)
	}
	assert.Equal(t, []int64{6, 5, 4, 3, 2, 1}, ts)
}

func TestRun_TieBreakOnTypeKeyThenSeq(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"b": writeStagingFile(t, dir, "b", 10, 10),
		"a": writeStagingFile(t, dir, "a", 10),
	}

	var got []entry.LogEntry
	err := Run(context.Background(), files, 10, func(batch []entry.LogEntry) error {
		got = append(got, batch...)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 3)
	// all ts equal: typeKey asc ("a" before "b"), then intra-type seq asc.
	assert.Equal(t, "a", got[0].Type)
	assert.Equal(t, "b", got[1].Type)
	assert.Equal(t, "b", got[2].Type)
}

func TestRun_CancellationStopsWithoutPartialTrailingBatch(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{}
	tss := make([]int64, 0, 10000)
	for i := int64(10000); i > 0; i-- {
		tss = append(tss, i)
	}
	// five types, 10000 lines total (2000 each), batchSize=1 per scenario 4.
	perType := 2000
	types := []string{"t0", "t1", "t2", "t3", "t4"}
	for i, tk := range types {
		files[tk] = writeStagingFile(t, dir, tk, tss[i*perType:(i+1)*perType]...)
	}

	ctx, cancel := context.WithCancel(context.Background())
	var batches int
	err := Run(ctx, files, 1, func(batch []entry.LogEntry) error {
		batches++
		if batches == 3 {
			cancel()
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, batches, "no further batches should be emitted after cancellation")
}

func TestRun_BatchSizeDefaultsWhenNonPositive(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{"a": writeStagingFile(t, dir, "a", 1)}

	var batchCount int
	err := Run(context.Background(), files, 0, func(batch []entry.LogEntry) error {
		batchCount++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, batchCount)
}
