package paged

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/bascanada/logmerge/internal/engine/entry"
	"github.com/bascanada/logmerge/internal/engine/manifest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeChunk(t *testing.T, dir, name string, from, n int) {
	t.Helper()
	f, err := os.Create(filepath.Join(dir, name))
	require.NoError(t, err)
	defer f.Close()
	enc := json.NewEncoder(f)
	for i := 0; i < n; i++ {
		require.NoError(t, enc.Encode(entry.LogEntry{ID: int64(from + i), Ts: int64(1000 - from - i)}))
	}
}

func setupManifest(t *testing.T, dir string) {
	t.Helper()
	writeChunk(t, dir, "part-000001.ndjson", 0, 5)
	writeChunk(t, dir, "part-000002.ndjson", 5, 5)
	w, err := manifest.LoadOrCreate(dir)
	require.NoError(t, err)
	w.AddChunk("part-000001.ndjson", 5)
	w.AddChunk("part-000002.ndjson", 5)
	require.NoError(t, w.Save())
}

func TestReader_GetTotalLines(t *testing.T) {
	dir := t.TempDir()
	setupManifest(t, dir)
	r, err := Open(dir)
	require.NoError(t, err)
	assert.Equal(t, 10, r.GetTotalLines())
}

func TestReader_ReadLineRange_SpansTwoChunks(t *testing.T) {
	dir := t.TempDir()
	setupManifest(t, dir)
	r, err := Open(dir)
	require.NoError(t, err)

	out, err := r.ReadLineRange(context.Background(), 3, 7, false)
	require.NoError(t, err)
	require.Len(t, out, 4)
	var ids []int64
	for _, e := range out {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []int64{3, 4, 5, 6}, ids)
}

func TestReader_ReadLineRange_ClampsToTotal(t *testing.T) {
	dir := t.TempDir()
	setupManifest(t, dir)
	r, err := Open(dir)
	require.NoError(t, err)

	out, err := r.ReadLineRange(context.Background(), 8, 100, false)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestReader_ReadLineRange_EmptyWhenStartPastEnd(t *testing.T) {
	dir := t.TempDir()
	setupManifest(t, dir)
	r, err := Open(dir)
	require.NoError(t, err)

	out, err := r.ReadLineRange(context.Background(), 20, 30, false)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestReader_ReadLineRange_InvalidJSONSkippedOrErrors(t *testing.T) {
	dir := t.TempDir()
	f, err := os.Create(filepath.Join(dir, "part-000001.ndjson"))
	require.NoError(t, err)
	_, err = f.WriteString("{\"id\":1}\nnot json\n{\"id\":3}\n")
	require.NoError(t, err)
	f.Close()

	w, err := manifest.LoadOrCreate(dir)
	require.NoError(t, err)
	w.AddChunk("part-000001.ndjson", 3)
	require.NoError(t, w.Save())

	r, err := Open(dir)
	require.NoError(t, err)

	out, err := r.ReadLineRange(context.Background(), 0, 3, true)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, int64(1), out[0].ID)
	assert.Equal(t, int64(3), out[1].ID)

	_, err = r.ReadLineRange(context.Background(), 0, 3, false)
	assert.Error(t, err)
}
