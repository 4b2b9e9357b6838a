package manifest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOrCreate_FreshWhenAbsent(t *testing.T) {
	dir := t.TempDir()
	w, err := LoadOrCreate(dir)
	require.NoError(t, err)
	assert.Equal(t, 0, w.MergedLines())
	assert.Equal(t, 0, w.Snapshot().ChunkCount)
}

func TestAddChunkAndSave_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	w, err := LoadOrCreate(dir)
	require.NoError(t, err)

	w.AddChunk("part-000001.ndjson", 1000)
	w.AddChunk("part-000002.ndjson", 500)
	w.SetTotal(w.MergedLines())
	require.NoError(t, w.Save())

	snap := w.Snapshot()
	assert.Equal(t, 1500, snap.MergedLines)
	assert.Equal(t, 2, snap.ChunkCount)
	assert.Equal(t, 0, snap.Chunks[0].Start)
	assert.Equal(t, 1000, snap.Chunks[1].Start)
	require.NotNil(t, snap.TotalLines)
	assert.Equal(t, 1500, *snap.TotalLines)

	data, err := os.ReadFile(filepath.Join(dir, fileName))
	require.NoError(t, err)
	var onDisk Manifest
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Equal(t, 1500, onDisk.MergedLines)

	w2, err := LoadOrCreate(dir)
	require.NoError(t, err)
	assert.Equal(t, 1500, w2.MergedLines())
	assert.Equal(t, 2, w2.Snapshot().ChunkCount)
}

func TestLoadOrCreate_RecomputesDisagreeingMergedLines(t *testing.T) {
	dir := t.TempDir()
	bad := Manifest{
		Version:     1,
		MergedLines: 9999, // deliberately wrong
		ChunkCount:  1,
		Chunks:      []ChunkMeta{{File: "part-000001.ndjson", Lines: 10, Start: 0}},
	}
	data, err := json.Marshal(bad)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, fileName), data, 0o644))

	w, err := LoadOrCreate(dir)
	require.NoError(t, err)
	assert.Equal(t, 10, w.MergedLines(), "mergedLines must be recomputed from chunk sum, never trusted from disk")
}

func TestLoadOrCreate_SortsChunksByStart(t *testing.T) {
	dir := t.TempDir()
	m := Manifest{
		Version: 1,
		Chunks: []ChunkMeta{
			{File: "part-000002.ndjson", Lines: 5, Start: 5},
			{File: "part-000001.ndjson", Lines: 5, Start: 0},
		},
		MergedLines: 10,
	}
	data, err := json.Marshal(m)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, fileName), data, 0o644))

	w, err := LoadOrCreate(dir)
	require.NoError(t, err)
	snap := w.Snapshot()
	require.Len(t, snap.Chunks, 2)
	assert.Equal(t, "part-000001.ndjson", snap.Chunks[0].File)
	assert.Equal(t, "part-000002.ndjson", snap.Chunks[1].File)
}

func TestLoadOrCreate_InvalidJSONErrors(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, fileName), []byte("not json"), 0o644))
	_, err := LoadOrCreate(dir)
	assert.Error(t, err)
}
