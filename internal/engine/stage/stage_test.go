package stage

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bascanada/logmerge/internal/engine/entry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeKeyOf(t *testing.T) {
	assert.Equal(t, "foo", TypeKeyOf("foo.log"))
	assert.Equal(t, "foo", TypeKeyOf("foo.log.1"))
	assert.Equal(t, "foo", TypeKeyOf("foo.log.12"))
	assert.Equal(t, "bar.txt", TypeKeyOf("bar.txt"))
}

func writeLines(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	w := bufio.NewWriter(f)
	for _, l := range lines {
		w.WriteString(l + "\n")
	}
	require.NoError(t, w.Flush())
	return path
}

// tsLine renders an RFC3339Nano line at the given epoch-ms, so the
// stager's TimeParser resolves it back to exactly that value.
func tsLine(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339Nano) + " line"
}

func readJSONLEntries(t *testing.T, path string) []entry.LogEntry {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var out []entry.LogEntry
	sc := bufio.NewScanner(strings.NewReader(string(data)))
	for sc.Scan() {
		var e entry.LogEntry
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		out = append(out, e)
	}
	return out
}

func TestGroupFilesByType_OrdersRotationNewestFirst(t *testing.T) {
	dir := t.TempDir()
	writeLines(t, dir, "foo.log", "a")
	writeLines(t, dir, "foo.log.1", "b")
	writeLines(t, dir, "foo.log.2", "c")
	writeLines(t, dir, "bar.log", "d")

	groups, err := GroupFilesByType(dir)
	require.NoError(t, err)
	require.Len(t, groups, 2)

	assert.Equal(t, "bar", groups[0].TypeKey)
	assert.Equal(t, "foo", groups[1].TypeKey)

	require.Len(t, groups[1].Files, 3)
	assert.Equal(t, filepath.Join(dir, "foo.log"), groups[1].Files[0])
	assert.Equal(t, filepath.Join(dir, "foo.log.1"), groups[1].Files[1])
	assert.Equal(t, filepath.Join(dir, "foo.log.2"), groups[1].Files[2])
}

func TestStageType_RotationScenario(t *testing.T) {
	// foo.log [10,11], foo.log.1 [7,8], foo.log.2 [5,6]: rotation suffix
	// order must come out newest-first in the staged output.
	dir := t.TempDir()
	stagingDir := t.TempDir()
	writeLines(t, dir, "foo.log", tsLine(10), tsLine(11))
	writeLines(t, dir, "foo.log.1", tsLine(7), tsLine(8))
	writeLines(t, dir, "foo.log.2", tsLine(5), tsLine(6))

	groups, err := GroupFilesByType(dir)
	require.NoError(t, err)
	require.Len(t, groups, 1)

	outPath, n, err := StageType(groups[0], stagingDir, Options{})
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	entries := readJSONLEntries(t, outPath)
	var got []int64
	for _, e := range entries {
		got = append(got, e.Ts)
	}
	assert.Equal(t, []int64{11, 10, 8, 7, 6, 5}, got)
}

func TestStageType_NoRotationThreeLinesPerFile(t *testing.T) {
	// a.log [1,2,3] stages to [3,2,1]
	dir := t.TempDir()
	stagingDir := t.TempDir()
	writeLines(t, dir, "a.log", tsLine(1), tsLine(2), tsLine(3))

	groups, err := GroupFilesByType(dir)
	require.NoError(t, err)
	require.Len(t, groups, 1)

	outPath, n, err := StageType(groups[0], stagingDir, Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	entries := readJSONLEntries(t, outPath)
	var got []int64
	for _, e := range entries {
		got = append(got, e.Ts)
	}
	assert.Equal(t, []int64{3, 2, 1}, got)
	for _, e := range entries {
		assert.Equal(t, "a", e.Source)
		assert.Equal(t, "a", e.Type)
	}
}

func TestStageType_UnreadableFileIsSkippedNotFatal(t *testing.T) {
	dir := t.TempDir()
	stagingDir := t.TempDir()
	writeLines(t, dir, "a.log", tsLine(1))

	group := FileGroup{TypeKey: "a", Files: []string{
		filepath.Join(dir, "a.log"),
		filepath.Join(dir, "a.log.1"), // does not exist
	}}

	var warned bool
	_, n, err := StageType(group, stagingDir, Options{
		Warn: func(string, ...any) { warned = true },
	})
	require.NoError(t, err)
	assert.True(t, warned)
	assert.Equal(t, 1, n)
}
