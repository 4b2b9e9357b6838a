package session

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bascanada/logmerge/internal/engine/stage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeWarmupFile(t *testing.T, dir, name string, n int, startMs int64) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	w := bufio.NewWriter(f)
	for i := 0; i < n; i++ {
		ms := startMs + int64(i)
		w.WriteString(time.UnixMilli(ms).UTC().Format(time.RFC3339Nano) + " line\n")
	}
	require.NoError(t, w.Flush())
	return path
}

func TestRunWarmup_DeliversTargetAcrossTypesNewestFirst(t *testing.T) {
	dir := t.TempDir()
	// Each type's tail holds strictly increasing timestamps so the newest
	// lines are at the end of the file (which the reverse walker reads
	// first).
	for i, tk := range []string{"t0", "t1", "t2", "t3", "t4"} {
		writeWarmupFile(t, dir, tk+".log", 50, int64(1000*(i+1)))
	}
	groups, err := stage.GroupFilesByType(dir)
	require.NoError(t, err)
	require.Len(t, groups, 5)

	merged := RunWarmup(context.Background(), groups, WarmupOptions{Target: 20})
	require.Len(t, merged, 20)

	for i := 1; i < len(merged); i++ {
		assert.GreaterOrEqual(t, merged[i-1].Ts, merged[i].Ts, "warm-up result must be globally descending by ts")
	}
}

func TestRunWarmup_RedistributesDeficitFromStarvedType(t *testing.T) {
	dir := t.TempDir()
	// t0 only has 2 lines total, far short of its base allocation; the
	// other four types must make up the difference so the full target
	// is still delivered.
	writeWarmupFile(t, dir, "t0.log", 2, 1000)
	for i, tk := range []string{"t1", "t2", "t3", "t4"} {
		writeWarmupFile(t, dir, tk+".log", 50, int64(2000*(i+1)))
	}
	groups, err := stage.GroupFilesByType(dir)
	require.NoError(t, err)
	require.Len(t, groups, 5)

	merged := RunWarmup(context.Background(), groups, WarmupOptions{Target: 20})
	assert.Len(t, merged, 20)
}

func TestRunWarmup_NoGroupsReturnsNil(t *testing.T) {
	merged := RunWarmup(context.Background(), nil, WarmupOptions{Target: 10})
	assert.Nil(t, merged)
}

func TestRunWarmup_CancellationStopsEarly(t *testing.T) {
	dir := t.TempDir()
	writeWarmupFile(t, dir, "t0.log", 5000, 1000)
	groups, err := stage.GroupFilesByType(dir)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	merged := RunWarmup(ctx, groups, WarmupOptions{Target: 500})
	assert.LessOrEqual(t, len(merged), 500)
}
