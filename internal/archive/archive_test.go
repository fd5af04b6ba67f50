package archive

import (
	"bufio"
	"bytes"
	"encoding/json"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warhost/simcore/pkg/core"
)

var t0 = time.Date(2026, 3, 1, 12, 15, 0, 0, time.UTC)

func report(id string, at time.Time) core.BattleReport {
	return core.BattleReport{
		ID:               id,
		ResolvedAt:       at,
		AttackerPlayerID: 1,
		DefenderPlayerID: 2,
		AttackerWins:     true,
		Detail: core.BattleDetail{
			ArmyID: 9,
			TileID: 4,
			Rounds: 2,
			Loot:   core.Loot{Ore: 50, Gold: 15},
		},
	}
}

func TestWriter_FlushAndRead(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, time.Hour, nil)
	require.NoError(t, err)

	require.NoError(t, w.Write(report("a", t0)))
	require.NoError(t, w.Write(report("b", t0.Add(time.Minute))))
	require.NoError(t, w.Close())

	got, err := ReadFile(PathFor(dir, "2026-03-01T12-00"))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
	assert.Equal(t, core.Loot{Ore: 50, Gold: 15}, got[0].Detail.Loot)
	assert.Equal(t, uint(2), got[0].DefenderPlayerID)
}

func TestWriter_RotatesByResolvedAt(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, time.Hour, nil)
	require.NoError(t, err)

	require.NoError(t, w.Write(report("a", t0)))
	require.NoError(t, w.Write(report("b", t0.Add(time.Hour))))
	require.NoError(t, w.Close())

	files, err := filepath.Glob(filepath.Join(dir, "battles-*.jsonl.zst"))
	require.NoError(t, err)
	assert.Len(t, files, 2)

	first, err := ReadFile(PathFor(dir, "2026-03-01T12-00"))
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, "a", first[0].ID)

	second, err := ReadFile(PathFor(dir, "2026-03-01T13-00"))
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "b", second[0].ID)
}

func TestWriter_AppendsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	w, err := New(dir, time.Hour, nil)
	require.NoError(t, err)
	require.NoError(t, w.Write(report("a", t0)))
	require.NoError(t, w.Close())

	w, err = New(dir, time.Hour, nil)
	require.NoError(t, err)
	require.NoError(t, w.Write(report("b", t0.Add(2*time.Minute))))
	require.NoError(t, w.Close())

	got, err := ReadFile(PathFor(dir, "2026-03-01T12-00"))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[1].ID)
}

func TestWriter_BackgroundFlush(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, 15*time.Minute, nil)
	require.NoError(t, err)
	w.Start()

	require.NoError(t, w.Write(report("a", t0)))

	path := PathFor(dir, "2026-03-01T12-15")
	assert.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, 3*FlushInterval, 50*time.Millisecond)

	require.NoError(t, w.Close())
	got, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, got, 1)

	// Close is idempotent.
	assert.NoError(t, w.Close())
}

func TestWriter_EmptyFlushCreatesNothing(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, 0, nil)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// liveIDs decodes report IDs from an archive file that a Writer still has
// open. The frame is unfinished, so decoding stops at the first error.
func liveIDs(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	dec, err := zstd.NewReader(f, zstd.WithDecoderConcurrency(1))
	require.NoError(t, err)
	defer dec.Close()

	var ids []string
	r := bufio.NewReader(dec)
	for {
		line, err := r.ReadBytes('\n')
		if err != nil {
			return ids
		}
		var rep core.BattleReport
		require.NoError(t, json.Unmarshal(line, &rep))
		ids = append(ids, rep.ID)
	}
}

func TestWriter_FlushReachesDiskBeforeClose(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, time.Hour, nil)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })

	require.NoError(t, w.Write(report("a", t0)))
	require.NoError(t, w.Flush())
	require.NoError(t, w.Write(report("b", t0.Add(time.Minute))))
	require.NoError(t, w.Flush())

	assert.Equal(t, []string{"a", "b"}, liveIDs(t, PathFor(dir, "2026-03-01T12-00")))
}

func TestWriter_DropsUnencodableReport(t *testing.T) {
	dir := t.TempDir()
	var logs bytes.Buffer
	w, err := New(dir, time.Hour, slog.New(slog.NewTextHandler(&logs, nil)))
	require.NoError(t, err)

	bad := report("bad", t0)
	bad.Detail.Phases.Melee.WallDamageAbsorbed = math.NaN()

	require.NoError(t, w.Write(report("a", t0)))
	require.NoError(t, w.Write(bad))
	require.NoError(t, w.Write(report("b", t0.Add(time.Minute))))
	require.NoError(t, w.Flush())
	assert.True(t, w.pending.Empty())

	require.NoError(t, w.Write(report("c", t0.Add(2*time.Minute))))
	require.NoError(t, w.Close())

	got, err := ReadFile(PathFor(dir, "2026-03-01T12-00"))
	require.NoError(t, err)
	ids := make([]string, 0, len(got))
	for _, r := range got {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
	assert.Contains(t, logs.String(), "report_id=bad")
}

func TestWriter_RequeuesOnWriteFailure(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, time.Hour, nil)
	require.NoError(t, err)

	// a directory where the archive file should go makes the open fail
	require.NoError(t, os.Mkdir(PathFor(dir, "2026-03-01T12-00"), 0o755))

	require.NoError(t, w.Write(report("a", t0)))
	require.NoError(t, w.Write(report("b", t0.Add(time.Minute))))
	require.Error(t, w.Flush())
	assert.Equal(t, 2, w.pending.Len())

	require.NoError(t, os.Remove(PathFor(dir, "2026-03-01T12-00")))
	require.NoError(t, w.Close())

	got, err := ReadFile(PathFor(dir, "2026-03-01T12-00"))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
}
