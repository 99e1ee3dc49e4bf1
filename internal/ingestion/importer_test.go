package ingestion

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mr-Dark-debug/hilbertmap/internal/database"
	"github.com/Mr-Dark-debug/hilbertmap/internal/metrics"
)

func newTestStore(t *testing.T) *database.DBService {
	t.Helper()
	svc, err := database.NewDBService(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })
	return svc
}

func newTestImporter(t *testing.T, store database.Store, batch int) *Importer {
	t.Helper()
	cfg := Config{BatchSize: batch, FlushInterval: time.Hour, Workers: 2}
	return NewImporter(cfg, store, metrics.New(), zerolog.Nop())
}

func TestDefaultConfigNormalizes(t *testing.T) {
	cfg := Config{}.normalized()
	def := DefaultConfig()
	assert.Equal(t, def.BatchSize, cfg.BatchSize)
	assert.Equal(t, def.FlushInterval, cfg.FlushInterval)
	assert.Positive(t, cfg.Workers)
}

func TestImportBatches(t *testing.T) {
	store := newTestStore(t)
	im := newTestImporter(t, store, 2)

	set := &database.PrefixSet{Name: "as64500"}
	data := []byte(`["1.0.0.0/24", "8.8.8.0/24", "9.9.9.0/24", "2001:db8::/32", "2400:cb00::/48"]`)

	report, err := im.Import(context.Background(), set, SourceAuto, data)
	require.NoError(t, err)

	_, err = uuid.Parse(set.ID)
	assert.NoError(t, err, "set should get a UUID")
	assert.Equal(t, "routeviews", set.Source)

	assert.Equal(t, SourceRouteviews, report.Source)
	assert.Equal(t, 5, report.Parsed)
	assert.Equal(t, 5, report.Added)
	assert.Equal(t, 3, report.Batches)

	stored, err := store.GetSet(set.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, stored.PrefixCount)

	pending, err := store.GetPendingImports()
	require.NoError(t, err)
	assert.Empty(t, pending, "payload should be committed")

	stats := im.Stats()
	assert.Equal(t, int64(1), stats.Imports)
	assert.Equal(t, int64(5), stats.Prefixes)
	assert.Equal(t, int64(3), stats.Batches)
	assert.Zero(t, stats.Errors)
}

func TestImportFilesUnion(t *testing.T) {
	store := newTestStore(t)
	im := newTestImporter(t, store, 1000)

	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.json")
	require.NoError(t, os.WriteFile(a, []byte("10.0.0.0/8\n172.16.0.0/12\n"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte(`["10.0.0.0/8", "192.168.0.0/16"]`), 0o644))

	set := &database.PrefixSet{ID: "union", Name: "union"}
	report, err := im.ImportFiles(context.Background(), set, SourceAuto, a, b)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Payloads)
	assert.Equal(t, 4, report.Parsed)
	assert.Equal(t, 3, report.Added)
	assert.Equal(t, 1, report.Batches)

	v4, err := store.QueryPrefixes("union", 4)
	require.NoError(t, err)
	assert.Len(t, v4, 3)
}

func TestImportFilesMissing(t *testing.T) {
	im := newTestImporter(t, newTestStore(t), 10)

	_, err := im.ImportFiles(context.Background(), &database.PrefixSet{}, SourceText, filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)

	_, err = im.ImportFiles(context.Background(), &database.PrefixSet{}, SourceText)
	assert.Error(t, err)
}

func TestImportCancelled(t *testing.T) {
	store := newTestStore(t)
	im := newTestImporter(t, store, 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := im.Import(ctx, &database.PrefixSet{ID: "never"}, SourceText, []byte("10.0.0.0/8"))
	assert.ErrorIs(t, err, context.Canceled)

	_, err = store.GetSet("never")
	assert.ErrorIs(t, err, database.ErrNotFound)
}

// TestImportParseErrorLeavesPayloadParked verifies that a failed import is
// not committed and that replay skips what it still cannot parse.
func TestImportParseErrorLeavesPayloadParked(t *testing.T) {
	store := newTestStore(t)
	im := newTestImporter(t, store, 10)

	_, err := im.Import(context.Background(), &database.PrefixSet{ID: "bad"}, SourceRouteviews, []byte(`["10.0.0.0/8"`))
	require.Error(t, err)
	assert.Equal(t, int64(1), im.Stats().Errors)

	pending, err := store.GetPendingImports()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "bad", pending[0].SetID)

	replayed, err := im.ReplayPending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, replayed)

	pending, _ = store.GetPendingImports()
	assert.Len(t, pending, 1)
}

func TestReplayPending(t *testing.T) {
	store := newTestStore(t)
	im := newTestImporter(t, store, 10)

	_, err := store.WritePendingImport("orphan", string(SourceText), []byte("10.0.0.0/8\n2001:db8::/32\n"))
	require.NoError(t, err)

	replayed, err := im.ReplayPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, replayed)

	set, err := store.GetSet("orphan")
	require.NoError(t, err)
	assert.Equal(t, "text", set.Source)
	assert.Equal(t, 2, set.PrefixCount)

	pending, err := store.GetPendingImports()
	require.NoError(t, err)
	assert.Empty(t, pending)

	replayed, err = im.ReplayPending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, replayed)
}
