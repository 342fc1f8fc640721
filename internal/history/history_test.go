package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KasumiKitsune/odyssey-sync/internal/sync"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func result(item string, startedAt time.Time, status sync.RunStatus) *sync.RunResult {
	return &sync.RunResult{
		RunID:      uuid.NewString(),
		Item:       item,
		StartedAt:  startedAt,
		FinishedAt: startedAt.Add(3 * time.Second),
		ToTarget:   2,
		ToSource:   1,
		Skipped:    4,
		Bytes:      2048,
		Status:     status,
	}
}

func TestRecordAndLastRun(t *testing.T) {
	store := newStore(t)
	base := time.Date(2024, 11, 5, 12, 0, 0, 0, time.UTC)

	older := result("word_lists", base, sync.StatusSuccess)
	newer := result("word_lists", base.Add(time.Hour), sync.StatusPartial)
	newer.Failed = 1
	require.NoError(t, store.Record(older))
	require.NoError(t, store.Record(newer))

	got, err := store.LastRun("word_lists")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, newer.RunID, got.ID)
	assert.Equal(t, "word_lists", got.Item)
	assert.Equal(t, sync.StatusPartial, got.Status)
	assert.Equal(t, 2, got.ToTarget)
	assert.Equal(t, 1, got.ToSource)
	assert.Equal(t, 4, got.Skipped)
	assert.Equal(t, 1, got.Failed)
	assert.Equal(t, int64(2048), got.Bytes)
	assert.True(t, got.StartedAt.Equal(newer.StartedAt))
	assert.True(t, got.FinishedAt.Equal(newer.FinishedAt))
}

func TestLastRunUnknownItem(t *testing.T) {
	store := newStore(t)

	got, err := store.LastRun("never_synced")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRecordNil(t *testing.T) {
	store := newStore(t)
	assert.Error(t, store.Record(nil))
}

func TestRecordSameRunUpserts(t *testing.T) {
	store := newStore(t)
	base := time.Date(2024, 11, 5, 12, 0, 0, 0, time.UTC)

	res := result("flashcards", base, sync.StatusRunning)
	require.NoError(t, store.Record(res))

	res.Status = sync.StatusSuccess
	res.ToTarget = 9
	require.NoError(t, store.Record(res))

	count, err := store.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := store.LastRun("flashcards")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, sync.StatusSuccess, got.Status)
	assert.Equal(t, 9, got.ToTarget)
}

func TestRecentNewestFirst(t *testing.T) {
	store := newStore(t)
	base := time.Date(2024, 11, 5, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		res := result("word_lists", base.Add(time.Duration(i)*time.Hour), sync.StatusSuccess)
		require.NoError(t, store.Record(res))
	}

	runs, err := store.Recent("word_lists", 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.True(t, runs[0].StartedAt.After(runs[1].StartedAt))
	assert.True(t, runs[0].StartedAt.Equal(base.Add(2*time.Hour)))
}

func TestRecentAllItems(t *testing.T) {
	store := newStore(t)
	base := time.Date(2024, 11, 5, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Record(result("word_lists", base, sync.StatusSuccess)))
	require.NoError(t, store.Record(result("flashcards", base.Add(time.Minute), sync.StatusFailed)))

	runs, err := store.Recent("", 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "flashcards", runs[0].Item)
	assert.Equal(t, "word_lists", runs[1].Item)
}

func TestPrune(t *testing.T) {
	store := newStore(t)

	old := result("word_lists", time.Now().AddDate(0, 0, -30), sync.StatusSuccess)
	recent := result("word_lists", time.Now().Add(-time.Hour), sync.StatusSuccess)
	require.NoError(t, store.Record(old))
	require.NoError(t, store.Record(recent))

	removed, err := store.Prune(7)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	runs, err := store.Recent("word_lists", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, recent.RunID, runs[0].ID)
}

func TestPruneRejectsNonPositive(t *testing.T) {
	store := newStore(t)

	_, err := store.Prune(0)
	assert.Error(t, err)
}
