package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KasumiKitsune/odyssey-sync/internal/config"
	"github.com/KasumiKitsune/odyssey-sync/internal/registry"
	"github.com/KasumiKitsune/odyssey-sync/internal/sync"
	"github.com/KasumiKitsune/odyssey-sync/internal/workspace"
)

func newService(t *testing.T) (*Service, string, string) {
	t.Helper()
	dir := t.TempDir()
	appRoot := filepath.Join(dir, "app")
	targetRoot := filepath.Join(dir, "backup")
	require.NoError(t, os.MkdirAll(appRoot, 0o755))

	cfg := config.Default(filepath.Join(dir, "config.json"))
	cfg.AppRoot = appRoot
	cfg.TargetRoot = targetRoot

	svc, err := New(Options{
		Config:      cfg,
		HistoryPath: filepath.Join(dir, "history.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })
	return svc, appRoot, targetRoot
}

func seedFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestRunAllSyncsEnabledItems(t *testing.T) {
	svc, appRoot, targetRoot := newService(t)
	seedFile(t, appRoot, "word_lists/standard.json", `{"words":[]}`)
	seedFile(t, appRoot, "flashcards/deck1/card.png", "png")

	results, err := svc.RunAll(context.Background())
	require.NoError(t, err)
	require.Len(t, results, len(registry.BuiltinItems))

	assert.FileExists(t, filepath.Join(targetRoot, "word_lists", "standard.json"))
	assert.FileExists(t, filepath.Join(targetRoot, "flashcards", "deck1", "card.png"))

	for _, res := range results {
		assert.Equal(t, sync.StatusSuccess, res.Status, res.Item)
	}

	// outcomes land in registry state and history
	it, err := svc.Registry().Get("word_lists")
	require.NoError(t, err)
	assert.Equal(t, sync.StatusSuccess, it.LastStatus)

	run, err := svc.History().LastRun("word_lists")
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, sync.StatusSuccess, run.Status)
	assert.Equal(t, 1, run.ToTarget)
}

func TestRunAllSkipsDisabledItems(t *testing.T) {
	svc, appRoot, targetRoot := newService(t)
	seedFile(t, appRoot, "flashcards/card.png", "png")
	require.NoError(t, svc.Registry().Disable("flashcards"))

	results, err := svc.RunAll(context.Background())
	require.NoError(t, err)
	require.Len(t, results, len(registry.BuiltinItems)-1)

	for _, res := range results {
		assert.NotEqual(t, "flashcards", res.Item)
	}
	assert.NoFileExists(t, filepath.Join(targetRoot, "flashcards", "card.png"))
}

func TestRunAllWithoutItemsIsNoop(t *testing.T) {
	svc, _, _ := newService(t)
	for _, name := range registry.BuiltinItems {
		require.NoError(t, svc.Registry().Disable(name))
	}

	results, err := svc.RunAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRunOne(t *testing.T) {
	svc, appRoot, targetRoot := newService(t)
	seedFile(t, appRoot, "word_lists/a.json", "{}")
	seedFile(t, appRoot, "flashcards/b.png", "png")

	res, err := svc.RunOne(context.Background(), "word_lists")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, sync.StatusSuccess, res.Status)
	assert.Equal(t, 1, res.ToTarget)

	assert.FileExists(t, filepath.Join(targetRoot, "word_lists", "a.json"))
	assert.NoFileExists(t, filepath.Join(targetRoot, "flashcards", "b.png"), "only the named item syncs")
}

func TestRunOneDisabled(t *testing.T) {
	svc, _, _ := newService(t)
	require.NoError(t, svc.Registry().Disable("Results"))

	_, err := svc.RunOne(context.Background(), "Results")
	assert.ErrorIs(t, err, ErrItemDisabled)
}

func TestRunOneUnknown(t *testing.T) {
	svc, _, _ := newService(t)

	_, err := svc.RunOne(context.Background(), "nope")
	assert.ErrorIs(t, err, registry.ErrItemNotFound)
}

func TestRunRequiresTargetRoot(t *testing.T) {
	svc, appRoot, _ := newService(t)
	seedFile(t, appRoot, "word_lists/a.json", "{}")
	svc.Config().TargetRoot = ""

	_, err := svc.RunAll(context.Background())
	assert.ErrorIs(t, err, workspace.ErrTargetNotSet)
}

func TestRunRefusedWhileTargetLocked(t *testing.T) {
	svc, _, targetRoot := newService(t)

	other, err := workspace.NewTarget(targetRoot)
	require.NoError(t, err)
	require.NoError(t, other.Lock())
	defer other.Unlock()

	_, err = svc.RunAll(context.Background())
	assert.ErrorIs(t, err, workspace.ErrWorkspaceLocked)
}

func TestClearTargetNeedsConfirmation(t *testing.T) {
	svc, appRoot, targetRoot := newService(t)
	seedFile(t, appRoot, "word_lists/a.json", "{}")
	_, err := svc.RunAll(context.Background())
	require.NoError(t, err)

	_, err = svc.ClearTarget(context.Background(), "word_lists", false)
	assert.ErrorIs(t, err, ErrConfirmationRequired)
	assert.FileExists(t, filepath.Join(targetRoot, "word_lists", "a.json"), "refused clear must not touch files")
}

func TestClearTarget(t *testing.T) {
	svc, appRoot, targetRoot := newService(t)
	seedFile(t, appRoot, "word_lists/a.json", "{}")
	seedFile(t, appRoot, "word_lists/sub/b.json", "{}")
	seedFile(t, appRoot, "flashcards/c.png", "png")
	_, err := svc.RunAll(context.Background())
	require.NoError(t, err)

	res, err := svc.ClearTarget(context.Background(), "word_lists", true)
	require.NoError(t, err)
	assert.Equal(t, sync.StatusSuccess, res.Status)
	assert.Equal(t, 2, res.Deleted)

	assert.NoDirExists(t, filepath.Join(targetRoot, "word_lists"))
	assert.FileExists(t, filepath.Join(targetRoot, "flashcards", "c.png"), "other items keep their backups")
	assert.FileExists(t, filepath.Join(appRoot, "word_lists", "a.json"), "source side untouched")
	assert.FileExists(t, filepath.Join(appRoot, "word_lists", "sub", "b.json"))

	run, err := svc.History().LastRun("word_lists")
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, 2, run.Deleted)
}

func TestClearTargetUnknownItem(t *testing.T) {
	svc, _, _ := newService(t)

	_, err := svc.ClearTarget(context.Background(), "nope", true)
	assert.ErrorIs(t, err, registry.ErrItemNotFound)
}

func TestTestTargetWritable(t *testing.T) {
	svc, _, _ := newService(t)
	require.NoError(t, svc.TestTargetWritable(context.Background()))

	// squat a file on the target root path
	svc.Config().TargetRoot = filepath.Join(t.TempDir(), "blocked")
	require.NoError(t, os.WriteFile(svc.Config().TargetRoot, []byte("x"), 0o644))
	assert.ErrorIs(t, svc.TestTargetWritable(context.Background()), workspace.ErrTargetUnwritable)
}

func TestSetTargetRootPersists(t *testing.T) {
	svc, appRoot, _ := newService(t)
	seedFile(t, appRoot, "word_lists/a.json", "{}")

	newRoot := filepath.Join(t.TempDir(), "drive2")
	require.NoError(t, svc.SetTargetRoot(newRoot))

	reloaded, err := config.Load(svc.Config().Path)
	require.NoError(t, err)
	assert.Equal(t, newRoot, reloaded.TargetRoot)

	_, err = svc.RunAll(context.Background())
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(newRoot, "word_lists", "a.json"))
}

func TestHydrateFromHistory(t *testing.T) {
	dir := t.TempDir()
	appRoot := filepath.Join(dir, "app")
	require.NoError(t, os.MkdirAll(appRoot, 0o755))
	seedFile(t, appRoot, "word_lists/a.json", "{}")

	cfg := config.Default(filepath.Join(dir, "config.json"))
	cfg.AppRoot = appRoot
	cfg.TargetRoot = filepath.Join(dir, "backup")
	histPath := filepath.Join(dir, "history.db")

	svc, err := New(Options{Config: cfg, HistoryPath: histPath})
	require.NoError(t, err)
	_, err = svc.RunAll(context.Background())
	require.NoError(t, err)
	require.NoError(t, svc.Close())

	// a fresh process sees the previous outcomes
	cfg2, err := config.Load(cfg.Path)
	require.NoError(t, err)
	svc2, err := New(Options{Config: cfg2, HistoryPath: histPath})
	require.NoError(t, err)
	defer svc2.Close()

	it, err := svc2.Registry().Get("word_lists")
	require.NoError(t, err)
	assert.Equal(t, sync.StatusSuccess, it.LastStatus)
	assert.False(t, it.LastRunAt.IsZero())
}

func TestResolveItem(t *testing.T) {
	svc, appRoot, _ := newService(t)
	require.NoError(t, svc.Registry().Disable("Results"))

	name, ok := svc.resolveItem(filepath.Join(appRoot, "word_lists", "a.json"))
	assert.True(t, ok)
	assert.Equal(t, "word_lists", name)

	_, ok = svc.resolveItem(filepath.Join(appRoot, "word_lists", ".odyssey-tmp-42"))
	assert.False(t, ok, "sync litter never triggers a run")

	_, ok = svc.resolveItem(filepath.Join(appRoot, "Results", "r.csv"))
	assert.False(t, ok, "disabled items do not trigger")

	_, ok = svc.resolveItem(filepath.Join(appRoot, "stray.txt"))
	assert.False(t, ok, "paths outside any item are dropped")
}

func TestResolveItemIgnoresNestedTarget(t *testing.T) {
	svc, appRoot, _ := newService(t)
	svc.Config().TargetRoot = filepath.Join(appRoot, "word_lists", "backup")

	_, ok := svc.resolveItem(filepath.Join(appRoot, "word_lists", "backup", "a.json"))
	assert.False(t, ok, "the engine's own writes never re-trigger")

	name, ok := svc.resolveItem(filepath.Join(appRoot, "word_lists", "a.json"))
	assert.True(t, ok)
	assert.Equal(t, "word_lists", name)
}

func TestDaemonInitialAndWatchTriggeredSync(t *testing.T) {
	svc, appRoot, targetRoot := newService(t)
	seedFile(t, appRoot, "word_lists/a.json", "{}")
	svc.Config().FullSyncIntervalSecs = 3600
	svc.Config().WatchDebounceMs = 100

	ctx, cancel := context.WithCancel(context.Background())
	daemon := NewDaemon(svc)

	done := make(chan error, 1)
	go func() { done <- daemon.Start(ctx) }()

	// initial pass
	require.Eventually(t, func() bool {
		return fileExists(filepath.Join(targetRoot, "word_lists", "a.json"))
	}, 5*time.Second, 50*time.Millisecond, "initial pass should seed the target")

	// watcher-triggered pass
	seedFile(t, appRoot, "word_lists/b.json", "{}")
	require.Eventually(t, func() bool {
		return fileExists(filepath.Join(targetRoot, "word_lists", "b.json"))
	}, 5*time.Second, 50*time.Millisecond, "a change should trigger a targeted pass")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
