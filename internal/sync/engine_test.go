package sync

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runOne(t *testing.T, e *Engine, item, src, tgt string) *RunResult {
	t.Helper()
	results, err := e.Run(context.Background(), []PairSpec{{Item: item, SourceRoot: src, TargetRoot: tgt}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	return results[0]
}

func TestEngineSeedsEmptyTarget(t *testing.T) {
	src := t.TempDir()
	tgt := t.TempDir()
	writeFileAt(t, filepath.Join(src, "a.txt"), "alpha", baseTime)
	writeFileAt(t, filepath.Join(src, "sub", "b.txt"), "beta", baseTime.Add(time.Minute))

	e := NewEngine(Options{})
	res := runOne(t, e, "words", src, tgt)

	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, 2, res.ToTarget)
	assert.Equal(t, 0, res.ToSource)
	assert.Equal(t, 0, res.Failed)

	data, err := os.ReadFile(filepath.Join(tgt, "sub", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "beta", string(data))

	// second run is a no-op
	res = runOne(t, e, "words", src, tgt)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, 0, res.Applied())
	assert.Equal(t, 2, res.Skipped)
}

func TestEngineNewerSourceWinsConflict(t *testing.T) {
	src := t.TempDir()
	tgt := t.TempDir()
	writeFileAt(t, filepath.Join(src, "doc.txt"), "fresh", baseTime.Add(time.Hour))
	writeFileAt(t, filepath.Join(tgt, "doc.txt"), "stale", baseTime)

	e := NewEngine(Options{Policy: PreferNewer})
	res := runOne(t, e, "docs", src, tgt)

	assert.Equal(t, 1, res.ToTarget)

	data, err := os.ReadFile(filepath.Join(tgt, "doc.txt"))
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(data))

	info, err := os.Stat(filepath.Join(tgt, "doc.txt"))
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(baseTime.Add(time.Hour)))

	// convergence: the copy carried the mtime, so nothing moves again
	res = runOne(t, e, "docs", src, tgt)
	assert.Equal(t, 0, res.Applied())
}

func TestEngineNewerTargetWinsConflict(t *testing.T) {
	src := t.TempDir()
	tgt := t.TempDir()
	writeFileAt(t, filepath.Join(src, "doc.txt"), "stale", baseTime)
	writeFileAt(t, filepath.Join(tgt, "doc.txt"), "edited elsewhere", baseTime.Add(time.Hour))

	e := NewEngine(Options{Policy: PreferNewer})
	res := runOne(t, e, "docs", src, tgt)

	assert.Equal(t, 1, res.ToSource)
	data, err := os.ReadFile(filepath.Join(src, "doc.txt"))
	require.NoError(t, err)
	assert.Equal(t, "edited elsewhere", string(data))
}

func TestEngineTieSkipsUnderPreferNewer(t *testing.T) {
	src := t.TempDir()
	tgt := t.TempDir()
	writeFileAt(t, filepath.Join(src, "doc.txt"), "mine", baseTime)
	writeFileAt(t, filepath.Join(tgt, "doc.txt"), "theirs!", baseTime)

	e := NewEngine(Options{Policy: PreferNewer})
	res := runOne(t, e, "docs", src, tgt)

	assert.Equal(t, 0, res.Applied())
	assert.Equal(t, 1, res.Skipped)

	// both sides keep their content
	data, _ := os.ReadFile(filepath.Join(src, "doc.txt"))
	assert.Equal(t, "mine", string(data))
	data, _ = os.ReadFile(filepath.Join(tgt, "doc.txt"))
	assert.Equal(t, "theirs!", string(data))
}

func TestEngineBidirectionalMerge(t *testing.T) {
	src := t.TempDir()
	tgt := t.TempDir()
	writeFileAt(t, filepath.Join(src, "only-src.txt"), "s", baseTime)
	writeFileAt(t, filepath.Join(tgt, "only-tgt.txt"), "t", baseTime)

	e := NewEngine(Options{})
	res := runOne(t, e, "merge", src, tgt)

	assert.Equal(t, 1, res.ToTarget)
	assert.Equal(t, 1, res.ToSource)
	assert.FileExists(t, filepath.Join(tgt, "only-src.txt"))
	assert.FileExists(t, filepath.Join(src, "only-tgt.txt"))

	// a second pass has nothing left to move
	res = runOne(t, e, "merge", src, tgt)
	assert.Equal(t, 0, res.Applied())
}

func TestEnginePreferSourceConverges(t *testing.T) {
	src := t.TempDir()
	tgt := t.TempDir()
	writeFileAt(t, filepath.Join(src, "doc.txt"), "source copy", baseTime)
	writeFileAt(t, filepath.Join(tgt, "doc.txt"), "target copy!!", baseTime)

	e := NewEngine(Options{Policy: PreferSource})
	res := runOne(t, e, "docs", src, tgt)
	assert.Equal(t, 1, res.ToTarget)

	data, _ := os.ReadFile(filepath.Join(tgt, "doc.txt"))
	assert.Equal(t, "source copy", string(data))

	res = runOne(t, e, "docs", src, tgt)
	assert.Equal(t, 0, res.Applied())
}

func TestEngineRulesExcludeAndOverride(t *testing.T) {
	src := t.TempDir()
	tgt := t.TempDir()
	writeFileAt(t, filepath.Join(src, "keep.wav"), "audio", baseTime)
	writeFileAt(t, filepath.Join(src, "debug.log"), "noise", baseTime)
	writeRules(t, src, "exclude:\n  - \"*.log\"\npolicy: source\n")

	// target edited later; item-level policy still pushes the source copy
	writeFileAt(t, filepath.Join(src, "keep.wav"), "audio", baseTime)
	writeFileAt(t, filepath.Join(tgt, "keep.wav"), "other audio", baseTime.Add(time.Hour))

	e := NewEngine(Options{Policy: PreferNewer})
	res := runOne(t, e, "audio", src, tgt)

	assert.Equal(t, 1, res.ToTarget)
	assert.NoFileExists(t, filepath.Join(tgt, "debug.log"))
	assert.NoFileExists(t, filepath.Join(tgt, RulesFileName), "rules file itself never syncs")

	data, _ := os.ReadFile(filepath.Join(tgt, "keep.wav"))
	assert.Equal(t, "audio", string(data))
}

func TestEngineBadRulesFailsValidation(t *testing.T) {
	src := t.TempDir()
	tgt := t.TempDir()
	writeFileAt(t, filepath.Join(src, "a.txt"), "x", baseTime)
	writeRules(t, src, "policy: [broken")

	e := NewEngine(Options{})
	res := runOne(t, e, "broken", src, tgt)

	assert.Equal(t, StatusFailed, res.Status)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, KindValidation, res.Failures[0].Kind)
	assert.NoFileExists(t, filepath.Join(tgt, "a.txt"), "validation failures touch nothing")
}

func TestEnginePartialFailure(t *testing.T) {
	src := t.TempDir()
	tgt := t.TempDir()
	writeFileAt(t, filepath.Join(src, "ok.txt"), "fine", baseTime)
	writeFileAt(t, filepath.Join(src, "blocked.txt"), "nope", baseTime)
	require.NoError(t, os.MkdirAll(filepath.Join(tgt, "blocked.txt"), 0o755))

	e := NewEngine(Options{Workers: 1})
	res := runOne(t, e, "mixed", src, tgt)

	assert.Equal(t, StatusPartial, res.Status)
	assert.Equal(t, 1, res.Failed)
	assert.FileExists(t, filepath.Join(tgt, "ok.txt"))
	assert.Equal(t, StatusPartial, e.Status().Get("mixed"))
}

func TestEngineMissingSourceSeedsBack(t *testing.T) {
	src := filepath.Join(t.TempDir(), "never-created")
	tgt := t.TempDir()
	writeFileAt(t, filepath.Join(tgt, "orphan.txt"), "come home", baseTime)

	e := NewEngine(Options{})
	res := runOne(t, e, "restore", src, tgt)

	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, 1, res.ToSource)
	assert.FileExists(t, filepath.Join(src, "orphan.txt"))
}

func TestEnginePrunesNestedTarget(t *testing.T) {
	src := t.TempDir()
	tgt := filepath.Join(src, "backup")
	writeFileAt(t, filepath.Join(src, "a.txt"), "x", baseTime)

	e := NewEngine(Options{})
	res := runOne(t, e, "nested", src, tgt)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, 1, res.ToTarget)
	assert.FileExists(t, filepath.Join(tgt, "a.txt"))

	// the target subtree must not fold back into the next scan
	res = runOne(t, e, "nested", src, tgt)
	assert.Equal(t, 0, res.Applied())
}

func TestEngineRunIsExclusive(t *testing.T) {
	e := NewEngine(Options{})
	e.muSync.Lock()
	defer e.muSync.Unlock()

	_, err := e.Run(context.Background(), []PairSpec{{Item: "x", SourceRoot: "/a", TargetRoot: "/b"}})
	assert.ErrorIs(t, err, ErrSyncInProgress)

	_, err = e.ClearTarget(context.Background(), "x", "/b")
	assert.ErrorIs(t, err, ErrSyncInProgress)
}

func TestEnginePlanTouchesNothing(t *testing.T) {
	src := t.TempDir()
	tgt := t.TempDir()
	writeFileAt(t, filepath.Join(src, "a.txt"), "x", baseTime)

	e := NewEngine(Options{})
	actions, err := e.Plan(context.Background(), PairSpec{Item: "dry", SourceRoot: src, TargetRoot: tgt})
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, ToTarget, actions[0].Direction)
	assert.NoFileExists(t, filepath.Join(tgt, "a.txt"))
}

func TestEngineClearTarget(t *testing.T) {
	src := t.TempDir()
	tgt := t.TempDir()
	itemDir := filepath.Join(tgt, "words")
	writeFileAt(t, filepath.Join(src, "a.txt"), "x", baseTime)
	writeFileAt(t, filepath.Join(itemDir, "a.txt"), "x", baseTime)
	writeFileAt(t, filepath.Join(itemDir, "deep", "b.txt"), "y", baseTime)

	e := NewEngine(Options{})
	res, err := e.ClearTarget(context.Background(), "words", itemDir)
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, 2, res.Deleted)
	assert.NoDirExists(t, itemDir, "cleared subtree is emptied away")
	assert.FileExists(t, filepath.Join(src, "a.txt"), "source side untouched")

	// the next run re-seeds the target from scratch
	seeded := runOne(t, e, "words", src, itemDir)
	assert.Equal(t, 1, seeded.ToTarget)
	assert.FileExists(t, filepath.Join(itemDir, "a.txt"))
}

func TestEngineClearTargetAbsentDir(t *testing.T) {
	e := NewEngine(Options{})
	res, err := e.ClearTarget(context.Background(), "ghost", filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, 0, res.Deleted)
}

func TestEngineCancelledRun(t *testing.T) {
	src := t.TempDir()
	tgt := t.TempDir()
	writeFileAt(t, filepath.Join(src, "a.txt"), "x", baseTime)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := NewEngine(Options{})
	results, err := e.Run(ctx, []PairSpec{{Item: "x", SourceRoot: src, TargetRoot: tgt}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, results, "no pair starts on a dead context")
}

func TestEngineItemIsolationAcrossPairs(t *testing.T) {
	srcA := t.TempDir()
	tgtA := t.TempDir()
	srcB := t.TempDir()
	tgtB := t.TempDir()
	writeFileAt(t, filepath.Join(srcA, "a.txt"), "x", baseTime)
	writeRules(t, srcA, "policy: [broken")
	writeFileAt(t, filepath.Join(srcB, "b.txt"), "y", baseTime)

	e := NewEngine(Options{})
	results, err := e.Run(context.Background(), []PairSpec{
		{Item: "bad", SourceRoot: srcA, TargetRoot: tgtA},
		{Item: "good", SourceRoot: srcB, TargetRoot: tgtB},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, StatusFailed, results[0].Status)
	assert.Equal(t, StatusSuccess, results[1].Status)
	assert.FileExists(t, filepath.Join(tgtB, "b.txt"), "one broken item does not stop the rest")
}
