package sync

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/KasumiKitsune/odyssey-sync/internal/utils"
	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"
)

// PairSpec names one folder pair for a run.
type PairSpec struct {
	Item       string
	SourceRoot string
	TargetRoot string
}

// Options configures an Engine.
type Options struct {
	Policy        Policy
	ModTimeWindow time.Duration
	Workers       int
	Verify        bool
	Ignore        *IgnoreList
	OnProgress    ProgressFunc
}

// Engine runs the snapshot → diff → resolve → execute pipeline for folder
// pairs. It is stateless between runs: every run scans both sides fresh.
type Engine struct {
	policy   Policy
	window   time.Duration
	ignore   *IgnoreList
	status   *StatusTracker
	executor *Executor
	muSync   sync.Mutex
}

func NewEngine(opts Options) *Engine {
	ignore := opts.Ignore
	if ignore == nil {
		ignore = NewIgnoreList()
	}
	return &Engine{
		policy:   opts.Policy,
		window:   opts.ModTimeWindow,
		ignore:   ignore,
		status:   NewStatusTracker(),
		executor: NewExecutor(opts.Workers, opts.Verify, opts.OnProgress),
	}
}

// Status exposes the live per-item status tracker.
func (e *Engine) Status() *StatusTracker {
	return e.status
}

// Policy returns the engine-wide conflict policy.
func (e *Engine) Policy() Policy {
	return e.policy
}

// Run syncs the given pairs in order, one result per pair. Items are
// isolated: a pair that fails is recorded and the next one still runs.
// Only one run may be active per engine; a concurrent call fails fast with
// ErrSyncInProgress. On cancellation the remaining pairs are not started
// and the context error is returned alongside the finished results.
func (e *Engine) Run(ctx context.Context, specs []PairSpec) ([]*RunResult, error) {
	if !e.muSync.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer e.muSync.Unlock()

	results := make([]*RunResult, 0, len(specs))
	for _, spec := range specs {
		if ctx.Err() != nil {
			break
		}
		results = append(results, e.syncPair(ctx, spec))
	}
	return results, ctx.Err()
}

// Plan resolves a pair without touching any file. Used for dry runs.
func (e *Engine) Plan(ctx context.Context, spec PairSpec) ([]Action, error) {
	rules, err := LoadItemRules(spec.SourceRoot)
	if err != nil {
		return nil, err
	}
	return e.planWithRules(ctx, spec, rules)
}

func (e *Engine) syncPair(ctx context.Context, spec PairSpec) *RunResult {
	res := newRunResult(spec.Item)
	e.status.Set(spec.Item, StatusRunning, nil)
	slog.Info("sync start", "item", spec.Item, "source", spec.SourceRoot, "target", spec.TargetRoot)

	rules, err := LoadItemRules(spec.SourceRoot)
	if err != nil {
		res.fail(RulesFileName, KindValidation, err)
		return e.finish(res)
	}

	actions, err := e.planWithRules(ctx, spec, rules)
	if err != nil {
		if ctx.Err() != nil {
			res.finalize(true)
		} else {
			res.fail(".", KindIO, err)
		}
		return e.finish(res)
	}

	err = e.executor.Apply(ctx, spec.Item, spec.SourceRoot, spec.TargetRoot, actions, res)
	res.finalize(err != nil)
	return e.finish(res)
}

func (e *Engine) finish(res *RunResult) *RunResult {
	e.status.Set(res.Item, res.Status, res)
	slog.Info("sync done",
		"item", res.Item,
		"status", res.Status,
		"to_target", res.ToTarget,
		"to_source", res.ToSource,
		"deleted", res.Deleted,
		"skipped", res.Skipped,
		"failed", res.Failed,
		"bytes", humanize.Bytes(uint64(res.Bytes)),
		"took", res.Duration().Round(time.Millisecond),
	)
	return res
}

func (e *Engine) planWithRules(ctx context.Context, spec PairSpec, rules *ItemRules) ([]Action, error) {
	srcOpts := ScanOptions{Ignore: e.ignore, Skip: nestedRoot(spec.SourceRoot, spec.TargetRoot)}
	tgtOpts := ScanOptions{Ignore: e.ignore, Skip: nestedRoot(spec.TargetRoot, spec.SourceRoot)}
	if rules != nil {
		srcOpts.Exclude = rules.Excluded
		tgtOpts.Exclude = rules.Excluded
	}

	var srcSnap, tgtSnap *Snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		srcSnap, err = TakeSnapshot(gctx, spec.SourceRoot, &srcOpts)
		return err
	})
	g.Go(func() error {
		var err error
		tgtSnap, err = TakeSnapshot(gctx, spec.TargetRoot, &tgtOpts)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	policy := e.policy
	if p, ok := rules.PolicyOverride(); ok {
		policy = p
	}

	changes := Diff(srcSnap, tgtSnap, e.window)
	return ResolveAll(changes, policy, e.window), nil
}

// nestedRoot returns other as a skip entry when it lives inside root, so a
// target root nested under a source folder is never dragged into its own
// sync.
func nestedRoot(root, other string) []string {
	if root != other && utils.PathContains(root, other) {
		return []string{other}
	}
	return nil
}

// ClearTarget deletes every file in one item's target subtree, deepest
// files first, then prunes the emptied directories. The source side is
// never touched. Failures are per-file like any run.
func (e *Engine) ClearTarget(ctx context.Context, item, targetDir string) (*RunResult, error) {
	if !e.muSync.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer e.muSync.Unlock()

	res := newRunResult(item)
	e.status.Set(item, StatusRunning, nil)
	slog.Info("clear target start", "item", item, "target", targetDir)

	// no ignore list here: clearing removes litter too
	snap, err := TakeSnapshot(ctx, targetDir, nil)
	if err != nil {
		if ctx.Err() != nil {
			res.finalize(true)
		} else {
			res.fail(".", KindIO, err)
		}
		return e.finish(res), ctx.Err()
	}

	rels := make([]string, 0, len(snap.Files))
	for rel := range snap.Files {
		rels = append(rels, rel)
	}
	sort.Strings(rels)

	actions := make([]Action, 0, len(rels))
	for _, rel := range rels {
		actions = append(actions, Action{RelPath: rel, Direction: DeleteFromTarget, Size: snap.Files[rel].Size})
	}

	err = e.executor.Apply(ctx, item, "", targetDir, actions, res)
	if err == nil {
		pruneEmptyDirs(targetDir)
	}
	res.finalize(err != nil)
	return e.finish(res), ctx.Err()
}

// pruneEmptyDirs removes now-empty directories bottom-up, the cleared root
// included. Directories that still hold files (failed deletions) survive.
func pruneEmptyDirs(root string) {
	var dirs []string
	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			dirs = append(dirs, path)
		}
		return nil
	})

	// children sort after parents, remove in reverse
	sort.Strings(dirs)
	for i := len(dirs) - 1; i >= 0; i-- {
		os.Remove(dirs[i])
	}
}
