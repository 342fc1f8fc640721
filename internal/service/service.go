package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/KasumiKitsune/odyssey-sync/internal/config"
	"github.com/KasumiKitsune/odyssey-sync/internal/history"
	"github.com/KasumiKitsune/odyssey-sync/internal/registry"
	"github.com/KasumiKitsune/odyssey-sync/internal/sync"
	"github.com/KasumiKitsune/odyssey-sync/internal/utils"
	"github.com/KasumiKitsune/odyssey-sync/internal/workspace"
)

var (
	ErrConfirmationRequired = errors.New("clearing the target requires confirmation")
	ErrItemDisabled         = errors.New("item is disabled")
)

// Service is the composition root: config, registry, engine and history
// wired together behind the operations the CLI calls.
type Service struct {
	cfg    *config.Config
	reg    *registry.Registry
	engine *sync.Engine
	hist   *history.Store
	ignore *sync.IgnoreList
}

// Options configures a Service.
type Options struct {
	Config      *config.Config
	HistoryPath string
	OnProgress  sync.ProgressFunc
}

// New wires a service from the config record, seeding builtin items and
// rehydrating their last outcomes from history.
func New(opts Options) (*Service, error) {
	cfg := opts.Config

	policy, err := cfg.SyncPolicy()
	if err != nil {
		return nil, err
	}

	reg, err := registry.New(cfg)
	if err != nil {
		return nil, err
	}

	ignore := sync.LoadIgnoreList(reg.Root(), cfg.Ignore...)
	eng := sync.NewEngine(sync.Options{
		Policy:        policy,
		ModTimeWindow: cfg.ModTimeWindow(),
		Workers:       cfg.Workers,
		Verify:        cfg.Verify,
		Ignore:        ignore,
		OnProgress:    opts.OnProgress,
	})

	histPath := opts.HistoryPath
	if histPath == "" {
		histPath = cfg.HistoryPath
	}
	if histPath == "" {
		histPath = config.DefaultHistoryPath
	}
	histPath, err = utils.ResolvePath(histPath)
	if err != nil {
		return nil, err
	}
	hist, err := history.Open(histPath)
	if err != nil {
		return nil, err
	}

	s := &Service{
		cfg:    cfg,
		reg:    reg,
		engine: eng,
		hist:   hist,
		ignore: ignore,
	}
	s.hydrate()
	return s, nil
}

// Close releases the history store.
func (s *Service) Close() error {
	return s.hist.Close()
}

func (s *Service) Config() *config.Config       { return s.cfg }
func (s *Service) Registry() *registry.Registry { return s.reg }
func (s *Service) Engine() *sync.Engine         { return s.engine }
func (s *Service) History() *history.Store      { return s.hist }

// hydrate copies each item's last recorded outcome from history into the
// registry so listings show state from before this process started.
func (s *Service) hydrate() {
	for _, it := range s.reg.List() {
		run, err := s.hist.LastRun(it.Name)
		if err != nil {
			slog.Warn("history hydrate failed", "item", it.Name, "error", err)
			continue
		}
		if run != nil {
			s.reg.SetRunState(it.Name, run.Status, run.FinishedAt)
		}
	}
}

// RunAll syncs every enabled item. Items are isolated from each other;
// the returned results carry per-item outcomes.
func (s *Service) RunAll(ctx context.Context) ([]*sync.RunResult, error) {
	items := s.reg.Enabled()
	if len(items) == 0 {
		slog.Info("no enabled items, nothing to sync")
		return nil, nil
	}

	names := make([]string, 0, len(items))
	for _, it := range items {
		names = append(names, it.Name)
	}
	return s.RunItems(ctx, names)
}

// RunItems syncs the named items in one pass under a single target lock.
// Every name must refer to an enabled item.
func (s *Service) RunItems(ctx context.Context, names []string) ([]*sync.RunResult, error) {
	specs := make([]sync.PairSpec, 0, len(names))
	for _, name := range names {
		it, err := s.reg.Get(name)
		if err != nil {
			return nil, err
		}
		if !it.Enabled {
			return nil, fmt.Errorf("%w: %s", ErrItemDisabled, name)
		}
		spec, err := s.pairSpec(name)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	if len(specs) == 0 {
		return nil, nil
	}
	return s.run(ctx, specs)
}

// RunOne syncs a single enabled item.
func (s *Service) RunOne(ctx context.Context, name string) (*sync.RunResult, error) {
	results, err := s.RunItems(ctx, []string{name})
	if len(results) == 0 {
		return nil, err
	}
	return results[0], err
}

// Plan resolves one enabled item into the actions a run would apply,
// without touching any file.
func (s *Service) Plan(ctx context.Context, name string) ([]sync.Action, error) {
	it, err := s.reg.Get(name)
	if err != nil {
		return nil, err
	}
	if !it.Enabled {
		return nil, fmt.Errorf("%w: %s", ErrItemDisabled, name)
	}

	spec, err := s.pairSpec(name)
	if err != nil {
		return nil, err
	}
	return s.engine.Plan(ctx, spec)
}

// ClearTarget empties one item's subtree on the target side. The caller
// must pass confirmed=true; the source side is never touched.
func (s *Service) ClearTarget(ctx context.Context, name string, confirmed bool) (*sync.RunResult, error) {
	if !confirmed {
		return nil, ErrConfirmationRequired
	}
	if _, err := s.reg.Get(name); err != nil {
		return nil, err
	}

	target, err := workspace.NewTarget(s.cfg.TargetRoot)
	if err != nil {
		return nil, err
	}
	if err := target.Lock(); err != nil {
		return nil, err
	}
	defer target.Unlock()

	res, err := s.engine.ClearTarget(ctx, name, filepath.Join(target.Root, name))
	if res != nil {
		s.record(res)
	}
	return res, err
}

// TestTargetWritable probes the target with a real write.
func (s *Service) TestTargetWritable(ctx context.Context) error {
	target, err := workspace.NewTarget(s.cfg.TargetRoot)
	if err != nil {
		return err
	}
	return target.CheckWritable(ctx)
}

// SetTargetRoot re-points the target folder and persists it. Nothing
// else changes: the engine keeps no per-target state to invalidate.
func (s *Service) SetTargetRoot(path string) error {
	resolved, err := utils.ResolvePath(path)
	if err != nil {
		return err
	}

	old := s.cfg.TargetRoot
	s.cfg.TargetRoot = resolved
	if err := s.cfg.Save(); err != nil {
		s.cfg.TargetRoot = old
		return err
	}

	slog.Info("target root set", "target", resolved)
	return nil
}

// run takes the target lock, probes writability and drives the engine
// over the given pairs, recording every finished result.
func (s *Service) run(ctx context.Context, specs []sync.PairSpec) ([]*sync.RunResult, error) {
	target, err := workspace.NewTarget(s.cfg.TargetRoot)
	if err != nil {
		return nil, err
	}
	if err := target.CheckWritable(ctx); err != nil {
		return nil, err
	}
	if err := target.Lock(); err != nil {
		return nil, err
	}
	defer target.Unlock()

	results, runErr := s.engine.Run(ctx, specs)
	for _, res := range results {
		s.record(res)
	}
	return results, runErr
}

// record pushes a finished result into the registry's live state and the
// durable history store.
func (s *Service) record(res *sync.RunResult) {
	s.reg.SetRunState(res.Item, res.Status, res.FinishedAt)
	if err := s.hist.Record(res); err != nil {
		slog.Error("failed to record run", "item", res.Item, "error", err)
	}
}

// pairSpec maps an item to its folder pair: the source under the app
// root and a target subtree named after the item.
func (s *Service) pairSpec(name string) (sync.PairSpec, error) {
	src, err := s.reg.SourceDir(name)
	if err != nil {
		return sync.PairSpec{}, err
	}
	if s.cfg.TargetRoot == "" {
		return sync.PairSpec{}, workspace.ErrTargetNotSet
	}
	targetRoot, err := utils.ResolvePath(s.cfg.TargetRoot)
	if err != nil {
		return sync.PairSpec{}, err
	}
	return sync.PairSpec{
		Item:       name,
		SourceRoot: src,
		TargetRoot: filepath.Join(targetRoot, name),
	}, nil
}

// resolveItem maps an absolute changed path to the enabled item covering
// it, dropping paths the ignore list filters out of snapshots anyway.
// Paths under the target root never trigger: when the target nests inside
// the app root, the engine's own writes would otherwise re-trigger runs.
func (s *Service) resolveItem(absPath string) (string, bool) {
	if s.cfg.TargetRoot != "" {
		if target, err := utils.ResolvePath(s.cfg.TargetRoot); err == nil && utils.PathContains(target, absPath) {
			return "", false
		}
	}
	for _, it := range s.reg.Enabled() {
		src, err := s.reg.SourceDir(it.Name)
		if err != nil || !utils.PathContains(src, absPath) {
			continue
		}
		rel, err := filepath.Rel(src, absPath)
		if err != nil {
			return "", false
		}
		if s.ignore.Match(utils.NormPath(rel), utils.DirExists(absPath)) {
			return "", false
		}
		return it.Name, true
	}
	return "", false
}
