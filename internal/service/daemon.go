package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/KasumiKitsune/odyssey-sync/internal/registry"
	"github.com/KasumiKitsune/odyssey-sync/internal/sync"
	"github.com/KasumiKitsune/odyssey-sync/internal/watch"
)

// Daemon keeps the target converged in the background: a full pass on
// start, another on every interval tick, and a targeted pass whenever
// the watcher reports a quiet item tree.
type Daemon struct {
	svc     *Service
	watcher *watch.Watcher
}

func NewDaemon(svc *Service) *Daemon {
	return &Daemon{svc: svc}
}

// Start blocks until the context is cancelled or a component fails.
func (d *Daemon) Start(ctx context.Context) error {
	cfg := d.svc.Config()
	slog.Info("daemon start",
		"interval", cfg.FullSyncInterval(),
		"debounce", cfg.WatchDebounce())

	d.watcher = watch.NewWatcher(d.svc.reg.Root(), cfg.WatchDebounce(), d.svc.resolveItem)
	statusCh := d.svc.Engine().Status().Subscribe()

	eg, egCtx := errgroup.WithContext(ctx)

	if err := d.watcher.Start(egCtx); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	eg.Go(func() error {
		return d.loop(egCtx)
	})

	eg.Go(func() error {
		d.watchStatus(egCtx, statusCh)
		return nil
	})

	eg.Go(func() error {
		<-egCtx.Done()
		slog.Info("stopping daemon")
		d.watcher.Stop()
		return egCtx.Err()
	})

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("daemon failure", "error", err)
		return err
	}

	slog.Info("daemon stopped")
	return nil
}

func (d *Daemon) loop(ctx context.Context) error {
	// full pass up front so a freshly attached target converges without
	// waiting for the first tick
	d.runAll(ctx)

	ticker := time.NewTicker(d.svc.Config().FullSyncInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.runAll(ctx)
		case ev := <-d.watcher.Events():
			d.runOne(ctx, ev.Item)
		}
	}
}

func (d *Daemon) runAll(ctx context.Context) {
	if _, err := d.svc.RunAll(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("scheduled sync failed", "error", err)
	}
}

// watchStatus raises failed and partial outcomes to warnings, keeping
// them visible in a headless daemon's log.
func (d *Daemon) watchStatus(ctx context.Context, events <-chan sync.StatusEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			if ev.Status == sync.StatusFailed || ev.Status == sync.StatusPartial {
				slog.Warn("item needs attention", "item", ev.Item, "status", ev.Status)
			}
		}
	}
}

func (d *Daemon) runOne(ctx context.Context, item string) {
	slog.Info("change detected", "item", item)

	_, err := d.svc.RunOne(ctx, item)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
	case errors.Is(err, ErrItemDisabled), errors.Is(err, registry.ErrItemNotFound):
		// the item changed under us between the event and the run
		slog.Debug("triggered sync skipped", "item", item, "reason", err)
	default:
		slog.Error("triggered sync failed", "item", item, "error", err)
	}
}
