package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"
	"github.com/shirou/gopsutil/v4/disk"

	"github.com/KasumiKitsune/odyssey-sync/internal/utils"
)

const (
	lockFileName = ".odyssey.lock"
	probePrefix  = ".odyssey-probe-"

	// lowSpaceBytes is the free-space floor below which a warning is logged.
	lowSpaceBytes = 512 * 1024 * 1024
)

var (
	ErrTargetNotSet     = errors.New("target folder is not set")
	ErrTargetUnwritable = errors.New("target folder is not writable")
	ErrWorkspaceLocked  = errors.New("target folder is locked by another process")
)

// Target is the external folder enabled items sync into, usually on a
// removable drive or a network mount. It owns the cross-process lock and
// the writability probe.
type Target struct {
	Root string

	flock *flock.Flock
}

func NewTarget(root string) (*Target, error) {
	if root == "" {
		return nil, ErrTargetNotSet
	}

	resolved, err := utils.ResolvePath(root)
	if err != nil {
		return nil, fmt.Errorf("resolve target %s: %w", root, err)
	}

	return &Target{
		Root:  resolved,
		flock: flock.New(filepath.Join(resolved, lockFileName)),
	}, nil
}

// Lock creates a lock file inside the target so other instances cannot
// sync into the same folder concurrently.
func (t *Target) Lock() error {
	if err := utils.EnsureDir(t.Root); err != nil {
		return fmt.Errorf("create target %s: %w", t.Root, err)
	}

	locked, err := t.flock.TryLock()
	if err != nil {
		return fmt.Errorf("lock target: %w", err)
	}
	if !locked {
		return ErrWorkspaceLocked
	}

	return nil
}

func (t *Target) Unlock() error {
	// if this process never took the lock, leave the lock file alone
	if !t.flock.Locked() {
		return nil
	}

	if err := t.flock.Unlock(); err != nil {
		return fmt.Errorf("unlock target: %w", err)
	}

	return os.Remove(t.flock.Path())
}

// CheckWritable proves the target accepts writes by creating and
// removing a probe file, and warns when the volume is low on space.
// Removable drives can be mounted read-only, so stat bits alone are not
// trusted.
func (t *Target) CheckWritable(ctx context.Context) error {
	if err := utils.EnsureDir(t.Root); err != nil {
		return fmt.Errorf("%w: %v", ErrTargetUnwritable, err)
	}

	probe := filepath.Join(t.Root, fmt.Sprintf("%s%d", probePrefix, time.Now().UnixNano()))
	if err := os.WriteFile(probe, []byte("odyssey"), 0o644); err != nil {
		return fmt.Errorf("%w: %v", ErrTargetUnwritable, err)
	}
	if err := os.Remove(probe); err != nil {
		return fmt.Errorf("%w: %v", ErrTargetUnwritable, err)
	}

	if usage, err := disk.UsageWithContext(ctx, t.Root); err == nil {
		if usage.Free < lowSpaceBytes {
			slog.Warn("target volume low on space",
				"target", t.Root,
				"free", humanize.Bytes(usage.Free))
		}
	} else {
		slog.Debug("disk usage unavailable", "target", t.Root, "error", err)
	}

	return nil
}
