package sync

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/KasumiKitsune/odyssey-sync/internal/utils"
)

// Snapshot is one side of a pair at a point in time: every regular file
// under Root keyed by its slash-normalized relative path.
type Snapshot struct {
	Root  string
	Files map[string]*FileMeta
}

// ScanOptions tunes a snapshot walk.
type ScanOptions struct {
	// Ignore filters entries on both sides (built-ins plus user lines).
	Ignore *IgnoreList
	// Skip holds absolute paths whose subtrees are pruned, such as a
	// target root nested under the source root.
	Skip []string
	// Exclude is an extra per-item predicate over relative paths.
	Exclude func(relPath string) bool
}

func (o *ScanOptions) skipped(absPath string) bool {
	if o == nil {
		return false
	}
	for _, s := range o.Skip {
		if utils.PathContains(s, absPath) {
			return true
		}
	}
	return false
}

func (o *ScanOptions) excluded(relPath string, isDir bool) bool {
	if o == nil {
		return false
	}
	if o.Ignore.Match(relPath, isDir) {
		return true
	}
	if o.Exclude != nil && o.Exclude(relPath) {
		return true
	}
	return false
}

// TakeSnapshot walks root and records every regular file. A missing root is
// an empty snapshot, not an error: on a stateless diff the other side's
// files then read as new additions. Unreadable entries are logged and
// skipped so one bad file never sinks a whole scan. Symlinks are not
// followed.
func TakeSnapshot(ctx context.Context, root string, opts *ScanOptions) (*Snapshot, error) {
	root = filepath.Clean(root)
	snap := &Snapshot{
		Root:  root,
		Files: make(map[string]*FileMeta),
	}

	if _, err := os.Stat(root); err != nil {
		if os.IsNotExist(err) {
			return snap, nil
		}
		return nil, err
	}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}

		if err != nil {
			if path == root {
				return err
			}
			slog.Warn("scan entry failed", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if path == root {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			slog.Warn("scan rel path failed", "path", path, "error", err)
			return nil
		}
		relNorm := utils.NormPath(rel)

		if d.IsDir() {
			if opts.skipped(path) || opts.excluded(relNorm, true) {
				return fs.SkipDir
			}
			return nil
		}

		if opts.excluded(relNorm, false) {
			return nil
		}

		// symlinks, sockets, devices are not synced
		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			slog.Warn("scan stat failed", "path", path, "error", err)
			return nil
		}

		snap.Files[relNorm] = &FileMeta{
			RelPath: relNorm,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return snap, nil
}

// Count returns the number of files in the snapshot.
func (s *Snapshot) Count() int {
	return len(s.Files)
}
