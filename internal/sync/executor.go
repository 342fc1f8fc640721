package sync

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/KasumiKitsune/odyssey-sync/internal/queue"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	// DefaultWorkers is the copy worker count when none is configured.
	DefaultWorkers = 4

	digestCacheSize = 4096
	digestCacheTTL  = 15 * time.Minute
)

// ProgressEvent is emitted after every finished action.
type ProgressEvent struct {
	Item      string    `json:"item"`
	Done      int       `json:"done"`
	Total     int       `json:"total"`
	RelPath   string    `json:"rel_path"`
	Direction Direction `json:"direction"`
	Bytes     int64     `json:"bytes"`
}

// ProgressFunc receives progress events. Calls are serialized.
type ProgressFunc func(ProgressEvent)

// Executor applies resolved actions between two roots with a bounded worker
// pool. Failures are isolated per file: a copy that fails is recorded on
// the result and the rest of the run continues.
type Executor struct {
	workers    int
	digests    *expirable.LRU[string, string]
	onProgress ProgressFunc
}

// NewExecutor builds an executor. Verify mode hashes every copied stream
// against the source digest; digests are memoized so repeat runs over
// unchanged files stay cheap.
func NewExecutor(workers int, verify bool, onProgress ProgressFunc) *Executor {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	e := &Executor{
		workers:    workers,
		onProgress: onProgress,
	}
	if verify {
		e.digests = expirable.NewLRU[string, string](digestCacheSize, nil, digestCacheTTL)
	}
	return e
}

// actionPriority orders the work queue: copies shallow-first so parent
// trees fill in breadth order, deletes deep-first so files go before the
// directories above them.
func actionPriority(act Action) int {
	depth := strings.Count(act.RelPath, "/")
	if act.Direction == DeleteFromTarget || act.Direction == DeleteFromSource {
		return -depth
	}
	return depth
}

// Apply runs every non-skip action and tallies outcomes into res.
// Cancellation is honored between files: in-flight copies finish or discard
// their temp file, queued work is abandoned, and the context error is
// returned. Applied actions stay applied.
func (e *Executor) Apply(ctx context.Context, item, srcRoot, tgtRoot string, actions []Action, res *RunResult) error {
	pending := make([]Action, 0, len(actions))
	for _, act := range actions {
		if act.Direction == Skip {
			res.Skipped++
			continue
		}
		pending = append(pending, act)
	}

	total := len(pending)
	if total == 0 {
		return ctx.Err()
	}

	work := queue.NewPriorityQueue[Action]()
	for _, act := range pending {
		work.Enqueue(act, actionPriority(act))
	}

	var (
		mu   sync.Mutex
		dirs sync.Map
		wg   sync.WaitGroup
		done int
	)

	workers := min(e.workers, total)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if ctx.Err() != nil {
					return
				}
				act, ok := work.Dequeue()
				if !ok {
					return
				}

				n, err := e.applyOne(srcRoot, tgtRoot, act, &dirs)

				mu.Lock()
				if err != nil {
					res.Failed++
					res.Failures = append(res.Failures, newFailure(act.RelPath, kindForError(err), err))
				} else {
					switch act.Direction {
					case ToTarget:
						res.ToTarget++
					case ToSource:
						res.ToSource++
					case DeleteFromTarget, DeleteFromSource:
						res.Deleted++
					}
					res.Bytes += n
				}
				done++
				if e.onProgress != nil {
					e.onProgress(ProgressEvent{
						Item:      item,
						Done:      done,
						Total:     total,
						RelPath:   act.RelPath,
						Direction: act.Direction,
						Bytes:     res.Bytes,
					})
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	return ctx.Err()
}

func (e *Executor) applyOne(srcRoot, tgtRoot string, act Action, dirs *sync.Map) (int64, error) {
	rel := filepath.FromSlash(act.RelPath)

	switch act.Direction {
	case ToTarget:
		dst := filepath.Join(tgtRoot, rel)
		if err := ensureDirOnce(dirs, filepath.Dir(dst)); err != nil {
			return 0, err
		}
		return copyFile(filepath.Join(srcRoot, rel), dst, e.digests)
	case ToSource:
		dst := filepath.Join(srcRoot, rel)
		if err := ensureDirOnce(dirs, filepath.Dir(dst)); err != nil {
			return 0, err
		}
		return copyFile(filepath.Join(tgtRoot, rel), dst, e.digests)
	case DeleteFromTarget:
		return 0, removeFile(filepath.Join(tgtRoot, rel))
	case DeleteFromSource:
		return 0, removeFile(filepath.Join(srcRoot, rel))
	default:
		return 0, nil
	}
}

// ensureDirOnce creates dir once per run. Workers share the cache so a
// directory full of files costs a single MkdirAll.
func ensureDirOnce(dirs *sync.Map, dir string) error {
	if _, seen := dirs.Load(dir); seen {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	dirs.Store(dir, struct{}{})
	return nil
}

// removeFile deletes path; a file already gone counts as removed.
func removeFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func kindForError(err error) ErrKind {
	if errors.Is(err, ErrDigestMismatch) {
		return KindIntegrity
	}
	return KindIO
}
