package watch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rjeczalik/notify"
)

const (
	eventBufferSize = 64

	// DefaultDebounce coalesces the burst of writes a single save produces
	// into one trigger.
	DefaultDebounce = 2 * time.Second
)

// ItemEvent names an item whose source tree changed on disk.
type ItemEvent struct {
	Item string
	Path string
}

// Resolver maps an absolute changed path to the item it belongs to. It
// returns false for paths that should not trigger anything, like sync
// litter or folders no enabled item covers.
type Resolver func(absPath string) (string, bool)

// Watcher turns raw filesystem notifications under the app root into
// debounced per-item triggers.
type Watcher struct {
	root     string
	resolve  Resolver
	debounce time.Duration

	events chan ItemEvent
	raw    chan notify.EventInfo

	mu      sync.Mutex
	timers  map[string]*time.Timer
	lastHit map[string]string

	done chan struct{}
	wg   sync.WaitGroup
}

func NewWatcher(root string, debounce time.Duration, resolve Resolver) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		root:     root,
		resolve:  resolve,
		debounce: debounce,
		events:   make(chan ItemEvent, eventBufferSize),
		timers:   make(map[string]*time.Timer),
		lastHit:  make(map[string]string),
		done:     make(chan struct{}),
	}
}

// Start begins watching the root recursively. Create, write, remove and
// rename events all count as changes.
func (w *Watcher) Start(ctx context.Context) error {
	slog.Info("watcher start", "dir", w.root, "debounce", w.debounce)

	w.raw = make(chan notify.EventInfo, eventBufferSize)
	if err := notify.Watch(w.root+"/...", w.raw, notify.Create|notify.Write|notify.Remove|notify.Rename); err != nil {
		return err
	}

	w.wg.Add(1)
	go w.loop(ctx)
	return nil
}

// Stop halts the watcher and its pending timers. The events channel is
// never closed, so a racing timer can still fire into the buffer.
func (w *Watcher) Stop() {
	close(w.done)
	if w.raw != nil {
		notify.Stop(w.raw)
	}
	w.wg.Wait()

	w.mu.Lock()
	for item, timer := range w.timers {
		timer.Stop()
		delete(w.timers, item)
		delete(w.lastHit, item)
	}
	w.mu.Unlock()

	slog.Info("watcher stopped")
}

// Events delivers one ItemEvent per item per quiet period.
func (w *Watcher) Events() <-chan ItemEvent {
	return w.events
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case ev, ok := <-w.raw:
			if !ok {
				return
			}
			w.handleEvent(ev.Path())
		}
	}
}

// handleEvent re-arms the item's debounce timer, so the trigger fires
// once the tree has been quiet for the debounce window.
func (w *Watcher) handleEvent(absPath string) {
	item, ok := w.resolve(absPath)
	if !ok {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.lastHit[item] = absPath
	if timer, ok := w.timers[item]; ok {
		timer.Stop()
	}
	w.timers[item] = time.AfterFunc(w.debounce, func() {
		w.fire(item)
	})
}

func (w *Watcher) fire(item string) {
	w.mu.Lock()
	path := w.lastHit[item]
	delete(w.timers, item)
	delete(w.lastHit, item)
	w.mu.Unlock()

	select {
	case w.events <- ItemEvent{Item: item, Path: path}:
		slog.Debug("watcher trigger", "item", item, "path", path)
	default:
		slog.Warn("watcher dropped trigger", "reason", "channel full", "item", item)
	}
}
