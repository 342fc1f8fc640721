package sync

import (
	"sync"
	"time"
)

const statusEventBufferSize = 16

// StatusEvent is broadcast whenever an item's status changes. Result is set
// on terminal states only.
type StatusEvent struct {
	Item   string     `json:"item"`
	Status RunStatus  `json:"status"`
	Result *RunResult `json:"result,omitempty"`
	Time   time.Time  `json:"time"`
}

// StatusTracker keeps the live status of every item and broadcasts changes
// to subscribers (a host UI, the daemon log).
type StatusTracker struct {
	mu          sync.RWMutex
	items       map[string]RunStatus
	subscribers []chan StatusEvent
}

func NewStatusTracker() *StatusTracker {
	return &StatusTracker{
		items: make(map[string]RunStatus),
	}
}

// Get returns the item's current status, StatusIdle when it has never run.
func (t *StatusTracker) Get(item string) RunStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if s, ok := t.items[item]; ok {
		return s
	}
	return StatusIdle
}

// All returns a copy of every tracked item's status.
func (t *StatusTracker) All() map[string]RunStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]RunStatus, len(t.items))
	for item, s := range t.items {
		out[item] = s
	}
	return out
}

// Set records a status change and broadcasts it.
func (t *StatusTracker) Set(item string, status RunStatus, result *RunResult) {
	t.mu.Lock()
	t.items[item] = status
	subs := make([]chan StatusEvent, len(t.subscribers))
	copy(subs, t.subscribers)
	t.mu.Unlock()

	event := StatusEvent{
		Item:   item,
		Status: status,
		Result: result,
		Time:   time.Now().UTC(),
	}
	for _, ch := range subs {
		// non-blocking: a slow subscriber drops events rather than
		// stalling the run
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe returns a buffered channel of status events. Subscribers that
// fall behind miss events.
func (t *StatusTracker) Subscribe() <-chan StatusEvent {
	ch := make(chan StatusEvent, statusEventBufferSize)
	t.mu.Lock()
	t.subscribers = append(t.subscribers, ch)
	t.mu.Unlock()
	return ch
}
