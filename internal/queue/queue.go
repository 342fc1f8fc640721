// Package queue provides a thread-safe generic min-priority queue. The sync
// executor uses it to dispense work to its copy workers in depth order.
package queue

import (
	"container/heap"
	"sync"
)

type entry[T any] struct {
	value    T
	priority int
	seq      uint64
}

// entryHeap implements heap.Interface. Lower priority values pop first;
// entries with equal priority pop in insertion order.
type entryHeap[T any] []*entry[T]

func (h entryHeap[T]) Len() int { return len(h) }

func (h entryHeap[T]) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h entryHeap[T]) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
}

func (h *entryHeap[T]) Push(x any) {
	*h = append(*h, x.(*entry[T]))
}

func (h *entryHeap[T]) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil // avoid memory leak
	*h = old[0 : n-1]
	return e
}

// PriorityQueue is a thread-safe min-priority queue.
type PriorityQueue[T any] struct {
	heap entryHeap[T]
	seq  uint64
	mu   sync.Mutex
}

func NewPriorityQueue[T any]() *PriorityQueue[T] {
	pq := &PriorityQueue[T]{
		heap: make(entryHeap[T], 0),
	}
	heap.Init(&pq.heap)
	return pq
}

// Len returns the number of queued values.
func (pq *PriorityQueue[T]) Len() int {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	return pq.heap.Len()
}

// Enqueue adds a value with the given priority. Lower values dequeue first.
func (pq *PriorityQueue[T]) Enqueue(value T, priority int) {
	pq.mu.Lock()
	defer pq.mu.Unlock()

	pq.seq++
	heap.Push(&pq.heap, &entry[T]{
		value:    value,
		priority: priority,
		seq:      pq.seq,
	})
}

// Dequeue removes and returns the lowest-priority value, reporting false
// when the queue is empty.
func (pq *PriorityQueue[T]) Dequeue() (T, bool) {
	pq.mu.Lock()
	defer pq.mu.Unlock()

	if pq.heap.Len() == 0 {
		var zero T
		return zero, false
	}

	e := heap.Pop(&pq.heap).(*entry[T])
	return e.value, true
}

// DequeueAll drains the queue in priority order.
func (pq *PriorityQueue[T]) DequeueAll() []T {
	pq.mu.Lock()
	defer pq.mu.Unlock()

	values := make([]T, 0, pq.heap.Len())
	for pq.heap.Len() > 0 {
		e := heap.Pop(&pq.heap).(*entry[T])
		values = append(values, e.value)
	}
	return values
}
