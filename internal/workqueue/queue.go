// Package workqueue implements the bounded blocking queue that feeds each
// policy's worker pool: a fixed-capacity FIFO with producer/consumer
// backpressure and a per-status, per-feedback counter set for reporting.
package workqueue

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Queue is a generic bounded FIFO. Producers block on Push when the
// queue is full; consumers block on Pop when it is empty. Both respect
// context cancellation.
type Queue[T any] struct {
	mu       sync.Mutex
	items    *list.List
	empty    *semaphore.Weighted // tokens = free slots
	full     *semaphore.Weighted // tokens = filled slots
	capacity int64
}

// New returns a Queue with the given fixed capacity.
func New[T any](capacity int) *Queue[T] {
	if capacity <= 0 {
		capacity = 1
	}
	full := semaphore.NewWeighted(int64(capacity))
	// no slot is filled yet: hold every token until a Push releases one.
	full.TryAcquire(int64(capacity))
	return &Queue[T]{
		items:    list.New(),
		empty:    semaphore.NewWeighted(int64(capacity)),
		full:     full,
		capacity: int64(capacity),
	}
}

// Push enqueues v, blocking until a slot is free or ctx is done.
func (q *Queue[T]) Push(ctx context.Context, v T) error {
	if err := q.empty.Acquire(ctx, 1); err != nil {
		return err
	}
	q.mu.Lock()
	q.items.PushBack(v)
	q.mu.Unlock()
	q.full.Release(1)
	return nil
}

// Pop dequeues the oldest item, blocking until one is available or ctx is
// done.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	var zero T
	if err := q.full.Acquire(ctx, 1); err != nil {
		return zero, err
	}
	q.mu.Lock()
	front := q.items.Front()
	q.items.Remove(front)
	q.mu.Unlock()
	q.empty.Release(1)
	return front.Value.(T), nil
}

// Len returns the current number of queued items. Advisory only: may be
// stale immediately after the call returns under concurrent use.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Cap returns the queue's fixed capacity.
func (q *Queue[T]) Cap() int { return int(q.capacity) }

// Counters tracks per-status and per-feedback-field accumulators, the
// bookkeeping a policy's worker pool relies on to report progress
// without a lock per increment.
type Counters struct {
	status   sync.Map // string -> *int64
	feedback sync.Map // string -> *int64
}

// NewCounters returns an empty Counters.
func NewCounters() *Counters { return &Counters{} }

// IncStatus increments the counter for the given status string by delta.
func (c *Counters) IncStatus(status string, delta int64) {
	incMapCounter(&c.status, status, delta)
}

// IncFeedback increments the named feedback field (e.g. "nbr_ok",
// "vol_ok", "blocks_ok", "targeted_ok") by delta.
func (c *Counters) IncFeedback(field string, delta int64) {
	incMapCounter(&c.feedback, field, delta)
}

// Status returns the current value of the named status counter.
func (c *Counters) Status(status string) int64 { return readMapCounter(&c.status, status) }

// Feedback returns the current value of the named feedback counter.
func (c *Counters) Feedback(field string) int64 { return readMapCounter(&c.feedback, field) }

// Snapshot returns a point-in-time copy of all status counters.
func (c *Counters) Snapshot() map[string]int64 {
	out := make(map[string]int64)
	c.status.Range(func(k, v any) bool {
		out[k.(string)] = atomic.LoadInt64(v.(*int64))
		return true
	})
	return out
}

func incMapCounter(m *sync.Map, key string, delta int64) {
	v, _ := m.LoadOrStore(key, new(int64))
	atomic.AddInt64(v.(*int64), delta)
}

func readMapCounter(m *sync.Map, key string) int64 {
	v, ok := m.Load(key)
	if !ok {
		return 0
	}
	return atomic.LoadInt64(v.(*int64))
}
