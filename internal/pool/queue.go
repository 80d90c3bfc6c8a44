package pool

import (
	"sync"
	"time"
)

type entry[T any] struct {
	item T
	stop bool
}

// Queue is an unbounded work queue. Every item taken off the queue must be
// acknowledged with TaskDone; Join waits until all of them have been.
type Queue[T any] struct {
	mu         sync.Mutex
	drained    *sync.Cond
	items      []entry[T]
	lifo       bool
	unfinished int
	signal     chan struct{}
}

// NewQueue returns a FIFO queue
func NewQueue[T any]() *Queue[T] {
	q := &Queue[T]{signal: make(chan struct{}, 1)}
	q.drained = sync.NewCond(&q.mu)
	return q
}

// NewLIFOQueue returns a queue that hands out the most recent item first
func NewLIFOQueue[T any]() *Queue[T] {
	q := NewQueue[T]()
	q.lifo = true
	return q
}

// Put enqueues an item. It never blocks.
func (q *Queue[T]) Put(item T) {
	q.put(entry[T]{item: item})
}

func (q *Queue[T]) putStop() {
	q.put(entry[T]{stop: true})
}

func (q *Queue[T]) put(e entry[T]) {
	q.mu.Lock()
	q.items = append(q.items, e)
	q.unfinished++
	q.mu.Unlock()
	q.notify()
}

func (q *Queue[T]) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// get takes the next entry, waiting at most timeout. ok is false on timeout.
func (q *Queue[T]) get(timeout time.Duration) (e entry[T], ok bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		q.mu.Lock()
		if n := len(q.items); n > 0 {
			if q.lifo {
				e = q.items[n-1]
				q.items = q.items[:n-1]
			} else {
				e = q.items[0]
				var zero entry[T]
				q.items[0] = zero
				q.items = q.items[1:]
			}
			more := len(q.items) > 0
			q.mu.Unlock()
			if more {
				q.notify()
			}
			return e, true
		}
		q.mu.Unlock()

		select {
		case <-q.signal:
		case <-timer.C:
			return e, false
		}
	}
}

// TaskDone acknowledges one item previously taken off the queue
func (q *Queue[T]) TaskDone() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.unfinished--
	if q.unfinished < 0 {
		panic("pool: TaskDone called more times than items were queued")
	}
	if q.unfinished == 0 {
		q.drained.Broadcast()
	}
}

// Join blocks until every queued item has been acknowledged
func (q *Queue[T]) Join() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.unfinished > 0 {
		q.drained.Wait()
	}
}

// Len returns the number of items waiting to be taken
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drain removes and returns every waiting item, acknowledging each.
// It is meant for a final consumer with no workers of its own.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]T, 0, len(q.items))
	for _, e := range q.items {
		if !e.stop {
			out = append(out, e.item)
		}
	}
	q.unfinished -= len(q.items)
	q.items = nil
	if q.unfinished <= 0 {
		q.unfinished = 0
		q.drained.Broadcast()
	}
	return out
}
