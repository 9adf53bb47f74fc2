package memstore

import (
	"context"
	"sync"

	"github.com/perclft/qcircuit/jobs"
)

// Queue is an unbounded FIFO of work items.
//
// The signal channel (buffered, size 1) coalesces wakeups so Dequeue can
// wait on it together with ctx. Close closes the channel, waking every
// waiter; items still queued are drained before ErrQueueClosed is returned.
type Queue struct {
	mu     sync.Mutex
	items  []jobs.WorkItem
	closed bool
	signal chan struct{}
}

var _ jobs.Queue = (*Queue)(nil)

func NewQueue() *Queue {
	return &Queue{
		items:  make([]jobs.WorkItem, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

func (q *Queue) Enqueue(_ context.Context, item jobs.WorkItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return jobs.ErrQueueClosed
	}
	q.items = append(q.items, item)
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return nil
}

// TryDequeue pops the front item without blocking.
func (q *Queue) TryDequeue() (jobs.WorkItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return jobs.WorkItem{}, false
	}
	item := q.items[0]
	q.items[0] = jobs.WorkItem{}
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	// More items remain: pass the wakeup on to another waiter.
	if len(q.items) > 0 && !q.closed {
		select {
		case q.signal <- struct{}{}:
		default:
		}
	}
	return item, true
}

func (q *Queue) Dequeue(ctx context.Context) (jobs.WorkItem, error) {
	for {
		if item, ok := q.TryDequeue(); ok {
			return item, nil
		}
		q.mu.Lock()
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return jobs.WorkItem{}, jobs.ErrQueueClosed
		}
		select {
		case <-ctx.Done():
			return jobs.WorkItem{}, ctx.Err()
		case <-q.signal:
		}
	}
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops accepting items and wakes all waiters.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
