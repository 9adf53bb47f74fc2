package jobs

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotFound    = errors.New("job not found")
	ErrExists      = errors.New("job already exists")
	ErrQueueClosed = errors.New("queue closed")
)

// Store persists job records. Implementations need only per-key atomicity:
// each id is created once and finished by one worker.
type Store interface {
	// Create inserts a new job and fails with ErrExists if the id is taken.
	Create(ctx context.Context, job Job) error
	// Get returns ErrNotFound for unknown ids.
	Get(ctx context.Context, id string) (Job, error)
	// Finish writes the terminal outcome. Unknown ids yield ErrNotFound.
	Finish(ctx context.Context, id string, o Outcome) error
}

// UndecodableItemError is returned by Dequeue for a payload that left the
// queue but could not be decoded. JobID is set when it could be recovered
// from the payload.
type UndecodableItemError struct {
	JobID   string
	Payload string
	Err     error
}

func (e *UndecodableItemError) Error() string {
	return fmt.Sprintf("undecodable work item (job %q): %v", e.JobID, e.Err)
}

func (e *UndecodableItemError) Unwrap() error { return e.Err }

// Queue carries work items from the scheduler to the workers.
type Queue interface {
	Enqueue(ctx context.Context, item WorkItem) error
	// Dequeue blocks until an item is available, ctx is done (ctx.Err()) or
	// the queue is closed and drained (ErrQueueClosed).
	Dequeue(ctx context.Context) (WorkItem, error)
}

// Pinger is implemented by stores that can report backend reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}
