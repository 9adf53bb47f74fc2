// Package redisstore keeps job records and the work queue in Redis.
//
// A job lives under "job:<id>" as JSON; pending work items are JSON entries
// of the "queue:jobs" list (LPUSH to enqueue, BRPOP to dequeue), so items
// leave in submission order. Payloads that fail to decode are moved to
// "queue:jobs:dead".
package redisstore

import (
	"context"
	"encoding/json"
	"net"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"

	"github.com/perclft/qcircuit/jobs"
)

const (
	jobKeyPrefix = "job:"
	queueKey     = "queue:jobs"
	deadKey      = "queue:jobs:dead"

	// pollInterval bounds each BRPOP so Dequeue notices ctx and Close.
	pollInterval = time.Second
)

// ------------------------------------------------------------------
// Store
// ------------------------------------------------------------------

type Store struct {
	rdb       *redis.Client
	retention time.Duration
}

var _ jobs.Store = (*Store)(nil)

// NewStore returns a store on rdb. A positive retention expires job records
// that long after their last write.
func NewStore(rdb *redis.Client, retention time.Duration) *Store {
	return &Store{rdb: rdb, retention: retention}
}

func jobKey(id string) string { return jobKeyPrefix + id }

func (s *Store) Create(ctx context.Context, job jobs.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return errors.Wrap(err, "encode job")
	}
	ok, err := s.rdb.SetNX(ctx, jobKey(job.ID), data, s.retention).Result()
	if err != nil {
		return errors.Wrap(err, "store job")
	}
	if !ok {
		return jobs.ErrExists
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (jobs.Job, error) {
	data, err := s.rdb.Get(ctx, jobKey(id)).Bytes()
	if err == redis.Nil {
		return jobs.Job{}, jobs.ErrNotFound
	}
	if err != nil {
		return jobs.Job{}, errors.Wrap(err, "load job")
	}
	var job jobs.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return jobs.Job{}, errors.Wrap(err, "decode job")
	}
	return job, nil
}

// Finish rewrites the record only if it still exists (SET XX).
func (s *Store) Finish(ctx context.Context, id string, o jobs.Outcome) error {
	job, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	data, err := json.Marshal(job.Apply(o))
	if err != nil {
		return errors.Wrap(err, "encode job")
	}
	ok, err := s.rdb.SetXX(ctx, jobKey(id), data, s.retention).Result()
	if err != nil {
		return errors.Wrap(err, "update job")
	}
	if !ok {
		return jobs.ErrNotFound
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// ------------------------------------------------------------------
// Queue
// ------------------------------------------------------------------

type Queue struct {
	rdb    *redis.Client
	closed atomic.Bool
}

var _ jobs.Queue = (*Queue)(nil)

func NewQueue(rdb *redis.Client) *Queue {
	return &Queue{rdb: rdb}
}

func (q *Queue) Enqueue(ctx context.Context, item jobs.WorkItem) error {
	if q.closed.Load() {
		return jobs.ErrQueueClosed
	}
	data, err := json.Marshal(item)
	if err != nil {
		return errors.Wrap(err, "encode work item")
	}
	if err := q.rdb.LPush(ctx, queueKey, data).Err(); err != nil {
		return errors.Wrap(err, "push work item")
	}
	return nil
}

func (q *Queue) Dequeue(ctx context.Context) (jobs.WorkItem, error) {
	for {
		if q.closed.Load() {
			return jobs.WorkItem{}, jobs.ErrQueueClosed
		}
		if err := ctx.Err(); err != nil {
			return jobs.WorkItem{}, err
		}
		res, err := q.rdb.BRPop(ctx, pollInterval, queueKey).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			var nerr net.Error
			if ctx.Err() != nil || (errors.As(err, &nerr) && nerr.Timeout()) {
				continue
			}
			return jobs.WorkItem{}, errors.Wrap(err, "pop work item")
		}
		// res is [key, value]
		var item jobs.WorkItem
		if err := json.Unmarshal([]byte(res[1]), &item); err != nil {
			return jobs.WorkItem{}, q.deadLetter(ctx, res[1], err)
		}
		return item, nil
	}
}

// deadLetter parks an undecodable payload and recovers its job id when the
// payload is at least a JSON object carrying one.
func (q *Queue) deadLetter(ctx context.Context, payload string, cause error) error {
	bad := &jobs.UndecodableItemError{Payload: payload, Err: errors.Wrap(cause, "decode work item")}
	var partial struct {
		JobID json.RawMessage `json:"job_id"`
	}
	if json.Unmarshal([]byte(payload), &partial) == nil {
		_ = json.Unmarshal(partial.JobID, &bad.JobID)
	}
	if err := q.rdb.LPush(context.WithoutCancel(ctx), deadKey, payload).Err(); err != nil {
		bad.Err = errors.Wrapf(bad.Err, "dead-letter failed: %v", err)
	}
	return bad
}

// Len is the number of queued items.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, queueKey).Result()
}

// Close makes Enqueue and Dequeue return ErrQueueClosed. Items already in
// Redis stay there for the next process.
func (q *Queue) Close() {
	q.closed.Store(true)
}
