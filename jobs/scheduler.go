package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/perclft/qcircuit/backend/backends"
	"github.com/perclft/qcircuit/circuit"
	"github.com/perclft/qcircuit/qerr"
	"github.com/perclft/qcircuit/source"
)

// DefaultResultsPath prefixes job ids in Handle.Location.
const DefaultResultsPath = "/qcircuit/api/v1.0/results/"

// Request is one execution submission. Exactly one of Circuit and Source is
// expected; Circuit wins when both are set.
type Request struct {
	Backend string
	Shots   int
	Circuit *circuit.Circuit
	Source  *source.Spec
}

// Handle identifies an accepted job.
type Handle struct {
	JobID    string
	Location string
}

// ------------------------------------------------------------------
// Scheduler
// ------------------------------------------------------------------

type Scheduler struct {
	store       Store
	queue       Queue
	devices     *backends.Registry
	logger      *zap.Logger
	resultsPath string
	now         func() time.Time
	newID       func() string
}

type SchedulerOption func(*Scheduler)

func WithResultsPath(p string) SchedulerOption {
	return func(s *Scheduler) { s.resultsPath = p }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

// WithIDGenerator replaces uuid generation, for tests.
func WithIDGenerator(f func() string) SchedulerOption {
	return func(s *Scheduler) { s.newID = f }
}

func NewScheduler(store Store, queue Queue, devices *backends.Registry, logger *zap.Logger, opts ...SchedulerOption) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		store:       store,
		queue:       queue,
		devices:     devices,
		logger:      logger,
		resultsPath: DefaultResultsPath,
		now:         time.Now,
		newID:       func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit validates req, records a pending job and enqueues its work item.
// Nothing is stored when validation or backend resolution fails.
func (s *Scheduler) Submit(ctx context.Context, req Request) (Handle, error) {
	if req.Shots <= 0 {
		return Handle{}, qerr.New(qerr.InvalidArgument, "shots must be positive, got %d", req.Shots)
	}
	switch {
	case req.Circuit != nil:
		if err := req.Circuit.Validate(); err != nil {
			return Handle{}, err
		}
		req.Source = nil
	case req.Source != nil:
		if err := req.Source.Validate(); err != nil {
			return Handle{}, err
		}
	default:
		return Handle{}, qerr.New(qerr.InvalidArgument, "no circuit or circuit source given")
	}

	device, err := s.devices.Resolve(req.Backend)
	if err != nil {
		return Handle{}, err
	}

	now := s.now().UTC()
	job := Job{
		ID:        s.newID(),
		Backend:   device.Name,
		Shots:     req.Shots,
		Status:    StatusPending,
		CreatedAt: now,
	}
	if err := s.store.Create(ctx, job); err != nil {
		return Handle{}, qerr.Wrap(qerr.Internal, err, "store job")
	}

	item := WorkItem{
		JobID:      job.ID,
		Backend:    device.Name,
		Shots:      req.Shots,
		Circuit:    req.Circuit,
		Source:     req.Source,
		EnqueuedAt: now,
	}
	if err := s.queue.Enqueue(ctx, item); err != nil {
		enqueueFailuresTotal.Inc()
		s.logger.Error("job stored but not enqueued",
			zap.String("job_id", job.ID),
			zap.String("backend", job.Backend),
			zap.Error(err),
		)
		failed := Outcome{Status: StatusFailed, Error: "enqueue failed", ErrorKind: qerr.Internal.String(), CompletedAt: s.now().UTC()}
		if ferr := s.store.Finish(context.WithoutCancel(ctx), job.ID, failed); ferr != nil {
			s.logger.Error("could not mark unqueued job failed", zap.String("job_id", job.ID), zap.Error(ferr))
		}
		return Handle{}, qerr.Wrap(qerr.Internal, err, "enqueue job")
	}

	jobsSubmittedTotal.WithLabelValues(job.Backend).Inc()
	s.logger.Info("job submitted",
		zap.String("job_id", job.ID),
		zap.String("backend", job.Backend),
		zap.Int("shots", job.Shots),
		zap.Bool("deferred_source", item.Source != nil),
	)
	return Handle{JobID: job.ID, Location: s.resultsPath + job.ID}, nil
}

// Result returns the client view of job id.
func (s *Scheduler) Result(ctx context.Context, id string) (View, error) {
	job, err := s.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return View{}, qerr.Wrap(qerr.NotFound, err, id)
	}
	if err != nil {
		return View{}, qerr.Wrap(qerr.Internal, err, "load job")
	}
	return job.View(), nil
}
