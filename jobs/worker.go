package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/perclft/qcircuit/backend/backends"
	"github.com/perclft/qcircuit/circuit"
	"github.com/perclft/qcircuit/qerr"
	"github.com/perclft/qcircuit/source"
)

// SourceResolver turns a deferred source into a circuit.
type SourceResolver interface {
	Resolve(ctx context.Context, spec source.Spec) (circuit.Circuit, error)
}

type WorkerConfig struct {
	// Concurrency is the number of dequeuers; values below 1 mean 1.
	Concurrency int
	// JobTimeout bounds one execution; zero means no limit.
	JobTimeout time.Duration
}

// ------------------------------------------------------------------
// Worker
// ------------------------------------------------------------------

type Worker struct {
	store   Store
	queue   Queue
	devices *backends.Registry
	sources SourceResolver
	cfg     WorkerConfig
	logger  *zap.Logger
	now     func() time.Time

	active  atomic.Int64
	running atomic.Bool
}

func NewWorker(store Store, queue Queue, devices *backends.Registry, sources SourceResolver, cfg WorkerConfig, logger *zap.Logger) *Worker {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		store:   store,
		queue:   queue,
		devices: devices,
		sources: sources,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// Active is the number of jobs being executed right now.
func (w *Worker) Active() int { return int(w.active.Load()) }

// Running reports whether Run's dequeuers are up.
func (w *Worker) Running() bool { return w.running.Load() }

// Run dequeues and processes items until ctx is done or the queue is closed.
// Jobs already dequeued run to completion after ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.running.Store(true)
	defer w.running.Store(false)

	w.logger.Info("worker pool starting", zap.Int("concurrency", w.cfg.Concurrency))
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < w.cfg.Concurrency; i++ {
		g.Go(func() error { return w.loop(gctx, i) })
	}
	err := g.Wait()
	w.logger.Info("worker pool stopped")
	return err
}

func (w *Worker) loop(ctx context.Context, n int) error {
	log := w.logger.With(zap.Int("worker", n))
	for {
		item, err := w.queue.Dequeue(ctx)
		switch {
		case err == nil:
		case errors.Is(err, ErrQueueClosed), ctx.Err() != nil:
			return nil
		case errors.As(err, new(*UndecodableItemError)):
			w.failUndecodable(context.WithoutCancel(ctx), log, err)
			continue
		default:
			log.Warn("dequeue failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		if err := w.Process(context.WithoutCancel(ctx), item); err != nil {
			log.Error("terminal write failed", zap.String("job_id", item.JobID), zap.Error(err))
		}
	}
}

// failUndecodable records a failed outcome for a work item whose payload
// could not be decoded, so its job does not stay pending.
func (w *Worker) failUndecodable(ctx context.Context, log *zap.Logger, err error) {
	var bad *UndecodableItemError
	errors.As(err, &bad)
	log.Error("undecodable work item dropped",
		zap.String("job_id", bad.JobID),
		zap.String("payload", bad.Payload),
		zap.Error(bad.Err),
	)
	if bad.JobID == "" {
		return
	}
	outcome := Failed(qerr.Wrap(qerr.Internal, bad.Err, "decode work item"), w.now().UTC())
	if err := w.store.Finish(ctx, bad.JobID, outcome); err != nil {
		log.Error("terminal write failed", zap.String("job_id", bad.JobID), zap.Error(err))
		return
	}
	jobsFinishedTotal.WithLabelValues("unknown", string(outcome.Status)).Inc()
}

// Process executes one work item and writes its terminal outcome. The
// returned error is the store's; execution failures become failed outcomes.
func (w *Worker) Process(ctx context.Context, item WorkItem) error {
	w.active.Add(1)
	activeWorkersGauge.Inc()
	defer func() {
		w.active.Add(-1)
		activeWorkersGauge.Dec()
	}()

	start := w.now()
	if !item.EnqueuedAt.IsZero() {
		queueWait.Observe(start.Sub(item.EnqueuedAt).Seconds())
	}
	log := w.logger.With(
		zap.String("job_id", item.JobID),
		zap.String("backend", item.Backend),
		zap.Int("shots", item.Shots),
	)

	hist, err := w.execute(ctx, item)
	var outcome Outcome
	if err != nil {
		outcome = Failed(err, w.now().UTC())
		log.Warn("job failed", zap.String("kind", outcome.ErrorKind), zap.Error(err))
	} else {
		outcome = Succeeded(hist, w.now().UTC())
	}

	if err := w.store.Finish(ctx, item.JobID, outcome); err != nil {
		return err
	}
	elapsed := w.now().Sub(start)
	jobsFinishedTotal.WithLabelValues(item.Backend, string(outcome.Status)).Inc()
	jobDuration.WithLabelValues(item.Backend).Observe(elapsed.Seconds())
	log.Info("job finished", zap.String("status", string(outcome.Status)), zap.Duration("duration", elapsed))
	return nil
}

func (w *Worker) execute(ctx context.Context, item WorkItem) (hist Histogram, err error) {
	defer func() {
		if r := recover(); r != nil {
			hist, err = nil, qerr.New(qerr.SimulationFailure, "backend panicked: %v", r)
		}
	}()

	if w.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.JobTimeout)
		defer cancel()
	}

	device, err := w.devices.Resolve(item.Backend)
	if err != nil {
		return nil, err
	}

	var c circuit.Circuit
	switch {
	case item.Circuit != nil:
		c = *item.Circuit
	case item.Source != nil:
		if w.sources == nil {
			return nil, qerr.New(qerr.SourceRetrievalFailure, "no source resolver configured")
		}
		if c, err = w.sources.Resolve(ctx, *item.Source); err != nil {
			return nil, err
		}
	default:
		return nil, qerr.New(qerr.InvalidArgument, "work item %s carries no circuit", item.JobID)
	}

	transpiled, err := backends.Transpile(c, device)
	if err != nil {
		return nil, err
	}
	shots, err := w.devices.Simulate(ctx, device, transpiled, item.Shots)
	if err != nil {
		return nil, err
	}
	hist = FoldHistogram(shots)
	if hist.Total() != item.Shots {
		return nil, fmt.Errorf("histogram holds %d shots, want %d", hist.Total(), item.Shots)
	}
	return hist, nil
}
