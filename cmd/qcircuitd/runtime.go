package main

import (
	"context"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/perclft/qcircuit/analysis"
	"github.com/perclft/qcircuit/api"
	"github.com/perclft/qcircuit/backend/backends"
	"github.com/perclft/qcircuit/config"
	"github.com/perclft/qcircuit/jobs"
	"github.com/perclft/qcircuit/jobs/memstore"
	"github.com/perclft/qcircuit/jobs/redisstore"
	"github.com/perclft/qcircuit/jobs/sqlstore"
	"github.com/perclft/qcircuit/simulator"
	"github.com/perclft/qcircuit/source"
)

// closableQueue is a queue that can stop handing out work.
type closableQueue interface {
	jobs.Queue
	Close()
}

// runtime holds the collaborators built from a configuration.
type runtime struct {
	cfg    config.Config
	logger *zap.Logger

	rdb      *redis.Client
	store    jobs.Store
	queue    closableQueue
	devices  *backends.Registry
	sources  *source.Resolver
	analyzer *analysis.Service
	checks   []api.ReadinessCheck

	closers []func() error
}

func newRuntime(ctx context.Context, cfg config.Config, logger *zap.Logger) (*runtime, error) {
	rt := &runtime{cfg: cfg, logger: logger}
	if err := rt.init(ctx); err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *runtime) init(ctx context.Context) error {
	cfg := rt.cfg

	if cfg.UsesRedis() {
		rt.rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rt.closers = append(rt.closers, rt.rdb.Close)
		if err := rt.rdb.Ping(ctx).Err(); err != nil {
			return errors.Wrapf(err, "connect to redis at %s", cfg.Redis.Addr)
		}
		rt.logger.Info("connected to redis", zap.String("addr", cfg.Redis.Addr))
		rt.checks = append(rt.checks, api.ReadinessCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return rt.rdb.Ping(ctx).Err() },
		})
	}

	switch cfg.Store.Driver {
	case config.DriverMemory:
		rt.store = memstore.NewStore()
	case config.DriverRedis:
		rt.store = redisstore.NewStore(rt.rdb, cfg.Store.Retention)
	case config.DriverPostgres, config.DriverSQLite:
		st, err := sqlstore.Open(cfg.Store.Driver, cfg.Store.DSN)
		if err != nil {
			return err
		}
		rt.closers = append(rt.closers, st.Close)
		if err := st.Migrate(ctx); err != nil {
			return err
		}
		rt.store = st
	default:
		return errors.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	if p, ok := rt.store.(jobs.Pinger); ok {
		rt.checks = append(rt.checks, api.ReadinessCheck{Name: "store", Check: p.Ping})
	}

	switch cfg.Queue.Driver {
	case config.DriverMemory:
		rt.queue = memstore.NewQueue()
	case config.DriverRedis:
		rt.queue = redisstore.NewQueue(rt.rdb)
	default:
		return errors.Errorf("unknown queue driver %q", cfg.Queue.Driver)
	}

	sim := simulator.New(cfg.Worker.Seed, cfg.Worker.MaxQubits, rt.logger.Named("simulator"))
	rt.devices = backends.NewRegistry(sim)

	sourceOpts := []source.Option{
		source.WithLogger(rt.logger.Named("source")),
		source.WithTimeout(cfg.Source.FetchTimeout),
	}
	if cfg.ObjectStore.Enabled() {
		fetcher, err := source.NewMinIOFetcher(cfg.ObjectStore.Source())
		if err != nil {
			return err
		}
		sourceOpts = append(sourceOpts, source.WithObjectFetcher(fetcher))
	}
	rt.sources = source.NewResolver(sourceOpts...)

	var cache analysis.Cache
	if cfg.Cache.Enabled {
		cache = analysis.NewRedisCache(rt.rdb, cfg.Cache.TTL)
	}
	rt.analyzer = analysis.NewService(rt.devices, cache, rt.logger.Named("analysis"))
	return nil
}

func (rt *runtime) newWorker() *jobs.Worker {
	return jobs.NewWorker(rt.store, rt.queue, rt.devices, rt.sources, jobs.WorkerConfig{
		Concurrency: rt.cfg.Worker.Concurrency,
		JobTimeout:  rt.cfg.Worker.JobTimeout,
	}, rt.logger.Named("worker"))
}

func (rt *runtime) newScheduler() *jobs.Scheduler {
	return jobs.NewScheduler(rt.store, rt.queue, rt.devices, rt.logger.Named("scheduler"))
}

// Close releases connections in reverse order of creation.
func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			rt.logger.Warn("close failed", zap.Error(err))
		}
	}
	rt.closers = nil
}
