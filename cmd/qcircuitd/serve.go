package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/perclft/qcircuit/api"
	"github.com/perclft/qcircuit/config"
	"github.com/perclft/qcircuit/jobs"
)

// workerService is the gRPC health service name reporting the worker pool.
const workerService = "qcircuit.worker"

type serveOptions struct {
	*rootOptions
	NoWorker bool
}

func newServeCommand(root *rootOptions) *cobra.Command {
	opts := &serveOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve the HTTP API. Unless --no-worker is given, a worker pool runs in
the same process and drains the queue.

Example:
  qcircuitd serve --addr :8080 --workers 8
  QCIRCUIT_QUEUE_DRIVER=redis qcircuitd serve --no-worker`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
	cmd.Flags().BoolVar(&opts.NoWorker, "no-worker", false, "do not run workers in this process")
	return cmd
}

func newWorkerCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run a standalone worker pool against a shared queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd.Context(), root)
		},
	}
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func runServe(parent context.Context, opts *serveOptions) error {
	cfg, logger, err := opts.load()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	if err := checkServe(cfg, opts.NoWorker); err != nil {
		return err
	}

	ctx, stop := signalContext(parent)
	defer stop()

	rt, err := newRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	app := api.New(api.Deps{
		Devices:  rt.devices,
		Analyzer: rt.analyzer,
		Cache:    rt.analyzer,
		Jobs:     rt.newScheduler(),
		Sources:  rt.sources,
		Checks:   rt.checks,
		Logger:   logger.Named("http"),
	})

	var worker *jobs.Worker
	if !opts.NoWorker {
		worker = rt.newWorker()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server starting", zap.String("addr", cfg.HTTP.Addr))
		return app.Listen(cfg.HTTP.Addr, fiber.ListenConfig{DisableStartupMessage: true})
	})
	if worker != nil {
		g.Go(func() error { return worker.Run(gctx) })
	}
	if cfg.GRPC.Addr != "" {
		g.Go(func() error { return serveHealth(gctx, cfg.GRPC.Addr, worker, logger) })
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		rt.queue.Close()
		if err := app.ShutdownWithTimeout(cfg.HTTP.ShutdownTimeout); err != nil {
			return errors.Wrap(err, "http shutdown")
		}
		return nil
	})
	return ignoreCanceled(g.Wait())
}

func runWorker(parent context.Context, opts *rootOptions) error {
	cfg, logger, err := opts.load()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	if err := checkWorker(cfg); err != nil {
		return err
	}

	ctx, stop := signalContext(parent)
	defer stop()

	rt, err := newRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	worker := rt.newWorker()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return worker.Run(gctx) })
	if cfg.GRPC.Addr != "" {
		g.Go(func() error { return serveHealth(gctx, cfg.GRPC.Addr, worker, logger) })
	}
	g.Go(func() error {
		<-gctx.Done()
		rt.queue.Close()
		return nil
	})
	return ignoreCanceled(g.Wait())
}

// checkServe rejects a serve process whose queue nothing would drain.
func checkServe(cfg config.Config, noWorker bool) error {
	if noWorker && cfg.Queue.Driver == config.DriverMemory {
		return errors.New("--no-worker needs a shared queue; set queue.driver to redis")
	}
	return nil
}

// checkWorker rejects a standalone worker that could not share jobs and
// results with the API process.
func checkWorker(cfg config.Config) error {
	if cfg.Queue.Driver != config.DriverRedis {
		return errors.New("a standalone worker needs a shared queue; set queue.driver to redis")
	}
	if cfg.Store.Driver == config.DriverMemory {
		return errors.New("a standalone worker needs a shared store; set store.driver to redis, postgres or sqlite")
	}
	return nil
}

// serveHealth runs the gRPC health service until ctx is done. The worker
// service reports SERVING while the pool is up; a nil worker is reported as
// SERVICE_UNKNOWN.
func serveHealth(ctx context.Context, addr string, worker *jobs.Worker, logger *zap.Logger) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", addr)
	}

	hs := health.NewServer()
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	go func() {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			hs.SetServingStatus(workerService, workerStatus(worker))
			select {
			case <-ctx.Done():
				hs.Shutdown()
				srv.GracefulStop()
				return
			case <-ticker.C:
			}
		}
	}()

	logger.Info("grpc health server starting", zap.String("addr", addr))
	if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return errors.Wrap(err, "grpc serve")
	}
	return nil
}

func workerStatus(w *jobs.Worker) healthpb.HealthCheckResponse_ServingStatus {
	switch {
	case w == nil:
		return healthpb.HealthCheckResponse_SERVICE_UNKNOWN
	case w.Running():
		return healthpb.HealthCheckResponse_SERVING
	default:
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
