// Package api exposes transpilation, job submission and result polling over
// HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/perclft/qcircuit/analysis"
	"github.com/perclft/qcircuit/backend/backends"
	"github.com/perclft/qcircuit/circuit"
	"github.com/perclft/qcircuit/jobs"
	"github.com/perclft/qcircuit/qerr"
)

// Prefix is the mount point of the versioned API.
const Prefix = "/qcircuit/api/v1.0"

const apiVersion = "1.0"

// Transpiler produces the transpilation report of a circuit.
type Transpiler interface {
	Transpile(ctx context.Context, backend string, c circuit.Circuit) (analysis.Report, error)
}

// JobService submits jobs and reads their results.
type JobService interface {
	Submit(ctx context.Context, req jobs.Request) (jobs.Handle, error)
	Result(ctx context.Context, id string) (jobs.View, error)
}

// CacheAdmin inspects and prunes the transpilation report cache.
type CacheAdmin interface {
	CacheStats() (analysis.CacheStats, bool)
	Invalidate(ctx context.Context, backend string, c circuit.Circuit) (bool, error)
}

type ReadinessCheck struct {
	Name  string
	Check func(context.Context) error
}

// Deps are the collaborators of the HTTP handlers.
type Deps struct {
	Devices  *backends.Registry
	Analyzer Transpiler
	Cache    CacheAdmin
	Jobs     JobService
	Sources  jobs.SourceResolver
	Checks   []ReadinessCheck
	Logger   *zap.Logger
}

type server struct {
	Deps
}

// New builds the fiber application serving every route.
func New(d Deps) *fiber.App {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	s := &server{Deps: d}

	app := fiber.New(fiber.Config{
		AppName:      "qcircuit",
		ErrorHandler: s.handleError,
	})
	app.Use(recover.New())
	app.Use(s.logRequests)

	app.Get("/healthz", s.healthz)
	app.Get("/readyz", s.readyz)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	v1 := app.Group(Prefix)
	v1.Get("/", s.heartbeat)
	v1.Get("/version", s.version)
	v1.Get("/devices", s.devices)
	v1.Get("/cache", s.cacheStats)
	v1.Post("/cache/invalidate", s.invalidate)
	v1.Post("/transpile", s.transpile)
	v1.Post("/execute", s.execute)
	v1.Get("/results/:id", s.result)

	return app
}

// ------------------------------------------------------------------
// Middleware
// ------------------------------------------------------------------

func (s *server) logRequests(c fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	status := c.Response().StatusCode()
	if err != nil {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		} else {
			status = fiber.StatusInternalServerError
		}
	}
	route := c.Route().Path
	httpRequestsTotal.WithLabelValues(c.Method(), route, http.StatusText(status)).Inc()

	fields := []zap.Field{
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Int("status", status),
		zap.Duration("duration", time.Since(start)),
	}
	if status >= fiber.StatusInternalServerError {
		s.Logger.Error("request failed", append(fields, zap.Error(err))...)
	} else {
		s.Logger.Debug("request", fields...)
	}
	return err
}

func (s *server) handleError(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(errorResponse{Error: err.Error()})
}

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	switch qerr.KindOf(err) {
	case qerr.InvalidArgument, qerr.UnsupportedBackend, qerr.SourceRetrievalFailure:
		return fiber.StatusBadRequest
	case qerr.NotFound:
		return fiber.StatusNotFound
	default:
		return fiber.StatusInternalServerError
	}
}

func writeError(c fiber.Ctx, err error) error {
	return c.Status(statusFor(err)).JSON(errorResponse{Error: err.Error()})
}

// ------------------------------------------------------------------
// Health
// ------------------------------------------------------------------

func (s *server) healthz(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"service": "qcircuit", "status": "ok"})
}

func (s *server) readyz(c fiber.Ctx) error {
	type checkResult struct {
		Name       string `json:"name"`
		Status     string `json:"status"`
		DurationMs int64  `json:"duration_ms"`
		Error      string `json:"error,omitempty"`
	}

	results := make([]checkResult, 0, len(s.Checks))
	ok := true
	for _, check := range s.Checks {
		start := time.Now()
		res := checkResult{Name: check.Name, Status: "ok"}
		if err := check.Check(c.Context()); err != nil {
			ok = false
			res.Status, res.Error = "fail", err.Error()
		}
		res.DurationMs = time.Since(start).Milliseconds()
		results = append(results, res)
	}
	if !ok {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"service": "qcircuit", "status": "not_ready", "checks": results})
	}
	return c.JSON(fiber.Map{"service": "qcircuit", "status": "ready", "checks": results})
}

func (s *server) heartbeat(c fiber.Ctx) error {
	return c.SendString("qcircuit transpilation and execution service is running")
}

func (s *server) version(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"version": apiVersion})
}
