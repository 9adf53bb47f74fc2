package api

import (
	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"

	"github.com/perclft/qcircuit/jobs"
	"github.com/perclft/qcircuit/qerr"
)

// transpile resolves the backend, fetches the circuit and reports the metrics
// of its transpiled form. Analysis failures are reported in a 200 body.
func (s *server) transpile(c fiber.Ctx) error {
	var req TranspileRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: "invalid body"})
	}
	if _, err := s.Devices.Resolve(req.QPUName); err != nil {
		return writeError(c, err)
	}
	spec, err := req.sourceSpec()
	if err != nil {
		return writeError(c, err)
	}
	circ, err := s.Sources.Resolve(c.Context(), spec)
	if err != nil {
		return writeError(c, err)
	}

	report, err := s.Analyzer.Transpile(c.Context(), req.QPUName, circ)
	if err != nil {
		s.Logger.Warn("transpilation failed",
			zap.String("backend", req.QPUName),
			zap.String("kind", qerr.KindOf(err).String()),
			zap.Error(err),
		)
		return c.JSON(errorResponse{Error: "transpilation failed"})
	}
	return c.JSON(newTranspileResponse(report))
}

// execute accepts a job and answers 202 with the result location.
func (s *server) execute(c fiber.Ctx) error {
	var req ExecuteRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: "invalid body"})
	}

	shots := DefaultShots
	if req.Shots != nil {
		shots = *req.Shots
	}
	submit := jobs.Request{Backend: req.QPUName, Shots: shots}

	circ, err := req.transpiledCircuit()
	if err != nil {
		return writeError(c, err)
	}
	if circ != nil {
		submit.Circuit = circ
	} else {
		spec, err := req.sourceSpec()
		if err != nil {
			return writeError(c, err)
		}
		submit.Source = &spec
	}

	handle, err := s.Jobs.Submit(c.Context(), submit)
	if err != nil {
		return writeError(c, err)
	}
	c.Set(fiber.HeaderLocation, handle.Location)
	return c.Status(fiber.StatusAccepted).JSON(ExecuteResponse{Location: handle.Location})
}

func (s *server) result(c fiber.Ctx) error {
	view, err := s.Jobs.Result(c.Context(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(view)
}

// devices lists the supported targets by name.
func (s *server) devices(c fiber.Ctx) error {
	names := s.Devices.List()
	out := make([]DeviceResponse, 0, len(names))
	for _, name := range names {
		d, err := s.Devices.Resolve(name)
		if err != nil {
			return writeError(c, err)
		}
		out = append(out, newDeviceResponse(d))
	}
	return c.JSON(out)
}

func (s *server) cacheStats(c fiber.Ctx) error {
	if s.Cache == nil {
		return c.JSON(CacheStatsResponse{})
	}
	st, ok := s.Cache.CacheStats()
	return c.JSON(CacheStatsResponse{Enabled: ok, CacheStats: st})
}

// invalidate drops the cached report of the circuit described by a transpile
// request body.
func (s *server) invalidate(c fiber.Ctx) error {
	var req TranspileRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: "invalid body"})
	}
	if _, err := s.Devices.Resolve(req.QPUName); err != nil {
		return writeError(c, err)
	}
	if s.Cache == nil {
		return c.JSON(InvalidateResponse{})
	}
	spec, err := req.sourceSpec()
	if err != nil {
		return writeError(c, err)
	}
	circ, err := s.Sources.Resolve(c.Context(), spec)
	if err != nil {
		return writeError(c, err)
	}
	ok, err := s.Cache.Invalidate(c.Context(), req.QPUName, circ)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(InvalidateResponse{Invalidated: ok})
}
