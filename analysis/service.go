package analysis

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/perclft/qcircuit/backend/backends"
	"github.com/perclft/qcircuit/circuit"
)

// Report describes a circuit after transpilation for one backend.
type Report struct {
	Backend    string          `json:"backend"`
	Metrics    Metrics         `json:"metrics"`
	Transpiled circuit.Circuit `json:"transpiled_circuit"`
	QASM       string          `json:"transpiled_qasm"`
}

// Cache stores reports by key. A miss is (Report{}, false, nil).
type Cache interface {
	Get(ctx context.Context, key string) (Report, bool, error)
	Put(ctx context.Context, key string, r Report) error
	Invalidate(ctx context.Context, key string) (bool, error)
	Stats() CacheStats
}

// Service transpiles circuits for a backend and analyzes the result.
type Service struct {
	devices *backends.Registry
	cache   Cache
	logger  *zap.Logger
}

// NewService returns a service. cache may be nil.
func NewService(devices *backends.Registry, cache Cache, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{devices: devices, cache: cache, logger: logger}
}

// Transpile resolves backend, rewrites c into its gate set and reports the
// metrics of the rewritten circuit. An unknown backend fails before any work.
func (s *Service) Transpile(ctx context.Context, backend string, c circuit.Circuit) (Report, error) {
	device, err := s.devices.Resolve(backend)
	if err != nil {
		return Report{}, err
	}

	var key string
	if s.cache != nil {
		if key, err = HashCircuit(device.Name, c); err == nil {
			if r, ok, err := s.cache.Get(ctx, key); err != nil {
				s.logger.Warn("report cache read failed", zap.Error(err))
			} else if ok {
				return r, nil
			}
		}
	}

	start := time.Now()
	transpiled, err := backends.Transpile(c, device)
	if err != nil {
		return Report{}, err
	}
	r := Report{
		Backend:    device.Name,
		Metrics:    Analyze(transpiled),
		Transpiled: transpiled,
		QASM:       transpiled.ToQASM(),
	}
	s.logger.Debug("circuit transpiled",
		zap.String("backend", device.Name),
		zap.Int("operations_in", len(c.Operations)),
		zap.Int("operations_out", len(transpiled.Operations)),
		zap.Int("depth", r.Metrics.Depth),
		zap.Duration("duration", time.Since(start)),
	)

	if key != "" {
		if err := s.cache.Put(ctx, key, r); err != nil {
			s.logger.Warn("report cache write failed", zap.Error(err))
		}
	}
	return r, nil
}

// CacheStats reports the lookup counters of the report cache. ok is false
// when the service runs without a cache.
func (s *Service) CacheStats() (stats CacheStats, ok bool) {
	if s.cache == nil {
		return CacheStats{}, false
	}
	return s.cache.Stats(), true
}

// Invalidate drops the cached report of c for backend and reports whether
// one existed. Without a cache nothing is ever cached.
func (s *Service) Invalidate(ctx context.Context, backend string, c circuit.Circuit) (bool, error) {
	device, err := s.devices.Resolve(backend)
	if err != nil {
		return false, err
	}
	if s.cache == nil {
		return false, nil
	}
	key, err := HashCircuit(device.Name, c)
	if err != nil {
		return false, err
	}
	ok, err := s.cache.Invalidate(ctx, key)
	if err != nil {
		return false, err
	}
	s.logger.Info("cached report invalidated", zap.String("backend", device.Name), zap.Bool("existed", ok))
	return ok, nil
}
