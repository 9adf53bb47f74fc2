// Package simulator is the local state-vector simulation capability shared by
// every backend device.
package simulator

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/perclft/qcircuit/backend/backends"
	"github.com/perclft/qcircuit/circuit"
	"github.com/perclft/qcircuit/qerr"
)

// DefaultMaxQubits bounds the state vector at 2^24 amplitudes.
const DefaultMaxQubits = 24

// Simulator runs circuits on a dense state vector. It is safe for concurrent
// use; the random source is shared behind a mutex so a fixed seed gives
// reproducible runs when jobs execute one at a time.
type Simulator struct {
	logger    *zap.Logger
	maxQubits int

	mu  sync.Mutex
	rng *rand.Rand
}

var _ backends.Simulator = (*Simulator)(nil)

// New returns a simulator. A zero seed picks one from the clock.
func New(seed int64, maxQubits int, logger *zap.Logger) *Simulator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if maxQubits <= 0 {
		maxQubits = DefaultMaxQubits
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Simulator{
		logger:    logger,
		maxQubits: maxQubits,
		rng:       rand.New(rand.NewSource(seed)),
	}
}

func (s *Simulator) uniform() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

// Run executes c shots times and returns one record per shot.
func (s *Simulator) Run(ctx context.Context, c circuit.Circuit, shots int) ([]backends.Shot, error) {
	if shots <= 0 {
		return nil, qerr.New(qerr.InvalidArgument, "shots must be positive, got %d", shots)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	qubits := c.Qubits()
	if len(qubits) > s.maxQubits {
		return nil, qerr.New(qerr.SimulationFailure, "circuit uses %d qubits, simulator limit is %d", len(qubits), s.maxQubits)
	}
	idx := make(map[circuit.Qubit]int, len(qubits))
	for i, q := range qubits {
		idx[q] = i
	}

	start := time.Now()
	var (
		out []backends.Shot
		err error
	)
	if terminalMeasurements(c) {
		out, err = s.runSampled(ctx, c, idx, shots)
	} else {
		out, err = s.runCollapsing(ctx, c, idx, shots)
	}
	if err != nil {
		return nil, err
	}
	s.logger.Debug("circuit simulated",
		zap.Int("qubits", len(qubits)),
		zap.Int("operations", len(c.Operations)),
		zap.Int("shots", shots),
		zap.Duration("duration", time.Since(start)),
	)
	return out, nil
}

// terminalMeasurements reports whether no gate acts on a qubit after it has
// been measured. Such circuits can be evolved once and sampled per shot.
func terminalMeasurements(c circuit.Circuit) bool {
	measured := make(map[circuit.Qubit]bool)
	for _, op := range c.Operations {
		for _, q := range op.Qubits {
			if op.Kind() == circuit.Measurement {
				measured[q] = true
			} else if measured[q] {
				return false
			}
		}
	}
	return true
}

func (s *Simulator) runSampled(ctx context.Context, c circuit.Circuit, idx map[circuit.Qubit]int, shots int) ([]backends.Shot, error) {
	sv := newStateVector(len(idx))
	var measurements []circuit.Operation
	for _, op := range c.Operations {
		if op.Kind() == circuit.Measurement {
			measurements = append(measurements, op)
			continue
		}
		if err := sv.apply(op, idx); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, qerr.Wrap(qerr.SimulationFailure, err, "simulation interrupted")
	}

	cdf := sv.probabilities()
	for i := 1; i < len(cdf); i++ {
		cdf[i] += cdf[i-1]
	}

	out := make([]backends.Shot, shots)
	for n := range out {
		if n%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, qerr.Wrap(qerr.SimulationFailure, err, "simulation interrupted")
			}
		}
		basis := sample(cdf, s.uniform()*cdf[len(cdf)-1])
		shot := make(backends.Shot, len(measurements))
		for i, m := range measurements {
			bits := make([]bool, len(m.Qubits))
			for j, q := range m.Qubits {
				bits[j] = basis&(1<<idx[q]) != 0
			}
			shot[i] = backends.Measurement{Key: m.Key, Bits: bits}
		}
		out[n] = shot
	}
	return out, nil
}

func (s *Simulator) runCollapsing(ctx context.Context, c circuit.Circuit, idx map[circuit.Qubit]int, shots int) ([]backends.Shot, error) {
	initial := newStateVector(len(idx))
	out := make([]backends.Shot, shots)
	for n := range out {
		if err := ctx.Err(); err != nil {
			return nil, qerr.Wrap(qerr.SimulationFailure, err, "simulation interrupted")
		}
		sv := initial.clone()
		var shot backends.Shot
		for _, op := range c.Operations {
			if op.Kind() != circuit.Measurement {
				if err := sv.apply(op, idx); err != nil {
					return nil, err
				}
				continue
			}
			bits := make([]bool, len(op.Qubits))
			for j, q := range op.Qubits {
				bits[j] = sv.measure(idx[q], s.uniform())
			}
			shot = append(shot, backends.Measurement{Key: op.Key, Bits: bits})
		}
		out[n] = shot
	}
	return out, nil
}
