package simulator

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/perclft/qcircuit/backend/backends"
	"github.com/perclft/qcircuit/circuit"
	"github.com/perclft/qcircuit/qerr"
)

var (
	q0 = circuit.LineQubit(0)
	q1 = circuit.LineQubit(1)
	q2 = circuit.LineQubit(2)
)

func bits(m backends.Measurement) string {
	out := make([]byte, len(m.Bits))
	for i, b := range m.Bits {
		out[i] = '0'
		if b {
			out[i] = '1'
		}
	}
	return string(out)
}

func TestRun_BellPairIsCorrelated(t *testing.T) {
	sim := New(42, 0, zaptest.NewLogger(t))
	c := circuit.New(
		circuit.Op("H", q0),
		circuit.Op("CNOT", q0, q1),
		circuit.Measure("result", q0, q1),
	)

	shots, err := sim.Run(context.Background(), c, 1000)
	require.NoError(t, err)
	require.Len(t, shots, 1000)

	counts := map[string]int{}
	for _, shot := range shots {
		require.Len(t, shot, 1)
		assert.Equal(t, "result", shot[0].Key)
		counts[bits(shot[0])]++
	}
	assert.Len(t, counts, 2)
	assert.Equal(t, 1000, counts["00"]+counts["11"])
	assert.InDelta(t, 500, counts["00"], 100)
}

func TestRun_DeterministicGates(t *testing.T) {
	sim := New(1, 0, nil)
	c := circuit.New(
		circuit.Op("X", q0),
		circuit.Op("CCX", q0, q2, q1),
		circuit.Op("X", q2),
		circuit.Op("CCX", q0, q2, q1),
		circuit.Op("SWAP", q0, q2),
		circuit.Measure("a", q0),
		circuit.Measure("b", q1, q2),
	)
	shots, err := sim.Run(context.Background(), c, 20)
	require.NoError(t, err)
	for _, shot := range shots {
		assert.Equal(t, "1", bits(shot[0]))
		assert.Equal(t, "11", bits(shot[1]))
	}
}

func TestRun_MidCircuitMeasurementCollapses(t *testing.T) {
	sim := New(7, 0, nil)
	c := circuit.New(
		circuit.Op("H", q0),
		circuit.Measure("first", q0),
		circuit.Op("X", q0),
		circuit.Measure("second", q0),
	)
	require.False(t, terminalMeasurements(c))

	shots, err := sim.Run(context.Background(), c, 200)
	require.NoError(t, err)
	seen := map[string]bool{}
	for _, shot := range shots {
		require.Len(t, shot, 2)
		assert.NotEqual(t, bits(shot[0]), bits(shot[1]))
		seen[bits(shot[0])] = true
	}
	assert.Len(t, seen, 2)
}

func TestRun_SameSeedSameShots(t *testing.T) {
	c := circuit.New(circuit.Op("H", q0), circuit.Op("H", q1), circuit.Measure("m", q0, q1))
	a, err := New(99, 0, nil).Run(context.Background(), c, 50)
	require.NoError(t, err)
	b, err := New(99, 0, nil).Run(context.Background(), c, 50)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestRun_Errors(t *testing.T) {
	ctx := context.Background()
	sim := New(1, 2, nil)

	_, err := sim.Run(ctx, circuit.New(circuit.Measure("m", q0)), 0)
	assert.True(t, qerr.Is(err, qerr.InvalidArgument))

	_, err = sim.Run(ctx, circuit.New(circuit.Op("X", q0), circuit.Op("X", q1), circuit.Op("X", q2)), 1)
	assert.True(t, qerr.Is(err, qerr.SimulationFailure))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = sim.Run(cancelled, circuit.New(circuit.Op("H", q0), circuit.Measure("m", q0)), 10)
	assert.True(t, qerr.Is(err, qerr.SimulationFailure))
	assert.ErrorIs(t, err, context.Canceled)
}

func finalProbabilities(t *testing.T, c circuit.Circuit, idx map[circuit.Qubit]int) []float64 {
	t.Helper()
	sv := newStateVector(len(idx))
	for _, op := range c.Operations {
		if op.Kind() == circuit.Measurement {
			continue
		}
		require.NoError(t, sv.apply(op, idx))
	}
	return sv.probabilities()
}

func TestTranspiledCircuitsAgreeWithSource(t *testing.T) {
	c := circuit.New(
		circuit.Op("H", q0),
		circuit.Rot("RY", 0.4, q1),
		circuit.Op("T", q2),
		circuit.Op("H", q2),
		circuit.Op("CNOT", q0, q1),
		circuit.Op("S", q1),
		circuit.Op("CZ", q1, q2),
		circuit.Op("SWAP", q0, q2),
		circuit.Op("CCX", q0, q1, q2),
		circuit.Rot("RX", 1.1, q0),
		circuit.Op("Y", q1),
		circuit.Op("SDG", q0),
		circuit.Op("H", q1),
		circuit.Measure("m", q0, q1, q2),
	)
	idx := map[circuit.Qubit]int{q0: 0, q1: 1, q2: 2}
	want := finalProbabilities(t, c, idx)

	for _, d := range backends.DefaultDevices() {
		t.Run(d.Name, func(t *testing.T) {
			out, err := backends.Transpile(c, d)
			require.NoError(t, err)
			got := finalProbabilities(t, out, idx)
			for i := range want {
				assert.InDelta(t, want[i], got[i], 1e-9, "basis state %03b", i)
			}
		})
	}
}

func TestStateVector_Measure(t *testing.T) {
	sv := newStateVector(1)
	sv.applyControlled(nil, 0, fixedGates[circuit.GateH])
	assert.True(t, sv.measure(0, 0.1))
	assert.InDelta(t, 1.0, sv.probabilities()[1], 1e-12)
	assert.True(t, sv.measure(0, 0.99))
	assert.False(t, math.IsNaN(real(sv.amps[1])))
}

func TestRun_ExampleOutcomes(t *testing.T) {
	sim := New(5, 0, zaptest.NewLogger(t))
	for _, name := range circuit.ExampleNames() {
		t.Run(name, func(t *testing.T) {
			e, _ := circuit.LookupExample(name)
			shots, err := sim.Run(context.Background(), e.Build(), 200)
			require.NoError(t, err)
			for _, shot := range shots {
				require.Len(t, shot, 1)
				assert.Contains(t, e.Outcomes, bits(shot[0]))
			}
		})
	}
}
