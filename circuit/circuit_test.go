package circuit

import (
	"encoding/json"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perclft/qcircuit/qerr"
)

func bell() Circuit {
	a, b := LineQubit(0), LineQubit(1)
	return New(
		Op("H", a),
		Op("CNOT", a, b),
		Measure("result", a, b),
	)
}

func TestCircuit_Qubits_SortedUnion(t *testing.T) {
	c := New(
		Op("X", LineQubit(3)),
		Op("CZ", GridQubit(1, 0), LineQubit(3)),
		Op("H", LineQubit(0)),
	)
	assert.Equal(t, []Qubit{LineQubit(0), LineQubit(3), GridQubit(1, 0)}, c.Qubits())
}

func TestOperation_Validate(t *testing.T) {
	q0, q1 := LineQubit(0), LineQubit(1)
	tests := []struct {
		name string
		op   Operation
		ok   bool
	}{
		{"single gate", Op("h", q0), true},
		{"alias folded", Op("cx", q0, q1), true},
		{"rotation", Rot("rz", math.Pi, q0), true},
		{"measure many", Measure("m", q0, q1), true},
		{"no qubits", Operation{Gate: GateH}, false},
		{"repeated qubit", Op("CZ", q0, q0), false},
		{"wrong arity", Op("CNOT", q0), false},
		{"missing param", Op("RX", q0), false},
		{"unknown gate", Op("FOO", q0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.op.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, qerr.Is(err, qerr.InvalidArgument))
		})
	}
}

func TestOperation_Validate_WideMeasurement(t *testing.T) {
	qs := make([]Qubit, 200000)
	for i := range qs {
		qs[i] = LineQubit(i)
	}
	start := time.Now()
	require.NoError(t, Measure("m", qs...).Validate())
	assert.Less(t, time.Since(start), 5*time.Second)

	qs[len(qs)-1] = LineQubit(0)
	assert.True(t, qerr.Is(Measure("m", qs...).Validate(), qerr.InvalidArgument))
}

func TestParseQASM_WholeRegisterMeasureAtLimit(t *testing.T) {
	src := fmt.Sprintf("OPENQASM 2.0;\nqreg q[%d];\ncreg c[%d];\nh q[0];\nmeasure q -> c;\n", MaxRegisterSize, MaxRegisterSize)
	c, err := ParseQASM(src)
	require.NoError(t, err)
	require.Len(t, c.Operations, 2)
	assert.Len(t, c.Operations[1].Qubits, MaxRegisterSize)
}

func TestOperation_Kind(t *testing.T) {
	assert.Equal(t, Measurement, Measure("m", LineQubit(0)).Kind())
	assert.Equal(t, Unitary, Op("M2", LineQubit(0)).Kind())
	assert.Equal(t, Measurement, Op("m", LineQubit(0)).Kind())
}

func TestJSON_RoundTrip(t *testing.T) {
	c := bell()
	c.Name = "bell"
	c.Operations = append(c.Operations, Rot("RY", 0.5, GridQubit(2, 3)))

	data, err := json.Marshal(c)
	require.NoError(t, err)

	got, err := ParseJSON(data)
	require.NoError(t, err)
	assert.Equal(t, c, got)
}

func TestParseJSON_LegacyFields(t *testing.T) {
	src := `{"name":"legacy","qubits":2,"ops":[
		{"gate":"H","target":0,"control":0},
		{"gate":"CNOT","target":1,"control":0},
		{"gate":"RY","target":1,"angle":1.5},
		{"gate":"M","target":0},
		{"gate":"M","target":1}
	]}`
	c, err := ParseJSON([]byte(src))
	require.NoError(t, err)
	require.Len(t, c.Operations, 5)
	assert.Equal(t, Op("H", LineQubit(0)), c.Operations[0])
	assert.Equal(t, []Qubit{LineQubit(0), LineQubit(1)}, c.Operations[1].Qubits)
	assert.Equal(t, []float64{1.5}, c.Operations[2].Params)
	assert.Equal(t, "q(0)", c.Operations[3].Key)
}

func TestParseJSON_Errors(t *testing.T) {
	for name, src := range map[string]string{
		"not json":      `{`,
		"empty":         `{"operations":[]}`,
		"unknown gate":  `{"operations":[{"gate":"WAT","qubits":[0]}]}`,
		"bad grid pair": `{"operations":[{"gate":"H","qubits":[[1,2,3]]}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseJSON([]byte(src))
			require.Error(t, err)
			assert.True(t, qerr.Is(err, qerr.SourceRetrievalFailure))
		})
	}
}

func TestParseQASM(t *testing.T) {
	src := `OPENQASM 2.0;
include "qelib1.inc";
qreg q[2];
creg c[2];
// prepare a bell pair
h q[0];
cx q[0], q[1];
rz(-pi/2) q[1];
barrier q;
measure q -> c;
`
	c, err := ParseQASM(src)
	require.NoError(t, err)
	require.Len(t, c.Operations, 4)
	assert.Equal(t, GateH, c.Operations[0].Gate)
	assert.Equal(t, GateCNOT, c.Operations[1].Gate)
	assert.InDelta(t, -math.Pi/2, c.Operations[2].Params[0], 1e-12)
	assert.Equal(t, Measure("c", LineQubit(0), LineQubit(1)), c.Operations[3])
}

func TestParseQASM_Errors(t *testing.T) {
	for name, src := range map[string]string{
		"unknown register": "qreg q[1];\nh r[0];",
		"out of range":     "qreg q[1];\nh q[1];",
		"unsupported gate": "qreg q[1];\nu3(0,0,0) q[0];",
		"no operations":    "qreg q[1];",
		"oversized qreg":   "qreg q[100000];\ncreg c[1];\nh q[0];\nmeasure q -> c;",
		"overflowing qreg": "qreg q[99999999999999999999];\nh q[0];",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseQASM(src)
			require.Error(t, err)
			assert.True(t, qerr.Is(err, qerr.SourceRetrievalFailure))
		})
	}
}

func TestToQASM_ParsesBack(t *testing.T) {
	c := bell()
	c.Operations = append(c.Operations[:2:2], Rot("RX", 0.25, LineQubit(1)), c.Operations[2])

	out := c.ToQASM()
	assert.Contains(t, out, "cx q[0], q[1];")
	assert.Contains(t, out, "rx(0.25) q[1];")
	assert.Contains(t, out, "measure q[1] -> c[1];")

	back, err := ParseQASM(out)
	require.NoError(t, err)
	assert.Len(t, back.Operations, 5)
	assert.Equal(t, c.Qubits(), back.Qubits())
}

func TestParseAngle(t *testing.T) {
	tests := map[string]float64{
		"pi":       math.Pi,
		"-pi/4":    -math.Pi / 4,
		"3*pi/4":   3 * math.Pi / 4,
		"0.5":      0.5,
		" 2 * pi ": 2 * math.Pi,
	}
	for expr, want := range tests {
		got, err := parseAngle(expr)
		require.NoError(t, err, expr)
		assert.InDelta(t, want, got, 1e-12, expr)
	}
	_, err := parseAngle("pi/0")
	assert.Error(t, err)
}
