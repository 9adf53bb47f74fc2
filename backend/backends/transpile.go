package backends

import (
	"math"

	"github.com/perclft/qcircuit/circuit"
	"github.com/perclft/qcircuit/qerr"
)

const maxRewriteDepth = 8

// Transpile rewrites c into d's native gate set. The simulator accepts every
// gate and gets c back unchanged. Rewrites are exact up to global phase and
// never drop a qubit.
func Transpile(c circuit.Circuit, d Device) (circuit.Circuit, error) {
	if err := c.Validate(); err != nil {
		return circuit.Circuit{}, err
	}
	if width := len(c.Qubits()); d.MaxQubits > 0 && width > d.MaxQubits {
		return circuit.Circuit{}, qerr.New(qerr.SimulationFailure,
			"circuit uses %d qubits, %s has %d", width, d.Name, d.MaxQubits)
	}
	if d.IsSimulator() {
		return c, nil
	}

	out := circuit.Circuit{Name: c.Name, Operations: make([]circuit.Operation, 0, len(c.Operations))}
	for _, op := range c.Operations {
		native, err := rewrite(op, d.Gateset, 0)
		if err != nil {
			return circuit.Circuit{}, err
		}
		out.Operations = append(out.Operations, native...)
	}
	return out, nil
}

func rewrite(op circuit.Operation, gs Gateset, depth int) ([]circuit.Operation, error) {
	if gs.Supports(op.Gate) {
		return []circuit.Operation{op}, nil
	}
	if depth >= maxRewriteDepth {
		return nil, qerr.New(qerr.SimulationFailure, "gate %s has no decomposition into %v", op.Gate, gs)
	}
	rule, ok := decompositions[op.Gate]
	if !ok {
		return nil, qerr.New(qerr.SimulationFailure, "gate %s has no decomposition into %v", op.Gate, gs)
	}
	var out []circuit.Operation
	for _, step := range rule(op) {
		native, err := rewrite(step, gs, depth+1)
		if err != nil {
			return nil, err
		}
		out = append(out, native...)
	}
	return out, nil
}

func rz(theta float64, q circuit.Qubit) circuit.Operation { return circuit.Rot(circuit.GateRZ, theta, q) }
func rx(theta float64, q circuit.Qubit) circuit.Operation { return circuit.Rot(circuit.GateRX, theta, q) }
func ry(theta float64, q circuit.Qubit) circuit.Operation { return circuit.Rot(circuit.GateRY, theta, q) }
func h(q circuit.Qubit) circuit.Operation                 { return circuit.Op(circuit.GateH, q) }
func t(q circuit.Qubit) circuit.Operation                 { return circuit.Op(circuit.GateT, q) }
func tdg(q circuit.Qubit) circuit.Operation               { return circuit.Op(circuit.GateTdg, q) }
func cnot(c, q circuit.Qubit) circuit.Operation           { return circuit.Op(circuit.GateCNOT, c, q) }

type decomposition func(op circuit.Operation) []circuit.Operation

// Each rule lists operations in application order.
var decompositions = map[string]decomposition{
	circuit.GateI: func(op circuit.Operation) []circuit.Operation {
		return []circuit.Operation{rz(0, op.Qubits[0])}
	},
	circuit.GateH: func(op circuit.Operation) []circuit.Operation {
		q := op.Qubits[0]
		return []circuit.Operation{ry(math.Pi/2, q), rx(math.Pi, q)}
	},
	circuit.GateX: func(op circuit.Operation) []circuit.Operation {
		return []circuit.Operation{rx(math.Pi, op.Qubits[0])}
	},
	circuit.GateY: func(op circuit.Operation) []circuit.Operation {
		return []circuit.Operation{ry(math.Pi, op.Qubits[0])}
	},
	circuit.GateZ: func(op circuit.Operation) []circuit.Operation {
		return []circuit.Operation{rz(math.Pi, op.Qubits[0])}
	},
	circuit.GateS: func(op circuit.Operation) []circuit.Operation {
		return []circuit.Operation{rz(math.Pi/2, op.Qubits[0])}
	},
	circuit.GateSdg: func(op circuit.Operation) []circuit.Operation {
		return []circuit.Operation{rz(-math.Pi/2, op.Qubits[0])}
	},
	circuit.GateT: func(op circuit.Operation) []circuit.Operation {
		return []circuit.Operation{rz(math.Pi/4, op.Qubits[0])}
	},
	circuit.GateTdg: func(op circuit.Operation) []circuit.Operation {
		return []circuit.Operation{rz(-math.Pi/4, op.Qubits[0])}
	},
	// RY(θ) = RZ(π/2)·RX(θ)·RZ(-π/2)
	circuit.GateRY: func(op circuit.Operation) []circuit.Operation {
		q := op.Qubits[0]
		return []circuit.Operation{rz(-math.Pi/2, q), rx(op.Params[0], q), rz(math.Pi/2, q)}
	},
	// RX(θ) = RZ(-π/2)·RY(θ)·RZ(π/2)
	circuit.GateRX: func(op circuit.Operation) []circuit.Operation {
		q := op.Qubits[0]
		return []circuit.Operation{rz(math.Pi/2, q), ry(op.Params[0], q), rz(-math.Pi/2, q)}
	},
	circuit.GateCNOT: func(op circuit.Operation) []circuit.Operation {
		c, q := op.Qubits[0], op.Qubits[1]
		return []circuit.Operation{h(q), circuit.Op(circuit.GateCZ, c, q), h(q)}
	},
	circuit.GateCZ: func(op circuit.Operation) []circuit.Operation {
		a, b := op.Qubits[0], op.Qubits[1]
		return []circuit.Operation{h(b), cnot(a, b), h(b)}
	},
	circuit.GateSWAP: func(op circuit.Operation) []circuit.Operation {
		a, b := op.Qubits[0], op.Qubits[1]
		return []circuit.Operation{cnot(a, b), cnot(b, a), cnot(a, b)}
	},
	circuit.GateCCX: func(op circuit.Operation) []circuit.Operation {
		a, b, c := op.Qubits[0], op.Qubits[1], op.Qubits[2]
		return []circuit.Operation{
			h(c), cnot(b, c), tdg(c), cnot(a, c), t(c), cnot(b, c), tdg(c), cnot(a, c),
			t(b), t(c), h(c), cnot(a, b), t(a), tdg(b), cnot(a, b),
		}
	},
}
