// Package circuit is the in-memory model of a quantum circuit: an ordered
// sequence of gate and measurement operations over a set of qubits.
package circuit

import (
	"fmt"
	"slices"
	"strings"

	"github.com/perclft/qcircuit/qerr"
)

// ------------------------------------------------------------------
// Qubits
// ------------------------------------------------------------------

// Qubit identifies a qubit by grid coordinate. Line qubit i is {0, i}.
type Qubit struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

func LineQubit(i int) Qubit { return Qubit{Col: i} }

func GridQubit(row, col int) Qubit { return Qubit{Row: row, Col: col} }

func (q Qubit) String() string {
	if q.Row == 0 {
		return fmt.Sprintf("q(%d)", q.Col)
	}
	return fmt.Sprintf("q(%d, %d)", q.Row, q.Col)
}

// Compare orders qubits row-major.
func (q Qubit) Compare(o Qubit) int {
	if q.Row != o.Row {
		return q.Row - o.Row
	}
	return q.Col - o.Col
}

// ------------------------------------------------------------------
// Operations
// ------------------------------------------------------------------

type Kind int

const (
	Unitary Kind = iota
	Measurement
)

func (k Kind) String() string {
	if k == Measurement {
		return "measurement"
	}
	return "unitary"
}

// Operation is one gate or measurement applied to an ordered list of qubits.
// Operations are values; nothing in this module mutates one after it is built.
type Operation struct {
	Gate   string
	Qubits []Qubit
	Params []float64
	Key    string // measurement key, empty for gates
}

// Op builds a parameterless gate operation.
func Op(gate string, qubits ...Qubit) Operation {
	return Operation{Gate: CanonicalGate(gate), Qubits: qubits}
}

// Rot builds a single-parameter rotation on one qubit.
func Rot(gate string, theta float64, q Qubit) Operation {
	return Operation{Gate: CanonicalGate(gate), Qubits: []Qubit{q}, Params: []float64{theta}}
}

// Measure builds a measurement of qubits under key.
func Measure(key string, qubits ...Qubit) Operation {
	return Operation{Gate: GateMeasure, Qubits: qubits, Key: key}
}

func (o Operation) Kind() Kind {
	if o.Gate == GateMeasure {
		return Measurement
	}
	return Unitary
}

func (o Operation) IsMultiQubit() bool { return len(o.Qubits) > 1 }

// Validate checks the operation against the gate table.
func (o Operation) Validate() error {
	if len(o.Qubits) == 0 {
		return qerr.New(qerr.InvalidArgument, "%s: operation acts on no qubits", o.Gate)
	}
	seen := make(map[Qubit]struct{}, len(o.Qubits))
	for _, q := range o.Qubits {
		if _, dup := seen[q]; dup {
			return qerr.New(qerr.InvalidArgument, "%s: qubit %s repeated", o.Gate, q)
		}
		seen[q] = struct{}{}
	}
	spec, ok := gates[o.Gate]
	if !ok {
		return qerr.New(qerr.InvalidArgument, "unknown gate %q", o.Gate)
	}
	if spec.arity > 0 && len(o.Qubits) != spec.arity {
		return qerr.New(qerr.InvalidArgument, "%s: expects %d qubits, got %d", o.Gate, spec.arity, len(o.Qubits))
	}
	if len(o.Params) != spec.params {
		return qerr.New(qerr.InvalidArgument, "%s: expects %d parameters, got %d", o.Gate, spec.params, len(o.Params))
	}
	return nil
}

func (o Operation) String() string {
	var sb strings.Builder
	sb.WriteString(o.Gate)
	if len(o.Params) > 0 {
		fmt.Fprintf(&sb, "(%g)", o.Params[0])
	}
	for i, q := range o.Qubits {
		if i == 0 {
			sb.WriteByte(' ')
		} else {
			sb.WriteString(", ")
		}
		sb.WriteString(q.String())
	}
	return sb.String()
}

// ------------------------------------------------------------------
// Circuit
// ------------------------------------------------------------------

// Circuit is an ordered sequence of operations in program order. The order is
// causal per qubit; it says nothing about which operations run concurrently.
type Circuit struct {
	Name       string
	Operations []Operation
}

func New(ops ...Operation) Circuit {
	return Circuit{Operations: ops}
}

// Qubits returns the sorted set of qubits referenced by any operation.
func (c Circuit) Qubits() []Qubit {
	seen := make(map[Qubit]struct{})
	var out []Qubit
	for _, op := range c.Operations {
		for _, q := range op.Qubits {
			if _, ok := seen[q]; ok {
				continue
			}
			seen[q] = struct{}{}
			out = append(out, q)
		}
	}
	slices.SortFunc(out, Qubit.Compare)
	return out
}

// Validate checks every operation.
func (c Circuit) Validate() error {
	for i, op := range c.Operations {
		if err := op.Validate(); err != nil {
			return fmt.Errorf("operation %d: %w", i, err)
		}
	}
	return nil
}
