package circuit

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/perclft/qcircuit/qerr"
)

// The circuit JSON format:
//
//	{
//	  "name": "bell",
//	  "operations": [
//	    {"gate": "H", "qubits": [0]},
//	    {"gate": "CNOT", "qubits": [0, 1]},
//	    {"gate": "M", "qubits": [0, 1], "key": "result"}
//	  ]
//	}
//
// A qubit is either a line index or a [row, col] pair. The older qctl form
// with "target", "control", "control2" and "angle" fields is also accepted.

type circuitJSON struct {
	Name       string   `json:"name,omitempty"`
	Operations []opJSON `json:"operations"`
	Ops        []opJSON `json:"ops,omitempty"`
}

type opJSON struct {
	Gate     string      `json:"gate"`
	Qubits   []qubitJSON `json:"qubits,omitempty"`
	Params   []float64   `json:"params,omitempty"`
	Key      string      `json:"key,omitempty"`
	Target   *int        `json:"target,omitempty"`
	Control  *int        `json:"control,omitempty"`
	Control2 *int        `json:"control2,omitempty"`
	Angle    *float64    `json:"angle,omitempty"`
}

type qubitJSON Qubit

func (q qubitJSON) MarshalJSON() ([]byte, error) {
	if q.Row == 0 {
		return json.Marshal(q.Col)
	}
	return json.Marshal([2]int{q.Row, q.Col})
}

func (q *qubitJSON) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var rc []int
		if err := json.Unmarshal(data, &rc); err != nil {
			return err
		}
		if len(rc) != 2 {
			return fmt.Errorf("grid qubit needs [row, col], got %d values", len(rc))
		}
		*q = qubitJSON{Row: rc[0], Col: rc[1]}
		return nil
	}
	var col int
	if err := json.Unmarshal(data, &col); err != nil {
		return err
	}
	*q = qubitJSON{Col: col}
	return nil
}

func (c Circuit) MarshalJSON() ([]byte, error) {
	out := circuitJSON{Name: c.Name, Operations: make([]opJSON, 0, len(c.Operations))}
	for _, op := range c.Operations {
		qs := make([]qubitJSON, len(op.Qubits))
		for i, q := range op.Qubits {
			qs[i] = qubitJSON(q)
		}
		out.Operations = append(out.Operations, opJSON{Gate: op.Gate, Qubits: qs, Params: op.Params, Key: op.Key})
	}
	return json.Marshal(out)
}

func (c *Circuit) UnmarshalJSON(data []byte) error {
	var in circuitJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	raw := in.Operations
	if len(raw) == 0 {
		raw = in.Ops
	}
	ops := make([]Operation, 0, len(raw))
	for _, o := range raw {
		ops = append(ops, o.operation())
	}
	*c = Circuit{Name: in.Name, Operations: ops}
	return nil
}

func (o opJSON) operation() Operation {
	op := Operation{Gate: CanonicalGate(o.Gate), Params: o.Params, Key: o.Key}
	for _, q := range o.Qubits {
		op.Qubits = append(op.Qubits, Qubit(q))
	}
	if len(op.Qubits) == 0 && o.Target != nil {
		if o.Control != nil && op.Gate != GateMeasure && gates[op.Gate].arity >= 2 {
			op.Qubits = append(op.Qubits, LineQubit(*o.Control))
		}
		if o.Control2 != nil && gates[op.Gate].arity == 3 {
			op.Qubits = append(op.Qubits, LineQubit(*o.Control2))
		}
		op.Qubits = append(op.Qubits, LineQubit(*o.Target))
	}
	if len(op.Params) == 0 && o.Angle != nil && gates[op.Gate].params == 1 {
		op.Params = []float64{*o.Angle}
	}
	if op.Gate == GateMeasure && op.Key == "" && len(op.Qubits) > 0 {
		op.Key = defaultMeasurementKey(op.Qubits)
	}
	return op
}

func defaultMeasurementKey(qs []Qubit) string {
	var buf bytes.Buffer
	for i, q := range qs {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(q.String())
	}
	return buf.String()
}

// ParseJSON decodes and validates a circuit in the JSON format.
func ParseJSON(data []byte) (Circuit, error) {
	var c Circuit
	if err := json.Unmarshal(data, &c); err != nil {
		return Circuit{}, qerr.Wrap(qerr.SourceRetrievalFailure, err, "decode circuit json")
	}
	if len(c.Operations) == 0 {
		return Circuit{}, qerr.New(qerr.SourceRetrievalFailure, "circuit has no operations")
	}
	if err := c.Validate(); err != nil {
		return Circuit{}, qerr.Wrap(qerr.SourceRetrievalFailure, err, "invalid circuit")
	}
	return c, nil
}
