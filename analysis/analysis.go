// Package analysis computes structural metrics of a circuit.
//
// Depth is defined by greedy moment packing: each operation, in program
// order, lands in the earliest moment after every moment already holding one
// of its qubits. This is the "pack as tight as possible" rule used when a
// circuit is rebuilt from its flat operation list.
package analysis

import "github.com/perclft/qcircuit/circuit"

// Metrics are the structural numbers reported for a circuit.
type Metrics struct {
	Width            int `json:"width"`
	Depth            int `json:"depth"`
	MultiQubitDepth  int `json:"multi_qubit_depth"`
	TotalOperations  int `json:"total_operations"`
	SingleQubitGates int `json:"single_qubit_gates"`
	MultiQubitGates  int `json:"multi_qubit_gates"`
	Measurements     int `json:"measurements"`
}

// Moment is a group of operations acting on pairwise disjoint qubits.
type Moment []circuit.Operation

// PackMoments partitions ops into moments. An operation's moment index is
// one past the latest moment any of its qubits already occupies.
func PackMoments(ops []circuit.Operation) []Moment {
	var moments []Moment
	frontier := make(map[circuit.Qubit]int) // qubit -> next free moment
	for _, op := range ops {
		idx := 0
		for _, q := range op.Qubits {
			idx = max(idx, frontier[q])
		}
		if idx == len(moments) {
			moments = append(moments, nil)
		}
		moments[idx] = append(moments[idx], op)
		for _, q := range op.Qubits {
			frontier[q] = idx + 1
		}
	}
	return moments
}

// Analyze computes the metrics of c. It does not modify c.
func Analyze(c circuit.Circuit) Metrics {
	var totalGates, multiGates, measurements int
	multi := make([]circuit.Operation, 0, len(c.Operations))
	for _, op := range c.Operations {
		if op.IsMultiQubit() {
			multi = append(multi, op)
		}
		if op.Kind() == circuit.Measurement {
			measurements++
			continue
		}
		totalGates++
		if op.IsMultiQubit() {
			multiGates++
		}
	}

	return Metrics{
		Width:            len(c.Qubits()),
		Depth:            len(PackMoments(c.Operations)),
		MultiQubitDepth:  len(PackMoments(multi)),
		TotalOperations:  totalGates + measurements,
		SingleQubitGates: totalGates - multiGates,
		MultiQubitGates:  multiGates,
		Measurements:     measurements,
	}
}
