package circuit

import (
	"math"
	"sort"
)

// Example is a textbook circuit shipped for demos and smoke tests.
type Example struct {
	Name        string
	Description string
	// Outcomes lists the bitstrings the measured circuit can produce.
	Outcomes []string
	Build    func() Circuit
}

var examples = map[string]Example{
	"hadamard": {
		Name:        "hadamard",
		Description: "single Hadamard preparing |+>",
		Outcomes:    []string{"0", "1"},
		Build: func() Circuit {
			q := LineQubit(0)
			return named("hadamard", Op(GateH, q), Measure("m", q))
		},
	},
	"bell": {
		Name:        "bell",
		Description: "maximally entangled Bell pair (|00> + |11>)/sqrt2",
		Outcomes:    []string{"00", "11"},
		Build: func() Circuit {
			a, b := LineQubit(0), LineQubit(1)
			return named("bell", Op(GateH, a), Op(GateCNOT, a, b), Measure("result", a, b))
		},
	},
	"ghz": {
		Name:        "ghz",
		Description: "three-qubit GHZ state (|000> + |111>)/sqrt2",
		Outcomes:    []string{"000", "111"},
		Build: func() Circuit {
			a, b, c := LineQubit(0), LineQubit(1), LineQubit(2)
			return named("ghz",
				Op(GateH, a),
				Op(GateCNOT, a, b),
				Op(GateCNOT, a, c),
				Measure("result", a, b, c),
			)
		},
	},
	"toffoli": {
		Name:        "toffoli",
		Description: "CCX flipping the target of two set controls",
		Outcomes:    []string{"111"},
		Build: func() Circuit {
			a, b, c := LineQubit(0), LineQubit(1), LineQubit(2)
			return named("toffoli",
				Op(GateX, a),
				Op(GateX, b),
				Op(GateCCX, a, b, c),
				Measure("result", a, b, c),
			)
		},
	},
	"rotation": {
		Name:        "rotation",
		Description: "RY(pi) on each of two qubits, equivalent to X up to phase",
		Outcomes:    []string{"11"},
		Build: func() Circuit {
			a, b := LineQubit(0), LineQubit(1)
			return named("rotation",
				Rot(GateRY, math.Pi, a),
				Rot(GateRY, math.Pi, b),
				Measure("result", a, b),
			)
		},
	},
}

func named(name string, ops ...Operation) Circuit {
	c := New(ops...)
	c.Name = name
	return c
}

// LookupExample returns the example called name.
func LookupExample(name string) (Example, bool) {
	e, ok := examples[name]
	return e, ok
}

// ExampleNames returns the example names in sorted order.
func ExampleNames() []string {
	names := make([]string, 0, len(examples))
	for n := range examples {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
