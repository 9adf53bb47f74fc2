package simulator

import (
	"math"
	"math/cmplx"

	"github.com/perclft/qcircuit/circuit"
	"github.com/perclft/qcircuit/qerr"
)

// stateVector holds 2^n amplitudes. Qubit i of the circuit (in sorted order)
// is bit i of the basis index.
type stateVector struct {
	amps []complex128
}

func newStateVector(numQubits int) *stateVector {
	amps := make([]complex128, 1<<numQubits)
	amps[0] = 1
	return &stateVector{amps: amps}
}

func (s *stateVector) clone() *stateVector {
	amps := make([]complex128, len(s.amps))
	copy(amps, s.amps)
	return &stateVector{amps: amps}
}

type matrix [2][2]complex128

func rotation(gate string, theta float64) matrix {
	c, sn := math.Cos(theta/2), math.Sin(theta/2)
	switch gate {
	case circuit.GateRX:
		return matrix{{complex(c, 0), complex(0, -sn)}, {complex(0, -sn), complex(c, 0)}}
	case circuit.GateRY:
		return matrix{{complex(c, 0), complex(-sn, 0)}, {complex(sn, 0), complex(c, 0)}}
	default: // RZ
		return matrix{{cmplx.Exp(complex(0, -theta/2)), 0}, {0, cmplx.Exp(complex(0, theta/2))}}
	}
}

var (
	invSqrt2 = complex(1/math.Sqrt2, 0)

	fixedGates = map[string]matrix{
		circuit.GateI:   {{1, 0}, {0, 1}},
		circuit.GateH:   {{invSqrt2, invSqrt2}, {invSqrt2, -invSqrt2}},
		circuit.GateX:   {{0, 1}, {1, 0}},
		circuit.GateY:   {{0, -1i}, {1i, 0}},
		circuit.GateZ:   {{1, 0}, {0, -1}},
		circuit.GateS:   {{1, 0}, {0, 1i}},
		circuit.GateSdg: {{1, 0}, {0, -1i}},
		circuit.GateT:   {{1, 0}, {0, cmplx.Exp(complex(0, math.Pi/4))}},
		circuit.GateTdg: {{1, 0}, {0, cmplx.Exp(complex(0, -math.Pi/4))}},
	}
)

// applyControlled applies m to target on every basis state where all control
// bits are set. With no controls it is a plain single-qubit gate.
func (s *stateVector) applyControlled(controls []int, target int, m matrix) {
	mask := 0
	for _, c := range controls {
		mask |= 1 << c
	}
	bit := 1 << target
	for i := range s.amps {
		if i&bit != 0 || i&mask != mask {
			continue
		}
		j := i | bit
		a0, a1 := s.amps[i], s.amps[j]
		s.amps[i] = m[0][0]*a0 + m[0][1]*a1
		s.amps[j] = m[1][0]*a0 + m[1][1]*a1
	}
}

func (s *stateVector) applySwap(q1, q2 int) {
	bit1, bit2 := 1<<q1, 1<<q2
	for i := range s.amps {
		if i&bit1 != 0 && i&bit2 == 0 {
			j := (i &^ bit1) | bit2
			s.amps[i], s.amps[j] = s.amps[j], s.amps[i]
		}
	}
}

// apply evolves the state by one unitary operation. idx maps the operation's
// qubits to bit positions.
func (s *stateVector) apply(op circuit.Operation, idx map[circuit.Qubit]int) error {
	bits := make([]int, len(op.Qubits))
	for i, q := range op.Qubits {
		bits[i] = idx[q]
	}
	if m, ok := fixedGates[op.Gate]; ok {
		s.applyControlled(nil, bits[0], m)
		return nil
	}
	switch op.Gate {
	case circuit.GateRX, circuit.GateRY, circuit.GateRZ:
		s.applyControlled(nil, bits[0], rotation(op.Gate, op.Params[0]))
	case circuit.GateCNOT:
		s.applyControlled(bits[:1], bits[1], fixedGates[circuit.GateX])
	case circuit.GateCZ:
		s.applyControlled(bits[:1], bits[1], fixedGates[circuit.GateZ])
	case circuit.GateCCX:
		s.applyControlled(bits[:2], bits[2], fixedGates[circuit.GateX])
	case circuit.GateSWAP:
		s.applySwap(bits[0], bits[1])
	default:
		return qerr.New(qerr.SimulationFailure, "gate %s cannot be simulated", op.Gate)
	}
	return nil
}

// measure projects qubit q using r drawn from [0, 1) and returns the outcome.
func (s *stateVector) measure(q int, r float64) bool {
	bit := 1 << q
	p1 := 0.0
	for i, a := range s.amps {
		if i&bit != 0 {
			p1 += real(a)*real(a) + imag(a)*imag(a)
		}
	}
	one := r < p1
	norm := p1
	if !one {
		norm = 1 - p1
	}
	if norm <= 0 {
		norm = 1
	}
	scale := complex(1/math.Sqrt(norm), 0)
	for i := range s.amps {
		if (i&bit != 0) == one {
			s.amps[i] *= scale
		} else {
			s.amps[i] = 0
		}
	}
	return one
}

func (s *stateVector) probabilities() []float64 {
	p := make([]float64, len(s.amps))
	for i, a := range s.amps {
		p[i] = real(a)*real(a) + imag(a)*imag(a)
	}
	return p
}

// sample draws one basis index from the cumulative distribution cdf.
func sample(cdf []float64, r float64) int {
	lo, hi := 0, len(cdf)-1
	for lo < hi {
		mid := (lo + hi) / 2
		if r < cdf[mid] {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}
