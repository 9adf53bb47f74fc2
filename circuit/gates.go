package circuit

import "strings"

// Gate names understood by the model. Aliases are folded at parse time.
const (
	GateI       = "I"
	GateH       = "H"
	GateX       = "X"
	GateY       = "Y"
	GateZ       = "Z"
	GateS       = "S"
	GateSdg     = "SDG"
	GateT       = "T"
	GateTdg     = "TDG"
	GateRX      = "RX"
	GateRY      = "RY"
	GateRZ      = "RZ"
	GateCNOT    = "CNOT"
	GateCZ      = "CZ"
	GateSWAP    = "SWAP"
	GateCCX     = "CCX"
	GateMeasure = "MEASURE"
)

type gateSpec struct {
	arity  int // 0 means any positive number of qubits
	params int
}

var gates = map[string]gateSpec{
	GateI:       {1, 0},
	GateH:       {1, 0},
	GateX:       {1, 0},
	GateY:       {1, 0},
	GateZ:       {1, 0},
	GateS:       {1, 0},
	GateSdg:     {1, 0},
	GateT:       {1, 0},
	GateTdg:     {1, 0},
	GateRX:      {1, 1},
	GateRY:      {1, 1},
	GateRZ:      {1, 1},
	GateCNOT:    {2, 0},
	GateCZ:      {2, 0},
	GateSWAP:    {2, 0},
	GateCCX:     {3, 0},
	GateMeasure: {0, 0},
}

var gateAliases = map[string]string{
	"ID":      GateI,
	"PAULI_X": GateX,
	"PAULI_Y": GateY,
	"PAULI_Z": GateZ,
	"CX":      GateCNOT,
	"TOFFOLI": GateCCX,
	"CCNOT":   GateCCX,
	"M":       GateMeasure,
	"MEASURE": GateMeasure,
	"PHASE_S": GateS,
	"PHASE_T": GateT,
}

// CanonicalGate folds case and aliases into the model's gate name.
func CanonicalGate(name string) string {
	name = strings.ToUpper(strings.TrimSpace(name))
	if alias, ok := gateAliases[name]; ok {
		return alias
	}
	return name
}

// KnownGate reports whether name (after folding) is in the gate table.
func KnownGate(name string) bool {
	_, ok := gates[CanonicalGate(name)]
	return ok
}
