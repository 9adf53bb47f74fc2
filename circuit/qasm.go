package circuit

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/perclft/qcircuit/qerr"
)

// OpenQASM 2.0 subset: qreg/creg declarations, the gates of the gate table
// (lower-case, qelib1 names), measure with explicit or whole-register
// targets, barrier and comments.
var (
	qregRegex    = regexp.MustCompile(`^qreg\s+(\w+)\s*\[(\d+)\]$`)
	cregRegex    = regexp.MustCompile(`^creg\s+(\w+)\s*\[(\d+)\]$`)
	measureRegex = regexp.MustCompile(`^measure\s+(\w+)(?:\[(\d+)\])?\s*->\s*(\w+)(?:\[(\d+)\])?$`)
	gateRegex    = regexp.MustCompile(`^(\w+)\s*(?:\(([^)]*)\))?\s+(.+)$`)
	argRegex     = regexp.MustCompile(`^(\w+)\[(\d+)\]$`)
)

var qasmGateNames = map[string]string{
	GateI:    "id",
	GateH:    "h",
	GateX:    "x",
	GateY:    "y",
	GateZ:    "z",
	GateS:    "s",
	GateSdg:  "sdg",
	GateT:    "t",
	GateTdg:  "tdg",
	GateRX:   "rx",
	GateRY:   "ry",
	GateRZ:   "rz",
	GateCNOT: "cx",
	GateCZ:   "cz",
	GateSWAP: "swap",
	GateCCX:  "ccx",
}

// MaxRegisterSize bounds a qreg declaration. It matches the widest device.
const MaxRegisterSize = 80

type qasmRegister struct {
	row  int
	size int
}

// ParseQASM parses an OpenQASM 2.0 program into a validated circuit. Register
// r (in declaration order) maps to qubit row r.
func ParseQASM(src string) (Circuit, error) {
	qregs := make(map[string]qasmRegister)
	var ops []Operation

	for n, line := range strings.Split(src, "\n") {
		if i := strings.Index(line, "//"); i >= 0 {
			line = line[:i]
		}
		for _, stmt := range strings.Split(line, ";") {
			stmt = strings.TrimSpace(stmt)
			if stmt == "" {
				continue
			}
			parsed, err := parseStatement(stmt, qregs)
			if err != nil {
				return Circuit{}, qerr.Wrap(qerr.SourceRetrievalFailure, err, fmt.Sprintf("qasm line %d", n+1))
			}
			ops = append(ops, parsed...)
		}
	}
	if len(ops) == 0 {
		return Circuit{}, qerr.New(qerr.SourceRetrievalFailure, "qasm program has no operations")
	}
	c := Circuit{Operations: ops}
	if err := c.Validate(); err != nil {
		return Circuit{}, qerr.Wrap(qerr.SourceRetrievalFailure, err, "invalid circuit")
	}
	return c, nil
}

func parseStatement(stmt string, qregs map[string]qasmRegister) ([]Operation, error) {
	lower := strings.ToLower(stmt)
	switch {
	case strings.HasPrefix(lower, "openqasm"), strings.HasPrefix(lower, "include"),
		strings.HasPrefix(lower, "barrier"), cregRegex.MatchString(stmt):
		return nil, nil
	}

	if m := qregRegex.FindStringSubmatch(stmt); m != nil {
		size, err := strconv.Atoi(m[2])
		if err != nil || size > MaxRegisterSize {
			return nil, fmt.Errorf("register %s exceeds %d qubits", m[1], MaxRegisterSize)
		}
		if _, dup := qregs[m[1]]; dup {
			return nil, fmt.Errorf("register %s declared twice", m[1])
		}
		qregs[m[1]] = qasmRegister{row: len(qregs), size: size}
		return nil, nil
	}

	if m := measureRegex.FindStringSubmatch(stmt); m != nil {
		reg, ok := qregs[m[1]]
		if !ok {
			return nil, fmt.Errorf("unknown register %s", m[1])
		}
		if m[2] == "" {
			qs := make([]Qubit, reg.size)
			for i := range qs {
				qs[i] = GridQubit(reg.row, i)
			}
			return []Operation{Measure(m[3], qs...)}, nil
		}
		q, err := registerQubit(m[1], m[2], qregs)
		if err != nil {
			return nil, err
		}
		key := m[3]
		if m[4] != "" {
			key = fmt.Sprintf("%s[%s]", m[3], m[4])
		}
		return []Operation{Measure(key, q)}, nil
	}

	m := gateRegex.FindStringSubmatch(stmt)
	if m == nil {
		return nil, fmt.Errorf("cannot parse %q", stmt)
	}
	gate := CanonicalGate(m[1])
	if !KnownGate(gate) || gate == GateMeasure {
		return nil, fmt.Errorf("unsupported gate %q", m[1])
	}
	op := Operation{Gate: gate}
	if strings.TrimSpace(m[2]) != "" {
		for _, p := range strings.Split(m[2], ",") {
			v, err := parseAngle(p)
			if err != nil {
				return nil, err
			}
			op.Params = append(op.Params, v)
		}
	}
	for _, arg := range strings.Split(m[3], ",") {
		am := argRegex.FindStringSubmatch(strings.TrimSpace(arg))
		if am == nil {
			return nil, fmt.Errorf("bad qubit argument %q", arg)
		}
		q, err := registerQubit(am[1], am[2], qregs)
		if err != nil {
			return nil, err
		}
		op.Qubits = append(op.Qubits, q)
	}
	return []Operation{op}, nil
}

func registerQubit(name, index string, qregs map[string]qasmRegister) (Qubit, error) {
	reg, ok := qregs[name]
	if !ok {
		return Qubit{}, fmt.Errorf("unknown register %s", name)
	}
	i, _ := strconv.Atoi(index)
	if i >= reg.size {
		return Qubit{}, fmt.Errorf("%s[%d] out of range (size %d)", name, i, reg.size)
	}
	return GridQubit(reg.row, i), nil
}

// parseAngle evaluates products and quotients of numbers and pi, e.g.
// "-pi/2", "3*pi/4", "0.25".
func parseAngle(expr string) (float64, error) {
	expr = strings.ReplaceAll(strings.TrimSpace(expr), " ", "")
	sign := 1.0
	if strings.HasPrefix(expr, "-") {
		sign, expr = -1, expr[1:]
	}
	if expr == "" {
		return 0, fmt.Errorf("empty parameter")
	}
	result, op := 1.0, byte('*')
	for len(expr) > 0 {
		i := strings.IndexAny(expr, "*/")
		term := expr
		if i >= 0 {
			term = expr[:i]
		}
		var v float64
		if strings.EqualFold(term, "pi") {
			v = math.Pi
		} else {
			f, err := strconv.ParseFloat(term, 64)
			if err != nil {
				return 0, fmt.Errorf("bad parameter %q", term)
			}
			v = f
		}
		if op == '*' {
			result *= v
		} else {
			if v == 0 {
				return 0, fmt.Errorf("division by zero in parameter")
			}
			result /= v
		}
		if i < 0 {
			break
		}
		op, expr = expr[i], expr[i+1:]
	}
	return sign * result, nil
}

// ToQASM renders the circuit as OpenQASM 2.0. Qubits are numbered in sorted
// order on a single register; every measured qubit gets its own classical bit
// in measurement order.
func (c Circuit) ToQASM() string {
	qubits := c.Qubits()
	index := make(map[Qubit]int, len(qubits))
	for i, q := range qubits {
		index[q] = i
	}
	nbits := 0
	for _, op := range c.Operations {
		if op.Kind() == Measurement {
			nbits += len(op.Qubits)
		}
	}

	var sb strings.Builder
	sb.WriteString("OPENQASM 2.0;\ninclude \"qelib1.inc\";\n")
	fmt.Fprintf(&sb, "qreg q[%d];\n", max(len(qubits), 1))
	if nbits > 0 {
		fmt.Fprintf(&sb, "creg c[%d];\n", nbits)
	}
	sb.WriteByte('\n')

	bit := 0
	for _, op := range c.Operations {
		if op.Kind() == Measurement {
			for _, q := range op.Qubits {
				fmt.Fprintf(&sb, "measure q[%d] -> c[%d];\n", index[q], bit)
				bit++
			}
			continue
		}
		name, ok := qasmGateNames[op.Gate]
		if !ok {
			name = strings.ToLower(op.Gate)
		}
		sb.WriteString(name)
		if len(op.Params) > 0 {
			params := make([]string, len(op.Params))
			for i, p := range op.Params {
				params[i] = strconv.FormatFloat(p, 'g', -1, 64)
			}
			fmt.Fprintf(&sb, "(%s)", strings.Join(params, ","))
		}
		for i, q := range op.Qubits {
			if i == 0 {
				sb.WriteByte(' ')
			} else {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "q[%d]", index[q])
		}
		sb.WriteString(";\n")
	}
	return sb.String()
}
