package api

import (
	"bytes"
	"encoding/json"

	"github.com/perclft/qcircuit/analysis"
	"github.com/perclft/qcircuit/backend/backends"
	"github.com/perclft/qcircuit/circuit"
	"github.com/perclft/qcircuit/qerr"
	"github.com/perclft/qcircuit/source"
)

// DefaultShots is used when an execute request carries no shot count.
const DefaultShots = 1024

// TranspileRequest is the body of POST /transpile.
type TranspileRequest struct {
	QPUName      string `json:"qpu_name"`
	ImplLanguage string `json:"impl_language"`
	ImplURL      string `json:"impl_url"`
	ImplData     string `json:"impl_data"`
	BearerToken  string `json:"bearer_token"`
}

// ExecuteRequest is the body of POST /execute. TranspiledCircuit, when set,
// takes precedence over the implementation source; it may be a circuit JSON
// object or a string holding one.
type ExecuteRequest struct {
	TranspileRequest
	TranspiledCircuit json.RawMessage `json:"transpiled_circuit,omitempty"`
	Shots             *int            `json:"shots,omitempty"`
}

// TranspileResponse reports the metrics of the transpiled circuit.
type TranspileResponse struct {
	Depth                 int             `json:"depth"`
	MultiQubitGateDepth   int             `json:"multi-qubit-gate-depth"`
	Width                 int             `json:"width"`
	TotalOperations       int             `json:"total-number-of-operations"`
	SingleQubitGates      int             `json:"number-of-single-qubit-gates"`
	MultiQubitGates       int             `json:"number-of-multi-qubit-gates"`
	MeasurementOperations int             `json:"number-of-measurement-operations"`
	TranspiledCircuit     circuit.Circuit `json:"transpiled-circuit"`
	TranspiledQASM        string          `json:"transpiled-qasm"`
}

func newTranspileResponse(r analysis.Report) TranspileResponse {
	m := r.Metrics
	return TranspileResponse{
		Depth:                 m.Depth,
		MultiQubitGateDepth:   m.MultiQubitDepth,
		Width:                 m.Width,
		TotalOperations:       m.TotalOperations,
		SingleQubitGates:      m.SingleQubitGates,
		MultiQubitGates:       m.MultiQubitGates,
		MeasurementOperations: m.Measurements,
		TranspiledCircuit:     r.Transpiled,
		TranspiledQASM:        r.QASM,
	}
}

// DeviceResponse describes one supported target. A device without native
// gates accepts every gate.
type DeviceResponse struct {
	Name        string   `json:"name"`
	Provider    string   `json:"provider"`
	Kind        string   `json:"kind"`
	MaxQubits   int      `json:"max_qubits"`
	NativeGates []string `json:"native_gates,omitempty"`
}

func newDeviceResponse(d backends.Device) DeviceResponse {
	return DeviceResponse{
		Name:        d.Name,
		Provider:    d.Provider,
		Kind:        d.Kind.String(),
		MaxQubits:   d.MaxQubits,
		NativeGates: d.Gateset,
	}
}

// CacheStatsResponse is the body of GET /cache.
type CacheStatsResponse struct {
	Enabled bool `json:"enabled"`
	analysis.CacheStats
}

// InvalidateResponse is the body of POST /cache/invalidate.
type InvalidateResponse struct {
	Invalidated bool `json:"invalidated"`
}

// ExecuteResponse points at the result resource of an accepted job.
type ExecuteResponse struct {
	Location string `json:"Location"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// sourceSpec builds the circuit source of r. impl_data is base64 and is
// ignored when impl_url is set.
func (r TranspileRequest) sourceSpec() (source.Spec, error) {
	spec := source.Spec{Language: r.ImplLanguage, URL: r.ImplURL, BearerToken: r.BearerToken}
	if r.ImplURL == "" && r.ImplData != "" {
		data, err := source.DecodeInline(r.ImplData)
		if err != nil {
			return source.Spec{}, err
		}
		spec.Data = data
	}
	if err := spec.Validate(); err != nil {
		return source.Spec{}, err
	}
	return spec, nil
}

// transpiledCircuit decodes the transpiled_circuit field.
func (r ExecuteRequest) transpiledCircuit() (*circuit.Circuit, error) {
	raw := bytes.TrimSpace(r.TranspiledCircuit)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, qerr.Wrap(qerr.InvalidArgument, err, "decode transpiled_circuit")
		}
		raw = []byte(s)
	}
	c, err := circuit.ParseJSON(raw)
	if err != nil {
		return nil, qerr.Wrap(qerr.InvalidArgument, err, "transpiled_circuit")
	}
	return &c, nil
}
