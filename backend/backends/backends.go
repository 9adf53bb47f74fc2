// Backend abstraction layer
// Resolves a target name to a device model, rewrites circuits into the
// device's native gate set and runs them on the device's simulation capability.

package backends

import (
	"context"
	"slices"
	"sort"
	"strings"

	"github.com/perclft/qcircuit/circuit"
	"github.com/perclft/qcircuit/qerr"
)

// ------------------------------------------------------------------
// Devices
// ------------------------------------------------------------------

type Kind int

const (
	KindSimulator Kind = iota
	KindDevice
)

func (k Kind) String() string {
	if k == KindSimulator {
		return "simulator"
	}
	return "device"
}

// Gateset lists the native gates of a device. Measurements are always native.
type Gateset []string

func (g Gateset) Supports(gate string) bool {
	return gate == circuit.GateMeasure || slices.Contains(g, gate)
}

// Device is either the pure simulator or a named hardware model.
type Device struct {
	Name      string
	Provider  string
	Kind      Kind
	Gateset   Gateset
	MaxQubits int
}

func (d Device) IsSimulator() bool { return d.Kind == KindSimulator }

var (
	czGateset    = Gateset{circuit.GateRX, circuit.GateRY, circuit.GateRZ, circuit.GateCZ}
	quilGateset  = Gateset{circuit.GateRX, circuit.GateRZ, circuit.GateCZ}
	trappedIonGS = Gateset{circuit.GateRX, circuit.GateRY, circuit.GateRZ, circuit.GateCNOT}
)

// DefaultDevices is the fixed table of supported targets.
func DefaultDevices() []Device {
	return []Device{
		{Name: "local-simulator", Provider: "qcircuit", Kind: KindSimulator, MaxQubits: 24},
		{Name: "sycamore", Provider: "Google", Kind: KindDevice, Gateset: czGateset, MaxQubits: 54},
		{Name: "sycamore23", Provider: "Google", Kind: KindDevice, Gateset: czGateset, MaxQubits: 23},
		{Name: "aspen-m-3", Provider: "Rigetti", Kind: KindDevice, Gateset: quilGateset, MaxQubits: 80},
		{Name: "ionq-aria", Provider: "IonQ", Kind: KindDevice, Gateset: trappedIonGS, MaxQubits: 25},
	}
}

// ------------------------------------------------------------------
// Simulation capability
// ------------------------------------------------------------------

// Measurement is the outcome of one measurement operation in one shot, one
// bit per measured qubit in operation order.
type Measurement struct {
	Key  string
	Bits []bool
}

// Shot holds the measurements of one repetition in program order.
type Shot []Measurement

// Simulator runs a circuit for a number of shots.
type Simulator interface {
	Run(ctx context.Context, c circuit.Circuit, shots int) ([]Shot, error)
}

// ------------------------------------------------------------------
// Registry
// ------------------------------------------------------------------

// Registry maps device names to devices and owns the simulation capability
// shared by all of them. Lookup is case-insensitive and total: every name is
// either a known device or UnsupportedBackend.
type Registry struct {
	devices map[string]Device
	sim     Simulator
}

func NewRegistry(sim Simulator, devices ...Device) *Registry {
	if len(devices) == 0 {
		devices = DefaultDevices()
	}
	r := &Registry{devices: make(map[string]Device, len(devices)), sim: sim}
	for _, d := range devices {
		r.devices[strings.ToLower(d.Name)] = d
	}
	return r
}

func (r *Registry) Resolve(name string) (Device, error) {
	d, ok := r.devices[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Device{}, qerr.New(qerr.UnsupportedBackend, "qpu %q is not supported", name)
	}
	return d, nil
}

func (r *Registry) List() []string {
	names := make([]string, 0, len(r.devices))
	for _, d := range r.devices {
		names = append(names, d.Name)
	}
	sort.Strings(names)
	return names
}

// Simulate runs c on the device's simulation capability. Every device,
// hardware models included, is simulated locally.
func (r *Registry) Simulate(ctx context.Context, d Device, c circuit.Circuit, shots int) ([]Shot, error) {
	if shots <= 0 {
		return nil, qerr.New(qerr.InvalidArgument, "shots must be positive, got %d", shots)
	}
	if r.sim == nil {
		return nil, qerr.New(qerr.SimulationFailure, "no simulator configured for %s", d.Name)
	}
	records, err := r.sim.Run(ctx, c, shots)
	if err != nil {
		if qerr.KindOf(err) == qerr.Internal {
			return nil, qerr.Wrap(qerr.SimulationFailure, err, d.Name)
		}
		return nil, err
	}
	if len(records) != shots {
		return nil, qerr.New(qerr.SimulationFailure, "%s returned %d shots, want %d", d.Name, len(records), shots)
	}
	return records, nil
}
