// Package device implements the component models and their matrix stamps.
// Each part type knows how to contribute its conductances and equivalent
// sources to the MNA system; reactive parts additionally carry the history
// state their companion models integrate over.
package device

import (
	"fmt"

	"audiospice/internal/consts"
	"audiospice/pkg/matrix"
)

// SingularStampError reports a part wired with the wrong number of pins.
// This is a construction error, not a numerical condition.
type SingularStampError struct {
	Device string
	Got    int
	Want   int
}

func (e *SingularStampError) Error() string {
	return fmt.Sprintf("%s: has %d pins, needs %d", e.Device, e.Got, e.Want)
}

func checkPins(name string, nodes []int, want int) error {
	if len(nodes) != want {
		return &SingularStampError{Device: name, Got: len(nodes), Want: want}
	}
	return nil
}

// AnalysisMode selects the stamp variant.
type AnalysisMode int

const (
	OperatingPointAnalysis AnalysisMode = iota
	TransientAnalysis
)

// IntegrationMethod selects the companion model for reactive parts.
type IntegrationMethod int

const (
	BE IntegrationMethod = iota // backward Euler
	TR                         // trapezoidal
)

// CircuitStatus carries the per-stamp context: analysis mode, simulation
// time, timestep and numerical floors.
type CircuitStatus struct {
	Mode     AnalysisMode
	Time     float64
	TimeStep float64
	Temp     float64 // K
	Gmin     float64
	Method   IntegrationMethod
}

// Device is the common surface of every part.
type Device interface {
	GetName() string
	GetType() string
	GetNodes() []int
	GetNodeNames() []string
	SetNodes(nodes []int)
	GetValue() float64
	SetValue(v float64)
	Stamp(m matrix.Stamper, status *CircuitStatus) error
}

// NonLinear parts relinearize around the present iterate between Newton
// iterations.
type NonLinear interface {
	Device
	UpdateVoltages(solution []float64) error
}

// ConvergenceReporter is implemented by nonlinear parts that damp their
// linearization point. The damped point lags the raw solution, so the
// per-part check is needed on top of the solution vector comparison.
type ConvergenceReporter interface {
	LinearizationSettled(abstol, reltol float64) bool
}

// TimeDependent parts commit history state after a timestep converges.
type TimeDependent interface {
	Device
	UpdateState(solution []float64, status *CircuitStatus)
}

// Brancher parts own one extra MNA unknown (their branch current).
type Brancher interface {
	BranchIndex() int
	SetBranchIndex(idx int)
}

// InternalNoder parts allocate hidden nodes during index assignment.
type InternalNoder interface {
	NumInternalNodes() int
	SetInternalNodes(nodes []int)
}

// BaseDevice carries the fields every part shares.
type BaseDevice struct {
	Name      string
	Nodes     []int
	NodeNames []string
	Value     float64
}

func (d *BaseDevice) GetName() string        { return d.Name }
func (d *BaseDevice) GetNodes() []int        { return d.Nodes }
func (d *BaseDevice) GetNodeNames() []string { return d.NodeNames }
func (d *BaseDevice) GetValue() float64      { return d.Value }
func (d *BaseDevice) SetValue(v float64)     { d.Value = v }

func (d *BaseDevice) SetNodes(nodes []int) {
	d.Nodes = make([]int, len(nodes))
	copy(d.Nodes, nodes)
}

// thermalVoltage returns kT/q, falling back to the room-temperature value
// when no temperature is set.
func thermalVoltage(temp float64) float64 {
	if temp <= 0 {
		return consts.VTHERMAL
	}
	return consts.BOLTZMANN * temp / consts.CHARGE
}

// stampConductance adds the two-terminal conductance pattern between n1
// and n2. Ground references are skipped.
func stampConductance(m matrix.Stamper, n1, n2 int, g float64) {
	if n1 != 0 {
		m.AddElement(n1, n1, g)
		if n2 != 0 {
			m.AddElement(n1, n2, -g)
		}
	}
	if n2 != 0 {
		if n1 != 0 {
			m.AddElement(n2, n1, -g)
		}
		m.AddElement(n2, n2, g)
	}
}

// stampCurrent adds a current flowing into n1 and out of n2.
func stampCurrent(m matrix.Stamper, n1, n2 int, i float64) {
	if n1 != 0 {
		m.AddRHS(n1, i)
	}
	if n2 != 0 {
		m.AddRHS(n2, -i)
	}
}

func solutionAt(solution []float64, node int) float64 {
	if node <= 0 || node >= len(solution) {
		return 0
	}
	return solution[node]
}
