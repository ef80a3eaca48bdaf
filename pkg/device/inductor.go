package device

import (
	"fmt"

	"audiospice/pkg/matrix"
)

// Inductor carries its branch current as an extra MNA unknown. The branch
// row expresses the discretized v = L di/dt.
type Inductor struct {
	BaseDevice
	branchIdx int
	current0  float64 // committed branch current
	voltage0  float64 // committed branch voltage, used by the trapezoidal model
}

var (
	_ TimeDependent = (*Inductor)(nil)
	_ Brancher      = (*Inductor)(nil)
)

func NewInductor(name string, nodeNames []string, value float64) *Inductor {
	return &Inductor{
		BaseDevice: BaseDevice{
			Name:      name,
			Nodes:     make([]int, len(nodeNames)),
			NodeNames: nodeNames,
			Value:     value,
		},
	}
}

func (l *Inductor) GetType() string { return "L" }

func (l *Inductor) BranchIndex() int       { return l.branchIdx }
func (l *Inductor) SetBranchIndex(idx int) { l.branchIdx = idx }

func (l *Inductor) Stamp(m matrix.Stamper, status *CircuitStatus) error {
	if err := checkPins(l.Name, l.Nodes, 2); err != nil {
		return err
	}
	if l.branchIdx == 0 {
		return fmt.Errorf("inductor %s: branch index not assigned", l.Name)
	}

	n1, n2 := l.Nodes[0], l.Nodes[1]
	bIdx := l.branchIdx

	if n1 != 0 {
		m.AddElement(n1, bIdx, 1)
		m.AddElement(bIdx, n1, 1)
	}
	if n2 != 0 {
		m.AddElement(n2, bIdx, -1)
		m.AddElement(bIdx, n2, -1)
	}

	switch status.Mode {
	case OperatingPointAnalysis:
		// Short circuit at DC: v1 - v2 = 0, tiny series term keeps the
		// branch row well conditioned.
		m.AddElement(bIdx, bIdx, -1e-9)

	case TransientAnalysis:
		dt := status.TimeStep
		switch status.Method {
		case TR:
			// v1 - v2 - (2L/dt) i = -(2L/dt) i_prev - v_prev
			req := 2.0 * l.Value / dt
			m.AddElement(bIdx, bIdx, -req)
			m.AddRHS(bIdx, -req*l.current0-l.voltage0)
		default:
			// v1 - v2 - (L/dt) i = -(L/dt) i_prev
			req := l.Value / dt
			m.AddElement(bIdx, bIdx, -req)
			m.AddRHS(bIdx, -req*l.current0)
		}
	}

	return nil
}

func (l *Inductor) UpdateState(solution []float64, status *CircuitStatus) {
	l.voltage0 = solutionAt(solution, l.Nodes[0]) - solutionAt(solution, l.Nodes[1])
	l.current0 = solutionAt(solution, l.branchIdx)
}

// Current returns the committed branch current.
func (l *Inductor) Current() float64 { return l.current0 }
