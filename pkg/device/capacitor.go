package device

import (
	"audiospice/pkg/matrix"
)

type Capacitor struct {
	BaseDevice
	voltage0 float64 // committed voltage of the last accepted timestep
	current0 float64 // committed current, used by the trapezoidal model
}

var _ TimeDependent = (*Capacitor)(nil)

func NewCapacitor(name string, nodeNames []string, value float64) *Capacitor {
	return &Capacitor{
		BaseDevice: BaseDevice{
			Name:      name,
			Nodes:     make([]int, len(nodeNames)),
			NodeNames: nodeNames,
			Value:     value,
		},
	}
}

func (c *Capacitor) GetType() string { return "C" }

func (c *Capacitor) Stamp(m matrix.Stamper, status *CircuitStatus) error {
	if err := checkPins(c.Name, c.Nodes, 2); err != nil {
		return err
	}

	n1, n2 := c.Nodes[0], c.Nodes[1]

	switch status.Mode {
	case OperatingPointAnalysis:
		// Open circuit at DC. Gmin keeps floating nodes solvable.
		gmin := status.Gmin
		if gmin <= 0 {
			gmin = 1e-12
		}
		stampConductance(m, n1, n2, gmin)

	case TransientAnalysis:
		dt := status.TimeStep
		var geq, ieq float64
		switch status.Method {
		case TR:
			geq = 2.0 * c.Value / dt
			ieq = geq*c.voltage0 + c.current0
		default: // BE
			geq = c.Value / dt
			ieq = geq * c.voltage0
		}

		stampConductance(m, n1, n2, geq)
		stampCurrent(m, n1, n2, ieq)
	}

	return nil
}

// UpdateState commits the converged voltage and branch current as the
// history for the next timestep.
func (c *Capacitor) UpdateState(solution []float64, status *CircuitStatus) {
	vd := solutionAt(solution, c.Nodes[0]) - solutionAt(solution, c.Nodes[1])

	if status.TimeStep > 0 {
		switch status.Method {
		case TR:
			// i_n = (2C/dt)(v_n - v_{n-1}) - i_{n-1}
			c.current0 = (2.0*c.Value/status.TimeStep)*(vd-c.voltage0) - c.current0
		default:
			c.current0 = c.Value * (vd - c.voltage0) / status.TimeStep
		}
	}
	c.voltage0 = vd
}

// Voltage returns the committed capacitor voltage.
func (c *Capacitor) Voltage() float64 { return c.voltage0 }

// Current returns the committed capacitor current.
func (c *Capacitor) Current() float64 { return c.current0 }
