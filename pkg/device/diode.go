package device

import (
	"math"

	"audiospice/internal/consts"
	"audiospice/pkg/matrix"
)

// expArgLimit caps the exponential argument during Newton iteration so an
// overshooting iterate cannot overflow.
const expArgLimit = 40.0

// limitJunctionVoltage pulls an overshooting Newton iterate back toward
// the previous junction voltage. Above the critical voltage the
// exponential is so steep that a raw Newton step oscillates; the damped
// step follows the logarithm of the overshoot instead.
func limitJunctionVoltage(vnew, vold, nvt, is float64) float64 {
	vcrit := nvt * math.Log(nvt/(math.Sqrt2*is))
	if vnew <= vcrit || math.Abs(vnew-vold) <= 2.0*nvt {
		return vnew
	}

	if vold > 0 {
		arg := 1.0 + (vnew-vold)/nvt
		if arg > 0 {
			return vold + nvt*math.Log(arg)
		}
		return vcrit
	}
	return nvt * math.Log(vnew/nvt)
}

// Diode is the exponential junction, linearized around the present
// iterate each Newton pass. Schottky diodes and LEDs are parameter
// presets of the same model.
type Diode struct {
	BaseDevice

	Is   float64 // saturation current
	N    float64 // emission coefficient
	Gmin float64 // minimum conductance

	vd   float64 // junction voltage at the present iterate
	id   float64 // junction current at the present iterate
	gd   float64 // linearized conductance at the present iterate
	vsol float64 // undamped junction voltage of the last solution
	temp float64 // temperature of the last stamp
}

var _ NonLinear = (*Diode)(nil)

func NewDiode(name string, nodeNames []string) *Diode {
	d := &Diode{
		BaseDevice: BaseDevice{
			Name:      name,
			Nodes:     make([]int, len(nodeNames)),
			NodeNames: nodeNames,
		},
		Is:   1e-14,
		N:    1.0,
		Gmin: consts.GMIN,
	}
	return d
}

// NewSchottkyDiode presets the larger saturation current of a
// metal-semiconductor junction, giving the lower forward drop.
func NewSchottkyDiode(name string, nodeNames []string) *Diode {
	d := NewDiode(name, nodeNames)
	d.Is = 1e-8
	d.N = 1.05
	return d
}

// NewLED presets the wide-bandgap junction of an indicator LED, forward
// voltage around 2 V.
func NewLED(name string, nodeNames []string) *Diode {
	d := NewDiode(name, nodeNames)
	d.Is = 1e-18
	d.N = 1.8
	return d
}

func (d *Diode) GetType() string { return "D" }

// SetModelParameters overrides junction parameters by lowercase key.
func (d *Diode) SetModelParameters(params map[string]float64) {
	paramsSet := map[string]*float64{
		"is": &d.Is,
		"n":  &d.N,
	}
	for key, param := range paramsSet {
		if value, ok := params[key]; ok {
			*param = value
		}
	}
}

func (d *Diode) junctionCurrent(vd, temp float64) float64 {
	nvt := d.N * thermalVoltage(temp)
	arg := vd / nvt
	if arg > expArgLimit {
		arg = expArgLimit
	}
	return d.Is * (math.Exp(arg) - 1.0)
}

func (d *Diode) junctionConductance(id, temp float64) float64 {
	nvt := d.N * thermalVoltage(temp)
	return (math.Abs(id)+d.Is)/nvt + d.Gmin
}

func (d *Diode) Stamp(m matrix.Stamper, status *CircuitStatus) error {
	if err := checkPins(d.Name, d.Nodes, 2); err != nil {
		return err
	}

	d.temp = status.Temp
	d.id = d.junctionCurrent(d.vd, status.Temp)
	d.gd = d.junctionConductance(d.id, status.Temp)

	n1, n2 := d.Nodes[0], d.Nodes[1]
	stampConductance(m, n1, n2, d.gd)

	// The RHS compensates the linearization: the stamped source is
	// I(V0) - g*V0 so the Newton iterate solves the tangent line.
	ieq := d.id - d.gd*d.vd
	stampCurrent(m, n1, n2, -ieq)

	return nil
}

func (d *Diode) UpdateVoltages(solution []float64) error {
	if err := checkPins(d.Name, d.Nodes, 2); err != nil {
		return err
	}

	vd := solutionAt(solution, d.Nodes[0]) - solutionAt(solution, d.Nodes[1])
	d.vsol = vd
	d.vd = limitJunctionVoltage(vd, d.vd, d.N*thermalVoltage(d.temp), d.Is)
	return nil
}

// LinearizationSettled reports whether the damped linearization point has
// caught up with the undamped solution. While the limiter is still pulling
// the iterate back, the node voltages can repeat without being converged.
func (d *Diode) LinearizationSettled(abstol, reltol float64) bool {
	return math.Abs(d.vsol-d.vd) <= abstol+reltol*math.Abs(d.vsol)
}

// Voltage returns the junction voltage at the present iterate.
func (d *Diode) Voltage() float64 { return d.vd }

// Current returns the junction current at the present iterate.
func (d *Diode) Current() float64 { return d.id }
