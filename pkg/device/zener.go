package device

import (
	"math"

	"audiospice/internal/consts"
	"audiospice/pkg/matrix"
)

// ZenerDiode adds the reverse breakdown branch to the junction model.
// Conduction below -Bv follows an exponential law mirrored around the
// breakdown voltage and scaled by the knee current Ibv, so the device
// carries Ibv at exactly -Bv.
type ZenerDiode struct {
	BaseDevice

	Is   float64 // forward saturation current
	N    float64 // emission coefficient
	Bv   float64 // breakdown voltage (positive number)
	Ibv  float64 // current at the breakdown voltage
	Gmin float64

	vd   float64
	id   float64
	gd   float64
	vsol float64
	temp float64
}

var _ NonLinear = (*ZenerDiode)(nil)

func NewZenerDiode(name string, nodeNames []string) *ZenerDiode {
	return &ZenerDiode{
		BaseDevice: BaseDevice{
			Name:      name,
			Nodes:     make([]int, len(nodeNames)),
			NodeNames: nodeNames,
		},
		Is:   1e-14,
		N:    1.0,
		Bv:   5.1,
		Ibv:  1e-3,
		Gmin: consts.GMIN,
	}
}

func (z *ZenerDiode) GetType() string { return "DZ" }

func (z *ZenerDiode) SetModelParameters(params map[string]float64) {
	paramsSet := map[string]*float64{
		"is":  &z.Is,
		"n":   &z.N,
		"bv":  &z.Bv,
		"ibv": &z.Ibv,
	}
	for key, param := range paramsSet {
		if value, ok := params[key]; ok {
			*param = value
		}
	}
}

// evaluate linearizes the two exponential branches at vd. The breakdown
// term reaches Ibv at vd = -Bv and keeps the exponential slope past it.
func (z *ZenerDiode) evaluate(vd, temp float64) (id, gd float64) {
	nvt := z.N * thermalVoltage(temp)

	fwdArg := vd / nvt
	if fwdArg > expArgLimit {
		fwdArg = expArgLimit
	}
	fwdExp := math.Exp(fwdArg)
	id = z.Is * (fwdExp - 1.0)
	gd = z.Is * fwdExp / nvt

	revArg := -(vd + z.Bv) / nvt
	if revArg > expArgLimit {
		revArg = expArgLimit
	}
	revExp := math.Exp(revArg)
	id -= z.Ibv * revExp
	gd += z.Ibv * revExp / nvt

	gd += z.Gmin
	return id, gd
}

func (z *ZenerDiode) Stamp(m matrix.Stamper, status *CircuitStatus) error {
	if err := checkPins(z.Name, z.Nodes, 2); err != nil {
		return err
	}

	z.temp = status.Temp
	z.id, z.gd = z.evaluate(z.vd, status.Temp)

	n1, n2 := z.Nodes[0], z.Nodes[1]
	stampConductance(m, n1, n2, z.gd)

	ieq := z.id - z.gd*z.vd
	stampCurrent(m, n1, n2, -ieq)

	return nil
}

func (z *ZenerDiode) UpdateVoltages(solution []float64) error {
	if err := checkPins(z.Name, z.Nodes, 2); err != nil {
		return err
	}

	vd := solutionAt(solution, z.Nodes[0]) - solutionAt(solution, z.Nodes[1])
	z.vsol = vd
	nvt := z.N * thermalVoltage(z.temp)

	if vd < -z.Bv/2 {
		// Breakdown side: damp the mirrored junction the same way.
		u := limitJunctionVoltage(-(vd + z.Bv), -(z.vd + z.Bv), nvt, z.Ibv)
		z.vd = -u - z.Bv
	} else {
		z.vd = limitJunctionVoltage(vd, z.vd, nvt, z.Is)
	}
	return nil
}

// LinearizationSettled reports whether the damped linearization point has
// caught up with the undamped solution.
func (z *ZenerDiode) LinearizationSettled(abstol, reltol float64) bool {
	return math.Abs(z.vsol-z.vd) <= abstol+reltol*math.Abs(z.vsol)
}

// Voltage returns the junction voltage at the present iterate.
func (z *ZenerDiode) Voltage() float64 { return z.vd }
