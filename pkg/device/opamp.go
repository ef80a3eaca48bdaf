package device

import (
	"fmt"

	"audiospice/pkg/matrix"
)

// OpAmp is a high-gain voltage-controlled voltage source with supply
// rails. Node order is non-inverting input, inverting input, output. The
// output constraint occupies one branch row: in the linear region it is
// vout - A(v+ - v-) = 0, and when the open-loop output would exceed a
// rail the row collapses to vout = +-Vrail. The region is chosen from the
// previous Newton iterate, which makes the device piecewise linear.
type OpAmp struct {
	BaseDevice
	Gain  float64 // open-loop gain
	Vrail float64 // saturation voltage, symmetric rails

	branchIdx int
	region    int // -1 low rail, 0 linear, +1 high rail
}

var (
	_ NonLinear = (*OpAmp)(nil)
	_ Brancher  = (*OpAmp)(nil)
)

func NewOpAmp(name string, nodeNames []string) *OpAmp {
	return &OpAmp{
		BaseDevice: BaseDevice{
			Name:      name,
			Nodes:     make([]int, len(nodeNames)),
			NodeNames: nodeNames,
		},
		Gain:  1e5,
		Vrail: 15.0,
	}
}

func (o *OpAmp) GetType() string { return "U" }

func (o *OpAmp) BranchIndex() int       { return o.branchIdx }
func (o *OpAmp) SetBranchIndex(idx int) { o.branchIdx = idx }

func (o *OpAmp) SetModelParameters(params map[string]float64) {
	paramsSet := map[string]*float64{
		"gain":  &o.Gain,
		"vrail": &o.Vrail,
	}
	for key, param := range paramsSet {
		if value, ok := params[key]; ok {
			*param = value
		}
	}
}

func (o *OpAmp) Stamp(m matrix.Stamper, status *CircuitStatus) error {
	if err := checkPins(o.Name, o.Nodes, 3); err != nil {
		return err
	}
	if o.branchIdx == 0 {
		return fmt.Errorf("opamp %s: branch index not assigned", o.Name)
	}

	nPlus, nMinus, nOut := o.Nodes[0], o.Nodes[1], o.Nodes[2]
	bIdx := o.branchIdx

	// Output current flows through the branch unknown. The inputs draw
	// no current.
	if nOut != 0 {
		m.AddElement(nOut, bIdx, 1)
		m.AddElement(bIdx, nOut, 1)
	}

	switch o.region {
	case 0:
		// vout - A(v+ - v-) = 0
		if nPlus != 0 {
			m.AddElement(bIdx, nPlus, -o.Gain)
		}
		if nMinus != 0 {
			m.AddElement(bIdx, nMinus, o.Gain)
		}
	default:
		// vout = +-Vrail
		m.AddRHS(bIdx, float64(o.region)*o.Vrail)
	}

	return nil
}

func (o *OpAmp) UpdateVoltages(solution []float64) error {
	if err := checkPins(o.Name, o.Nodes, 3); err != nil {
		return err
	}

	vPlus := solutionAt(solution, o.Nodes[0])
	vMinus := solutionAt(solution, o.Nodes[1])

	openLoop := o.Gain * (vPlus - vMinus)
	switch {
	case openLoop > o.Vrail:
		o.region = 1
	case openLoop < -o.Vrail:
		o.region = -1
	default:
		o.region = 0
	}

	return nil
}
