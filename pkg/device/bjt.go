package device

import (
	"math"

	"audiospice/internal/consts"
	"audiospice/pkg/matrix"
)

// Polarity distinguishes NPN from PNP. PNP mirrors the junction voltages
// and terminal currents; the linearized conductances keep their sign.
type Polarity int

const (
	NPN Polarity = 1
	PNP Polarity = -1
)

// Bjt is the Ebers-Moll transistor model. Node order is base, collector,
// emitter. Both junctions are linearized each Newton pass and the full
// coupled Jacobian is stamped.
type Bjt struct {
	BaseDevice
	Polarity Polarity

	Is   float64 // transport saturation current
	Bf   float64 // forward beta
	Br   float64 // reverse beta
	Gmin float64

	// Present iterate, in device polarity (already mirrored for PNP).
	vbe float64
	vbc float64
	ic  float64 // collector current into the device
	ib  float64 // base current into the device
	gif float64 // forward junction conductance
	gir float64 // reverse junction conductance
}

var _ NonLinear = (*Bjt)(nil)

func NewBJT(name string, nodeNames []string, polarity Polarity) *Bjt {
	return &Bjt{
		BaseDevice: BaseDevice{
			Name:      name,
			Nodes:     make([]int, len(nodeNames)),
			NodeNames: nodeNames,
		},
		Polarity: polarity,
		Is:       1e-16,
		Bf:       100.0,
		Br:       1.0,
		Gmin:     consts.GMIN,
	}
}

func (b *Bjt) GetType() string { return "Q" }

func (b *Bjt) SetModelParameters(params map[string]float64) {
	paramsSet := map[string]*float64{
		"is": &b.Is,
		"bf": &b.Bf,
		"br": &b.Br,
	}
	for key, param := range paramsSet {
		if value, ok := params[key]; ok {
			*param = value
		}
	}
}

// evaluate computes the Ebers-Moll currents and junction conductances at
// the present iterate.
func (b *Bjt) evaluate(temp float64) {
	vt := thermalVoltage(temp)

	expJunction := func(v float64) (i, g float64) {
		arg := v / vt
		if arg > expArgLimit {
			arg = expArgLimit
		}
		e := math.Exp(arg)
		return b.Is * (e - 1.0), b.Is*e/vt + b.Gmin
	}

	iff, gif := expJunction(b.vbe)
	ir, gir := expJunction(b.vbc)

	b.gif = gif
	b.gir = gir
	b.ic = iff - ir*(1.0+1.0/b.Br)
	b.ib = iff/b.Bf + ir/b.Br
}

func (b *Bjt) Stamp(m matrix.Stamper, status *CircuitStatus) error {
	if err := checkPins(b.Name, b.Nodes, 3); err != nil {
		return err
	}

	b.evaluate(status.Temp)

	nB, nC, nE := b.Nodes[0], b.Nodes[1], b.Nodes[2]
	sign := float64(b.Polarity)

	gif, gir := b.gif, b.gir
	girOut := gir * (1.0 + 1.0/b.Br)

	// Terminal currents into the device, external polarity.
	iC := sign * b.ic
	iB := sign * b.ib
	iE := -iC - iB

	// Jacobian of the terminal currents with respect to the external node
	// voltages (vB, vC, vE). The PNP mirror cancels in the derivatives.
	dC := [3]float64{gif - girOut, girOut, -gif}
	dB := [3]float64{gif/b.Bf + gir/b.Br, -gir / b.Br, -gif / b.Bf}
	dE := [3]float64{-(dC[0] + dB[0]), -(dC[1] + dB[1]), -(dC[2] + dB[2])}

	// Reconstruct external node voltages from the stored junction pair,
	// taking vE = 0 as reference. Only differences enter the stamp.
	vB := sign * b.vbe
	vC := vB - sign*b.vbc

	nodes := [3]int{nB, nC, nE}
	v0 := [3]float64{vB, vC, 0}

	rows := [3]struct {
		node int
		i0   float64
		grad [3]float64
	}{
		{nB, iB, dB},
		{nC, iC, dC},
		{nE, iE, dE},
	}

	for _, row := range rows {
		if row.node == 0 {
			continue
		}
		rhs := row.i0
		for k, col := range nodes {
			if col != 0 {
				m.AddElement(row.node, col, row.grad[k])
			}
			rhs -= row.grad[k] * v0[k]
		}
		m.AddRHS(row.node, -rhs)
	}

	return nil
}

func (b *Bjt) UpdateVoltages(solution []float64) error {
	if err := checkPins(b.Name, b.Nodes, 3); err != nil {
		return err
	}

	vB := solutionAt(solution, b.Nodes[0])
	vC := solutionAt(solution, b.Nodes[1])
	vE := solutionAt(solution, b.Nodes[2])

	sign := float64(b.Polarity)
	b.vbe = sign * (vB - vE)
	b.vbc = sign * (vB - vC)
	return nil
}

// CollectorCurrent returns the collector terminal current at the present
// iterate, external polarity.
func (b *Bjt) CollectorCurrent() float64 {
	return float64(b.Polarity) * b.ic
}

// BaseCurrent returns the base terminal current at the present iterate,
// external polarity.
func (b *Bjt) BaseCurrent() float64 {
	return float64(b.Polarity) * b.ib
}
