package device

import (
	"fmt"

	"audiospice/pkg/matrix"
	"audiospice/pkg/util"
)

// Potentiometer is a three-terminal resistor: total resistance Value split
// at the wiper by Position. Terminal order is end A, wiper, end B.
type Potentiometer struct {
	BaseDevice
	Position float64 // wiper position in [0, 1], 0 = all resistance on the A side
}

// Wiper positions are clamped away from the exact ends so neither half
// collapses to a short.
const minWiperRatio = 1e-6

func NewPotentiometer(name string, nodeNames []string, value, position float64) *Potentiometer {
	return &Potentiometer{
		BaseDevice: BaseDevice{
			Name:      name,
			Nodes:     make([]int, len(nodeNames)),
			NodeNames: nodeNames,
			Value:     value,
		},
		Position: position,
	}
}

func (p *Potentiometer) GetType() string { return "P" }

func (p *Potentiometer) SetPosition(pos float64) {
	p.Position = pos
}

func (p *Potentiometer) Stamp(m matrix.Stamper, status *CircuitStatus) error {
	if err := checkPins(p.Name, p.Nodes, 3); err != nil {
		return err
	}
	if p.Value <= 0 {
		return fmt.Errorf("potentiometer %s: non-positive resistance %g", p.Name, p.Value)
	}

	ratio := util.Clamp(p.Position, minWiperRatio, 1-minWiperRatio)

	nA, nW, nB := p.Nodes[0], p.Nodes[1], p.Nodes[2]
	rA := p.Value * ratio
	rB := p.Value * (1 - ratio)

	stampConductance(m, nA, nW, 1.0/rA)
	stampConductance(m, nW, nB, 1.0/rB)
	return nil
}
