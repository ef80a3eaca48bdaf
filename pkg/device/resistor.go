package device

import (
	"fmt"

	"audiospice/pkg/matrix"
)

type Resistor struct {
	BaseDevice
}

func NewResistor(name string, nodeNames []string, value float64) *Resistor {
	return &Resistor{
		BaseDevice: BaseDevice{
			Name:      name,
			Nodes:     make([]int, len(nodeNames)),
			NodeNames: nodeNames,
			Value:     value,
		},
	}
}

func (r *Resistor) GetType() string { return "R" }

func (r *Resistor) Stamp(m matrix.Stamper, status *CircuitStatus) error {
	if err := checkPins(r.Name, r.Nodes, 2); err != nil {
		return err
	}
	if r.Value <= 0 {
		return fmt.Errorf("resistor %s: non-positive resistance %g", r.Name, r.Value)
	}

	stampConductance(m, r.Nodes[0], r.Nodes[1], 1.0/r.Value)
	return nil
}
