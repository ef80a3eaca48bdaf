package device

import (
	"fmt"

	"audiospice/pkg/matrix"
)

// Darlington composes two transistors: the driver's emitter feeds the
// output device's base through one hidden internal node, collectors tied.
// External node order is base, collector, emitter.
type Darlington struct {
	BaseDevice
	Polarity Polarity

	driver *Bjt
	output *Bjt

	internalNode int
}

var (
	_ NonLinear     = (*Darlington)(nil)
	_ InternalNoder = (*Darlington)(nil)
)

func NewDarlington(name string, nodeNames []string, polarity Polarity) *Darlington {
	return &Darlington{
		BaseDevice: BaseDevice{
			Name:      name,
			Nodes:     make([]int, len(nodeNames)),
			NodeNames: nodeNames,
		},
		Polarity: polarity,
		driver:   NewBJT(name+".q1", []string{"b", "c", "x"}, polarity),
		output:   NewBJT(name+".q2", []string{"x", "c", "e"}, polarity),
	}
}

func (d *Darlington) GetType() string { return "Q" }

func (d *Darlington) NumInternalNodes() int { return 1 }

// SetInternalNodes wires the hidden driver-emitter node and distributes
// the external terminals onto the two halves. Must run after SetNodes.
func (d *Darlington) SetInternalNodes(nodes []int) {
	if len(nodes) != 1 {
		panic(fmt.Sprintf("darlington %s: requires exactly 1 internal node", d.Name))
	}
	d.internalNode = nodes[0]
	d.wireHalves()
}

func (d *Darlington) SetNodes(nodes []int) {
	d.BaseDevice.SetNodes(nodes)
	if d.internalNode != 0 {
		d.wireHalves()
	}
}

func (d *Darlington) wireHalves() {
	nB, nC, nE := d.Nodes[0], d.Nodes[1], d.Nodes[2]
	d.driver.SetNodes([]int{nB, nC, d.internalNode})
	d.output.SetNodes([]int{d.internalNode, nC, nE})
}

// SetModelParameters applies the same junction parameters to both halves.
func (d *Darlington) SetModelParameters(params map[string]float64) {
	d.driver.SetModelParameters(params)
	d.output.SetModelParameters(params)
}

func (d *Darlington) Stamp(m matrix.Stamper, status *CircuitStatus) error {
	if err := checkPins(d.Name, d.Nodes, 3); err != nil {
		return err
	}
	if d.internalNode == 0 {
		return fmt.Errorf("darlington %s: internal node not assigned", d.Name)
	}

	if err := d.driver.Stamp(m, status); err != nil {
		return err
	}
	return d.output.Stamp(m, status)
}

func (d *Darlington) UpdateVoltages(solution []float64) error {
	if err := d.driver.UpdateVoltages(solution); err != nil {
		return err
	}
	return d.output.UpdateVoltages(solution)
}

// CollectorCurrent returns the combined collector current of both halves.
func (d *Darlington) CollectorCurrent() float64 {
	return d.driver.CollectorCurrent() + d.output.CollectorCurrent()
}
