package device

import (
	"audiospice/pkg/matrix"
)

// Voltmeter is an ideal probe: infinite input impedance, so it stamps
// nothing and only reads back the solved node voltages.
type Voltmeter struct {
	BaseDevice
	reading float64
}

var _ TimeDependent = (*Voltmeter)(nil)

func NewVoltmeter(name string, nodeNames []string) *Voltmeter {
	return &Voltmeter{
		BaseDevice: BaseDevice{
			Name:      name,
			Nodes:     make([]int, len(nodeNames)),
			NodeNames: nodeNames,
		},
	}
}

func (vm *Voltmeter) GetType() string { return "VM" }

func (vm *Voltmeter) Stamp(m matrix.Stamper, status *CircuitStatus) error {
	if err := checkPins(vm.Name, vm.Nodes, 2); err != nil {
		return err
	}
	return nil
}

func (vm *Voltmeter) UpdateState(solution []float64, status *CircuitStatus) {
	vm.reading = solutionAt(solution, vm.Nodes[0]) - solutionAt(solution, vm.Nodes[1])
}

// Reading returns the probed differential voltage of the last committed
// timestep.
func (vm *Voltmeter) Reading() float64 { return vm.reading }
