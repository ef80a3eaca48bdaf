package device

import (
	"audiospice/pkg/matrix"
)

// CurrentSource injects the waveform current into n1 and out of n2. No
// extra unknown is needed.
type CurrentSource struct {
	BaseDevice
	wave waveform
}

func NewDCCurrentSource(name string, nodeNames []string, value float64) *CurrentSource {
	return &CurrentSource{
		BaseDevice: BaseDevice{
			Name:      name,
			Nodes:     make([]int, len(nodeNames)),
			NodeNames: nodeNames,
			Value:     value,
		},
		wave: waveform{kind: DC, dcValue: value},
	}
}

func NewSinCurrentSource(name string, nodeNames []string, offset, amplitude, freq, phase float64) *CurrentSource {
	return &CurrentSource{
		BaseDevice: BaseDevice{
			Name:      name,
			Nodes:     make([]int, len(nodeNames)),
			NodeNames: nodeNames,
			Value:     offset,
		},
		wave: waveform{kind: SIN, dcValue: offset, amplitude: amplitude, freq: freq, phase: phase},
	}
}

func NewPulseCurrentSource(name string, nodeNames []string, i1, i2, delay, rise, fall, pWidth, period float64) *CurrentSource {
	return &CurrentSource{
		BaseDevice: BaseDevice{
			Name:      name,
			Nodes:     make([]int, len(nodeNames)),
			NodeNames: nodeNames,
			Value:     i1,
		},
		wave: waveform{kind: PULSE, v1: i1, v2: i2, delay: delay, rise: rise, fall: fall, pWidth: pWidth, period: period},
	}
}

func NewPWLCurrentSource(name string, nodeNames []string, times, values []float64) *CurrentSource {
	return &CurrentSource{
		BaseDevice: BaseDevice{
			Name:      name,
			Nodes:     make([]int, len(nodeNames)),
			NodeNames: nodeNames,
			Value:     values[0],
		},
		wave: waveform{kind: PWL, times: times, values: values},
	}
}

func (i *CurrentSource) GetType() string { return "I" }

// GetCurrent returns the source value at time t.
func (i *CurrentSource) GetCurrent(t float64) float64 {
	return i.wave.at(t)
}

func (i *CurrentSource) SetValue(value float64) {
	i.Value = value
	i.wave.dcValue = value
}

func (i *CurrentSource) Stamp(m matrix.Stamper, status *CircuitStatus) error {
	if err := checkPins(i.Name, i.Nodes, 2); err != nil {
		return err
	}

	stampCurrent(m, i.Nodes[0], i.Nodes[1], i.GetCurrent(status.Time))
	return nil
}
