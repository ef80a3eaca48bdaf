package device

import (
	"fmt"
	"math"

	"audiospice/pkg/matrix"
)

// SourceType tags the waveform of an independent source.
type SourceType int

const (
	DC SourceType = iota
	SIN
	PULSE
	PWL
)

// waveform evaluates the time-dependent source value. Shared between
// voltage and current sources.
type waveform struct {
	kind SourceType
	// DC, SIN offset
	dcValue float64
	// SIN
	amplitude float64
	freq      float64
	phase     float64 // degrees
	// PULSE
	v1     float64
	v2     float64
	delay  float64
	rise   float64
	fall   float64
	pWidth float64
	period float64
	// PWL
	times  []float64
	values []float64
}

func (w *waveform) at(t float64) float64 {
	switch w.kind {
	case DC:
		return w.dcValue
	case SIN:
		phaseRad := w.phase * math.Pi / 180.0
		return w.dcValue + w.amplitude*math.Sin(2.0*math.Pi*w.freq*t+phaseRad)
	case PULSE:
		return w.pulseAt(t)
	case PWL:
		return w.pwlAt(t)
	default:
		return 0
	}
}

func (w *waveform) pulseAt(t float64) float64 {
	if t < w.delay {
		return w.v1
	}

	t = t - w.delay
	if w.period > 0 {
		t = math.Mod(t, w.period)
	}

	if t < w.rise {
		if w.rise == 0 {
			return w.v2
		}
		return w.v1 + (w.v2-w.v1)*t/w.rise
	}

	if t < w.rise+w.pWidth {
		return w.v2
	}

	fallStart := w.rise + w.pWidth
	if t < fallStart+w.fall {
		if w.fall == 0 {
			return w.v1
		}
		return w.v2 - (w.v2-w.v1)*(t-fallStart)/w.fall
	}

	return w.v1
}

func (w *waveform) pwlAt(t float64) float64 {
	if t <= w.times[0] {
		return w.values[0]
	}

	lastIdx := len(w.times) - 1
	if t >= w.times[lastIdx] {
		return w.values[lastIdx]
	}

	for i := 1; i < len(w.times); i++ {
		if t <= w.times[i] {
			t1, t2 := w.times[i-1], w.times[i]
			y1, y2 := w.values[i-1], w.values[i]
			slope := (y2 - y1) / (t2 - t1)
			return y1 + slope*(t-t1)
		}
	}

	return w.values[lastIdx]
}

// VoltageSource forces v(n1) - v(n2) to the waveform value through one
// branch row.
type VoltageSource struct {
	BaseDevice
	wave      waveform
	branchIdx int
}

var _ Brancher = (*VoltageSource)(nil)

func NewDCVoltageSource(name string, nodeNames []string, value float64) *VoltageSource {
	return &VoltageSource{
		BaseDevice: BaseDevice{
			Name:      name,
			Nodes:     make([]int, len(nodeNames)),
			NodeNames: nodeNames,
			Value:     value,
		},
		wave: waveform{kind: DC, dcValue: value},
	}
}

func NewSinVoltageSource(name string, nodeNames []string, offset, amplitude, freq, phase float64) *VoltageSource {
	return &VoltageSource{
		BaseDevice: BaseDevice{
			Name:      name,
			Nodes:     make([]int, len(nodeNames)),
			NodeNames: nodeNames,
			Value:     offset,
		},
		wave: waveform{kind: SIN, dcValue: offset, amplitude: amplitude, freq: freq, phase: phase},
	}
}

func NewPulseVoltageSource(name string, nodeNames []string, v1, v2, delay, rise, fall, pWidth, period float64) *VoltageSource {
	return &VoltageSource{
		BaseDevice: BaseDevice{
			Name:      name,
			Nodes:     make([]int, len(nodeNames)),
			NodeNames: nodeNames,
			Value:     v1,
		},
		wave: waveform{kind: PULSE, v1: v1, v2: v2, delay: delay, rise: rise, fall: fall, pWidth: pWidth, period: period},
	}
}

func NewPWLVoltageSource(name string, nodeNames []string, times, values []float64) *VoltageSource {
	return &VoltageSource{
		BaseDevice: BaseDevice{
			Name:      name,
			Nodes:     make([]int, len(nodeNames)),
			NodeNames: nodeNames,
			Value:     values[0],
		},
		wave: waveform{kind: PWL, times: times, values: values},
	}
}

func (v *VoltageSource) GetType() string { return "V" }

func (v *VoltageSource) BranchIndex() int       { return v.branchIdx }
func (v *VoltageSource) SetBranchIndex(idx int) { v.branchIdx = idx }

// GetVoltage returns the source value at time t.
func (v *VoltageSource) GetVoltage(t float64) float64 {
	return v.wave.at(t)
}

func (v *VoltageSource) SetValue(value float64) {
	v.Value = value
	v.wave.dcValue = value
}

func (v *VoltageSource) Stamp(m matrix.Stamper, status *CircuitStatus) error {
	if err := checkPins(v.Name, v.Nodes, 2); err != nil {
		return err
	}
	if v.branchIdx == 0 {
		return fmt.Errorf("voltage source %s: branch index not assigned", v.Name)
	}

	n1, n2 := v.Nodes[0], v.Nodes[1]
	bIdx := v.branchIdx

	// v1 - v2 = V
	if n1 != 0 {
		m.AddElement(bIdx, n1, 1)
		m.AddElement(n1, bIdx, 1)
	}
	if n2 != 0 {
		m.AddElement(bIdx, n2, -1)
		m.AddElement(n2, bIdx, -1)
	}

	m.AddRHS(bIdx, v.GetVoltage(status.Time))
	return nil
}
