package netlist

import (
	"fmt"
	"strings"

	"audiospice/pkg/device"
)

// CreateDevice builds the simulator device for one parsed element.
func CreateDevice(elem *Element) (device.Device, error) {
	switch elem.Type {
	case "R":
		return device.NewResistor(elem.Name, elem.Nodes, elem.Value), nil

	case "C":
		return device.NewCapacitor(elem.Name, elem.Nodes, elem.Value), nil

	case "L":
		return device.NewInductor(elem.Name, elem.Nodes, elem.Value), nil

	case "P":
		position, err := ParseValue(elem.Params["position"])
		if err != nil {
			return nil, fmt.Errorf("potentiometer %s: %w", elem.Name, err)
		}
		return device.NewPotentiometer(elem.Name, elem.Nodes, elem.Value, position), nil

	case "VM":
		return device.NewVoltmeter(elem.Name, elem.Nodes), nil

	case "V":
		return createVoltageSource(elem)

	case "I":
		return createCurrentSource(elem)

	case "D":
		return createDiode(elem)

	case "Q":
		return createTransistor(elem)

	case "U":
		op := device.NewOpAmp(elem.Name, elem.Nodes)
		op.SetModelParameters(elem.NumericParams())
		return op, nil

	default:
		return nil, fmt.Errorf("unsupported device type %q for %s", elem.Type, elem.Name)
	}
}

func createVoltageSource(elem *Element) (device.Device, error) {
	switch elem.Params["type"] {
	case "sin":
		p, err := waveformValues(elem.Params["sin"], 3, 4)
		if err != nil {
			return nil, fmt.Errorf("source %s: SIN %w", elem.Name, err)
		}
		phase := 0.0
		if len(p) == 4 {
			phase = p[3]
		}
		return device.NewSinVoltageSource(elem.Name, elem.Nodes, p[0], p[1], p[2], phase), nil

	case "pulse":
		p, err := waveformValues(elem.Params["pulse"], 7, 7)
		if err != nil {
			return nil, fmt.Errorf("source %s: PULSE %w", elem.Name, err)
		}
		return device.NewPulseVoltageSource(elem.Name, elem.Nodes, p[0], p[1], p[2], p[3], p[4], p[5], p[6]), nil

	case "pwl":
		times, values, err := pwlPairs(elem.Params["pwl"])
		if err != nil {
			return nil, fmt.Errorf("source %s: PWL %w", elem.Name, err)
		}
		return device.NewPWLVoltageSource(elem.Name, elem.Nodes, times, values), nil

	default:
		return device.NewDCVoltageSource(elem.Name, elem.Nodes, elem.Value), nil
	}
}

func createCurrentSource(elem *Element) (device.Device, error) {
	switch elem.Params["type"] {
	case "sin":
		p, err := waveformValues(elem.Params["sin"], 3, 4)
		if err != nil {
			return nil, fmt.Errorf("source %s: SIN %w", elem.Name, err)
		}
		phase := 0.0
		if len(p) == 4 {
			phase = p[3]
		}
		return device.NewSinCurrentSource(elem.Name, elem.Nodes, p[0], p[1], p[2], phase), nil

	case "pulse":
		p, err := waveformValues(elem.Params["pulse"], 7, 7)
		if err != nil {
			return nil, fmt.Errorf("source %s: PULSE %w", elem.Name, err)
		}
		return device.NewPulseCurrentSource(elem.Name, elem.Nodes, p[0], p[1], p[2], p[3], p[4], p[5], p[6]), nil

	case "pwl":
		times, values, err := pwlPairs(elem.Params["pwl"])
		if err != nil {
			return nil, fmt.Errorf("source %s: PWL %w", elem.Name, err)
		}
		return device.NewPWLCurrentSource(elem.Name, elem.Nodes, times, values), nil

	default:
		return device.NewDCCurrentSource(elem.Name, elem.Nodes, elem.Value), nil
	}
}

func createDiode(elem *Element) (device.Device, error) {
	var d interface {
		device.NonLinear
		SetModelParameters(map[string]float64)
	}

	switch elem.Model {
	case "", "plain":
		d = device.NewDiode(elem.Name, elem.Nodes)
	case "schottky":
		d = device.NewSchottkyDiode(elem.Name, elem.Nodes)
	case "led":
		d = device.NewLED(elem.Name, elem.Nodes)
	case "zener":
		d = device.NewZenerDiode(elem.Name, elem.Nodes)
	default:
		return nil, fmt.Errorf("diode %s: unknown model %q", elem.Name, elem.Model)
	}

	d.SetModelParameters(elem.NumericParams())
	return d, nil
}

func createTransistor(elem *Element) (device.Device, error) {
	polarity := device.NPN
	model := elem.Model
	if strings.HasPrefix(model, "pnp") {
		polarity = device.PNP
	} else if !strings.HasPrefix(model, "npn") && model != "darlington" {
		return nil, fmt.Errorf("transistor %s: unknown model %q", elem.Name, elem.Model)
	}

	if strings.Contains(model, "darlington") {
		dar := device.NewDarlington(elem.Name, elem.Nodes, polarity)
		dar.SetModelParameters(elem.NumericParams())
		return dar, nil
	}

	q := device.NewBJT(elem.Name, elem.Nodes, polarity)
	q.SetModelParameters(elem.NumericParams())
	return q, nil
}

// waveformValues parses the space-separated numbers inside a waveform
// payload and checks the argument count.
func waveformValues(payload string, minArgs, maxArgs int) ([]float64, error) {
	words := strings.Fields(payload)
	if len(words) < minArgs || len(words) > maxArgs {
		return nil, fmt.Errorf("expects %d to %d arguments, got %d", minArgs, maxArgs, len(words))
	}

	out := make([]float64, len(words))
	for i, w := range words {
		v, err := ParseValue(w)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// pwlPairs splits a PWL payload into time and value series. Times must
// strictly increase.
func pwlPairs(payload string) ([]float64, []float64, error) {
	p, err := waveformValues(payload, 4, 1<<20)
	if err != nil {
		return nil, nil, err
	}
	if len(p)%2 != 0 {
		return nil, nil, fmt.Errorf("expects time-value pairs, got %d numbers", len(p))
	}

	times := make([]float64, 0, len(p)/2)
	values := make([]float64, 0, len(p)/2)
	for i := 0; i < len(p); i += 2 {
		if len(times) > 0 && p[i] <= times[len(times)-1] {
			return nil, nil, fmt.Errorf("times must increase, got %g after %g", p[i], times[len(times)-1])
		}
		times = append(times, p[i])
		values = append(values, p[i+1])
	}
	return times, values, nil
}
