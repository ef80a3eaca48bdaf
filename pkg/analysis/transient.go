package analysis

import (
	"context"
	"fmt"

	"audiospice/pkg/circuit"
)

// Result collects the probed signals of a batch analysis. Signals is
// keyed by probe expression and aligned with Times.
type Result struct {
	Times   []float64
	Signals map[string][]float64
}

func newResult(probes []string) *Result {
	r := &Result{Signals: make(map[string][]float64)}
	for _, p := range probes {
		r.Signals[p] = nil
	}
	return r
}

func (r *Result) store(sim *Simulation, snap Snapshot, probes []string) error {
	r.Times = append(r.Times, snap.Time)
	for _, p := range probes {
		v, err := sim.Probe(snap, p)
		if err != nil {
			return err
		}
		r.Signals[p] = append(r.Signals[p], v)
	}
	return nil
}

// OperatingPoint solves the DC bias of a circuit and returns the probed
// values.
func OperatingPoint(ctx context.Context, ckt *circuit.Circuit, opts Options, probes []string) (map[string]float64, error) {
	sim, err := New(ckt, opts)
	if err != nil {
		return nil, err
	}
	defer sim.Destroy()

	snap, err := sim.OperatingPoint(ctx)
	if err != nil {
		return nil, err
	}

	out := make(map[string]float64, len(probes))
	for _, p := range probes {
		v, err := sim.Probe(snap, p)
		if err != nil {
			return nil, err
		}
		out[p] = v
	}
	return out, nil
}

// Transient runs a fixed-step simulation over [tstart, tstop]. The bias
// point is solved first and seeds the reactive history; snapshots before
// tstart are computed but not recorded.
func Transient(ctx context.Context, ckt *circuit.Circuit, opts Options, tstart, tstop, dt float64, probes []string) (*Result, error) {
	if dt <= 0 {
		return nil, fmt.Errorf("timestep %g must be positive", dt)
	}
	if tstop <= tstart {
		return nil, fmt.Errorf("tstop %g must be beyond tstart %g", tstop, tstart)
	}

	sim, err := New(ckt, opts)
	if err != nil {
		return nil, err
	}
	defer sim.Destroy()

	if _, err := sim.OperatingPoint(ctx); err != nil {
		return nil, err
	}

	result := newResult(probes)
	// Half a step of slack keeps accumulated rounding from producing an
	// extra sample past tstop.
	for sim.Time() < tstop-dt/2 {
		snap, err := sim.Step(ctx, dt)
		if err != nil {
			return nil, err
		}
		if snap.Time < tstart {
			continue
		}
		if err := result.store(sim, snap, probes); err != nil {
			return nil, err
		}
	}

	return result, nil
}
