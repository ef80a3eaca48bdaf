package analysis

import (
	"context"
	"fmt"

	"audiospice/internal/consts"
	"audiospice/pkg/circuit"
	"audiospice/pkg/device"
	"audiospice/pkg/matrix"
)

// Options tunes a simulation run. Zero values pick the defaults.
type Options struct {
	Method device.IntegrationMethod
	Temp   float64 // K
	Gmin   float64

	MaxIterations int
	Abstol        float64
	Reltol        float64
}

func (o *Options) fill() {
	if o.Temp <= 0 {
		o.Temp = consts.ROOMTEMP
	}
	if o.Gmin <= 0 {
		o.Gmin = consts.GMIN
	}
}

// Snapshot is one committed solution: the time it belongs to and the full
// unknown vector, 1-based with X[0] = 0 for ground.
type Snapshot struct {
	Time float64
	X    []float64
}

// Simulation steps a circuit through time. Each accepted step runs Newton
// to convergence, commits the reactive history and appends to the trace.
type Simulation struct {
	ckt  *circuit.Circuit
	mat  *matrix.CircuitMatrix
	nt   *newton
	opts Options

	time    float64
	stepped bool
	history []Snapshot
}

// New builds a simulation over an index-assigned circuit.
func New(ckt *circuit.Circuit, opts Options) (*Simulation, error) {
	if ckt.Size() == 0 {
		return nil, &circuit.StructuralError{Detail: "circuit has no unknowns"}
	}
	opts.fill()

	mat := matrix.NewMatrix(ckt.Size())
	return &Simulation{
		ckt:  ckt,
		mat:  mat,
		nt:   newNewton(ckt, mat, opts.MaxIterations, opts.Abstol, opts.Reltol),
		opts: opts,
	}, nil
}

func (s *Simulation) status(mode device.AnalysisMode, t, dt float64) *device.CircuitStatus {
	return &device.CircuitStatus{
		Mode:     mode,
		Time:     t,
		TimeStep: dt,
		Temp:     s.opts.Temp,
		Gmin:     s.opts.Gmin,
		Method:   s.opts.Method,
	}
}

// OperatingPoint solves the DC bias: capacitors open, inductors shorted,
// sources at their t=0 value. The result seeds the reactive history so a
// following transient starts from the bias point.
func (s *Simulation) OperatingPoint(ctx context.Context) (Snapshot, error) {
	status := s.status(device.OperatingPointAnalysis, 0, 0)
	x, err := s.nt.Solve(ctx, status)
	if err != nil {
		return Snapshot{}, err
	}

	s.ckt.UpdateState(x, status)
	return Snapshot{Time: 0, X: x}, nil
}

// Step advances the simulation by dt and returns the committed snapshot.
func (s *Simulation) Step(ctx context.Context, dt float64) (Snapshot, error) {
	if dt <= 0 {
		return Snapshot{}, fmt.Errorf("timestep %g must be positive", dt)
	}

	t := s.time + dt
	status := s.status(device.TransientAnalysis, t, dt)
	if !s.stepped && status.Method == device.TR {
		// The trapezoidal companion needs the current from the previous
		// step; there is none yet, so the first step runs backward Euler
		// and its committed state seeds the trapezoidal history.
		status.Method = device.BE
	}

	x, err := s.nt.Solve(ctx, status)
	if err != nil {
		return Snapshot{}, err
	}

	s.ckt.UpdateState(x, status)
	s.time = t
	s.stepped = true

	snap := Snapshot{Time: t, X: x}
	s.history = append(s.history, snap)
	return snap, nil
}

// SetMethod switches the integration method. The companion model history
// is method-specific, so switching is only allowed before the first step.
func (s *Simulation) SetMethod(m device.IntegrationMethod) error {
	if s.stepped {
		return fmt.Errorf("cannot change integration method after stepping")
	}
	s.opts.Method = m
	return nil
}

// Time returns the simulation time of the last committed step.
func (s *Simulation) Time() float64 { return s.time }

// History returns the committed snapshots in time order.
func (s *Simulation) History() []Snapshot { return s.history }

// Probe reads a named quantity, "V(node)" or "I(part)", from a snapshot.
func (s *Simulation) Probe(snap Snapshot, key string) (float64, error) {
	return s.ckt.GetSolution(snap.X, key)
}

// Circuit returns the simulated circuit.
func (s *Simulation) Circuit() *circuit.Circuit { return s.ckt }

// Destroy releases the matrix storage.
func (s *Simulation) Destroy() {
	if s.mat != nil {
		s.mat.Destroy()
		s.mat = nil
	}
}
