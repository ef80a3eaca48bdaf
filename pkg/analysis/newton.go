// Package analysis runs the simulations: Newton iteration over the
// stamped MNA system, the timestep driver and the batch transient and
// operating point analyses.
package analysis

import (
	"context"
	"errors"
	"math"

	"audiospice/internal/consts"
	"audiospice/pkg/circuit"
	"audiospice/pkg/device"
	"audiospice/pkg/matrix"
	"audiospice/pkg/sparse"
)

// newtonState is the phase of the iteration controller. Each solve walks
// Init -> (Stamp -> Solve -> Check)* -> Converged | Diverged.
type newtonState int

const (
	stateInit newtonState = iota
	stateStamp
	stateSolve
	stateCheck
	stateConverged
	stateDiverged
)

// newton couples a circuit to its matrix and iterates until the solution
// settles. Linear circuits converge on the first pass.
type newton struct {
	ckt *circuit.Circuit
	mat *matrix.CircuitMatrix

	maxIter int
	abstol  float64
	reltol  float64
}

func newNewton(ckt *circuit.Circuit, mat *matrix.CircuitMatrix, maxIter int, abstol, reltol float64) *newton {
	if maxIter <= 0 {
		maxIter = consts.MAXITER
	}
	if abstol <= 0 {
		abstol = consts.VTOLERANCE
	}
	if reltol <= 0 {
		reltol = 1e-3
	}
	return &newton{ckt: ckt, mat: mat, maxIter: maxIter, abstol: abstol, reltol: reltol}
}

// analysisTime renders the failing time for error reports; the operating
// point has no time axis and reports as negative.
func analysisTime(status *device.CircuitStatus) float64 {
	if status.Mode == device.OperatingPointAnalysis {
		return -1
	}
	return status.Time
}

// Solve runs the state machine to a converged solution of the nonlinear
// system at the given status. Cancellation is honored at entry only; a
// started iteration always runs to its verdict.
func (n *newton) Solve(ctx context.Context, status *device.CircuitStatus) ([]float64, error) {
	var (
		x      []float64
		prev   []float64
		iter   int
		linear = !n.ckt.HasNonlinear()
	)

	state := stateInit
	for {
		switch state {
		case stateInit:
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			iter = 0
			prev = nil
			state = stateStamp

		case stateStamp:
			n.mat.Clear()
			if err := n.ckt.Stamp(n.mat, status); err != nil {
				return nil, err
			}
			if !linear {
				// The Gmin floor exists to keep junction linearizations
				// solvable; linear circuits get the exact system.
				n.mat.LoadGmin(n.ckt.NumNodes(), status.Gmin)
			}
			n.mat.SetupElements()
			state = stateSolve

		case stateSolve:
			if err := n.mat.Factor(); err != nil {
				return nil, n.wrapSingular(err, status)
			}
			if err := n.mat.Solve(); err != nil {
				return nil, n.wrapSingular(err, status)
			}
			sol := n.mat.Solution()
			x = make([]float64, len(sol))
			copy(x, sol)
			state = stateCheck

		case stateCheck:
			if linear {
				state = stateConverged
				break
			}
			if err := n.ckt.UpdateNonlinearVoltages(x); err != nil {
				return nil, err
			}
			if prev != nil && n.converged(prev, x) && n.ckt.NonlinearSettled(n.abstol, n.reltol) {
				state = stateConverged
				break
			}
			iter++
			if iter >= n.maxIter {
				state = stateDiverged
				break
			}
			prev = x
			state = stateStamp

		case stateConverged:
			return x, nil

		case stateDiverged:
			return nil, &DivergedError{
				Time:       analysisTime(status),
				Iterations: iter,
				LastX:      x,
			}
		}
	}
}

func (n *newton) wrapSingular(err error, status *device.CircuitStatus) error {
	var serr *sparse.SingularError
	if errors.As(err, &serr) {
		return &SingularMatrixError{
			Time: analysisTime(status),
			Row:  serr.Row,
			Col:  serr.Col,
			err:  serr,
		}
	}
	return err
}

// converged applies the per-unknown tolerance test between two successive
// iterates.
func (n *newton) converged(prev, x []float64) bool {
	for i := 1; i < len(x); i++ {
		limit := n.abstol + n.reltol*math.Max(math.Abs(x[i]), math.Abs(prev[i]))
		if math.Abs(x[i]-prev[i]) > limit {
			return false
		}
	}
	return true
}
