package analysis

import (
	"fmt"

	"audiospice/pkg/sparse"
)

// SingularMatrixError reports a factorization failure: the matrix lost
// rank at the given elimination step. Time is the simulation time of the
// failing solve, negative for the operating point.
type SingularMatrixError struct {
	Time float64
	Row  int64
	Col  int64
	err  *sparse.SingularError
}

func (e *SingularMatrixError) Error() string {
	if e.Time < 0 {
		return fmt.Sprintf("singular matrix at operating point, row %d col %d", e.Row, e.Col)
	}
	return fmt.Sprintf("singular matrix at t=%g, row %d col %d", e.Time, e.Row, e.Col)
}

func (e *SingularMatrixError) Unwrap() error { return e.err }

// DivergedError reports that Newton iteration hit the iteration limit
// without meeting the tolerance. The last iterate is attached for
// inspection.
type DivergedError struct {
	Time       float64
	Iterations int
	LastX      []float64
}

func (e *DivergedError) Error() string {
	if e.Time < 0 {
		return fmt.Sprintf("no convergence at operating point after %d iterations", e.Iterations)
	}
	return fmt.Sprintf("no convergence at t=%g after %d iterations", e.Time, e.Iterations)
}
