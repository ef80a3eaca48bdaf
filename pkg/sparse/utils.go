package sparse

import (
	"math"

	"golang.org/x/exp/constraints"
)

func (m *Matrix) elementMag(e *Element) float64 {
	return math.Abs(e.Value)
}

func minOf[T constraints.Ordered](a, b T) T {
	if a < b {
		return a
	}
	return b
}
