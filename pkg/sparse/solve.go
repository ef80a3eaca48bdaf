package sparse

import (
	"fmt"
)

// Solve performs forward elimination and back substitution on a factored
// matrix. rhs and the returned solution use external indexing; index 0 is
// the ground slot and stays zero.
func (m *Matrix) Solve(rhs []float64) (solution []float64, err error) {
	solution = make([]float64, len(rhs))

	if !m.Factored {
		return nil, fmt.Errorf("matrix is not factored")
	}
	if len(rhs) < int(m.Size) || len(solution) < int(m.Size) {
		return nil, fmt.Errorf("rhs or solution array size(%d,%d) is smaller than matrix size(%d)",
			len(rhs), len(solution), m.Size)
	}
	if m.Intermediate == nil {
		return nil, fmt.Errorf("intermediate vector not allocated")
	}

	size := m.Size
	intermediate := m.Intermediate
	intToExtRowMap := m.IntToExtRowMap
	intToExtColMap := m.IntToExtColMap
	diags := m.Diags

	for i := size; i > 0; i-- {
		intermediate[i] = rhs[intToExtRowMap[i]]
	}

	// Forward elimination, solves Lc = b
	for i := int64(1); i <= size; i++ {
		temp := intermediate[i]
		if temp != 0.0 {
			pivot := diags[i]
			if pivot == nil {
				return nil, fmt.Errorf("nil diagonal element at %d", i)
			}
			temp *= pivot.Value
			intermediate[i] = temp

			for element := pivot.NextInCol; element != nil; element = element.NextInCol {
				intermediate[element.Row] -= temp * element.Value
			}
		}
	}

	// Backward substitution, solves Ux = c
	for i := size; i > 0; i-- {
		temp := intermediate[i]

		for element := diags[i].NextInRow; element != nil; element = element.NextInRow {
			temp -= element.Value * intermediate[element.Col]
		}
		intermediate[i] = temp
	}

	// Unscramble back to external ordering
	for i := size; i > 0; i-- {
		solution[intToExtColMap[i]] = intermediate[i]
	}

	return solution, nil
}
