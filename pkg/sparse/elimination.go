package sparse

// rowColElimination eliminates the pivot's row and column from the
// remaining submatrix, creating fill-ins as needed. The pivot is stored
// as its reciprocal.
func (m *Matrix) rowColElimination(pivot *Element) {
	if m.elementMag(pivot) == 0.0 {
		m.SingularRow = pivot.Row
		return
	}

	pivot.Value = 1.0 / pivot.Value
	pUpper := pivot.NextInRow

	for pUpper != nil {
		pUpper.Value *= pivot.Value

		pSub := pUpper.NextInCol
		pLower := pivot.NextInCol
		ppAbove := &pUpper.NextInCol
		for pLower != nil {
			row := pLower.Row

			for pSub != nil && pSub.Row < row {
				ppAbove = &pSub.NextInCol
				pSub = pSub.NextInCol
			}

			if pSub == nil || pSub.Row > row {
				pSub = m.createElement(row, pUpper.Col, &pLower.NextInRow, ppAbove, true)
			}

			pSub.Value -= pUpper.Value * pLower.Value
			pSub = pSub.NextInCol
			pLower = pLower.NextInCol
		}
		pUpper = pUpper.NextInRow
	}
}
