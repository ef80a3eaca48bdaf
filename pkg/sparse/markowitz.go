package sparse

// CountMarkowitz generates the Markowitz row and column counts for the
// remaining submatrix starting at step. A non-nil rhs contributes to the
// row counts so nonzero right-hand sides bias the ordering.
func (m *Matrix) CountMarkowitz(rhs []float64, step int64) {
	for i := step; i <= m.Size; i++ {
		count := int64(-1)
		element := m.FirstInRow[i]

		for element != nil && element.Col < step {
			element = element.NextInRow
		}
		for element != nil {
			count++
			element = element.NextInRow
		}

		if rhs != nil && rhs[i] != 0.0 {
			count++
		}

		m.MarkowitzRow[i] = count
	}

	for i := step; i <= m.Size; i++ {
		count := int64(-1)
		element := m.FirstInCol[i]

		for element != nil && element.Row < step {
			element = element.NextInCol
		}
		for element != nil {
			count++
			element = element.NextInCol
		}

		m.MarkowitzCol[i] = count
	}
}

// MarkowitzProducts computes the row x column count products and tallies
// the singletons.
func (m *Matrix) MarkowitzProducts(step int64) {
	m.Singletons = 0

	for i := step; i <= m.Size; i++ {
		rowCount := m.MarkowitzRow[i]
		colCount := m.MarkowitzCol[i]

		m.MarkowitzProd[i] = m.calculateMarkowitzProduct(rowCount, colCount)

		if m.MarkowitzProd[i] == 0 {
			m.Singletons++
		}
	}
}

// calculateMarkowitzProduct multiplies two counts with overflow clamping.
func (m *Matrix) calculateMarkowitzProduct(row, col int64) int64 {
	const (
		largestShortInteger = 32767
		largestLongInteger  = 2147483647
	)

	if (row > largestShortInteger && col != 0) || (col > largestShortInteger && row != 0) {
		product := float64(row) * float64(col)
		if product >= float64(largestLongInteger) {
			return largestLongInteger
		}
		return int64(product)
	}
	return row * col
}

// UpdateMarkowitzNumbers decrements the counts touched by the chosen pivot
// and refreshes the affected products and singleton tally.
func (m *Matrix) UpdateMarkowitzNumbers(pivot *Element) {
	const (
		largestShortInteger = 32767
		largestLongInteger  = 2147483647
	)

	markowitzRow := m.MarkowitzRow
	markowitzCol := m.MarkowitzCol
	markowitzProd := m.MarkowitzProd

	colPtr := pivot.NextInCol
	for colPtr != nil {
		row := colPtr.Row
		markowitzRow[row]--

		if (markowitzRow[row] > largestShortInteger && markowitzCol[row] != 0) || (markowitzCol[row] > largestShortInteger && markowitzRow[row] != 0) {
			product := float64(markowitzCol[row]) * float64(markowitzRow[row])
			if product >= float64(largestLongInteger) {
				markowitzProd[row] = largestLongInteger
			} else {
				markowitzProd[row] = int64(product)
			}
		} else {
			markowitzProd[row] = markowitzRow[row] * markowitzCol[row]
		}

		if markowitzRow[row] == 0 {
			m.Singletons++
		}

		colPtr = colPtr.NextInCol
	}

	rowPtr := pivot.NextInRow
	for rowPtr != nil {
		col := rowPtr.Col
		markowitzCol[col]--

		if (markowitzRow[col] > largestShortInteger && markowitzCol[col] != 0) || (markowitzCol[col] > largestShortInteger && markowitzRow[col] != 0) {
			product := float64(markowitzCol[col]) * float64(markowitzRow[col])
			if product >= float64(largestLongInteger) {
				markowitzProd[col] = largestLongInteger
			} else {
				markowitzProd[col] = int64(product)
			}
		} else {
			markowitzProd[col] = markowitzRow[col] * markowitzCol[col]
		}

		if markowitzCol[col] == 0 && markowitzRow[col] != 0 {
			m.Singletons++
		}

		rowPtr = rowPtr.NextInRow
	}
}
