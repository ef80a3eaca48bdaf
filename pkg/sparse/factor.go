package sparse

// OrderAndFactor factors the matrix into LU, choosing a pivot ordering with
// Markowitz counts when the previous ordering is stale. relThreshold outside
// (0, 1] and negative absThreshold fall back to the stored thresholds.
func (m *Matrix) OrderAndFactor(rhs []float64, relThreshold, absThreshold float64, diagPivoting bool) error {
	if relThreshold <= 0.0 || relThreshold > 1.0 {
		relThreshold = m.RelThreshold
	}
	m.RelThreshold = relThreshold
	if absThreshold < 0.0 {
		absThreshold = m.AbsThreshold
	}
	m.AbsThreshold = absThreshold

	size := m.Size
	var step int64 = 1

	if !m.NeedsOrdering {
		// Retry the previous ordering. Fall through to a full reorder on
		// the first pivot that fails the threshold test.
		for step = 1; step <= size; step++ {
			pivot := m.Diags[step]
			if pivot == nil {
				m.NeedsOrdering = true
				break
			}

			largestInCol := m.FindBiggestInCol(pivot.NextInCol)
			if largestInCol*relThreshold < m.elementMag(pivot) {
				m.rowColElimination(pivot)
			} else {
				m.NeedsOrdering = true
				break
			}
		}

		if !m.NeedsOrdering {
			m.Factored = true
			return nil
		}
	} else {
		step = 1
		if !m.RowsLinked {
			m.LinkRows()
		}
	}

	m.CountMarkowitz(rhs, step)
	m.MarkowitzProducts(step)
	m.MaxRowCountInLowerTri = -1

	for ; step <= size; step++ {
		pivot := m.SearchForPivot(step, diagPivoting)
		if pivot == nil {
			m.SingularRow = step
			m.SingularCol = step
			return &SingularError{Step: step, Row: m.IntToExtRowMap[step], Col: m.IntToExtColMap[step]}
		}

		m.ExchangeRowsAndCols(pivot, step)

		m.rowColElimination(pivot)

		m.UpdateMarkowitzNumbers(pivot)

		if m.Config.Annotate > 0 {
			m.WriteStatus(step)
		}
	}

	m.NeedsOrdering = false
	m.Reordered = true
	m.Factored = true
	return nil
}

// Factor refactors the matrix with the existing pivot ordering. The first
// call, or any call after the sparsity pattern changed, runs the full
// ordering pass instead.
func (m *Matrix) Factor() error {
	if m.NeedsOrdering {
		return m.OrderAndFactor(nil, 0.0, 0.0, true)
	}

	if m.Diags[1] == nil || m.Diags[1].Value == 0.0 {
		m.SingularRow = 1
		m.SingularCol = 1
		return &SingularError{Step: 1, Row: m.IntToExtRowMap[1], Col: m.IntToExtColMap[1]}
	}

	m.Diags[1].Value = 1.0 / m.Diags[1].Value

	for step := int64(2); step <= m.Size; step++ {
		for element := m.FirstInCol[step]; element != nil; element = element.NextInCol {
			m.Intermediate[element.Row] = element.Value
		}

		pColumn := m.FirstInCol[step]
		for pColumn != nil && pColumn.Row < step {
			element := m.Diags[pColumn.Row]
			pColumn.Value = m.Intermediate[pColumn.Row] * element.Value
			for element = element.NextInCol; element != nil; element = element.NextInCol {
				m.Intermediate[element.Row] -= pColumn.Value * element.Value
			}
			pColumn = pColumn.NextInCol
		}

		for element := m.Diags[step].NextInCol; element != nil; element = element.NextInCol {
			element.Value = m.Intermediate[element.Row]
		}

		if m.Intermediate[step] == 0.0 {
			m.SingularRow = step
			m.SingularCol = step
			return &SingularError{Step: step, Row: m.IntToExtRowMap[step], Col: m.IntToExtColMap[step]}
		}
		m.Diags[step].Value = 1.0 / m.Intermediate[step]
	}

	m.Factored = true
	return nil
}
