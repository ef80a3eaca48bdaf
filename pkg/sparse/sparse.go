// Package sparse is a direct solver for the real, sparse systems produced
// by modified nodal analysis. The matrix is kept as orthogonally linked
// lists of elements, ordered with Markowitz counts and factored in place
// with threshold partial pivoting.
package sparse

import (
	"fmt"
)

// SingularError reports numerical singularity found while ordering or
// factoring. Step is the elimination step, Row/Col the external position of
// the offending pivot.
type SingularError struct {
	Step int64
	Row  int64
	Col  int64
}

func (e *SingularError) Error() string {
	return fmt.Sprintf("matrix is singular at step %d (row %d, col %d)", e.Step, e.Row, e.Col)
}

// Configuration selects optional solver behavior. Zero-valued threshold
// fields fall back to the defaults filled in by Create.
type Configuration struct {
	Expandable    bool // matrix grows on first reference to a new index
	Translate     bool // external index remapping
	ModifiedNodal bool // diagonal-zero preorder is worthwhile

	TiesMultiplier int     // how many extra candidates a Markowitz tie search examines
	RelThreshold   float64 // relative pivot magnitude threshold
	AbsThreshold   float64 // absolute pivot magnitude threshold
	PrinterWidth   int
	Annotate       int // 0: none, 1: on strange behavior, 2: full
}

// Element is a single nonzero. Value accumulates stamped contributions and
// is overwritten by the factored L/U entry (diagonals hold reciprocals).
type Element struct {
	Value     float64
	Row       int64
	Col       int64
	NextInRow *Element
	NextInCol *Element
}

// Add accumulates v into the element. Stamping from several components into
// the same cell is plain superposition.
func (e *Element) Add(v float64) {
	e.Value += v
}

// Matrix is a square real sparse matrix with 1-based indexing. Row and
// column 0 are a sink for ground references: GetElement returns a detached
// element for them so callers can stamp unconditionally.
type Matrix struct {
	Config Configuration

	Size        int64 // matrix size
	ExtSize     int64 // largest external index seen
	CurrentSize int64 // occupied size after translation

	Diags                 []*Element // diagonal elements (reciprocal once factored) [1..Size]
	FirstInRow            []*Element // first element in each row [1..Size]
	FirstInCol            []*Element // first element in each column [1..Size]
	Intermediate          []float64  // scratch vector for forward/back substitution
	MarkowitzRow          []int64    // Markowitz counts of each row
	MarkowitzCol          []int64    // Markowitz counts of each column
	MarkowitzProd         []int64    // Markowitz products
	MaxRowCountInLowerTri int64
	RelThreshold          float64
	AbsThreshold          float64

	NeedsOrdering             bool
	NumberOfInterchangesIsOdd bool
	Factored                  bool
	Reordered                 bool
	RowsLinked                bool

	SingularRow int64
	SingularCol int64

	Elements   int // nonzero count
	Fillins    int // fill-in count
	Singletons int

	PivotsOriginalRow    int64
	PivotsOriginalCol    int64
	PivotSelectionMethod byte // 's', 'q', 'd' or 'e'

	IntToExtRowMap []int64
	IntToExtColMap []int64
	ExtToIntRowMap []int64
	ExtToIntColMap []int64
}

// Create allocates a size x size matrix. A nil config selects defaults
// suitable for MNA systems.
func Create(size int64, config *Configuration) (*Matrix, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid size: %d", size)
	}

	defaultConfig := Configuration{
		Expandable:     true,
		Translate:      true,
		ModifiedNodal:  true,
		TiesMultiplier: 5,
		RelThreshold:   0.001,
		AbsThreshold:   0.0,
		PrinterWidth:   80,
		Annotate:       0,
	}

	if config == nil {
		config = &defaultConfig
	}
	if config.TiesMultiplier == 0 {
		config.TiesMultiplier = defaultConfig.TiesMultiplier
	}
	if config.RelThreshold == 0 {
		config.RelThreshold = defaultConfig.RelThreshold
	}

	matrixSize := size + 1 // 1-based indexing

	m := &Matrix{
		Config:         *config,
		Size:           size,
		Diags:          make([]*Element, matrixSize+1),
		FirstInRow:     make([]*Element, matrixSize+1),
		FirstInCol:     make([]*Element, matrixSize+1),
		Intermediate:   make([]float64, matrixSize+1),
		MarkowitzRow:   make([]int64, matrixSize+1),
		MarkowitzCol:   make([]int64, matrixSize+1),
		MarkowitzProd:  make([]int64, matrixSize+1),
		IntToExtRowMap: make([]int64, matrixSize+1),
		IntToExtColMap: make([]int64, matrixSize+1),
		ExtToIntRowMap: make([]int64, matrixSize+1),
		ExtToIntColMap: make([]int64, matrixSize+1),
		NeedsOrdering:  true,
		RelThreshold:   config.RelThreshold,
		AbsThreshold:   config.AbsThreshold,
	}

	for i := int64(1); i <= size; i++ {
		m.IntToExtRowMap[i] = i
		m.IntToExtColMap[i] = i
		m.ExtToIntRowMap[i] = -1
		m.ExtToIntColMap[i] = -1
	}
	m.ExtToIntRowMap[0] = 0
	m.ExtToIntColMap[0] = 0

	return m, nil
}

// Clear zeroes all element values while keeping the sparsity pattern and
// ordering, so restamp-and-refactor reuses the previous ordering.
func (m *Matrix) Clear() {
	for i := m.Size; i > 0; i-- {
		element := m.FirstInCol[i]
		for element != nil {
			element.Value = 0.0
			element = element.NextInCol
		}
	}

	m.Factored = false
	m.SingularCol = 0
	m.SingularRow = 0
}

// Destroy releases the matrix storage.
func (m *Matrix) Destroy() {
	m.IntToExtColMap = nil
	m.IntToExtRowMap = nil
	m.ExtToIntColMap = nil
	m.ExtToIntRowMap = nil

	m.Diags = nil
	m.FirstInRow = nil
	m.FirstInCol = nil
	m.Intermediate = nil
	m.MarkowitzRow = nil
	m.MarkowitzCol = nil
	m.MarkowitzProd = nil

	m.Elements = 0
	m.Fillins = 0
	m.Size = 0
	m.NeedsOrdering = false
	m.Factored = false
	m.Reordered = false
	m.RowsLinked = false

	m.SingularRow = 0
	m.SingularCol = 0
	m.PivotsOriginalRow = 0
	m.PivotsOriginalCol = 0
	m.PivotSelectionMethod = 0
	m.Singletons = 0
}

func (m *Matrix) createElement(row, col int64, firstInRow, firstInCol **Element, fillin bool) *Element {
	const (
		largestShortInteger = 32767
		largestLongInteger  = 2147483647
	)

	current := *firstInCol
	var prev **Element = firstInCol
	for current != nil && current.Row < row {
		prev = &current.NextInCol
		current = current.NextInCol
	}

	if current != nil && current.Row == row {
		return current
	}

	element := &Element{Row: row, Col: col}

	if fillin {
		m.Fillins++

		m.MarkowitzRow[row]++
		m.MarkowitzCol[col]++

		if (m.MarkowitzRow[row] > largestShortInteger && m.MarkowitzCol[row] != 0) ||
			(m.MarkowitzCol[row] > largestShortInteger && m.MarkowitzRow[row] != 0) {
			product := float64(m.MarkowitzCol[row]) * float64(m.MarkowitzRow[row])
			if product >= float64(largestLongInteger) {
				m.MarkowitzProd[row] = largestLongInteger
			} else {
				m.MarkowitzProd[row] = int64(product)
			}
		} else {
			m.MarkowitzProd[row] = m.MarkowitzRow[row] * m.MarkowitzCol[row]
		}

		if (m.MarkowitzRow[col] > largestShortInteger && m.MarkowitzCol[col] != 0) ||
			(m.MarkowitzCol[col] > largestShortInteger && m.MarkowitzRow[col] != 0) {
			product := float64(m.MarkowitzCol[col]) * float64(m.MarkowitzRow[col])
			if product >= float64(largestLongInteger) {
				m.MarkowitzProd[col] = largestLongInteger
			} else {
				m.MarkowitzProd[col] = int64(product)
			}
		} else {
			m.MarkowitzProd[col] = m.MarkowitzCol[col] * m.MarkowitzRow[col]
		}

		if m.MarkowitzRow[row] == 1 && m.MarkowitzCol[row] != 0 {
			m.Singletons--
		}
		if m.MarkowitzRow[col] != 0 && m.MarkowitzCol[col] == 1 {
			m.Singletons--
		}
	} else {
		m.NeedsOrdering = true
	}

	m.Elements++

	element.NextInCol = current
	*prev = element

	if m.RowsLinked {
		current = *firstInRow
		prev = firstInRow
		for current != nil && current.Col < col {
			prev = &current.NextInRow
			current = current.NextInRow
		}
		element.NextInRow = current
		*prev = element
	}

	if row == col {
		m.Diags[row] = element
	}

	return element
}

// GetElement finds or creates the element at (row, col) using external
// indexing. References to row or column 0 (ground) return a detached
// element so the stamp is discarded.
func (m *Matrix) GetElement(row, col int64) *Element {
	if row < 0 || col < 0 {
		return nil
	}
	if row == 0 || col == 0 {
		return &Element{}
	}

	internalRow, internalCol := row, col
	if m.Config.Translate {
		if err := m.Translate(&internalRow, &internalCol); err != nil {
			return nil
		}
	} else {
		if row > m.Size || col > m.Size {
			return nil
		}
	}

	if internalRow == internalCol {
		if element := m.Diags[internalRow]; element != nil {
			return element
		}
	}

	element := m.FirstInCol[internalCol]
	for element != nil {
		if element.Row == internalRow {
			return element
		}
		element = element.NextInCol
	}

	return m.createElement(internalRow, internalCol, &m.FirstInRow[internalRow], &m.FirstInCol[internalCol], false)
}

// Translate maps external row/column numbers to internal ones, assigning
// fresh internal indices on first use.
func (m *Matrix) Translate(row, col *int64) error {
	extRow, extCol := *row, *col

	if extRow > m.ExtSize {
		m.ExtSize = extRow
	}
	if extCol > m.ExtSize {
		m.ExtSize = extCol
	}

	intRow := m.ExtToIntRowMap[extRow]
	if intRow == -1 {
		m.CurrentSize++
		m.ExtToIntRowMap[extRow] = m.CurrentSize
		m.ExtToIntColMap[extRow] = m.CurrentSize
		intRow = m.CurrentSize

		if !m.Config.Expandable && intRow > m.Size {
			return fmt.Errorf("matrix size fixed")
		}

		m.IntToExtRowMap[intRow] = extRow
		m.IntToExtColMap[intRow] = extRow
	}

	intCol := m.ExtToIntColMap[extCol]
	if intCol == -1 {
		m.CurrentSize++
		m.ExtToIntRowMap[extCol] = m.CurrentSize
		m.ExtToIntColMap[extCol] = m.CurrentSize
		intCol = m.CurrentSize

		if !m.Config.Expandable && intCol > m.Size {
			return fmt.Errorf("matrix size fixed")
		}

		m.IntToExtRowMap[intCol] = extCol
		m.IntToExtColMap[intCol] = extCol
	}

	*row = intRow
	*col = intCol

	return nil
}

// LinkRows rebuilds the row-wise links from the column-wise links.
func (m *Matrix) LinkRows() {
	for col := m.Size; col >= 1; col-- {
		m.FirstInRow[col] = nil
	}

	for col := m.Size; col >= 1; col-- {
		element := m.FirstInCol[col]
		for element != nil {
			element.Col = col
			element.NextInRow = m.FirstInRow[element.Row]
			m.FirstInRow[element.Row] = element
			element = element.NextInCol
		}
	}

	m.RowsLinked = true
}

// ElementCount returns the number of stored nonzeros including fill-ins.
func (m *Matrix) ElementCount() int {
	return m.Elements
}

// FillinCount returns the number of fill-ins created during factorization.
func (m *Matrix) FillinCount() int {
	return m.Fillins
}

// GetSize returns the matrix size, external when translation is active and
// external is requested.
func (m *Matrix) GetSize(external bool) int64 {
	if m.Config.Translate && external {
		return m.ExtSize
	}
	return m.Size
}
