// Package matrix is the stamping surface between device models and the
// sparse solver. Devices add conductances and source currents through the
// Stamper interface; the analysis layer factors and solves.
package matrix

import (
	"fmt"

	"audiospice/pkg/sparse"
)

// Stamper is what device models see of the system matrix. Indices are
// 1-based; index 0 is ground and stamps there are discarded.
type Stamper interface {
	AddElement(i, j int, value float64)
	AddRHS(i int, value float64)
}

// CircuitMatrix couples the sparse MNA matrix with its right-hand side
// and the last solution.
type CircuitMatrix struct {
	size     int
	matrix   *sparse.Matrix
	rhs      []float64
	solution []float64
	prepared bool
}

var _ Stamper = (*CircuitMatrix)(nil)

func NewMatrix(size int) *CircuitMatrix {
	m, err := sparse.Create(int64(size), nil)
	if err != nil {
		panic(fmt.Sprintf("matrix create: %v", err))
	}

	return &CircuitMatrix{
		size:     size,
		matrix:   m,
		rhs:      make([]float64, size+1),
		solution: make([]float64, size+1),
	}
}

func (cm *CircuitMatrix) Size() int { return cm.size }

// AddElement accumulates value at (i, j). Ground row/column stamps vanish.
func (cm *CircuitMatrix) AddElement(i, j int, value float64) {
	if i < 0 || j < 0 {
		return
	}
	cm.matrix.GetElement(int64(i), int64(j)).Add(value)
}

// AddRHS accumulates value into right-hand side row i.
func (cm *CircuitMatrix) AddRHS(i int, value float64) {
	if i <= 0 || i > cm.size {
		return
	}
	cm.rhs[i] += value
}

// SetupElements finalizes the sparsity pattern after the first stamp pass.
// The MNA preorder swaps away structural diagonal zeros before the first
// factorization chooses an ordering.
func (cm *CircuitMatrix) SetupElements() {
	if cm.prepared {
		return
	}
	cm.matrix.MNAPreorder()
	cm.prepared = true
}

// Clear zeroes matrix and right-hand side for restamping. The pivot
// ordering from the previous factorization is retained.
func (cm *CircuitMatrix) Clear() {
	cm.matrix.Clear()
	for i := range cm.rhs {
		cm.rhs[i] = 0
	}
}

// LoadGmin adds a small conductance on every node diagonal. Keeps the
// matrix nonsingular when junctions are fully off.
func (cm *CircuitMatrix) LoadGmin(nodeCount int, gmin float64) {
	for i := 1; i <= nodeCount; i++ {
		cm.AddElement(i, i, gmin)
	}
}

// Factor runs LU factorization, reusing the previous ordering when the
// pattern is unchanged.
func (cm *CircuitMatrix) Factor() error {
	return cm.matrix.Factor()
}

// Solve performs the substitution pass and stores the solution.
func (cm *CircuitMatrix) Solve() error {
	x, err := cm.matrix.Solve(cm.rhs)
	if err != nil {
		return err
	}
	copy(cm.solution, x)
	return nil
}

// Solution returns the solved vector, 1-based with [0] = 0 for ground.
func (cm *CircuitMatrix) Solution() []float64 {
	return cm.solution
}

// RHS exposes the right-hand side, mainly for diagnostics and tests.
func (cm *CircuitMatrix) RHS() []float64 {
	return cm.rhs
}

// PrintSystem dumps the matrix structure and values to stdout.
func (cm *CircuitMatrix) PrintSystem() {
	cm.matrix.Print(false, true, true)
}

func (cm *CircuitMatrix) Destroy() {
	if cm.matrix != nil {
		cm.matrix.Destroy()
	}
	cm.rhs = nil
	cm.solution = nil
}
