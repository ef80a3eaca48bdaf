package matrix

import (
	"math"
	"testing"
)

func TestStampAndSolve(t *testing.T) {
	// Two-node divider stamped by hand: 5V source on node 1 via branch
	// row 3, 1k+1k to ground.
	m := NewMatrix(3)
	defer m.Destroy()

	g := 1e-3
	m.AddElement(1, 1, g)
	m.AddElement(1, 2, -g)
	m.AddElement(2, 1, -g)
	m.AddElement(2, 2, 2*g)
	m.AddElement(1, 3, 1)
	m.AddElement(3, 1, 1)
	m.AddRHS(3, 5)

	m.SetupElements()
	if err := m.Factor(); err != nil {
		t.Fatal(err)
	}
	if err := m.Solve(); err != nil {
		t.Fatal(err)
	}

	x := m.Solution()
	if math.Abs(x[1]-5) > 1e-9 {
		t.Errorf("v1 = %g, want 5", x[1])
	}
	if math.Abs(x[2]-2.5) > 1e-9 {
		t.Errorf("v2 = %g, want 2.5", x[2])
	}
	if x[0] != 0 {
		t.Errorf("ground entry %g, want 0", x[0])
	}
}

func TestGroundStampsDiscarded(t *testing.T) {
	m := NewMatrix(2)
	defer m.Destroy()

	m.AddElement(0, 1, 123)
	m.AddElement(1, 0, 123)
	m.AddRHS(0, 123)

	m.AddElement(1, 1, 1)
	m.AddElement(2, 2, 1)
	m.AddRHS(1, 2)

	m.SetupElements()
	if err := m.Factor(); err != nil {
		t.Fatal(err)
	}
	if err := m.Solve(); err != nil {
		t.Fatal(err)
	}

	if got := m.Solution()[1]; math.Abs(got-2) > 1e-12 {
		t.Errorf("x1 = %g, want 2", got)
	}
}

func TestClearKeepsOrdering(t *testing.T) {
	m := NewMatrix(2)
	defer m.Destroy()

	stamp := func(rhs float64) {
		m.AddElement(1, 1, 2)
		m.AddElement(1, 2, 1)
		m.AddElement(2, 1, 1)
		m.AddElement(2, 2, 3)
		m.AddRHS(1, rhs)
		m.AddRHS(2, rhs)
	}

	stamp(1)
	m.SetupElements()
	if err := m.Factor(); err != nil {
		t.Fatal(err)
	}
	if err := m.Solve(); err != nil {
		t.Fatal(err)
	}
	first := append([]float64(nil), m.Solution()...)

	// Restamp identical values after Clear; the fast refactor path must
	// reproduce the same solution.
	m.Clear()
	stamp(1)
	if err := m.Factor(); err != nil {
		t.Fatal(err)
	}
	if err := m.Solve(); err != nil {
		t.Fatal(err)
	}

	for i, v := range m.Solution() {
		if v != first[i] {
			t.Errorf("solution[%d] = %g, was %g before refactor", i, v, first[i])
		}
	}
}

func TestLoadGmin(t *testing.T) {
	// A node connected only through gmin still factors.
	m := NewMatrix(1)
	defer m.Destroy()

	m.AddElement(1, 1, 0)
	m.LoadGmin(1, 1e-12)
	m.AddRHS(1, 1e-12)

	m.SetupElements()
	if err := m.Factor(); err != nil {
		t.Fatal(err)
	}
	if err := m.Solve(); err != nil {
		t.Fatal(err)
	}
	if got := m.Solution()[1]; math.Abs(got-1) > 1e-9 {
		t.Errorf("x1 = %g, want 1", got)
	}
}
