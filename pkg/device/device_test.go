package device

import (
	"errors"
	"math"
	"testing"
)

// stampRecorder is a minimal Stamper for checking device stamps.
type stampRecorder struct {
	elements map[[2]int]float64
	rhs      map[int]float64
}

func newStampRecorder() *stampRecorder {
	return &stampRecorder{
		elements: make(map[[2]int]float64),
		rhs:      make(map[int]float64),
	}
}

func (s *stampRecorder) AddElement(i, j int, v float64) {
	if i == 0 || j == 0 {
		return
	}
	s.elements[[2]int{i, j}] += v
}

func (s *stampRecorder) AddRHS(i int, v float64) {
	if i == 0 {
		return
	}
	s.rhs[i] += v
}

func TestResistorStamp(t *testing.T) {
	r := NewResistor("R1", []string{"1", "2"}, 1000.0)
	r.SetNodes([]int{1, 2})

	rec := newStampRecorder()
	if err := r.Stamp(rec, &CircuitStatus{Mode: OperatingPointAnalysis}); err != nil {
		t.Fatalf("Stamp failed: %v", err)
	}

	g := 1.0 / 1000.0
	checks := map[[2]int]float64{
		{1, 1}: g, {1, 2}: -g,
		{2, 1}: -g, {2, 2}: g,
	}
	for pos, want := range checks {
		if got := rec.elements[pos]; math.Abs(got-want) > 1e-15 {
			t.Errorf("element %v = %v, want %v", pos, got, want)
		}
	}
}

func TestResistorGroundedStamp(t *testing.T) {
	r := NewResistor("R1", []string{"1", "0"}, 100.0)
	r.SetNodes([]int{1, 0})

	rec := newStampRecorder()
	if err := r.Stamp(rec, &CircuitStatus{}); err != nil {
		t.Fatalf("Stamp failed: %v", err)
	}

	if len(rec.elements) != 1 {
		t.Errorf("grounded resistor stamped %d elements, want 1", len(rec.elements))
	}
	if got := rec.elements[[2]int{1, 1}]; math.Abs(got-0.01) > 1e-15 {
		t.Errorf("diagonal = %v, want 0.01", got)
	}
}

func TestPotentiometerSplit(t *testing.T) {
	p := NewPotentiometer("P1", []string{"1", "2", "0"}, 10e3, 0.25)
	p.SetNodes([]int{1, 2, 0})

	rec := newStampRecorder()
	if err := p.Stamp(rec, &CircuitStatus{}); err != nil {
		t.Fatalf("Stamp failed: %v", err)
	}

	// A side 2.5k, B side 7.5k.
	gA := 1.0 / 2500.0
	gB := 1.0 / 7500.0
	if got := rec.elements[[2]int{1, 1}]; math.Abs(got-gA) > 1e-12 {
		t.Errorf("A-side conductance = %v, want %v", got, gA)
	}
	if got := rec.elements[[2]int{2, 2}]; math.Abs(got-(gA+gB)) > 1e-12 {
		t.Errorf("wiper diagonal = %v, want %v", got, gA+gB)
	}
}

func TestPotentiometerWiperClamp(t *testing.T) {
	p := NewPotentiometer("P1", []string{"1", "2", "3"}, 1e3, 0.0)
	p.SetNodes([]int{1, 2, 3})

	rec := newStampRecorder()
	if err := p.Stamp(rec, &CircuitStatus{}); err != nil {
		t.Fatalf("Stamp failed: %v", err)
	}

	// Position 0 must not produce an infinite conductance.
	for pos, v := range rec.elements {
		if math.IsInf(v, 0) || math.IsNaN(v) {
			t.Errorf("element %v is not finite: %v", pos, v)
		}
	}
}

func TestCapacitorCompanionBE(t *testing.T) {
	c := NewCapacitor("C1", []string{"1", "0"}, 1e-6)
	c.SetNodes([]int{1, 0})
	c.voltage0 = 2.0

	rec := newStampRecorder()
	status := &CircuitStatus{Mode: TransientAnalysis, TimeStep: 1e-3, Method: BE}
	if err := c.Stamp(rec, status); err != nil {
		t.Fatalf("Stamp failed: %v", err)
	}

	geq := 1e-6 / 1e-3
	if got := rec.elements[[2]int{1, 1}]; math.Abs(got-geq) > 1e-15 {
		t.Errorf("geq = %v, want %v", got, geq)
	}
	if got := rec.rhs[1]; math.Abs(got-geq*2.0) > 1e-15 {
		t.Errorf("ieq = %v, want %v", got, geq*2.0)
	}
}

func TestCapacitorCompanionTR(t *testing.T) {
	c := NewCapacitor("C1", []string{"1", "0"}, 1e-6)
	c.SetNodes([]int{1, 0})
	c.voltage0 = 1.0
	c.current0 = 0.5e-3

	rec := newStampRecorder()
	status := &CircuitStatus{Mode: TransientAnalysis, TimeStep: 1e-3, Method: TR}
	if err := c.Stamp(rec, status); err != nil {
		t.Fatalf("Stamp failed: %v", err)
	}

	geq := 2.0 * 1e-6 / 1e-3
	wantIeq := geq*1.0 + 0.5e-3
	if got := rec.rhs[1]; math.Abs(got-wantIeq) > 1e-15 {
		t.Errorf("ieq = %v, want %v", got, wantIeq)
	}
}

func TestVoltageSourceWaveforms(t *testing.T) {
	sin := NewSinVoltageSource("V1", []string{"1", "0"}, 1.0, 2.0, 1000.0, 0.0)
	if got := sin.GetVoltage(0); math.Abs(got-1.0) > 1e-12 {
		t.Errorf("SIN at t=0: %v, want 1.0", got)
	}
	quarter := 1.0 / (4.0 * 1000.0)
	if got := sin.GetVoltage(quarter); math.Abs(got-3.0) > 1e-9 {
		t.Errorf("SIN at quarter period: %v, want 3.0", got)
	}

	pulse := NewPulseVoltageSource("V2", []string{"1", "0"}, 0, 5, 1e-3, 1e-6, 1e-6, 1e-3, 4e-3)
	if got := pulse.GetVoltage(0); got != 0 {
		t.Errorf("PULSE before delay: %v, want 0", got)
	}
	if got := pulse.GetVoltage(1.5e-3); got != 5 {
		t.Errorf("PULSE during width: %v, want 5", got)
	}
	if got := pulse.GetVoltage(3e-3); got != 0 {
		t.Errorf("PULSE after fall: %v, want 0", got)
	}

	pwl := NewPWLVoltageSource("V3", []string{"1", "0"}, []float64{0, 1e-3}, []float64{0, 10})
	if got := pwl.GetVoltage(0.5e-3); math.Abs(got-5.0) > 1e-12 {
		t.Errorf("PWL midpoint: %v, want 5.0", got)
	}
	if got := pwl.GetVoltage(2e-3); got != 10 {
		t.Errorf("PWL past last point: %v, want 10", got)
	}
}

func TestDiodeLinearization(t *testing.T) {
	d := NewDiode("D1", []string{"1", "0"})
	d.SetNodes([]int{1, 0})
	d.vd = 0.6

	rec := newStampRecorder()
	status := &CircuitStatus{Mode: OperatingPointAnalysis, Temp: 300.15}
	if err := d.Stamp(rec, status); err != nil {
		t.Fatalf("Stamp failed: %v", err)
	}

	if d.id <= 0 {
		t.Errorf("forward current = %v, want > 0", d.id)
	}
	if d.gd <= 0 {
		t.Errorf("conductance = %v, want > 0", d.gd)
	}

	// The tangent line must pass through the operating point: the RHS
	// carries I0 - g*V0.
	wantRHS := -(d.id - d.gd*d.vd)
	if got := rec.rhs[1]; math.Abs(got-wantRHS) > 1e-18 {
		t.Errorf("rhs = %v, want %v", got, wantRHS)
	}
}

func TestDiodeExpClamp(t *testing.T) {
	d := NewDiode("D1", []string{"1", "0"})
	d.SetNodes([]int{1, 0})
	d.vd = 100.0 // absurd overshoot from a bad iterate

	rec := newStampRecorder()
	if err := d.Stamp(rec, &CircuitStatus{Temp: 300.15}); err != nil {
		t.Fatalf("Stamp failed: %v", err)
	}

	if math.IsInf(d.id, 0) || math.IsNaN(d.id) {
		t.Errorf("clamped current is not finite: %v", d.id)
	}
}

func TestWrongPinCountStamp(t *testing.T) {
	r := NewResistor("R1", []string{"a"}, 1e3)
	r.SetNodes([]int{1})

	err := r.Stamp(newStampRecorder(), &CircuitStatus{})
	var serr *SingularStampError
	if !errors.As(err, &serr) {
		t.Fatalf("got %v, want SingularStampError", err)
	}
	if serr.Got != 1 || serr.Want != 2 {
		t.Errorf("error reports %d/%d pins, want 1/2", serr.Got, serr.Want)
	}
}

func TestDiodeVoltageLimiting(t *testing.T) {
	d := NewDiode("D1", []string{"1", "0"})
	d.SetNodes([]int{1, 0})

	// First iterate lands the full supply across the junction; the damped
	// update must pull it back near the critical voltage.
	if err := d.UpdateVoltages([]float64{0, 5.0}); err != nil {
		t.Fatal(err)
	}
	if d.vd >= 1.0 {
		t.Errorf("junction voltage %v not damped", d.vd)
	}
	if d.vd <= 0 {
		t.Errorf("junction voltage %v lost the sign of the iterate", d.vd)
	}

	// A small step passes through undamped.
	d.vd = 0.5
	if err := d.UpdateVoltages([]float64{0, 0.52}); err != nil {
		t.Fatal(err)
	}
	if d.vd != 0.52 {
		t.Errorf("small step damped to %v, want 0.52", d.vd)
	}
}

func TestDiodeLinearizationSettled(t *testing.T) {
	d := NewDiode("D1", []string{"1", "0"})
	d.SetNodes([]int{1, 0})

	// While the limiter holds the linearization point below the raw
	// solution the iteration must not be reported as settled.
	if err := d.UpdateVoltages([]float64{0, 5.0}); err != nil {
		t.Fatal(err)
	}
	if d.LinearizationSettled(5e-5, 1e-3) {
		t.Error("damped junction reported settled while lagging the solution")
	}

	// Once the solution matches the linearization point it has settled.
	d.vd = 0.62
	if err := d.UpdateVoltages([]float64{0, 0.62}); err != nil {
		t.Fatal(err)
	}
	if !d.LinearizationSettled(5e-5, 1e-3) {
		t.Error("consistent junction not reported settled")
	}
}

func TestJunctionLimitTracksStampTemperature(t *testing.T) {
	for _, temp := range []float64{250.0, 350.0} {
		d := NewDiode("D1", []string{"1", "0"})
		d.SetNodes([]int{1, 0})

		if err := d.Stamp(newStampRecorder(), &CircuitStatus{Temp: temp}); err != nil {
			t.Fatal(err)
		}
		if err := d.UpdateVoltages([]float64{0, 5.0}); err != nil {
			t.Fatal(err)
		}

		want := limitJunctionVoltage(5.0, 0, d.N*thermalVoltage(temp), d.Is)
		if d.vd != want {
			t.Errorf("temp %g: damped voltage %v, want %v", temp, d.vd, want)
		}
	}
}

func TestZenerBreakdown(t *testing.T) {
	z := NewZenerDiode("DZ1", []string{"1", "0"})
	z.SetNodes([]int{1, 0})

	// At the knee the device carries its rated breakdown current.
	id, _ := z.evaluate(-z.Bv, 300.15)
	if math.Abs(id+z.Ibv) > 1e-3*z.Ibv {
		t.Errorf("knee current = %v, want %v", id, -z.Ibv)
	}

	// Slightly past breakdown: large reverse current.
	id, gd := z.evaluate(-(z.Bv + 0.2), 300.15)
	if id >= -z.Ibv {
		t.Errorf("breakdown current = %v, want beyond %v", id, -z.Ibv)
	}
	if gd <= 1e-6 {
		t.Errorf("breakdown conductance = %v, want conducting", gd)
	}

	// Mild reverse bias: essentially off.
	id, _ = z.evaluate(-1.0, 300.15)
	if math.Abs(id) > 1e-9 {
		t.Errorf("reverse leakage = %v, want ~0", id)
	}
}

func TestBjtForwardActive(t *testing.T) {
	q := NewBJT("Q1", []string{"b", "c", "e"}, NPN)
	q.SetNodes([]int{1, 2, 3})

	// Forward active: vbe = 0.65, vbc = -4.35.
	sol := []float64{0, 0.65, 5.0, 0.0}
	if err := q.UpdateVoltages(sol); err != nil {
		t.Fatalf("UpdateVoltages failed: %v", err)
	}

	rec := newStampRecorder()
	if err := q.Stamp(rec, &CircuitStatus{Temp: 300.15}); err != nil {
		t.Fatalf("Stamp failed: %v", err)
	}

	ic := q.CollectorCurrent()
	ib := q.BaseCurrent()
	if ic <= 0 || ib <= 0 {
		t.Fatalf("forward active currents: ic=%v ib=%v, want both > 0", ic, ib)
	}
	beta := ic / ib
	if beta < 50 || beta > 150 {
		t.Errorf("current gain = %v, want near Bf=100", beta)
	}

	// KCL: each Jacobian row sums to zero across the three node columns,
	// so a common-mode shift produces no current.
	for _, row := range []int{1, 2, 3} {
		sum := 0.0
		for _, col := range []int{1, 2, 3} {
			sum += rec.elements[[2]int{row, col}]
		}
		if math.Abs(sum) > 1e-9*math.Abs(rec.elements[[2]int{row, row}]) {
			t.Errorf("row %d gradient sum = %v, want 0", row, sum)
		}
	}
}

func TestBjtPnpMirror(t *testing.T) {
	q := NewBJT("Q1", []string{"b", "c", "e"}, PNP)
	q.SetNodes([]int{1, 2, 3})

	// PNP forward active: emitter high, base a diode drop below.
	sol := []float64{0, 4.35, 0.0, 5.0}
	if err := q.UpdateVoltages(sol); err != nil {
		t.Fatalf("UpdateVoltages failed: %v", err)
	}

	rec := newStampRecorder()
	if err := q.Stamp(rec, &CircuitStatus{Temp: 300.15}); err != nil {
		t.Fatalf("Stamp failed: %v", err)
	}

	// Collector current flows out of the collector node for a PNP.
	if ic := q.CollectorCurrent(); ic >= 0 {
		t.Errorf("PNP collector current = %v, want < 0", ic)
	}
}

func TestOpAmpRegions(t *testing.T) {
	u := NewOpAmp("U1", []string{"p", "n", "o"})
	u.SetNodes([]int{1, 2, 3})
	u.SetBranchIndex(4)

	// Tiny differential input within rails.
	if err := u.UpdateVoltages([]float64{0, 1e-5, 0, 0}); err != nil {
		t.Fatalf("UpdateVoltages failed: %v", err)
	}
	if u.region != 0 {
		t.Errorf("region = %d, want linear", u.region)
	}

	rec := newStampRecorder()
	if err := u.Stamp(rec, &CircuitStatus{}); err != nil {
		t.Fatalf("Stamp failed: %v", err)
	}
	if got := rec.elements[[2]int{4, 1}]; got != -u.Gain {
		t.Errorf("constraint row gain = %v, want %v", got, -u.Gain)
	}

	// Large differential drives the output to the high rail.
	if err := u.UpdateVoltages([]float64{0, 1.0, 0, 0}); err != nil {
		t.Fatalf("UpdateVoltages failed: %v", err)
	}
	if u.region != 1 {
		t.Errorf("region = %d, want high rail", u.region)
	}

	rec = newStampRecorder()
	if err := u.Stamp(rec, &CircuitStatus{}); err != nil {
		t.Fatalf("Stamp failed: %v", err)
	}
	if got := rec.rhs[4]; got != u.Vrail {
		t.Errorf("saturated rhs = %v, want %v", got, u.Vrail)
	}
}

func TestDarlingtonWiring(t *testing.T) {
	d := NewDarlington("Q1", []string{"b", "c", "e"}, NPN)
	d.SetNodes([]int{1, 2, 3})
	if n := d.NumInternalNodes(); n != 1 {
		t.Fatalf("NumInternalNodes = %d, want 1", n)
	}
	d.SetInternalNodes([]int{4})

	driverNodes := d.driver.GetNodes()
	outputNodes := d.output.GetNodes()
	if driverNodes[2] != 4 || outputNodes[0] != 4 {
		t.Errorf("internal node wiring: driver emitter %d, output base %d, want both 4",
			driverNodes[2], outputNodes[0])
	}
	if driverNodes[1] != 2 || outputNodes[1] != 2 {
		t.Errorf("collectors not tied: %d, %d", driverNodes[1], outputNodes[1])
	}
}

func TestInductorBranchRow(t *testing.T) {
	l := NewInductor("L1", []string{"1", "0"}, 1e-3)
	l.SetNodes([]int{1, 0})
	l.SetBranchIndex(2)
	l.current0 = 0.1

	rec := newStampRecorder()
	status := &CircuitStatus{Mode: TransientAnalysis, TimeStep: 1e-6, Method: BE}
	if err := l.Stamp(rec, status); err != nil {
		t.Fatalf("Stamp failed: %v", err)
	}

	req := 1e-3 / 1e-6
	if got := rec.elements[[2]int{2, 2}]; math.Abs(got+req) > 1e-9 {
		t.Errorf("branch diagonal = %v, want %v", got, -req)
	}
	if got := rec.rhs[2]; math.Abs(got+req*0.1) > 1e-9 {
		t.Errorf("branch rhs = %v, want %v", got, -req*0.1)
	}
}
