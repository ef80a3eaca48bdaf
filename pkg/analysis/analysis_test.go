package analysis

import (
	"context"
	"errors"
	"math"
	"testing"

	"audiospice/pkg/circuit"
	"audiospice/pkg/device"
	"audiospice/pkg/netlist"
)

func buildCircuit(t *testing.T, src string) *circuit.Circuit {
	t.Helper()
	nl, err := netlist.Parse(src)
	if err != nil {
		t.Fatal(err)
	}
	ckt, err := circuit.FromNetlist(nl, nil)
	if err != nil {
		t.Fatal(err)
	}
	return ckt
}

func TestResistorDividerOperatingPoint(t *testing.T) {
	ckt := buildCircuit(t, `
V1 in 0 5
R1 in out 1K
R2 out 0 1K
`)

	res, err := OperatingPoint(context.Background(), ckt, Options{},
		[]string{"V(in)", "V(out)", "I(V1)"})
	if err != nil {
		t.Fatal(err)
	}

	if got := res["V(in)"]; math.Abs(got-5) > 1e-9 {
		t.Errorf("V(in) = %g, want 5", got)
	}
	if got := res["V(out)"]; math.Abs(got-2.5) > 1e-6 {
		t.Errorf("V(out) = %g, want 2.5", got)
	}
	if got := res["I(V1)"]; math.Abs(got-2.5e-3) > 1e-9 {
		t.Errorf("I(V1) = %g, want 2.5mA", got)
	}
}

func TestSingleResistorOhm(t *testing.T) {
	ckt := buildCircuit(t, "V1 a 0 9\nR1 a 0 4.7K\n")

	res, err := OperatingPoint(context.Background(), ckt, Options{},
		[]string{"I(V1)"})
	if err != nil {
		t.Fatal(err)
	}

	want := 9.0 / 4.7e3
	if got := res["I(V1)"]; math.Abs(got-want) > 1e-12 {
		t.Errorf("I(V1) = %g, want %g", got, want)
	}
}

func TestKCLResidual(t *testing.T) {
	// Bridge-ish resistive mesh: at every internal node the resistor
	// currents computed from the solved voltages must cancel.
	ckt := buildCircuit(t, `
V1 a 0 10
R1 a b 1K
R2 a c 2.2K
R3 b c 4.7K
R4 b 0 1K
R5 c 0 3.3K
`)

	sim, err := New(ckt, Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer sim.Destroy()

	snap, err := sim.OperatingPoint(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	volt := func(name string) float64 {
		v, err := sim.Probe(snap, "V("+name+")")
		if err != nil {
			t.Fatal(err)
		}
		return v
	}

	edges := []struct {
		n1, n2 string
		r      float64
	}{
		{"a", "b", 1e3}, {"a", "c", 2.2e3}, {"b", "c", 4.7e3},
		{"b", "0", 1e3}, {"c", "0", 3.3e3},
	}
	for _, node := range []string{"b", "c"} {
		residual := 0.0
		for _, e := range edges {
			if e.n1 == node {
				residual += (volt(e.n1) - volt(e.n2)) / e.r
			} else if e.n2 == node {
				residual += (volt(e.n2) - volt(e.n1)) / e.r
			}
		}
		if math.Abs(residual) > 1e-9 {
			t.Errorf("node %s: KCL residual %g", node, residual)
		}
	}
}

func TestRCChargingBackwardEuler(t *testing.T) {
	testRCCharging(t, device.BE, 0.06)
}

func TestRCChargingTrapezoidal(t *testing.T) {
	testRCCharging(t, device.TR, 0.01)
}

func testRCCharging(t *testing.T, method device.IntegrationMethod, tol float64) {
	t.Helper()

	// 1k * 1u = 1ms time constant, stepped at tau/100. The bias point is
	// skipped so the capacitor starts uncharged.
	ckt := buildCircuit(t, `
V1 in 0 5
R1 in out 1K
C1 out 0 1U
`)

	sim, err := New(ckt, Options{Method: method})
	if err != nil {
		t.Fatal(err)
	}
	defer sim.Destroy()

	const (
		rc = 1e-3
		dt = 1e-5
	)
	for sim.Time() < 2e-3 {
		snap, err := sim.Step(context.Background(), dt)
		if err != nil {
			t.Fatal(err)
		}
		got, err := sim.Probe(snap, "V(out)")
		if err != nil {
			t.Fatal(err)
		}
		want := 5.0 * (1.0 - math.Exp(-snap.Time/rc))
		if math.Abs(got-want) > tol {
			t.Fatalf("t=%g: V(out) = %g, want %g within %g", snap.Time, got, want, tol)
		}
	}
}

func TestRLCurrentRise(t *testing.T) {
	// 10mH / 100 ohm gives a 100us time constant. The branch unknown
	// carries the inductor current; the probe negates it.
	ckt := buildCircuit(t, `
V1 in 0 5
R1 in out 100
L1 out 0 10M
`)

	sim, err := New(ckt, Options{Method: device.TR})
	if err != nil {
		t.Fatal(err)
	}
	defer sim.Destroy()

	const (
		tau = 1e-4
		dt  = 1e-6
	)
	for sim.Time() < 5e-4 {
		snap, err := sim.Step(context.Background(), dt)
		if err != nil {
			t.Fatal(err)
		}
		got, err := sim.Probe(snap, "I(L1)")
		if err != nil {
			t.Fatal(err)
		}
		want := -0.05 * (1.0 - math.Exp(-snap.Time/tau))
		if math.Abs(got-want) > 1e-3 {
			t.Fatalf("t=%g: I(L1) = %g, want %g", snap.Time, got, want)
		}
	}
}

func TestDiodeResistorOperatingPoint(t *testing.T) {
	ckt := buildCircuit(t, `
V1 in 0 5
R1 in d 1K
D1 d 0
`)

	res, err := OperatingPoint(context.Background(), ckt, Options{},
		[]string{"V(d)", "I(V1)"})
	if err != nil {
		t.Fatal(err)
	}

	vd := res["V(d)"]
	if vd < 0.4 || vd > 0.8 {
		t.Errorf("diode drop %g outside the plausible range", vd)
	}

	// Self-consistency: the resistor current equals the source current.
	iR := (5.0 - vd) / 1e3
	if math.Abs(iR-res["I(V1)"]) > 1e-6 {
		t.Errorf("resistor current %g vs source current %g", iR, res["I(V1)"])
	}

	// The solution is unique: a fresh build lands on the same point.
	again, err := OperatingPoint(context.Background(),
		buildCircuit(t, "V1 in 0 5\nR1 in d 1K\nD1 d 0\n"),
		Options{}, []string{"V(d)"})
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(again["V(d)"]-vd) > 1e-9 {
		t.Errorf("re-solved diode drop %g vs %g", again["V(d)"], vd)
	}
}

func TestDiodeOperatingPointSeededGuess(t *testing.T) {
	const src = "V1 in 0 5\nR1 in d 1K\nD1 d 0\n"

	base, err := OperatingPoint(context.Background(), buildCircuit(t, src),
		Options{}, []string{"V(d)"})
	if err != nil {
		t.Fatal(err)
	}
	if vd := base["V(d)"]; vd < 0.4 || vd > 0.8 {
		t.Fatalf("diode drop %g outside the plausible range", vd)
	}

	// Seed the junction with the full supply before solving. The damped
	// iteration starts from a different linearization point and must still
	// land on the same operating point.
	ckt := buildCircuit(t, src)
	if err := ckt.UpdateNonlinearVoltages([]float64{0, 5, 5, 0}); err != nil {
		t.Fatal(err)
	}
	seeded, err := OperatingPoint(context.Background(), ckt, Options{},
		[]string{"V(d)"})
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(seeded["V(d)"]-base["V(d)"]) > 1e-3 {
		t.Errorf("seeded solve %g vs fresh solve %g", seeded["V(d)"], base["V(d)"])
	}
}

func TestTrapezoidalFirstStepSeeded(t *testing.T) {
	// With no committed current the trapezoidal companion would halve the
	// first step. The simulation takes that step with backward Euler and
	// uses its committed state as the trapezoidal history.
	ckt := buildCircuit(t, "V1 in 0 5\nR1 in out 1K\nC1 out 0 1U\n")

	sim, err := New(ckt, Options{Method: device.TR})
	if err != nil {
		t.Fatal(err)
	}
	defer sim.Destroy()

	const (
		rc = 1e-3
		dt = 1e-5
	)
	snap, err := sim.Step(context.Background(), dt)
	if err != nil {
		t.Fatal(err)
	}
	got, err := sim.Probe(snap, "V(out)")
	if err != nil {
		t.Fatal(err)
	}

	want := 5.0 * (dt / rc) / (1.0 + dt/rc)
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("first step V(out) = %g, want %g", got, want)
	}
}

func TestShortedSourceIsSingular(t *testing.T) {
	// Both source terminals on one node: its branch row cancels to zero.
	ckt := buildCircuit(t, "V1 a a 5\nR1 a 0 1K\n")

	_, err := OperatingPoint(context.Background(), ckt, Options{}, nil)
	var serr *SingularMatrixError
	if !errors.As(err, &serr) {
		t.Fatalf("got %v, want SingularMatrixError", err)
	}
	if serr.Time >= 0 {
		t.Errorf("operating point failure reports time %g, want negative", serr.Time)
	}
	if serr.Row <= 0 || serr.Col <= 0 {
		t.Errorf("failure position (%d, %d) not reported", serr.Row, serr.Col)
	}
}

func TestIterationLimitDiverges(t *testing.T) {
	ckt := buildCircuit(t, "V1 in 0 5\nR1 in d 1K\nD1 d 0\n")

	_, err := OperatingPoint(context.Background(), ckt,
		Options{MaxIterations: 1}, nil)
	var derr *DivergedError
	if !errors.As(err, &derr) {
		t.Fatalf("got %v, want DivergedError", err)
	}
	if derr.Iterations != 1 {
		t.Errorf("reported %d iterations, want 1", derr.Iterations)
	}
	if len(derr.LastX) == 0 {
		t.Error("last iterate not attached")
	}
}

func TestMethodLockedAfterFirstStep(t *testing.T) {
	ckt := buildCircuit(t, "V1 in 0 5\nR1 in out 1K\nC1 out 0 1U\n")

	sim, err := New(ckt, Options{Method: device.BE})
	if err != nil {
		t.Fatal(err)
	}
	defer sim.Destroy()

	if err := sim.SetMethod(device.TR); err != nil {
		t.Fatalf("pre-step method change: %v", err)
	}
	if _, err := sim.Step(context.Background(), 1e-6); err != nil {
		t.Fatal(err)
	}
	if err := sim.SetMethod(device.BE); err == nil {
		t.Error("post-step method change: expected error")
	}
}

func TestStepRejectsBadTimestep(t *testing.T) {
	ckt := buildCircuit(t, "V1 in 0 5\nR1 in 0 1K\n")
	sim, err := New(ckt, Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer sim.Destroy()

	if _, err := sim.Step(context.Background(), 0); err == nil {
		t.Error("zero timestep: expected error")
	}
	if _, err := sim.Step(context.Background(), -1e-6); err == nil {
		t.Error("negative timestep: expected error")
	}
}

func TestCancelledContext(t *testing.T) {
	ckt := buildCircuit(t, "V1 in 0 5\nR1 in 0 1K\n")
	sim, err := New(ckt, Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer sim.Destroy()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := sim.Step(ctx, 1e-6); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}

func TestTransientSineFollowsSource(t *testing.T) {
	ckt := buildCircuit(t, `
V1 in 0 SIN(0 1 1K)
R1 in out 1K
R2 out 0 1K
`)

	res, err := Transient(context.Background(), ckt, Options{},
		0, 1e-3, 1e-5, []string{"V(in)", "V(out)"})
	if err != nil {
		t.Fatal(err)
	}

	if len(res.Times) == 0 {
		t.Fatal("no samples recorded")
	}
	for i, tm := range res.Times {
		wantIn := math.Sin(2 * math.Pi * 1e3 * tm)
		if math.Abs(res.Signals["V(in)"][i]-wantIn) > 1e-9 {
			t.Fatalf("t=%g: V(in) = %g, want %g", tm, res.Signals["V(in)"][i], wantIn)
		}
		if math.Abs(res.Signals["V(out)"][i]-wantIn/2) > 1e-9 {
			t.Fatalf("t=%g: V(out) = %g, want %g", tm, res.Signals["V(out)"][i], wantIn/2)
		}
	}
}

func TestTransientStopsAtTstop(t *testing.T) {
	ckt := buildCircuit(t, "V1 in 0 5\nR1 in 0 1K\n")

	const (
		tstop = 1e-3
		dt    = 1e-5
	)
	res, err := Transient(context.Background(), ckt, Options{},
		0, tstop, dt, []string{"V(in)"})
	if err != nil {
		t.Fatal(err)
	}

	// Accumulated rounding in the time axis must not produce a sample
	// past tstop.
	if n := len(res.Times); n != 100 {
		t.Errorf("recorded %d samples, want 100", n)
	}
	last := res.Times[len(res.Times)-1]
	if last > tstop+dt/2 {
		t.Errorf("last sample at %g runs past tstop %g", last, tstop)
	}
}

func TestTransientHistoryOrdered(t *testing.T) {
	ckt := buildCircuit(t, "V1 in 0 5\nR1 in out 1K\nC1 out 0 1U\n")

	sim, err := New(ckt, Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer sim.Destroy()

	for i := 0; i < 10; i++ {
		if _, err := sim.Step(context.Background(), 1e-5); err != nil {
			t.Fatal(err)
		}
	}

	hist := sim.History()
	if len(hist) != 10 {
		t.Fatalf("history length %d, want 10", len(hist))
	}
	for i := 1; i < len(hist); i++ {
		if hist[i].Time <= hist[i-1].Time {
			t.Errorf("history not monotone at %d", i)
		}
	}
}
