package deltacore

import (
	"math"
	"testing"
)

func TestNormalizeTrimSubtractsMax(t *testing.T) {
	k := KinematicSettings{Trim: [3]float64{-1, -3, -0.5}}
	k.NormalizeTrim()
	m := k.Trim[0]
	if k.Trim[1] > m {
		m = k.Trim[1]
	}
	if k.Trim[2] > m {
		m = k.Trim[2]
	}
	if m != 0 {
		t.Errorf("expected max(trim) == 0 after normalization, got %v (%v)", m, k.Trim)
	}
}

func TestKinematicStateApplyRejectsUninitialized(t *testing.T) {
	arm := NewLinearDeltaSolution(250, 125)
	ks := NewKinematicState(arm, nil)
	err := ks.Apply(KinematicSettings{})
	if err == nil {
		t.Error("expected UNINITIALIZED error applying a zero-value settings struct")
	}
}

func TestKinematicStateApplyPushesAndReseats(t *testing.T) {
	arm := NewLinearDeltaSolution(250, 125)
	reseated := false
	ks := NewKinematicState(arm, func() { reseated = true })

	settings := ks.Snapshot()
	settings.Initialized = true
	settings.DeltaRadius = 130
	settings.Trim = [3]float64{-1, -2, 0}
	if err := ks.Apply(settings); err != nil {
		t.Fatal(err)
	}
	if arm.DeltaRadius() != 130 {
		t.Errorf("expected delta radius pushed to arm solution, got %v", arm.DeltaRadius())
	}
	if !reseated {
		t.Error("expected reseat hook to be called after a geometry write")
	}
	if !ks.Dirty() {
		t.Error("expected geometry_dirty to be set after Apply")
	}
}

// TestIKFKRoundTripIsIdentity exercises the testable property: simulate_IK
// followed by simulate_FK with the same settings and zero trim is
// identity on relative depths, to within floating-point epsilon.
func TestIKFKRoundTripIsIdentity(t *testing.T) {
	arm := NewLinearDeltaSolution(250, 125)
	for _, z := range []float64{0, 1.5, -0.7} {
		actuator := arm.CartesianToActuator(Point3D{X: 10, Y: -20, Z: z})
		back := arm.ActuatorToCartesian(actuator)
		if math.Abs(back.Z-z) > 1e-6 {
			t.Errorf("z=%v: round-trip mismatch, got %v", z, back.Z)
		}
		if math.Abs(back.X-10) > 1e-6 || math.Abs(back.Y-(-20)) > 1e-6 {
			t.Errorf("z=%v: xy round-trip mismatch, got (%v,%v)", z, back.X, back.Y)
		}
	}
}
