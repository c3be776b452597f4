package deltacore

import (
	"math"
	"testing"

	teacherkin "klipper-go-migration/pkg/kinematics"
)

// newTeacherDeltaKinematics builds the teacher's own trilateration-based
// kinematics (pkg/kinematics.DeltaKinematics) over the same geometry
// LinearDeltaSolution was adapted from, for cross-checking the
// calibration core's arm solution against its grounding source rather
// than only against itself.
func newTeacherDeltaKinematics(t *testing.T, armLength, radius float64) *teacherkin.DeltaKinematics {
	t.Helper()
	dk, err := teacherkin.NewDeltaKinematics(teacherkin.DeltaConfig{
		Radius:       radius,
		ArmLengths:   []float64{armLength, armLength, armLength},
		Angles:       []float64{210, 330, 90},
		Endstops:     []float64{armLength, armLength, armLength},
		MinZ:         0,
		MaxVelocity:  300,
		MaxAccel:     3000,
		MaxZVelocity: 30,
		MaxZAccel:    300,
	})
	if err != nil {
		t.Fatalf("teacher DeltaKinematics construction failed: %v", err)
	}
	return dk
}

// TestLinearDeltaSolutionMatchesTeacherIKOnUntrimmedGeometry checks that
// the calibration core's inverse kinematics agrees with the teacher's
// CalcStepperPosition on an untrimmed (no tower offsets) geometry, the
// shared baseline both implementations trilaterate against.
func TestLinearDeltaSolutionMatchesTeacherIKOnUntrimmedGeometry(t *testing.T) {
	const armLength, radius = 250.0, 125.0
	arm := NewLinearDeltaSolution(armLength, radius)
	teacher := newTeacherDeltaKinematics(t, armLength, radius)

	points := []Point3D{
		{X: 0, Y: 0, Z: 0},
		{X: 30, Y: -20, Z: 50},
		{X: -40, Y: 10, Z: -10},
	}

	for _, p := range points {
		got := arm.CartesianToActuator(p)
		want := teacher.CalcStepperPosition([]float64{p.X, p.Y, p.Z})
		teacherOut := [3]float64{want["stepper_a"], want["stepper_b"], want["stepper_c"]}
		for i := range got {
			if math.Abs(got[i]-teacherOut[i]) > 1e-9 {
				t.Errorf("point %+v tower %d: core=%v teacher=%v", p, i, got[i], teacherOut[i])
			}
		}
	}
}

// TestLinearDeltaSolutionRoundTripsThroughTeacherTrilateration checks
// that feeding the core's own actuator (carriage) heights into the
// teacher's trilateration-based forward kinematics reproduces the
// original cartesian point, confirming both implementations solve the
// same sphere-intersection problem.
func TestLinearDeltaSolutionRoundTripsThroughTeacherTrilateration(t *testing.T) {
	const armLength, radius = 250.0, 125.0
	arm := NewLinearDeltaSolution(armLength, radius)
	teacher := newTeacherDeltaKinematics(t, armLength, radius)

	p := Point3D{X: 15, Y: -25, Z: 5}
	actuator := arm.CartesianToActuator(p)

	stepperPos := map[string]float64{
		"stepper_a": actuator[0],
		"stepper_b": actuator[1],
		"stepper_c": actuator[2],
	}
	back := teacher.CalcPosition(stepperPos)

	if math.Abs(back[0]-p.X) > 1e-6 || math.Abs(back[1]-p.Y) > 1e-6 || math.Abs(back[2]-p.Z) > 1e-6 {
		t.Errorf("round trip through teacher trilateration: got %v, want %+v", back, p)
	}
}
