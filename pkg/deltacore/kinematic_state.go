package deltacore

import (
	"math"

	hosterrors "klipper-go-migration/pkg/errors"
)

// ArmSolution is the external arm-solution collaborator: forward and
// inverse kinematics for a linear-delta geometry, with typed accessors
// for the geometric options the calibration core tunes. A real
// implementation talks to the motion controller's kinematics module;
// LinearDeltaSolution is a self-contained adaptation used by tests and
// by the cmd/deltacal-sim demo.
type ArmSolution interface {
	ArmLength() float64
	SetArmLength(mm float64)

	DeltaRadius() float64
	SetDeltaRadius(mm float64)

	TowerRadiusOffset(t Tower) float64
	SetTowerRadiusOffset(t Tower, mm float64)

	TowerAngleOffset(t Tower) float64
	SetTowerAngleOffset(t Tower, degrees float64)

	TowerArmOffset(t Tower) float64
	SetTowerArmOffset(t Tower, mm float64)

	Trim(t Tower) float64
	SetTrim(t Tower, mm float64)

	// CartesianToActuator is the inverse-kinematics routine: effector
	// position -> per-tower carriage height, trim NOT included.
	CartesianToActuator(p Point3D) [3]float64

	// ActuatorToCartesian is the forward-kinematics routine: per-tower
	// carriage height -> effector position, trim NOT included.
	ActuatorToCartesian(actuator [3]float64) Point3D
}

// KinematicSettings is a snapshot of every tunable calibration
// parameter. Trim entries are normalized so max(trim) == 0.
type KinematicSettings struct {
	ArmLength         float64
	DeltaRadius       float64
	Trim              [3]float64
	TowerRadiusOffset [3]float64
	TowerAngleOffset  [3]float64
	TowerArmOffset    [3]float64
	VirtualShimming   [3]float64
	Initialized       bool
}

// NormalizeTrim subtracts the maximum trim value from all three trims,
// so the invariant max(trim) == 0 holds (endstops only pull down).
func (k *KinematicSettings) NormalizeTrim() {
	m := k.Trim[0]
	if k.Trim[1] > m {
		m = k.Trim[1]
	}
	if k.Trim[2] > m {
		m = k.Trim[2]
	}
	k.Trim[0] -= m
	k.Trim[1] -= m
	k.Trim[2] -= m
}

// CaltypeFlags are the five independent optimization switches the
// annealer consults.
type CaltypeFlags struct {
	Endstop         Caltype
	DeltaRadius     Caltype
	ArmLength       Caltype
	TowerAngle      Caltype
	VirtualShimming Caltype
}

// Caltype is one switch: whether a class of variable is being
// optimized, and at what annealing-temperature multiplier.
type Caltype struct {
	Active            bool
	AnnealingTempMul  float64 // in [0, 50]
}

// KinematicState owns the authoritative KinematicSettings snapshot and
// forwards every change to the injected ArmSolution, tracking a
// "geometry dirty" flag per the ordering guarantees in the concurrency
// model: any geometry-changing write must be followed by a
// motion-controller re-seat before the next move.
type KinematicState struct {
	arm     ArmSolution
	reseat  func() // motion controller re-seat hook, called after geometry writes
	current KinematicSettings
	dirty   bool
}

// NewKinematicState creates a KinematicState bound to an ArmSolution. The
// reseat callback is invoked after any write that changes geometry; it
// may be nil if no motion controller is attached (e.g. in tests).
func NewKinematicState(arm ArmSolution, reseat func()) *KinematicState {
	if reseat == nil {
		reseat = func() {}
	}
	ks := &KinematicState{arm: arm, reseat: reseat}
	ks.pull()
	return ks
}

// pull refreshes the cached snapshot from the arm solution.
func (ks *KinematicState) pull() {
	ks.current = KinematicSettings{
		ArmLength:   ks.arm.ArmLength(),
		DeltaRadius: ks.arm.DeltaRadius(),
		Initialized: true,
	}
	for _, t := range []Tower{TowerX, TowerY, TowerZ} {
		ks.current.Trim[t] = ks.arm.Trim(t)
		ks.current.TowerRadiusOffset[t] = ks.arm.TowerRadiusOffset(t)
		ks.current.TowerAngleOffset[t] = ks.arm.TowerAngleOffset(t)
		ks.current.TowerArmOffset[t] = ks.arm.TowerArmOffset(t)
	}
}

// Snapshot returns a copy of the current settings.
func (ks *KinematicState) Snapshot() KinematicSettings { return ks.current }

// Dirty reports whether geometry has changed since the last successful
// iterative calibration.
func (ks *KinematicState) Dirty() bool { return ks.dirty }

// ClearDirty is called after a successful iterative calibration.
func (ks *KinematicState) ClearDirty() { ks.dirty = false }

// Apply pushes settings to the arm solution, normalizes trim, marks
// geometry dirty, and re-seats the motion controller. Returns
// UNINITIALIZED if settings were never populated.
func (ks *KinematicState) Apply(settings KinematicSettings) error {
	if !settings.Initialized {
		return hosterrors.UninitializedError("KinematicSettings")
	}
	settings.NormalizeTrim()

	ks.arm.SetArmLength(settings.ArmLength)
	ks.arm.SetDeltaRadius(settings.DeltaRadius)
	for _, t := range []Tower{TowerX, TowerY, TowerZ} {
		ks.arm.SetTrim(t, settings.Trim[t])
		ks.arm.SetTowerRadiusOffset(t, settings.TowerRadiusOffset[t])
		ks.arm.SetTowerAngleOffset(t, settings.TowerAngleOffset[t])
		ks.arm.SetTowerArmOffset(t, settings.TowerArmOffset[t])
	}
	ks.current = settings
	ks.dirty = true
	ks.reseat()
	return nil
}

// --- LinearDeltaSolution: a self-contained ArmSolution adaptation ---

// LinearDeltaSolution implements ArmSolution for a classic linear-delta
// geometry, adapted from the trilateration-based forward kinematics in
// pkg/kinematics.DeltaKinematics and generalized with the per-tower
// radius/angle/arm offsets the calibration core needs to tune.
type LinearDeltaSolution struct {
	armLength   float64
	radius      float64
	baseAngles  [3]float64 // degrees, default {210, 330, 90}
	towerRAng   [3]float64 // tower_angle_offset, degrees
	towerRRad   [3]float64 // tower_radius_offset, mm
	towerArmOff [3]float64 // tower_arm_offset, mm
	trim        [3]float64
}

// NewLinearDeltaSolution builds a LinearDeltaSolution with default
// (undistorted) tower angles of 210/330/90 degrees for X/Y/Z.
func NewLinearDeltaSolution(armLength, radius float64) *LinearDeltaSolution {
	return &LinearDeltaSolution{
		armLength:  armLength,
		radius:     radius,
		baseAngles: [3]float64{210, 330, 90},
	}
}

func (d *LinearDeltaSolution) ArmLength() float64        { return d.armLength }
func (d *LinearDeltaSolution) SetArmLength(mm float64)    { d.armLength = mm }
func (d *LinearDeltaSolution) DeltaRadius() float64       { return d.radius }
func (d *LinearDeltaSolution) SetDeltaRadius(mm float64)  { d.radius = mm }

func (d *LinearDeltaSolution) TowerRadiusOffset(t Tower) float64 { return d.towerRRad[t] }
func (d *LinearDeltaSolution) SetTowerRadiusOffset(t Tower, mm float64) {
	d.towerRRad[t] = mm
}

func (d *LinearDeltaSolution) TowerAngleOffset(t Tower) float64 { return d.towerRAng[t] }
func (d *LinearDeltaSolution) SetTowerAngleOffset(t Tower, degrees float64) {
	d.towerRAng[t] = degrees
}

func (d *LinearDeltaSolution) TowerArmOffset(t Tower) float64 { return d.towerArmOff[t] }
func (d *LinearDeltaSolution) SetTowerArmOffset(t Tower, mm float64) {
	d.towerArmOff[t] = mm
}

func (d *LinearDeltaSolution) Trim(t Tower) float64         { return d.trim[t] }
func (d *LinearDeltaSolution) SetTrim(t Tower, mm float64)   { d.trim[t] = mm }

// towerXY returns the effective XY position of tower t, incorporating
// the current radius and per-tower radius/angle offsets.
func (d *LinearDeltaSolution) towerXY(t Tower) (x, y float64) {
	angle := (d.baseAngles[t] + d.towerRAng[t]) * math.Pi / 180.0
	r := d.radius + d.towerRRad[t]
	return math.Cos(angle) * r, math.Sin(angle) * r
}

func (d *LinearDeltaSolution) towerArm2(t Tower) float64 {
	a := d.armLength + d.towerArmOff[t]
	return a * a
}

// CartesianToActuator is the inverse-kinematics routine.
func (d *LinearDeltaSolution) CartesianToActuator(p Point3D) [3]float64 {
	var out [3]float64
	for _, t := range []Tower{TowerX, TowerY, TowerZ} {
		tx, ty := d.towerXY(t)
		dx, dy := p.X-tx, p.Y-ty
		out[t] = p.Z + math.Sqrt(d.towerArm2(t)-dx*dx-dy*dy)
	}
	return out
}

// ActuatorToCartesian is the forward-kinematics routine, via
// trilateration of the three tower spheres.
func (d *LinearDeltaSolution) ActuatorToCartesian(actuator [3]float64) Point3D {
	towers := [3][2]float64{}
	arm2 := [3]float64{}
	for _, t := range []Tower{TowerX, TowerY, TowerZ} {
		tx, ty := d.towerXY(t)
		towers[t] = [2]float64{tx, ty}
		arm2[t] = d.towerArm2(t)
	}
	return trilaterate(towers, actuator, arm2)
}

// trilaterate finds the effector position given three tower XY
// positions, three carriage heights, and three squared arm lengths.
// Adapted from kinematics.trilateration.
func trilaterate(towers [3][2]float64, spos [3]float64, arm2 [3]float64) Point3D {
	s1 := [3]float64{towers[0][0], towers[0][1], spos[0]}
	s2 := [3]float64{towers[1][0], towers[1][1], spos[1]}
	s3 := [3]float64{towers[2][0], towers[2][1], spos[2]}

	s21 := [3]float64{s2[0] - s1[0], s2[1] - s1[1], s2[2] - s1[2]}
	s31 := [3]float64{s3[0] - s1[0], s3[1] - s1[1], s3[2] - s1[2]}

	d := math.Sqrt(s21[0]*s21[0] + s21[1]*s21[1] + s21[2]*s21[2])
	ex := [3]float64{s21[0] / d, s21[1] / d, s21[2] / d}

	i := ex[0]*s31[0] + ex[1]*s31[1] + ex[2]*s31[2]
	vey := [3]float64{s31[0] - ex[0]*i, s31[1] - ex[1]*i, s31[2] - ex[2]*i}
	eyMag := math.Sqrt(vey[0]*vey[0] + vey[1]*vey[1] + vey[2]*vey[2])
	ey := [3]float64{vey[0] / eyMag, vey[1] / eyMag, vey[2] / eyMag}

	ez := [3]float64{
		ex[1]*ey[2] - ex[2]*ey[1],
		ex[2]*ey[0] - ex[0]*ey[2],
		ex[0]*ey[1] - ex[1]*ey[0],
	}

	j := ey[0]*s31[0] + ey[1]*s31[1] + ey[2]*s31[2]

	x := (arm2[0] - arm2[1] + d*d) / (2.0 * d)
	y := (arm2[0] - arm2[2] - x*x + (x-i)*(x-i) + j*j) / (2.0 * j)
	z := -math.Sqrt(arm2[0] - x*x - y*y)

	return Point3D{
		X: s1[0] + ex[0]*x + ey[0]*y + ez[0]*z,
		Y: s1[1] + ex[1]*x + ey[1]*y + ez[1]*z,
		Z: s1[2] + ex[2]*x + ey[2]*y + ez[2]*z,
	}
}
