package deltacore

import (
	"strings"
	"testing"

	golog "klipper-go-migration/pkg/log"
)

func TestParseCommandTokenizesArgsAndStripsParenComment(t *testing.T) {
	c, err := ParseCommand("g29 S5 E ; trailing line comment")
	if err != nil {
		t.Fatal(err)
	}
	if c.Name != "G29" {
		t.Errorf("expected upper-cased name G29, got %q", c.Name)
	}
	if c.Args["S"] != "5" {
		t.Errorf("expected S=5, got %q", c.Args["S"])
	}
	if v, ok := c.Args["E"]; !ok || v != "" {
		t.Errorf("expected bare flag E present with empty value, got %q (ok=%v)", v, ok)
	}

	c2, err := ParseCommand("G1 X10 (feed rate note) Y20")
	if err != nil {
		t.Fatal(err)
	}
	if c2.Args["X"] != "10" || c2.Args["Y"] != "20" {
		t.Errorf("expected parenthetical comment stripped, got args=%+v", c2.Args)
	}
}

func TestParseCommandRejectsEmptyLine(t *testing.T) {
	if _, err := ParseCommand("   ; only a comment"); err == nil {
		t.Error("expected an error for a comment-only line")
	}
}

func newTestEngine(t *testing.T) (*Engine, ArmSolution, *KinematicState) {
	t.Helper()
	arm := NewLinearDeltaSolution(250, 125)
	grid, err := BuildGrid(100, 5, CIRCLE)
	if err != nil {
		t.Fatal(err)
	}
	surface := NewSurfaceTransform(grid)
	kinematics := NewKinematicState(arm, nil)
	logger := golog.New("test")
	engine := NewEngine(grid, arm, kinematics, nil, surface, nil, nil, nil, nil, nil, logger, 5)
	return engine, arm, kinematics
}

func TestHandleM665SetsGeometryAndMarksDirty(t *testing.T) {
	engine, arm, kinematics := newTestEngine(t)

	if err := engine.HandleM665("M665 T260 R130"); err != nil {
		t.Fatal(err)
	}
	if arm.ArmLength() != 260 {
		t.Errorf("expected arm length 260, got %v", arm.ArmLength())
	}
	if arm.DeltaRadius() != 130 {
		t.Errorf("expected delta radius 130, got %v", arm.DeltaRadius())
	}
	if !kinematics.Dirty() {
		t.Error("expected geometry_dirty set after M665")
	}
}

func TestHandleM666MarksDirtyWithoutChangingGeometry(t *testing.T) {
	engine, arm, kinematics := newTestEngine(t)
	before := arm.DeltaRadius()

	if err := engine.HandleM666("M666"); err != nil {
		t.Fatal(err)
	}
	if arm.DeltaRadius() != before {
		t.Errorf("expected M666 to leave delta radius unchanged, got %v", arm.DeltaRadius())
	}
	if !kinematics.Dirty() {
		t.Error("expected geometry_dirty set after M666")
	}
}

func TestHandleM667SetsShimmingAndFlags(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	if err := engine.HandleM667("M667 A1 B2 C3 D1 E0 Z1"); err != nil {
		t.Fatal(err)
	}
	if engine.Surface.TriPointZ(TowerX) != 1 || engine.Surface.TriPointZ(TowerY) != 2 || engine.Surface.TriPointZ(TowerZ) != 3 {
		t.Errorf("expected tri-point Z values 1,2,3, got %v,%v,%v",
			engine.Surface.TriPointZ(TowerX), engine.Surface.TriPointZ(TowerY), engine.Surface.TriPointZ(TowerZ))
	}
	if !engine.Surface.PlaneEnabled() {
		t.Error("expected plane_enabled true after D1")
	}
	if engine.Surface.DepthEnabled() {
		t.Error("expected depth_enabled false after E0")
	}
	if !engine.Surface.Active() {
		t.Error("expected active true after Z1")
	}
}

func TestHandleM500EmitsCurrentM667Line(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	if err := engine.HandleM667("M667 A1 B2 C3 D1 E0 Z1"); err != nil {
		t.Fatal(err)
	}

	var buf strings.Builder
	if err := engine.HandleM500(&buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "M667 A1.00000 B2.00000 C3.00000") {
		t.Errorf("unexpected M500 output: %q", out)
	}
	if !strings.Contains(out, "D1 E0 Z1") {
		t.Errorf("expected flags D1 E0 Z1 in M500 output: %q", out)
	}
}

// TestGeometryDirtyClearedOnlyAfterG32Converges is the ordering
// guarantee from the command surface: M665 marks geometry dirty, and
// only a converged G32 run clears it.
func TestGeometryDirtyClearedOnlyAfterG32Converges(t *testing.T) {
	arm := NewLinearDeltaSolution(250, 125)
	grid, err := BuildGrid(100, 5, CIRCLE)
	if err != nil {
		t.Fatal(err)
	}
	surface := NewSurfaceTransform(grid)
	motion := &fakeIterMotion{accel: 800}
	device := &fakeIterDevice{arm: arm, motion: motion, probeRadius: grid.ProbeRadius, trueBias: [3]float64{0.2, -0.1, 0.05}}
	probe := NewProbeAdapter(motion, motion, device, DefaultProbeConfig())
	logger := golog.New("test")
	iterative := NewIterativeCalibrator(probe, arm, surface, grid, logger)
	kinematics := NewKinematicState(arm, nil)
	engine := NewEngine(grid, arm, kinematics, probe, surface, nil, iterative, nil, nil, nil, logger, 5)

	if err := engine.HandleM665("M665 T260"); err != nil {
		t.Fatal(err)
	}
	if !kinematics.Dirty() {
		t.Fatal("expected dirty after M665")
	}

	result, err := engine.HandleG32("G32")
	if err != nil {
		t.Fatal(err)
	}
	if !result.Converged {
		t.Fatalf("expected G32 to converge, got %+v", result)
	}
	if kinematics.Dirty() {
		t.Error("expected geometry_dirty cleared after a converged G32")
	}
}

func TestHandleG29AppliesConfigOverrides(t *testing.T) {
	grid, err := BuildGrid(100, 5, CIRCLE)
	if err != nil {
		t.Fatal(err)
	}
	motion := &fakeRepeatMotion{}
	device := &fakeRepeatDevice{samples: []int{10000}}
	probe := NewProbeAdapter(motion, motion, device, DefaultProbeConfig())
	logger := golog.New("test")
	repeat := NewRepeatabilityTool(probe, motion, grid, logger)
	arm := NewLinearDeltaSolution(250, 125)
	kinematics := NewKinematicState(arm, nil)
	engine := NewEngine(grid, arm, kinematics, probe, nil, nil, nil, nil, nil, repeat, logger, 5)

	result, err := engine.HandleG29("G29 S3 Q2 P1 D1")
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Samples) != 3 {
		t.Errorf("expected 3 samples, got %d", len(result.Samples))
	}
	cfg := probe.Config()
	if cfg.Smoothing != 2 {
		t.Errorf("expected Q to set smoothing to 2, got %d", cfg.Smoothing)
	}
	if cfg.Priming != 1 {
		t.Errorf("expected P to set priming to 1, got %d", cfg.Priming)
	}
	if !cfg.DecelerateOnTrigger {
		t.Error("expected D1 to enable decelerate-on-trigger")
	}
}
