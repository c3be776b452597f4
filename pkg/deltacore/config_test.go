package deltacore

import (
	"os"
	"path/filepath"
	"testing"
)

const testPrinterCfg = `
[delta]
arm_length: 260
delta_radius: 130

[probe]
x_offset: 1.5
y_offset: -2.0
z_offset: 0
speed: 10
lift_speed: 6
samples: 3

[delta_calibrate]
radius: 120
speed_points: 7
shape: square
`

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "printer.cfg")
	if err := os.WriteFile(path, []byte(testPrinterCfg), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadGeometryConfigReadsDeltaProbeAndCalibrateSections(t *testing.T) {
	path := writeTestConfig(t)
	cfg, err := LoadGeometryConfig(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.ArmLength != 260 || cfg.DeltaRadius != 130 {
		t.Errorf("expected arm_length=260 delta_radius=130, got %+v", cfg)
	}
	if cfg.ProbeRadius != 120 || cfg.GridPoints != 7 || cfg.GridShape != SQUARE {
		t.Errorf("expected radius=120 speed_points=7 shape=SQUARE, got %+v", cfg)
	}
	if cfg.Probe.Offset.X != 1.5 || cfg.Probe.Offset.Y != -2.0 {
		t.Errorf("expected probe offsets 1.5,-2.0, got %+v", cfg.Probe.Offset)
	}
	if cfg.Probe.Smoothing != 3 {
		t.Errorf("expected samples=3 to set Smoothing=3, got %d", cfg.Probe.Smoothing)
	}
	if cfg.Probe.FastFeedrate != 10 || cfg.Probe.SlowFeedrate != 6 {
		t.Errorf("expected speed=10 lift_speed=6, got fast=%v slow=%v", cfg.Probe.FastFeedrate, cfg.Probe.SlowFeedrate)
	}

	arm := cfg.BuildArm()
	if arm.ArmLength() != 260 || arm.DeltaRadius() != 130 {
		t.Errorf("BuildArm did not apply loaded geometry: %+v", arm)
	}

	grid, err := cfg.BuildGrid()
	if err != nil {
		t.Fatal(err)
	}
	if grid.N != 7 || grid.ProbeRadius != 120 || grid.Shape != SQUARE {
		t.Errorf("BuildGrid did not apply loaded geometry: N=%d radius=%v shape=%v", grid.N, grid.ProbeRadius, grid.Shape)
	}
}

func TestDefaultGeometryConfigMatchesHandWiredDefaults(t *testing.T) {
	cfg := DefaultGeometryConfig()
	arm := cfg.BuildArm()
	if arm.ArmLength() != 250 || arm.DeltaRadius() != 125 {
		t.Errorf("expected default arm_length=250 delta_radius=125, got %+v", arm)
	}
	grid, err := cfg.BuildGrid()
	if err != nil {
		t.Fatal(err)
	}
	if grid.N != 5 || grid.ProbeRadius != 100 || grid.Shape != CIRCLE {
		t.Errorf("expected default N=5 radius=100 shape=CIRCLE, got N=%d radius=%v shape=%v", grid.N, grid.ProbeRadius, grid.Shape)
	}
}

func TestLoadGeometryConfigRejectsMissingFile(t *testing.T) {
	if _, err := LoadGeometryConfig(filepath.Join(t.TempDir(), "missing.cfg")); err == nil {
		t.Error("expected an error for a missing config file")
	}
}
