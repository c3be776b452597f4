package deltacore

import (
	hostconfig "klipper-go-migration/pkg/config"
	hosterrors "klipper-go-migration/pkg/errors"
)

// GeometryConfig is the subset of a printer.cfg [delta]/[probe]/
// [delta_calibrate] section this core needs to build its components. It
// mirrors the teacher's config.Section typed-accessor conventions
// (fallback values, bounds checking) rather than introducing a second
// config format.
type GeometryConfig struct {
	ArmLength   float64
	DeltaRadius float64
	ProbeRadius float64
	GridPoints  int
	GridShape   Shape
	Probe       ProbeConfig
}

// DefaultGeometryConfig mirrors NewLinearDeltaSolution's and
// DefaultProbeConfig's own defaults, so a missing config file (or a
// config file missing a section) behaves the same as hand-wiring the
// components directly.
func DefaultGeometryConfig() GeometryConfig {
	return GeometryConfig{
		ArmLength:   250,
		DeltaRadius: 125,
		ProbeRadius: 100,
		GridPoints:  5,
		GridShape:   CIRCLE,
		Probe:       DefaultProbeConfig(),
	}
}

// LoadGeometryConfig reads a Klipper-style printer.cfg from path via
// pkg/config and extracts the [delta], [probe], and [delta_calibrate]
// sections into a GeometryConfig, falling back to
// DefaultGeometryConfig's values for anything absent.
func LoadGeometryConfig(path string) (GeometryConfig, error) {
	cfg := DefaultGeometryConfig()

	hc, err := hostconfig.Load(path)
	if err != nil {
		return cfg, hosterrors.CalConfigInvalidError("config_file", err.Error())
	}

	if sec, err := hc.GetSection("delta"); err == nil {
		if cfg.ArmLength, err = sec.GetFloat("arm_length", cfg.ArmLength); err != nil {
			return cfg, hosterrors.CalConfigInvalidError("arm_length", err.Error())
		}
		if cfg.DeltaRadius, err = sec.GetFloat("delta_radius", cfg.DeltaRadius); err != nil {
			return cfg, hosterrors.CalConfigInvalidError("delta_radius", err.Error())
		}
	}

	if sec, err := hc.GetSection("delta_calibrate"); err == nil {
		if cfg.ProbeRadius, err = sec.GetFloat("radius", cfg.ProbeRadius); err != nil {
			return cfg, hosterrors.CalConfigInvalidError("radius", err.Error())
		}
		if cfg.GridPoints, err = sec.GetInt("speed_points", cfg.GridPoints); err != nil {
			return cfg, hosterrors.CalConfigInvalidError("speed_points", err.Error())
		}
		if shape, err := sec.GetChoice("shape", []string{"circle", "square"}, "circle"); err == nil {
			if shape == "square" {
				cfg.GridShape = SQUARE
			} else {
				cfg.GridShape = CIRCLE
			}
		}
	}

	if sec, err := hc.GetSection("probe"); err == nil {
		if cfg.Probe.Offset.X, err = sec.GetFloat("x_offset", cfg.Probe.Offset.X); err != nil {
			return cfg, hosterrors.CalConfigInvalidError("x_offset", err.Error())
		}
		if cfg.Probe.Offset.Y, err = sec.GetFloat("y_offset", cfg.Probe.Offset.Y); err != nil {
			return cfg, hosterrors.CalConfigInvalidError("y_offset", err.Error())
		}
		if cfg.Probe.Offset.Z, err = sec.GetFloat("z_offset", cfg.Probe.Offset.Z); err != nil {
			return cfg, hosterrors.CalConfigInvalidError("z_offset", err.Error())
		}
		if cfg.Probe.Smoothing, err = sec.GetInt("samples", cfg.Probe.Smoothing); err != nil {
			return cfg, hosterrors.CalConfigInvalidError("samples", err.Error())
		}
		if cfg.Probe.FastFeedrate, err = sec.GetFloat("speed", cfg.Probe.FastFeedrate); err != nil {
			return cfg, hosterrors.CalConfigInvalidError("speed", err.Error())
		}
		if cfg.Probe.SlowFeedrate, err = sec.GetFloat("lift_speed", cfg.Probe.SlowFeedrate); err != nil {
			return cfg, hosterrors.CalConfigInvalidError("lift_speed", err.Error())
		}
	}

	return cfg, nil
}

// BuildArm constructs the arm solution this config describes.
func (g GeometryConfig) BuildArm() *LinearDeltaSolution {
	return NewLinearDeltaSolution(g.ArmLength, g.DeltaRadius)
}

// BuildGrid constructs the probe grid this config describes.
func (g GeometryConfig) BuildGrid() (*Grid, error) {
	return BuildGrid(g.ProbeRadius, g.GridPoints, g.GridShape)
}
