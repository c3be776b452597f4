package deltacore

import (
	"math"

	"gonum.org/v1/gonum/floats"

	hosterrors "klipper-go-migration/pkg/errors"
	golog "klipper-go-migration/pkg/log"
)

const (
	iterativeTarget     = 0.03 // mm, 30 micron convergence target
	iterativeMaxOuter   = 20
	trimFatalThreshold  = -5.0 // mm; trim below this is GEOMETRY_OUT_OF_RANGE
	initialTrimscale    = 1.3
	trimscaleDecay      = 0.9
	trimscaleDecayFloor = 0.9
	deltaRadiusFactor   = 2.0
)

// towerProbePoints are the four points the iterative calibrator probes
// each round: center, then near each tower (towers sit 60 degrees off
// the centerline).
func towerProbePoints(probeRadius float64) [4]Point2D {
	const xDeg = 0.866025
	const yDeg = 0.5
	return [4]Point2D{
		{X: 0, Y: 0},
		{X: -xDeg * probeRadius, Y: -yDeg * probeRadius}, // X tower
		{X: xDeg * probeRadius, Y: -yDeg * probeRadius},  // Y tower
		{X: 0, Y: probeRadius},                           // Z tower
	}
}

// IterativeCalibrator is the coarse classical endstop+radius corrector,
// converging in at most iterativeMaxOuter rounds of four probes each.
type IterativeCalibrator struct {
	probe   *ProbeAdapter
	arm     ArmSolution
	surface *SurfaceTransform
	grid    *Grid
	prefix  *prefixStack

	trimscale      float64
	lastDeviation  float64
}

// NewIterativeCalibrator wires the calibrator over its collaborators.
func NewIterativeCalibrator(probe *ProbeAdapter, arm ArmSolution, surface *SurfaceTransform, grid *Grid, logger *golog.Logger) *IterativeCalibrator {
	return &IterativeCalibrator{
		probe: probe, arm: arm, surface: surface, grid: grid,
		prefix: newPrefixStack(logger), trimscale: initialTrimscale, lastDeviation: 999,
	}
}

// IterativeResult reports the outcome of a Run.
type IterativeResult struct {
	Converged  bool
	Iterations int
}

// Run performs the iterative endstop+delta-radius calibration. The
// surface plane is disabled for the duration, since it would confound
// this coarse method. When keepSettings is false, trim, tower offsets,
// and virtual shimming are reset to zero before starting.
func (c *IterativeCalibrator) Run(keepSettings bool) (*IterativeResult, error) {
	_, pop := c.prefix.push("IC")
	defer pop()

	savedPlane := c.surface.PlaneEnabled()
	c.surface.SetPlaneEnabled(false)
	defer c.surface.SetPlaneEnabled(savedPlane)

	if !keepSettings {
		for _, t := range []Tower{TowerX, TowerY, TowerZ} {
			c.arm.SetTrim(t, 0)
			c.arm.SetTowerRadiusOffset(t, 0)
			c.arm.SetTowerAngleOffset(t, 0)
			c.arm.SetTowerArmOffset(t, 0)
		}
		c.surface.SetVirtualShimming(0, 0, 0)
	}

	points := towerProbePoints(c.grid.ProbeRadius)
	c.trimscale = initialTrimscale
	c.lastDeviation = 999

	var result IterativeResult
	for i := 0; i < iterativeMaxOuter; i++ {
		result.Iterations = i + 1

		var depth [4]float64
		for k, p := range points {
			steps, err := c.probe.ProbeAt(p.X, p.Y)
			if err != nil {
				return &result, err
			}
			depth[k] = c.probe.Device().StepsToMM(steps)
		}

		minD := floats.Min(depth[:])
		maxD := floats.Max(depth[:])
		towerDeviation := maxD - minD

		endstopOK, err := c.stepEndstops(depth, minD, towerDeviation)
		if err != nil {
			return &result, err
		}
		drOK := c.stepDeltaRadius(depth)

		if endstopOK && drOK {
			result.Converged = true
			return &result, nil
		}
	}
	return &result, nil
}

// stepEndstops runs one round of the endstop-trim correction.
func (c *IterativeCalibrator) stepEndstops(depth [4]float64, minD, towerDeviation float64) (bool, error) {
	_, pop := c.prefix.push("ES")
	defer pop()

	if math.Abs(towerDeviation) <= iterativeTarget {
		return true, nil
	}

	var trim [3]float64
	for _, t := range []Tower{TowerX, TowerY, TowerZ} {
		trim[t] = c.arm.Trim(t)
	}
	for i := range trim {
		if trim[i] > 0 {
			trim[i] = 0
		}
	}
	for i := range trim {
		if trim[i] < trimFatalThreshold {
			return false, hosterrors.GeometryOutOfRangeError("trim", trim[i], trimFatalThreshold)
		}
	}

	if towerDeviation >= c.lastDeviation && c.trimscale*trimscaleDecay >= trimscaleDecayFloor {
		c.trimscale *= trimscaleDecay
	}
	c.lastDeviation = towerDeviation

	trim[0] += (minD - depth[1]) * c.trimscale // TowerX depth is depth[1]
	trim[1] += (minD - depth[2]) * c.trimscale // TowerY depth is depth[2]
	trim[2] += (minD - depth[3]) * c.trimscale // TowerZ depth is depth[3]

	m := trim[0]
	if trim[1] > m {
		m = trim[1]
	}
	if trim[2] > m {
		m = trim[2]
	}
	trim[0] -= m
	trim[1] -= m
	trim[2] -= m

	c.arm.SetTrim(TowerX, trim[0])
	c.arm.SetTrim(TowerY, trim[1])
	c.arm.SetTrim(TowerZ, trim[2])
	return false, nil
}

// stepDeltaRadius runs one round of the delta-radius correction.
func (c *IterativeCalibrator) stepDeltaRadius(depth [4]float64) bool {
	_, pop := c.prefix.push("DR")
	defer pop()

	avg := (depth[1] + depth[2] + depth[3]) / 3.0
	deviation := depth[0] - avg
	if math.Abs(deviation) <= iterativeTarget {
		return true
	}

	c.arm.SetDeltaRadius(c.arm.DeltaRadius() + deviation*deltaRadiusFactor)
	return false
}
