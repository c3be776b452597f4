package deltacore

import (
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	golog "klipper-go-migration/pkg/log"
)

const (
	annealerPerVariableTarget = 0.005 // mm, 5 micron
	annealerGlobalTarget      = 0.010 // mm, 10 micron
	annealerBinsearchRounds   = 250
	annealerStallWindow       = 6
	annealerStallSigma        = 0.01
	annealerMinTemp           = 0.01

	trimHalfWidth         = 2.5
	deltaRadiusHalfWidth  = 5.0
	armLengthHalfWidth    = 5.0
	towerOffsetHalfWidth  = 3.0
	towerAngleHalfWidth   = 3.0
	virtualShimHalfWidth  = 3.0
)

// AnnealerConfig holds the user-tunable bounds of a heuristic
// calibration run (G31's T/U/V/W parameters).
type AnnealerConfig struct {
	Tries           int     // [10, 1000]
	MaxTemp         float64 // [0, 2]
	BinsearchWidth  float64 // [0, 0.5]
	OverrunDivisor  float64 // [0.5, 15]
}

// ClampedConfig returns cfg with every field clamped to its valid range.
func (cfg AnnealerConfig) ClampedConfig() AnnealerConfig {
	cfg.Tries = clampInt(cfg.Tries, 10, 1000)
	cfg.MaxTemp = clampFloat(cfg.MaxTemp, 0, 2)
	cfg.BinsearchWidth = clampFloat(cfg.BinsearchWidth, 0, 0.5)
	cfg.OverrunDivisor = clampFloat(cfg.OverrunDivisor, 0.5, 15)
	return cfg
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// AnnealerResult reports the outcome of a Run.
type AnnealerResult struct {
	Iterations    int
	FinalEnergy   float64
	EnergyRange   float64 // max-min of the last sampled stall window
	Stalled       bool
	ReachedTarget bool
}

// tunable is one scalar optimization target: the tagged-enum redesign
// of the original's pointer-to-member-function dispatch. Each tunable
// owns a get/apply closure pair over either a KinematicSettings field
// or the injected ArmSolution, so the annealer's binary search and
// random-move steps are generic over all five caltypes.
type tunable struct {
	get       func() float64
	apply     func(value float64)
	halfWidth float64
}

// Annealer is the parallel coordinate-wise simulated annealing
// optimizer: for each active caltype's scalar variables, it binary
// searches for an energy-minimizing direction, then takes a
// temperature-scaled random step towards it.
type Annealer struct {
	grid    *Grid
	arm     ArmSolution
	energy  *EnergyModel
	surface *SurfaceTransform
	prefix  *prefixStack
	rng     *rand.Rand
	yield   func()

	// NormalizeArmOffsets gates the tower_arm_offset vs arm_length
	// normalization that exists only in the original's dead code path;
	// default false to match the live annealer's behavior.
	NormalizeArmOffsets bool
}

// NewAnnealer wires an Annealer over its collaborators. yield may be
// nil. seed seeds the perturbation RNG (tests should pass a fixed seed
// for determinism; production call sites can derive one from time).
func NewAnnealer(grid *Grid, arm ArmSolution, energy *EnergyModel, surface *SurfaceTransform, logger *golog.Logger, yield func(), seed int64) *Annealer {
	if yield == nil {
		yield = func() {}
	}
	return &Annealer{
		grid: grid, arm: arm, energy: energy, surface: surface,
		prefix: newPrefixStack(logger), rng: rand.New(rand.NewSource(seed)), yield: yield,
	}
}

// Run executes the annealing schedule over axis (the frozen per-point
// carriage-height cache from EnergyModel.SimulateIK) against the given
// flags and config. trim is read/written via the ArmSolution directly.
func (a *Annealer) Run(cfg AnnealerConfig, axis AxisPositions, flags CaltypeFlags) (*AnnealerResult, error) {
	_, pop := a.prefix.push("HC")
	defer pop()

	cfg = cfg.ClampedConfig()
	flags = clampAnnealingMuls(flags)

	result := &AnnealerResult{}
	window := make([]float64, 0, annealerStallWindow)

	for tryN := 0; tryN < cfg.Tries; tryN++ {
		result.Iterations = tryN + 1
		tempFraction := float64(tryN) / float64(cfg.Tries)
		temp := cfg.MaxTemp - tempFraction*cfg.MaxTemp
		if temp < annealerMinTemp {
			temp = annealerMinTemp
		}

		if flags.DeltaRadius.Active {
			a.stepDeltaRadius(axis, cfg, temp*flags.DeltaRadius.AnnealingTempMul)
		}
		if flags.ArmLength.Active {
			a.stepArmLength(axis, cfg, temp*flags.ArmLength.AnnealingTempMul)
		}
		if flags.Endstop.Active {
			a.stepEndstops(axis, cfg, temp*flags.Endstop.AnnealingTempMul)
		}
		if flags.TowerAngle.Active {
			a.stepTowerAngle(axis, cfg, temp*flags.TowerAngle.AnnealingTempMul)
		}
		if flags.VirtualShimming.Active {
			a.stepVirtualShimming(axis, cfg, temp*flags.VirtualShimming.AnnealingTempMul)
		}

		if tryN%5 == 0 {
			e := a.currentEnergy(axis)
			window = append(window, e)
			if len(window) > annealerStallWindow {
				window = window[1:]
			}
			if len(window) == annealerStallWindow {
				_, sigma := stat.MeanStdDev(window, nil)
				result.EnergyRange = floats.Max(window) - floats.Min(window)
				if sigma < annealerStallSigma {
					result.Stalled = true
					result.FinalEnergy = e
					return result, nil
				}
			}
			if e <= annealerGlobalTarget {
				result.ReachedTarget = true
				result.FinalEnergy = e
				return result, nil
			}
		}

		a.yield()
	}

	result.FinalEnergy = a.currentEnergy(axis)
	return result, nil
}

func (a *Annealer) currentEnergy(axis AxisPositions) float64 {
	trim := [3]float64{a.arm.Trim(TowerX), a.arm.Trim(TowerY), a.arm.Trim(TowerZ)}
	return a.energy.SimulateFKAndComputeEnergy(axis, trim)
}

// optimalValue performs the binary search for the energy-minimizing
// value of one tunable, within [current-halfWidth, current+halfWidth].
func (a *Annealer) optimalValue(t tunable, axis AxisPositions, binsearchWidth float64) float64 {
	current := t.get()
	min := current - t.halfWidth
	max := current + t.halfWidth

	readTrim := func() [3]float64 {
		return [3]float64{a.arm.Trim(TowerX), a.arm.Trim(TowerY), a.arm.Trim(TowerZ)}
	}

	for round := 0; round < annealerBinsearchRounds; round++ {
		t.apply(min)
		energyMin := a.energy.SimulateFKAndComputeEnergy(axis, readTrim())

		t.apply(max)
		energyMax := a.energy.SimulateFKAndComputeEnergy(axis, readTrim())

		if max-min <= annealerPerVariableTarget {
			break
		}
		if energyMin < energyMax {
			max -= (max - min) * binsearchWidth
		} else if energyMin > energyMax {
			min += (max - min) * binsearchWidth
		}
	}

	t.apply(current) // restore; the caller decides the real move
	return (min + max) / 2.0
}

// moveRandomlyTowards nudges value towards best by a temperature-scaled
// random step, never overshooting best by more than step/overrunDivisor.
func (a *Annealer) moveRandomlyTowards(value, best, temp, overrunDivisor float64) float64 {
	step := a.rng.Float64()*temp + 0.001

	if best > value+annealerPerVariableTarget {
		if value+step > best {
			step /= overrunDivisor
		}
		value += step
	} else if best < value-annealerPerVariableTarget {
		if value-step < best {
			step /= overrunDivisor
		}
		value -= step
	}
	return value
}

func (a *Annealer) stepDeltaRadius(axis AxisPositions, cfg AnnealerConfig, scaledTemp float64) {
	var offsets [3]float64
	for _, t := range []Tower{TowerX, TowerY, TowerZ} {
		offsets[t] = a.arm.TowerRadiusOffset(t)
		tt := tunable{
			get:       func() float64 { return a.arm.TowerRadiusOffset(t) },
			apply:     func(v float64) { a.arm.SetTowerRadiusOffset(t, v) },
			halfWidth: towerOffsetHalfWidth,
		}
		best := a.optimalValue(tt, axis, cfg.BinsearchWidth)
		offsets[t] = a.moveRandomlyTowards(offsets[t], best, scaledTemp, cfg.OverrunDivisor)
		a.arm.SetTowerRadiusOffset(t, offsets[t])
	}

	lowestIdx, lowestAbs := 0, abs(offsets[0])
	for i := 1; i < 3; i++ {
		if abs(offsets[i]) < lowestAbs {
			lowestAbs = abs(offsets[i])
			lowestIdx = i
		}
	}
	lowest := offsets[lowestIdx]
	for _, t := range []Tower{TowerX, TowerY, TowerZ} {
		a.arm.SetTowerRadiusOffset(t, offsets[t]-lowest)
	}
	a.arm.SetDeltaRadius(a.arm.DeltaRadius() + lowest)
}

func (a *Annealer) stepArmLength(axis AxisPositions, cfg AnnealerConfig, scaledTemp float64) {
	tt := tunable{
		get:       func() float64 { return a.arm.ArmLength() },
		apply:     func(v float64) { a.arm.SetArmLength(v) },
		halfWidth: armLengthHalfWidth,
	}
	best := a.optimalValue(tt, axis, cfg.BinsearchWidth)
	newVal := a.moveRandomlyTowards(a.arm.ArmLength(), best, scaledTemp, cfg.OverrunDivisor)
	a.arm.SetArmLength(newVal)

	if !a.NormalizeArmOffsets {
		return
	}
	var offsets [3]float64
	for _, t := range []Tower{TowerX, TowerY, TowerZ} {
		offsets[t] = a.arm.TowerArmOffset(t)
	}
	lowestIdx, lowestAbs := 0, abs(offsets[0])
	for i := 1; i < 3; i++ {
		if abs(offsets[i]) < lowestAbs {
			lowestAbs = abs(offsets[i])
			lowestIdx = i
		}
	}
	lowest := offsets[lowestIdx]
	for _, t := range []Tower{TowerX, TowerY, TowerZ} {
		a.arm.SetTowerArmOffset(t, offsets[t]-lowest)
	}
	a.arm.SetArmLength(a.arm.ArmLength() + lowest)
}

func (a *Annealer) stepEndstops(axis AxisPositions, cfg AnnealerConfig, scaledTemp float64) {
	var trim [3]float64
	for _, t := range []Tower{TowerX, TowerY, TowerZ} {
		trim[t] = a.arm.Trim(t)
		tt := tunable{
			get:       func() float64 { return a.arm.Trim(t) },
			apply:     func(v float64) { a.arm.SetTrim(t, v) },
			halfWidth: trimHalfWidth,
		}
		best := a.optimalValue(tt, axis, cfg.BinsearchWidth)
		trim[t] = a.moveRandomlyTowards(trim[t], best, scaledTemp, cfg.OverrunDivisor)
	}
	for _, t := range []Tower{TowerX, TowerY, TowerZ} {
		a.arm.SetTrim(t, trim[t])
	}
}

func (a *Annealer) stepTowerAngle(axis AxisPositions, cfg AnnealerConfig, scaledTemp float64) {
	var angles [3]float64
	for _, t := range []Tower{TowerX, TowerY, TowerZ} {
		angles[t] = a.arm.TowerAngleOffset(t)
		tt := tunable{
			get:       func() float64 { return a.arm.TowerAngleOffset(t) },
			apply:     func(v float64) { a.arm.SetTowerAngleOffset(t, v) },
			halfWidth: towerAngleHalfWidth,
		}
		best := a.optimalValue(tt, axis, cfg.BinsearchWidth)
		angles[t] = a.moveRandomlyTowards(angles[t], best, scaledTemp, cfg.OverrunDivisor)
	}
	for _, t := range []Tower{TowerX, TowerY, TowerZ} {
		a.arm.SetTowerAngleOffset(t, angles[t])
	}
}

func (a *Annealer) stepVirtualShimming(axis AxisPositions, cfg AnnealerConfig, scaledTemp float64) {
	var shim [3]float64
	shim[TowerX] = a.surface.TriPointZ(TowerX)
	shim[TowerY] = a.surface.TriPointZ(TowerY)
	shim[TowerZ] = a.surface.TriPointZ(TowerZ)

	for _, t := range []Tower{TowerX, TowerY, TowerZ} {
		tIdx := t
		tt := tunable{
			get: func() float64 { return shim[tIdx] },
			apply: func(v float64) {
				s := shim
				s[tIdx] = v
				a.surface.SetVirtualShimming(s[0], s[1], s[2])
			},
			halfWidth: virtualShimHalfWidth,
		}
		best := a.optimalValue(tt, axis, cfg.BinsearchWidth)
		shim[tIdx] = a.moveRandomlyTowards(shim[tIdx], best, scaledTemp, cfg.OverrunDivisor)
	}
	a.surface.SetVirtualShimming(shim[0], shim[1], shim[2])
}

// clampAnnealingMuls ensures no caltype's multiplier is zero (which
// would shrink its random perturbation to the fixed minimum step) or
// outside [0, 50].
func clampAnnealingMuls(flags CaltypeFlags) CaltypeFlags {
	fix := func(c Caltype) Caltype {
		if c.AnnealingTempMul == 0 {
			c.AnnealingTempMul = 1
		}
		c.AnnealingTempMul = clampFloat(c.AnnealingTempMul, 0, 50)
		return c
	}
	flags.Endstop = fix(flags.Endstop)
	flags.DeltaRadius = fix(flags.DeltaRadius)
	flags.ArmLength = fix(flags.ArmLength)
	flags.TowerAngle = fix(flags.TowerAngle)
	flags.VirtualShimming = fix(flags.VirtualShimming)
	return flags
}
