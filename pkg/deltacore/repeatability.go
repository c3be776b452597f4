package deltacore

import (
	"gonum.org/v1/gonum/stat"

	hosterrors "klipper-go-migration/pkg/errors"
	golog "klipper-go-migration/pkg/log"
)

const (
	repeatabilityDefaultSamples = 10
	repeatabilityMaxSamples     = 30

	repeatabilityEccentricityRadius = 10.0 // mm
)

// BestProbeCalibration tracks the lowest-sigma probe configuration
// observed across invocations, in process-wide state, mirroring the
// original's "best_probe_calibration" singleton.
type BestProbeCalibration struct {
	HasResult bool
	Sigma     float64
	Range     float64
	Config    ProbeConfig
}

// RepeatabilityResult is the statistical characterization of one run.
type RepeatabilityResult struct {
	Samples      []float64 // mm, per-sample absolute depth
	Mean         float64
	StdDev       float64
	Min          float64
	Max          float64
	Repeatability float64 // steps_to_mm(max - min) in mm terms
}

// RepeatabilityTool runs probe_at(0,0) repeatedly, optionally
// interleaved with moves around the tower-near points to exercise
// mechanical slop, and reports range/mean/stddev plus a running best.
type RepeatabilityTool struct {
	probe  *ProbeAdapter
	motion MotionController
	grid   *Grid
	prefix *prefixStack
	best   BestProbeCalibration
}

// NewRepeatabilityTool wires the tool over its collaborators.
func NewRepeatabilityTool(probe *ProbeAdapter, motion MotionController, grid *Grid, logger *golog.Logger) *RepeatabilityTool {
	return &RepeatabilityTool{probe: probe, motion: motion, grid: grid, prefix: newPrefixStack(logger), best: BestProbeCalibration{Sigma: -1}}
}

// Best returns the best (lowest-sigma) configuration observed so far.
func (r *RepeatabilityTool) Best() BestProbeCalibration { return r.best }

// Run executes nSamples probes (10 when nSamples <= 0; more than 30 is
// rejected with CONFIG_INVALID) at the origin, optionally interleaved with an eccentricity test that visits
// each tower-near point and returns between samples.
func (r *RepeatabilityTool) Run(nSamples int, eccentricityTest bool) (*RepeatabilityResult, error) {
	_, pop := r.prefix.push("PR")
	defer pop()

	if nSamples <= 0 {
		nSamples = repeatabilityDefaultSamples
	}
	if nSamples > repeatabilityMaxSamples {
		return nil, hosterrors.CalConfigInvalidError("samples", "too many samples requested")
	}

	if err := r.probe.Prime(); err != nil {
		return nil, err
	}

	samples := make([]float64, 0, nSamples)
	for i := 0; i < nSamples; i++ {
		if eccentricityTest {
			if err := r.eccentricityMoves(); err != nil {
				return nil, err
			}
		}
		steps, err := r.probe.ProbeAt(0, 0)
		if err != nil {
			return nil, err
		}
		samples = append(samples, float64(steps))
	}

	mean, stddev := stat.MeanStdDev(samples, nil)
	minV, maxV := samples[0], samples[0]
	for _, s := range samples[1:] {
		if s < minV {
			minV = s
		}
		if s > maxV {
			maxV = s
		}
	}

	device := r.probe.Device()
	result := &RepeatabilityResult{
		Samples:       toMM(samples, device),
		Mean:          device.StepsToMM(int(mean)),
		StdDev:        device.StepsToMM(int(stddev)),
		Min:           device.StepsToMM(int(minV)),
		Max:           device.StepsToMM(int(maxV)),
		Repeatability: device.StepsToMM(int(maxV - minV)),
	}

	sigmaMM := result.StdDev
	if !r.best.HasResult || sigmaMM < r.best.Sigma {
		r.best = BestProbeCalibration{
			HasResult: true,
			Sigma:     sigmaMM,
			Range:     result.Repeatability,
			Config:    r.probe.Config(),
		}
	}
	return result, nil
}

func toMM(stepsSamples []float64, device ProbeDevice) []float64 {
	out := make([]float64, len(stepsSamples))
	for i, s := range stepsSamples {
		out[i] = device.StepsToMM(int(s))
	}
	return out
}

// eccentricityMoves walks the probe towards each tower-near point and
// back, to exercise mechanical slop between samples.
func (r *RepeatabilityTool) eccentricityMoves() error {
	const xDeg, yDeg = 0.866025, 0.5
	radius := repeatabilityEccentricityRadius

	moves := [][2]float64{
		{-xDeg * radius, -yDeg * radius}, {0, 0},
		{xDeg * radius, -yDeg * radius}, {0, 0},
		{0, radius}, {0, 0},
	}
	for _, m := range moves {
		if err := r.motion.MoveTo(m[0], m[1], 0); err != nil {
			return err
		}
	}
	return nil
}
