package deltacore

import (
	"testing"

	golog "klipper-go-migration/pkg/log"
)

type fakeRepeatMotion struct{ moveCount int }

func (m *fakeRepeatMotion) MoveTo(x, y, z float64) error { m.moveCount++; return nil }
func (m *fakeRepeatMotion) Home() error                  { return nil }
func (m *fakeRepeatMotion) SetZMax(mm float64)           {}
func (m *fakeRepeatMotion) ReseatAxisPosition()          {}
func (m *fakeRepeatMotion) GetAcceleration() float64     { return 800 }
func (m *fakeRepeatMotion) SetAcceleration(v float64)    {}

const repeatStepsPerMM = 1000.0

type fakeRepeatDevice struct {
	samples []int
	idx     int
}

func (d *fakeRepeatDevice) RunProbe() (int, error) {
	v := d.samples[d.idx%len(d.samples)]
	d.idx++
	return v, nil
}
func (d *fakeRepeatDevice) ReturnProbe(steps int) error { return nil }
func (d *fakeRepeatDevice) StepsAtDecelEnd() int        { return 0 }
func (d *fakeRepeatDevice) StepsToMM(steps int) float64 { return float64(steps) / repeatStepsPerMM }

func newRepeatTool(t *testing.T, samples []int) (*RepeatabilityTool, *fakeRepeatMotion) {
	t.Helper()
	grid, err := BuildGrid(100, 5, CIRCLE)
	if err != nil {
		t.Fatal(err)
	}
	motion := &fakeRepeatMotion{}
	device := &fakeRepeatDevice{samples: samples}
	probe := NewProbeAdapter(motion, motion, device, DefaultProbeConfig())
	logger := golog.New("test")
	return NewRepeatabilityTool(probe, motion, grid, logger), motion
}

func TestRunWithConstantSamplesHasZeroStdDev(t *testing.T) {
	tool, _ := newRepeatTool(t, []int{10000})

	result, err := tool.Run(10, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Samples) != 10 {
		t.Errorf("expected 10 samples, got %d", len(result.Samples))
	}
	if result.StdDev != 0 {
		t.Errorf("expected zero stddev for constant samples, got %v", result.StdDev)
	}
	if result.Mean != 10.0 || result.Min != 10.0 || result.Max != 10.0 {
		t.Errorf("expected mean=min=max=10.0, got mean=%v min=%v max=%v", result.Mean, result.Min, result.Max)
	}
	if result.Repeatability != 0 {
		t.Errorf("expected zero repeatability range, got %v", result.Repeatability)
	}
}

func TestRunDefaultsSampleCountWhenNonPositive(t *testing.T) {
	tool, _ := newRepeatTool(t, []int{10000, 10010})

	result, err := tool.Run(0, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Samples) != repeatabilityDefaultSamples {
		t.Errorf("expected default sample count %d, got %d", repeatabilityDefaultSamples, len(result.Samples))
	}
}

func TestRunRejectsTooManySamples(t *testing.T) {
	tool, _ := newRepeatTool(t, []int{10000})
	if _, err := tool.Run(31, false); err == nil {
		t.Error("expected an error requesting more than 30 samples")
	}
}

func TestRunWithEccentricityTestMakesExtraMoves(t *testing.T) {
	tool, motion := newRepeatTool(t, []int{10000})
	if _, err := tool.Run(3, true); err != nil {
		t.Fatal(err)
	}
	// 6 eccentricity moves + 1 probe move per sample.
	want := 3 * 7
	if motion.moveCount != want {
		t.Errorf("expected %d total moves with eccentricity test enabled, got %d", want, motion.moveCount)
	}
}

// TestBestTracksLowestSigma exercises the running-best selection: a
// noisy run followed by a perfectly repeatable run should leave Best()
// reporting the repeatable run's (zero) sigma and its probe config.
func TestBestTracksLowestSigma(t *testing.T) {
	grid, err := BuildGrid(100, 5, CIRCLE)
	if err != nil {
		t.Fatal(err)
	}
	motion := &fakeRepeatMotion{}
	noisyDevice := &fakeRepeatDevice{samples: []int{10010, 9990, 10010, 9990, 10010, 9990, 10010, 9990, 10010, 9990}}
	noisyConfig := DefaultProbeConfig()
	noisyConfig.Smoothing = 1
	probe := NewProbeAdapter(motion, motion, noisyDevice, noisyConfig)
	logger := golog.New("test")
	tool := NewRepeatabilityTool(probe, motion, grid, logger)

	if _, err := tool.Run(10, false); err != nil {
		t.Fatal(err)
	}
	firstBest := tool.Best()
	if !firstBest.HasResult || firstBest.Sigma <= 0 {
		t.Fatalf("expected a noisy first run to have a positive recorded sigma, got %+v", firstBest)
	}

	quietConfig := DefaultProbeConfig()
	quietConfig.Smoothing = 2
	probe.SetConfig(quietConfig)
	noisyDevice.samples = []int{10000}
	noisyDevice.idx = 0

	if _, err := tool.Run(10, false); err != nil {
		t.Fatal(err)
	}
	best := tool.Best()
	if best.Sigma != 0 {
		t.Errorf("expected the repeatable run to win with sigma 0, got %v", best.Sigma)
	}
	if best.Config.Smoothing != 2 {
		t.Errorf("expected best config to reflect the winning run's smoothing, got %+v", best.Config)
	}
}
