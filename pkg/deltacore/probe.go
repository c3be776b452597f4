package deltacore

import (
	hosterrors "klipper-go-migration/pkg/errors"
)

// minPlausibleSteps is the floor below which a probe result indicates a
// misconfigured probe height rather than a real surface.
const minPlausibleSteps = 100

// MotionController is the external collaborator that executes
// coordinated moves, homes, and reports axis positions.
type MotionController interface {
	MoveTo(x, y, z float64) error
	Home() error
	SetZMax(mm float64)
	ReseatAxisPosition()
}

// Accelerator exposes the motion controller's acceleration setting, so
// the probe adapter can save/restore it around a probing pass.
type Accelerator interface {
	GetAcceleration() float64
	SetAcceleration(mmPerSec2 float64)
}

// ProbeDevice is the external Z-probe driver: run/return probe, and the
// step<->mm conversion for the configured stepper.
type ProbeDevice interface {
	RunProbe() (steps int, err error)
	ReturnProbe(steps int) error
	StepsAtDecelEnd() int
	StepsToMM(steps int) float64
}

// ProbeConfig holds the probe adapter's tunables.
type ProbeConfig struct {
	Smoothing              int // taps averaged per probe_at, in [1,10]
	Priming                int // taps discarded before measuring, in [0,20]
	Acceleration           float64
	Offset                 Point3D
	FastFeedrate           float64
	SlowFeedrate           float64
	DebounceCount          int
	DecelerateOnTrigger    bool
}

// DefaultProbeConfig mirrors the teacher's config-default conventions.
func DefaultProbeConfig() ProbeConfig {
	return ProbeConfig{
		Smoothing:    1,
		Priming:      0,
		Acceleration: 800,
		FastFeedrate: 50,
		SlowFeedrate: 5,
	}
}

// ProbeAdapter wraps an external ProbeDevice with smoothing, priming,
// acceleration save/restore, and probe-offset compensation.
type ProbeAdapter struct {
	motion  MotionController
	accel   Accelerator
	device  ProbeDevice
	config  ProbeConfig
}

// NewProbeAdapter constructs a ProbeAdapter over the given collaborators.
func NewProbeAdapter(motion MotionController, accel Accelerator, device ProbeDevice, cfg ProbeConfig) *ProbeAdapter {
	return &ProbeAdapter{motion: motion, accel: accel, device: device, config: cfg}
}

// Config returns the adapter's current configuration.
func (p *ProbeAdapter) Config() ProbeConfig { return p.config }

// SetConfig replaces the adapter's configuration wholesale (e.g. a G29
// D/P/Q/U/V override applied before a repeatability run).
func (p *ProbeAdapter) SetConfig(cfg ProbeConfig) { p.config = cfg }

// Device returns the underlying ProbeDevice, for callers (like the
// depth-map prober) that need direct step<->mm conversion.
func (p *ProbeAdapter) Device() ProbeDevice { return p.device }

// ProbeAt moves to (x+offset.x, y+offset.y), probes `smoothing` times
// (averaging), and returns the averaged step count. Fails with
// PROBE_FAILED if the underlying probe fails or the averaged result is
// implausibly small.
func (p *ProbeAdapter) ProbeAt(x, y float64) (int, error) {
	if err := p.motion.MoveTo(x+p.config.Offset.X, y+p.config.Offset.Y, 0); err != nil {
		return 0, hosterrors.ProbeFailedError("move to probe point failed: " + err.Error())
	}

	savedAccel := p.accel.GetAcceleration()
	p.accel.SetAcceleration(p.config.Acceleration)
	defer p.accel.SetAcceleration(savedAccel)

	smoothing := p.config.Smoothing
	if smoothing < 1 {
		smoothing = 1
	}

	total := 0
	for i := 0; i < smoothing; i++ {
		steps, err := p.device.RunProbe()
		if err != nil {
			return 0, hosterrors.ProbeFailedError("probe did not trigger: " + err.Error())
		}
		if p.config.DecelerateOnTrigger {
			if err := p.device.ReturnProbe(p.device.StepsAtDecelEnd()); err != nil {
				return 0, hosterrors.ProbeFailedError("probe return failed: " + err.Error())
			}
		} else {
			if err := p.device.ReturnProbe(steps); err != nil {
				return 0, hosterrors.ProbeFailedError("probe return failed: " + err.Error())
			}
		}
		total += steps
	}

	avg := total / smoothing
	if avg < minPlausibleSteps {
		return 0, hosterrors.ProbeFailedError("averaged probe result below minimum plausible step count")
	}
	return avg, nil
}

// Prime runs `priming` probes at the origin and discards the results,
// for probes with Z-settling behavior.
func (p *ProbeAdapter) Prime() error {
	for i := 0; i < p.config.Priming; i++ {
		if _, err := p.ProbeAt(0, 0); err != nil {
			return err
		}
	}
	return nil
}

// FindBedCenterHeight fast-probes to determine probe_from_height, then
// primes and slow-probes at the probe offset to derive the absolute bed
// height, which is pushed to the motion controller as the new Z max.
func (p *ProbeAdapter) FindBedCenterHeight(probeClearance float64) (float64, error) {
	measuredHeight, err := p.ProbeAt(0, 0)
	if err != nil {
		return 0, err
	}
	probeFromHeight := p.device.StepsToMM(measuredHeight) - probeClearance

	if err := p.Prime(); err != nil {
		return 0, err
	}

	triggerSteps, err := p.ProbeAt(p.config.Offset.X, p.config.Offset.Y)
	if err != nil {
		return 0, err
	}
	heightToTrigger := p.device.StepsToMM(triggerSteps)

	bedHeight := probeFromHeight + heightToTrigger + p.config.Offset.Z
	p.motion.SetZMax(bedHeight)
	return bedHeight, nil
}
