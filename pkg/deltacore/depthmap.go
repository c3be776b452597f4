package deltacore

import (
	"math"

	golog "klipper-go-migration/pkg/log"
)

// DepthMapResult is the per-point outcome of a probe_surface pass:
// absolute and relative (vs. center) depths, indexed exactly like Grid.
type DepthMapResult struct {
	Abs []float64 // absolute steps_to_mm(steps), one per grid point
	Rel []float64 // steps_to_mm(origin_steps - steps), one per grid point
}

// DepthMapProber drives a full probe_surface pass: measures depth at
// every active point relative to center, extrapolates active-neighbor
// depths from the on-radius slope, and (for CIRCLE grids) propagates
// depths radially into the remaining inactive cells so the saved depth
// map is fully defined.
type DepthMapProber struct {
	grid    *Grid
	probe   *ProbeAdapter
	motion  MotionController
	surface *SurfaceTransform
	yield   func()
	prefix  *prefixStack
}

// NewDepthMapProber wires a prober over its collaborators. yield may be
// nil; when non-nil it is called periodically (e.g. bound to a
// reactor.Reactor.Pause) to let the host service other work.
func NewDepthMapProber(grid *Grid, probe *ProbeAdapter, motion MotionController, surface *SurfaceTransform, logger *golog.Logger, yield func()) *DepthMapProber {
	if yield == nil {
		yield = func() {}
	}
	return &DepthMapProber{grid: grid, probe: probe, motion: motion, surface: surface, yield: yield, prefix: newPrefixStack(logger)}
}

// ProbeSurface runs the full depth-mapping pass. probeFromHeight is the
// Z height to descend to before probing (determined beforehand by
// ProbeAdapter.FindBedCenterHeight). When extrapolateNeighbors is
// false, ACTIVE_NEIGHBOR depths are set to zero instead of measured.
func (d *DepthMapProber) ProbeSurface(probeFromHeight float64, extrapolateNeighbors bool) (*DepthMapResult, error) {
	_, pop := d.prefix.push("DM")
	defer pop()

	if err := d.motion.Home(); err != nil {
		return nil, err
	}
	if err := d.motion.MoveTo(0, 0, probeFromHeight); err != nil {
		return nil, err
	}
	if err := d.probe.Prime(); err != nil {
		return nil, err
	}

	originSteps, err := d.probe.ProbeAt(0, 0)
	if err != nil {
		return nil, err
	}

	n := d.grid.N
	result := &DepthMapResult{Abs: make([]float64, n*n), Rel: make([]float64, n*n)}

	points := d.grid.Points()
	for i, gp := range points {
		if gp.Classification != ACTIVE && gp.Classification != CENTER {
			continue
		}
		steps, err := d.probe.ProbeAt(gp.Coord.X, gp.Coord.Y)
		if err != nil {
			return nil, err
		}
		result.Abs[i] = d.probe.Device().StepsToMM(steps)
		result.Rel[i] = d.probe.Device().StepsToMM(originSteps - steps)
		d.yield()
	}

	if extrapolateNeighbors {
		if err := d.extrapolateNeighbors(result, originSteps); err != nil {
			return nil, err
		}
	} else {
		for i, gp := range points {
			if gp.Classification == ACTIVE_NEIGHBOR {
				result.Abs[i] = 0
				result.Rel[i] = 0
			}
		}
	}

	if d.grid.Shape == CIRCLE {
		d.propagateRadially(result)
	}

	return result, d.surface.SetDepthMap(result.Rel)
}

// extrapolateNeighbors probes each ACTIVE_NEIGHBOR point's on-radius
// counterpart and extrapolates depth along the slope from the
// horizontally adjacent ACTIVE point, per the original depth-map pass.
func (d *DepthMapProber) extrapolateNeighbors(result *DepthMapResult, originSteps int) error {
	n := d.grid.N
	points := d.grid.Points()
	r := d.grid.ProbeRadius

	for i, gp := range points {
		if gp.Classification != ACTIVE_NEIGHBOR {
			continue
		}

		col := i % n
		row := i / n
		var activeIdx int
		var onRadiusX float64
		sq := r*r - gp.Coord.Y*gp.Coord.Y
		if sq < 0 {
			sq = 0
		}
		onRadiusX = math.Sqrt(sq)
		if gp.Coord.X > 0 {
			activeIdx = row*n + (col - 1)
		} else {
			activeIdx = row*n + (col + 1)
			onRadiusX = -onRadiusX
		}

		probedSteps, err := d.probe.ProbeAt(onRadiusX, gp.Coord.Y)
		if err != nil {
			return err
		}
		probedAbs := d.probe.Device().StepsToMM(probedSteps)

		activeAbs := result.Abs[activeIdx]
		activeX := points[activeIdx].Coord.X

		rise := probedAbs - activeAbs
		distExtrap := math.Abs(gp.Coord.X - activeX)
		distProbed := math.Abs(onRadiusX - activeX)
		multiplier := 1.0
		if distProbed != 0 {
			multiplier = distExtrap / distProbed
		}

		result.Abs[i] = activeAbs + rise*multiplier
		result.Rel[i] = d.probe.Device().StepsToMM(originSteps) - result.Abs[i]
		d.yield()
	}
	return nil
}

// propagateRadially copies depths outward along each row from the
// centerline to any remaining INACTIVE cell, so a CIRCLE grid's saved
// depth map is defined across its full extent.
func (d *DepthMapProber) propagateRadially(result *DepthMapResult) {
	n := d.grid.N
	half := (n - 1) / 2
	points := d.grid.Points()

	for row := 0; row < n; row++ {
		base := row * n
		// Walk outward to the right of center.
		for col := half + 1; col < n; col++ {
			i := base + col
			if points[i].Classification == INACTIVE {
				result.Abs[i] = result.Abs[i-1]
				result.Rel[i] = result.Rel[i-1]
			}
		}
		// Walk outward to the left of center.
		for col := half - 1; col >= 0; col-- {
			i := base + col
			if points[i].Classification == INACTIVE {
				result.Abs[i] = result.Abs[i+1]
				result.Rel[i] = result.Rel[i+1]
			}
		}
	}
}
