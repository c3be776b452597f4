package deltacore

import (
	"math"
	"testing"

	golog "klipper-go-migration/pkg/log"
)

type fakeDMMotion struct{ x, y, z float64 }

func (m *fakeDMMotion) MoveTo(x, y, z float64) error { m.x, m.y, m.z = x, y, z; return nil }
func (m *fakeDMMotion) Home() error                  { m.x, m.y, m.z = 0, 0, 0; return nil }
func (m *fakeDMMotion) SetZMax(mm float64)           {}
func (m *fakeDMMotion) ReseatAxisPosition()          {}
func (m *fakeDMMotion) GetAcceleration() float64     { return 800 }
func (m *fakeDMMotion) SetAcceleration(v float64)    {}

const dmStepsPerMM = 1000.0

// planeHeight is a simulated bed, 5mm below the probe start, that tilts
// linearly in x only, so extrapolateNeighbors' linear slope projection
// should reproduce it exactly (within step quantization). The 5mm keeps
// every reading (about 5000 steps) above the adapter's 100-step minimum.
func planeHeight(x, y float64) float64 { return 5 + x*0.001 }

type fakeDMDevice struct{ motion *fakeDMMotion }

func (d *fakeDMDevice) RunProbe() (int, error) {
	return int(math.Round(planeHeight(d.motion.x, d.motion.y) * dmStepsPerMM)), nil
}
func (d *fakeDMDevice) ReturnProbe(steps int) error { return nil }
func (d *fakeDMDevice) StepsAtDecelEnd() int        { return 0 }
func (d *fakeDMDevice) StepsToMM(steps int) float64 { return float64(steps) / dmStepsPerMM }

func newDMProber(t *testing.T) (*Grid, *DepthMapProber, *fakeDMMotion) {
	t.Helper()
	grid, err := BuildGrid(100, 5, CIRCLE)
	if err != nil {
		t.Fatal(err)
	}
	surface := NewSurfaceTransform(grid)
	motion := &fakeDMMotion{}
	device := &fakeDMDevice{motion: motion}
	cfg := DefaultProbeConfig()
	probe := NewProbeAdapter(motion, motion, device, cfg)
	logger := golog.New("test")
	prober := NewDepthMapProber(grid, probe, motion, surface, logger, nil)
	return grid, prober, motion
}

func TestProbeSurfaceComputesAbsAndRelDepths(t *testing.T) {
	grid, prober, _ := newDMProber(t)

	result, err := prober.ProbeSurface(5, true)
	if err != nil {
		t.Fatal(err)
	}

	origin := planeHeight(0, 0)
	points := grid.Points()
	for i, gp := range points {
		if gp.Classification != ACTIVE && gp.Classification != CENTER {
			continue
		}
		want := planeHeight(gp.Coord.X, gp.Coord.Y)
		if math.Abs(result.Abs[i]-want) > 1e-3 {
			t.Errorf("index %d: Abs = %v, want ~%v", i, result.Abs[i], want)
		}
		wantRel := origin - want
		if math.Abs(result.Rel[i]-wantRel) > 1e-3 {
			t.Errorf("index %d: Rel = %v, want ~%v", i, result.Rel[i], wantRel)
		}
	}
}

// TestExtrapolateNeighborsReproducesLinearSlope exercises the signed
// rise/multiplier projection: for a bed that tilts linearly in x, the
// on-radius extrapolation of an ACTIVE_NEIGHBOR point should land back
// on the true plane height at that point, since the projection is
// along the same line.
func TestExtrapolateNeighborsReproducesLinearSlope(t *testing.T) {
	grid, prober, _ := newDMProber(t)

	result, err := prober.ProbeSurface(5, true)
	if err != nil {
		t.Fatal(err)
	}

	found := false
	for i, gp := range grid.Points() {
		if gp.Classification != ACTIVE_NEIGHBOR {
			continue
		}
		found = true
		want := planeHeight(gp.Coord.X, gp.Coord.Y)
		if math.Abs(result.Abs[i]-want) > 2e-3 {
			t.Errorf("index %d: extrapolated Abs = %v, want ~%v", i, result.Abs[i], want)
		}
	}
	if !found {
		t.Fatal("expected at least one ACTIVE_NEIGHBOR point on a 5x5 CIRCLE grid")
	}
}

func TestProbeSurfaceZeroesNeighborsWithoutExtrapolation(t *testing.T) {
	grid, prober, _ := newDMProber(t)

	result, err := prober.ProbeSurface(5, false)
	if err != nil {
		t.Fatal(err)
	}

	for i, gp := range grid.Points() {
		if gp.Classification != ACTIVE_NEIGHBOR {
			continue
		}
		if result.Abs[i] != 0 || result.Rel[i] != 0 {
			t.Errorf("index %d: expected zeroed neighbor depth, got Abs=%v Rel=%v", i, result.Abs[i], result.Rel[i])
		}
	}
}

// TestPropagateRadiallyCopiesFromCenterline verifies inactive cells on
// a CIRCLE grid inherit their depth from the nearest cell towards the
// centerline, exactly (a direct copy, not an interpolation).
func TestPropagateRadiallyCopiesFromCenterline(t *testing.T) {
	grid, prober, _ := newDMProber(t)

	result, err := prober.ProbeSurface(5, true)
	if err != nil {
		t.Fatal(err)
	}

	n := grid.N
	half := (n - 1) / 2
	points := grid.Points()
	checked := false
	for row := 0; row < n; row++ {
		base := row * n
		for col := half + 1; col < n; col++ {
			i := base + col
			if points[i].Classification == INACTIVE {
				checked = true
				if result.Abs[i] != result.Abs[i-1] || result.Rel[i] != result.Rel[i-1] {
					t.Errorf("row %d col %d: expected propagated value to equal neighbor at col %d", row, col, col-1)
				}
			}
		}
	}
	if !checked {
		t.Fatal("expected at least one INACTIVE cell to check on a 5x5 CIRCLE grid")
	}
}
