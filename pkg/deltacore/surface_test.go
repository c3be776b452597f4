package deltacore

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func newTestSurface(t *testing.T) (*Grid, *SurfaceTransform) {
	t.Helper()
	g, err := BuildGrid(100, 5, CIRCLE)
	if err != nil {
		t.Fatal(err)
	}
	s := NewSurfaceTransform(g)
	s.SetActive(true)
	return g, s
}

// TestVirtualShimmingZero is scenario 5: set_virtual_shimming(0,0,0)
// leaves the plane flat and get_adjust_z returns 0 everywhere when
// depth correction is disabled.
func TestVirtualShimmingZero(t *testing.T) {
	_, s := newTestSurface(t)
	s.SetVirtualShimming(0, 0, 0)

	if s.planeNormal != (vector3{0, 0, 1}) {
		t.Errorf("expected flat plane normal, got %+v", s.planeNormal)
	}
	if s.planeD != 0 {
		t.Errorf("expected plane_d 0, got %v", s.planeD)
	}
	for _, p := range [][2]float64{{0, 0}, {50, 50}, {-80, 30}} {
		if z := s.GetAdjustZ(p[0], p[1]); z != 0 {
			t.Errorf("GetAdjustZ(%v,%v) = %v, want 0", p[0], p[1], z)
		}
	}
}

// TestBilinearInterpolationLinearRamp is scenario 3: a depth map filled
// with z = x*0.01 should interpolate to 0.5 at (50,0) and 0 at (0,50).
func TestBilinearInterpolationLinearRamp(t *testing.T) {
	g, s := newTestSurface(t)
	s.SetDepthEnabled(true)

	n := g.N
	values := make([]float64, n*n)
	for i, gp := range g.Points() {
		values[i] = gp.Coord.X * 0.01
	}
	if err := s.SetDepthMap(values); err != nil {
		t.Fatal(err)
	}

	if z := s.GetAdjustZ(50, 0); math.Abs(z-0.5) > 1e-4 {
		t.Errorf("GetAdjustZ(50,0) = %v, want ~0.5", z)
	}
	if z := s.GetAdjustZ(0, 50); math.Abs(z) > 1e-4 {
		t.Errorf("GetAdjustZ(0,50) = %v, want ~0", z)
	}
}

func TestGetAdjustZClampsBeyondRadius(t *testing.T) {
	g, s := newTestSurface(t)
	s.SetPlaneEnabled(true)
	s.SetVirtualShimming(0.5, -0.3, 0.1)

	inRadius := s.GetAdjustZ(0, g.ProbeRadius)
	beyond := s.GetAdjustZ(0, g.ProbeRadius*3)
	if inRadius != beyond {
		t.Errorf("expected get_adjust_z to clamp beyond radius: %v != %v", inRadius, beyond)
	}
}

func TestGetAdjustZInactiveWhenDisabled(t *testing.T) {
	_, s := newTestSurface(t)
	s.SetActive(false)
	s.SetPlaneEnabled(true)
	s.SetVirtualShimming(1, 1, 1)
	if z := s.GetAdjustZ(10, 10); z != 0 {
		t.Errorf("expected 0 when not active, got %v", z)
	}
}

// TestDepthMapRoundTrip is scenario 6: save then reload a depth map and
// verify identical interpolation at the grid tower points.
func TestDepthMapRoundTrip(t *testing.T) {
	g, s := newTestSurface(t)
	s.SetDepthEnabled(true)

	n := g.N
	values := make([]float64, n*n)
	for i := range values {
		values[i] = float64(i+1) * 0.01
	}
	if err := s.SetDepthMap(values); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "dm_surface_transform")
	if err := s.SaveDepthMap(path); err != nil {
		t.Fatal(err)
	}

	before := make(map[Tower]float64)
	for _, tw := range []Tower{TowerX, TowerY, TowerZ} {
		idx := g.TowerPoint(tw)
		p := g.Points()[idx].Coord
		before[tw] = s.GetAdjustZ(p.X, p.Y)
	}

	s2 := NewSurfaceTransform(g)
	s2.SetActive(true)
	s2.SetDepthEnabled(true)
	if err := s2.LoadDepthMap(path); err != nil {
		t.Fatal(err)
	}

	for _, tw := range []Tower{TowerX, TowerY, TowerZ} {
		idx := g.TowerPoint(tw)
		p := g.Points()[idx].Coord
		got := s2.GetAdjustZ(p.X, p.Y)
		if math.Abs(got-before[tw]) > 1e-5 {
			t.Errorf("tower %v: round-trip mismatch, before=%v after=%v", tw, before[tw], got)
		}
	}
}

func TestLoadDepthMapRejectsOutOfRange(t *testing.T) {
	_, s := newTestSurface(t)
	path := filepath.Join(t.TempDir(), "bad_dm")
	content := "; comment\n0.01\n6.0\n0.02\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := s.LoadDepthMap(path); err == nil {
		t.Error("expected error loading a value outside +/-5mm")
	}
}
