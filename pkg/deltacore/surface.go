package deltacore

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	hosterrors "klipper-go-migration/pkg/errors"
)

// vector3 is a minimal 3-vector with a safe zero-vector check. Per the
// design notes this deliberately avoids a generic vector library: a
// cross product of two zero (or parallel) vectors would otherwise
// produce NaN components, which a generic library surfaces silently.
type vector3 struct {
	x, y, z float64
}

func (v vector3) sub(o vector3) vector3 {
	return vector3{v.x - o.x, v.y - o.y, v.z - o.z}
}

func (v vector3) cross(o vector3) vector3 {
	return vector3{
		v.y*o.z - v.z*o.y,
		v.z*o.x - v.x*o.z,
		v.x*o.y - v.y*o.x,
	}
}

func (v vector3) isZero() bool {
	return v.x == 0 && v.y == 0 && v.z == 0
}

func (v vector3) length() float64 {
	return math.Sqrt(v.x*v.x + v.y*v.y + v.z*v.z)
}

func (v vector3) unit() (vector3, bool) {
	l := v.length()
	if l == 0 {
		return vector3{}, false
	}
	return vector3{v.x / l, v.y / l, v.z / l}, true
}

func (v vector3) dot(o vector3) float64 {
	return v.x*o.x + v.y*o.y + v.z*o.z
}

const depthMapRange = 5.0 // mm; values outside [-5, 5] are rejected

// SurfaceTransform computes the motion-time Z correction from a
// three-point tilt plane (virtual shimming) plus an N×N bilinearly
// interpolated depth map. get_adjust_z is on the motion hot path and
// must be allocation-free.
type SurfaceTransform struct {
	grid *Grid

	triPoints   [3]Point3D // xy fixed at the tower grid points, z is the shim value
	planeNormal vector3
	planeD      float64

	depthMap []float64 // flat N*N buffer, allocated lazily, reused

	planeEnabled bool
	depthEnabled bool
	active       bool
}

// NewSurfaceTransform creates a transform bound to grid, with the plane
// disabled (normal = (0,0,1), d = 0) per the invariant.
func NewSurfaceTransform(grid *Grid) *SurfaceTransform {
	s := &SurfaceTransform{grid: grid, planeNormal: vector3{0, 0, 1}}
	for _, t := range []Tower{TowerX, TowerY, TowerZ} {
		idx := grid.TowerPoint(t)
		s.triPoints[t] = Point3D{X: grid.points[idx].Coord.X, Y: grid.points[idx].Coord.Y}
	}
	return s
}

// SetActive toggles the master enable flag (M667 Z).
func (s *SurfaceTransform) SetActive(active bool) { s.active = active }

// Active reports the master enable flag.
func (s *SurfaceTransform) Active() bool { return s.active }

// SetPlaneEnabled toggles plane-tilt correction (M667 D).
func (s *SurfaceTransform) SetPlaneEnabled(enabled bool) { s.planeEnabled = enabled }

// SetDepthEnabled toggles depth-map correction (M667 E).
func (s *SurfaceTransform) SetDepthEnabled(enabled bool) { s.depthEnabled = enabled }

// PlaneEnabled reports whether plane-tilt correction is active.
func (s *SurfaceTransform) PlaneEnabled() bool { return s.planeEnabled }

// DepthEnabled reports whether depth-map correction is active.
func (s *SurfaceTransform) DepthEnabled() bool { return s.depthEnabled }

// TriPointZ returns the z-component of tri_points[t] (M500/M503 readback).
func (s *SurfaceTransform) TriPointZ(t Tower) float64 { return s.triPoints[t].Z }

// SetVirtualShimming assigns the z-components of the three tri-points
// and recomputes the tilt plane. If all three are zero the plane is
// reset to the flat default instead of computed (cross product of a
// degenerate triangle would otherwise yield garbage, not just the
// zero-vector NaN case the vector3 type already guards against).
func (s *SurfaceTransform) SetVirtualShimming(sx, sy, sz float64) {
	s.triPoints[TowerX].Z = sx
	s.triPoints[TowerY].Z = sy
	s.triPoints[TowerZ].Z = sz

	if sx == 0 && sy == 0 && sz == 0 {
		s.planeNormal = vector3{0, 0, 1}
		s.planeD = 0
		s.planeEnabled = true
		return
	}

	v1 := vector3{s.triPoints[0].X, s.triPoints[0].Y, s.triPoints[0].Z}
	v2 := vector3{s.triPoints[1].X, s.triPoints[1].Y, s.triPoints[1].Z}
	v3 := vector3{s.triPoints[2].X, s.triPoints[2].Y, s.triPoints[2].Z}

	normal, ok := v1.sub(v2).cross(v1.sub(v3)).unit()
	if !ok {
		// Degenerate (collinear) tri-points: fall back to flat plane
		// rather than propagate a NaN normal.
		normal = vector3{0, 0, 1}
	}
	s.planeNormal = normal
	s.planeD = -(normal.dot(v1))
	s.planeEnabled = true
}

// ensureDepthMap allocates the depth map lazily, once, and reuses it.
func (s *SurfaceTransform) ensureDepthMap() error {
	if s.depthMap != nil {
		return nil
	}
	n := s.grid.N
	if n <= 0 {
		return hosterrors.AllocationFailedError("grid not configured")
	}
	s.depthMap = make([]float64, n*n)
	return nil
}

// SetDepthMap installs a full N*N depth-map buffer (used by depth-map
// probing once a pass completes).
func (s *SurfaceTransform) SetDepthMap(values []float64) error {
	if err := s.ensureDepthMap(); err != nil {
		return err
	}
	if len(values) != len(s.depthMap) {
		return hosterrors.AllocationFailedError("depth map size mismatch")
	}
	copy(s.depthMap, values)
	return nil
}

// DepthMap returns the current depth-map buffer (read-only use expected).
func (s *SurfaceTransform) DepthMap() []float64 { return s.depthMap }

// clampToRadius clamps (x,y) to within probe_radius along the ray from
// the origin, matching "inputs are clamped to ±probe_radius".
func (s *SurfaceTransform) clampToRadius(x, y float64) (float64, float64) {
	r := s.grid.ProbeRadius
	d := math.Hypot(x, y)
	if d <= r || d == 0 {
		return x, y
	}
	scale := r / d
	return x * scale, y * scale
}

// GetAdjustZ computes the motion-time Z correction: plane-tilt term
// plus bilinear depth-map term, each included only if its sub-flag and
// the master active flag are set. Allocation-free.
func (s *SurfaceTransform) GetAdjustZ(x, y float64) float64 {
	if !s.active || (!s.planeEnabled && !s.depthEnabled) {
		return 0
	}
	x, y = s.clampToRadius(x, y)

	var dz float64
	if s.planeEnabled {
		n := s.planeNormal
		dz += (-n.x*x - n.y*y - s.planeD) / n.z
	}
	if s.depthEnabled && s.depthMap != nil {
		dz += s.bilinear(x, y)
	}
	return dz
}

// bilinear interpolates the depth map at (x, y), already clamped to the
// probe radius.
func (s *SurfaceTransform) bilinear(x, y float64) float64 {
	n := s.grid.N
	scale := s.grid.Scale()
	r := s.grid.ProbeRadius

	ax := (x + r) * scale
	ay := (-y + r) * scale

	x1 := int(math.Floor(ax))
	y1 := int(math.Floor(ay))
	x1 = clampInt(x1, 0, n-2)
	y1 = clampInt(y1, 0, n-2)
	x2, y2 := x1+1, y1+1

	q11 := s.depthMap[y1*n+x1]
	q21 := s.depthMap[y1*n+x2]
	q12 := s.depthMap[y2*n+x1]
	q22 := s.depthMap[y2*n+x2]

	fx2, fy2 := float64(x2), float64(y2)
	fx1, fy1 := float64(x1), float64(y1)

	return q11*(fx2-ax)*(fy2-ay) +
		q21*(ax-fx1)*(fy2-ay) +
		q12*(fx2-ax)*(ay-fy1) +
		q22*(ax-fx1)*(ay-fy1)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// SaveDepthMap writes the depth map as one float per line, UTF-8,
// `;`-prefixed comment header, row-major, N² values.
func (s *SurfaceTransform) SaveDepthMap(path string) error {
	if s.depthMap == nil {
		return hosterrors.AllocationFailedError("no depth map to save")
	}
	f, err := os.Create(path)
	if err != nil {
		return hosterrors.IOFailedError(path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "; depth map, %dx%d, mm\n", s.grid.N, s.grid.N)
	for _, v := range s.depthMap {
		fmt.Fprintf(w, "%.5f\n", v)
	}
	if err := w.Flush(); err != nil {
		return hosterrors.IOFailedError(path, err)
	}
	return nil
}

// LoadDepthMap reads a depth map previously written by SaveDepthMap.
// Values outside ±5mm abort the load with IO_FAILED.
func (s *SurfaceTransform) LoadDepthMap(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return hosterrors.IOFailedError(path, err)
	}
	defer f.Close()

	values := make([]float64, 0, s.grid.N*s.grid.N)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, ";") {
			continue
		}
		v, err := strconv.ParseFloat(line, 64)
		if err != nil {
			return hosterrors.IOFailedError(path, err)
		}
		if v < -depthMapRange || v > depthMapRange {
			return hosterrors.IOFailedError(path, fmt.Errorf("value %.5f outside +/-%.0fmm", v, depthMapRange))
		}
		values = append(values, v)
	}
	if err := sc.Err(); err != nil {
		return hosterrors.IOFailedError(path, err)
	}
	return s.SetDepthMap(values)
}
