// Package deltacore implements the calibration kernel for delta-kinematic
// 3D printers: probe-point geometry, the surface transform, the iterative
// and annealing calibrators, and the probe-repeatability tool.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.
package deltacore

import (
	"math"

	hosterrors "klipper-go-migration/pkg/errors"
)

// Shape selects how a grid's active region is classified.
type Shape int

const (
	// CIRCLE classifies points by distance from the origin.
	CIRCLE Shape = iota
	// SQUARE marks every grid point active.
	SQUARE
)

// Classification is the role a GridPoint plays during probing.
type Classification int

const (
	INACTIVE Classification = iota
	ACTIVE
	ACTIVE_NEIGHBOR
	CENTER
)

// Point2D is a Cartesian coordinate in millimeters.
type Point2D struct {
	X, Y float64
}

// Point3D is a Cartesian coordinate in millimeters.
type Point3D struct {
	X, Y, Z float64
}

// GridPoint is one candidate probe location and its role in the grid.
type GridPoint struct {
	Coord          Point2D
	Classification Classification
}

// Tower identifies one of the three delta towers.
type Tower int

const (
	TowerX Tower = iota
	TowerY
	TowerZ
)

// Grid is the fixed N×N set of candidate probe points, row-major, y
// descending from +ProbeRadius to -ProbeRadius, x ascending. Coordinates
// and classifications are immutable after Build.
type Grid struct {
	N           int
	ProbeRadius float64
	Shape       Shape
	points      []GridPoint
	centerIdx   int
	scale       float64 // (N-1) / (2*ProbeRadius), for array<->cartesian mapping
}

// BuildGrid constructs and classifies an N×N grid. N must be odd and >= 3.
func BuildGrid(probeRadius float64, n int, shape Shape) (*Grid, error) {
	if n < 3 || n%2 == 0 {
		return nil, hosterrors.AllocationFailedError("grid size N must be an odd integer >= 3")
	}
	if probeRadius <= 0 {
		return nil, hosterrors.CalConfigInvalidError("probe_radius", "must be positive")
	}

	g := &Grid{
		N:           n,
		ProbeRadius: probeRadius,
		Shape:       shape,
		points:      make([]GridPoint, n*n),
		scale:       float64(n-1) / (2 * probeRadius),
	}

	half := (n - 1) / 2
	step := probeRadius / float64(half)
	neighborRadius := probeRadius * (1 + 1/float64(half))

	best := -1
	bestDist := math.MaxFloat64
	idx := 0
	for row := 0; row < n; row++ {
		y := probeRadius - float64(row)*step
		for col := 0; col < n; col++ {
			x := -probeRadius + float64(col)*step
			p := Point2D{X: x, Y: y}
			dist := math.Hypot(x, y)

			var cls Classification
			switch shape {
			case SQUARE:
				cls = ACTIVE
			default: // CIRCLE
				onBoundaryRow := row == 0 || row == n-1
				onYAxis := col == half
				if dist <= probeRadius {
					cls = ACTIVE
				} else if dist <= neighborRadius && !onBoundaryRow && !onYAxis {
					cls = ACTIVE_NEIGHBOR
				} else {
					cls = INACTIVE
				}
			}

			g.points[idx] = GridPoint{Coord: p, Classification: cls}
			if dist < bestDist {
				bestDist = dist
				best = idx
			}
			idx++
		}
	}

	g.points[best].Classification = CENTER
	g.centerIdx = best
	return g, nil
}

// Points returns the full ordered grid.
func (g *Grid) Points() []GridPoint { return g.points }

// Classification returns the classification of grid index i.
func (g *Grid) Classification(i int) Classification { return g.points[i].Classification }

// CenterIndex returns the index of the CENTER point.
func (g *Grid) CenterIndex() int { return g.centerIdx }

// ActivePoints returns the indices of all ACTIVE and CENTER points.
func (g *Grid) ActivePoints() []int {
	out := make([]int, 0, len(g.points))
	for i, p := range g.points {
		if p.Classification == ACTIVE || p.Classification == CENTER {
			out = append(out, i)
		}
	}
	return out
}

// NeighborPoints returns the indices of all ACTIVE_NEIGHBOR points.
func (g *Grid) NeighborPoints() []int {
	out := make([]int, 0, len(g.points))
	for i, p := range g.points {
		if p.Classification == ACTIVE_NEIGHBOR {
			out = append(out, i)
		}
	}
	return out
}

// TowerPoint returns the grid index closest to the canonical tower-near
// location for the given tower.
func (g *Grid) TowerPoint(t Tower) int {
	var target Point2D
	r := g.ProbeRadius
	switch t {
	case TowerX:
		target = Point2D{X: -math.Cos(30*math.Pi/180) * r, Y: -math.Sin(30*math.Pi/180) * r}
	case TowerY:
		target = Point2D{X: math.Cos(30*math.Pi/180) * r, Y: -math.Sin(30*math.Pi/180) * r}
	case TowerZ:
		target = Point2D{X: 0, Y: r}
	}
	return g.NearestIndex(target)
}

// NearestIndex does a linear scan for the grid point nearest p among
// ACTIVE or CENTER points, per the Geometry & Grid nearest_index operation.
func (g *Grid) NearestIndex(p Point2D) int {
	best := -1
	bestDist := math.MaxFloat64
	for i, gp := range g.points {
		if gp.Classification != ACTIVE && gp.Classification != CENTER {
			continue
		}
		d := math.Hypot(gp.Coord.X-p.X, gp.Coord.Y-p.Y)
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}

// Scale returns the precomputed cartesian->array scale factor
// (N-1)/(2*probe_radius) used by the bilinear depth-map lookup.
func (g *Grid) Scale() float64 { return g.scale }
