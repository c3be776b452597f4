package deltacore

import (
	"math"
	"testing"

	golog "klipper-go-migration/pkg/log"
)

// TestAnnealerConvergesFromPerturbedKinematics is scenario 2: a flat
// simulated surface (all measured relative depths = 0), captured as axis
// positions under neutral kinematics, then perturbed to
// trim={-1.834,-1.779,0}, tower_radius_offsets={-1,0,2}. An annealer
// with {endstop, delta_radius} active must converge to final energy
// <= 0.01mm within <= 200 tries.
func TestAnnealerConvergesFromPerturbedKinematics(t *testing.T) {
	arm := NewLinearDeltaSolution(250, 125)
	grid, err := BuildGrid(100, 5, CIRCLE)
	if err != nil {
		t.Fatal(err)
	}
	surface := NewSurfaceTransform(grid)
	energy := NewEnergyModel(grid, arm, surface)

	measuredFlat := make([]float64, grid.N*grid.N)
	axis := energy.SimulateIK(measuredFlat, [3]float64{0, 0, 0})

	arm.SetTrim(TowerX, -1.834)
	arm.SetTrim(TowerY, -1.779)
	arm.SetTrim(TowerZ, 0)
	arm.SetTowerRadiusOffset(TowerX, -1)
	arm.SetTowerRadiusOffset(TowerY, 0)
	arm.SetTowerRadiusOffset(TowerZ, 2)

	logger := golog.New("test")
	annealer := NewAnnealer(grid, arm, energy, surface, logger, nil, 42)

	flags := CaltypeFlags{
		Endstop:     Caltype{Active: true, AnnealingTempMul: 1},
		DeltaRadius: Caltype{Active: true, AnnealingTempMul: 1},
	}
	cfg := AnnealerConfig{Tries: 200, MaxTemp: 2, BinsearchWidth: 0.1, OverrunDivisor: 2}

	result, err := annealer.Run(cfg, axis, flags)
	if err != nil {
		t.Fatal(err)
	}
	if result.Iterations > 200 {
		t.Errorf("expected <= 200 tries, got %d", result.Iterations)
	}

	finalTrim := [3]float64{arm.Trim(TowerX), arm.Trim(TowerY), arm.Trim(TowerZ)}
	finalEnergy := energy.SimulateFKAndComputeEnergy(axis, finalTrim)
	if finalEnergy > 0.01+1e-6 {
		t.Errorf("expected final energy <= 0.01mm, got %v (result.FinalEnergy=%v, stalled=%v, reachedTarget=%v)",
			finalEnergy, result.FinalEnergy, result.Stalled, result.ReachedTarget)
	}
}

// TestOptimalValueFindsMinimum checks the generic binary search in
// isolation: for a tunable whose energy (mean absolute depth error) has
// a single minimum at a known value, optimal_value should land close to
// that minimum.
func TestOptimalValueFindsMinimum(t *testing.T) {
	arm := NewLinearDeltaSolution(250, 125)
	grid, err := BuildGrid(100, 5, CIRCLE)
	if err != nil {
		t.Fatal(err)
	}
	surface := NewSurfaceTransform(grid)
	energy := NewEnergyModel(grid, arm, surface)

	measuredFlat := make([]float64, grid.N*grid.N)
	axis := energy.SimulateIK(measuredFlat, [3]float64{0, 0, 0})

	arm.SetTrim(TowerX, -2)
	logger := golog.New("test")
	annealer := NewAnnealer(grid, arm, energy, surface, logger, nil, 7)

	tt := tunable{
		get:       func() float64 { return arm.Trim(TowerX) },
		apply:     func(v float64) { arm.SetTrim(TowerX, v) },
		halfWidth: trimHalfWidth,
	}
	best := annealer.optimalValue(tt, axis, 0.1)
	if math.Abs(best-0) > 0.05 {
		t.Errorf("expected binary search to find trim near 0, got %v", best)
	}
	if arm.Trim(TowerX) != -2 {
		t.Errorf("expected optimalValue to restore the original value, got %v", arm.Trim(TowerX))
	}
}
