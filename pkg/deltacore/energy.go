package deltacore

// AxisPositions is the frozen per-point carriage-height snapshot
// captured once per real probing pass; the annealer evaluates every
// perturbation purely by forward kinematics over this cache. INACTIVE
// and ACTIVE_NEIGHBOR entries are zero and excluded from energy.
type AxisPositions [][3]float64

// EnergyModel captures axis positions via inverse kinematics once per
// probing pass, then repeatedly evaluates candidate kinematic settings
// via forward kinematics without touching the real probe again.
type EnergyModel struct {
	grid    *Grid
	arm     ArmSolution
	surface *SurfaceTransform
}

// NewEnergyModel builds an EnergyModel bound to its collaborators.
func NewEnergyModel(grid *Grid, arm ArmSolution, surface *SurfaceTransform) *EnergyModel {
	return &EnergyModel{grid: grid, arm: arm, surface: surface}
}

// SimulateIK computes, for every ACTIVE grid point, the carriage height
// the arm solution reports for the measured relative depth (plus the
// plane-tilt term, if enabled), with trim added back in. The result is
// the frozen axis-position cache the annealer reuses for the rest of
// the run.
func (e *EnergyModel) SimulateIK(measuredRelDepths []float64, trim [3]float64) AxisPositions {
	points := e.grid.Points()
	axis := make(AxisPositions, len(points))

	for j, gp := range points {
		if gp.Classification != ACTIVE && gp.Classification != CENTER {
			continue
		}
		z := measuredRelDepths[j]
		if e.surface.PlaneEnabled() {
			z += e.surface.GetAdjustZ(gp.Coord.X, gp.Coord.Y) - e.depthTermIfEnabled(gp.Coord.X, gp.Coord.Y)
		}
		pos := e.arm.CartesianToActuator(Point3D{X: gp.Coord.X, Y: gp.Coord.Y, Z: z})
		axis[j] = [3]float64{pos[0] + trim[0], pos[1] + trim[1], pos[2] + trim[2]}
	}
	return axis
}

// depthTermIfEnabled isolates the depth-map contribution already folded
// into GetAdjustZ, so SimulateIK can add only the plane-tilt term (the
// depth map is not yet known during the capture pass the annealer
// replays from).
func (e *EnergyModel) depthTermIfEnabled(x, y float64) float64 {
	if !e.surface.DepthEnabled() {
		return 0
	}
	saved := e.surface.PlaneEnabled()
	e.surface.SetPlaneEnabled(false)
	depthOnly := e.surface.GetAdjustZ(x, y)
	e.surface.SetPlaneEnabled(saved)
	return depthOnly
}

// SimulateFKAndComputeEnergy applies candidate_settings' trim, backs out
// the plane-tilt term, and returns the mean absolute Z deviation over
// ACTIVE points -- the "energy" the annealer minimizes.
func (e *EnergyModel) SimulateFKAndComputeEnergy(axis AxisPositions, trim [3]float64) float64 {
	points := e.grid.Points()

	var sum float64
	var count int
	for j, gp := range points {
		if gp.Classification != ACTIVE && gp.Classification != CENTER {
			continue
		}
		trimmed := [3]float64{
			axis[j][0] - trim[0],
			axis[j][1] - trim[1],
			axis[j][2] - trim[2],
		}
		p := e.arm.ActuatorToCartesian(trimmed)
		z := p.Z
		if e.surface.PlaneEnabled() {
			z -= e.surface.GetAdjustZ(gp.Coord.X, gp.Coord.Y) - e.depthTermIfEnabled(gp.Coord.X, gp.Coord.Y)
		}
		sum += abs(z)
		count++
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
