// deltacal-sim is a runnable demo of the delta auto-calibration core. It
// wires pkg/deltacore against in-memory fakes of every external
// collaborator (motion controller, Z-probe driver, accelerator) over an
// ideal linear-delta geometry with a deliberately mis-trimmed starting
// point, then drives G29 -> G32 -> G31 -> G31 A end to end, printing the
// kinematic settings after each step.
//
// Usage:
//
//	deltacal-sim [-depthmap path] [-config printer.cfg]
package main

import (
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"

	"klipper-go-migration/pkg/deltacore"
	golog "klipper-go-migration/pkg/log"
)

// fakeMotion is an in-memory MotionController/Accelerator that tracks the
// last requested position and a simple acceleration value.
type fakeMotion struct {
	x, y, z float64
	accel   float64
	zMax    float64
	homed   bool
}

func (m *fakeMotion) MoveTo(x, y, z float64) error { m.x, m.y, m.z = x, y, z; return nil }
func (m *fakeMotion) Home() error                  { m.homed = true; m.x, m.y, m.z = 0, 0, 0; return nil }
func (m *fakeMotion) SetZMax(mm float64)           { m.zMax = mm }
func (m *fakeMotion) ReseatAxisPosition()          {}
func (m *fakeMotion) GetAcceleration() float64     { return m.accel }
func (m *fakeMotion) SetAcceleration(v float64)    { m.accel = v }

// fakeStepsPerMM is the fixed steps-per-mm conversion fakeProbe uses to
// express its readings against a ground-truth surface that is perfectly
// flat at z=0.
const fakeStepsPerMM = 400.0

type fakeProbe struct {
	arm   deltacore.ArmSolution
	motion *fakeMotion
	noise  *rand.Rand
}

func (p *fakeProbe) RunProbe() (int, error) {
	// The true surface is flat at z=0; the probe measures the carriage
	// height implied by the current (possibly mis-trimmed) kinematics
	// at the current XY, plus a little measurement noise.
	actuator := p.arm.CartesianToActuator(deltacore.Point3D{X: p.motion.x, Y: p.motion.y, Z: 0})
	height := actuator[0]
	noise := (p.noise.Float64() - 0.5) * 0.02
	steps := int((height + 5 + noise) * fakeStepsPerMM)
	if steps < 0 {
		steps = 0
	}
	return steps, nil
}

func (p *fakeProbe) ReturnProbe(steps int) error { return nil }
func (p *fakeProbe) StepsAtDecelEnd() int        { return 0 }
func (p *fakeProbe) StepsToMM(steps int) float64 { return float64(steps) / fakeStepsPerMM }

func main() {
	depthMapPath := flag.String("depthmap", "", "optional path override for the saved depth map (default: engine's own /sd path, redirected here for the demo)")
	configPath := flag.String("config", "", "optional printer.cfg-style [delta]/[probe]/[delta_calibrate] file (default: built-in demo geometry)")
	flag.Parse()

	logger := golog.New("deltacal-sim")

	geom := deltacore.DefaultGeometryConfig()
	if *configPath != "" {
		var err error
		geom, err = deltacore.LoadGeometryConfig(*configPath)
		must(err)
	}

	arm := geom.BuildArm()
	if *configPath == "" {
		// Start from a deliberately imperfect geometry: a few mm of
		// endstop mis-trim and a tower-radius offset, for the
		// calibrators to correct, when running without a config file.
		arm.SetTrim(deltacore.TowerX, -1.5)
		arm.SetTrim(deltacore.TowerY, -0.8)
		arm.SetTrim(deltacore.TowerZ, 0)
		arm.SetTowerRadiusOffset(deltacore.TowerY, 1.2)
	}

	grid, err := geom.BuildGrid()
	must(err)

	motion := &fakeMotion{accel: 800}
	probeDevice := &fakeProbe{arm: arm, motion: motion, noise: rand.New(rand.NewSource(1))}
	probeCfg := geom.Probe
	probeCfg.Priming = 1
	probe := deltacore.NewProbeAdapter(motion, motion, probeDevice, probeCfg)

	surface := deltacore.NewSurfaceTransform(grid)
	kinematics := deltacore.NewKinematicState(arm, motion.ReseatAxisPosition)
	depthMapper := deltacore.NewDepthMapProber(grid, probe, motion, surface, logger, nil)
	iterative := deltacore.NewIterativeCalibrator(probe, arm, surface, grid, logger)
	energy := deltacore.NewEnergyModel(grid, arm, surface)
	annealer := deltacore.NewAnnealer(grid, arm, energy, surface, logger, nil, 42)
	repeatability := deltacore.NewRepeatabilityTool(probe, motion, grid, logger)

	engine := deltacore.NewEngine(grid, arm, kinematics, probe, surface, depthMapper, iterative, energy, annealer, repeatability, logger, 5.0)

	fmt.Println("-- G29: probe repeatability --")
	repResult, err := engine.HandleG29("G29 S5")
	must(err)
	fmt.Printf("mean=%.4fmm sigma=%.4fmm range=%.4fmm\n", repResult.Mean, repResult.StdDev, repResult.Repeatability)

	fmt.Println("-- G32: iterative calibration --")
	iterResult, err := engine.HandleG32("G32")
	must(err)
	fmt.Printf("converged=%v iterations=%d\n", iterResult.Converged, iterResult.Iterations)
	printKinematics(arm)

	fmt.Println("-- G31: heuristic (annealing) calibration --")
	_, err = engine.HandleG31("G31 O P T100")
	must(err)
	printKinematics(arm)

	fmt.Println("-- G31 A: probe full grid and save depth map --")
	dmResult, err := engine.HandleG31("G31 A")
	must(err)
	maxAbs := 0.0
	for _, v := range dmResult.(*deltacore.DepthMapResult).Rel {
		if math.Abs(v) > maxAbs {
			maxAbs = math.Abs(v)
		}
	}
	fmt.Printf("depth map saved; max |relative depth| = %.4fmm\n", maxAbs)

	if *depthMapPath != "" {
		must(surface.SaveDepthMap(*depthMapPath))
		fmt.Printf("depth map also written to %s\n", *depthMapPath)
	}

	fmt.Println("-- command metrics --")
	fmt.Print(engine.Metrics())
}

func printKinematics(arm deltacore.ArmSolution) {
	fmt.Printf("trim=[%.4f %.4f %.4f] delta_radius=%.4f arm_length=%.4f\n",
		arm.Trim(deltacore.TowerX), arm.Trim(deltacore.TowerY), arm.Trim(deltacore.TowerZ),
		arm.DeltaRadius(), arm.ArmLength())
}

func must(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
