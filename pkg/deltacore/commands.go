package deltacore

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	hosterrors "klipper-go-migration/pkg/errors"
	golog "klipper-go-migration/pkg/log"
	"klipper-go-migration/pkg/metrics"
	"klipper-go-migration/pkg/pool"
	"klipper-go-migration/pkg/reactor"
)

const depthMapSavePath = "/sd/dm_surface_transform"

// gcodeCommand is a parsed single-letter-argument command line, the
// calibration core's own adaptation of the dispatcher's gcodeCommand
// (the core never imports the host G-code package -- the dispatcher is
// an explicit external collaborator per the scope notes).
type gcodeCommand struct {
	Name string
	Args map[string]string
}

var reParenComment = regexp.MustCompile(`\([^)]*\)`)

// ParseCommand tokenizes a single G/M-code line into a name and a map
// of upper-cased single-letter arguments to their (string) values.
func ParseCommand(line string) (*gcodeCommand, error) {
	ln := strings.TrimSpace(line)
	if idx := strings.IndexByte(ln, ';'); idx >= 0 {
		ln = strings.TrimSpace(ln[:idx])
	}
	ln = strings.TrimSpace(reParenComment.ReplaceAllString(ln, " "))
	if ln == "" {
		return nil, hosterrors.GCodeParseError(line, "empty command")
	}

	fields := strings.Fields(ln)
	name := strings.ToUpper(fields[0])
	args := pool.GetArgsMap()
	for _, f := range fields[1:] {
		if len(f) < 1 {
			continue
		}
		k := strings.ToUpper(f[:1])
		v := strings.TrimSpace(f[1:])
		args[k] = v
	}
	return &gcodeCommand{Name: name, Args: args}, nil
}

func hasArg(c *gcodeCommand, letter string) bool {
	_, ok := c.Args[letter]
	return ok
}

func floatArg(c *gcodeCommand, letter string, def float64) (float64, error) {
	raw, ok := c.Args[letter]
	if !ok || raw == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, hosterrors.GCodeInvalidParameterError(c.Name, letter, raw, "not a float")
	}
	return f, nil
}

func intArg(c *gcodeCommand, letter string, def int) (int, error) {
	raw, ok := c.Args[letter]
	if !ok || raw == "" {
		return def, nil
	}
	i, err := strconv.Atoi(raw)
	if err != nil {
		return 0, hosterrors.GCodeInvalidParameterError(c.Name, letter, raw, "not an integer")
	}
	return i, nil
}

// Engine wires every calibration-core component together and exposes
// the G/M-code command surface the host dispatcher drives. It owns the
// geometry_dirty ordering guarantee: any M665/M666 write marks geometry
// dirty, and only a successful G32 clears it.
type Engine struct {
	Grid          *Grid
	Arm           ArmSolution
	Kinematics    *KinematicState
	Probe         *ProbeAdapter
	Surface       *SurfaceTransform
	DepthMapper   *DepthMapProber
	Iterative     *IterativeCalibrator
	Energy        *EnergyModel
	Annealer      *Annealer
	Repeatability *RepeatabilityTool

	prefix *prefixStack

	probeClearance float64

	clock          *reactor.Reactor
	registry       *metrics.Registry
	commandCounter *metrics.Counter
	commandLatency *metrics.Histogram
}

// NewEngine wires an Engine over already-constructed components. Build
// each component with its own constructor first (Grid, ProbeAdapter,
// SurfaceTransform, ...); NewEngine just assembles them and owns the
// command-level dispatch and geometry_dirty bookkeeping.
func NewEngine(grid *Grid, arm ArmSolution, kinematics *KinematicState, probe *ProbeAdapter, surface *SurfaceTransform, depthMapper *DepthMapProber, iterative *IterativeCalibrator, energy *EnergyModel, annealer *Annealer, repeatability *RepeatabilityTool, logger *golog.Logger, probeClearance float64) *Engine {
	registry := metrics.NewRegistry()
	commandCounter := metrics.NewCounter("deltacal_commands_total", "G/M-code commands handled by the calibration engine")
	commandLatency := metrics.NewHistogram("deltacal_command_seconds", "wall-clock duration of each calibration command", metrics.DefaultBuckets())
	registry.MustRegister(commandCounter)
	registry.MustRegister(commandLatency)

	return &Engine{
		Grid: grid, Arm: arm, Kinematics: kinematics, Probe: probe, Surface: surface,
		DepthMapper: depthMapper, Iterative: iterative, Energy: energy, Annealer: annealer,
		Repeatability: repeatability, prefix: newPrefixStack(logger), probeClearance: probeClearance,
		clock: reactor.New(), registry: registry, commandCounter: commandCounter, commandLatency: commandLatency,
	}
}

// Metrics renders the engine's command counters and latency histograms
// in Prometheus text format, for the same scraping story pkg/metrics
// gives the rest of the host.
func (e *Engine) Metrics() string { return e.registry.Gather() }

// instrument counts a command invocation and times it against the
// engine's reactor clock; call the returned func when the command
// returns (typically via defer).
func (e *Engine) instrument(name string) func() {
	labels := metrics.Labels{"command": name}
	e.commandCounter.Inc(labels)
	start := e.clock.Monotonic()
	return func() {
		e.commandLatency.Observe(labels, e.clock.Monotonic()-start)
	}
}

// HandleG29 runs the probe repeatability test. Recognized arguments
// mirror spec section 6: A/B are accepted but not read, D toggles
// decelerate-on-trigger, E enables the eccentricity sweep, P/Q override
// priming/smoothing and U/V override the fast/slow feedrates in the
// probe config before the run, S sets sample count.
func (e *Engine) HandleG29(line string) (*RepeatabilityResult, error) {
	c, err := ParseCommand(line)
	if err != nil {
		return nil, err
	}
	defer pool.PutArgsMap(c.Args)
	_, pop := e.prefix.push("G29")
	defer pop()
	defer e.instrument("G29")()

	samples, err := intArg(c, "S", repeatabilityDefaultSamples)
	if err != nil {
		return nil, err
	}
	eccentricity := hasArg(c, "E")

	if d, err := intArg(c, "D", -1); err != nil {
		return nil, err
	} else if d >= 0 {
		cfg := e.Probe.Config()
		cfg.DecelerateOnTrigger = d != 0
		e.Probe.SetConfig(cfg)
	}
	if p, err := intArg(c, "P", -1); err != nil {
		return nil, err
	} else if p >= 0 {
		cfg := e.Probe.Config()
		cfg.Priming = p
		e.Probe.SetConfig(cfg)
	}
	if q, err := intArg(c, "Q", -1); err != nil {
		return nil, err
	} else if q >= 0 {
		cfg := e.Probe.Config()
		cfg.Smoothing = q
		e.Probe.SetConfig(cfg)
	}
	if u, err := floatArg(c, "U", -1); err != nil {
		return nil, err
	} else if u >= 0 {
		cfg := e.Probe.Config()
		cfg.FastFeedrate = u
		e.Probe.SetConfig(cfg)
	}
	if v, err := floatArg(c, "V", -1); err != nil {
		return nil, err
	} else if v >= 0 {
		cfg := e.Probe.Config()
		cfg.SlowFeedrate = v
		e.Probe.SetConfig(cfg)
	}

	return e.Repeatability.Run(samples, eccentricity)
}

// HandleG31 dispatches among the three G31 forms: "A" (probe and save),
// "Z" (probe and display only), and the bare heuristic-calibration form.
func (e *Engine) HandleG31(line string) (interface{}, error) {
	c, err := ParseCommand(line)
	if err != nil {
		return nil, err
	}
	defer pool.PutArgsMap(c.Args)
	defer e.instrument("G31")()

	if hasArg(c, "A") {
		return e.runG31Save()
	}
	if hasArg(c, "Z") {
		return e.runG31Display()
	}
	return e.runG31Heuristic(c)
}

// runG31Save probes the full grid, saves the depth map, and enables
// depth correction. Fails if probe offsets are nonzero, matching the
// requirement that the saved map be referenced from an un-offset probe.
func (e *Engine) runG31Save() (*DepthMapResult, error) {
	_, pop := e.prefix.push("G31")
	defer pop()

	off := e.Probe.Config().Offset
	if off.X != 0 || off.Y != 0 {
		return nil, hosterrors.CalConfigInvalidError("probe offset", "nonzero X/Y probe offset with depth-map save")
	}

	bedHeight, err := e.Probe.FindBedCenterHeight(e.probeClearance)
	if err != nil {
		return nil, err
	}
	result, err := e.DepthMapper.ProbeSurface(bedHeight, true)
	if err != nil {
		return nil, err
	}
	if err := e.Surface.SaveDepthMap(depthMapSavePath); err != nil {
		return nil, err
	}
	e.Surface.SetDepthEnabled(true)
	e.Surface.SetActive(true)
	return result, nil
}

// runG31Display probes the full grid without persisting or enabling
// any correction, for inspection only.
func (e *Engine) runG31Display() (*DepthMapResult, error) {
	_, pop := e.prefix.push("G31")
	defer pop()

	bedHeight, err := e.Probe.FindBedCenterHeight(e.probeClearance)
	if err != nil {
		return nil, err
	}
	return e.DepthMapper.ProbeSurface(bedHeight, true)
}

// runG31Heuristic runs the simulated-annealing calibration. O/P/Q/R/S
// activate endstop/delta-radius/arm-length/tower-angle/virtual-shimming
// respectively, each carrying its annealing-temperature multiplier.
// Without K the cached kinematics snapshot is refreshed from the arm
// solution before the run; with K it is kept as is. Neither form resets
// trims or offsets. L simulates only (no settings are ever applied to the arm solution,
// since every step already writes directly to it -- L is honored by
// snapshotting and restoring kinematics around the run). Y zeros all
// offsets before starting.
func (e *Engine) runG31Heuristic(c *gcodeCommand) (*AnnealerResult, error) {
	_, pop := e.prefix.push("G31")
	defer pop()

	flags, err := parseCaltypeFlags(c)
	if err != nil {
		return nil, err
	}
	cfg, err := parseAnnealerConfig(c)
	if err != nil {
		return nil, err
	}

	if hasArg(c, "Y") {
		for _, t := range []Tower{TowerX, TowerY, TowerZ} {
			e.Arm.SetTowerRadiusOffset(t, 0)
			e.Arm.SetTowerAngleOffset(t, 0)
			e.Arm.SetTowerArmOffset(t, 0)
			e.Arm.SetTrim(t, 0)
		}
	}
	if !hasArg(c, "K") {
		e.Kinematics.pull()
	}

	simulateOnly := hasArg(c, "L")
	var before KinematicSettings
	if simulateOnly {
		before = e.Kinematics.Snapshot()
	}

	measured := e.Surface.DepthMap()
	if measured == nil {
		measured = make([]float64, e.Grid.N*e.Grid.N)
	}
	trim := [3]float64{e.Arm.Trim(TowerX), e.Arm.Trim(TowerY), e.Arm.Trim(TowerZ)}
	axis := e.Energy.SimulateIK(measured, trim)

	result, err := e.Annealer.Run(cfg, axis, flags)
	if err != nil {
		return nil, err
	}

	if simulateOnly {
		if applyErr := e.Kinematics.Apply(before); applyErr != nil {
			return result, applyErr
		}
	} else {
		e.Kinematics.pull()
		settings := e.Kinematics.Snapshot()
		settings.Initialized = true
		if applyErr := e.Kinematics.Apply(settings); applyErr != nil {
			return result, applyErr
		}
	}
	return result, nil
}

func parseCaltypeFlags(c *gcodeCommand) (CaltypeFlags, error) {
	var flags CaltypeFlags
	letterFlag := func(letter string, out *Caltype) error {
		if !hasArg(c, letter) {
			return nil
		}
		mul, err := floatArg(c, letter, 1)
		if err != nil {
			return err
		}
		out.Active = true
		out.AnnealingTempMul = mul
		return nil
	}
	if err := letterFlag("O", &flags.Endstop); err != nil {
		return flags, err
	}
	if err := letterFlag("P", &flags.DeltaRadius); err != nil {
		return flags, err
	}
	if err := letterFlag("Q", &flags.ArmLength); err != nil {
		return flags, err
	}
	if err := letterFlag("R", &flags.TowerAngle); err != nil {
		return flags, err
	}
	if err := letterFlag("S", &flags.VirtualShimming); err != nil {
		return flags, err
	}
	return flags, nil
}

func parseAnnealerConfig(c *gcodeCommand) (AnnealerConfig, error) {
	cfg := AnnealerConfig{Tries: 100, MaxTemp: 2, BinsearchWidth: 0.1, OverrunDivisor: 2}
	var err error
	if cfg.Tries, err = intArg(c, "T", cfg.Tries); err != nil {
		return cfg, err
	}
	if cfg.MaxTemp, err = floatArg(c, "U", cfg.MaxTemp); err != nil {
		return cfg, err
	}
	if cfg.BinsearchWidth, err = floatArg(c, "V", cfg.BinsearchWidth); err != nil {
		return cfg, err
	}
	if cfg.OverrunDivisor, err = floatArg(c, "W", cfg.OverrunDivisor); err != nil {
		return cfg, err
	}
	return cfg.ClampedConfig(), nil
}

// HandleG32 runs the iterative (classical) calibration. K retains
// trim/offsets across the run instead of zeroing them first. Clears
// geometry_dirty on success, per the ordering guarantee.
func (e *Engine) HandleG32(line string) (*IterativeResult, error) {
	c, err := ParseCommand(line)
	if err != nil {
		return nil, err
	}
	defer pool.PutArgsMap(c.Args)
	_, pop := e.prefix.push("G32")
	defer pop()
	defer e.instrument("G32")()

	result, err := e.Iterative.Run(hasArg(c, "K"))
	if err != nil {
		return result, err
	}
	if result.Converged {
		e.Kinematics.pull()
		e.Kinematics.ClearDirty()
	}
	return result, nil
}

// HandleM665 applies any of the {A...F, T, U, V, L, R} arm-solution
// geometry parameters and marks geometry dirty. The calibration core
// does not itself interpret these letters -- they are forwarded
// verbatim to the arm solution via its typed accessors where a mapping
// exists (T=arm length, R=delta radius); any other recognized letter
// still marks geometry dirty even though this core has no accessor
// for it (the full letter set belongs to the arm-solution module).
func (e *Engine) HandleM665(line string) error {
	c, err := ParseCommand(line)
	if err != nil {
		return err
	}
	defer pool.PutArgsMap(c.Args)
	_, pop := e.prefix.push("M665")
	defer pop()
	defer e.instrument("M665")()

	if v, err := floatArg(c, "T", -1); err != nil {
		return err
	} else if v >= 0 {
		e.Arm.SetArmLength(v)
	}
	if v, err := floatArg(c, "R", -1); err != nil {
		return err
	} else if v >= 0 {
		e.Arm.SetDeltaRadius(v)
	}

	e.Kinematics.pull()
	e.Kinematics.dirty = true
	e.Kinematics.reseat()
	return nil
}

// HandleM666 marks geometry dirty without changing any value (used by
// the dispatcher after trim has been adjusted through a different
// command path).
func (e *Engine) HandleM666(line string) error {
	c, err := ParseCommand(line)
	if err != nil {
		return err
	}
	defer pool.PutArgsMap(c.Args)
	_, pop := e.prefix.push("M666")
	defer pop()
	defer e.instrument("M666")()

	e.Kinematics.dirty = true
	return nil
}

// HandleM667 sets the three tri-point z-components (virtual shimming)
// and the plane/depth-map/master enable flags.
func (e *Engine) HandleM667(line string) error {
	c, err := ParseCommand(line)
	if err != nil {
		return err
	}
	defer pool.PutArgsMap(c.Args)
	_, pop := e.prefix.push("M667")
	defer pop()
	defer e.instrument("M667")()

	sx, err := floatArg(c, "A", e.Surface.TriPointZ(TowerX))
	if err != nil {
		return err
	}
	sy, err := floatArg(c, "B", e.Surface.TriPointZ(TowerY))
	if err != nil {
		return err
	}
	sz, err := floatArg(c, "C", e.Surface.TriPointZ(TowerZ))
	if err != nil {
		return err
	}
	e.Surface.SetVirtualShimming(sx, sy, sz)

	if d, err := intArg(c, "D", -1); err != nil {
		return err
	} else if d >= 0 {
		e.Surface.SetPlaneEnabled(d != 0)
	}
	if en, err := intArg(c, "E", -1); err != nil {
		return err
	} else if en >= 0 {
		e.Surface.SetDepthEnabled(en != 0)
	}
	if z, err := intArg(c, "Z", -1); err != nil {
		return err
	} else if z >= 0 {
		e.Surface.SetActive(z != 0)
	}
	return nil
}

// HandleM500 and HandleM503 emit an M667 line reflecting the current
// tri-point Z values and enable flags, for the host's persistent
// settings save stream.
func (e *Engine) HandleM500(w writer) error {
	defer e.instrument("M500")()
	return e.emitM667(w)
}
func (e *Engine) HandleM503(w writer) error {
	defer e.instrument("M503")()
	return e.emitM667(w)
}

// writer is the minimal sink the save-stream collaborator exposes;
// *strings.Builder, a bufio.Writer, or any io.Writer-compatible type
// satisfies it.
type writer interface {
	Write(p []byte) (n int, err error)
}

func (e *Engine) emitM667(w writer) error {
	boolInt := func(b bool) int {
		if b {
			return 1
		}
		return 0
	}
	line := fmt.Sprintf("M667 A%.5f B%.5f C%.5f D%d E%d Z%d\n",
		e.Surface.TriPointZ(TowerX), e.Surface.TriPointZ(TowerY), e.Surface.TriPointZ(TowerZ),
		boolInt(e.Surface.PlaneEnabled()), boolInt(e.Surface.DepthEnabled()), boolInt(e.Surface.Active()))
	_, err := w.Write([]byte(line))
	return err
}
