package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/san-kum/flowline/internal/analysis"
	"github.com/san-kum/flowline/internal/config"
	"github.com/san-kum/flowline/internal/viz"
)

var (
	dataDir string
	verbose bool
	theme   string

	// run
	configFile  string
	preset      string
	pick        bool
	live        bool
	metricsAddr string
	scheme      string
	maxStep     float64
	minStep     float64
	absTol      float64
	relTol      float64
	direction   string
	maxSteps    int
	maxTime     float64
	maxDistance float64
	strategy    string
	ranks       int
	groupSize   int
	domains     []int
	params      []string
	ftleMeasure string
	section     string
	overlap     string
	saveConfig  string

	// inspection
	projection string
	width      int
	height     int
	particleID int64
	format     string
	outFile    string
	svgOut     string
	tolerance  float64
	refine     string
	refineLo   float64
	refineHi   float64
	refineTol  float64
	profile    int

	// batch
	sweepParam   string
	sweepFrom    float64
	sweepTo      float64
	sweepSteps   int
	sweepMetric  string
	maximize     bool
	trials       int
	perturbation float64
	rngSeed      uint64
)

// main registers the flowline commands and exits with status 1 when the
// selected command fails.
func main() {
	rootCmd := &cobra.Command{
		Use:   "flowline",
		Short: "parallel field-line integration",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
			viz.SetTheme(theme)
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", config.DefaultOutput, "data directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVar(&theme, "theme", "ocean", "color theme ("+strings.Join(viz.ThemeNames(), ", ")+")")

	runCmd := &cobra.Command{
		Use:   "run [field]",
		Short: "integrate field lines from a config, a preset or flags",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runIntegration,
	}
	f := runCmd.Flags()
	f.StringVar(&configFile, "config", "", "config file (yaml, or .gcfg/.ini)")
	f.StringVar(&preset, "preset", "", "preset of the field")
	f.BoolVar(&pick, "pick", false, "choose a preset interactively")
	f.BoolVar(&live, "live", false, "show live progress")
	f.StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address during the run")
	f.StringVar(&scheme, "scheme", "dopri5", "integration scheme")
	f.Float64Var(&maxStep, "max-step", 0.1, "maximum step length")
	f.Float64Var(&minStep, "min-step", 1e-8, "minimum step length")
	f.Float64Var(&absTol, "abs-tol", 1e-7, "absolute tolerance")
	f.Float64Var(&relTol, "rel-tol", 1e-6, "relative tolerance")
	f.StringVar(&direction, "direction", "forward", "forward, backward or both")
	f.IntVar(&maxSteps, "max-steps", config.DefaultMaxSteps, "step limit per particle")
	f.Float64Var(&maxTime, "max-time", 0, "time limit per particle")
	f.Float64Var(&maxDistance, "max-distance", 0, "arc length limit per particle")
	f.StringVar(&strategy, "strategy", "auto", "curves, domains, hybrid or auto")
	f.IntVar(&ranks, "ranks", 1, "number of ranks")
	f.IntVar(&groupSize, "group-size", 1, "ranks per group (hybrid)")
	f.IntSliceVar(&domains, "domains", []int{1, 1, 1}, "domain grid nx,ny,nz")
	f.StringSliceVar(&params, "param", nil, "field parameter name=value (repeatable)")
	f.StringVar(&ftleMeasure, "ftle", "", "compute ftle, fdle or fsle over a box seed grid")
	f.StringVar(&section, "section", "", "poincare section: toroidal or plane")
	f.StringVar(&overlap, "overlap", "", "puncture overlap mode: raw, remove, merge or smooth")
	f.StringVar(&saveConfig, "save-config", "", "write the effective config to this path")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		RunE:  listRuns,
	}

	showCmd := &cobra.Command{
		Use:   "show [run_id]",
		Short: "summarize a run",
		Args:  cobra.ExactArgs(1),
		RunE:  showRun,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "draw the trajectories of a run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringVar(&projection, "projection", "xy", "xy, xz, yz or 3d")
	plotCmd.Flags().IntVar(&width, "width", 60, "canvas width in cells")
	plotCmd.Flags().IntVar(&height, "height", 20, "canvas height in cells")
	plotCmd.Flags().Int64Var(&particleID, "particle", -1, "particle whose speed is charted")
	plotCmd.Flags().StringVar(&svgOut, "svg", "", "also write the plot as svg to this path")

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export a run with its trajectories",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}
	exportCmd.Flags().StringVar(&format, "format", "json", "json or msgpack")
	exportCmd.Flags().StringVarP(&outFile, "out", "o", "", "output file (default stdout)")

	ftleCmd := &cobra.Command{
		Use:   "ftle [run_id]",
		Short: "show the Lyapunov exponent field of a run",
		Args:  cobra.ExactArgs(1),
		RunE:  showFTLE,
	}
	ftleCmd.Flags().IntVar(&width, "width", 60, "chart width")

	poincareCmd := &cobra.Command{
		Use:   "poincare [run_id]",
		Short: "show section punctures, winding and rational surfaces",
		Args:  cobra.ExactArgs(1),
		RunE:  showPoincare,
	}
	pf := poincareCmd.Flags()
	pf.StringVar(&overlap, "overlap", "", "re-reconcile punctures: raw, remove, merge or smooth")
	pf.Float64Var(&tolerance, "tolerance", 1e-3, "overlap tolerance")
	pf.IntVar(&width, "width", 60, "canvas width in cells")
	pf.IntVar(&height, "height", 20, "canvas height in cells")
	pf.StringVar(&refine, "refine", "", "locate the surface with safety factor p/q")
	pf.Float64Var(&refineLo, "lo", 0.05, "smallest minor radius searched")
	pf.Float64Var(&refineHi, "hi", 0.9, "largest minor radius searched")
	pf.Float64Var(&refineTol, "refine-tol", 1e-3, "safety factor tolerance")
	pf.StringVar(&svgOut, "svg", "", "also write the punctures as svg to this path")
	pf.IntVar(&profile, "profile", 0, "chart q(r) at this many radii in [lo, hi]")

	presetsCmd := &cobra.Command{
		Use:   "presets [field]",
		Short: "list presets",
		Args:  cobra.MaximumNArgs(1),
		RunE:  listPresets,
	}

	schemesCmd := &cobra.Command{
		Use:   "schemes",
		Short: "list integration schemes and fields",
		RunE:  listSchemes,
	}

	benchCmd := &cobra.Command{
		Use:   "bench [field]",
		Short: "compare schemes on a field",
		Args:  cobra.MaximumNArgs(1),
		RunE:  benchSchemes,
	}
	benchCmd.Flags().StringSliceVar(&params, "param", nil, "field parameter name=value (repeatable)")
	benchCmd.Flags().IntVar(&ranks, "ranks", 1, "number of ranks")

	scenarioCmd := &cobra.Command{
		Use:   "scenario [file]",
		Short: "run the steps of a yaml scenario",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}

	sweepCmd := &cobra.Command{
		Use:   "sweep [field]",
		Short: "sweep one field parameter and report a metric",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSweep,
	}
	sf := sweepCmd.Flags()
	sf.StringVar(&preset, "preset", "", "preset of the field")
	sf.IntVar(&maxSteps, "max-steps", 0, "step limit per particle")
	sf.StringVar(&sweepParam, "vary", "", "field parameter to sweep")
	sf.Float64Var(&sweepFrom, "from", 0, "first value")
	sf.Float64Var(&sweepTo, "to", 1, "last value")
	sf.IntVar(&sweepSteps, "steps", 5, "number of values")
	sf.StringVar(&sweepMetric, "metric", "mean_arc_length", "metric reported and optimized")
	sf.BoolVar(&maximize, "maximize", false, "pick the largest metric instead of the smallest")
	_ = sweepCmd.MarkFlagRequired("vary")

	mcCmd := &cobra.Command{
		Use:   "montecarlo [field]",
		Short: "perturb the seeds randomly and count escaping lines",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runMonteCarlo,
	}
	mf := mcCmd.Flags()
	mf.StringVar(&preset, "preset", "", "preset of the field")
	mf.IntVar(&maxSteps, "max-steps", 0, "step limit per particle")
	mf.IntVar(&trials, "trials", 20, "number of trials")
	mf.Float64Var(&perturbation, "perturb", 0.05, "largest seed offset per axis")
	mf.Uint64Var(&rngSeed, "seed", 1, "random seed")

	rootCmd.AddCommand(runCmd, listCmd, showCmd, plotCmd, exportCmd, ftleCmd, poincareCmd,
		presetsCmd, schemesCmd, benchCmd, scenarioCmd, sweepCmd, mcCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func parseParams(kvs []string) (map[string]float64, error) {
	if len(kvs) == 0 {
		return nil, nil
	}
	out := make(map[string]float64, len(kvs))
	for _, kv := range kvs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("param %q: want name=value", kv)
		}
		x, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("param %q: %w", kv, err)
		}
		out[strings.TrimSpace(k)] = x
	}
	return out, nil
}

func parseRational(s string) (analysis.Rational, error) {
	p, q, ok := strings.Cut(s, "/")
	if !ok {
		return analysis.Rational{}, fmt.Errorf("rational %q: want p/q", s)
	}
	pi, err := strconv.Atoi(p)
	if err != nil {
		return analysis.Rational{}, fmt.Errorf("rational %q: %w", s, err)
	}
	qi, err := strconv.Atoi(q)
	if err != nil || qi <= 0 {
		return analysis.Rational{}, fmt.Errorf("rational %q: bad denominator", s)
	}
	return analysis.Rational{P: pi, Q: qi}, nil
}
