package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/san-kum/flowline/internal/config"
	"github.com/san-kum/flowline/internal/dynamo"
	"github.com/san-kum/flowline/internal/experiment"
	"github.com/san-kum/flowline/internal/particle"
	"github.com/san-kum/flowline/internal/sim"
	"github.com/san-kum/flowline/internal/storage"
	"github.com/san-kum/flowline/internal/viz"
)

// resolveConfig picks the base config (picker, preset, file or defaults)
// and applies the flags the user set explicitly.
func resolveConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	field := ""
	if len(args) > 0 {
		field = args[0]
	}

	var cfg *config.Config
	switch {
	case pick:
		choice, ok, err := viz.Pick(presetChoices())
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("no preset chosen")
		}
		cfg = config.GetPreset(choice.Field, choice.Name)
	case configFile != "":
		c, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = c
	case preset != "":
		if field == "" {
			return nil, fmt.Errorf("--preset needs a field, one of %v", config.PresetFields())
		}
		cfg = config.GetPreset(field, preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets(field))
		}
	default:
		cfg = config.DefaultConfig()
	}

	if field != "" && field != cfg.Field.Name {
		cfg.Field.Name = field
		cfg.Field.Params = nil
	}

	fl := cmd.Flags()
	if fl.Changed("param") {
		p, err := parseParams(params)
		if err != nil {
			return nil, err
		}
		cfg.Field.Params = p
	}
	if fl.Changed("domains") {
		if len(domains) != 3 {
			return nil, fmt.Errorf("--domains wants nx,ny,nz, got %v", domains)
		}
		copy(cfg.Field.Domains[:], domains)
	}
	if fl.Changed("scheme") {
		cfg.Integration.Scheme = scheme
	}
	if fl.Changed("max-step") {
		cfg.Integration.MaxStep = maxStep
	}
	if fl.Changed("min-step") {
		cfg.Integration.MinStep = minStep
	}
	if fl.Changed("abs-tol") {
		cfg.Integration.AbsTol = absTol
	}
	if fl.Changed("rel-tol") {
		cfg.Integration.RelTol = relTol
	}
	if fl.Changed("direction") {
		cfg.Integration.Direction = direction
	}
	if fl.Changed("max-steps") {
		cfg.Limits.MaxSteps = maxSteps
	}
	if fl.Changed("max-time") {
		cfg.Limits.MaxTime = maxTime
	}
	if fl.Changed("max-distance") {
		cfg.Limits.MaxDistance = maxDistance
	}
	if fl.Changed("strategy") {
		cfg.Parallel.Strategy = strategy
	}
	if fl.Changed("ranks") {
		cfg.Parallel.Ranks = ranks
	}
	if fl.Changed("group-size") {
		cfg.Parallel.GroupSize = groupSize
	}
	if fl.Changed("ftle") {
		cfg.Analysis.FTLE = ftleMeasure
	}
	if fl.Changed("section") {
		cfg.Analysis.Section = section
	}
	if fl.Changed("overlap") {
		cfg.Analysis.Overlap = overlap
	}
	if fl.Changed("data") {
		cfg.Output = dataDir
	}
	return cfg, nil
}

func runIntegration(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}
	if saveConfig != "" {
		if err := config.Save(saveConfig, cfg); err != nil {
			return err
		}
	}

	exp := experiment.New(cfg)
	if err := exp.Setup(); err != nil {
		return err
	}

	if metricsAddr != "" {
		srv := serveMetrics(metricsAddr)
		defer srv.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Fprintf(os.Stderr, "integrating %d seeds through %s...\n", len(exp.Seeds()), cfg.Field.Name)
	start := time.Now()

	var res *sim.Result
	if live {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		total := len(exp.Seeds())
		if exp.Request().Direction == dynamo.Both {
			total *= 2
		}
		res, err = viz.RunLive(cfg.Field.Name, total, cancel, func(observe func(sim.Progress)) (*sim.Result, error) {
			return exp.Run(ctx, sim.WithProgress(observe))
		}, tea.WithOutput(os.Stderr))
	} else {
		res, err = exp.Run(ctx)
	}
	elapsed := time.Since(start)
	if res == nil {
		return err
	}
	runErr := err

	run := storage.Run{Config: cfg, Result: res}
	if res.Status == sim.Completed {
		a, err := exp.Analyze(res)
		if err != nil {
			slog.Warn("run: analysis failed", "err", err)
		} else {
			run.FTLE, run.Punctures, run.Windings = a.FTLE, a.Punctures, a.Windings
		}
	}

	st := storage.New(cfg.Output)
	if err := st.Init(); err != nil {
		return err
	}
	runID, err := st.Save(run)
	if err != nil {
		return err
	}

	fmt.Println(viz.Summary("run "+runID, []viz.Row{
		{Label: "Field", Value: cfg.Field.Name},
		{Label: "Status", Value: string(res.Status)},
		{Label: "Strategy", Value: string(res.Strategy)},
		{Label: "Trajectories", Value: strconv.Itoa(len(res.Trajectories))},
		{Label: "Rounds", Value: strconv.Itoa(res.Rounds)},
		{Label: "Migrations", Value: strconv.Itoa(res.Migrations)},
		{Label: "Messages", Value: strconv.Itoa(res.Messages)},
		{Label: "Warnings", Value: strconv.Itoa(len(res.Warnings))},
		{Label: "Elapsed", Value: elapsed.Truncate(time.Millisecond).String()},
	}))
	fmt.Println(viz.Counts("termination", reasonCounts(res.Trajectories), 30))
	if run.FTLE != nil {
		fmt.Printf("%s max: %.6f\n", run.FTLE.Measure, run.FTLE.Max())
	}
	if len(run.Windings) > 0 {
		if err := printWindings(run.Windings); err != nil {
			return err
		}
	}
	return runErr
}

func reasonCounts(trs []*particle.Trajectory) map[string]int {
	counts := make(map[string]int)
	for _, tr := range trs {
		counts[tr.Reason.String()]++
	}
	return counts
}

func serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics: server stopped", "addr", addr, "err", err)
		}
	}()
	return srv
}

func presetChoices() []viz.Choice {
	registry := experiment.NewRegistry()
	var choices []viz.Choice
	for _, field := range config.PresetFields() {
		desc := ""
		if spec, ok := registry.Field(field); ok {
			desc = spec.Description
		}
		for _, name := range config.ListPresets(field) {
			choices = append(choices, viz.Choice{Field: field, Name: name, Description: desc})
		}
	}
	return choices
}

func newTabWriter() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
}
