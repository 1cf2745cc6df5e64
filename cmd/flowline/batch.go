package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/san-kum/flowline/internal/automation"
	"github.com/san-kum/flowline/internal/config"
)

func batchContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

// baseConfig is the defaults, or a preset when --preset is set, with the
// field argument applied.
func baseConfig(args []string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if preset != "" {
		if len(args) == 0 {
			return nil, fmt.Errorf("--preset needs a field")
		}
		if cfg = config.GetPreset(args[0], preset); cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s", preset)
		}
	} else if len(args) > 0 {
		cfg.Field.Name = args[0]
	}
	if maxSteps > 0 {
		cfg.Limits.MaxSteps = maxSteps
	}
	return cfg, nil
}

func runScenario(cmd *cobra.Command, args []string) error {
	sc, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}
	ctx, stop := batchContext()
	defer stop()

	outs, err := automation.RunScenario(ctx, sc, slog.Default())
	w := newTabWriter()
	fmt.Fprintln(w, "STEP\tFIELD\tSCHEME\tSTRATEGY\tSTATUS\tTRAJ\tCOMPLETION\tMEAN ARC")
	for i, o := range outs {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d\t%.3f\t%.4f\n", i+1,
			o.Config.Field.Name, o.Config.Integration.Scheme, o.Result.Strategy, o.Result.Status,
			len(o.Result.Trajectories), o.Metrics["completion"], o.Metrics["mean_arc_length"])
	}
	if ferr := w.Flush(); ferr != nil {
		return ferr
	}
	return err
}

func runSweep(cmd *cobra.Command, args []string) error {
	base, err := baseConfig(args)
	if err != nil {
		return err
	}
	ctx, stop := batchContext()
	defer stop()

	results, err := automation.RunSweep(ctx, &automation.ParameterSweep{
		Base:      base,
		ParamName: sweepParam,
		ParamMin:  sweepFrom,
		ParamMax:  sweepTo,
		NumSteps:  sweepSteps,
	}, slog.Default())
	if err != nil {
		return err
	}

	w := newTabWriter()
	fmt.Fprintf(w, "%s\tSTATUS\t%s\n", sweepParam, sweepMetric)
	for _, r := range results {
		fmt.Fprintf(w, "%g\t%s\t%s\n", r.ParamValue, r.Status, strconv.FormatFloat(r.Metrics[sweepMetric], 'g', 6, 64))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if best, ok := automation.Best(results, sweepMetric, maximize); ok {
		fmt.Printf("best %s=%g (%s %g)\n", sweepParam, best.ParamValue, sweepMetric, best.Metrics[sweepMetric])
	}
	return nil
}

func runMonteCarlo(cmd *cobra.Command, args []string) error {
	base, err := baseConfig(args)
	if err != nil {
		return err
	}
	ctx, stop := batchContext()
	defer stop()

	results, err := automation.RunMonteCarlo(ctx, &automation.MonteCarloConfig{
		Base:         base,
		Perturbation: perturbation,
		NumTrials:    trials,
		Seed:         rngSeed,
	}, slog.Default())
	if err != nil {
		return err
	}
	contained, escaped := automation.MonteCarloStats(results)
	fmt.Printf("%d trials: %d contained, %d with lines leaving the domain\n", len(results), contained, escaped)
	return nil
}
