package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/san-kum/flowline/internal/config"
	"github.com/san-kum/flowline/internal/experiment"
	"github.com/san-kum/flowline/internal/integrators"
	"github.com/san-kum/flowline/internal/sim"
)

func listPresets(cmd *cobra.Command, args []string) error {
	fields := config.PresetFields()
	if len(args) > 0 {
		if config.ListPresets(args[0]) == nil {
			return fmt.Errorf("no presets for field %s (have: %v)", args[0], fields)
		}
		fields = args[:1]
	}
	for _, field := range fields {
		fmt.Printf("%s: %s\n", field, strings.Join(config.ListPresets(field), ", "))
	}
	return nil
}

func listSchemes(cmd *cobra.Command, args []string) error {
	w := newTabWriter()
	fmt.Fprintln(w, "SCHEME\tORDER\tADAPTIVE")
	for _, name := range integrators.Names() {
		s, err := integrators.Lookup(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%d\t%t\n", name, s.Order(), s.Adaptive())
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Println()

	registry := experiment.NewRegistry()
	w = newTabWriter()
	fmt.Fprintln(w, "FIELD\tPARAMS\tDESCRIPTION")
	for _, name := range registry.ListFields() {
		spec, _ := registry.Field(name)
		var ps []string
		for k, v := range spec.Defaults {
			ps = append(ps, fmt.Sprintf("%s=%g", k, v))
		}
		sort.Strings(ps)
		fmt.Fprintf(w, "%s\t%s\t%s\n", name, strings.Join(ps, " "), spec.Description)
	}
	return w.Flush()
}

// benchSchemes integrates the default seeds of field once per scheme and
// reports throughput in trajectory points per second.
func benchSchemes(cmd *cobra.Command, args []string) error {
	p, err := parseParams(params)
	if err != nil {
		return err
	}

	w := newTabWriter()
	fmt.Fprintln(w, "SCHEME\tPOINTS\tTIME\tPOINTS/SEC\tSTATUS")
	for _, name := range integrators.Names() {
		cfg := config.DefaultConfig()
		if len(args) > 0 {
			cfg.Field.Name = args[0]
		}
		cfg.Field.Params = p
		cfg.Integration.Scheme = name
		cfg.Parallel.Ranks = ranks

		exp := experiment.New(cfg)
		if err := exp.Setup(); err != nil {
			return err
		}
		start := time.Now()
		res, err := exp.Run(context.Background())
		elapsed := time.Since(start)

		status := "error"
		points := 0
		if res != nil {
			status = string(res.Status)
			for _, tr := range res.Trajectories {
				points += tr.Len()
			}
		}
		if err != nil && (res == nil || res.Status != sim.Errored) {
			status = "error: " + err.Error()
		}
		rate := 0.0
		if s := elapsed.Seconds(); s > 0 {
			rate = float64(points) / s
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%.0f\t%s\n", name, points, elapsed.Truncate(time.Microsecond), rate, status)
	}
	return w.Flush()
}
