package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"sort"
	"strings"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/flowline/internal/analysis"
	"github.com/san-kum/flowline/internal/experiment"
	"github.com/san-kum/flowline/internal/export"
	"github.com/san-kum/flowline/internal/storage"
	"github.com/san-kum/flowline/internal/viz"
)

const heatRamp = " .:-=+*#%@"

func showFTLE(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	f, err := st.LoadFTLE(args[0])
	if err != nil {
		return err
	}
	nx, ny := f.Dims[0], f.Dims[1]
	peak := f.Max()

	fmt.Printf("%s over %dx%dx%d seeds, max %.6f\n", f.Measure, f.Dims[0], f.Dims[1], f.Dims[2], peak)
	fmt.Println(heatmap(f, 0, peak))

	row := make([]float64, 0, nx)
	for i := 0; i < nx; i++ {
		v := f.At(i, ny/2, 0)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			v = 0
		}
		row = append(row, v)
	}
	if len(row) > 1 {
		fmt.Println(asciigraph.Plot(row,
			asciigraph.Height(8),
			asciigraph.Width(width),
			asciigraph.Caption(fmt.Sprintf("%s along row j=%d", f.Measure, ny/2))))
	}
	return nil
}

// heatmap renders layer k with y increasing upwards.
func heatmap(f *analysis.FTLEField, k int, peak float64) string {
	var b strings.Builder
	ramp := []rune(heatRamp)
	for j := f.Dims[1] - 1; j >= 0; j-- {
		for i := 0; i < f.Dims[0]; i++ {
			v := f.At(i, j, k)
			idx := 0
			if peak > 0 && v > 0 && !math.IsInf(v, 0) {
				idx = int(v / peak * float64(len(ramp)-1))
			}
			idx = min(max(idx, 0), len(ramp)-1)
			b.WriteRune(ramp[idx])
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func showPoincare(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	ps, err := st.LoadPunctures(meta.ID)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("overlap") {
		mode, err := analysis.ParseOverlapMode(overlap)
		if err != nil {
			return err
		}
		if ps, err = analysis.Reconcile(ps, mode, tolerance); err != nil {
			return err
		}
	}

	fmt.Printf("%d punctures on the %s section\n", len(ps), meta.Config.Analysis.Section)
	fmt.Println(viz.RenderPunctures(ps, width, height))
	if svgOut != "" {
		if err := writeSVG(svgOut, export.PuncturesToSVG(ps, width*16, height*32)); err != nil {
			return err
		}
	}

	if len(meta.Windings) > 0 {
		if err := printWindings(meta.Windings); err != nil {
			return err
		}
	}
	if meta.Config.Analysis.Section == "toroidal" {
		if err := printSpectral(ps, meta.Config.Analysis.Axis); err != nil {
			return err
		}
	}

	if refine == "" && profile < 2 {
		return nil
	}
	exp := experiment.New(meta.Config)
	if err := exp.Setup(); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if profile >= 2 {
		prof, err := analysis.QProfile(ctx, exp.SafetyFactor(), refineLo, refineHi, profile)
		if err != nil {
			return err
		}
		qs := make([]float64, len(prof))
		for i, p := range prof {
			qs[i] = p.Q
		}
		fmt.Println(asciigraph.Plot(qs,
			asciigraph.Height(10),
			asciigraph.Width(width),
			asciigraph.Caption(fmt.Sprintf("q(r) for r in [%g, %g]", refineLo, refineHi))))
	}
	if refine == "" {
		return nil
	}
	target, err := parseRational(refine)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "refining q = %s on r in [%g, %g]...\n", target, refineLo, refineHi)
	surf, err := analysis.RefineRationalSurface(ctx, exp.SafetyFactor(), target, refineLo, refineHi, refineTol, 50)
	if err != nil {
		return err
	}
	fmt.Println(viz.Summary("rational surface", []viz.Row{
		{Label: "Target", Value: surf.Target.String()},
		{Label: "Radius", Value: fmt.Sprintf("%.6f", surf.Radius)},
		{Label: "q", Value: fmt.Sprintf("%.6f", surf.Q)},
		{Label: "Iterations", Value: fmt.Sprint(surf.Iterations)},
	}))
	return nil
}

func printSpectral(ps []analysis.Puncture, axis analysis.Axis) error {
	byParticle := make(map[int64][]analysis.Puncture)
	for _, p := range ps {
		byParticle[p.ParticleID] = append(byParticle[p.ParticleID], p)
	}
	ids := make([]int64, 0, len(byParticle))
	for id := range byParticle {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	w := newTabWriter()
	fmt.Fprintln(w, "PARTICLE\tPUNCTURES\tSPECTRAL IOTA")
	for _, id := range ids {
		iota, err := analysis.SpectralIota(byParticle[id], axis)
		if err != nil {
			fmt.Fprintf(w, "%d\t%d\t-\n", id, len(byParticle[id]))
			continue
		}
		fmt.Fprintf(w, "%d\t%d\t%.6f\n", id, len(byParticle[id]), iota)
	}
	return w.Flush()
}
