package main

import (
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/flowline/internal/analysis"
	"github.com/san-kum/flowline/internal/export"
	"github.com/san-kum/flowline/internal/particle"
	"github.com/san-kum/flowline/internal/storage"
	"github.com/san-kum/flowline/internal/viz"
)

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs")
		return nil
	}

	w := newTabWriter()
	fmt.Fprintln(w, "ID\tFIELD\tSTATUS\tSTRATEGY\tTRAJ\tROUNDS\tTIME")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			r.ID, r.Field, r.Status, r.Strategy,
			r.Trajectories, r.Rounds, r.Timestamp.Format(time.DateTime))
	}
	return w.Flush()
}

func showRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}

	rows := []viz.Row{
		{Label: "Field", Value: meta.Field},
		{Label: "Status", Value: string(meta.Status)},
		{Label: "Scheme", Value: meta.Scheme},
		{Label: "Strategy", Value: meta.Strategy},
		{Label: "Trajectories", Value: strconv.Itoa(meta.Trajectories)},
		{Label: "Rounds", Value: strconv.Itoa(meta.Rounds)},
		{Label: "Migrations", Value: strconv.Itoa(meta.Migrations)},
		{Label: "Messages", Value: strconv.Itoa(meta.Messages)},
		{Label: "Saved", Value: meta.Timestamp.Format(time.DateTime)},
	}
	for _, name := range slices.Sorted(maps.Keys(meta.Metrics)) {
		rows = append(rows, viz.Row{Label: name, Value: strconv.FormatFloat(meta.Metrics[name], 'g', 6, 64)})
	}
	if meta.FTLE != nil {
		rows = append(rows, viz.Row{Label: string(meta.FTLE.Measure) + " max", Value: strconv.FormatFloat(meta.FTLE.Max, 'g', 6, 64)})
	}
	if meta.Punctures > 0 {
		rows = append(rows, viz.Row{Label: "Punctures", Value: strconv.Itoa(meta.Punctures)})
	}
	fmt.Println(viz.Summary("run "+meta.ID, rows))

	trs, err := st.LoadTrajectories(meta.ID)
	if err != nil {
		return err
	}
	fmt.Println(viz.Counts("termination", reasonCounts(trs), 30))
	if len(trs) > 1 {
		arcs := make([]float64, len(trs))
		for i, tr := range trs {
			arcs[i] = tr.ArcLength()
		}
		fmt.Println("arc length by particle", viz.Sparkline(arcs, min(len(arcs), 60)))
	}

	for _, w := range meta.Warnings {
		fmt.Println("warning:", w.String())
	}
	if len(meta.Windings) > 0 {
		return printWindings(meta.Windings)
	}
	return nil
}

func plotRun(cmd *cobra.Command, args []string) error {
	proj, err := viz.ParseProjection(projection)
	if err != nil {
		return err
	}
	st := storage.New(dataDir)
	trs, err := st.LoadTrajectories(args[0])
	if err != nil {
		return err
	}
	if len(trs) == 0 {
		return fmt.Errorf("run %s has no trajectories", args[0])
	}

	fmt.Println(viz.RenderTrajectories(trs, proj, width, height))
	if svgOut != "" {
		if err := writeSVG(svgOut, export.TrajectoriesToSVG(trs, proj, width*16, height*32)); err != nil {
			return err
		}
	}

	tr := trs[0]
	if particleID >= 0 {
		tr = nil
		for _, t := range trs {
			if t.ParticleID == particleID {
				tr = t
				break
			}
		}
		if tr == nil {
			return fmt.Errorf("run %s has no particle %d", args[0], particleID)
		}
	}
	speeds := speedSeries(tr)
	if len(speeds) < 2 {
		return nil
	}
	fmt.Println(asciigraph.Plot(speeds,
		asciigraph.Height(8),
		asciigraph.Width(width),
		asciigraph.Caption(fmt.Sprintf("speed along particle %d (%s)", tr.ParticleID, tr.Reason))))
	return nil
}

func speedSeries(tr *particle.Trajectory) []float64 {
	out := make([]float64, len(tr.Points))
	for i, p := range tr.Points {
		out[i] = p.Scalar
	}
	return out
}

func exportRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	var w io.Writer = os.Stdout
	if outFile != "" {
		f, err := os.Create(outFile)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	if err := st.Export(w, args[0], format); err != nil {
		return err
	}
	if outFile != "" {
		fmt.Fprintf(os.Stderr, "exported %s to %s\n", args[0], outFile)
	}
	return nil
}

func writeSVG(path, doc string) error {
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		return fmt.Errorf("failed to write svg: %w", err)
	}
	fmt.Fprintf(os.Stderr, "wrote %s\n", path)
	return nil
}

func printWindings(ws []analysis.WindingResult) error {
	w := newTabWriter()
	fmt.Fprintln(w, "PARTICLE\tSEED\tIOTA\tQ\tTRANSITS\tRATIO\tCONF\tCLASS")
	for _, r := range ws {
		fmt.Fprintf(w, "%d\t%d\t%.6f\t%.4f\t%.1f\t%s\t%.2f\t%s\n",
			r.ParticleID, r.SeedID, r.Iota, r.Q, r.Transits, r.Ratio, r.Confidence, r.Class)
	}
	return w.Flush()
}
