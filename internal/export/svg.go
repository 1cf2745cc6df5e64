// Package export writes run plots as standalone SVG documents.
package export

import (
	"fmt"
	"math"
	"strings"

	"github.com/san-kum/flowline/internal/analysis"
	"github.com/san-kum/flowline/internal/particle"
	"github.com/san-kum/flowline/internal/viz"
)

const background = "#0a0a0a"

// Palette colors trajectories by particle, cycling.
var Palette = []string{"#00a8cc", "#ffd700", "#00ff88", "#ff6f61", "#b388ff", "#ff9100"}

// window maps data coordinates into a width x height viewport with 5%
// padding, y growing upwards.
type window struct {
	minU, minV, scale float64
	width, height     float64
}

func fit(pts [][2]float64, width, height int) window {
	w := window{width: float64(width), height: float64(height)}
	if len(pts) == 0 {
		w.scale = 1
		return w
	}
	minU, minV := math.Inf(1), math.Inf(1)
	maxU, maxV := math.Inf(-1), math.Inf(-1)
	for _, p := range pts {
		minU, maxU = math.Min(minU, p[0]), math.Max(maxU, p[0])
		minV, maxV = math.Min(minV, p[1]), math.Max(maxV, p[1])
	}
	du, dv := maxU-minU, maxV-minV
	if du == 0 && dv == 0 {
		du, dv = 1, 1
	}
	w.scale = math.Max(du/(0.9*w.width), dv/(0.9*w.height))
	w.minU = (minU+maxU)/2 - w.scale*w.width/2
	w.minV = (minV+maxV)/2 - w.scale*w.height/2
	return w
}

func (w window) xy(p [2]float64) (float64, float64) {
	return (p[0] - w.minU) / w.scale, w.height - (p[1]-w.minV)/w.scale
}

func header(sb *strings.Builder, width, height int) {
	fmt.Fprintf(sb, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="%s"/>
`, width, height, width, height, background)
}

// TrajectoriesToSVG draws every trajectory as a path through proj.
func TrajectoriesToSVG(trs []*particle.Trajectory, proj viz.Projection, width, height int) string {
	lines := make([][][2]float64, len(trs))
	var all [][2]float64
	for i, tr := range trs {
		for _, p := range tr.Points {
			q := proj.Project(p.Position)
			lines[i] = append(lines[i], q)
			all = append(all, q)
		}
	}
	win := fit(all, width, height)

	var sb strings.Builder
	header(&sb, width, height)
	for i, line := range lines {
		if len(line) < 2 {
			continue
		}
		fmt.Fprintf(&sb, `<path fill="none" stroke="%s" stroke-width="1.5" data-particle="%d" d="`,
			Palette[i%len(Palette)], trs[i].ParticleID)
		for j, p := range line {
			x, y := win.xy(p)
			if j == 0 {
				fmt.Fprintf(&sb, "M%.1f,%.1f", x, y)
			} else {
				fmt.Fprintf(&sb, " L%.1f,%.1f", x, y)
			}
		}
		sb.WriteString("\"/>\n")
	}
	sb.WriteString("</svg>")
	return sb.String()
}

// PuncturesToSVG draws section crossings in section coordinates, one
// color per particle.
func PuncturesToSVG(ps []analysis.Puncture, width, height int) string {
	pts := make([][2]float64, len(ps))
	for i, p := range ps {
		pts[i] = [2]float64{p.U, p.V}
	}
	win := fit(pts, width, height)

	color := make(map[int64]string)
	var sb strings.Builder
	header(&sb, width, height)
	for i, p := range ps {
		c, ok := color[p.ParticleID]
		if !ok {
			c = Palette[len(color)%len(Palette)]
			color[p.ParticleID] = c
		}
		x, y := win.xy(pts[i])
		fmt.Fprintf(&sb, "<circle cx=\"%.1f\" cy=\"%.1f\" r=\"1.5\" fill=\"%s\"/>\n", x, y, c)
	}
	sb.WriteString("</svg>")
	return sb.String()
}

// CanvasToSVG converts a Braille canvas to SVG, one circle per lit dot.
func CanvasToSVG(canvas *viz.Canvas, scale float64) string {
	if canvas == nil {
		return ""
	}
	width := int(float64(canvas.Width) * scale * 2)
	height := int(float64(canvas.Height) * scale * 4)

	pixelMap := [4][2]int{
		{0x01, 0x08},
		{0x02, 0x10},
		{0x04, 0x20},
		{0x40, 0x80},
	}
	dotRadius := scale * 0.4

	var sb strings.Builder
	header(&sb, width, height)
	fmt.Fprintf(&sb, "<g fill=\"%s\">\n", Palette[0])
	for row := 0; row < canvas.Height; row++ {
		for col := 0; col < canvas.Width; col++ {
			r := canvas.Grid[row][col]
			if r <= 0x2800 {
				continue
			}
			pattern := int(r - 0x2800)
			baseX := float64(col) * scale * 2
			baseY := float64(row) * scale * 4
			for dy := 0; dy < 4; dy++ {
				for dx := 0; dx < 2; dx++ {
					if pattern&pixelMap[dy][dx] == 0 {
						continue
					}
					cx := baseX + float64(dx)*scale + scale/2
					cy := baseY + float64(dy)*scale + scale/2
					fmt.Fprintf(&sb, "<circle cx=\"%.1f\" cy=\"%.1f\" r=\"%.1f\"/>\n", cx, cy, dotRadius)
				}
			}
		}
	}
	sb.WriteString("</g>\n</svg>")
	return sb.String()
}
