package viz

import (
	"math"
	"strings"

	"github.com/san-kum/flowline/internal/analysis"
	"github.com/san-kum/flowline/internal/particle"
)

// Braille Patterns: 2x4 dots
// 1 4
// 2 5
// 3 6
// 7 8
//
// Unicode offset 0x2800
var pixelMap = [4][2]int{
	{0x1, 0x8},
	{0x2, 0x10},
	{0x4, 0x20},
	{0x40, 0x80},
}

const blank = 0x2800

// Canvas is a grid of Braille cells, 2x4 dots each. Data is drawn
// through a window set by Fit.
type Canvas struct {
	Width, Height int
	Grid          [][]rune

	minU, minV, maxU, maxV float64
}

func NewCanvas(w, h int) *Canvas {
	c := &Canvas{
		Width:  w,
		Height: h,
		Grid:   make([][]rune, h),
		maxU:   1,
		maxV:   1,
	}
	for i := range c.Grid {
		c.Grid[i] = make([]rune, w)
	}
	c.Clear()
	return c
}

// Set lights dot (x, y). The canvas is Width*2 by Height*4 dots.
func (c *Canvas) Set(x, y int) {
	if x < 0 || y < 0 {
		return
	}
	col, row := x/2, y/4
	if col >= c.Width || row >= c.Height {
		return
	}
	c.Grid[row][col] |= rune(pixelMap[y%4][x%2])
}

func (c *Canvas) Clear() {
	for i := range c.Grid {
		for j := range c.Grid[i] {
			c.Grid[i][j] = blank
		}
	}
}

// DrawLine draws a dot line using Bresenham's algorithm.
func (c *Canvas) DrawLine(x0, y0, x1, y1 int) {
	dx := absInt(x1 - x0)
	dy := absInt(y1 - y0)
	sx := -1
	if x0 < x1 {
		sx = 1
	}
	sy := -1
	if y0 < y1 {
		sy = 1
	}
	err := dx - dy

	for {
		c.Set(x0, y0)
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x0 += sx
		}
		if e2 < dx {
			err += dx
			y0 += sy
		}
	}
}

// Fit sets the data window to the bounding box of pts, keeping the aspect
// ratio of one dot per unit in both directions.
func (c *Canvas) Fit(pts [][2]float64) {
	if len(pts) == 0 {
		return
	}
	c.minU, c.minV = math.Inf(1), math.Inf(1)
	c.maxU, c.maxV = math.Inf(-1), math.Inf(-1)
	for _, p := range pts {
		c.minU, c.maxU = math.Min(c.minU, p[0]), math.Max(c.maxU, p[0])
		c.minV, c.maxV = math.Min(c.minV, p[1]), math.Max(c.maxV, p[1])
	}

	du, dv := c.maxU-c.minU, c.maxV-c.minV
	if du == 0 && dv == 0 {
		du, dv = 1, 1
	}
	w, h := float64(c.Width*2-1), float64(c.Height*4-1)
	scale := math.Max(du/w, dv/h)
	cu, cv := (c.minU+c.maxU)/2, (c.minV+c.maxV)/2
	c.minU, c.maxU = cu-scale*w/2, cu+scale*w/2
	c.minV, c.maxV = cv-scale*h/2, cv+scale*h/2
}

// dot maps data coordinates to a dot; v grows upwards.
func (c *Canvas) dot(p [2]float64) (int, int) {
	w, h := float64(c.Width*2-1), float64(c.Height*4-1)
	x := (p[0] - c.minU) / (c.maxU - c.minU) * w
	y := (c.maxV - p[1]) / (c.maxV - c.minV) * h
	return int(math.Round(x)), int(math.Round(y))
}

func (c *Canvas) Point(p [2]float64) {
	c.Set(c.dot(p))
}

func (c *Canvas) Line(a, b [2]float64) {
	x0, y0 := c.dot(a)
	x1, y1 := c.dot(b)
	c.DrawLine(x0, y0, x1, y1)
}

func (c *Canvas) String() string {
	var b strings.Builder
	for _, row := range c.Grid {
		b.WriteString(string(row) + "\n")
	}
	return b.String()
}

// RenderTrajectories draws every trajectory as a polyline through proj.
func RenderTrajectories(trs []*particle.Trajectory, proj Projection, w, h int) string {
	var all [][2]float64
	lines := make([][][2]float64, len(trs))
	for i, tr := range trs {
		for _, p := range tr.Points {
			q := proj.Project(p.Position)
			lines[i] = append(lines[i], q)
			all = append(all, q)
		}
	}

	c := NewCanvas(w, h)
	c.Fit(all)
	for _, line := range lines {
		if len(line) == 1 {
			c.Point(line[0])
		}
		for j := 1; j < len(line); j++ {
			c.Line(line[j-1], line[j])
		}
	}
	return c.String()
}

// RenderPunctures draws section crossings in section coordinates.
func RenderPunctures(ps []analysis.Puncture, w, h int) string {
	pts := make([][2]float64, len(ps))
	for i, p := range ps {
		pts[i] = [2]float64{p.U, p.V}
	}
	c := NewCanvas(w, h)
	c.Fit(pts)
	for _, p := range pts {
		c.Point(p)
	}
	return c.String()
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
