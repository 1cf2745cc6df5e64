package viz

import (
	"errors"
	"math"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/flowline/internal/analysis"
	"github.com/san-kum/flowline/internal/dynamo"
	"github.com/san-kum/flowline/internal/particle"
	"github.com/san-kum/flowline/internal/sim"
)

func TestCanvasSet(t *testing.T) {
	c := NewCanvas(2, 1)
	c.Set(0, 0)
	c.Set(3, 3)
	c.Set(-1, 0)
	c.Set(4, 0)

	assert.Equal(t, rune(0x2801), c.Grid[0][0])
	assert.Equal(t, rune(0x2880), c.Grid[0][1])

	c.Clear()
	assert.Equal(t, "⠀⠀\n", c.String())
}

func TestCanvasFitCorners(t *testing.T) {
	c := NewCanvas(10, 5)
	pts := [][2]float64{{-1, -1}, {1, 1}}
	c.Fit(pts)
	for _, p := range pts {
		x, y := c.dot(p)
		assert.True(t, x >= 0 && x < 20, "x %d", x)
		assert.True(t, y >= 0 && y < 20, "y %d", y)
	}

	// v grows upwards.
	_, top := c.dot([2]float64{0, 1})
	_, bottom := c.dot([2]float64{0, -1})
	assert.Less(t, top, bottom)
}

func TestRenderTrajectories(t *testing.T) {
	tr := &particle.Trajectory{ParticleID: 0}
	for i := 0; i <= 64; i++ {
		a := 2 * math.Pi * float64(i) / 64
		require.NoError(t, tr.Append(particle.Point{Position: dynamo.Vec3{math.Cos(a), math.Sin(a), 0}}))
	}

	out := RenderTrajectories([]*particle.Trajectory{tr}, Plane{0, 1}, 20, 10)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	assert.Len(t, lines, 10)
	assert.NotEqual(t, strings.Repeat("⠀", 20), lines[0])

	// A circle in the xy plane is a flat line seen from the side.
	side := RenderTrajectories([]*particle.Trajectory{tr}, Plane{0, 2}, 20, 10)
	assert.NotEqual(t, out, side)
}

func TestRenderPunctures(t *testing.T) {
	ps := []analysis.Puncture{{U: 3, V: 0}, {U: 3.5, V: 0.5}, {U: 3.2, V: -0.4}}
	out := RenderPunctures(ps, 12, 6)
	assert.Equal(t, 6, strings.Count(out, "\n"))
	assert.NotEqual(t, strings.Repeat(strings.Repeat("⠀", 12)+"\n", 6), out)
}

func TestParseProjection(t *testing.T) {
	for _, s := range []string{"", "xy", "xz", "yz", "3d"} {
		_, err := ParseProjection(s)
		assert.NoError(t, err, s)
	}
	_, err := ParseProjection("zz")
	assert.Error(t, err)
}

func TestCameraPreservesLength(t *testing.T) {
	c := NewCamera()
	p := dynamo.Vec3{1, 2, 3}
	assert.InDelta(t, p.Norm(), c.Rotate(p).Norm(), 1e-12)

	flat := &Camera{}
	assert.Equal(t, [2]float64{1, 2}, flat.Project(p))
}

func TestProgressModel(t *testing.T) {
	cancels := 0
	m := NewProgressModel("vortex", 10, func() { cancels++ })

	next, _ := m.Update(progressMsg(sim.Progress{Round: 3, Active: 4}))
	m = next.(ProgressModel)
	assert.Equal(t, 3, m.round)
	assert.Equal(t, 4, m.active)
	assert.Contains(t, m.View(), "4 / 10")

	for i := 0; i < 2; i++ {
		next, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
		m = next.(ProgressModel)
	}
	assert.Equal(t, 1, cancels)
	assert.True(t, m.cancelling)

	res := &sim.Result{Status: sim.Cancelled}
	next, cmd := m.Update(doneMsg{res: res})
	m = next.(ProgressModel)
	require.NotNil(t, cmd)
	assert.True(t, m.Done())
	got, err := m.Result()
	assert.NoError(t, err)
	assert.Same(t, res, got)
	assert.Contains(t, m.View(), "cancelled")
}

func TestProgressModelError(t *testing.T) {
	m := NewProgressModel("vortex", 1, nil)
	boom := errors.New("boom")
	next, _ := m.Update(doneMsg{err: boom})
	m = next.(ProgressModel)
	_, err := m.Result()
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, m.View(), "boom")
}

func TestPicker(t *testing.T) {
	m := NewPicker([]Choice{{Field: "torus", Name: "rational"}, {Field: "torus", Name: "shear"}})
	down := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("j")}

	next, _ := m.Update(down)
	next, _ = next.Update(down)
	next, _ = next.Update(tea.KeyMsg{Type: tea.KeyEnter})
	c, ok := next.(Picker).Chosen()
	require.True(t, ok)
	assert.Equal(t, "shear", c.Name)
	assert.Contains(t, next.View(), "torus/shear")

	next, _ = NewPicker(nil).Update(tea.KeyMsg{Type: tea.KeyEsc})
	_, ok = next.(Picker).Chosen()
	assert.False(t, ok)
}

func TestSummaryAndCounts(t *testing.T) {
	out := Summary("run", []Row{{"Status", "completed"}, {"Trajectories", "5"}})
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "Trajectories")

	out = Counts("reasons", map[string]int{"max_steps": 3, "exited_domain": 1}, 10)
	assert.Less(t, strings.Index(out, "max_steps"), strings.Index(out, "exited_domain"))

	assert.Equal(t, "──", Sparkline(nil, 2))
	assert.Equal(t, []string{"ocean", "minimal", "retro"}, ThemeNames())
	assert.Equal(t, "ocean", GetTheme("unknown").Name)
}
