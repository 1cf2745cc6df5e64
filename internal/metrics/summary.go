package metrics

import (
	"math"

	"github.com/san-kum/flowline/internal/particle"
)

// Metric summarizes a set of finished trajectories into one value.
type Metric interface {
	Name() string
	Observe(tr *particle.Trajectory)
	Value() float64
	Reset()
}

// MeanArcLength averages the polyline length of the observed trajectories.
type MeanArcLength struct {
	sum   float64
	count int
}

func NewMeanArcLength() *MeanArcLength { return &MeanArcLength{} }

func (m *MeanArcLength) Name() string { return "mean_arc_length" }

func (m *MeanArcLength) Observe(tr *particle.Trajectory) {
	m.sum += tr.ArcLength()
	m.count++
}

func (m *MeanArcLength) Value() float64 {
	if m.count == 0 {
		return 0
	}
	return m.sum / float64(m.count)
}

func (m *MeanArcLength) Reset() {
	m.sum = 0
	m.count = 0
}

// MaxSpeed is the largest recorded speed over all samples.
type MaxSpeed struct {
	max float64
}

func NewMaxSpeed() *MaxSpeed { return &MaxSpeed{} }

func (m *MaxSpeed) Name() string { return "max_speed" }

func (m *MaxSpeed) Observe(tr *particle.Trajectory) {
	for _, p := range tr.Points {
		m.max = math.Max(m.max, p.Scalar)
	}
}

func (m *MaxSpeed) Value() float64 { return m.max }

func (m *MaxSpeed) Reset() { m.max = 0 }

// Completion is the fraction of trajectories that ended for a reason
// other than Error or Cancelled.
type Completion struct {
	ok, total int
}

func NewCompletion() *Completion { return &Completion{} }

func (c *Completion) Name() string { return "completion" }

func (c *Completion) Observe(tr *particle.Trajectory) {
	c.total++
	if tr.Reason != particle.Error && tr.Reason != particle.Cancelled {
		c.ok++
	}
}

func (c *Completion) Value() float64 {
	if c.total == 0 {
		return 1.0
	}
	return float64(c.ok) / float64(c.total)
}

func (c *Completion) Reset() {
	c.ok = 0
	c.total = 0
}

// Defaults returns the metrics recorded with every stored run.
func Defaults() []Metric {
	return []Metric{NewMeanArcLength(), NewMaxSpeed(), NewCompletion()}
}

// Summarize runs every metric over trs and returns the values by name.
func Summarize(trs []*particle.Trajectory, ms []Metric) map[string]float64 {
	out := make(map[string]float64, len(ms))
	for _, m := range ms {
		m.Reset()
		for _, tr := range trs {
			m.Observe(tr)
		}
		out[m.Name()] = m.Value()
	}
	return out
}
