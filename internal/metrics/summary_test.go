package metrics

import (
	"math"
	"testing"

	"github.com/san-kum/flowline/internal/dynamo"
	"github.com/san-kum/flowline/internal/particle"
)

func line(n int, speed float64, reason particle.Reason) *particle.Trajectory {
	tr := &particle.Trajectory{}
	for i := 0; i < n; i++ {
		tr.Points = append(tr.Points, particle.Point{
			Position: dynamo.Vec3{float64(i), 0, 0},
			Time:     float64(i),
			Scalar:   speed,
		})
	}
	tr.Finalize(reason)
	return tr
}

func TestSummarize(t *testing.T) {
	trs := []*particle.Trajectory{
		line(3, 1.0, particle.MaxSteps),
		line(5, 2.0, particle.Error),
	}

	got := Summarize(trs, Defaults())

	if math.Abs(got["mean_arc_length"]-3.0) > 1e-12 {
		t.Errorf("expected mean arc length 3, got %f", got["mean_arc_length"])
	}
	if got["max_speed"] != 2.0 {
		t.Errorf("expected max speed 2, got %f", got["max_speed"])
	}
	if got["completion"] != 0.5 {
		t.Errorf("expected completion 0.5, got %f", got["completion"])
	}
}

func TestMetricReset(t *testing.T) {
	m := NewMeanArcLength()
	m.Observe(line(4, 1, particle.MaxTime))
	if m.Value() == 0 {
		t.Error("expected non-zero arc length")
	}

	m.Reset()
	if m.Value() != 0 {
		t.Error("expected zero after reset")
	}

	c := NewCompletion()
	if c.Value() != 1.0 {
		t.Error("empty completion should be 1")
	}
}
