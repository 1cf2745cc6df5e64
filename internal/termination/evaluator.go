// Package termination decides, after every step, whether a particle stops
// and records exactly one reason when it does.
package termination

import (
	"fmt"

	"github.com/san-kum/flowline/internal/dynamo"
	"github.com/san-kum/flowline/internal/metrics"
	"github.com/san-kum/flowline/internal/particle"
)

// timeSlack absorbs rounding when comparing elapsed time with MaxTime.
const timeSlack = 1e-12

// Limits are the per-run termination criteria. Zero disables a limit.
type Limits struct {
	MaxSteps       int     `json:"max_steps" yaml:"max_steps"`
	MaxTime        float64 `json:"max_time" yaml:"max_time"`
	MaxDistance    float64 `json:"max_distance" yaml:"max_distance"`
	MaxSize        float64 `json:"max_size" yaml:"max_size"`
	WarnOnMaxSteps bool    `json:"warn_on_max_steps" yaml:"warn_on_max_steps"`
}

// Observation is what the coordinator learned about a particle during the
// step just taken.
type Observation struct {
	// Exited is set when the particle left its domain and no domain of
	// the decomposition contains it.
	Exited bool
	// Inconsistent is set when the tracker found the particle in no
	// domain although the field was resident.
	Inconsistent bool
	// Failure is a numerical failure reported by the step controller.
	Failure error
}

type Evaluator struct {
	limits      Limits
	speedCutoff float64
	warnings    *dynamo.Warnings
}

func New(limits Limits, speedCutoff float64, warnings *dynamo.Warnings) *Evaluator {
	if warnings == nil {
		warnings = dynamo.NewWarnings()
	}
	return &Evaluator{limits: limits, speedCutoff: speedCutoff, warnings: warnings}
}

// Evaluate terminates p when a criterion holds and returns its reason, or
// particle.None while it stays active. A terminated particle is returned
// unchanged with its original reason.
func (e *Evaluator) Evaluate(p *particle.Particle, obs Observation) particle.Reason {
	if !p.IsActive() {
		return p.Reason
	}

	r := e.reason(p, obs)
	if r == particle.None {
		return r
	}

	p.Terminate(r)
	if r == particle.Error && obs.Failure != nil {
		p.Failure = obs.Failure.Error()
	}
	if r == particle.MaxSteps && e.limits.WarnOnMaxSteps {
		e.warnings.Add(dynamo.Warning{
			Kind:     dynamo.WarnMaxSteps,
			Particle: p.ID,
			Message:  fmt.Sprintf("reached %d steps before any other limit", p.Steps),
		})
	}
	metrics.TerminationsTotal.WithLabelValues(r.String()).Inc()
	return r
}

func (e *Evaluator) reason(p *particle.Particle, obs Observation) particle.Reason {
	l := e.limits
	switch {
	case obs.Inconsistent:
		return particle.Error
	case obs.Exited:
		return particle.ExitedDomain
	case l.MaxSteps > 0 && p.Steps >= l.MaxSteps:
		return particle.MaxSteps
	case l.MaxTime > 0 && p.Elapsed() >= l.MaxTime*(1-timeSlack):
		return particle.MaxTime
	case l.MaxDistance > 0 && p.ArcLength >= l.MaxDistance:
		return particle.MaxDistance
	case l.MaxSize > 0 && p.Displacement() >= l.MaxSize:
		return particle.MaxSize
	case p.Steps > 0 && p.Speed < e.speedCutoff:
		return particle.CriticalPoint
	case obs.Failure != nil:
		return particle.Error
	}
	return particle.None
}
