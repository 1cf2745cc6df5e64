package sim

import (
	"github.com/san-kum/flowline/internal/dynamo"
	"github.com/san-kum/flowline/internal/integrators"
	"github.com/san-kum/flowline/internal/migrate"
	"github.com/san-kum/flowline/internal/termination"
)

// Request is the immutable description of one run.
type Request struct {
	Scheme       string
	AbsTol       float64
	RelTol       float64
	MinStep      float64
	MaxStep      float64
	LimitMaxStep bool
	Direction    dynamo.Direction
	Limits       termination.Limits

	SpeedCutoff         float64
	CriticalPointWindow int

	Strategy      migrate.Strategy
	GroupSize     int
	CommThreshold int
	CacheCapacity int
	WorkGroupSize int
	Ranks         int

	Pathlines bool
	StartTime float64
}

// DefaultRequest returns a request that only lacks termination limits
// tuned to the field at hand.
func DefaultRequest() Request {
	return Request{
		Scheme:              "dopri5",
		AbsTol:              1e-7,
		RelTol:              1e-6,
		MinStep:             1e-8,
		MaxStep:             0.1,
		Direction:           dynamo.Forward,
		Limits:              termination.Limits{MaxSteps: 1000},
		SpeedCutoff:         1e-9,
		CriticalPointWindow: 100,
		Strategy:            migrate.Auto,
		GroupSize:           1,
		CommThreshold:       64,
		CacheCapacity:       8,
		WorkGroupSize:       50,
		Ranks:               1,
	}
}

// Validate reports the first configuration problem as a *ConfigError.
func (r Request) Validate() error {
	scheme, err := integrators.Lookup(r.Scheme)
	if err != nil {
		return configErr("scheme", "%v", err)
	}
	switch {
	case r.AbsTol <= 0:
		return configErr("abs_tol", "must be positive, got %g", r.AbsTol)
	case r.RelTol <= 0:
		return configErr("rel_tol", "must be positive, got %g", r.RelTol)
	case r.MaxStep <= 0:
		return configErr("max_step", "must be positive, got %g", r.MaxStep)
	case r.MinStep < 0:
		return configErr("min_step", "must not be negative, got %g", r.MinStep)
	case r.MinStep > r.MaxStep:
		return configErr("min_step", "%g exceeds max_step %g", r.MinStep, r.MaxStep)
	case scheme.Adaptive() && r.MinStep == 0:
		return configErr("min_step", "adaptive scheme %s needs a positive minimum step", scheme.Name())
	}

	switch r.Direction {
	case dynamo.Forward, dynamo.Backward, dynamo.Both:
	default:
		return configErr("direction", "unknown direction %d", int(r.Direction))
	}

	l := r.Limits
	switch {
	case l.MaxSteps < 0, l.MaxTime < 0, l.MaxDistance < 0, l.MaxSize < 0:
		return configErr("limits", "limits must not be negative")
	case l.MaxSteps == 0 && l.MaxTime == 0 && l.MaxDistance == 0:
		return configErr("limits", "one of max_steps, max_time or max_distance is required")
	case r.SpeedCutoff < 0:
		return configErr("speed_cutoff", "must not be negative, got %g", r.SpeedCutoff)
	case r.CriticalPointWindow < 0:
		return configErr("critical_point_window", "must not be negative")
	}

	if _, err := migrate.ParseStrategy(string(r.Strategy)); err != nil {
		return configErr("strategy", "%v", err)
	}
	switch {
	case r.Ranks < 1:
		return configErr("ranks", "need at least one rank, got %d", r.Ranks)
	case r.Strategy == migrate.Hybrid && (r.GroupSize < 1 || r.GroupSize > r.Ranks):
		return configErr("group_size", "%d out of range 1..%d", r.GroupSize, r.Ranks)
	case r.CommThreshold < 0:
		return configErr("comm_threshold", "must not be negative")
	case r.CacheCapacity < 1:
		return configErr("cache_capacity", "need room for at least one block")
	case r.WorkGroupSize < 1:
		return configErr("work_group_size", "must be at least 1, got %d", r.WorkGroupSize)
	}

	if r.Pathlines && l.MaxTime == 0 {
		return configErr("limits.max_time", "pathlines need a time limit inside the snapshot range")
	}
	return nil
}
