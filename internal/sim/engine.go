package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/san-kum/flowline/internal/control"
	"github.com/san-kum/flowline/internal/domain"
	"github.com/san-kum/flowline/internal/dynamo"
	"github.com/san-kum/flowline/internal/field"
	"github.com/san-kum/flowline/internal/integrators"
	"github.com/san-kum/flowline/internal/metrics"
	"github.com/san-kum/flowline/internal/migrate"
	"github.com/san-kum/flowline/internal/particle"
	"github.com/san-kum/flowline/internal/termination"
)

// EngineContext is everything one rank owns during a run. It is built by
// Run and discarded when the run ends.
type EngineContext struct {
	Rank     int
	Request  Request
	Plan     *migrate.Plan
	Tracker  *domain.Tracker
	Cache    *field.Cache
	Source   *field.Source
	Steps    *control.Controller
	Eval     *termination.Evaluator
	Comm     *migrate.Comm
	Batcher  *migrate.Batcher
	Ledger   *migrate.Ledger
	Warnings *dynamo.Warnings
	Logger   *slog.Logger

	local    map[int64]*particle.Particle
	finished []*particle.Trajectory
	round    int
	observe  func(Progress)
}

func newEngineContext(rank int, req Request, plan *migrate.Plan, tracker *domain.Tracker,
	provider field.Provider, comm *migrate.Comm, ledger *migrate.Ledger,
	warnings *dynamo.Warnings, logger *slog.Logger) (*EngineContext, error) {

	scheme, err := integrators.Lookup(req.Scheme)
	if err != nil {
		return nil, err
	}
	cache, err := field.NewCache(provider, req.CacheCapacity)
	if err != nil {
		return nil, err
	}

	opts := []field.SourceOption{
		field.WithHosts(func(d int) bool { return plan.Hosts(rank, d) }),
		field.WithStaticTime(req.StartTime),
	}
	if req.Pathlines {
		opts = append(opts, field.WithPathlines())
	}

	return &EngineContext{
		Rank:    rank,
		Request: req,
		Plan:    plan,
		Tracker: tracker,
		Cache:   cache,
		Source:  field.NewSource(cache, opts...),
		Steps: control.New(scheme, control.Settings{
			AbsTol:              req.AbsTol,
			RelTol:              req.RelTol,
			MinStep:             req.MinStep,
			MaxStep:             req.MaxStep,
			LimitMaxStep:        req.LimitMaxStep,
			MaxTime:             req.Limits.MaxTime,
			SpeedCutoff:         req.SpeedCutoff,
			CriticalPointWindow: req.CriticalPointWindow,
		}, warnings),
		Eval:     termination.New(req.Limits, req.SpeedCutoff, warnings),
		Comm:     comm,
		Batcher:  migrate.NewBatcher(rank, comm, req.CommThreshold, plan.Strategy()),
		Ledger:   ledger,
		Warnings: warnings,
		Logger:   logger.With("rank", rank),
		local:    make(map[int64]*particle.Particle),
	}, nil
}

// adopt makes p a particle of this rank.
func (e *EngineContext) adopt(p *particle.Particle) error {
	if err := e.Ledger.Claim(e.Rank, p.ID, e.round); err != nil {
		return err
	}
	p.Rank = e.Rank
	e.local[p.ID] = p
	return nil
}

func (e *EngineContext) finish(p *particle.Particle) error {
	tr, err := p.Finish()
	if err != nil {
		return err
	}
	delete(e.local, p.ID)
	e.finished = append(e.finished, tr)
	return e.Ledger.Release(e.Rank, p.ID, e.round)
}

func (e *EngineContext) handOff(p *particle.Particle, to int) error {
	if err := e.Ledger.Release(e.Rank, p.ID, e.round); err != nil {
		return err
	}
	delete(e.local, p.ID)
	return e.Batcher.Add(to, p)
}

func (e *EngineContext) activeCount() int {
	n := 0
	for _, p := range e.local {
		if p.IsActive() {
			n++
		}
	}
	return n
}

func (e *EngineContext) sortedIDs() []int64 {
	ids := make([]int64, 0, len(e.local))
	for id := range e.local {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// run is the rank worker loop. cancelRequested is polled once per round.
func (e *EngineContext) run(ctx context.Context, tracer trace.Tracer, cancelRequested func() bool) error {
	ctx, span := tracer.Start(ctx, "flowline.rank", trace.WithAttributes(attribute.Int("flowline.rank", e.Rank)))
	defer span.End()

	cancelled := false
	for {
		start := time.Now()
		e.Batcher.SetRound(e.round)

		if err := e.drain(); err != nil {
			return err
		}

		if cancelled {
			for _, id := range e.sortedIDs() {
				p := e.local[id]
				if p.Terminate(particle.Cancelled) {
					metrics.TerminationsTotal.WithLabelValues(particle.Cancelled.String()).Inc()
				}
				if err := e.finish(p); err != nil {
					return err
				}
			}
		}

		for _, id := range e.sortedIDs() {
			p, ok := e.local[id]
			if !ok || !p.IsActive() {
				continue
			}
			if err := e.integrate(ctx, p); err != nil {
				return err
			}
		}

		if err := e.Batcher.Flush(); err != nil {
			return err
		}

		total, cancel, err := e.Comm.AllReduce(ctx, e.activeCount(), cancelRequested())
		if err != nil {
			return err
		}
		metrics.RoundDuration.Observe(time.Since(start).Seconds())
		e.Logger.Debug("sim: round complete", "round", e.round, "local", len(e.local), "global", total)

		if e.observe != nil {
			e.observe(Progress{Round: e.round, Active: total})
		}

		e.round++
		if total == 0 {
			span.SetAttributes(attribute.Int("flowline.rounds", e.round))
			return nil
		}
		cancelled = cancel
	}
}

func (e *EngineContext) drain() error {
	for _, msg := range e.Comm.Drain(e.Rank) {
		batch, err := migrate.Decode(msg)
		if err != nil {
			return err
		}
		if batch.To != e.Rank {
			return fmt.Errorf("%w: rank %d received batch addressed to %d", dynamo.ErrProtocol, e.Rank, batch.To)
		}
		for _, p := range batch.Particles {
			if !p.IsActive() {
				return fmt.Errorf("%w: terminated particle %d migrated", dynamo.ErrProtocol, p.ID)
			}
			if err := e.adopt(p); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *EngineContext) sampler(ctx context.Context, p *particle.Particle) integrators.Func {
	return func(pos dynamo.Vec3, t float64) (dynamo.Vec3, error) {
		s, err := e.Source.Sample(ctx, p.Domain, pos, t)
		return s.Vector, err
	}
}

// integrate advances p up to WorkGroupSize steps or until it terminates
// or leaves this rank.
func (e *EngineContext) integrate(ctx context.Context, p *particle.Particle) error {
	f := e.sampler(ctx, p)

	if p.Trace.Len() == 0 {
		if v, err := f(p.Position, p.Time); err == nil {
			p.Speed = v.Norm()
		} else if fatal(err) {
			return e.abort(p, err)
		}
		if err := p.Record(); err != nil {
			return err
		}
	}

	for n := 0; n < e.Request.WorkGroupSize && p.IsActive(); n++ {
		rep := e.Steps.Advance(p, f)

		var obs termination.Observation
		switch rep.Outcome {
		case control.Failed:
			if fatal(rep.Err) {
				return e.abort(p, rep.Err)
			}
			obs.Failure = rep.Err

		case control.AwaitingDomain:
			dom, _, err := e.Tracker.Relocate(p.Domain, rep.Probe)
			switch {
			case errors.Is(err, dynamo.ErrNotFound):
				obs.Exited = true
			case err != nil:
				return err
			case dom == p.Domain:
				obs.Inconsistent = true
				obs.Failure = fmt.Errorf("field not resident at %v inside domain %d", rep.Probe, dom)
			default:
				from := p.Domain
				p.Domain = dom
				if err := e.Steps.Cross(p, e.sampler(ctx, p), rep); err != nil {
					p.Domain = from
					obs.Failure = err
					break
				}
				if err := p.Record(); err != nil {
					return err
				}
			}

		case control.Stepped:
			if err := p.Record(); err != nil {
				return err
			}
			if !e.Tracker.Decomposition().Confirm(p.Domain, p.Position) {
				dom, _, err := e.Tracker.Relocate(p.Domain, p.Position)
				switch {
				case errors.Is(err, dynamo.ErrNotFound):
					obs.Exited = true
				case err != nil:
					return err
				default:
					p.Domain = dom
				}
			}
		}

		if r := e.Eval.Evaluate(p, obs); r != particle.None {
			if r == particle.Error {
				e.Logger.Debug("sim: particle failed", "particle", p.ID, "error", p.Failure)
			}
			return e.finish(p)
		}

		if dest := e.Plan.Destination(p, p.Domain); dest != e.Rank {
			return e.handOff(p, dest)
		}
		f = e.sampler(ctx, p)
	}
	return nil
}

func (e *EngineContext) abort(p *particle.Particle, err error) error {
	return &dynamo.ParticleError{Particle: p.ID, Domain: p.Domain, Time: p.Time, Wrapped: err}
}

// fatal errors abort the run instead of terminating one particle.
func fatal(err error) bool {
	return errors.Is(err, dynamo.ErrFieldUnavailable) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
