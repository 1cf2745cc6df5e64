// Package sim drives a field-line integration run across all ranks.
package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/san-kum/flowline/internal/domain"
	"github.com/san-kum/flowline/internal/dynamo"
	"github.com/san-kum/flowline/internal/field"
	"github.com/san-kum/flowline/internal/metrics"
	"github.com/san-kum/flowline/internal/migrate"
	"github.com/san-kum/flowline/internal/particle"
	"github.com/san-kum/flowline/internal/seed"
)

const tracerName = "github.com/san-kum/flowline/internal/sim"

// Status is the terminal state of a run.
type Status string

const (
	Completed Status = "completed"
	Cancelled Status = "cancelled"
	Errored   Status = "errored"
)

// Progress is reported once per synchronization round.
type Progress struct {
	Round  int
	Active int
}

// Result is everything a run hands back to the caller.
type Result struct {
	RunID        string
	Status       Status
	Strategy     migrate.Strategy
	Trajectories []*particle.Trajectory
	Warnings     []dynamo.Warning
	Rounds       int
	Migrations   int
	Messages     int
	Cache        []field.CacheStats
	Ledger       []migrate.Event
}

// Coordinator runs integration requests against one field and
// decomposition.
type Coordinator struct {
	provider field.Provider
	decomp   *domain.Decomposition
	policy   migrate.Policy
	logger   *slog.Logger
	tracer   trace.Tracer
	observe  func(Progress)

	cancelled atomic.Bool
}

type Option func(*Coordinator)

// WithPolicy replaces the heuristic that resolves the auto strategy.
func WithPolicy(p migrate.Policy) Option {
	return func(c *Coordinator) { c.policy = p }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

func WithTracer(t trace.Tracer) Option {
	return func(c *Coordinator) { c.tracer = t }
}

// WithProgress registers a callback invoked after every round. It runs on
// a rank goroutine and must not block.
func WithProgress(fn func(Progress)) Option {
	return func(c *Coordinator) { c.observe = fn }
}

func New(provider field.Provider, decomp *domain.Decomposition, opts ...Option) *Coordinator {
	c := &Coordinator{
		provider: provider,
		decomp:   decomp,
		policy:   migrate.DefaultPolicy{},
		logger:   slog.Default(),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Cancel asks the running integration to stop at the next round boundary.
// Remaining particles finish as Cancelled.
func (c *Coordinator) Cancel() {
	c.cancelled.Store(true)
}

// Run integrates every seed to termination. Configuration problems are
// returned as *ConfigError before any work starts. A *FatalError comes
// with a Result holding the trajectories finished so far. Cancellation,
// through Cancel or ctx, is not an error: the Result has status
// Cancelled.
func (c *Coordinator) Run(ctx context.Context, req Request, seeds []seed.Seed) (*Result, error) {
	if err := c.validate(req, seeds); err != nil {
		return nil, err
	}
	c.cancelled.Store(false)

	runID := uuid.NewString()
	logger := c.logger.With("run", runID)

	particles, err := c.realize(req, seeds)
	if err != nil {
		return nil, err
	}

	plan, err := migrate.NewPlan(req.Strategy, c.policy, len(seeds), c.decomp.Len(), req.Ranks, req.GroupSize)
	if err != nil {
		return nil, configErr("strategy", "%v", err)
	}
	tracker, err := domain.NewTracker(c.decomp, plan.Table())
	if err != nil {
		return nil, err
	}

	ctx, span := c.tracer.Start(ctx, "flowline.run", trace.WithAttributes(
		attribute.String("flowline.run_id", runID),
		attribute.String("flowline.strategy", string(plan.Strategy())),
		attribute.String("flowline.scheme", req.Scheme),
		attribute.Int("flowline.ranks", req.Ranks),
		attribute.Int("flowline.particles", len(particles)),
	))
	defer span.End()

	logger.Info("sim: run started",
		"strategy", plan.Strategy(),
		"scheme", req.Scheme,
		"ranks", req.Ranks,
		"seeds", len(seeds),
		"particles", len(particles),
		"domains", c.decomp.Len())

	comm := migrate.NewComm(req.Ranks)
	ledger := migrate.NewLedger()
	warnings := dynamo.NewWarnings()

	engines := make([]*EngineContext, req.Ranks)
	for r := range engines {
		e, err := newEngineContext(r, req, plan, tracker, c.provider, comm, ledger, warnings, logger)
		if err != nil {
			return nil, err
		}
		if r == 0 {
			e.observe = c.observe
		}
		engines[r] = e
	}

	var outside []*particle.Trajectory
	for _, p := range particles {
		if p.Domain < 0 {
			p.Terminate(particle.ExitedDomain)
			metrics.TerminationsTotal.WithLabelValues(particle.ExitedDomain.String()).Inc()
			if err := p.Record(); err != nil {
				return nil, err
			}
			tr, err := p.Finish()
			if err != nil {
				return nil, err
			}
			outside = append(outside, tr)
			continue
		}
		rank := plan.InitialRank(p.SeedID, p.Domain)
		if err := engines[rank].adopt(p); err != nil {
			return nil, err
		}
	}

	// Parent cancellation becomes a collective decision at the next round
	// instead of tearing the barrier down under the ranks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			c.cancelled.Store(true)
		case <-done:
		}
	}()

	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	for _, e := range engines {
		g.Go(func() error {
			if err := e.run(gctx, c.tracer, c.cancelled.Load); err != nil {
				return &FatalError{Rank: e.Rank, Err: err}
			}
			return nil
		})
	}
	runErr := g.Wait()

	res := &Result{
		RunID:        runID,
		Strategy:     plan.Strategy(),
		Trajectories: outside,
	}
	for _, e := range engines {
		res.Trajectories = append(res.Trajectories, e.finished...)
		sent, msgs := e.Batcher.Sent()
		res.Migrations += sent
		res.Messages += msgs
		res.Cache = append(res.Cache, e.Cache.Stats())
		if e.round > res.Rounds {
			res.Rounds = e.round
		}
	}
	sort.Slice(res.Trajectories, func(i, j int) bool {
		return res.Trajectories[i].ParticleID < res.Trajectories[j].ParticleID
	})

	switch {
	case runErr != nil:
		ledger.ReleaseAll(res.Rounds)
		res.Status = Errored
	case c.cancelled.Load() || anyCancelled(res.Trajectories):
		res.Status = Cancelled
	default:
		res.Status = Completed
	}
	res.Warnings = warnings.List()
	res.Ledger = ledger.Log()

	metrics.RunsTotal.WithLabelValues(string(res.Status)).Inc()
	span.SetAttributes(
		attribute.String("flowline.status", string(res.Status)),
		attribute.Int("flowline.rounds", res.Rounds),
		attribute.Int("flowline.migrations", res.Migrations),
	)

	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
		logger.Error("sim: run aborted", "error", runErr, "finished", len(res.Trajectories))
		var fe *FatalError
		if !errors.As(runErr, &fe) {
			runErr = &FatalError{Rank: -1, Err: runErr}
		}
		return res, runErr
	}

	logger.Info("sim: run finished",
		"status", res.Status,
		"trajectories", len(res.Trajectories),
		"rounds", res.Rounds,
		"migrations", res.Migrations,
		"warnings", len(res.Warnings))
	return res, nil
}

func (c *Coordinator) validate(req Request, seeds []seed.Seed) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if len(seeds) == 0 {
		return configErr("seeds", "no seeds")
	}
	if c.provider == nil || c.decomp == nil {
		return configErr("field", "no field source")
	}
	if n := c.provider.Domains(); n != c.decomp.Len() {
		return configErr("field", "provider serves %d domains, decomposition has %d", n, c.decomp.Len())
	}

	if req.Pathlines {
		times := c.provider.Times()
		if len(times) < 2 {
			return configErr("pathlines", "need at least two snapshots, have %d", len(times))
		}
		lo, hi := req.StartTime, req.StartTime
		switch req.Direction {
		case dynamo.Forward:
			hi += req.Limits.MaxTime
		case dynamo.Backward:
			lo -= req.Limits.MaxTime
		default:
			lo -= req.Limits.MaxTime
			hi += req.Limits.MaxTime
		}
		if lo < times[0] || hi > times[len(times)-1] {
			return configErr("limits.max_time", "time span [%g, %g] leaves snapshot range [%g, %g]", lo, hi, times[0], times[len(times)-1])
		}
	}

	if req.Scheme == "toroidal" {
		b := c.decomp.Bounds()
		if b.Min[0] <= 0 && b.Max[0] >= 0 && b.Min[1] <= 0 && b.Max[1] >= 0 {
			return configErr("scheme", "toroidal scheme needs a mesh that excludes the R=0 axis")
		}
	}
	return nil
}

// realize creates the particles of every seed, two per seed for Both.
// Particle ids follow seed order.
func (c *Coordinator) realize(req Request, seeds []seed.Seed) ([]*particle.Particle, error) {
	dirs := []dynamo.Direction{req.Direction}
	if req.Direction == dynamo.Both {
		dirs = []dynamo.Direction{dynamo.Forward, dynamo.Backward}
	}

	out := make([]*particle.Particle, 0, len(seeds)*len(dirs))
	var id int64
	for _, s := range seeds {
		if !s.Position.IsValid() {
			return nil, configErr("seeds", "seed %d has invalid position %v", s.ID, s.Position)
		}
		dom, err := c.decomp.Find(s.Position)
		if err != nil && !errors.Is(err, dynamo.ErrNotFound) {
			return nil, fmt.Errorf("locate seed %d: %w", s.ID, err)
		}
		for _, d := range dirs {
			p := particle.New(id, s.ID, s.Position, req.StartTime, d, req.MaxStep)
			p.Domain = dom
			out = append(out, p)
			id++
		}
	}
	return out, nil
}

func anyCancelled(trs []*particle.Trajectory) bool {
	for _, tr := range trs {
		if tr.Reason == particle.Cancelled {
			return true
		}
	}
	return false
}
