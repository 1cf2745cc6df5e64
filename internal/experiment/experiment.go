// Package experiment turns a run configuration into a wired coordinator
// and the analyses that follow it.
package experiment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/san-kum/flowline/internal/analysis"
	"github.com/san-kum/flowline/internal/config"
	"github.com/san-kum/flowline/internal/domain"
	"github.com/san-kum/flowline/internal/dynamo"
	"github.com/san-kum/flowline/internal/field"
	"github.com/san-kum/flowline/internal/seed"
	"github.com/san-kum/flowline/internal/sim"
)

type Experiment struct {
	cfg      *config.Config
	registry *Registry
	logger   *slog.Logger

	fn       field.Func
	provider field.Provider
	decomp   *domain.Decomposition
	seeds    []seed.Seed
	req      sim.Request
}

func New(cfg *config.Config) *Experiment {
	return &Experiment{
		cfg:      cfg,
		registry: NewRegistry(),
		logger:   slog.Default(),
	}
}

func (e *Experiment) WithLogger(l *slog.Logger) *Experiment {
	e.logger = l
	return e
}

// Setup builds the field, the decomposition and the seeds.
func (e *Experiment) Setup() error {
	fc := e.cfg.Field
	fn, err := e.registry.GetField(fc.Name, fc.Params)
	if err != nil {
		return err
	}

	n := fc.Domains
	for i := range n {
		if n[i] == 0 {
			n[i] = 1
		}
	}
	decomp, err := domain.NewGrid(fc.Bounds, n[0], n[1], n[2], fc.Ghost)
	if err != nil {
		return fmt.Errorf("decomposition: %w", err)
	}

	var provider field.Provider
	if fc.Sampled() {
		provider, err = field.NewSampled(fn, decomp.Boxes(), fc.Ghost, fc.Times, fc.Resolution)
	} else {
		provider, err = field.NewAnalytic(fn, decomp.Boxes(), fc.Ghost, fc.Times)
	}
	if err != nil {
		return err
	}

	seeds, err := e.cfg.Seeds.Generate()
	if err != nil {
		return fmt.Errorf("seeds: %w", err)
	}
	req, err := e.cfg.Request()
	if err != nil {
		return err
	}

	e.fn, e.provider, e.decomp, e.seeds, e.req = fn, provider, decomp, seeds, req
	e.logger.Debug("experiment: setup", "field", fc.Name, "domains", decomp.Len(), "seeds", len(seeds))
	return nil
}

func (e *Experiment) Config() *config.Config               { return e.cfg }
func (e *Experiment) Field() field.Func                    { return e.fn }
func (e *Experiment) Request() sim.Request                 { return e.req }
func (e *Experiment) Seeds() []seed.Seed                   { return e.seeds }
func (e *Experiment) Decomposition() *domain.Decomposition { return e.decomp }

// Coordinator returns a coordinator over the experiment's field.
func (e *Experiment) Coordinator(opts ...sim.Option) *sim.Coordinator {
	opts = append([]sim.Option{sim.WithLogger(e.logger)}, opts...)
	return sim.New(e.provider, e.decomp, opts...)
}

func (e *Experiment) Run(ctx context.Context, opts ...sim.Option) (*sim.Result, error) {
	if e.provider == nil {
		return nil, fmt.Errorf("experiment not setup")
	}
	return e.Coordinator(opts...).Run(ctx, e.req, e.seeds)
}

// Analysis holds the derived quantities configured for a run.
type Analysis struct {
	FTLE      *analysis.FTLEField
	Punctures []analysis.Puncture
	Windings  []analysis.WindingResult
	// Spectral maps particle ids to the FFT estimate of ι mod 1.
	Spectral map[int64]float64
}

// Analyze computes the FTLE field when one is configured and the
// Poincaré punctures when a section is. Toroidal sections add a winding
// classification per field line; lines too short to classify are
// skipped.
func (e *Experiment) Analyze(res *sim.Result) (*Analysis, error) {
	ac := e.cfg.Analysis
	out := &Analysis{}

	if ac.FTLE != "" {
		m, err := analysis.ParseMeasure(ac.FTLE)
		if err != nil {
			return nil, err
		}
		dims, err := e.cfg.Seeds.GridDims()
		if err != nil {
			return nil, err
		}
		dir := e.req.Direction
		if dir == dynamo.Both {
			dir = dynamo.Forward
		}
		out.FTLE, err = analysis.FTLE(res.Trajectories, dims, m, dir)
		if err != nil {
			return nil, err
		}
	}

	if ac.Section == "" {
		return out, nil
	}
	sec, err := ac.PoincareSection()
	if err != nil {
		return nil, err
	}
	mode, err := analysis.ParseOverlapMode(ac.Overlap)
	if err != nil {
		return nil, err
	}
	out.Punctures, err = analysis.Reconcile(analysis.Punctures(res.Trajectories, sec), mode, ac.Tolerance)
	if err != nil {
		return nil, err
	}

	if _, ok := sec.(analysis.ToroidalSection); !ok {
		return out, nil
	}
	byParticle := make(map[int64][]analysis.Puncture)
	for _, p := range out.Punctures {
		byParticle[p.ParticleID] = append(byParticle[p.ParticleID], p)
	}
	out.Spectral = make(map[int64]float64)
	for _, tr := range res.Trajectories {
		w, err := analysis.Winding(tr, ac.Axis, ac.WindingOptions())
		if errors.Is(err, analysis.ErrTooShort) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out.Windings = append(out.Windings, w)
		if iota, err := analysis.SpectralIota(byParticle[tr.ParticleID], ac.Axis); err == nil {
			out.Spectral[tr.ParticleID] = iota
		}
	}
	return out, nil
}

// SafetyFactor traces a single line from minor radius r on the outboard
// midplane of the configured axis and returns its q. It reuses the run's
// integration settings, forward only.
func (e *Experiment) SafetyFactor() analysis.SafetyFactor {
	return func(ctx context.Context, r float64) (float64, error) {
		if e.provider == nil {
			return 0, fmt.Errorf("experiment not setup")
		}
		axis := e.cfg.Analysis.Axis
		req := e.req
		req.Direction = dynamo.Forward
		start := []seed.Seed{{ID: 0, Position: dynamo.Vec3{axis.R + r, 0, axis.Z}}}

		res, err := e.Coordinator().Run(ctx, req, start)
		if err != nil {
			return 0, err
		}
		if res.Status == sim.Cancelled {
			return 0, context.Canceled
		}
		w, err := analysis.Winding(res.Trajectories[0], axis, e.cfg.Analysis.WindingOptions())
		if err != nil {
			return 0, fmt.Errorf("q at r=%g: %w", r, err)
		}
		return w.Q, nil
	}
}
