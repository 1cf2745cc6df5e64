package sim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/san-kum/flowline/internal/domain"
	"github.com/san-kum/flowline/internal/dynamo"
	"github.com/san-kum/flowline/internal/field"
	"github.com/san-kum/flowline/internal/migrate"
	"github.com/san-kum/flowline/internal/particle"
	"github.com/san-kum/flowline/internal/seed"
	"github.com/san-kum/flowline/internal/termination"
)

func box(x0, y0, z0, x1, y1, z1 float64) dynamo.Box {
	return dynamo.Box{Min: dynamo.Vec3{x0, y0, z0}, Max: dynamo.Vec3{x1, y1, z1}}
}

func coordinator(fn field.Func, boxes []dynamo.Box, opts ...Option) *Coordinator {
	const ghost = 0.2
	d, err := domain.New(boxes, ghost)
	Expect(err).NotTo(HaveOccurred())
	p, err := field.NewAnalytic(fn, boxes, ghost, nil)
	Expect(err).NotTo(HaveOccurred())
	return New(p, d, opts...)
}

// bare builds a coordinator whose domains carry no ghost cells.
func bare(fn field.Func, d *domain.Decomposition) *Coordinator {
	p, err := field.NewAnalytic(fn, d.Boxes(), 0, nil)
	Expect(err).NotTo(HaveOccurred())
	return New(p, d)
}

// maxDeviation is the largest distance between matching points of two
// trajectory sets of equal shape.
func maxDeviation(a, b []*particle.Trajectory) float64 {
	worst := 0.0
	for i := range a {
		for j := range a[i].Points {
			worst = math.Max(worst, a[i].Points[j].Position.Sub(b[i].Points[j].Position).Norm())
		}
	}
	return worst
}

func fixedEuler() Request {
	req := DefaultRequest()
	req.Scheme = "euler"
	req.MaxStep = 0.1
	req.MinStep = 0
	req.Limits = termination.Limits{MaxSteps: 10}
	return req
}

// brokenProvider fails to load one domain.
type brokenProvider struct {
	field.Provider
	domain int
}

func (b brokenProvider) Load(ctx context.Context, d, ti int) (field.Block, error) {
	if d == b.domain {
		return nil, fmt.Errorf("disk read failed")
	}
	return b.Provider.Load(ctx, d, ti)
}

// spanRecorder remembers the names of the spans it starts.
type spanRecorder struct {
	noop.Tracer
	mu    sync.Mutex
	names []string
}

func (r *spanRecorder) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	r.mu.Lock()
	r.names = append(r.names, name)
	r.mu.Unlock()
	return r.Tracer.Start(ctx, name, opts...)
}

var _ = Describe("Coordinator", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	Context("with a uniform field in one domain", func() {
		It("takes fixed Euler steps until the step limit", func() {
			c := coordinator(field.Uniform(dynamo.Vec3{1, 0, 0}), []dynamo.Box{box(-1, -1, -1, 5, 1, 1)})

			res, err := c.Run(ctx, fixedEuler(), []seed.Seed{{ID: 0}})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(Completed))
			Expect(res.Trajectories).To(HaveLen(1))

			tr := res.Trajectories[0]
			Expect(tr.Reason).To(Equal(particle.MaxSteps))
			Expect(tr.Points).To(HaveLen(11))
			end, _ := tr.End()
			Expect(end.Position[0]).To(BeNumerically("~", 1.0, 1e-12))
			Expect(end.Time).To(BeNumerically("~", 1.0, 1e-12))
			Expect(end.Scalar).To(BeNumerically("~", 1.0, 1e-12))
			Expect(res.RunID).NotTo(BeEmpty())
		})

		It("integrates both directions from one seed", func() {
			c := coordinator(field.Uniform(dynamo.Vec3{1, 0, 0}), []dynamo.Box{box(-5, -1, -1, 5, 1, 1)})
			req := fixedEuler()
			req.Direction = dynamo.Both

			res, err := c.Run(ctx, req, []seed.Seed{{ID: 7, Position: dynamo.Vec3{0.5, 0, 0}}})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Trajectories).To(HaveLen(2))

			fwd, bwd := res.Trajectories[0], res.Trajectories[1]
			Expect(fwd.Direction).To(Equal(dynamo.Forward))
			Expect(bwd.Direction).To(Equal(dynamo.Backward))
			Expect(fwd.SeedID).To(Equal(7))
			Expect(bwd.SeedID).To(Equal(7))

			e, _ := fwd.End()
			Expect(e.Position[0]).To(BeNumerically("~", 1.5, 1e-12))
			e, _ = bwd.End()
			Expect(e.Position[0]).To(BeNumerically("~", -0.5, 1e-12))
			Expect(e.Time).To(BeNumerically("~", -1.0, 1e-12))
		})

		It("stops at the mesh boundary", func() {
			c := coordinator(field.Uniform(dynamo.Vec3{1, 0, 0}), []dynamo.Box{box(0, -1, -1, 0.55, 1, 1)})

			res, err := c.Run(ctx, fixedEuler(), []seed.Seed{{ID: 0, Position: dynamo.Vec3{0.05, 0, 0}}})
			Expect(err).NotTo(HaveOccurred())
			tr := res.Trajectories[0]
			Expect(tr.Reason).To(Equal(particle.ExitedDomain))
			Expect(tr.Len()).To(BeNumerically("<", 11))
		})

		It("finishes seeds outside the mesh immediately", func() {
			c := coordinator(field.Uniform(dynamo.Vec3{1, 0, 0}), []dynamo.Box{box(0, 0, 0, 1, 1, 1)})

			res, err := c.Run(ctx, fixedEuler(), []seed.Seed{
				{ID: 0, Position: dynamo.Vec3{0.5, 0.5, 0.5}},
				{ID: 1, Position: dynamo.Vec3{9, 9, 9}},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Trajectories).To(HaveLen(2))
			Expect(res.Trajectories[1].Reason).To(Equal(particle.ExitedDomain))
			Expect(res.Trajectories[1].Points).To(HaveLen(1))
		})
	})

	It("traces the run and each rank", func() {
		rec := &spanRecorder{}
		c := coordinator(field.Uniform(dynamo.Vec3{1, 0, 0}), []dynamo.Box{box(-1, -1, -1, 5, 1, 1)}, WithTracer(rec))

		_, err := c.Run(ctx, fixedEuler(), []seed.Seed{{ID: 0}})
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.names).To(ContainElement("flowline.run"))
		Expect(rec.names).To(ContainElement("flowline.rank"))
	})

	It("stops at a sink", func() {
		c := coordinator(field.Sink(dynamo.Vec3{}, 1), []dynamo.Box{box(-2, -2, -2, 2, 2, 2)})
		req := DefaultRequest()
		req.Scheme = "rk4"
		req.MaxStep = 0.1
		req.MinStep = 0
		req.SpeedCutoff = 1e-6

		res, err := c.Run(ctx, req, []seed.Seed{{ID: 0, Position: dynamo.Vec3{1, 0, 0}}})
		Expect(err).NotTo(HaveOccurred())
		tr := res.Trajectories[0]
		Expect(tr.Reason).To(Equal(particle.CriticalPoint))
		Expect(tr.Len()).To(BeNumerically("<", 1001))
		end, _ := tr.End()
		Expect(end.Position.Norm()).To(BeNumerically("<", 1e-5))
	})

	Context("across two domains", func() {
		boxes := []dynamo.Box{box(0, 0, 0, 1, 1, 1), box(1, 0, 0, 2, 1, 1)}

		It("migrates a particle exactly once and keeps its trajectory continuous", func() {
			c := coordinator(field.Uniform(dynamo.Vec3{1, 0, 0}), boxes)
			req := fixedEuler()
			req.Strategy = migrate.Domains
			req.Ranks = 2

			res, err := c.Run(ctx, req, []seed.Seed{{ID: 0, Position: dynamo.Vec3{0.5, 0.5, 0.5}}})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Strategy).To(Equal(migrate.Domains))
			Expect(res.Migrations).To(Equal(1))
			Expect(res.Messages).To(Equal(1))

			tr := res.Trajectories[0]
			Expect(tr.Reason).To(Equal(particle.MaxSteps))
			Expect(tr.Points).To(HaveLen(11))
			for i := 1; i < len(tr.Points); i++ {
				gap := tr.Points[i].Position.Sub(tr.Points[i-1].Position).Norm()
				Expect(gap).To(BeNumerically("~", 0.1, 1e-12))
			}
			end, _ := tr.End()
			Expect(end.Position[0]).To(BeNumerically("~", 1.5, 1e-12))

			Expect(migrate.Verify(res.Ledger)).To(Succeed())
		})

		It("never migrates under the curves strategy", func() {
			c := coordinator(field.Uniform(dynamo.Vec3{1, 0, 0}), boxes)
			req := fixedEuler()
			req.Strategy = migrate.Curves
			req.Ranks = 2

			res, err := c.Run(ctx, req, []seed.Seed{
				{ID: 0, Position: dynamo.Vec3{0.5, 0.5, 0.5}},
				{ID: 1, Position: dynamo.Vec3{0.5, 0.2, 0.5}},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Migrations).To(BeZero())
			Expect(res.Trajectories).To(HaveLen(2))
			for _, tr := range res.Trajectories {
				Expect(tr.Reason).To(Equal(particle.MaxSteps))
			}
		})
	})

	Context("with zero ghost width", func() {
		var cancel context.CancelFunc

		BeforeEach(func() {
			ctx, cancel = context.WithTimeout(ctx, 20*time.Second)
		})

		AfterEach(func() {
			cancel()
		})

		DescribeTable("crosses a shared face",
			func(scheme string) {
				d, err := domain.New([]dynamo.Box{box(0, 0, 0, 1, 1, 1), box(1, 0, 0, 2, 1, 1)}, 0)
				Expect(err).NotTo(HaveOccurred())
				req := DefaultRequest()
				req.Scheme = scheme
				req.Strategy = migrate.Domains
				req.Ranks = 2
				req.Limits = termination.Limits{MaxSteps: 1000, MaxTime: 1.5}

				res, err := bare(field.Uniform(dynamo.Vec3{1, 0, 0}), d).Run(ctx, req,
					[]seed.Seed{{ID: 0, Position: dynamo.Vec3{0.05, 0.5, 0.5}}})
				Expect(err).NotTo(HaveOccurred())
				Expect(res.Status).To(Equal(Completed))
				Expect(res.Migrations).To(Equal(1))
				Expect(migrate.Verify(res.Ledger)).To(Succeed())

				tr := res.Trajectories[0]
				Expect(tr.Reason).To(Equal(particle.MaxTime))
				end, _ := tr.End()
				Expect(end.Position[0]).To(BeNumerically("~", 1.55, 1e-9))
				Expect(end.Time).To(BeNumerically("~", 1.5, 1e-9))
				for i := 1; i < len(tr.Points); i++ {
					Expect(tr.Points[i].Position[0]).To(BeNumerically(">", tr.Points[i-1].Position[0]))
				}
			},
			Entry("rk4", "rk4"),
			Entry("dopri5", "dopri5"),
		)

		DescribeTable("circles through four domains",
			func(scheme string) {
				d, err := domain.NewGrid(box(-2, -2, -1, 2, 2, 1), 2, 2, 1, 0)
				Expect(err).NotTo(HaveOccurred())
				req := DefaultRequest()
				req.Scheme = scheme
				req.Strategy = migrate.Domains
				req.Ranks = 4
				req.Limits = termination.Limits{MaxSteps: 300}

				seeds := []seed.Seed{
					{ID: 0, Position: dynamo.Vec3{1, 0.3, 0}},
					{ID: 1, Position: dynamo.Vec3{0.2, -0.8, 0.1}},
					{ID: 2, Position: dynamo.Vec3{-1.2, 0.4, -0.2}},
				}
				res, err := bare(field.Vortex(1), d).Run(ctx, req, seeds)
				Expect(err).NotTo(HaveOccurred())
				Expect(res.Status).To(Equal(Completed))
				Expect(res.Migrations).To(BeNumerically(">=", 4))
				Expect(migrate.Verify(res.Ledger)).To(Succeed())

				for _, tr := range res.Trajectories {
					Expect(tr.Reason).To(Equal(particle.MaxSteps))
					start, end := tr.Points[0].Position, tr.Points[len(tr.Points)-1].Position
					Expect(math.Hypot(end[0], end[1])).To(BeNumerically("~", math.Hypot(start[0], start[1]), 1e-3))
				}
			},
			Entry("rk4", "rk4"),
			Entry("dopri5", "dopri5"),
		)
	})

	It("matches a single rank under every strategy", func() {
		d, err := domain.NewGrid(box(-2, -2, -2, 2, 2, 2), 2, 2, 2, 0.2)
		Expect(err).NotTo(HaveOccurred())
		p, err := field.NewAnalytic(field.ABC(1, 0.7, 0.4), d.Boxes(), 0.2, nil)
		Expect(err).NotTo(HaveOccurred())

		seeds := make([]seed.Seed, 8)
		for i := range seeds {
			f := float64(i)
			seeds[i] = seed.Seed{ID: i, Position: dynamo.Vec3{-1.5 + 0.4*f, 1.2 - 0.3*f, 0.25*f - 1}}
		}
		base := DefaultRequest()
		base.Direction = dynamo.Both
		base.Limits = termination.Limits{MaxSteps: 200}

		single := base
		single.Strategy = migrate.Domains
		single.Ranks = 1
		want, err := New(p, d).Run(ctx, single, seeds)
		Expect(err).NotTo(HaveOccurred())
		Expect(want.Trajectories).To(HaveLen(16))

		for _, run := range []struct {
			strategy migrate.Strategy
			ranks    int
		}{
			{migrate.Domains, 4},
			{migrate.Curves, 3},
			{migrate.Hybrid, 4},
		} {
			req := base
			req.Strategy = run.strategy
			req.Ranks = run.ranks
			req.GroupSize = 2
			got, err := New(p, d).Run(ctx, req, seeds)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Status).To(Equal(Completed))
			Expect(got.Trajectories).To(HaveLen(len(want.Trajectories)), "%s/%d", run.strategy, run.ranks)
			for i := range want.Trajectories {
				Expect(got.Trajectories[i].Reason).To(Equal(want.Trajectories[i].Reason))
				Expect(got.Trajectories[i].Points).To(HaveLen(len(want.Trajectories[i].Points)))
			}
			Expect(maxDeviation(want.Trajectories, got.Trajectories)).To(BeNumerically("<", 1e-12), "%s/%d", run.strategy, run.ranks)
		}
	})

	It("routes seeds with negative ids", func() {
		c := coordinator(field.Uniform(dynamo.Vec3{1, 0, 0}), []dynamo.Box{box(-1, -1, -1, 5, 1, 1)})
		req := fixedEuler()
		req.Strategy = migrate.Curves
		req.Ranks = 2

		res, err := c.Run(ctx, req, []seed.Seed{{ID: -1}, {ID: -4, Position: dynamo.Vec3{0, 0.5, 0}}})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Status).To(Equal(Completed))
		Expect(res.Trajectories).To(HaveLen(2))
		for _, tr := range res.Trajectories {
			Expect(tr.Reason).To(Equal(particle.MaxSteps))
		}
	})

	It("produces identical trajectories on repeated runs", func() {
		d, err := domain.NewGrid(box(-2, -2, -1, 2, 2, 1), 2, 2, 1, 0.2)
		Expect(err).NotTo(HaveOccurred())
		p, err := field.NewAnalytic(field.Vortex(1), d.Boxes(), 0.2, nil)
		Expect(err).NotTo(HaveOccurred())

		req := DefaultRequest()
		req.Strategy = migrate.Hybrid
		req.Ranks = 4
		req.GroupSize = 2
		req.WorkGroupSize = 7
		req.Limits = termination.Limits{MaxSteps: 200}

		seeds := []seed.Seed{
			{ID: 0, Position: dynamo.Vec3{1, 0, 0}},
			{ID: 1, Position: dynamo.Vec3{0, 0.5, 0.2}},
			{ID: 2, Position: dynamo.Vec3{-1.5, 0.1, -0.3}},
		}

		first, err := New(p, d).Run(ctx, req, seeds)
		Expect(err).NotTo(HaveOccurred())
		second, err := New(p, d).Run(ctx, req, seeds)
		Expect(err).NotTo(HaveOccurred())

		Expect(first.Trajectories).To(HaveLen(len(second.Trajectories)))
		for i := range first.Trajectories {
			a, b := first.Trajectories[i], second.Trajectories[i]
			Expect(a.Reason).To(Equal(b.Reason))
			Expect(a.Points).To(Equal(b.Points))
		}
		Expect(first.Migrations).To(BeNumerically(">", 0))
		Expect(migrate.Verify(first.Ledger)).To(Succeed())

		for _, tr := range first.Trajectories {
			start, end := tr.Points[0].Position, tr.Points[len(tr.Points)-1].Position
			r0 := math.Hypot(start[0], start[1])
			r1 := math.Hypot(end[0], end[1])
			Expect(r1).To(BeNumerically("~", r0, 1e-3))
		}
	})

	It("cancels cooperatively", func() {
		var c *Coordinator
		c = coordinator(field.Vortex(1), []dynamo.Box{box(-2, -2, -1, 2, 2, 1)},
			WithProgress(func(pr Progress) {
				if pr.Round == 2 {
					c.Cancel()
				}
			}))
		req := DefaultRequest()
		req.WorkGroupSize = 1
		req.Limits = termination.Limits{MaxSteps: 100000}

		res, err := c.Run(ctx, req, []seed.Seed{
			{ID: 0, Position: dynamo.Vec3{1, 0, 0}},
			{ID: 1, Position: dynamo.Vec3{0, 1, 0}},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Status).To(Equal(Cancelled))
		for _, tr := range res.Trajectories {
			Expect(tr.Reason).To(Equal(particle.Cancelled))
			Expect(tr.Len()).To(BeNumerically(">", 1))
		}
		Expect(migrate.Verify(res.Ledger)).To(Succeed())
	})

	It("treats a cancelled context as a cancellation request", func() {
		c := coordinator(field.Vortex(1), []dynamo.Box{box(-2, -2, -1, 2, 2, 1)})
		req := DefaultRequest()
		req.WorkGroupSize = 1
		req.Limits = termination.Limits{MaxSteps: 100000}

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		res, err := c.Run(cctx, req, []seed.Seed{{ID: 0, Position: dynamo.Vec3{1, 0, 0}}})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Status).To(Equal(Cancelled))
		Expect(res.Trajectories[0].Reason).To(Equal(particle.Cancelled))
	})

	It("aborts on an unavailable field and keeps finished trajectories", func() {
		boxes := []dynamo.Box{box(0, 0, 0, 1, 1, 1), box(1, 0, 0, 2, 1, 1)}
		d, err := domain.New(boxes, 0.2)
		Expect(err).NotTo(HaveOccurred())
		p, err := field.NewAnalytic(field.Uniform(dynamo.Vec3{1, 0, 0}), boxes, 0.2, nil)
		Expect(err).NotTo(HaveOccurred())

		req := fixedEuler()
		req.Limits = termination.Limits{MaxSteps: 3}

		res, err := New(brokenProvider{Provider: p, domain: 1}, d).Run(ctx, req, []seed.Seed{
			{ID: 0, Position: dynamo.Vec3{0.1, 0.5, 0.5}},
			{ID: 1, Position: dynamo.Vec3{0.95, 0.5, 0.5}},
		})
		Expect(err).To(HaveOccurred())
		Expect(errors.Is(err, dynamo.ErrFieldUnavailable)).To(BeTrue())
		var fe *FatalError
		Expect(errors.As(err, &fe)).To(BeTrue())

		Expect(res).NotTo(BeNil())
		Expect(res.Status).To(Equal(Errored))
		Expect(res.Trajectories).To(HaveLen(1))
		Expect(res.Trajectories[0].Reason).To(Equal(particle.MaxSteps))
		Expect(migrate.Verify(res.Ledger)).To(Succeed())
	})

	DescribeTable("rejects bad configurations",
		func(mutate func(*Request) []seed.Seed, name string) {
			c := coordinator(field0, []dynamo.Box{box(0, 0, 0, 1, 1, 1)})
			req := fixedEuler()
			seeds := mutate(&req)
			res, err := c.Run(ctx, req, seeds)
			Expect(res).To(BeNil())
			var ce *ConfigError
			Expect(errors.As(err, &ce)).To(BeTrue())
			Expect(ce.Field).To(Equal(name))
		},
		Entry("no seeds", func(*Request) []seed.Seed { return nil }, "seeds"),
		Entry("unknown scheme", func(r *Request) []seed.Seed {
			r.Scheme = "rk9"
			return oneSeed
		}, "scheme"),
		Entry("no limits", func(r *Request) []seed.Seed {
			r.Limits = termination.Limits{}
			return oneSeed
		}, "limits"),
		Entry("pathlines past the last snapshot", func(r *Request) []seed.Seed {
			r.Pathlines = true
			r.Limits.MaxTime = 5
			return oneSeed
		}, "pathlines"),
		Entry("invalid seed", func(*Request) []seed.Seed {
			return []seed.Seed{{Position: dynamo.Vec3{math.NaN(), 0, 0}}}
		}, "seeds"),
	)

	It("rejects a provider that disagrees with the decomposition", func() {
		d, err := domain.New([]dynamo.Box{box(0, 0, 0, 1, 1, 1)}, 0)
		Expect(err).NotTo(HaveOccurred())
		p, err := field.NewAnalytic(field0, []dynamo.Box{box(0, 0, 0, 1, 1, 1), box(1, 0, 0, 2, 1, 1)}, 0, nil)
		Expect(err).NotTo(HaveOccurred())

		_, err = New(p, d).Run(ctx, fixedEuler(), oneSeed)
		Expect(IsConfigError(err)).To(BeTrue())
	})

	It("rejects the toroidal scheme when the mesh contains the axis", func() {
		c := coordinator(field0, []dynamo.Box{box(-1, -1, -1, 1, 1, 1)})
		req := fixedEuler()
		req.Scheme = "toroidal"
		_, err := c.Run(ctx, req, oneSeed)
		Expect(IsConfigError(err)).To(BeTrue())
	})
})

var (
	field0  = field.Uniform(dynamo.Vec3{1, 0, 0})
	oneSeed = []seed.Seed{{ID: 0, Position: dynamo.Vec3{0.5, 0.5, 0.5}}}
)
