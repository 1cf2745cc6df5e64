package field

import (
	"context"
	"fmt"
	"sort"

	"github.com/san-kum/flowline/internal/dynamo"
)

// Provider is the upstream mesh/field reader. Load may block and is
// expected to be expensive; callers cache its results.
type Provider interface {
	// Times returns the ascending snapshot times. Static fields have one.
	Times() []float64
	// Domains returns the number of domains the reader serves.
	Domains() int
	// Load returns the block of domain at snapshot timeIndex.
	Load(ctx context.Context, domain, timeIndex int) (Block, error)
}

// AnalyticProvider serves FuncBlocks restricted to a set of domain boxes.
type AnalyticProvider struct {
	fn     Func
	boxes  []dynamo.Box
	ghost  float64
	times  []float64
	loader func(domain int, box dynamo.Box, t float64) (Block, error)
}

// NewAnalytic serves fn over boxes with the given ghost width. times lists
// the snapshot times; nil means a single static snapshot at t=0.
func NewAnalytic(fn Func, boxes []dynamo.Box, ghost float64, times []float64) (*AnalyticProvider, error) {
	p, err := newProvider(fn, boxes, ghost, times)
	if err != nil {
		return nil, err
	}
	p.loader = func(domain int, box dynamo.Box, t float64) (Block, error) {
		return NewFuncBlock(domain, box, t, fn), nil
	}
	return p, nil
}

// NewSampled serves GridBlocks built by sampling fn at res nodes per axis,
// mimicking a reader that returns discrete mesh data.
func NewSampled(fn Func, boxes []dynamo.Box, ghost float64, times []float64, res [3]int) (*AnalyticProvider, error) {
	p, err := newProvider(fn, boxes, ghost, times)
	if err != nil {
		return nil, err
	}
	p.loader = func(domain int, box dynamo.Box, t float64) (Block, error) {
		return NewGridBlock(domain, box, res, t, fn)
	}
	return p, nil
}

func newProvider(fn Func, boxes []dynamo.Box, ghost float64, times []float64) (*AnalyticProvider, error) {
	if fn == nil {
		return nil, fmt.Errorf("field: nil field function")
	}
	if len(boxes) == 0 {
		return nil, fmt.Errorf("field: no domains")
	}
	if ghost < 0 {
		return nil, fmt.Errorf("field: negative ghost width %g", ghost)
	}
	if len(times) == 0 {
		times = []float64{0}
	}
	ts := append([]float64(nil), times...)
	if !sort.Float64sAreSorted(ts) {
		return nil, fmt.Errorf("field: snapshot times must be ascending")
	}
	return &AnalyticProvider{fn: fn, boxes: boxes, ghost: ghost, times: ts}, nil
}

func (p *AnalyticProvider) Times() []float64 { return p.times }
func (p *AnalyticProvider) Domains() int     { return len(p.boxes) }

func (p *AnalyticProvider) Load(ctx context.Context, domain, timeIndex int) (Block, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if domain < 0 || domain >= len(p.boxes) {
		return nil, fmt.Errorf("field: unknown domain %d", domain)
	}
	if timeIndex < 0 || timeIndex >= len(p.times) {
		return nil, fmt.Errorf("field: snapshot %d out of range", timeIndex)
	}
	return p.loader(domain, p.boxes[domain].Expand(p.ghost), p.times[timeIndex])
}
