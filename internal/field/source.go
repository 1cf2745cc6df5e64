package field

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/san-kum/flowline/internal/dynamo"
)

// ErrOutsideTime indicates a pathline query before the first or after the
// last snapshot. It is always reported together with dynamo.ErrNotResident.
var ErrOutsideTime = errors.New("field: time outside snapshot range")

// Sample is one answered field query.
type Sample struct {
	Position dynamo.Vec3
	Vector   dynamo.Vec3
	Valid    bool
	Domain   int
	Time     float64
}

// Source answers point queries for the domains one rank may host.
type Source struct {
	cache     *Cache
	times     []float64
	pathlines bool
	static    int
	hosts     func(domain int) bool
}

// SourceOption configures a Source.
type SourceOption func(*Source)

// WithPathlines interpolates between snapshots instead of freezing time.
func WithPathlines() SourceOption {
	return func(s *Source) { s.pathlines = true }
}

// WithHosts restricts the domains the source will load.
func WithHosts(hosts func(domain int) bool) SourceOption {
	return func(s *Source) { s.hosts = hosts }
}

// WithStaticTime selects the snapshot closest to t for streamlines.
func WithStaticTime(t float64) SourceOption {
	return func(s *Source) { s.static = nearest(s.times, t) }
}

func NewSource(c *Cache, opts ...SourceOption) *Source {
	s := &Source{
		cache: c,
		times: c.provider.Times(),
		hosts: func(int) bool { return true },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Hosts reports whether domain may be loaded by this source.
func (s *Source) Hosts(domain int) bool {
	return domain >= 0 && s.hosts(domain)
}

// Sample evaluates the field of domain at (pos, t).
func (s *Source) Sample(ctx context.Context, domain int, pos dynamo.Vec3, t float64) (Sample, error) {
	out := Sample{Position: pos, Domain: domain, Time: t}
	if !s.Hosts(domain) {
		return out, dynamo.ErrNotResident
	}

	if !s.pathlines || len(s.times) == 1 {
		v, err := s.evaluate(ctx, domain, s.static, pos)
		if err != nil {
			return out, err
		}
		out.Vector, out.Valid = v, true
		return out, nil
	}

	i, w, err := bracket(s.times, t)
	if err != nil {
		return out, err
	}
	v0, err := s.evaluate(ctx, domain, i, pos)
	if err != nil {
		return out, err
	}
	if w == 0 {
		out.Vector, out.Valid = v0, true
		return out, nil
	}
	v1, err := s.evaluate(ctx, domain, i+1, pos)
	if err != nil {
		return out, err
	}
	out.Vector = v0.Scale(1-w).AddScaled(w, v1)
	out.Valid = true
	return out, nil
}

func (s *Source) evaluate(ctx context.Context, domain, ti int, pos dynamo.Vec3) (dynamo.Vec3, error) {
	b, err := s.cache.Get(ctx, domain, ti)
	if err != nil {
		if ctx.Err() != nil {
			return dynamo.Vec3{}, ctx.Err()
		}
		return dynamo.Vec3{}, fmt.Errorf("%w: domain %d snapshot %d: %v", dynamo.ErrFieldUnavailable, domain, ti, err)
	}
	v, ok := b.Evaluate(pos)
	if !ok {
		return dynamo.Vec3{}, dynamo.ErrNotResident
	}
	if !v.IsValid() {
		return dynamo.Vec3{}, dynamo.ErrInvalidState
	}
	return v, nil
}

// bracket finds i and weight w so that t = (1-w)*times[i] + w*times[i+1].
func bracket(times []float64, t float64) (int, float64, error) {
	n := len(times)
	if t < times[0] || t > times[n-1] {
		return 0, 0, fmt.Errorf("%w: %w: t=%g not in [%g, %g]", dynamo.ErrNotResident, ErrOutsideTime, t, times[0], times[n-1])
	}
	i := sort.SearchFloat64s(times, t)
	if i < n && times[i] == t {
		if i == n-1 {
			return n - 2, 1, nil
		}
		return i, 0, nil
	}
	i--
	w := (t - times[i]) / (times[i+1] - times[i])
	return i, w, nil
}

func nearest(times []float64, t float64) int {
	best := 0
	for i, ti := range times {
		if abs(ti-t) < abs(times[best]-t) {
			best = i
		}
	}
	return best
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
