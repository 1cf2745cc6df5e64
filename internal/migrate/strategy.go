package migrate

import (
	"fmt"

	"github.com/san-kum/flowline/internal/domain"
	"github.com/san-kum/flowline/internal/particle"
)

// Strategy is the work distribution scheme of a run.
type Strategy string

const (
	// Curves assigns seeds round-robin and loads any domain on demand.
	// Particles never migrate.
	Curves Strategy = "curves"
	// Domains gives each domain one owner; particles follow the domains.
	Domains Strategy = "domains"
	// Hybrid gives each domain to a group of ranks; within a group the
	// member is chosen by seed id.
	Hybrid Strategy = "hybrid"
	// Auto defers the choice to a Policy.
	Auto Strategy = "auto"
)

func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case Curves, Domains, Hybrid, Auto:
		return Strategy(s), nil
	case "":
		return Auto, nil
	default:
		return "", fmt.Errorf("unknown strategy: %s", s)
	}
}

// Policy resolves Auto into a concrete strategy.
type Policy interface {
	Choose(seeds, domains, ranks int) Strategy
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(seeds, domains, ranks int) Strategy

func (f PolicyFunc) Choose(seeds, domains, ranks int) Strategy { return f(seeds, domains, ranks) }

// DefaultPolicy picks Curves for a single domain or when seeds outnumber
// domains tenfold, and Domains otherwise.
type DefaultPolicy struct{}

func (DefaultPolicy) Choose(seeds, domains, ranks int) Strategy {
	if domains <= 1 || seeds >= 10*domains {
		return Curves
	}
	return Domains
}

// Plan is the immutable routing of one run.
type Plan struct {
	strategy Strategy
	ranks    int
	table    *domain.Table
	groups   [][]int
	groupOf  []int
}

// NewPlan resolves s (Auto through policy) and builds the ownership table.
// groupSize is the number of ranks per group for Hybrid.
func NewPlan(s Strategy, policy Policy, seeds, domains, ranks, groupSize int) (*Plan, error) {
	if ranks < 1 {
		return nil, fmt.Errorf("plan needs at least one rank, got %d", ranks)
	}
	if domains < 1 {
		return nil, fmt.Errorf("plan needs at least one domain, got %d", domains)
	}
	if s == Auto {
		if policy == nil {
			policy = DefaultPolicy{}
		}
		s = policy.Choose(seeds, domains, ranks)
		if s == Auto {
			return nil, fmt.Errorf("policy resolved to auto")
		}
	}

	p := &Plan{strategy: s, ranks: ranks, groupOf: make([]int, domains)}
	owners := make([]int, domains)

	switch s {
	case Curves, Domains:
		for d := range owners {
			owners[d] = d % ranks
		}
	case Hybrid:
		if groupSize < 1 || groupSize > ranks {
			return nil, fmt.Errorf("hybrid group size %d out of range 1..%d", groupSize, ranks)
		}
		for r := 0; r < ranks; r += groupSize {
			end := r + groupSize
			if end > ranks {
				end = ranks
			}
			members := make([]int, 0, end-r)
			for m := r; m < end; m++ {
				members = append(members, m)
			}
			p.groups = append(p.groups, members)
		}
		for d := range owners {
			g := d % len(p.groups)
			p.groupOf[d] = g
			owners[d] = p.groups[g][0]
		}
	default:
		return nil, fmt.Errorf("unknown strategy: %s", s)
	}

	t, err := domain.NewTable(owners, ranks)
	if err != nil {
		return nil, err
	}
	p.table = t
	return p, nil
}

func (p *Plan) Strategy() Strategy   { return p.strategy }
func (p *Plan) Table() *domain.Table { return p.table }
func (p *Plan) Ranks() int           { return p.ranks }

// InitialRank returns the rank that starts integrating a seed lying in dom.
func (p *Plan) InitialRank(seedID, dom int) int {
	switch p.strategy {
	case Curves:
		return wrap(seedID, p.ranks)
	case Hybrid:
		members := p.groups[p.groupOf[dom]]
		return members[wrap(seedID, len(members))]
	default:
		return p.table.Owner(dom)
	}
}

// Destination returns the rank that continues pt once it is in dom. It
// equals pt.Rank when no migration is needed.
func (p *Plan) Destination(pt *particle.Particle, dom int) int {
	switch p.strategy {
	case Curves:
		return pt.Rank
	case Hybrid:
		members := p.groups[p.groupOf[dom]]
		for _, m := range members {
			if m == pt.Rank {
				return pt.Rank
			}
		}
		return members[wrap(pt.SeedID, len(members))]
	default:
		return p.table.Owner(dom)
	}
}

// wrap maps any seed id onto [0, n).
func wrap(id, n int) int {
	r := id % n
	if r < 0 {
		r += n
	}
	return r
}

// Hosts reports whether rank may load field data of dom.
func (p *Plan) Hosts(rank, dom int) bool {
	switch p.strategy {
	case Curves:
		return true
	case Hybrid:
		if dom < 0 || dom >= len(p.groupOf) {
			return false
		}
		for _, m := range p.groups[p.groupOf[dom]] {
			if m == rank {
				return true
			}
		}
		return false
	default:
		return p.table.Owner(dom) == rank
	}
}
