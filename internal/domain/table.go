package domain

import (
	"fmt"

	"github.com/san-kum/flowline/internal/dynamo"
)

// Table maps every domain to the rank that owns it. It is built once per
// run and never modified afterwards.
type Table struct {
	owners []int
	ranks  int
	byRank [][]int
}

func NewTable(owners []int, ranks int) (*Table, error) {
	if ranks < 1 {
		return nil, fmt.Errorf("table needs at least one rank, got %d", ranks)
	}
	t := &Table{
		owners: append([]int(nil), owners...),
		ranks:  ranks,
		byRank: make([][]int, ranks),
	}
	for d, r := range owners {
		if r < 0 || r >= ranks {
			return nil, fmt.Errorf("%w: domain %d owned by rank %d of %d", dynamo.ErrOwnership, d, r, ranks)
		}
		t.byRank[r] = append(t.byRank[r], d)
	}
	return t, nil
}

// Owner returns the rank owning domain, or -1 for an unknown domain.
func (t *Table) Owner(domain int) int {
	if domain < 0 || domain >= len(t.owners) {
		return -1
	}
	return t.owners[domain]
}

// Domains returns the domains owned by rank.
func (t *Table) Domains(rank int) []int {
	if rank < 0 || rank >= t.ranks {
		return nil
	}
	return t.byRank[rank]
}

func (t *Table) Ranks() int { return t.ranks }
func (t *Table) Len() int   { return len(t.owners) }

// Tracker answers "which domain, which rank" for positions.
type Tracker struct {
	decomp *Decomposition
	table  *Table
}

func NewTracker(d *Decomposition, t *Table) (*Tracker, error) {
	if d.Len() != t.Len() {
		return nil, fmt.Errorf("%w: %d domains but %d table entries", dynamo.ErrOwnership, d.Len(), t.Len())
	}
	return &Tracker{decomp: d, table: t}, nil
}

func (tr *Tracker) Decomposition() *Decomposition { return tr.decomp }
func (tr *Tracker) Table() *Table                 { return tr.table }

// Locate returns the owning domain and rank of pos.
func (tr *Tracker) Locate(pos dynamo.Vec3) (int, int, error) {
	d, err := tr.decomp.Find(pos)
	if err != nil {
		return -1, -1, err
	}
	return d, tr.table.Owner(d), nil
}

// Relocate is Locate with a hint: the domain pos was last known in.
func (tr *Tracker) Relocate(current int, pos dynamo.Vec3) (int, int, error) {
	d, err := tr.decomp.Search(current, pos)
	if err != nil {
		return -1, -1, err
	}
	return d, tr.table.Owner(d), nil
}
