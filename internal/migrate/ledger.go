package migrate

import (
	"fmt"
	"sort"
	"sync"

	"github.com/san-kum/flowline/internal/dynamo"
)

// EventKind is a ledger entry type.
type EventKind string

const (
	Claim   EventKind = "claim"
	Release EventKind = "release"
)

// Event is one ownership change.
type Event struct {
	Kind     EventKind
	Rank     int
	Particle int64
	Round    int
}

// Ledger tracks which rank owns each particle.
type Ledger struct {
	mu     sync.Mutex
	owner  map[int64]int
	events []Event
}

func NewLedger() *Ledger {
	return &Ledger{owner: make(map[int64]int)}
}

// Claim records rank taking ownership of id. Claiming a particle another
// rank still owns is a protocol violation.
func (l *Ledger) Claim(rank int, id int64, round int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if cur, ok := l.owner[id]; ok {
		return fmt.Errorf("%w: particle %d claimed by rank %d while owned by rank %d", dynamo.ErrOwnership, id, rank, cur)
	}
	l.owner[id] = rank
	l.events = append(l.events, Event{Kind: Claim, Rank: rank, Particle: id, Round: round})
	return nil
}

// Release records rank giving up id.
func (l *Ledger) Release(rank int, id int64, round int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cur, ok := l.owner[id]
	if !ok || cur != rank {
		return fmt.Errorf("%w: rank %d released particle %d it does not own", dynamo.ErrProtocol, rank, id)
	}
	delete(l.owner, id)
	l.events = append(l.events, Event{Kind: Release, Rank: rank, Particle: id, Round: round})
	return nil
}

// Owner returns the current owner of id.
func (l *Ledger) Owner(id int64) (int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.owner[id]
	return r, ok
}

// Outstanding returns ids still claimed, ascending.
func (l *Ledger) Outstanding() []int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := make([]int64, 0, len(l.owner))
	for id := range l.owner {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Log returns a copy of every recorded event in order.
func (l *Ledger) Log() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}

// ReleaseAll drops every outstanding claim, used when a run aborts.
func (l *Ledger) ReleaseAll(round int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := make([]int64, 0, len(l.owner))
	for id := range l.owner {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		l.events = append(l.events, Event{Kind: Release, Rank: l.owner[id], Particle: id, Round: round})
		delete(l.owner, id)
	}
}

// Verify replays the log and reports the first point at which a particle
// had two owners or was released by a non-owner.
func Verify(events []Event) error {
	owner := make(map[int64]int)
	for i, e := range events {
		cur, owned := owner[e.Particle]
		switch e.Kind {
		case Claim:
			if owned {
				return fmt.Errorf("%w: event %d: particle %d claimed by %d while owned by %d", dynamo.ErrOwnership, i, e.Particle, e.Rank, cur)
			}
			owner[e.Particle] = e.Rank
		case Release:
			if !owned || cur != e.Rank {
				return fmt.Errorf("%w: event %d: particle %d released by non-owner %d", dynamo.ErrProtocol, i, e.Particle, e.Rank)
			}
			delete(owner, e.Particle)
		}
	}
	return nil
}
