package dynamo

import (
	"fmt"
	"sort"
	"sync"
)

// WarningKind classifies a non-fatal run diagnostic.
type WarningKind string

const (
	WarnStiffness     WarningKind = "stiffness"
	WarnMaxSteps      WarningKind = "max_steps"
	WarnCriticalPoint WarningKind = "critical_point"
)

// Warning is a single non-fatal diagnostic raised during a run.
type Warning struct {
	Kind     WarningKind `json:"kind"`
	Particle int64       `json:"particle"`
	Message  string      `json:"message"`
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: particle %d: %s", w.Kind, w.Particle, w.Message)
}

// Warnings accumulates diagnostics from every rank of a run.
type Warnings struct {
	mu    sync.Mutex
	items []Warning
	seen  map[warnKey]struct{}
}

type warnKey struct {
	kind     WarningKind
	particle int64
}

func NewWarnings() *Warnings {
	return &Warnings{seen: make(map[warnKey]struct{})}
}

// Add records w unless the same kind was already raised for the particle.
func (ws *Warnings) Add(w Warning) {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	k := warnKey{w.Kind, w.Particle}
	if _, dup := ws.seen[k]; dup {
		return
	}
	ws.seen[k] = struct{}{}
	ws.items = append(ws.items, w)
}

// List returns the warnings ordered by particle then kind.
func (ws *Warnings) List() []Warning {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	out := make([]Warning, len(ws.items))
	copy(out, ws.items)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Particle != out[j].Particle {
			return out[i].Particle < out[j].Particle
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

// Count returns how many warnings of kind were raised.
func (ws *Warnings) Count(kind WarningKind) int {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	n := 0
	for _, w := range ws.items {
		if w.Kind == kind {
			n++
		}
	}
	return n
}
