package migrate

import (
	"sort"

	"github.com/san-kum/flowline/internal/metrics"
	"github.com/san-kum/flowline/internal/particle"
)

// Batcher buffers one rank's outgoing particles per destination.
type Batcher struct {
	rank      int
	comm      *Comm
	threshold int
	strategy  string
	round     int
	pending   map[int][]*particle.Particle

	sent     int
	messages int
}

// NewBatcher flushes a destination as soon as it holds threshold
// particles; threshold < 1 defers every flush to the end of the round.
func NewBatcher(rank int, comm *Comm, threshold int, strategy Strategy) *Batcher {
	return &Batcher{
		rank:      rank,
		comm:      comm,
		threshold: threshold,
		strategy:  string(strategy),
		pending:   make(map[int][]*particle.Particle),
	}
}

// SetRound stamps subsequent messages with round.
func (b *Batcher) SetRound(round int) { b.round = round }

// Add queues p for rank to.
func (b *Batcher) Add(to int, p *particle.Particle) error {
	b.pending[to] = append(b.pending[to], p)
	if b.threshold > 0 && len(b.pending[to]) >= b.threshold {
		return b.flushOne(to)
	}
	return nil
}

// Pending returns the number of queued particles.
func (b *Batcher) Pending() int {
	n := 0
	for _, ps := range b.pending {
		n += len(ps)
	}
	return n
}

// Flush sends one message per destination with queued particles.
func (b *Batcher) Flush() error {
	dests := make([]int, 0, len(b.pending))
	for to := range b.pending {
		dests = append(dests, to)
	}
	sort.Ints(dests)
	for _, to := range dests {
		if err := b.flushOne(to); err != nil {
			return err
		}
	}
	return nil
}

func (b *Batcher) flushOne(to int) error {
	ps := b.pending[to]
	if len(ps) == 0 {
		return nil
	}
	data, err := Encode(&Batch{From: b.rank, To: to, Round: b.round, Particles: ps})
	if err != nil {
		return err
	}
	if err := b.comm.Send(b.rank, to, data, len(ps)); err != nil {
		return err
	}
	delete(b.pending, to)

	b.sent += len(ps)
	b.messages++
	metrics.MigrationsTotal.WithLabelValues(b.strategy).Add(float64(len(ps)))
	metrics.MessagesTotal.WithLabelValues(b.strategy).Inc()
	metrics.MessageBytes.Observe(float64(len(data)))
	return nil
}

// Sent returns the particles and messages sent so far.
func (b *Batcher) Sent() (particles, messages int) {
	return b.sent, b.messages
}
