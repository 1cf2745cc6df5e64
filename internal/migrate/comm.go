package migrate

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/san-kum/flowline/internal/dynamo"
)

type envelope struct {
	data  []byte
	count int
}

// Comm connects the ranks of one run. Inboxes are the only memory shared
// between ranks and carry nothing but encoded messages.
type Comm struct {
	ranks   int
	inboxes []inbox

	inFlight atomic.Int64

	mu      sync.Mutex
	arrived int
	sum     int
	cancel  bool
	gen     *generation
}

type inbox struct {
	mu   sync.Mutex
	msgs []envelope
}

type generation struct {
	done   chan struct{}
	total  int
	cancel bool
}

func NewComm(ranks int) *Comm {
	return &Comm{
		ranks:   ranks,
		inboxes: make([]inbox, ranks),
		gen:     &generation{done: make(chan struct{})},
	}
}

func (c *Comm) Ranks() int { return c.ranks }

// Send delivers a message carrying count particles to rank to.
func (c *Comm) Send(from, to int, data []byte, count int) error {
	if to < 0 || to >= c.ranks || to == from {
		return fmt.Errorf("%w: send from rank %d to rank %d", dynamo.ErrProtocol, from, to)
	}
	c.inFlight.Add(int64(count))
	box := &c.inboxes[to]
	box.mu.Lock()
	box.msgs = append(box.msgs, envelope{data: data, count: count})
	box.mu.Unlock()
	return nil
}

// Drain removes and returns every message waiting for rank.
func (c *Comm) Drain(rank int) [][]byte {
	box := &c.inboxes[rank]
	box.mu.Lock()
	msgs := box.msgs
	box.msgs = nil
	box.mu.Unlock()

	out := make([][]byte, len(msgs))
	for i, m := range msgs {
		c.inFlight.Add(-int64(m.count))
		out[i] = m.data
	}
	return out
}

// InFlight returns the number of particles sent but not yet drained.
func (c *Comm) InFlight() int { return int(c.inFlight.Load()) }

// AllReduce blocks until every rank has called it for the current round
// and returns the global live count (active plus in flight) and whether
// any rank asked to cancel.
func (c *Comm) AllReduce(ctx context.Context, active int, cancel bool) (int, bool, error) {
	c.mu.Lock()
	g := c.gen
	c.arrived++
	c.sum += active
	c.cancel = c.cancel || cancel
	if c.arrived == c.ranks {
		g.total = c.sum + c.InFlight()
		g.cancel = c.cancel
		c.arrived, c.sum, c.cancel = 0, 0, false
		c.gen = &generation{done: make(chan struct{})}
		close(g.done)
	}
	c.mu.Unlock()

	select {
	case <-g.done:
		return g.total, g.cancel, nil
	case <-ctx.Done():
		return 0, false, ctx.Err()
	}
}
