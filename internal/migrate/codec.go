package migrate

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/san-kum/flowline/internal/dynamo"
	"github.com/san-kum/flowline/internal/particle"
)

// Batch is one migration message: every particle a rank hands to one
// destination in one flush.
type Batch struct {
	From      int                  `msgpack:"from"`
	To        int                  `msgpack:"to"`
	Round     int                  `msgpack:"round"`
	Particles []*particle.Particle `msgpack:"particles"`
}

func Encode(b *Batch) ([]byte, error) {
	data, err := msgpack.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("encode batch %d->%d: %w", b.From, b.To, err)
	}
	return data, nil
}

func Decode(data []byte) (*Batch, error) {
	var b Batch
	if err := msgpack.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("%w: decode batch: %v", dynamo.ErrProtocol, err)
	}
	return &b, nil
}
