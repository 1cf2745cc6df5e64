package field

import (
	"context"
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/san-kum/flowline/internal/metrics"
)

type blockKey struct {
	domain, timeIndex int
}

// CacheStats is a snapshot of cache activity.
type CacheStats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// Cache keeps the most recently sampled blocks of one rank.
type Cache struct {
	provider Provider
	blocks   *lru.Cache[blockKey, Block]

	hits, misses, evictions atomic.Uint64
}

// NewCache bounds the number of resident blocks by capacity.
func NewCache(p Provider, capacity int) (*Cache, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("field: cache capacity must be positive, got %d", capacity)
	}
	c := &Cache{provider: p}
	blocks, err := lru.NewWithEvict[blockKey, Block](capacity, func(blockKey, Block) {
		c.evictions.Add(1)
		metrics.CacheEvents.WithLabelValues("evict").Inc()
	})
	if err != nil {
		return nil, err
	}
	c.blocks = blocks
	return c, nil
}

// Get returns the block for (domain, timeIndex), loading it on a miss.
func (c *Cache) Get(ctx context.Context, domain, timeIndex int) (Block, error) {
	k := blockKey{domain, timeIndex}
	if b, ok := c.blocks.Get(k); ok {
		c.hits.Add(1)
		metrics.CacheEvents.WithLabelValues("hit").Inc()
		return b, nil
	}

	c.misses.Add(1)
	metrics.CacheEvents.WithLabelValues("miss").Inc()

	b, err := c.provider.Load(ctx, domain, timeIndex)
	if err != nil {
		return nil, err
	}
	c.blocks.Add(k, b)
	return b, nil
}

// Resident reports whether the block is currently cached without touching
// its recency.
func (c *Cache) Resident(domain, timeIndex int) bool {
	return c.blocks.Contains(blockKey{domain, timeIndex})
}

func (c *Cache) Len() int { return c.blocks.Len() }

func (c *Cache) Stats() CacheStats {
	return CacheStats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}

// Purge drops every cached block.
func (c *Cache) Purge() {
	c.blocks.Purge()
}
