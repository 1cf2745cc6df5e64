package compute

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParallelForCoversRange(t *testing.T) {
	for _, workers := range []int{1, 3, 8} {
		for _, n := range []int{0, 1, 15, 16, 17, 100, 1001} {
			c := NewCPUBackend(workers)
			hits := make([]int, n)
			var mu sync.Mutex
			calls := 0
			c.ParallelFor(n, func(lo, hi int) {
				mu.Lock()
				calls++
				mu.Unlock()
				for i := lo; i < hi; i++ {
					hits[i]++
				}
			})
			for i, h := range hits {
				assert.Equal(t, 1, h, "workers=%d n=%d index %d", workers, n, i)
			}
			assert.LessOrEqual(t, calls, workers, "workers=%d n=%d", workers, n)
		}
	}
}

func TestSmallLoopsRunInline(t *testing.T) {
	c := NewCPUBackend(4)
	calls := 0
	c.ParallelFor(minParallel-1, func(lo, hi int) {
		calls++
		assert.Equal(t, 0, lo)
		assert.Equal(t, minParallel-1, hi)
	})
	assert.Equal(t, 1, calls)
}

func TestBackendSelection(t *testing.T) {
	orig := GetBackend()
	defer SetBackend(orig)

	assert.Equal(t, "cpu", orig.Name())
	assert.True(t, orig.Available())

	b := NewCPUBackend(2)
	SetBackend(b)
	assert.Same(t, b, GetBackend())
	assert.Equal(t, 2, b.Workers())
	assert.Greater(t, NewCPUBackend(0).Workers(), 0)
}
