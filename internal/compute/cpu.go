package compute

import (
	"runtime"
	"sync"
)

// Loops shorter than this run on the calling goroutine.
const minParallel = 16

type CPUBackend struct {
	workers int
}

// NewCPUBackend uses workers goroutines, or one per CPU when workers < 1.
func NewCPUBackend(workers int) *CPUBackend {
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	return &CPUBackend{workers: workers}
}

func (c *CPUBackend) Name() string    { return "cpu" }
func (c *CPUBackend) Available() bool { return true }
func (c *CPUBackend) Cleanup()        {}
func (c *CPUBackend) Workers() int    { return c.workers }

func (c *CPUBackend) ParallelFor(n int, body func(lo, hi int)) {
	if n <= 0 {
		return
	}
	if n < minParallel || c.workers == 1 {
		body(0, n)
		return
	}

	var wg sync.WaitGroup
	chunkSize := (n + c.workers - 1) / c.workers

	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			body(lo, hi)
		}(start, end)
	}

	wg.Wait()
}
