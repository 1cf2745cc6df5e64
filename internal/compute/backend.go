package compute

import "sync"

type Backend interface {
	Name() string
	Available() bool
	// ParallelFor calls body over disjoint [lo, hi) chunks covering
	// [0, n) and returns when all have finished.
	ParallelFor(n int, body func(lo, hi int))
	Cleanup()
}

var (
	mu            sync.RWMutex
	activeBackend Backend = AutoSelectBackend()
)

func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if activeBackend != nil {
		activeBackend.Cleanup()
	}
	activeBackend = b
}

func GetBackend() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return activeBackend
}

func AutoSelectBackend() Backend {
	return NewCPUBackend(0)
}
