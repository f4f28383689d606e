// Package cpu implements the host kernels used by the CPU execution path.
//
// Kernels operate on plain Go slices of float32 or float64. Dense linear algebra
// goes through gonum's BLAS implementations; spatial kernels (im2col, pooling,
// LRN) fan out over image planes with package parallel.
package cpu

import (
	"sync"

	"github.com/born-ml/brew/internal/parallel"
)

var (
	workersMu sync.RWMutex
	workers   = parallel.DefaultConfig()
)

// SetParallel replaces the worker configuration used by the spatial kernels.
func SetParallel(cfg parallel.Config) {
	workersMu.Lock()
	workers = cfg
	workersMu.Unlock()
}

func parallelConfig() parallel.Config {
	workersMu.RLock()
	defer workersMu.RUnlock()
	return workers
}
