// Package worker runs independent jobs on a bounded pool of goroutines.
package worker

import (
	"context"
	"runtime"
	"sync"
)

// DefaultWorkers is used when a pool size of zero or less is requested.
func DefaultWorkers() int {
	return runtime.GOMAXPROCS(0)
}

// Map applies fn to every item using at most workers goroutines and returns
// the results in item order. Items not started before ctx is cancelled get
// the zero R and are reported by the returned skipped count.
func Map[T, R any](ctx context.Context, workers int, items []T, fn func(ctx context.Context, i int, item T) R) ([]R, int) {
	results := make([]R, len(items))
	if len(items) == 0 {
		return results, 0
	}
	if workers <= 0 {
		workers = DefaultWorkers()
	}
	workers = min(workers, len(items))

	jobs := make(chan int, workers*2)
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		skipped int
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if ctx.Err() != nil {
					mu.Lock()
					skipped++
					mu.Unlock()
					continue
				}
				results[i] = fn(ctx, i, items[i])
			}
		}()
	}

	for i := range items {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return results, skipped
}
