package probe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
)

// Burst fires n probes at url concurrently with no delay between them and
// waits for every one to finish before returning. Order of the results
// is unspecified.
func (p *Prober) Burst(ctx context.Context, url string, n int, timeout time.Duration) (BurstResult, error) {
	if n <= 0 {
		return BurstResult{}, fmt.Errorf("burst size must be positive, got %d", n)
	}

	// One worker per request so the whole burst is in flight at once
	pool, err := ants.NewPool(n, ants.WithPreAlloc(true))
	if err != nil {
		return BurstResult{}, fmt.Errorf("failed to create worker pool: %w", err)
	}
	defer pool.Release()

	var (
		mu      sync.Mutex
		results = make([]Result, 0, n)
		wg      sync.WaitGroup
	)

	startTime := time.Now()
	for i := 0; i < n; i++ {
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			r := p.Fetch(ctx, url, timeout)

			mu.Lock()
			results = append(results, r)
			mu.Unlock()
		})
		if err != nil {
			wg.Done()
			// Count the probe that never ran as a failure so the burst
			// still has n results.
			mu.Lock()
			results = append(results, failure(fmt.Errorf("submit probe: %w", err), time.Now()))
			mu.Unlock()
		}
	}
	wg.Wait()

	return BurstResult{
		Results:  results,
		Duration: time.Since(startTime),
	}, nil
}

// Burst fires n concurrent probes with the package-level prober.
func Burst(ctx context.Context, url string, n int, timeout time.Duration) (BurstResult, error) {
	return defaultProber.Burst(ctx, url, n, timeout)
}
