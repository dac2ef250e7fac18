package manager

import (
	"context"
	"sync"
)

// forEach runs fn over items with at most workers concurrent calls. It
// stops scheduling once ctx is done; calls already started drain.
func forEach[T any](ctx context.Context, workers int, items []T, fn func(ctx context.Context, item T)) {
	if workers <= 0 {
		workers = 1
	}
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

loop:
	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break loop
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			fn(ctx, item)
		}()
	}
	wg.Wait()
}
