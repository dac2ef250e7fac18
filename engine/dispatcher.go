package engine

import (
	"context"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/use-agent/newsingest/models"
)

// Dispatcher coordinates multi-engine racing with staged escalation.
// It starts the cheapest engine first and progressively brings in heavier
// engines if earlier ones fail or are slow.
type Dispatcher struct {
	engines          []Engine
	escalationDelays []time.Duration
	memory           *DomainMemory
}

// NewDispatcher creates a Dispatcher. engines[i] starts escalationDelays[i]
// after the race begins; missing delays are zero. memory may be nil.
func NewDispatcher(engines []Engine, escalationDelays []time.Duration, memory *DomainMemory) *Dispatcher {
	delays := make([]time.Duration, len(engines))
	copy(delays, escalationDelays)
	return &Dispatcher{
		engines:          engines,
		escalationDelays: delays,
		memory:           memory,
	}
}

// Dispatch returns the first successful result. If every engine fails,
// the most informative failure is returned so the caller's retry policy
// can act on it (a challenge page beats a generic navigation error).
func (d *Dispatcher) Dispatch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	host := hostOf(req.URL)

	if d.memory != nil {
		if remembered := d.memory.Get(host); remembered != "" {
			for _, eng := range d.engines {
				if eng.Name() != remembered {
					continue
				}
				slog.Debug("domain memory hit", "host", host, "engine", remembered)
				result, err := eng.Fetch(ctx, req)
				if err == nil {
					return result, nil
				}
				if ctx.Err() != nil {
					return nil, err
				}
				slog.Info("remembered engine failed, running full race",
					"host", host, "engine", remembered, "error", err)
				d.memory.Forget(host)
				break
			}
		}
	}

	return d.race(ctx, req, host)
}

func (d *Dispatcher) race(ctx context.Context, req *FetchRequest, host string) (*FetchResult, error) {
	type raceResult struct {
		result *FetchResult
		err    error
	}

	raceCtx, raceCancel := context.WithCancel(ctx)
	defer raceCancel()

	results := make(chan raceResult, len(d.engines))
	var wg sync.WaitGroup

	for i, eng := range d.engines {
		wg.Add(1)
		go func(e Engine, delay time.Duration) {
			defer wg.Done()

			if delay > 0 {
				timer := time.NewTimer(delay)
				defer timer.Stop()
				select {
				case <-raceCtx.Done():
					return
				case <-timer.C:
				}
			}
			if raceCtx.Err() != nil {
				return
			}

			slog.Debug("engine starting", "engine", e.Name(), "url", req.URL)
			result, err := e.Fetch(raceCtx, req)
			if err != nil {
				slog.Debug("engine failed", "engine", e.Name(), "url", req.URL, "error", err)
			}
			results <- raceResult{result: result, err: err}
		}(eng, d.escalationDelays[i])
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var best error
	for rr := range results {
		if rr.err != nil {
			best = moreInformative(best, rr.err)
			continue
		}
		raceCancel()
		slog.Debug("engine won race", "engine", rr.result.EngineName, "url", req.URL)
		if d.memory != nil {
			d.memory.Set(host, rr.result.EngineName)
		}
		return rr.result, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, ClassifyTransportError(err, req.URL)
	}
	if best == nil {
		best = models.NewScrapeError(models.ErrCodeNavigation, "no engine produced a page", nil).WithURL(req.URL)
	}
	return nil, best
}

// errorRank orders fetch codes by how much they tell the retry policy.
var errorRank = map[string]int{
	models.ErrCodeNavigation:  1,
	models.ErrCodeTimeout:     2,
	models.ErrCodeHTTPStatus:  3,
	models.ErrCodeBlocked:     4,
	models.ErrCodeRateLimited: 5,
}

func moreInformative(current, candidate error) error {
	if current == nil {
		return candidate
	}
	if errorRank[models.CodeOf(candidate)] > errorRank[models.CodeOf(current)] {
		return candidate
	}
	return current
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Hostname()
}
