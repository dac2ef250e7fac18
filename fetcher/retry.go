package fetcher

import (
	"context"
	"log/slog"
	"time"

	"github.com/use-agent/newsingest/antibot"
	"github.com/use-agent/newsingest/config"
	"github.com/use-agent/newsingest/models"
)

// Retrier runs a fetch operation with the anti-bot delay before every
// attempt and exponential backoff between attempts. It is shared by all
// workers of a run and holds no per-call state.
type Retrier struct {
	policy      *antibot.Policy
	maxAttempts int
	rlFactor    float64
	maxBackoff  time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

// RetrierOption customizes a Retrier.
type RetrierOption func(*Retrier)

// WithSleep replaces the context-aware sleep. Tests use it to skip delays
// and record them.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) RetrierOption {
	return func(r *Retrier) { r.sleep = fn }
}

// NewRetrier builds a Retrier from cfg. MaxAttempts below 1 is treated as 1.
func NewRetrier(policy *antibot.Policy, cfg config.RetryConfig, opts ...RetrierOption) *Retrier {
	r := &Retrier{
		policy:      policy,
		maxAttempts: max(cfg.MaxAttempts, 1),
		rlFactor:    cfg.RateLimitMultiplier,
		maxBackoff:  cfg.MaxBackoff,
		sleep:       sleepCtx,
	}
	if r.rlFactor < 1 {
		r.rlFactor = 1
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// MaxAttempts is the total attempt budget per operation.
func (r *Retrier) MaxAttempts() int { return r.maxAttempts }

// Do calls op until it succeeds, fails permanently or the attempt budget
// is spent. A Blocked failure rotates the identity for the next attempt.
// The last error is returned when the budget runs out.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context, id antibot.Identity) error) error {
	id := r.policy.NextIdentity()
	var err error
	for attempt := range r.maxAttempts {
		if serr := r.sleep(ctx, r.backoff(attempt, err)); serr != nil {
			return cancelled(serr)
		}
		if err = op(ctx, id); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return cancelled(ctx.Err())
		}
		if !models.IsTransient(err) {
			return err
		}
		if models.CodeOf(err) == models.ErrCodeBlocked {
			id = r.policy.NextIdentity()
		}
		slog.Debug("fetch attempt failed", "attempt", attempt+1, "max_attempts", r.maxAttempts, "error", err)
	}
	return err
}

// backoff returns the wait before attempt (zero-based). The first attempt
// only waits the policy delay; later ones double it per attempt.
func (r *Retrier) backoff(attempt int, lastErr error) time.Duration {
	d := r.policy.DelayBeforeNextRequest()
	if attempt == 0 {
		return d
	}
	d <<= attempt
	if models.CodeOf(lastErr) == models.ErrCodeRateLimited {
		d = time.Duration(float64(d) * r.rlFactor)
	}
	if r.maxBackoff > 0 && d > r.maxBackoff {
		d = r.maxBackoff
	}
	return d
}

func cancelled(err error) error {
	return models.NewScrapeError(models.ErrCodeCancelled, "run cancelled", err)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
