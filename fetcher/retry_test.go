package fetcher

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/newsingest/antibot"
	"github.com/use-agent/newsingest/config"
	"github.com/use-agent/newsingest/models"
)

func testRetry() config.RetryConfig {
	return config.RetryConfig{MaxAttempts: 3, RateLimitMultiplier: 4, MaxBackoff: 30 * time.Second}
}

// recordSleeps returns a sleep stub that records every requested delay.
func recordSleeps(out *[]time.Duration) RetrierOption {
	return WithSleep(func(ctx context.Context, d time.Duration) error {
		*out = append(*out, d)
		return ctx.Err()
	})
}

func timeoutErr() error {
	return models.NewScrapeError(models.ErrCodeTimeout, "slow", nil)
}

func TestRetrier_SucceedsAfterTransientFailures(t *testing.T) {
	var sleeps []time.Duration
	r := NewRetrier(antibot.NewPolicy(nil, 0, 0), testRetry(), recordSleeps(&sleeps))

	calls := 0
	err := r.Do(context.Background(), func(context.Context, antibot.Identity) error {
		calls++
		if calls < 3 {
			return timeoutErr()
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Len(t, sleeps, 3)
}

func TestRetrier_AttemptBudget(t *testing.T) {
	for _, budget := range []int{1, 3, 5} {
		cfg := testRetry()
		cfg.MaxAttempts = budget
		r := NewRetrier(antibot.NewPolicy(nil, 0, 0), cfg, WithSleep(func(context.Context, time.Duration) error { return nil }))

		calls := 0
		err := r.Do(context.Background(), func(context.Context, antibot.Identity) error {
			calls++
			return timeoutErr()
		})
		assert.Equal(t, budget, calls, "budget %d", budget)
		assert.Equal(t, models.ErrCodeTimeout, models.CodeOf(err))
	}
}

func TestRetrier_PermanentErrorStopsImmediately(t *testing.T) {
	r := NewRetrier(antibot.NewPolicy(nil, 0, 0), testRetry(), WithSleep(func(context.Context, time.Duration) error { return nil }))

	calls := 0
	err := r.Do(context.Background(), func(context.Context, antibot.Identity) error {
		calls++
		return models.NewScrapeError(models.ErrCodeHTTPStatus, "not found", nil).WithStatus(404)
	})
	assert.Equal(t, 1, calls)
	assert.Equal(t, models.ErrCodeHTTPStatus, models.CodeOf(err))
}

func TestRetrier_BlockedRotatesIdentity(t *testing.T) {
	var next atomic.Int64
	policy := antibot.NewPolicy([]string{"ua-a", "ua-b", "ua-c"}, 0, 0,
		antibot.WithRand(func(n int) int { return int(next.Add(1)-1) % n }, func(int64) int64 { return 0 }))
	r := NewRetrier(policy, testRetry(), WithSleep(func(context.Context, time.Duration) error { return nil }))

	var seen []string
	_ = r.Do(context.Background(), func(_ context.Context, id antibot.Identity) error {
		seen = append(seen, id.UserAgent)
		return models.NewScrapeError(models.ErrCodeBlocked, "captcha", nil)
	})
	assert.Equal(t, []string{"ua-a", "ua-b", "ua-c"}, seen)
}

func TestRetrier_TimeoutKeepsIdentity(t *testing.T) {
	var next atomic.Int64
	policy := antibot.NewPolicy([]string{"ua-a", "ua-b"}, 0, 0,
		antibot.WithRand(func(n int) int { return int(next.Add(1)-1) % n }, func(int64) int64 { return 0 }))
	r := NewRetrier(policy, testRetry(), WithSleep(func(context.Context, time.Duration) error { return nil }))

	var seen []string
	_ = r.Do(context.Background(), func(_ context.Context, id antibot.Identity) error {
		seen = append(seen, id.UserAgent)
		return timeoutErr()
	})
	assert.Equal(t, []string{"ua-a", "ua-a", "ua-a"}, seen)
}

func TestRetrier_Backoff(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want []time.Duration
	}{
		{
			name: "timeout doubles",
			err:  timeoutErr(),
			want: []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond},
		},
		{
			name: "rate limited multiplies",
			err:  models.NewScrapeError(models.ErrCodeRateLimited, "slow down", nil).WithStatus(429),
			want: []time.Duration{100 * time.Millisecond, 800 * time.Millisecond, 1600 * time.Millisecond},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sleeps []time.Duration
			policy := antibot.NewPolicy(nil, 100*time.Millisecond, 100*time.Millisecond)
			r := NewRetrier(policy, testRetry(), recordSleeps(&sleeps))
			_ = r.Do(context.Background(), func(context.Context, antibot.Identity) error { return tt.err })
			assert.Equal(t, tt.want, sleeps)
		})
	}
}

func TestRetrier_BackoffCapped(t *testing.T) {
	var sleeps []time.Duration
	cfg := testRetry()
	cfg.MaxBackoff = 150 * time.Millisecond
	r := NewRetrier(antibot.NewPolicy(nil, 100*time.Millisecond, 100*time.Millisecond), cfg, recordSleeps(&sleeps))
	_ = r.Do(context.Background(), func(context.Context, antibot.Identity) error { return timeoutErr() })
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 150 * time.Millisecond, 150 * time.Millisecond}, sleeps)
}

func TestRetrier_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRetrier(antibot.NewPolicy(nil, 0, 0), testRetry())

	calls := 0
	err := r.Do(ctx, func(context.Context, antibot.Identity) error {
		calls++
		cancel()
		return timeoutErr()
	})
	assert.Equal(t, 1, calls)
	assert.Equal(t, models.ErrCodeCancelled, models.CodeOf(err))
	assert.True(t, errors.Is(err, context.Canceled))
}
