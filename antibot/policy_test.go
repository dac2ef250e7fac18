package antibot

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextIdentity_EmptyPoolUsesDefault(t *testing.T) {
	p := NewPolicy(nil, 0, 0)

	require.Equal(t, 1, p.Size())
	id := p.NextIdentity()
	assert.Equal(t, DefaultUserAgents[0], id.UserAgent)
	assert.Equal(t, "en-US,en;q=0.9", id.Headers["Accept-Language"])
}

func TestNextIdentity_SkipsBlankAgents(t *testing.T) {
	p := NewPolicy([]string{"", "ua-a", ""}, 0, 0)
	assert.Equal(t, 1, p.Size())
	assert.Equal(t, "ua-a", p.NextIdentity().UserAgent)
}

func TestNextIdentity_DrawsFromWholePool(t *testing.T) {
	pool := []string{"ua-a", "ua-b", "ua-c"}
	p := NewPolicy(pool, 0, 0)

	seen := map[string]bool{}
	for i := 0; i < 500; i++ {
		seen[p.NextIdentity().UserAgent] = true
	}
	assert.Len(t, seen, len(pool))
}

func TestNextIdentity_ReturnsCopy(t *testing.T) {
	p := NewPolicy([]string{"ua-a"}, 0, 0)

	id := p.NextIdentity()
	id.Headers["Accept-Language"] = "de-DE"

	assert.Equal(t, "en-US,en;q=0.9", p.NextIdentity().Headers["Accept-Language"])
}

func TestNextIdentity_ConcurrentUse(t *testing.T) {
	p := NewPolicy(DefaultUserAgents, 0, 0)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				assert.NotEmpty(t, p.NextIdentity().UserAgent)
			}
		}()
	}
	wg.Wait()
}

func TestDelayBeforeNextRequest(t *testing.T) {
	tests := []struct {
		name     string
		min, max time.Duration
	}{
		{"window", time.Second, 3 * time.Second},
		{"fixed", 2 * time.Second, 2 * time.Second},
		{"inverted collapses to min", 5 * time.Second, time.Second},
		{"zero", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPolicy(nil, tt.min, tt.max)
			upper := tt.max
			if upper < tt.min {
				upper = tt.min
			}
			for i := 0; i < 200; i++ {
				d := p.DelayBeforeNextRequest()
				assert.GreaterOrEqual(t, d, tt.min)
				assert.LessOrEqual(t, d, upper)
			}
		})
	}
}

func TestDelayBeforeNextRequest_Bounds(t *testing.T) {
	low := NewPolicy(nil, time.Second, 3*time.Second,
		WithRand(func(int) int { return 0 }, func(int64) int64 { return 0 }))
	assert.Equal(t, time.Second, low.DelayBeforeNextRequest())

	high := NewPolicy(nil, time.Second, 3*time.Second,
		WithRand(func(int) int { return 0 }, func(n int64) int64 { return n - 1 }))
	assert.Equal(t, 3*time.Second, high.DelayBeforeNextRequest())
}
