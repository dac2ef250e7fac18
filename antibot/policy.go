// Package antibot shapes outbound requests so they look like ordinary
// browser traffic: rotating identities, randomized pacing and recognition
// of anti-automation challenge pages.
package antibot

import (
	"math/rand/v2"
	"time"
)

// Identity is the request fingerprint presented to a site.
type Identity struct {
	UserAgent string
	Headers   map[string]string
}

// DefaultUserAgents is the identity pool used when none is configured.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.6 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:132.0) Gecko/20100101 Firefox/132.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36 Edg/131.0.0.0",
}

// baseHeaders are sent with every identity.
var baseHeaders = map[string]string{
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
	"Accept-Language":           "en-US,en;q=0.9",
	"DNT":                       "1",
	"Upgrade-Insecure-Requests": "1",
}

// Policy hands out identities and inter-request delays. It holds no
// per-call state and is safe for concurrent use.
type Policy struct {
	identities []Identity
	minDelay   time.Duration
	maxDelay   time.Duration

	// intn returns a uniform int in [0, n). Replaced in tests.
	intn func(n int) int
	// int64n returns a uniform int64 in [0, n).
	int64n func(n int64) int64
}

// Option customizes a Policy.
type Option func(*Policy)

// WithRand replaces the random source. Both functions must be safe for
// concurrent use.
func WithRand(intn func(int) int, int64n func(int64) int64) Option {
	return func(p *Policy) {
		p.intn = intn
		p.int64n = int64n
	}
}

// NewPolicy builds a policy from a user-agent pool and a delay window. An
// empty pool falls back to a single default identity; max below min
// collapses the window to min.
func NewPolicy(userAgents []string, minDelay, maxDelay time.Duration, opts ...Option) *Policy {
	if minDelay < 0 {
		minDelay = 0
	}
	if maxDelay < minDelay {
		maxDelay = minDelay
	}

	ids := make([]Identity, 0, len(userAgents))
	for _, ua := range userAgents {
		if ua == "" {
			continue
		}
		ids = append(ids, newIdentity(ua))
	}
	if len(ids) == 0 {
		ids = append(ids, newIdentity(DefaultUserAgents[0]))
	}

	p := &Policy{
		identities: ids,
		minDelay:   minDelay,
		maxDelay:   maxDelay,
		intn:       rand.IntN,
		int64n:     rand.Int64N,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NextIdentity picks an identity uniformly at random. Consecutive calls
// may return the same identity. It never blocks.
func (p *Policy) NextIdentity() Identity {
	id := p.identities[p.intn(len(p.identities))]
	// Callers may add headers; hand out a copy.
	headers := make(map[string]string, len(id.Headers))
	for k, v := range id.Headers {
		headers[k] = v
	}
	return Identity{UserAgent: id.UserAgent, Headers: headers}
}

// DelayBeforeNextRequest returns a duration drawn uniformly from
// [minDelay, maxDelay].
func (p *Policy) DelayBeforeNextRequest() time.Duration {
	span := int64(p.maxDelay - p.minDelay)
	if span <= 0 {
		return p.minDelay
	}
	return p.minDelay + time.Duration(p.int64n(span+1))
}

// Size is the number of identities in the pool.
func (p *Policy) Size() int { return len(p.identities) }

func newIdentity(ua string) Identity {
	headers := make(map[string]string, len(baseHeaders))
	for k, v := range baseHeaders {
		headers[k] = v
	}
	return Identity{UserAgent: ua, Headers: headers}
}
