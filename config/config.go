package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig
	Browser     BrowserConfig
	Scraper     ScraperConfig
	AntiBot     AntiBotConfig
	Retry       RetryConfig
	Engine      EngineConfig
	Sources     SourcesConfig
	Store       StoreConfig
	Credentials CredentialsConfig
	Notify      NotifyConfig
	RateLimit   RateLimitConfig
	Log         LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// MaxPages is the page pool capacity (max concurrent tabs).
	MaxPages int // default: 5

	// DefaultProxy is the proxy URL for all browser traffic.
	DefaultProxy string

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string
}

// ScraperConfig controls browser-driven listing scraping.
type ScraperConfig struct {
	// PageTimeout bounds one page fetch (navigation, wait and extraction).
	PageTimeout time.Duration // default: 45s

	// NavigationTimeout is the max time for page.Navigate alone.
	NavigationTimeout time.Duration // default: 20s

	// BlockedResourceTypes lists resource types the browser never loads.
	// default: ["Image", "Font", "Media"]
	BlockedResourceTypes []string

	// MaxExpansionSteps bounds the scroll/"load more" loop on a listing page.
	MaxExpansionSteps int // default: 3

	// FetchDetails downloads each article page to recover the full body.
	FetchDetails bool // default: true

	// Concurrency is the default worker count per source.
	Concurrency int // default: 4

	// RunTimeout bounds a whole run. Zero disables the bound.
	RunTimeout time.Duration // default: 15m
}

// AntiBotConfig controls identity rotation and request pacing.
type AntiBotConfig struct {
	// UserAgents is the identity pool. Empty uses the built-in pool.
	UserAgents []string

	// MinDelay and MaxDelay bound the randomized pause between requests.
	MinDelay time.Duration // default: 1s
	MaxDelay time.Duration // default: 3s
}

// RetryConfig controls how transient fetch failures are retried.
type RetryConfig struct {
	// MaxAttempts is the total number of tries per fetch, first included.
	MaxAttempts int // default: 3

	// RateLimitMultiplier stretches the backoff after a RateLimited failure.
	RateLimitMultiplier float64 // default: 4

	// MaxBackoff caps a single backoff sleep.
	MaxBackoff time.Duration // default: 30s
}

// EngineConfig controls the multi-engine detail-page dispatcher.
type EngineConfig struct {
	// EnableMultiEngine races plain HTTP against the browser. When false
	// detail pages always go through the stealth browser.
	EnableMultiEngine bool // default: true

	// EscalationDelays is the staged start delay for each engine tier.
	EscalationDelays []time.Duration // default: [0s, 3s, 8s]

	// HTTPTimeout is the deadline for the pure HTTP engine.
	HTTPTimeout time.Duration // default: 10s

	// MemoryTTL is how long the winning engine is remembered per domain.
	MemoryTTL time.Duration // default: 24h
}

// SourcesConfig holds per-source endpoints and pacing.
type SourcesConfig struct {
	ReutersURL string // default: "https://www.reuters.com/business/finance/"

	// ReutersItemSelectors are tried in order; the first that matches wins.
	ReutersItemSelectors []string

	// ReutersRPS and ReutersBurst pace browser traffic to the site.
	ReutersRPS   float64 // default: 0.5
	ReutersBurst int     // default: 1

	// FinnhubBaseURL is used when the credential does not carry one.
	FinnhubBaseURL string // default: "https://finnhub.io/api/v1"

	// FinnhubRPS and FinnhubBurst are used when the credential does not
	// carry a rate limit. The free tier allows 60 calls per minute.
	FinnhubRPS   float64 // default: 1
	FinnhubBurst int     // default: 5

	// FinnhubLookback is the company-news window.
	FinnhubLookback time.Duration // default: 168h
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	// Driver is "memory", "sqlite" or "postgres".
	Driver string // default: "sqlite"

	// DSN is the file path for sqlite or the connection string for postgres.
	DSN string // default: "newsingest.db"
}

// CredentialsConfig locates API credentials.
type CredentialsConfig struct {
	// File is an optional YAML credentials file. Environment credentials
	// take precedence over entries in the file.
	File string
}

// NotifyConfig controls session event delivery.
type NotifyConfig struct {
	WebhookURL    string
	WebhookSecret string

	AMQPURL   string
	AMQPQueue string // default: "newsingest.sessions"
}

// RateLimitConfig controls per-client rate limiting of the HTTP API.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per client IP.
	RequestsPerSecond float64 // default: 2

	// Burst is the maximum burst size per client IP.
	Burst int // default: 5
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "text"
}

// Load reads configuration from environment variables with sane defaults.
// A .env file in the working directory is loaded first if present; real
// environment variables win over it.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Host: envOr("NEWSINGEST_HOST", "0.0.0.0"),
			Port: envIntOr("NEWSINGEST_PORT", 8080),
			Mode: envOr("NEWSINGEST_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:     envBoolOr("NEWSINGEST_HEADLESS", true),
			MaxPages:     envIntOr("NEWSINGEST_MAX_PAGES", 5),
			DefaultProxy: os.Getenv("NEWSINGEST_PROXY"),
			NoSandbox:    envBoolOr("NEWSINGEST_NO_SANDBOX", false),
			BrowserBin:   os.Getenv("NEWSINGEST_BROWSER_BIN"),
		},
		Scraper: ScraperConfig{
			PageTimeout:       envDurationOr("NEWSINGEST_PAGE_TIMEOUT", 45*time.Second),
			NavigationTimeout: envDurationOr("NEWSINGEST_NAV_TIMEOUT", 20*time.Second),
			BlockedResourceTypes: envSliceOr("NEWSINGEST_BLOCKED_RESOURCES", []string{
				"Image", "Font", "Media",
			}),
			MaxExpansionSteps: envIntOr("NEWSINGEST_MAX_EXPANSION_STEPS", 3),
			FetchDetails:      envBoolOr("NEWSINGEST_FETCH_DETAILS", true),
			Concurrency:       envIntOr("NEWSINGEST_CONCURRENCY", 4),
			RunTimeout:        envDurationOr("NEWSINGEST_RUN_TIMEOUT", 15*time.Minute),
		},
		AntiBot: AntiBotConfig{
			UserAgents: envSliceOr("NEWSINGEST_USER_AGENTS", nil),
			MinDelay:   envDurationOr("NEWSINGEST_MIN_DELAY", 1*time.Second),
			MaxDelay:   envDurationOr("NEWSINGEST_MAX_DELAY", 3*time.Second),
		},
		Retry: RetryConfig{
			MaxAttempts:         envIntOr("NEWSINGEST_RETRY_ATTEMPTS", 3),
			RateLimitMultiplier: envFloatOr("NEWSINGEST_RETRY_RATE_LIMIT_MULTIPLIER", 4),
			MaxBackoff:          envDurationOr("NEWSINGEST_RETRY_MAX_BACKOFF", 30*time.Second),
		},
		Engine: EngineConfig{
			EnableMultiEngine: envBoolOr("NEWSINGEST_MULTI_ENGINE", true),
			EscalationDelays:  envDurationSliceOr("NEWSINGEST_ESCALATION_DELAYS", []time.Duration{0, 3 * time.Second, 8 * time.Second}),
			HTTPTimeout:       envDurationOr("NEWSINGEST_HTTP_TIMEOUT", 10*time.Second),
			MemoryTTL:         envDurationOr("NEWSINGEST_ENGINE_MEMORY_TTL", 24*time.Hour),
		},
		Sources: SourcesConfig{
			ReutersURL: envOr("NEWSINGEST_REUTERS_URL", "https://www.reuters.com/business/finance/"),
			ReutersItemSelectors: envSliceOr("NEWSINGEST_REUTERS_SELECTORS", []string{
				"[data-testid='MediaStoryCard']",
				"[data-testid='TextStoryCard']",
				"article",
				"li[class*='story']",
				"div[class*='story-card']",
			}),
			ReutersRPS:      envFloatOr("NEWSINGEST_REUTERS_RPS", 0.5),
			ReutersBurst:    envIntOr("NEWSINGEST_REUTERS_BURST", 1),
			FinnhubBaseURL:  envOr("NEWSINGEST_FINNHUB_BASE_URL", "https://finnhub.io/api/v1"),
			FinnhubRPS:      envFloatOr("NEWSINGEST_FINNHUB_RPS", 1),
			FinnhubBurst:    envIntOr("NEWSINGEST_FINNHUB_BURST", 5),
			FinnhubLookback: envDurationOr("NEWSINGEST_FINNHUB_LOOKBACK", 7*24*time.Hour),
		},
		Store: StoreConfig{
			Driver: envOr("NEWSINGEST_STORE", "sqlite"),
			DSN:    envOr("NEWSINGEST_DSN", "newsingest.db"),
		},
		Credentials: CredentialsConfig{
			File: os.Getenv("NEWSINGEST_CREDENTIALS_FILE"),
		},
		Notify: NotifyConfig{
			WebhookURL:    os.Getenv("NEWSINGEST_WEBHOOK_URL"),
			WebhookSecret: os.Getenv("NEWSINGEST_WEBHOOK_SECRET"),
			AMQPURL:       os.Getenv("NEWSINGEST_AMQP_URL"),
			AMQPQueue:     envOr("NEWSINGEST_AMQP_QUEUE", "newsingest.sessions"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("NEWSINGEST_API_RPS", 2.0),
			Burst:             envIntOr("NEWSINGEST_API_BURST", 5),
		},
		Log: LogConfig{
			Level:  envOr("NEWSINGEST_LOG_LEVEL", "info"),
			Format: envOr("NEWSINGEST_LOG_FORMAT", "text"),
		},
	}
}

func envDurationSliceOr(key string, fallback []time.Duration) []time.Duration {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]time.Duration, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				if d, err := time.ParseDuration(trimmed); err == nil {
					result = append(result, d)
				}
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
