package models

import (
	"maps"
	"slices"
	"time"
)

// SessionStatus is the lifecycle state of a scraping session.
type SessionStatus string

const (
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

// Terminal reports whether the status is final.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionFailed
}

// RunConfig holds the parameters of a single run.
type RunConfig struct {
	Source      Source `json:"source"`
	MaxArticles int    `json:"max_articles"`
	Symbol      string `json:"symbol,omitempty"`
	Category    string `json:"category,omitempty"`
	SaveToDB    bool   `json:"save_to_db"`

	// FastMode skips items whose URL is already stored.
	FastMode bool `json:"fast_mode"`

	// Concurrency bounds the worker pool of each source sub-run.
	Concurrency int `json:"concurrency"`
}

// Validate checks run parameters before a session is opened.
func (c RunConfig) Validate() error {
	if _, err := ParseSource(string(c.Source)); err != nil {
		return err
	}
	if c.MaxArticles <= 0 {
		return NewScrapeError(ErrCodeInvalidInput, "max articles must be positive", nil)
	}
	if c.Symbol != "" && c.Source == SourceReuters {
		return NewScrapeError(ErrCodeInvalidInput, "symbol is only supported for finnhub", nil)
	}
	if c.Concurrency < 0 {
		return NewScrapeError(ErrCodeInvalidInput, "concurrency must not be negative", nil)
	}
	return nil
}

// ErrorEntry is one recorded failure.
type ErrorEntry struct {
	Kind    string    `json:"kind"`
	Source  Source    `json:"source,omitempty"`
	URL     string    `json:"url,omitempty"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Session records one execution of the scraping manager.
type Session struct {
	ID              string         `json:"id"`
	Source          Source         `json:"source"`
	StartedAt       time.Time      `json:"started_at"`
	EndedAt         *time.Time     `json:"ended_at,omitempty"`
	Status          SessionStatus  `json:"status"`
	ArticlesScraped int            `json:"articles_scraped"`
	Errors          []ErrorEntry   `json:"errors"`
	ErrorCounts     map[string]int `json:"error_counts"`
	TopLevelError   *ErrorEntry    `json:"top_level_error,omitempty"`
	Config          RunConfig      `json:"config"`
}

// Clone returns a deep copy safe to hand out while the original keeps
// being mutated.
func (s Session) Clone() Session {
	out := s
	out.Errors = slices.Clone(s.Errors)
	out.ErrorCounts = maps.Clone(s.ErrorCounts)
	if s.EndedAt != nil {
		t := *s.EndedAt
		out.EndedAt = &t
	}
	if s.TopLevelError != nil {
		e := *s.TopLevelError
		out.TopLevelError = &e
	}
	return out
}
