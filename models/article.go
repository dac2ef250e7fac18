package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Source identifies where articles come from.
type Source string

const (
	SourceReuters Source = "reuters"
	SourceFinnhub Source = "finnhub"

	// SourceAll runs every concrete source as independent sub-runs
	// merged into one session.
	SourceAll Source = "all"
)

// ParseSource validates a user-supplied source name.
func ParseSource(s string) (Source, error) {
	switch src := Source(strings.ToLower(strings.TrimSpace(s))); src {
	case SourceReuters, SourceFinnhub, SourceAll:
		return src, nil
	default:
		return "", NewScrapeError(ErrCodeInvalidInput,
			fmt.Sprintf("unknown source %q (want reuters, finnhub or all)", s), nil)
	}
}

// Expand returns the concrete sources a selection stands for.
func (s Source) Expand() []Source {
	if s == SourceAll {
		return []Source{SourceReuters, SourceFinnhub}
	}
	return []Source{s}
}

// Article is the canonical, source-independent news record. URL is the
// identity key.
type Article struct {
	URL            string     `json:"url"`
	Title          string     `json:"title"`
	Body           string     `json:"body"`
	Summary        string     `json:"summary"`
	Source         Source     `json:"source"`
	PublishedAt    *time.Time `json:"published_at,omitempty"`
	ScrapedAt      time.Time  `json:"scraped_at"`
	Author         *string    `json:"author,omitempty"`
	Category       *string    `json:"category,omitempty"`
	Tags           []string   `json:"tags"`
	SentimentScore *float64   `json:"sentiment_score,omitempty"`

	// Fingerprint is a SimHash of title and body.
	Fingerprint uint64 `json:"fingerprint,omitempty"`
}

// UpsertOutcome reports what an idempotent write did.
type UpsertOutcome int

const (
	Inserted UpsertOutcome = iota + 1
	Updated
)

func (o UpsertOutcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	default:
		return "unknown"
	}
}

// RawItem is a discovered, not yet normalized article payload. Which of
// HTML, Detail and JSON is populated depends on the source.
type RawItem struct {
	Source Source `json:"source"`

	// URL is the discovered article URL. It may be empty for items the
	// normalizer will reject.
	URL string `json:"url"`

	// HTML is the listing fragment the item was found in.
	HTML string `json:"html,omitempty"`

	// Detail is the full article page, when it was fetched.
	Detail string `json:"detail,omitempty"`

	// JSON is the API object the item was decoded from.
	JSON json.RawMessage `json:"json,omitempty"`
}

// ArticleFilter selects persisted articles for the read endpoints.
type ArticleFilter struct {
	Source   Source
	Category string
	Keyword  string
	Page     int // 1-based
	PageSize int
}

// Normalize clamps paging values into range.
func (f *ArticleFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = 20
	}
	if f.PageSize > 200 {
		f.PageSize = 200
	}
}

// Offset is the row offset for the current page.
func (f ArticleFilter) Offset() int {
	return (f.Page - 1) * f.PageSize
}
