package engine

import (
	"context"
	"time"

	"github.com/use-agent/newsingest/antibot"
)

// Engine is the interface that all page fetch engines implement.
type Engine interface {
	// Name returns the engine identifier (e.g. "http", "rod", "rod-stealth").
	Name() string

	// Fetch retrieves the page for the given request. Failures are
	// *models.ScrapeError values carrying one of the fetch error codes.
	Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error)
}

// FetchRequest contains everything an engine needs to fetch a page.
type FetchRequest struct {
	URL      string
	Identity antibot.Identity
	Timeout  time.Duration
	Stealth  bool
}

// FetchResult is the output of a successful engine fetch.
type FetchResult struct {
	HTML       string
	Title      string
	StatusCode int
	FinalURL   string
	EngineName string
}
