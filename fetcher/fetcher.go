// Package fetcher retrieves raw items from news sources. A fetcher performs
// exactly one attempt per call; retries, identity rotation and backoff are
// applied by the caller through a Retrier.
package fetcher

import (
	"context"

	"github.com/use-agent/newsingest/antibot"
	"github.com/use-agent/newsingest/models"
)

// Target describes what to fetch from a source.
type Target struct {
	// URL is the listing page for HTML sources.
	URL string

	// Symbol selects company news for API sources. Empty means market news.
	Symbol string

	// Category narrows market news (API) or is informational (HTML).
	Category string
}

// Limits bound a single listing fetch.
type Limits struct {
	// MaxItems caps the number of items returned.
	MaxItems int

	// MaxSteps caps expansion steps (scroll / load more) for HTML sources.
	MaxSteps int
}

// SourceFetcher is implemented by HTMLFetcher and APIFetcher.
type SourceFetcher interface {
	Source() models.Source

	// Fetch returns up to limits.MaxItems items in listing order. Failures
	// are *models.ScrapeError values with fetch error codes.
	Fetch(ctx context.Context, target Target, limits Limits, id antibot.Identity) ([]models.RawItem, error)

	// FetchDetail enriches one item with its article page. Fetchers whose
	// listing already carries full content return the item unchanged.
	FetchDetail(ctx context.Context, item models.RawItem, id antibot.Identity) (models.RawItem, error)
}
