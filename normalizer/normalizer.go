// Package normalizer maps raw source payloads onto the canonical Article.
// It performs no I/O.
package normalizer

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/use-agent/newsingest/models"
)

const (
	defaultSummaryLength = 300

	// DefaultCategory is assigned to listing items that carry no section
	// label of their own.
	DefaultCategory = "Finance"
)

// Normalizer is safe for concurrent use.
type Normalizer struct {
	md         *converter.Converter
	now        func() time.Time
	summaryLen int
}

// Option customizes a Normalizer.
type Option func(*Normalizer)

// WithClock sets the clock used for scrapedAt.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) { n.now = now }
}

// WithSummaryLength sets the maximum length, in runes, of synthesized
// summaries.
func WithSummaryLength(runes int) Option {
	return func(n *Normalizer) {
		if runes > 0 {
			n.summaryLen = runes
		}
	}
}

// New creates a Normalizer.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		md:         newMarkdownConverter(),
		now:        time.Now,
		summaryLen: defaultSummaryLength,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize converts item into an Article. It fails with ErrCodeMalformedItem
// only when no usable URL or title can be found; every other missing field
// is left empty or null.
func (n *Normalizer) Normalize(item models.RawItem, source models.Source) (models.Article, error) {
	var (
		a   models.Article
		err error
	)
	switch source {
	case models.SourceReuters:
		a = n.fromListing(item)
	case models.SourceFinnhub:
		a, err = fromFinnhub(item)
	default:
		err = fmt.Errorf("no mapping for source %q", source)
	}
	if err != nil {
		return models.Article{}, malformed(item.URL, err.Error())
	}
	a.Source = source

	canonical, err := canonicalURL(a.URL)
	if err != nil {
		return models.Article{}, malformed(a.URL, err.Error())
	}
	a.URL = canonical

	a.Title = collapseSpace(a.Title)
	if a.Title == "" {
		return models.Article{}, malformed(a.URL, "title not found")
	}

	a.Body = strings.TrimSpace(a.Body)
	a.Summary = collapseSpace(a.Summary)
	if a.Summary == "" {
		a.Summary = Summarize(a.Body, n.summaryLen)
	}
	a.Tags = DedupTags(a.Tags)
	a.Author = nonEmpty(a.Author)
	a.Category = nonEmpty(a.Category)
	a.Fingerprint = Fingerprint(a.Title + " " + a.Body)
	a.ScrapedAt = n.now().UTC()

	return a, nil
}

// canonicalURL requires an absolute http(s) URL and drops the fragment.
func canonicalURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("url not found")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("url %q is not an absolute http(s) url", raw)
	}
	u.Fragment = ""
	return u.String(), nil
}

func malformed(url, msg string) error {
	return models.NewScrapeError(models.ErrCodeMalformedItem, msg, nil).WithURL(url)
}

func nonEmpty(s *string) *string {
	if s == nil {
		return nil
	}
	v := collapseSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func ptr[T any](v T) *T { return &v }
