package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/time/rate"

	"github.com/use-agent/newsingest/antibot"
	"github.com/use-agent/newsingest/engine"
	"github.com/use-agent/newsingest/models"
)

// Stepper is an open listing page that can be grown step by step.
type Stepper interface {
	// HTML returns the current rendered document.
	HTML(ctx context.Context) (string, error)

	// Expand performs one expansion step (scroll, "load more" click). It
	// returns false when the page had nothing left to expand.
	Expand(ctx context.Context) (bool, error)

	Close() error
}

// PageOpener navigates to a listing page.
type PageOpener interface {
	Open(ctx context.Context, pageURL string, id antibot.Identity) (Stepper, error)
}

// PageOpenerFunc adapts a function to PageOpener.
type PageOpenerFunc func(ctx context.Context, pageURL string, id antibot.Identity) (Stepper, error)

func (f PageOpenerFunc) Open(ctx context.Context, pageURL string, id antibot.Identity) (Stepper, error) {
	return f(ctx, pageURL, id)
}

// Dispatcher fetches article pages; *engine.Dispatcher satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *engine.FetchRequest) (*engine.FetchResult, error)
}

// HTMLFetcher scrapes a listing page rendered in a browser.
type HTMLFetcher struct {
	source      models.Source
	opener      PageOpener
	containers  []cascadia.Selector
	details     Dispatcher
	limiter     *rate.Limiter
	pageTimeout time.Duration
}

// HTMLOption customizes an HTMLFetcher.
type HTMLOption func(*HTMLFetcher)

// WithDetails enables article page fetches through d.
func WithDetails(d Dispatcher, timeout time.Duration) HTMLOption {
	return func(f *HTMLFetcher) {
		f.details = d
		f.pageTimeout = timeout
	}
}

// WithLimiter makes every page load wait on lim.
func WithLimiter(lim *rate.Limiter) HTMLOption {
	return func(f *HTMLFetcher) { f.limiter = lim }
}

// NewHTMLFetcher compiles the item container selectors. They are tried in
// order and the first one matching any linked container wins.
func NewHTMLFetcher(source models.Source, opener PageOpener, selectors []string, opts ...HTMLOption) (*HTMLFetcher, error) {
	if len(selectors) == 0 {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, "no item selectors configured", nil)
	}
	f := &HTMLFetcher{source: source, opener: opener}
	for _, s := range selectors {
		sel, err := cascadia.Compile(s)
		if err != nil {
			return nil, models.NewScrapeError(models.ErrCodeInvalidInput,
				fmt.Sprintf("invalid item selector %q", s), err)
		}
		f.containers = append(f.containers, sel)
	}
	for _, o := range opts {
		o(f)
	}
	return f, nil
}

func (f *HTMLFetcher) Source() models.Source { return f.source }

// Fetch opens the listing and expands it until a step adds no new items,
// the item cap is reached or limits.MaxSteps steps have run.
func (f *HTMLFetcher) Fetch(ctx context.Context, target Target, limits Limits, id antibot.Identity) ([]models.RawItem, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	page, err := f.opener.Open(ctx, target.URL, id)
	if err != nil {
		return nil, err
	}
	defer page.Close()

	doc, err := page.HTML(ctx)
	if err != nil {
		return nil, err
	}
	items, seen := f.collect(doc, target.URL, nil, nil)
	if len(items) == 0 && antibot.DetectBlocked(doc) {
		return nil, models.NewScrapeError(models.ErrCodeBlocked, "listing served a challenge page", nil).WithURL(target.URL)
	}
	if len(items) == 0 {
		return nil, models.NewScrapeError(models.ErrCodeSourceUnavailable, "no items matched the configured selectors", nil).WithURL(target.URL)
	}

	for step := 0; step < limits.MaxSteps && !capped(items, limits); step++ {
		expanded, err := page.Expand(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			slog.Warn("listing expansion failed", "source", f.source, "url", target.URL, "step", step, "error", err)
			break
		}
		if !expanded {
			break
		}
		doc, err = page.HTML(ctx)
		if err != nil {
			return nil, err
		}
		before := len(items)
		items, seen = f.collect(doc, target.URL, items, seen)
		slog.Debug("listing expanded", "source", f.source, "step", step+1, "items", len(items))
		if len(items) == before {
			break
		}
	}

	if limits.MaxItems > 0 && len(items) > limits.MaxItems {
		items = items[:limits.MaxItems]
	}
	return items, nil
}

func capped(items []models.RawItem, limits Limits) bool {
	return limits.MaxItems > 0 && len(items) >= limits.MaxItems
}

// collect appends the items of doc not yet in seen, in document order.
func (f *HTMLFetcher) collect(doc, pageURL string, items []models.RawItem, seen map[string]bool) ([]models.RawItem, map[string]bool) {
	if seen == nil {
		seen = make(map[string]bool)
	}
	gq, err := goquery.NewDocumentFromReader(strings.NewReader(doc))
	if err != nil {
		return items, seen
	}
	base, _ := url.Parse(pageURL)

	for _, sel := range f.containers {
		matched := false
		gq.FindMatcher(sel).Each(func(_ int, c *goquery.Selection) {
			link := c
			if !c.Is("a[href]") {
				link = c.Find("a[href]").First()
			}
			href, ok := link.Attr("href")
			if !ok {
				return
			}
			abs := resolve(base, href)
			if abs == "" {
				return
			}
			matched = true
			if seen[abs] {
				return
			}
			seen[abs] = true
			fragment, err := goquery.OuterHtml(c)
			if err != nil {
				return
			}
			items = append(items, models.RawItem{Source: f.source, URL: abs, HTML: fragment})
		})
		if matched {
			break
		}
	}
	return items, seen
}

func resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return ""
	}
	ref.Fragment = ""
	return ref.String()
}

// FetchDetail loads the article page through the engine dispatcher.
func (f *HTMLFetcher) FetchDetail(ctx context.Context, item models.RawItem, id antibot.Identity) (models.RawItem, error) {
	if f.details == nil {
		return item, nil
	}
	if err := f.wait(ctx); err != nil {
		return item, err
	}
	res, err := f.details.Dispatch(ctx, &engine.FetchRequest{
		URL:      item.URL,
		Identity: id,
		Timeout:  f.pageTimeout,
	})
	if err != nil {
		return item, err
	}
	item.Detail = res.HTML
	return item, nil
}

func (f *HTMLFetcher) wait(ctx context.Context) error {
	if f.limiter == nil {
		return nil
	}
	return f.limiter.Wait(ctx)
}
