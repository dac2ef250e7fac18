package scraper

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/use-agent/newsingest/antibot"
	"github.com/use-agent/newsingest/fetcher"
)

// loadMoreText matches the label of pagination controls on news listings.
var loadMoreText = regexp.MustCompile(`(?i)^\s*(load more|show more|more stories|more news|see more|continue)\b`)

// settleDelay lets lazy-loaded cards render after a scroll or click.
const settleDelay = 1500 * time.Millisecond

// ListingPage is an open, expandable listing tab. It implements
// fetcher.Stepper.
type ListingPage struct {
	page       *rod.Page
	router     *rod.HijackRouter
	release    func(healthy bool)
	lastHeight int
	healthy    bool
}

// Open navigates a pooled tab to pageURL with stealth enabled. The tab
// stays checked out until Close.
func (b *Browser) Open(ctx context.Context, pageURL string, id antibot.Identity) (fetcher.Stepper, error) {
	page, release, err := b.acquire()
	if err != nil {
		return nil, err
	}

	navCtx, cancel := context.WithTimeout(ctx, b.scraperCfg.PageTimeout)
	defer cancel()
	p, router, err := b.prepare(navCtx, page, pageURL, id, true)
	if err != nil {
		if router != nil {
			_ = router.Stop()
		}
		release(false)
		return nil, err
	}
	removeOverlays(p)

	lp := &ListingPage{
		page:    page,
		router:  router,
		release: release,
		healthy: true,
	}
	lp.lastHeight = lp.scrollHeight(page.Context(ctx))
	return lp, nil
}

// HTML returns the current document.
func (l *ListingPage) HTML(ctx context.Context) (string, error) {
	html, err := l.page.Context(ctx).HTML()
	if err != nil {
		l.healthy = false
		return "", categorizeError(err, "failed to extract listing HTML", "")
	}
	return html, nil
}

// Expand clicks a visible "load more" control if there is one, then
// scrolls to the bottom. It reports whether either grew the page.
func (l *ListingPage) Expand(ctx context.Context) (bool, error) {
	p := l.page.Context(ctx)
	removeOverlays(p)

	clicked := l.clickLoadMore(p)

	if _, err := p.Eval(`() => window.scrollTo(0, document.body.scrollHeight)`); err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		// Fall back to wheel events when script scrolling is blocked.
		if werr := p.Mouse.Scroll(0, float64(max(l.lastHeight, 1000)), 4); werr != nil {
			l.healthy = false
			return false, werr
		}
	}

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-time.After(settleDelay):
	}
	_ = p.WaitDOMStable(300*time.Millisecond, 0.1)

	height := l.scrollHeight(p)
	grew := height > l.lastHeight
	l.lastHeight = height
	slog.Debug("listing expansion step", "clicked", clicked, "height", height, "grew", grew)
	return clicked || grew, nil
}

// clickLoadMore clicks the first visible control whose label looks like
// pagination. Missing controls are not an error.
func (l *ListingPage) clickLoadMore(p *rod.Page) bool {
	els, err := p.Elements(`button, a[role="button"], [data-testid*="load-more"], [class*="load-more"]`)
	if err != nil {
		return false
	}
	for _, el := range els {
		text, err := el.Text()
		if err != nil || !loadMoreText.MatchString(strings.TrimSpace(text)) {
			continue
		}
		if visible, err := el.Visible(); err != nil || !visible {
			continue
		}
		_ = el.ScrollIntoView()
		if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
			slog.Debug("load more click failed", "label", text, "error", err)
			continue
		}
		return true
	}
	return false
}

func (l *ListingPage) scrollHeight(p *rod.Page) int {
	res, err := p.Eval(`() => document.body ? document.body.scrollHeight : 0`)
	if err != nil {
		return l.lastHeight
	}
	return res.Value.Int()
}

// Close returns the tab to the pool.
func (l *ListingPage) Close() error {
	if l.router != nil {
		_ = l.router.Stop()
	}
	l.release(l.healthy)
	return nil
}
