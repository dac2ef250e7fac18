package scraper

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"github.com/use-agent/newsingest/antibot"
	"github.com/use-agent/newsingest/engine"
	"github.com/use-agent/newsingest/models"
)

// Render loads one page and returns its rendered HTML. It is the
// engine.RodFetchFunc behind the browser tiers of the dispatcher.
func (b *Browser) Render(ctx context.Context, req *engine.FetchRequest) (*engine.FetchResult, error) {
	timeout := req.Timeout
	if timeout <= 0 || timeout > b.scraperCfg.PageTimeout {
		timeout = b.scraperCfg.PageTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	page, release, err := b.acquire()
	if err != nil {
		return nil, err
	}
	healthy := false
	defer func() { release(healthy) }()

	p, router, err := b.prepare(ctx, page, req.URL, req.Identity, req.Stealth)
	if router != nil {
		defer func() { _ = router.Stop() }()
	}
	if err != nil {
		return nil, err
	}

	statusCode := navigationStatus(p)
	removeOverlays(p)

	rawHTML, err := p.HTML()
	if err != nil {
		return nil, categorizeError(err, "failed to extract page HTML", req.URL)
	}
	finalURL := evalStringOrEmpty(p, `() => window.location.href`)
	if finalURL == "" {
		finalURL = req.URL
	}
	healthy = true

	return &engine.FetchResult{
		HTML:       rawHTML,
		Title:      evalStringOrEmpty(p, `() => document.title`),
		StatusCode: statusCode,
		FinalURL:   finalURL,
	}, nil
}

// prepare applies identity, stealth and resource blocking, then navigates
// and waits for the DOM to settle. Stealth and hijacking must be installed
// before navigation to take effect.
func (b *Browser) prepare(ctx context.Context, page *rod.Page, target string, id antibot.Identity, useStealth bool) (*rod.Page, *rod.HijackRouter, error) {
	if useStealth {
		if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
			slog.Warn("stealth injection failed, proceeding without stealth", "error", err)
		}
	}
	if id.UserAgent != "" {
		_ = proto.NetworkSetUserAgentOverride{UserAgent: id.UserAgent}.Call(page)
	}

	headers := make(map[string]string, len(id.Headers)+1)
	for k, v := range id.Headers {
		headers[k] = v
	}
	if _, ok := headers["Referer"]; !ok {
		if u, err := url.Parse(target); err == nil {
			headers["Referer"] = "https://www.google.com/search?q=" + url.QueryEscape(u.Hostname())
		}
	}
	_ = proto.NetworkSetExtraHTTPHeaders{Headers: toHeadersMap(headers)}.Call(page)

	router := setupHijack(page, b.scraperCfg.BlockedResourceTypes)

	p := page.Context(ctx)

	navCtx := ctx
	if b.scraperCfg.NavigationTimeout > 0 {
		var cancel context.CancelFunc
		navCtx, cancel = context.WithTimeout(ctx, b.scraperCfg.NavigationTimeout)
		defer cancel()
	}
	if err := page.Context(navCtx).Navigate(target); err != nil {
		return nil, router, categorizeError(err, "navigation failed", target)
	}
	if err := p.WaitDOMStable(300*time.Millisecond, 0.1); err != nil {
		if ctx.Err() != nil {
			return nil, router, categorizeError(ctx.Err(), "page did not settle", target)
		}
		slog.Debug("WaitDOMStable did not converge, proceeding with current DOM", "url", target, "error", err)
	}
	return p, router, nil
}

// navigationStatus reads the main document status from the Navigation
// Timing API. Zero when unavailable.
func navigationStatus(p *rod.Page) int {
	res, err := p.Eval(`() => {
		try {
			const entries = performance.getEntriesByType("navigation");
			if (entries.length > 0) return entries[0].responseStatus || 0;
		} catch (e) {}
		return 0;
	}`)
	if err != nil {
		return 0
	}
	return res.Value.Int()
}

func evalStringOrEmpty(page *rod.Page, js string) string {
	res, err := page.Eval(js)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

// toHeadersMap converts a plain string map to proto.NetworkHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

// removeOverlays deletes fixed/sticky high z-index elements (cookie
// banners, consent walls, paywall modals) that cover the listing and
// intercept clicks.
func removeOverlays(p *rod.Page) {
	const js = `() => {
		for (const el of document.querySelectorAll('*')) {
			const style = window.getComputedStyle(el);
			if (style.position === 'fixed' || style.position === 'sticky') {
				const z = parseInt(style.zIndex, 10);
				if (z >= 900) el.remove();
			}
		}
		const selectors = [
			'[class*="cookie"]', '[class*="consent"]', '[id*="cookie"]', '[id*="consent"]',
			'[class*="overlay"]', '[class*="gdpr"]', '[id*="onetrust"]',
		];
		for (const sel of selectors) {
			document.querySelectorAll(sel).forEach(el => {
				const pos = window.getComputedStyle(el).position;
				if (pos === 'fixed' || pos === 'sticky' || pos === 'absolute') el.remove();
			});
		}
		document.documentElement.style.overflow = '';
		if (document.body) document.body.style.overflow = '';
	}`
	_, _ = p.Eval(js)
}

// categorizeError maps rod and context failures to fetch error codes.
func categorizeError(err error, msg, target string) *models.ScrapeError {
	switch {
	case errors.Is(err, context.Canceled):
		return models.NewScrapeError(models.ErrCodeCancelled, "request canceled", err).WithURL(target)
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewScrapeError(models.ErrCodeTimeout, msg, err).WithURL(target)
	default:
		return models.NewScrapeError(models.ErrCodeNavigation, msg, err).WithURL(target)
	}
}
