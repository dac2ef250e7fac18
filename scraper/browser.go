// Package scraper drives the headless browser: launch with stealth flags,
// a bounded page pool, single-page renders for the engine dispatcher and
// expandable listing pages for the HTML fetcher.
package scraper

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"

	"github.com/use-agent/newsingest/config"
	"github.com/use-agent/newsingest/models"
)

// Browser owns one Chromium process and its page pool. It is safe for
// concurrent use.
type Browser struct {
	browser     *rod.Browser
	pagePool    rod.Pool[rod.Page]
	browserCfg  config.BrowserConfig
	scraperCfg  config.ScraperConfig
	activePages atomic.Int32
	retired     atomic.Int64
	launchedAt  time.Time
}

// Launch starts a headless browser and creates the page pool.
func Launch(browserCfg config.BrowserConfig, scraperCfg config.ScraperConfig) (*Browser, error) {
	l := launcher.New().
		Headless(browserCfg.Headless).
		NoSandbox(browserCfg.NoSandbox)

	if browserCfg.BrowserBin != "" {
		l = l.Bin(browserCfg.BrowserBin)
	}
	if browserCfg.DefaultProxy != "" {
		l = l.Proxy(browserCfg.DefaultProxy)
	}

	// Stealth flags: hide the automation switches sites probe for.
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("no-first-run"))
	l.Set(flags.Flag("window-size"), "1920,1080")

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to launch browser", err)
	}
	slog.Info("browser launched", "controlURL", controlURL)

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to connect to browser", err)
	}

	maxPages := max(browserCfg.MaxPages, 1)
	slog.Info("page pool created", "maxPages", maxPages)

	return &Browser{
		browser:    browser,
		pagePool:   rod.NewPagePool(maxPages),
		browserCfg: browserCfg,
		scraperCfg: scraperCfg,
		launchedAt: time.Now(),
	}, nil
}

// Stats returns a snapshot of the pool.
func (b *Browser) Stats() models.PoolStats {
	return models.PoolStats{
		Launched:    true,
		MaxPages:    max(b.browserCfg.MaxPages, 1),
		ActivePages: int(b.activePages.Load()),
	}
}

// acquire borrows a tab. The returned release must be called exactly once;
// healthy=false closes the tab instead of recycling it so a wedged renderer
// never goes back into the pool.
func (b *Browser) acquire() (*rod.Page, func(healthy bool), error) {
	page, err := b.pagePool.Get(func() (*rod.Page, error) {
		return b.browser.Page(proto.TargetCreateTarget{})
	})
	if err != nil {
		// Get consumed a slot; give it back empty.
		b.pagePool.Put(nil)
		return nil, nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to acquire page from pool", err)
	}
	b.activePages.Add(1)

	release := func(healthy bool) {
		b.activePages.Add(-1)
		if healthy {
			if navErr := page.Navigate("about:blank"); navErr == nil {
				b.pagePool.Put(page)
				return
			}
		}
		b.retired.Add(1)
		slog.Debug("retiring browser page", "retired_total", b.retired.Load())
		_ = page.Close()
		b.pagePool.Put(nil)
	}
	return page, release, nil
}

// Close drains the page pool and kills the browser process.
func (b *Browser) Close() {
	slog.Info("browser shutting down: draining page pool")
	b.pagePool.Cleanup(func(p *rod.Page) {
		_ = p.Close()
	})
	if err := b.browser.Close(); err != nil {
		slog.Warn("browser close failed", "error", err)
	}
	slog.Info("browser shutdown complete", "uptime", time.Since(b.launchedAt).Round(time.Second))
}
