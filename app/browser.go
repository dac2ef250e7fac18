package app

import (
	"context"
	"log/slog"
	"sync"

	"github.com/use-agent/newsingest/antibot"
	"github.com/use-agent/newsingest/config"
	"github.com/use-agent/newsingest/engine"
	"github.com/use-agent/newsingest/fetcher"
	"github.com/use-agent/newsingest/models"
	"github.com/use-agent/newsingest/scraper"
)

// browserHandle is what the app needs from a running browser.
type browserHandle interface {
	fetcher.PageOpener
	Render(ctx context.Context, req *engine.FetchRequest) (*engine.FetchResult, error)
	Stats() models.PoolStats
	Close()
}

// lazyBrowser launches Chromium on first use. A failed launch is not
// cached, so the next run tries again.
type lazyBrowser struct {
	mu     sync.Mutex
	b      browserHandle
	launch func() (browserHandle, error)
}

func newLazyBrowser(bc config.BrowserConfig, sc config.ScraperConfig) *lazyBrowser {
	return &lazyBrowser{launch: func() (browserHandle, error) {
		return scraper.Launch(bc, sc)
	}}
}

func (l *lazyBrowser) get() (browserHandle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.b != nil {
		return l.b, nil
	}
	b, err := l.launch()
	if err != nil {
		slog.Error("browser launch failed", "error", err)
		if models.CodeOf(err) != models.ErrCodeBrowserCrash {
			err = models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to launch browser", err)
		}
		return nil, err
	}
	l.b = b
	return b, nil
}

// Open satisfies fetcher.PageOpener, launching the browser if needed.
func (l *lazyBrowser) Open(ctx context.Context, pageURL string, id antibot.Identity) (fetcher.Stepper, error) {
	b, err := l.get()
	if err != nil {
		return nil, err
	}
	return b.Open(ctx, pageURL, id)
}

// Render satisfies engine.RodFetchFunc.
func (l *lazyBrowser) Render(ctx context.Context, req *engine.FetchRequest) (*engine.FetchResult, error) {
	b, err := l.get()
	if err != nil {
		return nil, err
	}
	return b.Render(ctx, req)
}

func (l *lazyBrowser) Stats() models.PoolStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.b == nil {
		return models.PoolStats{}
	}
	return l.b.Stats()
}

func (l *lazyBrowser) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.b != nil {
		l.b.Close()
		l.b = nil
	}
}
