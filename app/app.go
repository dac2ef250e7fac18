// Package app wires configuration into a ready-to-run ingestion service.
// Both binaries build on it.
package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/use-agent/newsingest/antibot"
	"github.com/use-agent/newsingest/config"
	"github.com/use-agent/newsingest/credential"
	"github.com/use-agent/newsingest/engine"
	"github.com/use-agent/newsingest/fetcher"
	"github.com/use-agent/newsingest/manager"
	"github.com/use-agent/newsingest/metrics"
	"github.com/use-agent/newsingest/models"
	"github.com/use-agent/newsingest/normalizer"
	"github.com/use-agent/newsingest/notify"
	"github.com/use-agent/newsingest/ratelimit"
	"github.com/use-agent/newsingest/store"
)

// finnhubService is the credential service name for Finnhub.
const finnhubService = "finnhub"

// App holds the long-lived services of one process.
type App struct {
	Config    *config.Config
	Store     store.Store
	Manager   *manager.Manager
	Metrics   *metrics.Collector
	StartTime time.Time

	creds    credential.Provider
	limits   *ratelimit.Registry
	browser  *lazyBrowser
	notifier notify.Multi

	reutersMu sync.Mutex
	reuters   *fetcher.HTMLFetcher
}

// Option customizes New.
type Option func(*options)

type options struct {
	creds credential.Provider
	store store.Store
}

// WithCredentials replaces the env+file credential chain.
func WithCredentials(p credential.Provider) Option {
	return func(o *options) { o.creds = p }
}

// WithStore uses st instead of opening cfg.Store.
func WithStore(st store.Store) Option {
	return func(o *options) { o.store = st }
}

// New opens the store and notification sinks and builds the manager. The
// browser is launched on the first run that needs it.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if o.creds == nil {
		file, err := credential.LoadFile(cfg.Credentials.File)
		if err != nil {
			return nil, err
		}
		o.creds = credential.Chain{credential.NewEnvProvider(), file}
	}

	st := o.store
	if st == nil {
		var err error
		st, err = store.Open(ctx, cfg.Store)
		if err != nil {
			return nil, err
		}
		slog.Info("store opened", "driver", cfg.Store.Driver)
	}

	sinks, err := notify.FromConfig(cfg.Notify)
	if err != nil {
		st.Close()
		return nil, err
	}

	a := &App{
		Config:    cfg,
		Store:     st,
		Metrics:   metrics.New(),
		StartTime: time.Now(),
		creds:     o.creds,
		limits:    ratelimit.NewRegistry(ratelimit.Limit{}),
		browser:   newLazyBrowser(cfg.Browser, cfg.Scraper),
		notifier:  sinks,
	}

	policy := antibot.NewPolicy(cfg.AntiBot.UserAgents, cfg.AntiBot.MinDelay, cfg.AntiBot.MaxDelay)
	retrier := fetcher.NewRetrier(policy, cfg.Retry)

	mopts := []manager.Option{
		manager.WithObserver(a.Metrics),
		manager.WithConcurrency(cfg.Scraper.Concurrency),
		manager.WithRunTimeout(cfg.Scraper.RunTimeout),
	}
	if len(sinks) > 0 {
		mopts = append(mopts, manager.WithNotifier(sinks))
	}
	a.Manager = manager.New(st, normalizer.New(), retrier, map[models.Source]manager.Planner{
		models.SourceReuters: a.planReuters,
		models.SourceFinnhub: a.planFinnhub,
	}, mopts...)

	return a, nil
}

// Run executes one scraping session.
func (a *App) Run(ctx context.Context, cfg models.RunConfig) (models.Session, error) {
	return a.Manager.Run(ctx, cfg)
}

// PoolStats reports the browser pool; zero until the browser launches.
func (a *App) PoolStats() models.PoolStats {
	return a.browser.Stats()
}

// Close flushes notifications, then releases the browser and the store.
func (a *App) Close() error {
	errs := []error{a.notifier.Close()}
	a.browser.Close()
	errs = append(errs, a.Store.Close())
	return errors.Join(errs...)
}

func (a *App) planReuters(_ context.Context, _ models.RunConfig) (manager.Plan, error) {
	f, err := a.reutersFetcher()
	if err != nil {
		return manager.Plan{}, err
	}
	return manager.Plan{
		Fetcher:      f,
		Target:       fetcher.Target{URL: a.Config.Sources.ReutersURL},
		MaxSteps:     a.Config.Scraper.MaxExpansionSteps,
		FetchDetails: a.Config.Scraper.FetchDetails,
	}, nil
}

// reutersFetcher builds the listing fetcher once. Detail pages go through
// the engine dispatcher: plain HTTP first, then the browser, then the
// browser with stealth, unless multi-engine mode is off.
func (a *App) reutersFetcher() (*fetcher.HTMLFetcher, error) {
	a.reutersMu.Lock()
	defer a.reutersMu.Unlock()
	if a.reuters != nil {
		return a.reuters, nil
	}

	cfg := a.Config
	limiter := a.limits.For(string(models.SourceReuters), ratelimit.Limit{
		RequestsPerSecond: cfg.Sources.ReutersRPS,
		Burst:             cfg.Sources.ReutersBurst,
	})
	opts := []fetcher.HTMLOption{fetcher.WithLimiter(limiter)}
	if cfg.Scraper.FetchDetails {
		opts = append(opts, fetcher.WithDetails(a.detailDispatcher(), cfg.Scraper.PageTimeout))
	}

	f, err := fetcher.NewHTMLFetcher(models.SourceReuters, a.browser, cfg.Sources.ReutersItemSelectors, opts...)
	if err != nil {
		return nil, err
	}
	a.reuters = f
	return f, nil
}

func (a *App) detailDispatcher() *engine.Dispatcher {
	cfg := a.Config.Engine
	stealth := engine.NewRodEngine(a.browser.Render, true)
	if !cfg.EnableMultiEngine {
		return engine.NewDispatcher([]engine.Engine{stealth}, nil, nil)
	}

	engines := []engine.Engine{
		engine.NewHTTPEngine(cfg.HTTPTimeout),
		engine.NewRodEngine(a.browser.Render, false),
		stealth,
	}
	slog.Info("multi-engine dispatcher enabled", "engines", len(engines), "delays", cfg.EscalationDelays)
	return engine.NewDispatcher(engines, cfg.EscalationDelays, engine.NewDomainMemory(cfg.MemoryTTL))
}

// planFinnhub resolves the active credential per run so a key added
// between runs is picked up.
func (a *App) planFinnhub(ctx context.Context, rc models.RunConfig) (manager.Plan, error) {
	cred, ok, err := a.creds.GetActive(ctx, finnhubService)
	if err != nil {
		return manager.Plan{}, models.NewScrapeError(models.ErrCodeCredentialMissing, "credential lookup failed", err)
	}
	if !ok {
		return manager.Plan{}, models.NewScrapeError(models.ErrCodeCredentialMissing,
			"no active finnhub credential: set FINNHUB_API_KEY or add it to the credentials file", nil)
	}

	cfg := a.Config.Sources
	limit := ratelimit.Limit{RequestsPerSecond: cfg.FinnhubRPS, Burst: cfg.FinnhubBurst}
	if cred.RateLimit > 0 {
		limit.RequestsPerSecond = cred.RateLimit
	}
	limiter := a.limits.For(string(models.SourceFinnhub), limit)

	f := fetcher.NewAPIFetcher(models.SourceFinnhub, cfg.FinnhubBaseURL, cred, limiter, a.Config.Engine.HTTPTimeout,
		fetcher.WithLookback(cfg.FinnhubLookback))
	return manager.Plan{
		Fetcher: f,
		Target:  fetcher.Target{Symbol: rc.Symbol, Category: rc.Category},
	}, nil
}
