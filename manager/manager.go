// Package manager orchestrates scraping runs: it opens a session, runs one
// sub-run per selected source through a bounded worker pool, and
// finalizes the session exactly once.
package manager

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/use-agent/newsingest/antibot"
	"github.com/use-agent/newsingest/fetcher"
	"github.com/use-agent/newsingest/models"
	"github.com/use-agent/newsingest/normalizer"
	"github.com/use-agent/newsingest/store"
)

// finalizeTimeout bounds session finalization after the run context is
// gone.
const finalizeTimeout = 10 * time.Second

// Plan is everything a sub-run needs for one source.
type Plan struct {
	Fetcher fetcher.SourceFetcher
	Target  fetcher.Target

	// MaxSteps bounds listing expansion for HTML sources.
	MaxSteps int

	// FetchDetails enables a per-item detail fetch before normalization.
	FetchDetails bool
}

// Planner resolves a source for a run. It fails with a source-level error
// such as CredentialMissing or BrowserCrash.
type Planner func(ctx context.Context, cfg models.RunConfig) (Plan, error)

// Notifier receives finalized sessions.
type Notifier interface {
	SessionFinalized(ctx context.Context, s models.Session)
}

// Observer receives run telemetry.
type Observer interface {
	SessionStarted(source models.Source)
	SessionFinished(s models.Session, elapsed time.Duration)
	ItemStored(source models.Source, outcome string)
	ItemFailed(source models.Source, kind string)
}

// Manager runs scraping sessions. A Manager is reusable; each Run builds
// its own session state.
type Manager struct {
	store       store.Store
	normalizer  *normalizer.Normalizer
	retrier     *fetcher.Retrier
	planners    map[models.Source]Planner
	notifier    Notifier
	observer    Observer
	concurrency int
	runTimeout  time.Duration
	now         func() time.Time
	newID       func() string
}

// Option customizes a Manager.
type Option func(*Manager)

func WithNotifier(n Notifier) Option { return func(m *Manager) { m.notifier = n } }

func WithObserver(o Observer) Option { return func(m *Manager) { m.observer = o } }

// WithConcurrency sets the worker count used when a run leaves it at zero.
func WithConcurrency(n int) Option { return func(m *Manager) { m.concurrency = n } }

// WithRunTimeout bounds every run. Zero disables the bound.
func WithRunTimeout(d time.Duration) Option { return func(m *Manager) { m.runTimeout = d } }

func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

func WithIDFunc(fn func() string) Option { return func(m *Manager) { m.newID = fn } }

// New creates a Manager. planners maps each concrete source to its
// resolver; a selected source without one fails at source level.
func New(st store.Store, n *normalizer.Normalizer, r *fetcher.Retrier, planners map[models.Source]Planner, opts ...Option) *Manager {
	m := &Manager{
		store:       st,
		normalizer:  n,
		retrier:     r,
		planners:    planners,
		observer:    nopObserver{},
		concurrency: 4,
		now:         time.Now,
		newID:       uuid.NewString,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Run executes one session and returns it finalized. The error is non-nil
// only when no session could be opened (invalid parameters or a store
// failure); a Failed session is reported through its status.
func (m *Manager) Run(ctx context.Context, cfg models.RunConfig) (models.Session, error) {
	src, err := models.ParseSource(string(cfg.Source))
	if err != nil {
		return models.Session{}, err
	}
	cfg.Source = src
	if cfg.Concurrency == 0 {
		cfg.Concurrency = m.concurrency
	}
	if err := cfg.Validate(); err != nil {
		return models.Session{}, err
	}

	started := m.now()
	t := newTracker(models.Session{
		ID:        m.newID(),
		Source:    cfg.Source,
		StartedAt: started.UTC(),
		Status:    models.SessionRunning,
		Config:    cfg,
	}, m.now)
	if err := m.store.CreateSession(ctx, t.snapshot()); err != nil {
		return models.Session{}, err
	}

	log := slog.With("session", t.id, "source", cfg.Source)
	log.Info("session started", "max_articles", cfg.MaxArticles, "concurrency", cfg.Concurrency,
		"symbol", cfg.Symbol, "save_to_db", cfg.SaveToDB, "fast_mode", cfg.FastMode)
	m.observer.SessionStarted(cfg.Source)

	runCtx := ctx
	if m.runTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, m.runTimeout)
		defer cancel()
	}

	sources := cfg.Source.Expand()
	sourceErrs := make([]*models.ErrorEntry, len(sources))
	var wg sync.WaitGroup
	for i, s := range sources {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.runSource(runCtx, s, cfg, t); err != nil {
				if runCtx.Err() != nil {
					return
				}
				// A lone source's failure is the top-level error; only
				// sibling failures under "all" join the error log.
				e := t.entry(s, "", err)
				if len(sources) > 1 {
					e = t.fail(s, "", err)
				}
				sourceErrs[i] = &e
				log.Warn("source failed", "sub_source", s, "kind", e.Kind, "error", err)
			}
		}()
	}
	wg.Wait()

	status, top := m.outcome(runCtx, sourceErrs)
	final := t.finish(status, top)

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()
	if err := m.store.FinalizeSession(fctx, final); err != nil {
		log.Error("failed to persist finalized session", "error", err)
	}

	elapsed := m.now().Sub(started)
	log.Info("session finished", "status", final.Status, "articles", final.ArticlesScraped,
		"errors", len(final.Errors), "elapsed", elapsed.Round(time.Millisecond))
	m.observer.SessionFinished(final, elapsed)
	if m.notifier != nil {
		m.notifier.SessionFinalized(fctx, final)
	}
	return final, nil
}

// outcome decides the terminal state. Cancellation always fails the run;
// otherwise it fails only when every selected source failed at source
// level.
func (m *Manager) outcome(runCtx context.Context, sourceErrs []*models.ErrorEntry) (models.SessionStatus, *models.ErrorEntry) {
	if err := runCtx.Err(); err != nil {
		msg := "run cancelled"
		if errors.Is(err, context.DeadlineExceeded) {
			msg = "run timed out"
		}
		return models.SessionFailed, &models.ErrorEntry{
			Kind:    models.ErrCodeCancelled,
			Message: msg,
			At:      m.now().UTC(),
		}
	}
	for _, e := range sourceErrs {
		if e == nil {
			return models.SessionCompleted, nil
		}
	}
	if len(sourceErrs) == 0 {
		return models.SessionCompleted, nil
	}
	return models.SessionFailed, sourceErrs[0]
}

// runSource performs one source's sub-run. The returned error is
// source-level; item failures are recorded on t.
func (m *Manager) runSource(ctx context.Context, src models.Source, cfg models.RunConfig, t *tracker) error {
	planner, ok := m.planners[src]
	if !ok {
		return models.NewScrapeError(models.ErrCodeSourceUnavailable, "no fetcher registered for "+string(src), nil)
	}
	plan, err := planner(ctx, cfg)
	if err != nil {
		return err
	}

	limits := fetcher.Limits{MaxItems: cfg.MaxArticles, MaxSteps: plan.MaxSteps}
	var items []models.RawItem
	err = m.retrier.Do(ctx, func(ctx context.Context, id antibot.Identity) error {
		var ferr error
		items, ferr = plan.Fetcher.Fetch(ctx, plan.Target, limits, id)
		return ferr
	})
	if err != nil {
		return sourceUnavailable(err)
	}
	if len(items) > cfg.MaxArticles {
		items = items[:cfg.MaxArticles]
	}
	slog.Info("items discovered", "session", t.id, "source", src, "items", len(items))

	forEach(ctx, cfg.Concurrency, items, func(ctx context.Context, item models.RawItem) {
		m.processItem(ctx, src, plan, cfg, item, t)
	})
	return nil
}

// processItem runs one item through detail fetch, normalization and
// upsert. Failures are recorded, never returned.
func (m *Manager) processItem(ctx context.Context, src models.Source, plan Plan, cfg models.RunConfig, item models.RawItem, t *tracker) {
	fail := func(url string, err error) {
		if ctx.Err() != nil {
			return
		}
		e := t.fail(src, url, err)
		m.observer.ItemFailed(src, e.Kind)
		slog.Debug("item failed", "session", t.id, "source", src, "url", url, "kind", e.Kind, "error", err)
	}

	if cfg.FastMode && m.exists(ctx, item.URL) {
		m.observer.ItemStored(src, "skipped")
		return
	}

	if plan.FetchDetails && item.URL != "" {
		err := m.retrier.Do(ctx, func(ctx context.Context, id antibot.Identity) error {
			detailed, ferr := plan.Fetcher.FetchDetail(ctx, item, id)
			if ferr == nil {
				item = detailed
			}
			return ferr
		})
		if err != nil {
			fail(item.URL, err)
			return
		}
	}

	article, err := m.normalizer.Normalize(item, src)
	if err != nil {
		fail(item.URL, err)
		return
	}

	if article.URL != item.URL && cfg.FastMode && m.exists(ctx, article.URL) {
		m.observer.ItemStored(src, "skipped")
		return
	}

	outcome := "normalized"
	if cfg.SaveToDB {
		res, err := m.store.Upsert(ctx, article)
		if err != nil {
			fail(article.URL, err)
			return
		}
		outcome = res.String()
	}
	t.scraped()
	m.observer.ItemStored(src, outcome)
}

func (m *Manager) exists(ctx context.Context, url string) bool {
	if url == "" {
		return false
	}
	ok, err := m.store.Exists(ctx, url)
	if err != nil {
		slog.Warn("exists check failed, processing item", "url", url, "error", err)
		return false
	}
	return ok
}

// sourceUnavailable wraps an exhausted listing fetch. Codes that already
// describe a source-level condition pass through.
func sourceUnavailable(err error) error {
	switch models.CodeOf(err) {
	case models.ErrCodeCredentialMissing, models.ErrCodeBrowserCrash,
		models.ErrCodeSourceUnavailable, models.ErrCodeCancelled:
		return err
	}
	return models.NewScrapeError(models.ErrCodeSourceUnavailable, "listing fetch failed", err)
}

type nopObserver struct{}

func (nopObserver) SessionStarted(models.Source)                  {}
func (nopObserver) SessionFinished(models.Session, time.Duration) {}
func (nopObserver) ItemStored(models.Source, string)              {}
func (nopObserver) ItemFailed(models.Source, string)              {}
