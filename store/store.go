// Package store persists articles and sessions. It is the only package
// that talks to a database.
//
// Every backend guarantees that concurrent Upserts of the same URL produce
// exactly one Inserted outcome, and that a stored scrapedAt never moves
// backwards.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/use-agent/newsingest/config"
	"github.com/use-agent/newsingest/models"
)

var (
	// ErrSessionNotFound is returned for unknown session IDs.
	ErrSessionNotFound = errors.New("store: session not found")

	// ErrSessionFinalized is returned when finalizing a session twice.
	ErrSessionFinalized = errors.New("store: session already finalized")
)

// ArticleStore is the deduplicating article repository.
type ArticleStore interface {
	// Upsert inserts a new URL or updates the mutable fields of an existing
	// one. scrapedAt is only refreshed when strictly newer.
	Upsert(ctx context.Context, a models.Article) (models.UpsertOutcome, error)

	// Exists reports whether url is stored.
	Exists(ctx context.Context, url string) (bool, error)

	// RecentByFilter returns articles newest scrapedAt first.
	RecentByFilter(ctx context.Context, f models.ArticleFilter) ([]models.Article, error)

	// Count returns the number of stored articles.
	Count(ctx context.Context) (int64, error)
}

// SessionStore persists scraping sessions.
type SessionStore interface {
	CreateSession(ctx context.Context, s models.Session) error

	// FinalizeSession writes the terminal state. It fails with
	// ErrSessionFinalized if the stored session is no longer running.
	FinalizeSession(ctx context.Context, s models.Session) error

	GetSession(ctx context.Context, id string) (models.Session, error)

	// ListSessions returns up to limit sessions, newest first.
	ListSessions(ctx context.Context, limit int) ([]models.Session, error)
}

// Store is a complete backend.
type Store interface {
	ArticleStore
	SessionStore
	Close() error
}

// Open creates the backend selected by cfg and applies its schema.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return OpenSQLite(ctx, cfg.DSN)
	case "postgres":
		return OpenPostgres(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

func storeError(msg string, err error) error {
	return models.NewScrapeError(models.ErrCodeStore, msg, err)
}

// conflictExhausted reports a write conflict that outlived retryConflicts
// as a plain store failure.
func conflictExhausted(msg string, err error) error {
	return storeError(msg+": write conflict persisted after retries", err)
}
