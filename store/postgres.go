package store

import (
	"context"
	_ "embed"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/use-agent/newsingest/models"
)

//go:embed schema/postgres.sql
var postgresSchema string

// PostgresStore is the shared-database backend.
type PostgresStore struct {
	pool *pgxpool.Pool
	d    dialect
}

// OpenPostgres connects to connString and applies the schema.
func OpenPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, storeError("connect postgres", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, storeError("ping postgres", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, storeError("apply postgres schema", err)
	}
	return &PostgresStore{
		pool: pool,
		d: dialect{
			sb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
			like: "ILIKE",
			time: func(t time.Time) any { return t.UTC() },
			tags: func(tags []string) (any, error) {
				if tags == nil {
					tags = []string{}
				}
				return tags, nil
			},
		},
	}, nil
}

// isPostgresConflict matches serialization failures and deadlocks.
func isPostgresConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

func (p *PostgresStore) wrap(msg string, err error) error {
	if isPostgresConflict(err) {
		return conflictExhausted(msg, err)
	}
	return storeError(msg, err)
}

func (p *PostgresStore) Upsert(ctx context.Context, a models.Article) (models.UpsertOutcome, error) {
	var outcome models.UpsertOutcome
	err := retryConflicts(ctx, isPostgresConflict, func() error {
		q, args, err := p.d.insertArticle(a)
		if err != nil {
			return err
		}
		tag, err := p.pool.Exec(ctx, q, args...)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 1 {
			outcome = models.Inserted
			return nil
		}

		q, args, err = p.d.updateArticle(a)
		if err != nil {
			return err
		}
		if _, err := p.pool.Exec(ctx, q, args...); err != nil {
			return err
		}
		outcome = models.Updated
		return nil
	})
	if err != nil {
		return 0, p.wrap("upsert article", err)
	}
	return outcome, nil
}

func (p *PostgresStore) Exists(ctx context.Context, url string) (bool, error) {
	q, args, err := p.d.existsArticle(url)
	if err != nil {
		return false, storeError("build exists query", err)
	}
	var one int
	err = p.pool.QueryRow(ctx, q, args...).Scan(&one)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return false, nil
	case err != nil:
		return false, p.wrap("check article", err)
	}
	return true, nil
}

func (p *PostgresStore) Count(ctx context.Context) (int64, error) {
	q, args, err := p.d.countArticles()
	if err != nil {
		return 0, storeError("build count query", err)
	}
	var n int64
	if err := p.pool.QueryRow(ctx, q, args...).Scan(&n); err != nil {
		return 0, p.wrap("count articles", err)
	}
	return n, nil
}

func (p *PostgresStore) RecentByFilter(ctx context.Context, f models.ArticleFilter) ([]models.Article, error) {
	q, args, err := p.d.selectArticles(f)
	if err != nil {
		return nil, storeError("build article query", err)
	}
	rows, err := p.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, p.wrap("query articles", err)
	}
	defer rows.Close()

	out := []models.Article{}
	for rows.Next() {
		var (
			a      models.Article
			source string
			fp     int64
		)
		err := rows.Scan(&a.URL, &a.Title, &a.Body, &a.Summary, &source, &a.PublishedAt, &a.ScrapedAt,
			&a.Author, &a.Category, &a.Tags, &a.SentimentScore, &fp)
		if err != nil {
			return nil, storeError("scan article", err)
		}
		a.Source = models.Source(source)
		a.Fingerprint = uint64(fp)
		a.ScrapedAt = a.ScrapedAt.UTC()
		if a.PublishedAt != nil {
			t := a.PublishedAt.UTC()
			a.PublishedAt = &t
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, p.wrap("iterate articles", err)
	}
	return out, nil
}

func (p *PostgresStore) CreateSession(ctx context.Context, s models.Session) error {
	q, args, err := p.d.insertSession(s)
	if err != nil {
		return storeError("encode session", err)
	}
	if _, err := p.pool.Exec(ctx, q, args...); err != nil {
		return p.wrap("create session", err)
	}
	return nil
}

func (p *PostgresStore) FinalizeSession(ctx context.Context, s models.Session) error {
	q, args, err := p.d.finalizeSession(s)
	if err != nil {
		return storeError("encode session", err)
	}
	tag, err := p.pool.Exec(ctx, q, args...)
	if err != nil {
		return p.wrap("finalize session", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := p.GetSession(ctx, s.ID); err != nil {
			return err
		}
		return ErrSessionFinalized
	}
	return nil
}

func (p *PostgresStore) GetSession(ctx context.Context, id string) (models.Session, error) {
	q, args, err := p.d.selectSession(id)
	if err != nil {
		return models.Session{}, storeError("build session query", err)
	}
	s, err := scanPostgresSession(p.pool.QueryRow(ctx, q, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Session{}, ErrSessionNotFound
	}
	if err != nil {
		return models.Session{}, p.wrap("get session", err)
	}
	return s, nil
}

func (p *PostgresStore) ListSessions(ctx context.Context, limit int) ([]models.Session, error) {
	q, args, err := p.d.listSessions(limit)
	if err != nil {
		return nil, storeError("build session query", err)
	}
	rows, err := p.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, p.wrap("list sessions", err)
	}
	defer rows.Close()

	out := []models.Session{}
	for rows.Next() {
		s, err := scanPostgresSession(rows)
		if err != nil {
			return nil, storeError("scan session", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, p.wrap("iterate sessions", err)
	}
	return out, nil
}

func scanPostgresSession(row pgx.Row) (models.Session, error) {
	var (
		s      models.Session
		source string
		status string
		enc    sessionRow
	)
	err := row.Scan(&s.ID, &source, &s.StartedAt, &s.EndedAt, &status, &s.ArticlesScraped,
		&enc.errors, &enc.counts, &enc.topLevel, &enc.config)
	if err != nil {
		return s, err
	}
	s.Source = models.Source(source)
	s.Status = models.SessionStatus(status)
	s.StartedAt = s.StartedAt.UTC()
	if s.EndedAt != nil {
		t := s.EndedAt.UTC()
		s.EndedAt = &t
	}
	return s, decodeSession(&s, enc)
}

func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}
