package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/use-agent/newsingest/models"
)

//go:embed schema/sqlite.sql
var sqliteSchema string

// SQLStore is the embedded SQLite backend.
type SQLStore struct {
	db *sql.DB
	d  dialect
}

// OpenSQLite opens (or creates) the database at dsn and applies the schema.
// ":memory:" is supported and pinned to a single connection so every caller
// sees the same database.
func OpenSQLite(ctx context.Context, dsn string) (*SQLStore, error) {
	memory := dsn == ":memory:"
	if !memory && !strings.Contains(dsn, "_pragma") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, storeError("open sqlite", err)
	}
	if memory {
		db.SetMaxOpenConns(1)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, storeError("apply sqlite schema", err)
	}
	return NewSQLStore(db), nil
}

// NewSQLStore wraps an already-migrated *sql.DB.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{
		db: db,
		d: dialect{
			sb:   sq.StatementBuilder.PlaceholderFormat(sq.Question),
			like: "LIKE",
			time: func(t time.Time) any { return t.UTC().UnixNano() },
			tags: func(tags []string) (any, error) {
				if tags == nil {
					tags = []string{}
				}
				b, err := json.Marshal(tags)
				return string(b), err
			},
		},
	}
}

func isSQLiteConflict(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}

func (s *SQLStore) wrap(msg string, err error) error {
	if isSQLiteConflict(err) {
		return conflictExhausted(msg, err)
	}
	return storeError(msg, err)
}

func (s *SQLStore) Upsert(ctx context.Context, a models.Article) (models.UpsertOutcome, error) {
	var outcome models.UpsertOutcome
	err := retryConflicts(ctx, isSQLiteConflict, func() error {
		q, args, err := s.d.insertArticle(a)
		if err != nil {
			return err
		}
		res, err := s.db.ExecContext(ctx, q, args...)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 1 {
			outcome = models.Inserted
			return nil
		}

		q, args, err = s.d.updateArticle(a)
		if err != nil {
			return err
		}
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return err
		}
		outcome = models.Updated
		return nil
	})
	if err != nil {
		return 0, s.wrap("upsert article", err)
	}
	return outcome, nil
}

func (s *SQLStore) Exists(ctx context.Context, url string) (bool, error) {
	q, args, err := s.d.existsArticle(url)
	if err != nil {
		return false, storeError("build exists query", err)
	}
	var one int
	err = s.db.QueryRowContext(ctx, q, args...).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, s.wrap("check article", err)
	}
	return true, nil
}

func (s *SQLStore) Count(ctx context.Context) (int64, error) {
	q, args, err := s.d.countArticles()
	if err != nil {
		return 0, storeError("build count query", err)
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, s.wrap("count articles", err)
	}
	return n, nil
}

func (s *SQLStore) RecentByFilter(ctx context.Context, f models.ArticleFilter) ([]models.Article, error) {
	q, args, err := s.d.selectArticles(f)
	if err != nil {
		return nil, storeError("build article query", err)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, s.wrap("query articles", err)
	}
	defer rows.Close()

	out := []models.Article{}
	for rows.Next() {
		a, err := scanSQLiteArticle(rows)
		if err != nil {
			return nil, storeError("scan article", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap("iterate articles", err)
	}
	return out, nil
}

func scanSQLiteArticle(rows *sql.Rows) (models.Article, error) {
	var (
		a         models.Article
		source    string
		published sql.NullInt64
		scraped   int64
		author    sql.NullString
		category  sql.NullString
		tags      string
		sentiment sql.NullFloat64
		fp        int64
	)
	err := rows.Scan(&a.URL, &a.Title, &a.Body, &a.Summary, &source, &published, &scraped,
		&author, &category, &tags, &sentiment, &fp)
	if err != nil {
		return a, err
	}
	a.Source = models.Source(source)
	a.ScrapedAt = time.Unix(0, scraped).UTC()
	if published.Valid {
		t := time.Unix(0, published.Int64).UTC()
		a.PublishedAt = &t
	}
	if author.Valid {
		a.Author = &author.String
	}
	if category.Valid {
		a.Category = &category.String
	}
	if sentiment.Valid {
		a.SentimentScore = &sentiment.Float64
	}
	a.Fingerprint = uint64(fp)
	if err := json.Unmarshal([]byte(tags), &a.Tags); err != nil {
		return a, err
	}
	return a, nil
}

func (s *SQLStore) CreateSession(ctx context.Context, sess models.Session) error {
	q, args, err := s.d.insertSession(sess)
	if err != nil {
		return storeError("encode session", err)
	}
	err = retryConflicts(ctx, isSQLiteConflict, func() error {
		_, err := s.db.ExecContext(ctx, q, args...)
		return err
	})
	if err != nil {
		return s.wrap("create session", err)
	}
	return nil
}

func (s *SQLStore) FinalizeSession(ctx context.Context, sess models.Session) error {
	q, args, err := s.d.finalizeSession(sess)
	if err != nil {
		return storeError("encode session", err)
	}
	var affected int64
	err = retryConflicts(ctx, isSQLiteConflict, func() error {
		res, err := s.db.ExecContext(ctx, q, args...)
		if err != nil {
			return err
		}
		affected, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return s.wrap("finalize session", err)
	}
	if affected == 0 {
		if _, err := s.GetSession(ctx, sess.ID); err != nil {
			return err
		}
		return ErrSessionFinalized
	}
	return nil
}

func (s *SQLStore) GetSession(ctx context.Context, id string) (models.Session, error) {
	q, args, err := s.d.selectSession(id)
	if err != nil {
		return models.Session{}, storeError("build session query", err)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return models.Session{}, s.wrap("query session", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return models.Session{}, s.wrap("query session", err)
		}
		return models.Session{}, ErrSessionNotFound
	}
	sess, err := scanSQLiteSession(rows)
	if err != nil {
		return models.Session{}, storeError("scan session", err)
	}
	return sess, nil
}

func (s *SQLStore) ListSessions(ctx context.Context, limit int) ([]models.Session, error) {
	q, args, err := s.d.listSessions(limit)
	if err != nil {
		return nil, storeError("build session query", err)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, s.wrap("list sessions", err)
	}
	defer rows.Close()

	out := []models.Session{}
	for rows.Next() {
		sess, err := scanSQLiteSession(rows)
		if err != nil {
			return nil, storeError("scan session", err)
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap("iterate sessions", err)
	}
	return out, nil
}

func scanSQLiteSession(rows *sql.Rows) (models.Session, error) {
	var (
		sess    models.Session
		source  string
		started int64
		ended   sql.NullInt64
		status  string
		row     sessionRow
		top     sql.NullString
	)
	err := rows.Scan(&sess.ID, &source, &started, &ended, &status, &sess.ArticlesScraped,
		&row.errors, &row.counts, &top, &row.config)
	if err != nil {
		return sess, err
	}
	sess.Source = models.Source(source)
	sess.Status = models.SessionStatus(status)
	sess.StartedAt = time.Unix(0, started).UTC()
	if ended.Valid {
		t := time.Unix(0, ended.Int64).UTC()
		sess.EndedAt = &t
	}
	if top.Valid {
		row.topLevel = &top.String
	}
	return sess, decodeSession(&sess, row)
}

func (s *SQLStore) Close() error { return s.db.Close() }
