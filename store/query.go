package store

import (
	"encoding/json"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/use-agent/newsingest/models"
)

// likeEscaper makes LIKE wildcards in a keyword match literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

var articleColumns = []string{
	"url", "title", "body", "summary", "source", "published_at", "scraped_at",
	"author", "category", "tags", "sentiment_score", "fingerprint",
}

var sessionColumns = []string{
	"id", "source", "started_at", "ended_at", "status", "articles_scraped",
	"errors", "error_counts", "top_level_error", "config",
}

// dialect captures what differs between the SQL backends: placeholder
// style, how times and tags are stored, and case-insensitive matching.
type dialect struct {
	sb   sq.StatementBuilderType
	like string
	time func(time.Time) any
	tags func([]string) (any, error)
}

func (d dialect) timePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return d.time(*t)
}

func (d dialect) insertArticle(a models.Article) (string, []any, error) {
	tags, err := d.tags(a.Tags)
	if err != nil {
		return "", nil, err
	}
	return d.sb.Insert("articles").
		Columns(articleColumns...).
		Values(a.URL, a.Title, a.Body, a.Summary, string(a.Source),
			d.timePtr(a.PublishedAt), d.time(a.ScrapedAt),
			a.Author, a.Category, tags, a.SentimentScore, int64(a.Fingerprint)).
		Suffix("ON CONFLICT (url) DO NOTHING").
		ToSql()
}

// updateArticle refreshes the mutable fields of an existing row. The
// stored scraped_at only moves forward and a known published_at is never
// cleared.
func (d dialect) updateArticle(a models.Article) (string, []any, error) {
	tags, err := d.tags(a.Tags)
	if err != nil {
		return "", nil, err
	}
	scraped := d.time(a.ScrapedAt)
	return d.sb.Update("articles").
		Set("title", a.Title).
		Set("body", a.Body).
		Set("summary", a.Summary).
		Set("published_at", sq.Expr("COALESCE(?, published_at)", d.timePtr(a.PublishedAt))).
		Set("scraped_at", sq.Expr("CASE WHEN ? > scraped_at THEN ? ELSE scraped_at END", scraped, scraped)).
		Set("author", a.Author).
		Set("category", a.Category).
		Set("tags", tags).
		Set("sentiment_score", a.SentimentScore).
		Set("fingerprint", int64(a.Fingerprint)).
		Where(sq.Eq{"url": a.URL}).
		ToSql()
}

func (d dialect) existsArticle(url string) (string, []any, error) {
	return d.sb.Select("1").From("articles").Where(sq.Eq{"url": url}).Limit(1).ToSql()
}

func (d dialect) countArticles() (string, []any, error) {
	return d.sb.Select("COUNT(*)").From("articles").ToSql()
}

func (d dialect) selectArticles(f models.ArticleFilter) (string, []any, error) {
	f.Normalize()
	q := d.sb.Select(articleColumns...).From("articles")
	if f.Source != "" {
		q = q.Where(sq.Eq{"source": string(f.Source)})
	}
	if f.Category != "" {
		q = q.Where(sq.Expr("LOWER(category) = LOWER(?)", f.Category))
	}
	if f.Keyword != "" {
		pat := "%" + likeEscaper.Replace(f.Keyword) + "%"
		q = q.Where(sq.Or{
			sq.Expr("title "+d.like+` ? ESCAPE '\'`, pat),
			sq.Expr("summary "+d.like+` ? ESCAPE '\'`, pat),
			sq.Expr("body "+d.like+` ? ESCAPE '\'`, pat),
		})
	}
	return q.OrderBy("scraped_at DESC", "url ASC").
		Limit(uint64(f.PageSize)).
		Offset(uint64(f.Offset())).
		ToSql()
}

// sessionRow is the JSON-encoded form of the session's nested fields.
type sessionRow struct {
	errors, counts, config string
	topLevel               *string
}

func encodeSession(s models.Session) (sessionRow, error) {
	var row sessionRow
	errs := s.Errors
	if errs == nil {
		errs = []models.ErrorEntry{}
	}
	b, err := json.Marshal(errs)
	if err != nil {
		return row, err
	}
	row.errors = string(b)

	counts := s.ErrorCounts
	if counts == nil {
		counts = map[string]int{}
	}
	if b, err = json.Marshal(counts); err != nil {
		return row, err
	}
	row.counts = string(b)

	if b, err = json.Marshal(s.Config); err != nil {
		return row, err
	}
	row.config = string(b)

	if s.TopLevelError != nil {
		if b, err = json.Marshal(s.TopLevelError); err != nil {
			return row, err
		}
		top := string(b)
		row.topLevel = &top
	}
	return row, nil
}

func decodeSession(s *models.Session, row sessionRow) error {
	if err := json.Unmarshal([]byte(row.errors), &s.Errors); err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(row.counts), &s.ErrorCounts); err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(row.config), &s.Config); err != nil {
		return err
	}
	if row.topLevel != nil {
		var top models.ErrorEntry
		if err := json.Unmarshal([]byte(*row.topLevel), &top); err != nil {
			return err
		}
		s.TopLevelError = &top
	}
	return nil
}

func (d dialect) insertSession(s models.Session) (string, []any, error) {
	row, err := encodeSession(s)
	if err != nil {
		return "", nil, err
	}
	return d.sb.Insert("sessions").
		Columns(sessionColumns...).
		Values(s.ID, string(s.Source), d.time(s.StartedAt), d.timePtr(s.EndedAt),
			string(s.Status), s.ArticlesScraped, row.errors, row.counts, row.topLevel, row.config).
		ToSql()
}

func (d dialect) finalizeSession(s models.Session) (string, []any, error) {
	row, err := encodeSession(s)
	if err != nil {
		return "", nil, err
	}
	return d.sb.Update("sessions").
		Set("ended_at", d.timePtr(s.EndedAt)).
		Set("status", string(s.Status)).
		Set("articles_scraped", s.ArticlesScraped).
		Set("errors", row.errors).
		Set("error_counts", row.counts).
		Set("top_level_error", row.topLevel).
		Where(sq.Eq{"id": s.ID, "status": string(models.SessionRunning)}).
		ToSql()
}

func (d dialect) selectSession(id string) (string, []any, error) {
	return d.sb.Select(sessionColumns...).From("sessions").Where(sq.Eq{"id": id}).ToSql()
}

func (d dialect) listSessions(limit int) (string, []any, error) {
	q := d.sb.Select(sessionColumns...).From("sessions").OrderBy("started_at DESC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	return q.ToSql()
}
