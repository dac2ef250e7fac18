package manager

import (
	"errors"
	"sync"
	"time"

	"github.com/use-agent/newsingest/models"
)

// tracker is the single writer of a running session. Workers of every
// sub-run report into it concurrently.
type tracker struct {
	id  string
	mu  sync.Mutex
	s   models.Session
	now func() time.Time
}

func newTracker(s models.Session, now func() time.Time) *tracker {
	if s.Errors == nil {
		s.Errors = []models.ErrorEntry{}
	}
	if s.ErrorCounts == nil {
		s.ErrorCounts = map[string]int{}
	}
	return &tracker{id: s.ID, s: s, now: now}
}

func (t *tracker) entry(src models.Source, url string, err error) models.ErrorEntry {
	e := models.ErrorEntry{
		Kind:    models.CodeOf(err),
		Source:  src,
		URL:     url,
		Message: err.Error(),
		At:      t.now().UTC(),
	}
	var se *models.ScrapeError
	if errors.As(err, &se) && e.URL == "" {
		e.URL = se.URL
	}
	return e
}

// fail appends an item- or source-level error in completion order.
func (t *tracker) fail(src models.Source, url string, err error) models.ErrorEntry {
	e := t.entry(src, url, err)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.Errors = append(t.s.Errors, e)
	t.s.ErrorCounts[e.Kind]++
	return e
}

func (t *tracker) scraped() {
	t.mu.Lock()
	t.s.ArticlesScraped++
	t.mu.Unlock()
}

func (t *tracker) snapshot() models.Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.s.Clone()
}

// finish moves the session to its terminal state and returns a copy.
func (t *tracker) finish(status models.SessionStatus, top *models.ErrorEntry) models.Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	ended := t.now().UTC()
	t.s.EndedAt = &ended
	t.s.Status = status
	if top != nil {
		e := *top
		t.s.TopLevelError = &e
	}
	return t.s.Clone()
}
