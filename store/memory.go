package store

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/use-agent/newsingest/models"
)

// MemoryStore keeps everything in process. It is safe for concurrent use
// and is the reference for the SQL backends' semantics.
type MemoryStore struct {
	mu       sync.RWMutex
	articles map[string]models.Article
	sessions map[string]models.Session
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		articles: make(map[string]models.Article),
		sessions: make(map[string]models.Session),
	}
}

func (m *MemoryStore) Upsert(_ context.Context, a models.Article) (models.UpsertOutcome, error) {
	a.Tags = slices.Clone(a.Tags)

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.articles[a.URL]
	if !ok {
		m.articles[a.URL] = a
		return models.Inserted, nil
	}
	if !a.ScrapedAt.After(existing.ScrapedAt) {
		a.ScrapedAt = existing.ScrapedAt
	}
	if a.PublishedAt == nil {
		a.PublishedAt = existing.PublishedAt
	}
	m.articles[a.URL] = a
	return models.Updated, nil
}

func (m *MemoryStore) Exists(_ context.Context, url string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.articles[url]
	return ok, nil
}

func (m *MemoryStore) RecentByFilter(_ context.Context, f models.ArticleFilter) ([]models.Article, error) {
	f.Normalize()
	keyword := strings.ToLower(f.Keyword)

	m.mu.RLock()
	matched := make([]models.Article, 0, len(m.articles))
	for _, a := range m.articles {
		if f.Source != "" && a.Source != f.Source {
			continue
		}
		if f.Category != "" && (a.Category == nil || !strings.EqualFold(*a.Category, f.Category)) {
			continue
		}
		if keyword != "" &&
			!strings.Contains(strings.ToLower(a.Title), keyword) &&
			!strings.Contains(strings.ToLower(a.Summary), keyword) &&
			!strings.Contains(strings.ToLower(a.Body), keyword) {
			continue
		}
		a.Tags = slices.Clone(a.Tags)
		matched = append(matched, a)
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].ScrapedAt.Equal(matched[j].ScrapedAt) {
			return matched[i].ScrapedAt.After(matched[j].ScrapedAt)
		}
		return matched[i].URL < matched[j].URL
	})

	start := f.Offset()
	if start >= len(matched) {
		return []models.Article{}, nil
	}
	end := min(start+f.PageSize, len(matched))
	return matched[start:end], nil
}

func (m *MemoryStore) Count(context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.articles)), nil
}

func (m *MemoryStore) CreateSession(_ context.Context, s models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s.Clone()
	return nil
}

func (m *MemoryStore) FinalizeSession(_ context.Context, s models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.sessions[s.ID]
	if !ok {
		return ErrSessionNotFound
	}
	if existing.Status.Terminal() {
		return ErrSessionFinalized
	}
	m.sessions[s.ID] = s.Clone()
	return nil
}

func (m *MemoryStore) GetSession(_ context.Context, id string) (models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return models.Session{}, ErrSessionNotFound
	}
	return s.Clone(), nil
}

func (m *MemoryStore) ListSessions(_ context.Context, limit int) ([]models.Session, error) {
	m.mu.RLock()
	out := make([]models.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Clone())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
