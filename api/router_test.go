package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/newsingest/config"
	"github.com/use-agent/newsingest/metrics"
	"github.com/use-agent/newsingest/models"
	"github.com/use-agent/newsingest/store"
)

type stubRunner struct {
	got     models.RunConfig
	session models.Session
	err     error
}

func (s *stubRunner) Run(_ context.Context, cfg models.RunConfig) (models.Session, error) {
	s.got = cfg
	if s.err != nil {
		return models.Session{}, s.err
	}
	out := s.session
	out.Config = cfg
	return out, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Server:    config.ServerConfig{Mode: "test"},
		RateLimit: config.RateLimitConfig{RequestsPerSecond: 100, Burst: 100},
	}
}

func newTestRouter(t *testing.T, r *stubRunner, cfg *config.Config) (http.Handler, store.Store) {
	t.Helper()
	st := store.NewMemoryStore()
	if cfg == nil {
		cfg = testConfig()
	}
	return NewRouter(cfg, Deps{Runner: r, Store: st, Metrics: metrics.New()}), st
}

func do(h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "192.0.2.1:1234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	h, st := newTestRouter(t, &stubRunner{}, nil)
	_, err := st.Upsert(context.Background(), models.Article{URL: "https://a.example/1", Title: "t", ScrapedAt: time.Now()})
	require.NoError(t, err)

	rec := do(h, http.MethodGet, "/api/v1/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.EqualValues(t, 1, resp.Articles)
	assert.False(t, resp.PoolStats.Launched)
}

func TestScrape_Completed(t *testing.T) {
	r := &stubRunner{session: models.Session{ID: "s1", Status: models.SessionCompleted, ArticlesScraped: 3}}
	h, _ := newTestRouter(t, r, nil)

	rec := do(h, http.MethodPost, "/api/v1/scrape", map[string]any{"source": "finnhub", "symbol": "AAPL", "max_articles": 5})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp models.ScrapeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Session)
	assert.Equal(t, 3, resp.Session.ArticlesScraped)

	assert.Equal(t, models.SourceFinnhub, r.got.Source)
	assert.Equal(t, 5, r.got.MaxArticles)
	assert.Equal(t, "AAPL", r.got.Symbol)
	assert.True(t, r.got.SaveToDB, "save_to_db defaults to true")
}

func TestScrape_Defaults(t *testing.T) {
	r := &stubRunner{session: models.Session{Status: models.SessionCompleted}}
	h, _ := newTestRouter(t, r, nil)

	rec := do(h, http.MethodPost, "/api/v1/scrape", map[string]any{"source": "reuters", "save_to_db": false})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 50, r.got.MaxArticles)
	assert.False(t, r.got.SaveToDB)
}

func TestScrape_FailedSessionMapsStatus(t *testing.T) {
	r := &stubRunner{session: models.Session{
		ID:     "s2",
		Status: models.SessionFailed,
		TopLevelError: &models.ErrorEntry{
			Kind:    models.ErrCodeCredentialMissing,
			Message: "no active finnhub credential",
		},
	}}
	h, _ := newTestRouter(t, r, nil)

	rec := do(h, http.MethodPost, "/api/v1/scrape", map[string]any{"source": "finnhub"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp models.ScrapeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, models.ErrCodeCredentialMissing, resp.Error.Code)
	require.NotNil(t, resp.Session)
	assert.Equal(t, "s2", resp.Session.ID)
}

func TestScrape_BadRequests(t *testing.T) {
	h, _ := newTestRouter(t, &stubRunner{}, nil)

	for name, body := range map[string]any{
		"unknown source":  map[string]any{"source": "bloomberg"},
		"missing source":  map[string]any{"max_articles": 5},
		"negative max":    map[string]any{"source": "reuters", "max_articles": -1},
		"too much to ask": map[string]any{"source": "reuters", "concurrency": 1000},
	} {
		rec := do(h, http.MethodPost, "/api/v1/scrape", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
	}
}

func TestScrape_RunnerRejects(t *testing.T) {
	r := &stubRunner{err: models.NewScrapeError(models.ErrCodeInvalidInput, "symbol is only supported for finnhub", nil)}
	h, _ := newTestRouter(t, r, nil)

	rec := do(h, http.MethodPost, "/api/v1/scrape", map[string]any{"source": "reuters", "symbol": "AAPL"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "symbol is only supported")
}

func TestScrape_RateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1}
	h, _ := newTestRouter(t, &stubRunner{session: models.Session{Status: models.SessionCompleted}}, cfg)

	assert.Equal(t, http.StatusOK, do(h, http.MethodPost, "/api/v1/scrape", map[string]any{"source": "reuters"}).Code)
	rec := do(h, http.MethodPost, "/api/v1/scrape", map[string]any{"source": "reuters"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), models.ErrCodeRateLimited)

	// Reads are not limited.
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/api/v1/articles", nil).Code)
}

func TestArticles(t *testing.T) {
	h, st := newTestRouter(t, &stubRunner{}, nil)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cat := "Markets"
	for i, title := range []string{"Fed holds rates", "Oil rallies", "Fed minutes released"} {
		_, err := st.Upsert(context.Background(), models.Article{
			URL:       "https://www.reuters.com/a/" + string(rune('a'+i)),
			Title:     title,
			Source:    models.SourceReuters,
			Category:  &cat,
			ScrapedAt: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	rec := do(h, http.MethodGet, "/api/v1/articles?q=fed&page_size=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.ArticlesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Articles, 1)
	assert.Equal(t, "Fed minutes released", resp.Articles[0].Title)
	assert.Equal(t, 1, resp.PageSize)

	rec = do(h, http.MethodGet, "/api/v1/articles?source=finnhub", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `"articles":[]`), rec.Body.String())

	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodGet, "/api/v1/articles?page_size=5000", nil).Code)
}

func TestSessions(t *testing.T) {
	h, st := newTestRouter(t, &stubRunner{}, nil)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "new"} {
		require.NoError(t, st.CreateSession(ctx, models.Session{
			ID:          id,
			Source:      models.SourceReuters,
			StartedAt:   base.Add(time.Duration(i) * time.Hour),
			Status:      models.SessionRunning,
			Errors:      []models.ErrorEntry{},
			ErrorCounts: map[string]int{},
		}))
	}

	rec := do(h, http.MethodGet, "/api/v1/sessions?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list models.SessionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Sessions, 1)
	assert.Equal(t, "new", list.Sessions[0].ID)

	rec = do(h, http.MethodGet, "/api/v1/sessions/old", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var one models.SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &one))
	assert.Equal(t, "old", one.Session.ID)

	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/api/v1/sessions/missing", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodGet, "/api/v1/sessions?limit=abc", nil).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h, _ := newTestRouter(t, &stubRunner{}, nil)
	rec := do(h, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "newsingest_sessions_running")
}
