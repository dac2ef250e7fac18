package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/use-agent/newsingest/antibot"
	"github.com/use-agent/newsingest/credential"
	"github.com/use-agent/newsingest/models"
)

const newsJSON = `[
  {"category":"company","datetime":1735732800,"headline":"Apple unveils new chip","id":1,"related":"AAPL","source":"Reuters","summary":"Apple said...","url":"https://example.com/apple-chip"},
  {"category":"company","datetime":1735736400,"headline":"Apple supplier rallies","id":2,"related":"AAPL","source":"Yahoo","summary":"Shares...","url":"https://example.com/supplier"},
  {"category":"company","headline":"No link","id":3}
]`

func newAPIServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestAPIFetcher_CompanyNews(t *testing.T) {
	var got *http.Request
	srv := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		got = r
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(newsJSON))
	})

	now := time.Date(2026, 1, 8, 12, 0, 0, 0, time.UTC)
	f := NewAPIFetcher(models.SourceFinnhub, srv.URL, credential.Credential{APIKey: "secret"}, nil, time.Second,
		WithAPIClock(func() time.Time { return now }))

	items, err := f.Fetch(context.Background(), Target{Symbol: "aapl"}, Limits{MaxItems: 10}, antibot.Identity{UserAgent: "ua-test"})
	require.NoError(t, err)

	require.NotNil(t, got)
	assert.Equal(t, "/company-news", got.URL.Path)
	q := got.URL.Query()
	assert.Equal(t, "AAPL", q.Get("symbol"))
	assert.Equal(t, "2026-01-01", q.Get("from"))
	assert.Equal(t, "2026-01-08", q.Get("to"))
	assert.Equal(t, "secret", q.Get("token"))
	assert.Equal(t, "secret", got.Header.Get("X-Finnhub-Token"))
	assert.Equal(t, "ua-test", got.Header.Get("User-Agent"))

	require.Len(t, items, 3)
	assert.Equal(t, "https://example.com/apple-chip", items[0].URL)
	assert.Equal(t, models.SourceFinnhub, items[0].Source)
	assert.Contains(t, string(items[0].JSON), "Apple unveils new chip")
	assert.Empty(t, items[2].URL, "items without url are still emitted")
}

func TestAPIFetcher_MarketNews(t *testing.T) {
	var query url.Values
	var path string
	srv := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		path, query = r.URL.Path, r.URL.Query()
		_, _ = w.Write([]byte(`[]`))
	})
	f := NewAPIFetcher(models.SourceFinnhub, srv.URL, credential.Credential{APIKey: "k"}, nil, time.Second)

	_, err := f.Fetch(context.Background(), Target{}, Limits{MaxItems: 10}, antibot.Identity{})
	require.NoError(t, err)
	assert.Equal(t, "/news", path)
	assert.Equal(t, DefaultMarketCategory, query.Get("category"))

	_, err = f.Fetch(context.Background(), Target{Category: "forex"}, Limits{MaxItems: 10}, antibot.Identity{})
	require.NoError(t, err)
	assert.Equal(t, "forex", query.Get("category"))
}

func TestAPIFetcher_CredentialBaseURLWins(t *testing.T) {
	hit := false
	srv := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		hit = true
		_, _ = w.Write([]byte(`[]`))
	})
	f := NewAPIFetcher(models.SourceFinnhub, "http://127.0.0.1:1", credential.Credential{APIKey: "k", BaseURL: srv.URL}, nil, time.Second)
	_, err := f.Fetch(context.Background(), Target{}, Limits{}, antibot.Identity{})
	require.NoError(t, err)
	assert.True(t, hit)
}

func TestAPIFetcher_Cap(t *testing.T) {
	srv := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(newsJSON))
	})
	f := NewAPIFetcher(models.SourceFinnhub, srv.URL, credential.Credential{APIKey: "k"}, nil, time.Second)
	items, err := f.Fetch(context.Background(), Target{Symbol: "AAPL"}, Limits{MaxItems: 2}, antibot.Identity{})
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestAPIFetcher_StatusMapping(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantCode  string
		transient bool
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error":"API limit reached"}`, models.ErrCodeRateLimited, true},
		{"challenge", http.StatusForbidden, `<html><body><div id="challenge-platform"></div>Checking your browser</body></html>`, models.ErrCodeBlocked, true},
		{"forbidden", http.StatusForbidden, `{"error":"You don't have access to this resource."}`, models.ErrCodeHTTPStatus, false},
		{"unauthorized", http.StatusUnauthorized, `{"error":"Invalid API key"}`, models.ErrCodeHTTPStatus, false},
		{"server error", http.StatusBadGateway, ``, models.ErrCodeHTTPStatus, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			f := NewAPIFetcher(models.SourceFinnhub, srv.URL, credential.Credential{APIKey: "k"}, nil, time.Second)
			_, err := f.Fetch(context.Background(), Target{}, Limits{}, antibot.Identity{})
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, models.CodeOf(err))
			assert.Equal(t, tt.transient, models.IsTransient(err))
			assert.Equal(t, tt.status, models.AsScrapeError(err).StatusCode)
		})
	}
}

func TestAPIFetcher_UnexpectedShape(t *testing.T) {
	srv := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":"weird"}`))
	})
	f := NewAPIFetcher(models.SourceFinnhub, srv.URL, credential.Credential{APIKey: "k"}, nil, time.Second)
	_, err := f.Fetch(context.Background(), Target{}, Limits{}, antibot.Identity{})
	assert.Equal(t, models.ErrCodeSourceUnavailable, models.CodeOf(err))
}

func TestAPIFetcher_WaitsOnLimiter(t *testing.T) {
	calls := 0
	srv := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = w.Write([]byte(`[]`))
	})
	// One token, refilled far in the future: the second call cannot get one
	// before its context expires.
	lim := rate.NewLimiter(rate.Every(time.Hour), 1)
	f := NewAPIFetcher(models.SourceFinnhub, srv.URL, credential.Credential{APIKey: "k"}, lim, time.Second)

	_, err := f.Fetch(context.Background(), Target{}, Limits{}, antibot.Identity{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = f.Fetch(ctx, Target{}, Limits{}, antibot.Identity{})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestAPIFetcher_FetchDetailIsNoop(t *testing.T) {
	f := NewAPIFetcher(models.SourceFinnhub, "http://unused", credential.Credential{APIKey: "k"}, nil, time.Second)
	in := models.RawItem{URL: "https://example.com/x", JSON: []byte(`{}`)}
	out, err := f.FetchDetail(context.Background(), in, antibot.Identity{})
	require.NoError(t, err)
	assert.Equal(t, in, out)
}
