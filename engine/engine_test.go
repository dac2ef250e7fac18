package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/newsingest/antibot"
	"github.com/use-agent/newsingest/models"
)

type fakeEngine struct {
	name  string
	delay time.Duration
	err   error
	calls atomic.Int32
}

func (f *fakeEngine) Name() string { return f.name }

func (f *fakeEngine) Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &FetchResult{HTML: "<p>" + f.name + "</p>", EngineName: f.name, StatusCode: 200}, nil
}

func TestDispatcher_FirstSuccessWins(t *testing.T) {
	fast := &fakeEngine{name: "http", err: models.NewScrapeError(models.ErrCodeNavigation, "js required", nil)}
	slow := &fakeEngine{name: "rod"}
	mem := NewDomainMemory(time.Hour)
	d := NewDispatcher([]Engine{fast, slow}, []time.Duration{0, 10 * time.Millisecond}, mem)

	res, err := d.Dispatch(context.Background(), &FetchRequest{URL: "https://example.com/a"})
	require.NoError(t, err)
	assert.Equal(t, "rod", res.EngineName)
	assert.Equal(t, "rod", mem.Get("example.com"))
}

func TestDispatcher_MemorySkipsRace(t *testing.T) {
	httpEng := &fakeEngine{name: "http"}
	rodEng := &fakeEngine{name: "rod"}
	mem := NewDomainMemory(time.Hour)
	mem.Set("example.com", "rod")
	d := NewDispatcher([]Engine{httpEng, rodEng}, nil, mem)

	res, err := d.Dispatch(context.Background(), &FetchRequest{URL: "https://example.com/b"})
	require.NoError(t, err)
	assert.Equal(t, "rod", res.EngineName)
	assert.Equal(t, int32(0), httpEng.calls.Load())
}

func TestDispatcher_ReturnsMostInformativeError(t *testing.T) {
	a := &fakeEngine{name: "http", err: models.NewScrapeError(models.ErrCodeNavigation, "nav", nil)}
	b := &fakeEngine{name: "rod", err: models.NewScrapeError(models.ErrCodeBlocked, "captcha", nil)}
	c := &fakeEngine{name: "rod-stealth", err: models.NewScrapeError(models.ErrCodeTimeout, "slow", nil)}
	d := NewDispatcher([]Engine{a, b, c}, nil, nil)

	_, err := d.Dispatch(context.Background(), &FetchRequest{URL: "https://example.com/c"})
	require.Error(t, err)
	assert.Equal(t, models.ErrCodeBlocked, models.CodeOf(err))
}

func TestDomainMemory_Expiry(t *testing.T) {
	m := NewDomainMemory(time.Minute)
	now := time.Now()
	m.now = func() time.Time { return now }

	m.Set("a.com", "http")
	assert.Equal(t, "http", m.Get("a.com"))

	now = now.Add(2 * time.Minute)
	assert.Equal(t, "", m.Get("a.com"))

	m.Set("b.com", "rod")
	now = now.Add(2 * time.Minute)
	assert.Equal(t, 0, m.Prune())
}

func TestHTTPEngine_SendsIdentity(t *testing.T) {
	var gotUA, gotLang string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotLang = r.Header.Get("Accept-Language")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><head><title> Rates hold </title></head><body><p>ok</p></body></html>`))
	}))
	defer srv.Close()

	id := antibot.NewPolicy([]string{"test-agent/1.0"}, 0, 0).NextIdentity()
	res, err := NewHTTPEngine(time.Second).Fetch(context.Background(), &FetchRequest{URL: srv.URL, Identity: id})
	require.NoError(t, err)

	assert.Equal(t, "test-agent/1.0", gotUA)
	assert.Equal(t, "en-US,en;q=0.9", gotLang)
	assert.Equal(t, "Rates hold", res.Title)
	assert.Equal(t, 200, res.StatusCode)
	assert.Equal(t, "http", res.EngineName)
}

func TestHTTPEngine_ClassifiesFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		ctype  string
		body   string
		want   string
	}{
		{"rate limited", http.StatusTooManyRequests, "text/html", "slow down", models.ErrCodeRateLimited},
		{"challenge", http.StatusForbidden, "text/html", `<div class="g-recaptcha"></div>`, models.ErrCodeBlocked},
		{"not found", http.StatusNotFound, "text/html", "missing", models.ErrCodeHTTPStatus},
		{"challenge with 200", http.StatusOK, "text/html", `<p>Verify you are human</p>`, models.ErrCodeBlocked},
		{"json body", http.StatusOK, "application/json", `{}`, models.ErrCodeNavigation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tt.ctype)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewHTTPEngine(time.Second).Fetch(context.Background(), &FetchRequest{URL: srv.URL})
			require.Error(t, err)
			assert.Equal(t, tt.want, models.CodeOf(err))
		})
	}
}

func TestRodEngine_ForcesStealth(t *testing.T) {
	var sawStealth bool
	eng := NewRodEngine(func(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
		sawStealth = req.Stealth
		return &FetchResult{HTML: "<p>fine</p>", StatusCode: 200}, nil
	}, true)

	res, err := eng.Fetch(context.Background(), &FetchRequest{URL: "https://example.com"})
	require.NoError(t, err)
	assert.True(t, sawStealth)
	assert.Equal(t, "rod-stealth", res.EngineName)

	_, err = NewRodEngine(nil, false).Fetch(context.Background(), &FetchRequest{})
	assert.Equal(t, models.ErrCodeBrowserCrash, models.CodeOf(err))
}
