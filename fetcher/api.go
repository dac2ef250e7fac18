package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/use-agent/newsingest/antibot"
	"github.com/use-agent/newsingest/credential"
	"github.com/use-agent/newsingest/engine"
	"github.com/use-agent/newsingest/models"
)

// DefaultMarketCategory is used for market news when none is given.
const DefaultMarketCategory = "general"

// APIFetcher pulls news from an authenticated JSON API (Finnhub).
type APIFetcher struct {
	source   models.Source
	http     *resty.Client
	lookback time.Duration
	now      func() time.Time
}

// APIOption customizes an APIFetcher.
type APIOption func(*APIFetcher)

// WithLookback sets the company news window. Default 7 days.
func WithLookback(d time.Duration) APIOption {
	return func(f *APIFetcher) {
		if d > 0 {
			f.lookback = d
		}
	}
}

// WithAPIClock replaces time.Now for the company news window.
func WithAPIClock(now func() time.Time) APIOption {
	return func(f *APIFetcher) { f.now = now }
}

// NewAPIFetcher builds a client for baseURL that attaches cred to every
// call and waits on limiter before each one. cred.BaseURL overrides
// baseURL when set.
func NewAPIFetcher(source models.Source, baseURL string, cred credential.Credential, limiter *rate.Limiter, timeout time.Duration, opts ...APIOption) *APIFetcher {
	if cred.BaseURL != "" {
		baseURL = cred.BaseURL
	}

	httpClient := resty.New()
	httpClient.SetBaseURL(strings.TrimRight(baseURL, "/"))
	httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)
	httpClient.SetHeader("Accept", "application/json")
	httpClient.SetHeader("X-Finnhub-Token", cred.APIKey)
	httpClient.SetQueryParam("token", cred.APIKey)
	if timeout > 0 {
		httpClient.SetTimeout(timeout)
	}
	if limiter != nil {
		httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return limiter.Wait(req.Context())
		})
	}

	f := &APIFetcher{
		source:   source,
		http:     httpClient,
		lookback: 7 * 24 * time.Hour,
		now:      time.Now,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

func (f *APIFetcher) Source() models.Source { return f.source }

// Fetch calls /company-news for a symbol over the lookback window, or
// /news for a market category otherwise.
func (f *APIFetcher) Fetch(ctx context.Context, target Target, limits Limits, id antibot.Identity) ([]models.RawItem, error) {
	req := f.http.R().SetContext(ctx)
	if id.UserAgent != "" {
		req.SetHeader("User-Agent", id.UserAgent)
	}

	var path string
	if target.Symbol != "" {
		to := f.now().UTC()
		from := to.Add(-f.lookback)
		path = "/company-news"
		req.SetQueryParams(map[string]string{
			"symbol": strings.ToUpper(target.Symbol),
			"from":   from.Format("2006-01-02"),
			"to":     to.Format("2006-01-02"),
		})
	} else {
		category := target.Category
		if category == "" {
			category = DefaultMarketCategory
		}
		path = "/news"
		req.SetQueryParam("category", category)
	}

	res, err := req.Get(path)
	endpoint := f.http.BaseURL + path
	if err != nil {
		return nil, engine.ClassifyTransportError(err, endpoint)
	}
	if res.StatusCode() < 200 || res.StatusCode() >= 300 {
		return nil, classifyAPIStatus(res.StatusCode(), string(res.Body()), endpoint)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(res.Body(), &raw); err != nil {
		return nil, models.NewScrapeError(models.ErrCodeSourceUnavailable,
			"unexpected response shape", err).WithURL(endpoint)
	}

	if limits.MaxItems > 0 && len(raw) > limits.MaxItems {
		raw = raw[:limits.MaxItems]
	}
	items := make([]models.RawItem, 0, len(raw))
	for _, r := range raw {
		var head struct {
			URL string `json:"url"`
		}
		// An undecodable object still becomes an item so the normalizer
		// reports it as malformed.
		_ = json.Unmarshal(r, &head)
		items = append(items, models.RawItem{Source: f.source, URL: head.URL, JSON: r})
	}
	return items, nil
}

// FetchDetail is a no-op: API items carry their content.
func (f *APIFetcher) FetchDetail(_ context.Context, item models.RawItem, _ antibot.Identity) (models.RawItem, error) {
	return item, nil
}

func classifyAPIStatus(status int, body, endpoint string) error {
	switch {
	case status == http.StatusTooManyRequests:
		return models.NewScrapeError(models.ErrCodeRateLimited, "rate limited by api", nil).
			WithURL(endpoint).WithStatus(status)
	case status == http.StatusForbidden && antibot.DetectBlocked(body):
		return models.NewScrapeError(models.ErrCodeBlocked, "api served a challenge page", nil).
			WithURL(endpoint).WithStatus(status)
	default:
		return models.NewScrapeError(models.ErrCodeHTTPStatus, fmt.Sprintf("api returned %d", status), nil).
			WithURL(endpoint).WithStatus(status)
	}
}
