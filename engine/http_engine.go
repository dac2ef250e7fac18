package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	tls "github.com/refraction-networking/utls"
	"github.com/use-agent/newsingest/antibot"
	"github.com/use-agent/newsingest/models"
	"golang.org/x/net/html"
)

// maxBody bounds how much of a response is read.
const maxBody = 10 << 20

// HTTPEngine is the lightweight first tier: a plain GET with a Chrome TLS
// fingerprint. Static article pages usually succeed here without ever
// starting a browser tab.
type HTTPEngine struct {
	client  *http.Client
	timeout time.Duration
}

// chromeH1Spec is a Chrome-like TLS ClientHello with ALPN forced to
// http/1.1. Computed once at init time and reused for every connection.
var chromeH1Spec tls.ClientHelloSpec

func init() {
	spec, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		return
	}
	// Go's http.Transport cannot speak h2 over a utls conn, so the server
	// must never be offered it.
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	chromeH1Spec = spec
}

// NewChromeTransport returns an http.Transport whose TLS handshake mimics
// Chrome. Plain-HTTP dials are left untouched.
func NewChromeTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			dialer := &net.Dialer{Timeout: 10 * time.Second}
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			host, _, _ := net.SplitHostPort(addr)
			tlsConn := tls.UClient(conn, &tls.Config{ServerName: host}, tls.HelloCustom)
			if err := tlsConn.ApplyPreset(&chromeH1Spec); err != nil {
				conn.Close()
				return nil, fmt.Errorf("http_engine: apply tls spec: %w", err)
			}
			if err := tlsConn.HandshakeContext(ctx); err != nil {
				conn.Close()
				return nil, err
			}
			return tlsConn, nil
		},
		ForceAttemptHTTP2:   false,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
	}
}

// NewHTTPEngine creates an HTTPEngine. timeout bounds each fetch; zero
// leaves it to the caller's context.
func NewHTTPEngine(timeout time.Duration) *HTTPEngine {
	return &HTTPEngine{
		client: &http.Client{
			Transport: NewChromeTransport(),
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		timeout: timeout,
	}
}

func (e *HTTPEngine) Name() string { return "http" }

func (e *HTTPEngine) Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeNavigation, "build request", err).WithURL(req.URL)
	}
	applyIdentity(httpReq, req.Identity)
	httpReq.Header.Set("Accept-Encoding", "identity")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, ClassifyTransportError(err, req.URL)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, ClassifyTransportError(err, req.URL)
	}
	bodyStr := string(body)

	if err := ClassifyResponse(resp.StatusCode, bodyStr, req.URL); err != nil {
		return nil, err
	}

	// A non-HTML answer means the page is assembled by JS or gated; let
	// the dispatcher escalate to a browser.
	if ct := resp.Header.Get("Content-Type"); !isHTMLContentType(ct) {
		return nil, models.NewScrapeError(models.ErrCodeNavigation,
			fmt.Sprintf("non-html content-type %q", ct), nil).WithURL(req.URL)
	}

	return &FetchResult{
		HTML:       bodyStr,
		Title:      extractTitle(bodyStr),
		StatusCode: resp.StatusCode,
		FinalURL:   resp.Request.URL.String(),
		EngineName: e.Name(),
	}, nil
}

// applyIdentity copies the identity onto the request headers.
func applyIdentity(r *http.Request, id antibot.Identity) {
	for k, v := range id.Headers {
		r.Header.Set(k, v)
	}
	if id.UserAgent != "" {
		r.Header.Set("User-Agent", id.UserAgent)
	}
}

// ClassifyResponse maps a status and body to the fetch error taxonomy. It
// returns nil for a usable page.
func ClassifyResponse(status int, body, url string) error {
	switch {
	case status == http.StatusTooManyRequests:
		return models.NewScrapeError(models.ErrCodeRateLimited, "rate limited", nil).
			WithURL(url).WithStatus(status)
	case (status == http.StatusForbidden || status == http.StatusServiceUnavailable) && antibot.DetectBlocked(body):
		return models.NewScrapeError(models.ErrCodeBlocked, "challenge page", nil).
			WithURL(url).WithStatus(status)
	case status >= 400:
		return models.NewScrapeError(models.ErrCodeHTTPStatus, "unexpected status", nil).
			WithURL(url).WithStatus(status)
	case antibot.DetectBlocked(body):
		return models.NewScrapeError(models.ErrCodeBlocked, "challenge page", nil).WithURL(url)
	}
	return nil
}

// ClassifyTransportError maps network and context errors to fetch codes.
func ClassifyTransportError(err error, url string) *models.ScrapeError {
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		return models.NewScrapeError(models.ErrCodeCancelled, "request canceled", err).WithURL(url)
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return models.NewScrapeError(models.ErrCodeTimeout, "request timed out", err).WithURL(url)
	default:
		return models.NewScrapeError(models.ErrCodeHTTPStatus, "no response", err).WithURL(url)
	}
}

// isHTMLContentType returns true if the content-type header looks like HTML.
func isHTMLContentType(ct string) bool {
	ct = strings.ToLower(ct)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml+xml")
}

// extractTitle uses the Go HTML tokenizer to find the first <title> element.
func extractTitle(htmlStr string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(htmlStr))
	inTitle := false
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			if string(tn) == "title" {
				inTitle = true
			}
		case html.TextToken:
			if inTitle {
				return strings.TrimSpace(string(tokenizer.Text()))
			}
		case html.EndTagToken:
			if inTitle {
				return ""
			}
		}
	}
}
