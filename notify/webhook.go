package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/use-agent/newsingest/models"
)

// SignatureHeader carries the HMAC-SHA256 of the request body.
const SignatureHeader = "X-Newsingest-Signature"

var defaultDelays = []time.Duration{0, 1 * time.Second, 5 * time.Second, 30 * time.Second}

// Webhook posts events to a URL in the background, retrying failed
// deliveries.
type Webhook struct {
	url    string
	secret string
	client *http.Client
	delays []time.Duration

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// WebhookOption customizes a Webhook.
type WebhookOption func(*Webhook)

// WithRetryDelays replaces the wait before each attempt. The slice length
// is the attempt budget.
func WithRetryDelays(d ...time.Duration) WebhookOption {
	return func(w *Webhook) { w.delays = d }
}

func WithHTTPClient(c *http.Client) WebhookOption {
	return func(w *Webhook) { w.client = c }
}

func NewWebhook(url, secret string, opts ...WebhookOption) *Webhook {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Webhook{
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: 10 * time.Second},
		delays: defaultDelays,
		ctx:    ctx,
		cancel: cancel,
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Sign returns the signature header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Deliver sends one event synchronously.
func (w *Webhook) Deliver(ctx context.Context, event *Event) error {
	body, err := event.marshal()
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Newsingest-Webhook/1.0")
	if w.secret != "" {
		req.Header.Set(SignatureHeader, Sign(w.secret, body))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: deliver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// SessionFinalized queues delivery and returns immediately.
func (w *Webhook) SessionFinalized(_ context.Context, s models.Session) {
	event := NewEvent(s)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.deliverWithRetry(event)
	}()
}

func (w *Webhook) deliverWithRetry(event *Event) {
	for attempt, delay := range w.delays {
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-w.ctx.Done():
				slog.Warn("webhook delivery abandoned on shutdown", "session", event.SessionID)
				return
			}
		}
		ctx, cancel := context.WithTimeout(w.ctx, 10*time.Second)
		err := w.Deliver(ctx, event)
		cancel()
		if err == nil {
			slog.Info("webhook delivered", "url", w.url, "event", event.Type,
				"session", event.SessionID, "attempt", attempt+1)
			return
		}
		slog.Warn("webhook delivery failed", "url", w.url, "event", event.Type,
			"session", event.SessionID, "attempt", attempt+1, "error", err)
	}
	slog.Error("webhook delivery exhausted all retries", "url", w.url, "session", event.SessionID)
}

// Close waits for pending deliveries until their current attempt ends,
// skipping any retries still waiting.
func (w *Webhook) Close() error {
	w.cancel()
	w.wg.Wait()
	return nil
}

// Drain waits for pending deliveries, retries included.
func (w *Webhook) Drain() {
	w.wg.Wait()
}
