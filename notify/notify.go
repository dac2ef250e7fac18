// Package notify delivers finalized-session events to external systems.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/use-agent/newsingest/config"
	"github.com/use-agent/newsingest/models"
)

// Event types.
const (
	EventSessionCompleted = "session.completed"
	EventSessionFailed    = "session.failed"
)

// Event is the payload sent to every sink.
type Event struct {
	Type      string         `json:"type"`
	SessionID string         `json:"session_id"`
	Timestamp int64          `json:"timestamp"`
	Data      models.Session `json:"data"`
}

// NewEvent builds the event for a finalized session.
func NewEvent(s models.Session) *Event {
	typ := EventSessionCompleted
	if s.Status == models.SessionFailed {
		typ = EventSessionFailed
	}
	ts := time.Now()
	if s.EndedAt != nil {
		ts = *s.EndedAt
	}
	return &Event{Type: typ, SessionID: s.ID, Timestamp: ts.Unix(), Data: s}
}

func (e *Event) marshal() ([]byte, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("notify: marshal event: %w", err)
	}
	return body, nil
}

// Sink publishes events. SessionFinalized must not block the run for long.
type Sink interface {
	SessionFinalized(ctx context.Context, s models.Session)
	Close() error
}

// Multi fans a session out to several sinks.
type Multi []Sink

func (m Multi) SessionFinalized(ctx context.Context, s models.Session) {
	for _, sink := range m {
		sink.SessionFinalized(ctx, s)
	}
}

func (m Multi) Close() error {
	var errs []error
	for _, sink := range m {
		errs = append(errs, sink.Close())
	}
	return errors.Join(errs...)
}

// FromConfig builds the sinks enabled in cfg. It returns an empty Multi
// when nothing is configured.
func FromConfig(cfg config.NotifyConfig) (Multi, error) {
	var sinks Multi
	if cfg.WebhookURL != "" {
		sinks = append(sinks, NewWebhook(cfg.WebhookURL, cfg.WebhookSecret))
		slog.Info("webhook notifications enabled", "url", cfg.WebhookURL)
	}
	if cfg.AMQPURL != "" {
		p, err := DialAMQP(cfg.AMQPURL, cfg.AMQPQueue)
		if err != nil {
			sinks.Close()
			return nil, err
		}
		sinks = append(sinks, p)
		slog.Info("amqp notifications enabled", "queue", cfg.AMQPQueue)
	}
	return sinks, nil
}
