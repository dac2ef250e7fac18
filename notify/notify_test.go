package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/newsingest/config"
	"github.com/use-agent/newsingest/models"
)

func finishedSession(status models.SessionStatus) models.Session {
	ended := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	return models.Session{
		ID:              "sess-1",
		Source:          models.SourceReuters,
		StartedAt:       ended.Add(-time.Minute),
		EndedAt:         &ended,
		Status:          status,
		ArticlesScraped: 7,
		Errors:          []models.ErrorEntry{},
		ErrorCounts:     map[string]int{},
	}
}

func TestNewEvent(t *testing.T) {
	e := NewEvent(finishedSession(models.SessionCompleted))
	assert.Equal(t, EventSessionCompleted, e.Type)
	assert.Equal(t, "sess-1", e.SessionID)
	assert.EqualValues(t, 1735787045, e.Timestamp)

	assert.Equal(t, EventSessionFailed, NewEvent(finishedSession(models.SessionFailed)).Type)
}

func TestWebhook_SignsBody(t *testing.T) {
	var (
		gotSig  string
		gotBody []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(SignatureHeader)
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, "s3cret")
	require.NoError(t, w.Deliver(context.Background(), NewEvent(finishedSession(models.SessionCompleted))))

	assert.Equal(t, Sign("s3cret", gotBody), gotSig)
	var e Event
	require.NoError(t, json.Unmarshal(gotBody, &e))
	assert.Equal(t, "sess-1", e.Data.ID)
	assert.Equal(t, 7, e.Data.ArticlesScraped)
}

func TestWebhook_NoSecretNoSignature(t *testing.T) {
	var sig atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sig.Store(r.Header.Get(SignatureHeader))
	}))
	defer srv.Close()

	require.NoError(t, NewWebhook(srv.URL, "").Deliver(context.Background(), NewEvent(finishedSession(models.SessionFailed))))
	assert.Equal(t, "", sig.Load())
}

func TestWebhook_RetriesUntilSuccess(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, "", WithRetryDelays(0, time.Millisecond, time.Millisecond, time.Millisecond))
	w.SessionFinalized(context.Background(), finishedSession(models.SessionCompleted))
	w.Drain()

	assert.EqualValues(t, 3, hits.Load())
}

func TestWebhook_GivesUpAfterBudget(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, "", WithRetryDelays(0, time.Millisecond))
	w.SessionFinalized(context.Background(), finishedSession(models.SessionCompleted))
	w.Drain()

	assert.EqualValues(t, 2, hits.Load())
}

func TestWebhook_CloseSkipsPendingRetries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, "", WithRetryDelays(0, time.Hour))
	w.SessionFinalized(context.Background(), finishedSession(models.SessionCompleted))

	done := make(chan struct{})
	go func() {
		assert.Eventually(t, func() bool { return hits.Load() == 1 }, time.Second, time.Millisecond)
		w.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return")
	}
}

type fakeChannel struct {
	mu         sync.Mutex
	declared   []string
	declareErr error
	published  []amqp.Publishing
	keys       []string
	closed     bool
}

func (c *fakeChannel) QueueDeclare(name string, durable, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	if !durable {
		return amqp.Queue{}, errors.New("queue must be durable")
	}
	c.declared = append(c.declared, name)
	return amqp.Queue{Name: name}, c.declareErr
}

func (c *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys = append(c.keys, key)
	c.published = append(c.published, msg)
	return nil
}

func (c *fakeChannel) Close() error {
	c.closed = true
	return nil
}

func TestAMQPPublisher_PublishesPersistentEvents(t *testing.T) {
	ch := &fakeChannel{}
	p, err := newAMQPPublisher(ch, "newsingest.sessions")
	require.NoError(t, err)
	assert.Equal(t, []string{"newsingest.sessions"}, ch.declared)

	p.SessionFinalized(context.Background(), finishedSession(models.SessionFailed))

	require.Len(t, ch.published, 1)
	msg := ch.published[0]
	assert.Equal(t, "newsingest.sessions", ch.keys[0])
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, EventSessionFailed, msg.Type)
	assert.Equal(t, "sess-1", msg.MessageId)

	var e Event
	require.NoError(t, json.Unmarshal(msg.Body, &e))
	assert.Equal(t, models.SessionFailed, e.Data.Status)

	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}

func TestAMQPPublisher_DeclareError(t *testing.T) {
	ch := &fakeChannel{declareErr: errors.New("access refused")}
	_, err := newAMQPPublisher(ch, "q")
	require.Error(t, err)
	assert.True(t, ch.closed)
}

type countingSink struct{ n, closed int }

func (c *countingSink) SessionFinalized(context.Context, models.Session) { c.n++ }
func (c *countingSink) Close() error                                     { c.closed++; return nil }

func TestMulti(t *testing.T) {
	a, b := &countingSink{}, &countingSink{}
	m := Multi{a, b}
	m.SessionFinalized(context.Background(), finishedSession(models.SessionCompleted))
	require.NoError(t, m.Close())
	assert.Equal(t, 1, a.n)
	assert.Equal(t, 1, b.n)
	assert.Equal(t, 1, b.closed)
}

func TestFromConfig_Empty(t *testing.T) {
	sinks, err := FromConfig(config.NotifyConfig{})
	require.NoError(t, err)
	assert.Empty(t, sinks)
}
