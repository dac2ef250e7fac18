package fetcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/newsingest/antibot"
	"github.com/use-agent/newsingest/engine"
	"github.com/use-agent/newsingest/models"
)

// fakePage serves a fixed sequence of documents, one per expansion step.
type fakePage struct {
	docs      []string
	idx       int
	expands   int
	expandErr error
	closed    bool
}

func (p *fakePage) HTML(context.Context) (string, error) { return p.docs[p.idx], nil }

func (p *fakePage) Expand(context.Context) (bool, error) {
	p.expands++
	if p.expandErr != nil {
		return false, p.expandErr
	}
	if p.idx+1 >= len(p.docs) {
		return false, nil
	}
	p.idx++
	return true, nil
}

func (p *fakePage) Close() error {
	p.closed = true
	return nil
}

func opener(p *fakePage) PageOpener {
	return PageOpenerFunc(func(context.Context, string, antibot.Identity) (Stepper, error) {
		return p, nil
	})
}

// listing renders n story cards with hrefs /markets/story-0 .. story-(n-1).
func listing(n int) string {
	var b strings.Builder
	b.WriteString("<html><body><main>")
	for i := range n {
		fmt.Fprintf(&b, `<article data-testid="story"><a href="/markets/story-%d#top"><h3>Story %d</h3></a></article>`, i, i)
	}
	b.WriteString(`<a href="/about">About</a></main></body></html>`)
	return b.String()
}

var storySelectors = []string{`li[data-testid="card"]`, `article[data-testid="story"]`}

func newTestHTMLFetcher(t *testing.T, p *fakePage, opts ...HTMLOption) *HTMLFetcher {
	t.Helper()
	f, err := NewHTMLFetcher(models.SourceReuters, opener(p), storySelectors, opts...)
	require.NoError(t, err)
	return f
}

func TestHTMLFetcher_ExpandsUntilNoNewItems(t *testing.T) {
	p := &fakePage{docs: []string{listing(3), listing(6), listing(6), listing(9)}}
	f := newTestHTMLFetcher(t, p)

	items, err := f.Fetch(context.Background(), Target{URL: "https://www.example.com/business/"}, Limits{MaxItems: 50, MaxSteps: 10}, antibot.Identity{})
	require.NoError(t, err)

	assert.Len(t, items, 6)
	assert.Equal(t, 2, p.expands, "third document adds nothing, loop must stop there")
	assert.True(t, p.closed)
	assert.Equal(t, "https://www.example.com/markets/story-0", items[0].URL)
	assert.Equal(t, models.SourceReuters, items[0].Source)
	assert.Contains(t, items[0].HTML, "Story 0")
}

func TestHTMLFetcher_StopsAtCap(t *testing.T) {
	p := &fakePage{docs: []string{listing(4), listing(8), listing(12), listing(16)}}
	f := newTestHTMLFetcher(t, p)

	items, err := f.Fetch(context.Background(), Target{URL: "https://www.example.com/"}, Limits{MaxItems: 7, MaxSteps: 10}, antibot.Identity{})
	require.NoError(t, err)
	assert.Len(t, items, 7)
	assert.Equal(t, 1, p.expands)
}

func TestHTMLFetcher_StopsAtStepBound(t *testing.T) {
	docs := make([]string, 10)
	for i := range docs {
		docs[i] = listing((i + 1) * 2)
	}
	p := &fakePage{docs: docs}
	f := newTestHTMLFetcher(t, p)

	items, err := f.Fetch(context.Background(), Target{URL: "https://www.example.com/"}, Limits{MaxItems: 100, MaxSteps: 3}, antibot.Identity{})
	require.NoError(t, err)
	assert.Equal(t, 3, p.expands)
	assert.Len(t, items, 8)
}

func TestHTMLFetcher_ExpansionErrorKeepsItems(t *testing.T) {
	p := &fakePage{docs: []string{listing(5)}, expandErr: errors.New("click failed")}
	f := newTestHTMLFetcher(t, p)

	items, err := f.Fetch(context.Background(), Target{URL: "https://www.example.com/"}, Limits{MaxItems: 100, MaxSteps: 3}, antibot.Identity{})
	require.NoError(t, err)
	assert.Len(t, items, 5)
}

func TestHTMLFetcher_FallsBackToLaterSelector(t *testing.T) {
	doc := `<ul><li data-testid="card"><a href="https://news.example.com/a">A</a></li>
<li data-testid="card"><span>no link</span></li></ul>` + listing(2)
	p := &fakePage{docs: []string{doc}}
	f := newTestHTMLFetcher(t, p)

	items, err := f.Fetch(context.Background(), Target{URL: "https://www.example.com/"}, Limits{MaxItems: 10}, antibot.Identity{})
	require.NoError(t, err)
	require.Len(t, items, 1, "first matching selector wins")
	assert.Equal(t, "https://news.example.com/a", items[0].URL)
}

func TestHTMLFetcher_BlockedListing(t *testing.T) {
	p := &fakePage{docs: []string{`<html><body><div class="g-recaptcha"></div><p>Please verify you are a human</p></body></html>`}}
	f := newTestHTMLFetcher(t, p)

	_, err := f.Fetch(context.Background(), Target{URL: "https://www.example.com/"}, Limits{MaxItems: 10}, antibot.Identity{})
	assert.Equal(t, models.ErrCodeBlocked, models.CodeOf(err))
}

func TestHTMLFetcher_NoMatchingItems(t *testing.T) {
	p := &fakePage{docs: []string{`<html><body><main><p>Markets are closed today.</p></main></body></html>`, listing(3)}}
	f := newTestHTMLFetcher(t, p)

	items, err := f.Fetch(context.Background(), Target{URL: "https://www.example.com/"}, Limits{MaxItems: 10, MaxSteps: 3}, antibot.Identity{})
	assert.Empty(t, items)
	assert.Equal(t, models.ErrCodeSourceUnavailable, models.CodeOf(err))
	assert.Contains(t, err.Error(), "no items matched")
	assert.Zero(t, p.expands)
	assert.True(t, p.closed)
}

func TestHTMLFetcher_OpenError(t *testing.T) {
	want := models.NewScrapeError(models.ErrCodeTimeout, "navigation timed out", nil)
	f, err := NewHTMLFetcher(models.SourceReuters, PageOpenerFunc(func(context.Context, string, antibot.Identity) (Stepper, error) {
		return nil, want
	}), storySelectors)
	require.NoError(t, err)

	_, err = f.Fetch(context.Background(), Target{URL: "https://www.example.com/"}, Limits{MaxItems: 10}, antibot.Identity{})
	assert.Same(t, want, err)
}

func TestNewHTMLFetcher_InvalidSelector(t *testing.T) {
	_, err := NewHTMLFetcher(models.SourceReuters, opener(&fakePage{}), []string{"div[[["})
	assert.Equal(t, models.ErrCodeInvalidInput, models.CodeOf(err))

	_, err = NewHTMLFetcher(models.SourceReuters, opener(&fakePage{}), nil)
	assert.Error(t, err)
}

type stubDispatcher struct {
	html string
	err  error
	got  *engine.FetchRequest
}

func (d *stubDispatcher) Dispatch(_ context.Context, req *engine.FetchRequest) (*engine.FetchResult, error) {
	d.got = req
	if d.err != nil {
		return nil, d.err
	}
	return &engine.FetchResult{HTML: d.html, EngineName: "http"}, nil
}

func TestHTMLFetcher_FetchDetail(t *testing.T) {
	d := &stubDispatcher{html: "<html><body><article>full text</article></body></html>"}
	f := newTestHTMLFetcher(t, &fakePage{}, WithDetails(d, 0))

	id := antibot.Identity{UserAgent: "ua-test"}
	item, err := f.FetchDetail(context.Background(), models.RawItem{URL: "https://www.example.com/a"}, id)
	require.NoError(t, err)
	assert.Equal(t, d.html, item.Detail)
	assert.Equal(t, "https://www.example.com/a", d.got.URL)
	assert.Equal(t, "ua-test", d.got.Identity.UserAgent)

	d.err = models.NewScrapeError(models.ErrCodeBlocked, "challenge", nil)
	_, err = f.FetchDetail(context.Background(), models.RawItem{URL: "https://www.example.com/b"}, id)
	assert.Equal(t, models.ErrCodeBlocked, models.CodeOf(err))
}

func TestHTMLFetcher_FetchDetailDisabled(t *testing.T) {
	f := newTestHTMLFetcher(t, &fakePage{})
	in := models.RawItem{URL: "https://www.example.com/a", HTML: "<a>x</a>"}
	out, err := f.FetchDetail(context.Background(), in, antibot.Identity{})
	require.NoError(t, err)
	assert.Equal(t, in, out)
}
