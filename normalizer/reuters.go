package normalizer

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/newsingest/models"
)

var (
	titleSelectors = []string{
		"[data-testid*='Heading']",
		"[data-testid*='title']",
		"[data-testid*='headline']",
		"h3", "h2", "h1",
		".headline", ".title",
		"a",
	}
	summarySelectors = []string{
		"[data-testid*='Description']",
		"[data-testid*='description']",
		".summary", ".description",
		"p",
	}
	categorySelectors = []string{
		"[data-testid*='Label']",
		"[data-testid*='kicker']",
		"[class*='kicker']",
		"[class*='category']",
		"[class*='section']",
	}
	authorSelectors = []string{
		"[rel='author']",
		"[data-testid*='Author']",
		"[class*='author']",
		"[class*='byline']",
	}
)

// fromListing maps a listing-card fragment, optionally enriched by the
// full article page, onto an Article.
func (n *Normalizer) fromListing(item models.RawItem) models.Article {
	a := models.Article{URL: item.URL}

	if card := parseFragment(item.HTML); card != nil {
		a.Title = firstText(card, titleSelectors, 10)
		a.Summary = firstText(card, summarySelectors, 20)
		if t := card.Find("time").First(); t.Length() > 0 {
			if dt, ok := t.Attr("datetime"); ok {
				a.PublishedAt = ParseTimestamp(dt)
			}
			if a.PublishedAt == nil {
				a.PublishedAt = ParseTimestamp(t.Text())
			}
		}
		if c := firstText(card, categorySelectors, 1); c != "" && utf8.RuneCountInString(c) < 50 {
			a.Category = &c
		}
	}

	if item.Detail != "" {
		n.mergeDetail(&a, item)
	}

	if a.Body == "" {
		a.Body = a.Summary
	}
	if a.Category == nil {
		a.Category = ptr(DefaultCategory)
	}
	a.Tags = append([]string{*a.Category}, a.Tags...)
	return a
}

// mergeDetail fills body, author, timestamps and keywords from the full
// page. Listing values win where both exist, except for the body.
func (n *Normalizer) mergeDetail(a *models.Article, item models.RawItem) {
	if art, ok := n.extractArticle(item.Detail, item.URL); ok {
		a.Body = art.Body
		if a.Title == "" {
			a.Title = art.Title
		}
		if a.Summary == "" {
			a.Summary = art.Excerpt
		}
		if art.Byline != "" {
			a.Author = ptr(strings.TrimPrefix(art.Byline, "By "))
		}
	}

	page := parseFragment(item.Detail)
	if page == nil {
		return
	}
	if a.Title == "" {
		a.Title = metaContent(page, "og:title")
	}
	if a.PublishedAt == nil {
		a.PublishedAt = ParseTimestamp(metaContent(page, "article:published_time"))
	}
	if a.Author == nil {
		if by := firstText(page, authorSelectors, 3); by != "" {
			a.Author = ptr(strings.TrimPrefix(by, "By "))
		}
	}
	if a.Category == nil {
		if sec := metaContent(page, "article:section"); sec != "" {
			a.Category = &sec
		}
	}
	if kw := metaContent(page, "keywords"); kw != "" {
		a.Tags = append(a.Tags, strings.Split(kw, ",")...)
	}
}

func parseFragment(html string) *goquery.Selection {
	if strings.TrimSpace(html) == "" {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	return doc.Selection
}

// firstText returns the first selector match whose text is at least
// minLen runes. If nothing is long enough, the first non-empty match is
// returned instead.
func firstText(s *goquery.Selection, selectors []string, minLen int) string {
	var fallback string
	for _, sel := range selectors {
		var found string
		s.Find(sel).EachWithBreak(func(_ int, el *goquery.Selection) bool {
			text := collapseSpace(el.Text())
			if text == "" {
				return true
			}
			if fallback == "" {
				fallback = text
			}
			if utf8.RuneCountInString(text) >= minLen {
				found = text
				return false
			}
			return true
		})
		if found != "" {
			return found
		}
	}
	return fallback
}

// metaContent reads <meta property=name> or <meta name=name>.
func metaContent(s *goquery.Selection, name string) string {
	for _, attr := range []string{"property", "name"} {
		if v, ok := s.Find("meta[" + attr + "='" + name + "']").First().Attr("content"); ok {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	return ""
}
