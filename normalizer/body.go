package normalizer

import (
	"log/slog"
	nurl "net/url"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	readability "github.com/go-shiori/go-readability"
)

// minContentLength is the shortest readability TextContent accepted as
// the article body.
const minContentLength = 200

// extracted is the useful part of a full article page.
type extracted struct {
	Title   string
	Byline  string
	Excerpt string
	Body    string // Markdown
}

// newMarkdownConverter creates a reusable, goroutine-safe Converter.
func newMarkdownConverter() *converter.Converter {
	return converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(
				table.WithCellPaddingBehavior(table.CellPaddingBehaviorMinimal),
			),
		),
	)
}

// extractArticle runs readability on a full page and converts the main
// content to Markdown. ok is false when the page held no recognizable
// article; callers then keep whatever the listing provided.
func (n *Normalizer) extractArticle(rawHTML, pageURL string) (extracted, bool) {
	parsed, err := nurl.Parse(pageURL)
	if err != nil {
		return extracted{}, false
	}

	article, err := readability.FromReader(strings.NewReader(rawHTML), parsed)
	if err != nil {
		slog.Debug("readability failed", "url", pageURL, "error", err)
		return extracted{}, false
	}
	if len(strings.TrimSpace(article.TextContent)) < minContentLength {
		return extracted{}, false
	}

	body, err := n.md.ConvertString(article.Content, converter.WithDomain(parsed.Scheme+"://"+parsed.Host))
	if err != nil {
		slog.Debug("markdown conversion failed, using plain text", "url", pageURL, "error", err)
		body = article.TextContent
	}

	return extracted{
		Title:   strings.TrimSpace(article.Title),
		Byline:  strings.TrimSpace(article.Byline),
		Excerpt: strings.TrimSpace(article.Excerpt),
		Body:    strings.TrimSpace(body),
	}, true
}
