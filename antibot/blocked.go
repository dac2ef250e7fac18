package antibot

import (
	"strings"

	"golang.org/x/net/html"
)

// markupMarkers are challenge widgets recognizable in raw markup even when
// the page shows no readable text.
var markupMarkers = []string{
	"g-recaptcha",
	"h-captcha",
	"px-captcha",
	"cf-chl-",
	"challenge-platform",
	"captcha-delivery.com",
}

// textMarkers are phrases shown to humans on block and challenge pages.
var textMarkers = []string{
	"captcha",
	"are you a robot",
	"verify you are human",
	"verifying you are human",
	"unusual traffic",
	"access denied",
	"request blocked",
	"you have been blocked",
	"press & hold",
	"enable javascript and cookies to continue",
}

// DetectBlocked reports whether body looks like an anti-automation
// challenge rather than real content.
func DetectBlocked(body string) bool {
	if body == "" {
		return false
	}
	lower := strings.ToLower(body)
	for _, m := range markupMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}

	text := strings.ToLower(VisibleText(body))
	for _, m := range textMarkers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

// VisibleText returns the text a reader would see, skipping script, style
// and similar non-rendered elements. Runs of whitespace collapse to one
// space.
func VisibleText(body string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(body))
	var sb strings.Builder
	skip := 0
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(sb.String()), " ")
		case html.StartTagToken:
			if isHidden(tokenizer) {
				skip++
			}
		case html.EndTagToken:
			if isHidden(tokenizer) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				sb.Write(tokenizer.Text())
				sb.WriteByte(' ')
			}
		}
	}
}

func isHidden(z *html.Tokenizer) bool {
	name, _ := z.TagName()
	switch string(name) {
	case "script", "style", "noscript", "template", "title", "svg":
		return true
	}
	return false
}
