package normalizer

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DedupTags trims tags, drops empties and removes case-insensitive
// duplicates. The first spelling seen is kept, and order is preserved.
func DedupTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		key := strings.ToLower(tag)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, tag)
	}
	return out
}

// Summarize builds a summary from the leading sentences of body, stopping
// before limit runes. A first sentence longer than limit is cut at a word
// boundary and marked with an ellipsis.
func Summarize(body string, limit int) string {
	text := collapseSpace(stripMarkdown(body))
	if text == "" || limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(text) <= limit {
		return text
	}

	var sb strings.Builder
	for _, sentence := range splitSentences(text) {
		if utf8.RuneCountInString(sb.String())+utf8.RuneCountInString(sentence)+1 > limit {
			break
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(sentence)
	}
	if sb.Len() > 0 {
		return sb.String()
	}
	return truncateWords(text, limit)
}

// splitSentences splits on ., ! or ? followed by whitespace.
func splitSentences(text string) []string {
	var out []string
	start := 0
	runes := []rune(text)
	for i, r := range runes {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
			out = append(out, s)
		}
		start = i + 1
	}
	if rest := strings.TrimSpace(string(runes[start:])); rest != "" {
		out = append(out, rest)
	}
	return out
}

func truncateWords(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	cut := string(runes[:limit-1])
	if i := strings.LastIndexFunc(cut, unicode.IsSpace); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRightFunc(cut, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	}) + "…"
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// stripMarkdown removes the markup characters most likely to show up at
// the start of a converted body so summaries read as plain prose.
func stripMarkdown(s string) string {
	var sb strings.Builder
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "#>*-+ ")
		if line == "" || strings.HasPrefix(line, "![") || strings.HasPrefix(line, "|") {
			continue
		}
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	return strings.NewReplacer("**", "", "__", "", "`", "").Replace(sb.String())
}
