package normalizer

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/use-agent/newsingest/models"
)

// fromFinnhub reads one element of the /news and /company-news arrays.
// Fields are pulled one at a time so a badly typed field only loses
// itself.
func fromFinnhub(item models.RawItem) (models.Article, error) {
	if len(item.JSON) == 0 {
		return models.Article{}, fmt.Errorf("empty payload")
	}
	var n map[string]json.RawMessage
	if err := json.Unmarshal(item.JSON, &n); err != nil {
		return models.Article{}, fmt.Errorf("decode news object: %w", err)
	}

	a := models.Article{
		URL:            jsonText(n["url"]),
		Title:          jsonText(n["headline"]),
		Summary:        jsonText(n["summary"]),
		PublishedAt:    finnhubTime(n["datetime"]),
		SentimentScore: jsonFloat(n["sentiment"]),
		Tags:           relatedSymbols(n["related"]),
	}
	a.Body = a.Summary
	if a.URL == "" {
		a.URL = item.URL
	}
	if c := jsonText(n["category"]); c != "" {
		a.Category = &c
	}
	if s := jsonText(n["source"]); s != "" {
		a.Tags = append(a.Tags, s)
	}
	return a, nil
}

// jsonText returns a string or number field as trimmed text, and ""
// for anything else.
func jsonText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var num json.Number
	if err := json.Unmarshal(raw, &num); err == nil {
		return num.String()
	}
	return ""
}

func jsonFloat(raw json.RawMessage) *float64 {
	s := jsonText(raw)
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}

// finnhubTime accepts unix seconds as a number or a string, and falls back
// to the textual formats.
func finnhubTime(raw json.RawMessage) *time.Time {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		return nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return FromUnix(int64(f))
	}
	return ParseTimestamp(s)
}

// relatedSymbols accepts the comma-separated string the API documents as
// well as a JSON array.
func relatedSymbols(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var joined string
	if err := json.Unmarshal(raw, &joined); err == nil {
		return strings.Split(joined, ",")
	}
	return nil
}
