package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/use-agent/newsingest/models"
)

// client talks to the newsingest HTTP API.
type client struct {
	baseURL string
	http    *http.Client
}

func newClient(baseURL string, timeout time.Duration) *client {
	return &client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// do sends a request and decodes the JSON response into out regardless of
// the status code; the API reports failures in the body.
func (c *client) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parse response (status %d): %w", resp.StatusCode, err)
	}
	return nil
}

func errorText(e *models.ErrorDetail, fallback string) string {
	if e == nil {
		return fallback
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func handleScrapeNews(c *client) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		source, err := request.RequireString("source")
		if err != nil {
			return mcp.NewToolResultError("source is required"), nil
		}

		req := models.ScrapeRequest{
			Source:      source,
			MaxArticles: request.GetInt("max_articles", 0),
			Symbol:      request.GetString("symbol", ""),
			FastMode:    request.GetBool("fast_mode", false),
		}

		var resp models.ScrapeResponse
		if err := c.do(ctx, http.MethodPost, "/api/v1/scrape", req, &resp); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if resp.Session == nil {
			return mcp.NewToolResultError(errorText(resp.Error, "scrape failed")), nil
		}

		text := formatSession(resp.Session)
		if !resp.Success {
			return mcp.NewToolResultError(text), nil
		}
		return mcp.NewToolResultText(text), nil
	}
}

func handleRecentArticles(c *client) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		q := url.Values{}
		if v := request.GetString("source", ""); v != "" {
			q.Set("source", v)
		}
		if v := request.GetString("category", ""); v != "" {
			q.Set("category", v)
		}
		if v := request.GetString("keyword", ""); v != "" {
			q.Set("q", v)
		}
		if n := request.GetInt("limit", 0); n > 0 {
			q.Set("page_size", strconv.Itoa(min(n, 200)))
		}

		var resp models.ArticlesResponse
		if err := c.do(ctx, http.MethodGet, "/api/v1/articles?"+q.Encode(), nil, &resp); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if !resp.Success {
			return mcp.NewToolResultError(errorText(resp.Error, "listing articles failed")), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "%d articles:\n\n", len(resp.Articles))
		for i, a := range resp.Articles {
			published := "unknown date"
			if a.PublishedAt != nil {
				published = a.PublishedAt.Format(time.RFC3339)
			}
			fmt.Fprintf(&sb, "[%d] %s\n    %s | %s | %s\n", i+1, a.Title, a.Source, published, a.URL)
			if a.Summary != "" {
				fmt.Fprintf(&sb, "    %s\n", a.Summary)
			}
			sb.WriteString("\n")
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func handleGetSession(c *client) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError("id is required"), nil
		}

		var resp models.SessionResponse
		if err := c.do(ctx, http.MethodGet, "/api/v1/sessions/"+url.PathEscape(id), nil, &resp); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if !resp.Success || resp.Session == nil {
			return mcp.NewToolResultError(errorText(resp.Error, "session not found")), nil
		}
		return mcp.NewToolResultText(formatSession(resp.Session)), nil
	}
}

func formatSession(s *models.Session) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Session %s: %s (source %s)\n", s.ID, s.Status, s.Source)
	fmt.Fprintf(&sb, "Articles scraped: %d\n", s.ArticlesScraped)
	if s.EndedAt != nil {
		fmt.Fprintf(&sb, "Duration: %s\n", s.EndedAt.Sub(s.StartedAt).Round(time.Second))
	}
	if s.TopLevelError != nil {
		fmt.Fprintf(&sb, "Error: [%s] %s\n", s.TopLevelError.Kind, s.TopLevelError.Message)
	}
	if len(s.Errors) > 0 {
		fmt.Fprintf(&sb, "\n%d item errors:\n", len(s.Errors))
		for _, kind := range slices.Sorted(maps.Keys(s.ErrorCounts)) {
			fmt.Fprintf(&sb, "  %s: %d\n", kind, s.ErrorCounts[kind])
		}
	}
	return sb.String()
}
