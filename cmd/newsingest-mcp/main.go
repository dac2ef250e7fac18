package main

import (
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func main() {
	apiURL := os.Getenv("NEWSINGEST_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}

	s := server.NewMCPServer(
		"newsingest",
		"1.0.0",
		server.WithToolCapabilities(false),
	)
	registerTools(s, newClient(apiURL, 15*time.Minute))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func registerTools(s *server.MCPServer, c *client) {
	scrapeNewsTool := mcp.NewTool("scrape_news",
		mcp.WithDescription("Run a financial news scraping session against Reuters, Finnhub or both, store the articles and return the session summary."),
		mcp.WithString("source",
			mcp.Required(),
			mcp.Description("Source to scrape"),
			mcp.Enum("reuters", "finnhub", "all"),
		),
		mcp.WithNumber("max_articles",
			mcp.Description("Maximum articles per source (default: 50)"),
		),
		mcp.WithString("symbol",
			mcp.Description("Ticker symbol for Finnhub company news, e.g. 'AAPL'"),
		),
		mcp.WithBoolean("fast_mode",
			mcp.Description("Skip articles that are already stored"),
		),
	)
	s.AddTool(scrapeNewsTool, handleScrapeNews(c))

	recentArticlesTool := mcp.NewTool("recent_articles",
		mcp.WithDescription("List stored articles, newest first, optionally filtered by source, category or keyword."),
		mcp.WithString("source",
			mcp.Description("Filter by source"),
			mcp.Enum("reuters", "finnhub"),
		),
		mcp.WithString("category",
			mcp.Description("Filter by category (case-insensitive)"),
		),
		mcp.WithString("keyword",
			mcp.Description("Case-insensitive keyword matched against title, summary and body"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Number of articles to return (default: 20, max: 200)"),
		),
	)
	s.AddTool(recentArticlesTool, handleRecentArticles(c))

	getSessionTool := mcp.NewTool("get_session",
		mcp.WithDescription("Fetch a scraping session by ID, including its status and error log."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Session ID returned by scrape_news"),
		),
	)
	s.AddTool(getSessionTool, handleGetSession(c))
}
