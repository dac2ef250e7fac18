package models

// ScrapeRequest is the payload for POST /api/v1/scrape.
type ScrapeRequest struct {
	// Source selects reuters, finnhub or all. Required.
	Source string `json:"source" binding:"required,oneof=reuters finnhub all"`

	// MaxArticles caps the number of discovered items per source.
	// Default: 50.
	MaxArticles int `json:"max_articles,omitempty" binding:"omitempty,min=1,max=1000"`

	// Symbol requests company news for one ticker. Finnhub only.
	Symbol string `json:"symbol,omitempty" binding:"omitempty,max=16"`

	// Category selects the market news category. Default: "general".
	Category string `json:"category,omitempty"`

	// SaveToDB persists normalized articles. Default: true.
	SaveToDB *bool `json:"save_to_db,omitempty"`

	// FastMode skips URLs that are already stored.
	FastMode bool `json:"fast_mode,omitempty"`

	// Concurrency bounds parallel item processing per source.
	// Default: server configuration.
	Concurrency int `json:"concurrency,omitempty" binding:"omitempty,min=1,max=32"`
}

// Defaults applies default values to unset fields.
func (r *ScrapeRequest) Defaults() {
	if r.MaxArticles == 0 {
		r.MaxArticles = 50
	}
	if r.SaveToDB == nil {
		t := true
		r.SaveToDB = &t
	}
}

// RunConfig converts the request into manager run parameters.
func (r *ScrapeRequest) RunConfig() RunConfig {
	r.Defaults()
	return RunConfig{
		Source:      Source(r.Source),
		MaxArticles: r.MaxArticles,
		Symbol:      r.Symbol,
		Category:    r.Category,
		SaveToDB:    *r.SaveToDB,
		FastMode:    r.FastMode,
		Concurrency: r.Concurrency,
	}
}

// ArticlesQuery is the query string of GET /api/v1/articles.
type ArticlesQuery struct {
	Source   string `form:"source" binding:"omitempty,oneof=reuters finnhub"`
	Category string `form:"category"`
	Keyword  string `form:"q"`
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=200"`
}

// Filter converts the query into a store filter.
func (q ArticlesQuery) Filter() ArticleFilter {
	f := ArticleFilter{
		Source:   Source(q.Source),
		Category: q.Category,
		Keyword:  q.Keyword,
		Page:     q.Page,
		PageSize: q.PageSize,
	}
	f.Normalize()
	return f
}
