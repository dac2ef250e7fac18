package models

// ScrapeResponse is the response for POST /api/v1/scrape.
type ScrapeResponse struct {
	// Success is false when the request was rejected or the session failed.
	Success bool `json:"success"`

	// Session is the finalized session, when one was opened.
	Session *Session `json:"session,omitempty"`

	// Error is populated only when Success is false.
	Error *ErrorDetail `json:"error,omitempty"`
}

// ArticlesResponse is the response for GET /api/v1/articles.
type ArticlesResponse struct {
	Success  bool         `json:"success"`
	Articles []Article    `json:"articles"`
	Page     int          `json:"page"`
	PageSize int          `json:"page_size"`
	Error    *ErrorDetail `json:"error,omitempty"`
}

// SessionsResponse is the response for GET /api/v1/sessions.
type SessionsResponse struct {
	Success  bool         `json:"success"`
	Sessions []Session    `json:"sessions"`
	Error    *ErrorDetail `json:"error,omitempty"`
}

// SessionResponse is the response for GET /api/v1/sessions/:id.
type SessionResponse struct {
	Success bool         `json:"success"`
	Session *Session     `json:"session,omitempty"`
	Error   *ErrorDetail `json:"error,omitempty"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status    string    `json:"status"` // "healthy" or "degraded"
	Uptime    string    `json:"uptime"`
	PoolStats PoolStats `json:"pool_stats"`
	Articles  int64     `json:"articles"`
	Version   string    `json:"version"`
}

// PoolStats reports the state of the browser page pool. It is zero when
// the browser has not been launched yet.
type PoolStats struct {
	Launched    bool `json:"launched"`
	MaxPages    int  `json:"max_pages"`
	ActivePages int  `json:"active_pages"`
}
