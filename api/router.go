package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/newsingest/api/handler"
	"github.com/use-agent/newsingest/api/middleware"
	"github.com/use-agent/newsingest/config"
	"github.com/use-agent/newsingest/metrics"
	"github.com/use-agent/newsingest/models"
	"github.com/use-agent/newsingest/store"
)

// Deps are the services the HTTP API serves from.
type Deps struct {
	Runner    handler.Runner
	Store     store.Store
	PoolStats func() models.PoolStats
	Metrics   *metrics.Collector
	StartTime time.Time
}

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     RateLimit (scrape only)
//
// Health, read endpoints and /metrics are not rate limited so the
// dashboard and monitoring probes always work.
func NewRouter(cfg *config.Config, d Deps) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	if d.PoolStats == nil {
		d.PoolStats = func() models.PoolStats { return models.PoolStats{} }
	}
	if d.StartTime.IsZero() {
		d.StartTime = time.Now()
	}

	v1 := r.Group("/api/v1")
	v1.GET("/health", handler.Health(d.PoolStats, d.Store, d.StartTime))

	// Reads
	v1.GET("/articles", handler.Articles(d.Store))
	v1.GET("/sessions", handler.Sessions(d.Store))
	v1.GET("/sessions/:id", handler.Session(d.Store))

	// Scrape
	limited := v1.Group("")
	limited.Use(middleware.RateLimit(cfg.RateLimit))
	limited.POST("/scrape", handler.Scrape(d.Runner))

	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}

	return r
}
