package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/newsingest/models"
	"github.com/use-agent/newsingest/store"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Health returns a handler for GET /api/v1/health.
//
// Reports pool utilisation and degrades status when > 80% of pages are
// active or the store cannot be read.
func Health(stats func() models.PoolStats, st store.ArticleStore, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		ps := stats()

		status := "healthy"
		if ps.MaxPages > 0 && ps.ActivePages > int(float64(ps.MaxPages)*0.8) {
			status = "degraded"
		}

		n, err := st.Count(c.Request.Context())
		if err != nil {
			slog.Warn("health: count articles", "error", err)
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:    status,
			Uptime:    time.Since(startTime).Round(time.Second).String(),
			PoolStats: ps,
			Articles:  n,
			Version:   Version,
		})
	}
}
