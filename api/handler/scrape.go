package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/newsingest/models"
)

// Runner executes a scraping session.
type Runner interface {
	Run(ctx context.Context, cfg models.RunConfig) (models.Session, error)
}

// Scrape returns a handler for POST /api/v1/scrape.
//
// The run is synchronous and bound to the request context: a client that
// disconnects cancels it. A failed session is still returned in full,
// with the status mapped from its top-level error.
func Scrape(r Runner) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.ScrapeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.ScrapeResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: err.Error(),
				},
			})
			return
		}

		session, err := r.Run(c.Request.Context(), req.RunConfig())
		if err != nil {
			se := toScrapeError(err)
			c.JSON(mapErrorToStatus(se.Code), models.ScrapeResponse{
				Success: false,
				Error:   se.ToDetail(),
			})
			return
		}

		if session.Status == models.SessionFailed && session.TopLevelError != nil {
			c.JSON(mapErrorToStatus(session.TopLevelError.Kind), models.ScrapeResponse{
				Success: false,
				Session: &session,
				Error: &models.ErrorDetail{
					Code:    session.TopLevelError.Kind,
					Message: session.TopLevelError.Message,
				},
			})
			return
		}

		c.JSON(http.StatusOK, models.ScrapeResponse{
			Success: true,
			Session: &session,
		})
	}
}
