package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/newsingest/models"
	"github.com/use-agent/newsingest/store"
)

// toScrapeError coerces any error into a ScrapeError, defaulting to
// ErrCodeInternal.
func toScrapeError(err error) *models.ScrapeError {
	if errors.Is(err, store.ErrSessionNotFound) {
		return models.NewScrapeError(ErrCodeNotFound, "session not found", err)
	}
	if se := models.AsScrapeError(err); se != nil {
		return se
	}
	return models.NewScrapeError(models.ErrCodeInternal, err.Error(), err)
}

// ErrCodeNotFound is returned for unknown resources.
const ErrCodeNotFound = "NOT_FOUND"

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(code string) int {
	switch code {
	case models.ErrCodeTimeout, models.ErrCodeCancelled:
		return http.StatusGatewayTimeout // 504
	case models.ErrCodeNavigation, models.ErrCodeSourceUnavailable,
		models.ErrCodeBrowserCrash, models.ErrCodeHTTPStatus, models.ErrCodeBlocked:
		return http.StatusBadGateway // 502
	case models.ErrCodeCredentialMissing:
		return http.StatusServiceUnavailable // 503
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case ErrCodeNotFound:
		return http.StatusNotFound // 404
	default:
		return http.StatusInternalServerError // 500
	}
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error": models.ErrorDetail{
			Code:    models.ErrCodeInvalidInput,
			Message: err.Error(),
		},
	})
}

func respondError(c *gin.Context, err error) {
	se := toScrapeError(err)
	c.AbortWithStatusJSON(mapErrorToStatus(se.Code), gin.H{
		"success": false,
		"error":   se.ToDetail(),
	})
}
