package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/newsingest/models"
	"github.com/use-agent/newsingest/store"
)

const (
	defaultSessionLimit = 50
	maxSessionLimit     = 500
)

// Sessions returns a handler for GET /api/v1/sessions?limit=N, newest
// first.
func Sessions(st store.SessionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := defaultSessionLimit
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 || n > maxSessionLimit {
				badRequest(c, fmt.Errorf("limit must be an integer between 1 and %d", maxSessionLimit))
				return
			}
			limit = n
		}

		sessions, err := st.ListSessions(c.Request.Context(), limit)
		if err != nil {
			respondError(c, err)
			return
		}
		if sessions == nil {
			sessions = []models.Session{}
		}
		c.JSON(http.StatusOK, models.SessionsResponse{Success: true, Sessions: sessions})
	}
}

// Session returns a handler for GET /api/v1/sessions/:id.
func Session(st store.SessionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := st.GetSession(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SessionResponse{Success: true, Session: &s})
	}
}
