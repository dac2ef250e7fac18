package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/newsingest/models"
	"github.com/use-agent/newsingest/store"
)

// Articles returns a handler for GET /api/v1/articles.
//
// Query: source, category, q (keyword), page, page_size.
func Articles(st store.ArticleStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var q models.ArticlesQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			badRequest(c, err)
			return
		}
		f := q.Filter()

		articles, err := st.RecentByFilter(c.Request.Context(), f)
		if err != nil {
			respondError(c, err)
			return
		}
		if articles == nil {
			articles = []models.Article{}
		}

		c.JSON(http.StatusOK, models.ArticlesResponse{
			Success:  true,
			Articles: articles,
			Page:     f.Page,
			PageSize: f.PageSize,
		})
	}
}
