package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/inkpress/internal/pkg/response"
	"github.com/qs3c/inkpress/internal/service"
)

type SearchHandler struct {
	searchService *service.SearchService
}

func NewSearchHandler(searchService *service.SearchService) *SearchHandler {
	return &SearchHandler{
		searchService: searchService,
	}
}

// Search 全文搜索已发布文章
// GET /api/v1/search?q=xxx&limit=10
func (h *SearchHandler) Search(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		response.ParamError(c, "请输入搜索关键词")
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	response.Success(c, h.searchService.Search(c.Request.Context(), q, limit))
}
