package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/inkpress/internal/api/middleware"
	"github.com/qs3c/inkpress/internal/model/dto"
	"github.com/qs3c/inkpress/internal/pkg/response"
	"github.com/qs3c/inkpress/internal/service"
)

type PostHandler struct {
	postService *service.PostService
}

func NewPostHandler(postService *service.PostService) *PostHandler {
	return &PostHandler{
		postService: postService,
	}
}

// Get 获取已发布文章
// GET /api/v1/posts/:slug
func (h *PostHandler) Get(c *gin.Context) {
	post, err := h.postService.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		writePostError(c, err)
		return
	}
	response.Success(c, post)
}

// Create 创建草稿
// POST /api/v1/admin/posts
func (h *PostHandler) Create(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.CreatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	post, err := h.postService.Create(userID, &req)
	if err != nil {
		writePostError(c, err)
		return
	}
	response.SuccessWithMessage(c, "创建成功", post)
}

// Publish 发布文章
// POST /api/v1/admin/posts/:id/publish
func (h *PostHandler) Publish(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "无效的文章ID")
		return
	}

	post, err := h.postService.Publish(c.Request.Context(), id)
	if err != nil {
		writePostError(c, err)
		return
	}
	response.SuccessWithMessage(c, "发布成功", post)
}

// Unpublish 下线文章
// POST /api/v1/admin/posts/:id/unpublish
func (h *PostHandler) Unpublish(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "无效的文章ID")
		return
	}

	post, err := h.postService.Unpublish(c.Request.Context(), id)
	if err != nil {
		writePostError(c, err)
		return
	}
	response.SuccessWithMessage(c, "已下线", post)
}

func writePostError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrPostNotFound):
		response.NotFoundError(c, err.Error())
	case errors.Is(err, service.ErrSlugExists),
		errors.Is(err, service.ErrPostAlreadyPublished),
		errors.Is(err, service.ErrPostNotPublished):
		response.DuplicateError(c, err.Error())
	default:
		response.ServerError(c, "")
	}
}
