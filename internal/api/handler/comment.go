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

type CommentHandler struct {
	commentService *service.CommentService
	users          middleware.UserLookup
}

func NewCommentHandler(commentService *service.CommentService, users middleware.UserLookup) *CommentHandler {
	return &CommentHandler{
		commentService: commentService,
		users:          users,
	}
}

// List 获取文章评论列表
// GET /api/v1/posts/:slug/comments
func (h *CommentHandler) List(c *gin.Context) {
	page, pageSize := pagination(c)

	items, total, err := h.commentService.ListByPost(c.Request.Context(), c.Param("slug"), page, pageSize)
	if err != nil {
		writeCommentError(c, err)
		return
	}

	response.SuccessPage(c, total, page, pageSize, items)
}

// Create 发表评论，审核通过前状态为 verifying
// POST /api/v1/posts/:slug/comments
func (h *CommentHandler) Create(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.CreateCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	comment, err := h.commentService.Create(c.Request.Context(), userID, c.Param("slug"), &req)
	if err != nil {
		writeCommentError(c, err)
		return
	}

	response.SuccessWithMessage(c, "评论已提交，审核后可见", comment)
}

// Delete 删除评论（作者或管理员）
// DELETE /api/v1/comments/:id
func (h *CommentHandler) Delete(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	commentID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "无效的评论ID")
		return
	}

	isAdmin := false
	if user, err := h.users.GetByID(userID); err == nil {
		isAdmin = user.IsAdmin()
	}

	if err := h.commentService.Delete(c.Request.Context(), userID, isAdmin, commentID); err != nil {
		writeCommentError(c, err)
		return
	}

	response.SuccessWithMessage(c, "删除成功", nil)
}

func writeCommentError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrPostNotFound),
		errors.Is(err, service.ErrPostNotPublished),
		errors.Is(err, service.ErrCommentNotFound):
		response.NotFoundError(c, err.Error())
	case errors.Is(err, service.ErrEmptyContent),
		errors.Is(err, service.ErrReplyTargetNotFound),
		errors.Is(err, service.ErrReplyTargetNotInPost),
		errors.Is(err, service.ErrReplyTargetDeleted),
		errors.Is(err, service.ErrInvalidCommentStatus):
		response.ParamError(c, err.Error())
	case errors.Is(err, service.ErrCommentPermission):
		response.PermissionError(c, err.Error())
	case errors.Is(err, service.ErrCommentStateConflict):
		response.DuplicateError(c, err.Error())
	case errors.Is(err, service.ErrUserNotFound):
		response.AuthError(c, err.Error())
	default:
		response.ServerError(c, "")
	}
}

// pagination 解析分页参数，page_size 上限 100
func pagination(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}
