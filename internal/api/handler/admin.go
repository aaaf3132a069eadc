package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/inkpress/internal/api/middleware"
	"github.com/qs3c/inkpress/internal/model/dto"
	"github.com/qs3c/inkpress/internal/pkg/response"
	"github.com/qs3c/inkpress/internal/service"
)

// AdminHandler 评论审核后台
type AdminHandler struct {
	commentService *service.CommentService
}

func NewAdminHandler(commentService *service.CommentService) *AdminHandler {
	return &AdminHandler{
		commentService: commentService,
	}
}

// ListComments 审核队列
// GET /api/v1/admin/comments?status=pending
func (h *AdminHandler) ListComments(c *gin.Context) {
	page, pageSize := pagination(c)

	items, total, err := h.commentService.ListForModeration(c.Query("status"), page, pageSize)
	if err != nil {
		writeCommentError(c, err)
		return
	}

	response.SuccessPage(c, total, page, pageSize, items)
}

// ApproveComment 通过
// POST /api/v1/admin/comments/:id/approve
func (h *AdminHandler) ApproveComment(c *gin.Context) {
	moderatorID, _ := middleware.GetUserID(c)
	commentID, req, ok := bindModeration(c)
	if !ok {
		return
	}

	if err := h.commentService.Approve(c.Request.Context(), moderatorID, commentID, req.Reason); err != nil {
		writeCommentError(c, err)
		return
	}
	response.SuccessWithMessage(c, "已通过", nil)
}

// RejectComment 驳回
// POST /api/v1/admin/comments/:id/reject
func (h *AdminHandler) RejectComment(c *gin.Context) {
	commentID, req, ok := bindModeration(c)
	if !ok {
		return
	}

	if err := h.commentService.Reject(c.Request.Context(), commentID, req.Reason); err != nil {
		writeCommentError(c, err)
		return
	}
	response.SuccessWithMessage(c, "已驳回", nil)
}

// bindModeration 请求体可以为空
func bindModeration(c *gin.Context) (int64, *dto.ModerateCommentRequest, bool) {
	commentID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "无效的评论ID")
		return 0, nil, false
	}

	var req dto.ModerateCommentRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ParamError(c, err.Error())
			return 0, nil, false
		}
	}
	return commentID, &req, true
}
