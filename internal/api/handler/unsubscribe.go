package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/inkpress/internal/pkg/response"
	"github.com/qs3c/inkpress/internal/service"
)

type UnsubscribeHandler struct {
	unsubscribeService *service.UnsubscribeService
}

func NewUnsubscribeHandler(unsubscribeService *service.UnsubscribeService) *UnsubscribeHandler {
	return &UnsubscribeHandler{
		unsubscribeService: unsubscribeService,
	}
}

// Unsubscribe 邮件退订，GET 来自链接点击，POST 来自邮件客户端的一键退订
// GET|POST /api/v1/email/unsubscribe?token=xxx
func (h *UnsubscribeHandler) Unsubscribe(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.ParamError(c, "缺少退订令牌")
		return
	}

	category, err := h.unsubscribeService.Consume(c.Request.Context(), token)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnsubscribeLinkExpired):
			response.LinkExpiredError(c, err.Error())
		case errors.Is(err, service.ErrUnsubscribeLinkInvalid):
			response.ParamError(c, err.Error())
		case errors.Is(err, service.ErrTokenUsed):
			response.DuplicateError(c, err.Error())
		default:
			response.ServerError(c, "")
		}
		return
	}

	response.SuccessWithMessage(c, "退订成功", gin.H{"category": category})
}
