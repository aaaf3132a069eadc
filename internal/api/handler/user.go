package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/inkpress/internal/api/middleware"
	"github.com/qs3c/inkpress/internal/pkg/response"
	"github.com/qs3c/inkpress/internal/service"
)

type UserHandler struct {
	userService *service.UserService
}

func NewUserHandler(userService *service.UserService) *UserHandler {
	return &UserHandler{
		userService: userService,
	}
}

// GetProfile 当前用户信息
// GET /api/v1/users/me
func (h *UserHandler) GetProfile(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	profile, err := h.userService.GetProfile(userID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			response.NotFoundError(c, err.Error())
			return
		}
		response.ServerError(c, "")
		return
	}

	response.Success(c, profile)
}

// UploadImage 上传评论中嵌入的图片
// POST /api/v1/uploads/image
func (h *UserHandler) UploadImage(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		response.ParamError(c, "请选择文件")
		return
	}

	f, err := file.Open()
	if err != nil {
		response.ServerError(c, "文件读取失败")
		return
	}
	defer f.Close()

	url, err := h.userService.UploadImage(c.Request.Context(), userID, f, file.Filename)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrImageTooLarge), errors.Is(err, service.ErrUnsupportedImage):
			response.ParamError(c, err.Error())
		case errors.Is(err, service.ErrStorageNotAvailable):
			response.ServerError(c, err.Error())
		default:
			response.ServerError(c, "上传失败")
		}
		return
	}

	response.Success(c, gin.H{"url": url})
}
