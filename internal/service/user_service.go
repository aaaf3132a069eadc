package service

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"

	"gorm.io/gorm"

	"github.com/qs3c/inkpress/internal/model/dto"
	"github.com/qs3c/inkpress/internal/repository"
)

const maxImageSize = 5 << 20

var (
	ErrImageTooLarge       = errors.New("图片不能超过 5MB")
	ErrUnsupportedImage    = errors.New("仅支持 jpg/png/gif/webp 图片")
	ErrStorageNotAvailable = errors.New("对象存储未配置")
)

var allowedImageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// ImageUploader 图片上传（oss.Client）
type ImageUploader interface {
	UploadImage(ctx context.Context, userID int64, data []byte, ext string) (string, error)
}

type UserService struct {
	userRepo *repository.UserRepository
	uploader ImageUploader
}

func NewUserService(userRepo *repository.UserRepository, uploader ImageUploader) *UserService {
	return &UserService{
		userRepo: userRepo,
		uploader: uploader,
	}
}

// GetProfile 获取当前用户信息
func (s *UserService) GetProfile(userID int64) (*dto.UserInfo, error) {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return buildUserInfo(user), nil
}

// UploadImage 上传评论/文章中嵌入的图片，返回访问地址
func (s *UserService) UploadImage(ctx context.Context, userID int64, file io.Reader, filename string) (string, error) {
	if s.uploader == nil {
		return "", ErrStorageNotAvailable
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedImageExts[ext] {
		return "", ErrUnsupportedImage
	}

	// 多读一个字节用于判断是否超限
	data, err := io.ReadAll(io.LimitReader(file, maxImageSize+1))
	if err != nil {
		return "", err
	}
	if len(data) > maxImageSize {
		return "", ErrImageTooLarge
	}

	return s.uploader.UploadImage(ctx, userID, data, ext)
}
