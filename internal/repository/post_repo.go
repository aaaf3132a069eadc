package repository

import (
	"gorm.io/gorm"

	"github.com/qs3c/inkpress/internal/model"
)

type PostRepository struct {
	db *gorm.DB
}

func NewPostRepository(db *gorm.DB) *PostRepository {
	return &PostRepository{db: db}
}

func (r *PostRepository) Create(post *model.Post) error {
	return r.db.Create(post).Error
}

func (r *PostRepository) GetByID(id int64) (*model.Post, error) {
	var post model.Post
	err := r.db.Where("id = ?", id).First(&post).Error
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func (r *PostRepository) GetBySlug(slug string) (*model.Post, error) {
	var post model.Post
	err := r.db.Where("slug = ?", slug).First(&post).Error
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func (r *PostRepository) UpdateFields(id int64, fields map[string]interface{}) error {
	return r.db.Model(&model.Post{}).Where("id = ?", id).Updates(fields).Error
}

// ListPublished 分批遍历已发布文章
func (r *PostRepository) ListPublished(afterID int64, limit int) ([]*model.Post, error) {
	var posts []*model.Post
	err := r.db.Where("status = ? AND id > ?", model.PostStatusPublished, afterID).
		Order("id ASC").
		Limit(limit).
		Find(&posts).Error
	return posts, err
}
