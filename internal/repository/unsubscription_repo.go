package repository

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/qs3c/inkpress/internal/model"
)

type UnsubscriptionRepository struct {
	db *gorm.DB
}

func NewUnsubscriptionRepository(db *gorm.DB) *UnsubscriptionRepository {
	return &UnsubscriptionRepository{db: db}
}

// Add 记录退订，重复退订不报错
func (r *UnsubscriptionRepository) Add(userID int64, category string) error {
	return r.db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.EmailUnsubscription{UserID: userID, Category: category}).Error
}

// IsUnsubscribed 是否已退订某类邮件
func (r *UnsubscriptionRepository) IsUnsubscribed(userID int64, category string) (bool, error) {
	var count int64
	err := r.db.Model(&model.EmailUnsubscription{}).
		Where("user_id = ? AND category = ?", userID, category).
		Count(&count).Error
	return count > 0, err
}
