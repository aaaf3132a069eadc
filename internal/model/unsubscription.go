package model

import (
	"time"
)

const (
	EmailCategoryReplyNotification = "reply_notification"
)

// EmailUnsubscription 邮件退订记录
type EmailUnsubscription struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	UserID    int64     `gorm:"not null;uniqueIndex:idx_user_category" json:"user_id"`
	Category  string    `gorm:"size:50;not null;uniqueIndex:idx_user_category" json:"category"`
	CreatedAt time.Time `json:"created_at"`
}

func (EmailUnsubscription) TableName() string {
	return "email_unsubscriptions"
}
