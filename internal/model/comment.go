package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

const (
	CommentStatusVerifying = "verifying"
	CommentStatusPending   = "pending"
	CommentStatusPublished = "published"
	CommentStatusDeleted   = "deleted"
)

// JSONContent 富文本文档节点（段落、文本、标记、图片等）
type JSONContent struct {
	Type    string         `json:"type,omitempty"`
	Text    string         `json:"text,omitempty"`
	Attrs   map[string]any `json:"attrs,omitempty"`
	Marks   []JSONMark     `json:"marks,omitempty"`
	Content []JSONContent  `json:"content,omitempty"`
}

type JSONMark struct {
	Type  string         `json:"type"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

func (c JSONContent) Value() (driver.Value, error) {
	return json.Marshal(c)
}

func (c *JSONContent) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*c = JSONContent{}
		return nil
	case []byte:
		return json.Unmarshal(v, c)
	case string:
		return json.Unmarshal([]byte(v), c)
	default:
		return errors.New("unsupported JSONContent source")
	}
}

// IsEmpty 文档中没有任何节点
func (c JSONContent) IsEmpty() bool {
	return c.Type == "" && c.Text == "" && len(c.Content) == 0
}

type Comment struct {
	ID               int64       `gorm:"primaryKey" json:"id"`
	PostID           int64       `gorm:"not null;index" json:"post_id"`
	UserID           int64       `gorm:"not null;index" json:"user_id"`
	RootID           *int64      `gorm:"index" json:"root_id,omitempty"`
	ReplyToCommentID *int64      `gorm:"index" json:"reply_to_comment_id,omitempty"`
	Content          JSONContent `gorm:"type:json" json:"content"`
	Status           string      `gorm:"size:20;not null;default:verifying;index" json:"status"`
	ModerationReason string      `gorm:"size:500" json:"moderation_reason"`
	CreatedAt        time.Time   `gorm:"index" json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`

	// 关联
	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (Comment) TableName() string {
	return "comments"
}

// CanTransitionTo 状态只允许前进：verifying → published/pending，pending → published，published/pending → deleted
func (c *Comment) CanTransitionTo(status string) bool {
	switch c.Status {
	case CommentStatusVerifying:
		return status == CommentStatusPublished || status == CommentStatusPending
	case CommentStatusPending:
		return status == CommentStatusPublished || status == CommentStatusDeleted
	case CommentStatusPublished:
		return status == CommentStatusDeleted
	default:
		return false
	}
}
