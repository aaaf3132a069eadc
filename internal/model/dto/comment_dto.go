package dto

import "github.com/qs3c/inkpress/internal/model"

// CreateCommentRequest 创建评论请求
type CreateCommentRequest struct {
	Content          model.JSONContent `json:"content" binding:"required"`
	ReplyToCommentID *int64            `json:"reply_to_comment_id,omitempty"`
}

// ModerateCommentRequest 人工审核请求
type ModerateCommentRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

// CommentItem 评论项
type CommentItem struct {
	ID               int64              `json:"id"`
	PostID           int64              `json:"post_id"`
	User             *CommentUser       `json:"user"`
	Content          *model.JSONContent `json:"content"` // 已删除时为 null
	RootID           *int64             `json:"root_id"`
	ReplyToCommentID *int64             `json:"reply_to_comment_id"`
	Status           string             `json:"status"`
	ModerationReason string             `json:"moderation_reason,omitempty"`
	CreatedAt        string             `json:"created_at"`
}

// CommentUser 评论用户信息
type CommentUser struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
}
