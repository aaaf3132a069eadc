package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/inkpress/internal/model"
)

var seq int64

func nextSeq() int64 {
	return atomic.AddInt64(&seq, 1)
}

// TestUser 创建测试用户
func TestUser(t *testing.T, db *gorm.DB, opts ...func(*model.User)) *model.User {
	t.Helper()

	n := nextSeq()
	email := fmt.Sprintf("test_%d@example.com", n)
	passwordHash := "$2a$10$abcdefghijklmnopqrstuvwxyz123456" // bcrypt hash placeholder
	user := &model.User{
		Username:     fmt.Sprintf("testuser_%d", n),
		DisplayName:  fmt.Sprintf("Test User %d", n),
		Email:        &email,
		PasswordHash: &passwordHash,
		Role:         model.RoleUser,
	}

	for _, opt := range opts {
		opt(user)
	}

	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}

	return user
}

// WithUsername 设置用户名
func WithUsername(username string) func(*model.User) {
	return func(u *model.User) {
		u.Username = username
	}
}

// WithDisplayName 设置展示名
func WithDisplayName(name string) func(*model.User) {
	return func(u *model.User) {
		u.DisplayName = name
	}
}

// WithEmail 设置邮箱
func WithEmail(email string) func(*model.User) {
	return func(u *model.User) {
		u.Email = &email
	}
}

// WithoutEmail 不绑定邮箱
func WithoutEmail() func(*model.User) {
	return func(u *model.User) {
		u.Email = nil
	}
}

// WithPasswordHash 设置密码哈希
func WithPasswordHash(hash string) func(*model.User) {
	return func(u *model.User) {
		u.PasswordHash = &hash
	}
}

// WithAdmin 设置为管理员
func WithAdmin() func(*model.User) {
	return func(u *model.User) {
		u.Role = model.RoleAdmin
	}
}

// TestPost 创建测试文章（默认已发布）
func TestPost(t *testing.T, db *gorm.DB, authorID int64, opts ...func(*model.Post)) *model.Post {
	t.Helper()

	n := nextSeq()
	now := time.Now()
	post := &model.Post{
		AuthorID:    authorID,
		Title:       fmt.Sprintf("Test Post %d", n),
		Slug:        fmt.Sprintf("test-post-%d", n),
		Summary:     "A short summary",
		Content:     "# Hello\n\nSome **markdown** content.",
		Status:      model.PostStatusPublished,
		PublishedAt: &now,
	}

	for _, opt := range opts {
		opt(post)
	}

	if err := db.Create(post).Error; err != nil {
		t.Fatalf("Failed to create test post: %v", err)
	}

	return post
}

// WithTitle 设置文章标题
func WithTitle(title string) func(*model.Post) {
	return func(p *model.Post) {
		p.Title = title
	}
}

// WithPostContent 设置文章正文
func WithPostContent(content string) func(*model.Post) {
	return func(p *model.Post) {
		p.Content = content
	}
}

// WithSummary 设置摘要
func WithSummary(summary string) func(*model.Post) {
	return func(p *model.Post) {
		p.Summary = summary
	}
}

// WithDraft 设置为草稿
func WithDraft() func(*model.Post) {
	return func(p *model.Post) {
		p.Status = model.PostStatusDraft
		p.PublishedAt = nil
	}
}

// Doc 构造只含一个段落的富文本
func Doc(text string) model.JSONContent {
	return model.JSONContent{
		Type: "doc",
		Content: []model.JSONContent{
			{Type: "paragraph", Content: []model.JSONContent{{Type: "text", Text: text}}},
		},
	}
}

// TestComment 创建测试评论
func TestComment(t *testing.T, db *gorm.DB, userID, postID int64, opts ...func(*model.Comment)) *model.Comment {
	t.Helper()

	comment := &model.Comment{
		UserID:  userID,
		PostID:  postID,
		Content: Doc("Test comment"),
		Status:  model.CommentStatusVerifying,
	}

	for _, opt := range opts {
		opt(comment)
	}

	if err := db.Create(comment).Error; err != nil {
		t.Fatalf("Failed to create test comment: %v", err)
	}

	return comment
}

// WithContent 设置评论内容
func WithContent(content model.JSONContent) func(*model.Comment) {
	return func(c *model.Comment) {
		c.Content = content
	}
}

// WithCommentStatus 设置评论状态
func WithCommentStatus(status string) func(*model.Comment) {
	return func(c *model.Comment) {
		c.Status = status
	}
}

// WithReplyTo 设置为对某条评论的回复
func WithReplyTo(parent *model.Comment) func(*model.Comment) {
	return func(c *model.Comment) {
		root := parent.ID
		if parent.RootID != nil {
			root = *parent.RootID
		}
		replyTo := parent.ID
		c.RootID = &root
		c.ReplyToCommentID = &replyTo
	}
}
