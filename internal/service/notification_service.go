package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/qs3c/inkpress/config"
	"github.com/qs3c/inkpress/internal/model"
	"github.com/qs3c/inkpress/internal/pkg/email"
	"github.com/qs3c/inkpress/internal/pkg/jwt"
	"github.com/qs3c/inkpress/internal/pkg/queue"
	"github.com/qs3c/inkpress/internal/pkg/richtext"
	"github.com/qs3c/inkpress/internal/repository"
)

const previewLength = 100

// ReplyOutcome 回复提醒的处理结果
type ReplyOutcome string

const (
	ReplyOutcomeSent         ReplyOutcome = "sent"
	ReplyOutcomeNoRecipient  ReplyOutcome = "no_recipient"
	ReplyOutcomeSelfReply    ReplyOutcome = "self_reply"
	ReplyOutcomeSkipped      ReplyOutcome = "skipped"
	ReplyOutcomeUnsubscribed ReplyOutcome = "unsubscribed"
	ReplyOutcomeFailed       ReplyOutcome = "failed"
)

// ReplyNotification 一次回复提醒。Comment 是新回复，需带 User。
type ReplyNotification struct {
	Comment          *model.Comment
	PostSlug         string
	PostTitle        string
	SkipNotifyUserID *int64
}

// AdminFlagNotification 评论被标记待审
type AdminFlagNotification struct {
	Comment       *model.Comment
	CommenterName string
	PostTitle     string
	Reason        string
}

type NotificationService struct {
	commentRepo *repository.CommentRepository
	unsubRepo   *repository.UnsubscriptionRepository
	emailQueue  *queue.Queue
	cfg         *config.Config
	logger      *zap.Logger
}

func NewNotificationService(
	commentRepo *repository.CommentRepository,
	unsubRepo *repository.UnsubscriptionRepository,
	emailQueue *queue.Queue,
	cfg *config.Config,
	logger *zap.Logger,
) *NotificationService {
	return &NotificationService{
		commentRepo: commentRepo,
		unsubRepo:   unsubRepo,
		emailQueue:  emailQueue,
		cfg:         cfg,
		logger:      logger.Named("notification"),
	}
}

// NotifyReply 给被回复评论的作者发送提醒邮件。错误只记录日志，不向上返回。
func (s *NotificationService) NotifyReply(ctx context.Context, n ReplyNotification) ReplyOutcome {
	c := n.Comment
	if c == nil || c.ReplyToCommentID == nil {
		return ReplyOutcomeNoRecipient
	}
	log := s.logger.With(zap.Int64("commentID", c.ID), zap.Int64("replyTo", *c.ReplyToCommentID))

	target, err := s.commentRepo.GetByIDWithUser(*c.ReplyToCommentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ReplyOutcomeNoRecipient
		}
		log.Error("Failed to load reply target", zap.Error(err))
		return ReplyOutcomeFailed
	}
	if target.User == nil || !target.User.HasEmail() {
		return ReplyOutcomeNoRecipient
	}
	recipient := target.User

	if recipient.ID == c.UserID {
		return ReplyOutcomeSelfReply
	}
	if n.SkipNotifyUserID != nil && *n.SkipNotifyUserID == recipient.ID {
		return ReplyOutcomeSkipped
	}

	unsubscribed, err := s.unsubRepo.IsUnsubscribed(recipient.ID, model.EmailCategoryReplyNotification)
	if err != nil {
		log.Error("Failed to check unsubscription", zap.Error(err))
		return ReplyOutcomeFailed
	}
	if unsubscribed {
		return ReplyOutcomeUnsubscribed
	}

	token, _, err := jwt.GenerateScopedToken(recipient.ID, model.EmailCategoryReplyNotification,
		s.cfg.Email.UnsubscribeSecret, s.cfg.Email.UnsubscribeTTL)
	if err != nil {
		log.Error("Failed to issue unsubscribe token", zap.Error(err))
		return ReplyOutcomeFailed
	}
	unsubscribeURL := s.baseURL() + "/api/v1/email/unsubscribe?token=" + url.QueryEscape(token)

	replier := "有人"
	if c.User != nil {
		replier = c.User.Name()
	}

	subject, body, err := email.RenderReply(email.ReplyData{
		SiteName:       s.cfg.Site.Name,
		PostTitle:      n.PostTitle,
		ReplierName:    replier,
		Preview:        richtext.Truncate(richtext.PlainText(c.Content), previewLength),
		CommentURL:     CommentURL(s.baseURL(), n.PostSlug, c.ID),
		UnsubscribeURL: unsubscribeURL,
	})
	if err != nil {
		log.Error("Failed to render reply email", zap.Error(err))
		return ReplyOutcomeFailed
	}

	err = s.emailQueue.Enqueue(ctx, queue.TypeEmail, queue.EmailPayload{
		To:      *recipient.Email,
		Subject: subject,
		HTML:    body,
		Headers: map[string]string{
			"List-Unsubscribe":      "<" + unsubscribeURL + ">",
			"List-Unsubscribe-Post": "List-Unsubscribe=One-Click",
		},
	})
	if err != nil {
		log.Error("Failed to enqueue reply email", zap.Error(err))
		return ReplyOutcomeFailed
	}

	log.Info("Reply notification queued", zap.Int64("recipientID", recipient.ID))
	return ReplyOutcomeSent
}

// NotifyAdminFlagged 通知管理员有评论进入人工审核
func (s *NotificationService) NotifyAdminFlagged(ctx context.Context, n AdminFlagNotification) error {
	to := s.cfg.Site.AdminEmail
	if to == "" {
		return nil
	}

	subject, body, err := email.RenderAdminFlagged(email.AdminFlaggedData{
		SiteName:      s.cfg.Site.Name,
		PostTitle:     n.PostTitle,
		CommenterName: n.CommenterName,
		Preview:       richtext.Truncate(richtext.PlainText(n.Comment.Content), previewLength),
		Reason:        n.Reason,
		QueueURL:      s.baseURL() + "/admin/comments?status=" + model.CommentStatusPending,
	})
	if err != nil {
		return err
	}

	if err := s.emailQueue.Enqueue(ctx, queue.TypeEmail, queue.EmailPayload{
		To:      to,
		Subject: subject,
		HTML:    body,
	}); err != nil {
		return fmt.Errorf("failed to enqueue admin email: %w", err)
	}
	return nil
}

func (s *NotificationService) baseURL() string {
	return strings.TrimRight(s.cfg.Site.BaseURL, "/")
}

// CommentURL 评论的页面地址
func CommentURL(baseURL, slug string, commentID int64) string {
	return fmt.Sprintf("%s/posts/%s#comment-%d", strings.TrimRight(baseURL, "/"), slug, commentID)
}
