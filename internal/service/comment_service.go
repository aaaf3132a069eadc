package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/qs3c/inkpress/config"
	"github.com/qs3c/inkpress/internal/model"
	"github.com/qs3c/inkpress/internal/model/dto"
	"github.com/qs3c/inkpress/internal/pkg/cache"
	"github.com/qs3c/inkpress/internal/pkg/pubsub"
	"github.com/qs3c/inkpress/internal/pkg/queue"
	"github.com/qs3c/inkpress/internal/repository"
)

var (
	ErrCommentNotFound      = errors.New("评论不存在")
	ErrCommentPermission    = errors.New("无权操作此评论")
	ErrCommentStateConflict = errors.New("评论当前状态不允许此操作")
	ErrEmptyContent         = errors.New("评论内容不能为空")
	ErrReplyTargetNotFound  = errors.New("回复的评论不存在")
	ErrReplyTargetNotInPost = errors.New("回复的评论不属于该文章")
	ErrReplyTargetDeleted   = errors.New("回复的评论已删除")
	ErrInvalidCommentStatus = errors.New("无效的评论状态")
)

const reasonQueueUnavailable = "moderation queue unavailable, pending manual review"

// commentPage 评论列表缓存结构
type commentPage struct {
	Items []*dto.CommentItem `json:"items"`
	Total int64              `json:"total"`
}

type CommentService struct {
	commentRepo   *repository.CommentRepository
	postRepo      *repository.PostRepository
	userRepo      *repository.UserRepository
	notifier      *NotificationService
	workflowQueue *queue.Queue
	cache         *cache.Cache
	publisher     *pubsub.Publisher
	cfg           *config.Config
	logger        *zap.Logger
}

func NewCommentService(
	commentRepo *repository.CommentRepository,
	postRepo *repository.PostRepository,
	userRepo *repository.UserRepository,
	notifier *NotificationService,
	workflowQueue *queue.Queue,
	cache *cache.Cache,
	publisher *pubsub.Publisher,
	cfg *config.Config,
	logger *zap.Logger,
) *CommentService {
	return &CommentService{
		commentRepo:   commentRepo,
		postRepo:      postRepo,
		userRepo:      userRepo,
		notifier:      notifier,
		workflowQueue: workflowQueue,
		cache:         cache,
		publisher:     publisher,
		cfg:           cfg,
		logger:        logger.Named("comment"),
	}
}

// Create 创建评论（状态 verifying），并投递审核工作流
func (s *CommentService) Create(ctx context.Context, userID int64, slug string, req *dto.CreateCommentRequest) (*dto.CommentItem, error) {
	post, err := s.publishedPost(slug)
	if err != nil {
		return nil, err
	}

	if req.Content.IsEmpty() {
		return nil, ErrEmptyContent
	}

	comment := &model.Comment{
		UserID:  userID,
		PostID:  post.ID,
		Content: req.Content,
		Status:  model.CommentStatusVerifying,
	}

	// 回复：root 取目标的 root，目标本身是根评论时取目标 ID
	if req.ReplyToCommentID != nil {
		target, err := s.commentRepo.GetByID(*req.ReplyToCommentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrReplyTargetNotFound
			}
			return nil, err
		}
		if target.PostID != post.ID {
			return nil, ErrReplyTargetNotInPost
		}
		if target.Status == model.CommentStatusDeleted {
			return nil, ErrReplyTargetDeleted
		}

		rootID := target.ID
		if target.RootID != nil {
			rootID = *target.RootID
		}
		replyTo := target.ID
		comment.RootID = &rootID
		comment.ReplyToCommentID = &replyTo
	}

	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	if err := s.commentRepo.Create(comment); err != nil {
		return nil, err
	}
	comment.User = user

	instanceID := uuid.NewString()
	if err := s.workflowQueue.EnqueueWorkflow(ctx, WorkflowCommentModeration, instanceID,
		ModerationParams{CommentID: comment.ID}); err != nil {
		// 没有实例可供补偿扫描，直接转入人工审核
		s.logger.Error("Failed to enqueue moderation",
			zap.Int64("commentID", comment.ID), zap.Error(err))
		if _, terr := s.commentRepo.TransitionStatus(comment.ID,
			[]string{model.CommentStatusVerifying}, model.CommentStatusPending, reasonQueueUnavailable); terr != nil {
			return nil, fmt.Errorf("failed to park comment for review: %w", terr)
		}
		comment.Status = model.CommentStatusPending
		comment.ModerationReason = reasonQueueUnavailable
	}

	return buildCommentItem(comment, true), nil
}

// Delete 软删除：作者本人或管理员
func (s *CommentService) Delete(ctx context.Context, userID int64, isAdmin bool, commentID int64) error {
	comment, err := s.getComment(commentID)
	if err != nil {
		return err
	}

	if comment.UserID != userID && !isAdmin {
		return ErrCommentPermission
	}

	reason := "deleted by author"
	if comment.UserID != userID {
		reason = "deleted by moderator"
	}
	return s.transition(ctx, comment, []string{model.CommentStatusPublished, model.CommentStatusPending},
		model.CommentStatusDeleted, reason)
}

// ListByPost 文章评论列表：已发布评论和已删除占位，按评论命名空间版本缓存
func (s *CommentService) ListByPost(ctx context.Context, slug string, page, pageSize int) ([]*dto.CommentItem, int64, error) {
	post, err := s.publishedPost(slug)
	if err != nil {
		return nil, 0, err
	}

	key, err := s.cache.VersionedKey(ctx, cache.CommentsNamespace(post.ID), fmt.Sprintf("list:%d:%d", page, pageSize))
	if err != nil {
		s.logger.Warn("Failed to build comment cache key", zap.Error(err))
		key = ""
	}
	if key != "" {
		var cached commentPage
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			return cached.Items, cached.Total, nil
		}
	}

	comments, total, err := s.commentRepo.ListByPostID(post.ID,
		[]string{model.CommentStatusPublished, model.CommentStatusDeleted}, page, pageSize)
	if err != nil {
		return nil, 0, err
	}

	items := make([]*dto.CommentItem, len(comments))
	for i, c := range comments {
		items[i] = buildCommentItem(c, false)
	}

	if key != "" {
		if err := s.cache.Set(ctx, key, commentPage{Items: items, Total: total}, s.cfg.Cache.TTL); err != nil {
			s.logger.Warn("Failed to cache comment list", zap.Error(err))
		}
	}

	return items, total, nil
}

// ListForModeration 审核队列，默认 pending
func (s *CommentService) ListForModeration(status string, page, pageSize int) ([]*dto.CommentItem, int64, error) {
	if status == "" {
		status = model.CommentStatusPending
	}
	switch status {
	case model.CommentStatusVerifying, model.CommentStatusPending,
		model.CommentStatusPublished, model.CommentStatusDeleted:
	default:
		return nil, 0, ErrInvalidCommentStatus
	}

	comments, total, err := s.commentRepo.ListByStatus(status, page, pageSize)
	if err != nil {
		return nil, 0, err
	}

	items := make([]*dto.CommentItem, len(comments))
	for i, c := range comments {
		items[i] = buildCommentItem(c, true)
	}
	return items, total, nil
}

// Approve 人工审核通过：pending → published，并补发回复提醒
func (s *CommentService) Approve(ctx context.Context, moderatorID, commentID int64, reason string) error {
	comment, err := s.getComment(commentID)
	if err != nil {
		return err
	}
	if reason == "" {
		reason = "approved by moderator"
	}

	if err := s.transition(ctx, comment, []string{model.CommentStatusPending}, model.CommentStatusPublished, reason); err != nil {
		return err
	}

	if comment.ReplyToCommentID != nil {
		full, err := s.commentRepo.GetByIDWithUser(comment.ID)
		if err != nil {
			s.logger.Warn("Failed to reload approved comment", zap.Int64("commentID", comment.ID), zap.Error(err))
			return nil
		}
		post, err := s.postRepo.GetByID(comment.PostID)
		if err != nil {
			s.logger.Warn("Failed to load post for reply notification", zap.Int64("postID", comment.PostID), zap.Error(err))
			return nil
		}
		skip := moderatorID
		outcome := s.notifier.NotifyReply(ctx, ReplyNotification{
			Comment:          full,
			PostSlug:         post.Slug,
			PostTitle:        post.Title,
			SkipNotifyUserID: &skip,
		})
		s.logger.Debug("Reply notification after approval", zap.String("outcome", string(outcome)))
	}
	return nil
}

// Reject 人工驳回：pending/published → deleted
func (s *CommentService) Reject(ctx context.Context, commentID int64, reason string) error {
	comment, err := s.getComment(commentID)
	if err != nil {
		return err
	}
	if reason == "" {
		reason = "rejected by moderator"
	}
	return s.transition(ctx, comment, []string{model.CommentStatusPending, model.CommentStatusPublished},
		model.CommentStatusDeleted, reason)
}

func (s *CommentService) getComment(id int64) (*model.Comment, error) {
	comment, err := s.commentRepo.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCommentNotFound
		}
		return nil, err
	}
	return comment, nil
}

func (s *CommentService) publishedPost(slug string) (*model.Post, error) {
	post, err := s.postRepo.GetBySlug(slug)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPostNotFound
		}
		return nil, err
	}
	if !post.IsPublished() {
		return nil, ErrPostNotPublished
	}
	return post, nil
}

// transition 条件更新状态，随后刷新缓存并推送事件
func (s *CommentService) transition(ctx context.Context, comment *model.Comment, from []string, to, reason string) error {
	rows, err := s.commentRepo.TransitionStatus(comment.ID, from, to, reason)
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrCommentStateConflict
	}

	if _, err := s.cache.BumpVersion(ctx, cache.CommentsNamespace(comment.PostID)); err != nil {
		s.logger.Warn("Failed to invalidate comment cache", zap.Int64("postID", comment.PostID), zap.Error(err))
	}
	if err := s.publisher.PublishModeration(ctx, &pubsub.ModerationEvent{
		CommentID: comment.ID,
		PostID:    comment.PostID,
		Status:    to,
		Reason:    reason,
	}); err != nil {
		s.logger.Warn("Failed to publish moderation event", zap.Int64("commentID", comment.ID), zap.Error(err))
	}
	return nil
}

// buildCommentItem 已删除评论只保留占位，内容置空；withReason 控制是否返回审核原因
func buildCommentItem(c *model.Comment, withReason bool) *dto.CommentItem {
	item := &dto.CommentItem{
		ID:               c.ID,
		PostID:           c.PostID,
		RootID:           c.RootID,
		ReplyToCommentID: c.ReplyToCommentID,
		Status:           c.Status,
		CreatedAt:        c.CreatedAt.Format(time.RFC3339),
	}
	if withReason {
		item.ModerationReason = c.ModerationReason
	}
	if c.Status != model.CommentStatusDeleted {
		content := c.Content
		item.Content = &content
	}
	if c.User != nil {
		item.User = &dto.CommentUser{
			ID:          c.User.ID,
			Username:    c.User.Username,
			DisplayName: c.User.DisplayName,
			AvatarURL:   c.User.AvatarURL,
		}
	}
	return item
}
