package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/qs3c/inkpress/config"
	"github.com/qs3c/inkpress/internal/model"
	"github.com/qs3c/inkpress/internal/pkg/cache"
	"github.com/qs3c/inkpress/internal/pkg/moderation"
	"github.com/qs3c/inkpress/internal/pkg/pubsub"
	"github.com/qs3c/inkpress/internal/pkg/queue"
	"github.com/qs3c/inkpress/internal/pkg/richtext"
	"github.com/qs3c/inkpress/internal/repository"
	"github.com/qs3c/inkpress/internal/workflow"
)

// WorkflowCommentModeration 工作流名与队列消息类型一致，便于重新投递
const WorkflowCommentModeration = queue.TypeCommentModeration

// 审核步骤名会被持久化，修改会导致进行中的实例重新执行该步骤
const (
	stepFetchComment = "fetch comment"
	stepFetchPost    = "fetch post"
	stepApplyVerdict = "apply verdict"
	stepModerate     = "moderate"
	stepNotifyAdmin  = "notify admin"
	stepNotifyReply  = "notify reply"
)

const (
	ReasonAutoApproved       = "auto-approved outside production"
	ReasonServiceUnavailable = "moderation service unavailable, pending manual review"
	ReasonEmptyContent       = "empty content requires manual review"
)

type ModerationParams struct {
	CommentID int64 `json:"comment_id"`
}

// verdictResult apply verdict 步骤的输出
type verdictResult struct {
	Applied bool   `json:"applied"`
	Status  string `json:"status"`
}

// commentSnapshot fetch comment 步骤的输出，只保留审核和通知用到的字段，不含邮箱
type commentSnapshot struct {
	ID               int64             `json:"id"`
	PostID           int64             `json:"post_id"`
	UserID           int64             `json:"user_id"`
	ReplyToCommentID *int64            `json:"reply_to_comment_id,omitempty"`
	Content          model.JSONContent `json:"content"`
	AuthorName       string            `json:"author_name,omitempty"`
}

func snapshotComment(c *model.Comment) *commentSnapshot {
	s := &commentSnapshot{
		ID:               c.ID,
		PostID:           c.PostID,
		UserID:           c.UserID,
		ReplyToCommentID: c.ReplyToCommentID,
		Content:          c.Content,
	}
	if c.User != nil {
		s.AuthorName = c.User.Name()
	}
	return s
}

// toComment 还原成通知使用的评论，作者只带展示名
func (s *commentSnapshot) toComment() *model.Comment {
	c := &model.Comment{
		ID:               s.ID,
		PostID:           s.PostID,
		UserID:           s.UserID,
		ReplyToCommentID: s.ReplyToCommentID,
		Content:          s.Content,
	}
	if s.AuthorName != "" {
		c.User = &model.User{ID: s.UserID, DisplayName: s.AuthorName}
	}
	return c
}

type ModerationWorkflow struct {
	engine      *workflow.Engine
	commentRepo *repository.CommentRepository
	postRepo    *repository.PostRepository
	moderator   moderation.Moderator
	notifier    *NotificationService
	cache       *cache.Cache
	publisher   *pubsub.Publisher
	cfg         *config.Config
	logger      *zap.Logger
}

func NewModerationWorkflow(
	engine *workflow.Engine,
	commentRepo *repository.CommentRepository,
	postRepo *repository.PostRepository,
	moderator moderation.Moderator,
	notifier *NotificationService,
	cache *cache.Cache,
	publisher *pubsub.Publisher,
	cfg *config.Config,
	logger *zap.Logger,
) *ModerationWorkflow {
	return &ModerationWorkflow{
		engine:      engine,
		commentRepo: commentRepo,
		postRepo:    postRepo,
		moderator:   moderator,
		notifier:    notifier,
		cache:       cache,
		publisher:   publisher,
		cfg:         cfg,
		logger:      logger.Named("moderation"),
	}
}

// Run 执行或恢复一条评论的审核
func (w *ModerationWorkflow) Run(ctx context.Context, instanceID string, params ModerationParams) error {
	return w.engine.Execute(ctx, WorkflowCommentModeration, instanceID, params, w.body)
}

func (w *ModerationWorkflow) body(ctx context.Context, run *workflow.Run) error {
	var params ModerationParams
	if err := run.Params(&params); err != nil {
		return err
	}
	log := run.Logger().With(zap.Int64("commentID", params.CommentID))

	comment, err := workflow.Do(ctx, run, stepFetchComment, func(ctx context.Context) (*commentSnapshot, error) {
		c, err := w.commentRepo.GetByIDWithUser(params.CommentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, nil
			}
			return nil, err
		}
		if c.Status != model.CommentStatusVerifying {
			return nil, nil
		}
		return snapshotComment(c), nil
	})
	if err != nil {
		return err
	}
	if comment == nil {
		log.Info("Comment missing or already moderated, nothing to do")
		return nil
	}

	post, err := workflow.Do(ctx, run, stepFetchPost, func(ctx context.Context) (*model.Post, error) {
		p, err := w.postRepo.GetByID(comment.PostID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, nil
			}
			return nil, err
		}
		return p, nil
	})
	if err != nil {
		return err
	}
	if post == nil {
		log.Info("Post missing, nothing to do", zap.Int64("postID", comment.PostID))
		return nil
	}

	text := strings.TrimSpace(richtext.PlainText(comment.Content))
	if text == "" {
		_, err := w.applyVerdict(ctx, run, comment, model.CommentStatusPending, ReasonEmptyContent)
		return err
	}

	verdict, err := workflow.DoOrElse(ctx, run, stepModerate,
		func(ctx context.Context) (moderation.Verdict, error) {
			if !w.cfg.App.IsProduction() {
				return moderation.Verdict{Safe: true, Reason: ReasonAutoApproved}, nil
			}
			return w.moderator.ModerateComment(ctx, moderation.Input{
				Comment: text,
				Post:    moderation.PostContext{Title: post.Title, Summary: post.Summary},
			})
		},
		func(error) moderation.Verdict {
			return moderation.Verdict{Safe: false, Reason: ReasonServiceUnavailable}
		},
		workflow.WithRetry(retryPolicy(w.cfg.Moderation)),
	)
	if err != nil {
		return err
	}

	status := model.CommentStatusPending
	if verdict.Safe {
		status = model.CommentStatusPublished
	}

	result, err := w.applyVerdict(ctx, run, comment, status, verdict.Reason)
	if err != nil {
		return err
	}
	if !result.Applied {
		log.Info("Comment left verifying state concurrently, skipping notifications")
		return nil
	}

	if !verdict.Safe {
		_, err := workflow.Do(ctx, run, stepNotifyAdmin, func(ctx context.Context) (bool, error) {
			if err := w.notifier.NotifyAdminFlagged(ctx, AdminFlagNotification{
				Comment:       comment.toComment(),
				CommenterName: comment.AuthorName,
				PostTitle:     post.Title,
				Reason:        verdict.Reason,
			}); err != nil {
				log.Error("Failed to notify admin", zap.Error(err))
				return false, nil
			}
			return true, nil
		})
		return err
	}

	if comment.ReplyToCommentID != nil {
		outcome, err := workflow.Do(ctx, run, stepNotifyReply, func(ctx context.Context) (ReplyOutcome, error) {
			return w.notifier.NotifyReply(ctx, ReplyNotification{
				Comment:   comment.toComment(),
				PostSlug:  post.Slug,
				PostTitle: post.Title,
			}), nil
		})
		if err != nil {
			return err
		}
		log.Debug("Reply notification handled", zap.String("outcome", string(outcome)))
	}

	return nil
}

// applyVerdict 仅在评论仍为 verifying 时更新状态，随后刷新评论缓存并推送事件
func (w *ModerationWorkflow) applyVerdict(
	ctx context.Context, run *workflow.Run, comment *commentSnapshot, status, reason string,
) (verdictResult, error) {
	return workflow.Do(ctx, run, stepApplyVerdict, func(ctx context.Context) (verdictResult, error) {
		rows, err := w.commentRepo.TransitionStatus(comment.ID,
			[]string{model.CommentStatusVerifying}, status, reason)
		if err != nil {
			return verdictResult{}, err
		}
		if rows == 0 {
			return verdictResult{Applied: false}, nil
		}

		log := run.Logger().With(zap.Int64("commentID", comment.ID))
		if _, err := w.cache.BumpVersion(ctx, cache.CommentsNamespace(comment.PostID)); err != nil {
			log.Warn("Failed to invalidate comment cache", zap.Error(err))
		}
		if err := w.publisher.PublishModeration(ctx, &pubsub.ModerationEvent{
			CommentID: comment.ID,
			PostID:    comment.PostID,
			Status:    status,
			Reason:    reason,
		}); err != nil {
			log.Warn("Failed to publish moderation event", zap.Error(err))
		}

		log.Info("Comment moderated", zap.String("status", status), zap.String("reason", reason))
		return verdictResult{Applied: true, Status: status}, nil
	})
}

// retryPolicy 调用大模型的步骤共用的重试策略
func retryPolicy(m config.ModerationConfig) workflow.RetryPolicy {
	p := workflow.RetryPolicy{Limit: m.RetryLimit, Delay: m.RetryDelay, MaxDelay: m.MaxRetryDelay}
	if p.Limit <= 0 {
		p.Limit = 3
	}
	if p.Delay <= 0 {
		p.Delay = defaultRetryDelay
	}
	return p
}
