package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/qs3c/inkpress/config"
	"github.com/qs3c/inkpress/internal/model"
	"github.com/qs3c/inkpress/internal/model/dto"
	"github.com/qs3c/inkpress/internal/pkg/cache"
	"github.com/qs3c/inkpress/internal/pkg/queue"
	"github.com/qs3c/inkpress/internal/repository"
)

var (
	ErrPostNotFound         = errors.New("文章不存在")
	ErrPostNotPublished     = errors.New("文章未发布")
	ErrPostAlreadyPublished = errors.New("文章已发布")
	ErrSlugExists           = errors.New("文章链接已被使用")
)

type PostService struct {
	postRepo      *repository.PostRepository
	workflowQueue *queue.Queue
	cache         *cache.Cache
	cfg           *config.Config
	logger        *zap.Logger
}

func NewPostService(
	postRepo *repository.PostRepository,
	workflowQueue *queue.Queue,
	cache *cache.Cache,
	cfg *config.Config,
	logger *zap.Logger,
) *PostService {
	return &PostService{
		postRepo:      postRepo,
		workflowQueue: workflowQueue,
		cache:         cache,
		cfg:           cfg,
		logger:        logger.Named("post"),
	}
}

// Create 创建草稿
func (s *PostService) Create(authorID int64, req *dto.CreatePostRequest) (*dto.PostDetail, error) {
	if _, err := s.postRepo.GetBySlug(req.Slug); err == nil {
		return nil, ErrSlugExists
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	post := &model.Post{
		AuthorID: authorID,
		Title:    req.Title,
		Slug:     req.Slug,
		Summary:  req.Summary,
		Content:  req.Content,
		Status:   model.PostStatusDraft,
	}
	if err := s.postRepo.Create(post); err != nil {
		return nil, err
	}
	return buildPostDetail(post), nil
}

// GetBySlug 获取已发布文章，按 posts 命名空间版本缓存
func (s *PostService) GetBySlug(ctx context.Context, slug string) (*dto.PostDetail, error) {
	key, err := s.cache.VersionedKey(ctx, cache.PostsNamespace, "slug:"+slug)
	if err != nil {
		s.logger.Warn("Failed to build post cache key", zap.Error(err))
		key = ""
	}
	if key != "" {
		var cached dto.PostDetail
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			return &cached, nil
		}
	}

	post, err := s.postRepo.GetBySlug(slug)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPostNotFound
		}
		return nil, err
	}
	if !post.IsPublished() {
		return nil, ErrPostNotFound
	}

	detail := buildPostDetail(post)
	if key != "" {
		if err := s.cache.Set(ctx, key, detail, s.cfg.Cache.TTL); err != nil {
			s.logger.Warn("Failed to cache post", zap.Error(err))
		}
	}
	return detail, nil
}

// Publish 发布文章并投递后处理工作流
func (s *PostService) Publish(ctx context.Context, postID int64) (*dto.PostDetail, error) {
	post, err := s.getPost(postID)
	if err != nil {
		return nil, err
	}
	if post.IsPublished() {
		return nil, ErrPostAlreadyPublished
	}

	fields := map[string]interface{}{"status": model.PostStatusPublished}
	if post.PublishedAt == nil {
		now := time.Now()
		fields["published_at"] = now
		post.PublishedAt = &now
	}
	if err := s.postRepo.UpdateFields(post.ID, fields); err != nil {
		return nil, err
	}
	post.Status = model.PostStatusPublished

	s.afterStatusChange(ctx, post.ID, PostActionPublish)
	return buildPostDetail(post), nil
}

// Unpublish 下线文章
func (s *PostService) Unpublish(ctx context.Context, postID int64) (*dto.PostDetail, error) {
	post, err := s.getPost(postID)
	if err != nil {
		return nil, err
	}
	if !post.IsPublished() {
		return nil, ErrPostNotPublished
	}

	if err := s.postRepo.UpdateFields(post.ID, map[string]interface{}{"status": model.PostStatusDraft}); err != nil {
		return nil, err
	}
	post.Status = model.PostStatusDraft

	s.afterStatusChange(ctx, post.ID, PostActionUnpublish)
	return buildPostDetail(post), nil
}

// afterStatusChange 立即失效文章缓存，其余副作用交给工作流
func (s *PostService) afterStatusChange(ctx context.Context, postID int64, action string) {
	if _, err := s.cache.BumpVersion(ctx, cache.PostsNamespace); err != nil {
		s.logger.Warn("Failed to invalidate post cache", zap.Int64("postID", postID), zap.Error(err))
	}

	instanceID := uuid.NewString()
	if err := s.workflowQueue.EnqueueWorkflow(ctx, WorkflowPostProcess, instanceID,
		PostProcessParams{PostID: postID, Action: action}); err != nil {
		s.logger.Error("Failed to enqueue post process",
			zap.Int64("postID", postID), zap.String("action", action), zap.Error(err))
	}
}

func (s *PostService) getPost(id int64) (*model.Post, error) {
	post, err := s.postRepo.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPostNotFound
		}
		return nil, err
	}
	return post, nil
}

func buildPostDetail(p *model.Post) *dto.PostDetail {
	d := &dto.PostDetail{
		ID:      p.ID,
		Title:   p.Title,
		Slug:    p.Slug,
		Summary: p.Summary,
		Content: p.Content,
		Status:  p.Status,
	}
	if p.PublishedAt != nil {
		d.PublishedAt = p.PublishedAt.Format(time.RFC3339)
	}
	return d
}
