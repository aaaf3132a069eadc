package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/qs3c/inkpress/config"
	"github.com/qs3c/inkpress/internal/model"
	"github.com/qs3c/inkpress/internal/pkg/cache"
	"github.com/qs3c/inkpress/internal/pkg/cdn"
	"github.com/qs3c/inkpress/internal/pkg/moderation"
	"github.com/qs3c/inkpress/internal/pkg/queue"
	"github.com/qs3c/inkpress/internal/pkg/richtext"
	"github.com/qs3c/inkpress/internal/pkg/search"
	"github.com/qs3c/inkpress/internal/repository"
	"github.com/qs3c/inkpress/internal/workflow"
)

const WorkflowPostProcess = queue.TypePostProcess

const (
	PostActionPublish   = "publish"
	PostActionUnpublish = "unpublish"
)

const (
	stepGenerateSummary = "generate summary"
	stepSaveSummary     = "save summary"
	stepIndexPost       = "index post"
	stepRemoveFromIndex = "remove from index"
	stepInvalidateCache = "invalidate cache"
	stepPurgeCDN        = "purge cdn"
)

const defaultRetryDelay = 5 * time.Second

type PostProcessParams struct {
	PostID int64  `json:"post_id"`
	Action string `json:"action"`
}

// PostProcessWorkflow 文章发布/下线后的副作用：摘要、搜索索引、缓存、CDN
type PostProcessWorkflow struct {
	engine    *workflow.Engine
	postRepo  *repository.PostRepository
	moderator moderation.Moderator
	search    *search.Store
	cache     *cache.Cache
	purger    *cdn.Purger
	cfg       *config.Config
	logger    *zap.Logger
}

func NewPostProcessWorkflow(
	engine *workflow.Engine,
	postRepo *repository.PostRepository,
	moderator moderation.Moderator,
	searchStore *search.Store,
	cache *cache.Cache,
	purger *cdn.Purger,
	cfg *config.Config,
	logger *zap.Logger,
) *PostProcessWorkflow {
	return &PostProcessWorkflow{
		engine:    engine,
		postRepo:  postRepo,
		moderator: moderator,
		search:    searchStore,
		cache:     cache,
		purger:    purger,
		cfg:       cfg,
		logger:    logger.Named("post_process"),
	}
}

func (w *PostProcessWorkflow) Run(ctx context.Context, instanceID string, params PostProcessParams) error {
	return w.engine.Execute(ctx, WorkflowPostProcess, instanceID, params, w.body)
}

func (w *PostProcessWorkflow) body(ctx context.Context, run *workflow.Run) error {
	var params PostProcessParams
	if err := run.Params(&params); err != nil {
		return err
	}
	log := run.Logger().With(zap.Int64("postID", params.PostID), zap.String("action", params.Action))

	post, err := workflow.Do(ctx, run, stepFetchPost, func(ctx context.Context) (*model.Post, error) {
		p, err := w.postRepo.GetByID(params.PostID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, nil
			}
			return nil, err
		}
		// 发布状态已被后续操作改变，以最新的那次任务为准
		if p.IsPublished() != (params.Action == PostActionPublish) {
			log.Info("Post status no longer matches action", zap.String("status", p.Status))
			return nil, nil
		}
		return p, nil
	})
	if err != nil {
		return err
	}
	if post == nil {
		log.Info("Post missing or superseded, nothing to do")
		return nil
	}

	switch params.Action {
	case PostActionPublish:
		if err := w.publish(ctx, run, post, log); err != nil {
			return err
		}
	case PostActionUnpublish:
		if _, err := workflow.Do(ctx, run, stepRemoveFromIndex, func(ctx context.Context) (bool, error) {
			idx := w.search.Get(ctx)
			idx.Remove(strconv.FormatInt(post.ID, 10))
			if err := w.search.Persist(ctx, idx); err != nil {
				log.Error("Failed to persist search index", zap.Error(err))
				return false, nil
			}
			return true, nil
		}); err != nil {
			return err
		}
	default:
		log.Warn("Unknown post action")
		return nil
	}

	if _, err := workflow.Do(ctx, run, stepInvalidateCache, func(ctx context.Context) (bool, error) {
		ok := true
		for _, ns := range []string{cache.PostsNamespace, cache.CommentsNamespace(post.ID)} {
			if _, err := w.cache.BumpVersion(ctx, ns); err != nil {
				log.Warn("Failed to invalidate cache", zap.String("namespace", ns), zap.Error(err))
				ok = false
			}
		}
		return ok, nil
	}); err != nil {
		return err
	}

	_, err = workflow.Do(ctx, run, stepPurgeCDN, func(ctx context.Context) (bool, error) {
		if err := w.purger.Purge(ctx, "/", "/posts/"+post.Slug, "/feed.xml"); err != nil {
			log.Error("Failed to purge CDN", zap.Error(err))
			return false, nil
		}
		return true, nil
	})
	return err
}

func (w *PostProcessWorkflow) publish(ctx context.Context, run *workflow.Run, post *model.Post, log *zap.Logger) error {
	summary := post.Summary
	if summary == "" {
		generated, err := workflow.DoOrElse(ctx, run, stepGenerateSummary,
			func(ctx context.Context) (string, error) {
				return w.moderator.Summarize(ctx, post.Title, richtext.MarkdownToText(post.Content))
			},
			func(error) string { return "" },
			workflow.WithRetry(retryPolicy(w.cfg.Moderation)),
		)
		if err != nil {
			return err
		}

		if generated != "" {
			if _, err := workflow.Do(ctx, run, stepSaveSummary, func(ctx context.Context) (bool, error) {
				return true, w.postRepo.UpdateFields(post.ID, map[string]interface{}{"summary": generated})
			}); err != nil {
				return err
			}
			summary = generated
		}
	}

	_, err := workflow.Do(ctx, run, stepIndexPost, func(ctx context.Context) (bool, error) {
		idx := w.search.Get(ctx)
		idx.Upsert(search.Document{
			ID:      strconv.FormatInt(post.ID, 10),
			Title:   post.Title,
			Slug:    post.Slug,
			Summary: summary,
			Content: richtext.MarkdownToText(post.Content),
		})
		if err := w.search.Persist(ctx, idx); err != nil {
			log.Error("Failed to persist search index", zap.Error(err))
			return false, nil
		}
		return true, nil
	})
	return err
}
