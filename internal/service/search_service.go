package service

import (
	"context"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/qs3c/inkpress/internal/model/dto"
	"github.com/qs3c/inkpress/internal/pkg/richtext"
	"github.com/qs3c/inkpress/internal/pkg/search"
	"github.com/qs3c/inkpress/internal/repository"
)

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 50
	reindexBatch       = 100
)

type SearchService struct {
	store    *search.Store
	postRepo *repository.PostRepository
	logger   *zap.Logger
}

func NewSearchService(store *search.Store, postRepo *repository.PostRepository, logger *zap.Logger) *SearchService {
	return &SearchService{
		store:    store,
		postRepo: postRepo,
		logger:   logger.Named("search"),
	}
}

// Search 查询已发布文章
func (s *SearchService) Search(ctx context.Context, query string, limit int) []*dto.SearchHit {
	query = strings.TrimSpace(query)
	if query == "" {
		return []*dto.SearchHit{}
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	hits := s.store.Get(ctx).Search(query, limit)
	out := make([]*dto.SearchHit, len(hits))
	for i, h := range hits {
		out[i] = &dto.SearchHit{
			ID:      h.ID,
			Title:   h.Title,
			Slug:    h.Slug,
			Summary: h.Summary,
			Score:   h.Score,
		}
	}
	return out
}

// Reindex 用全部已发布文章重建索引，返回文档数
func (s *SearchService) Reindex(ctx context.Context) (int, error) {
	idx := search.NewIndex()

	var afterID int64
	for {
		posts, err := s.postRepo.ListPublished(afterID, reindexBatch)
		if err != nil {
			return 0, err
		}
		if len(posts) == 0 {
			break
		}
		for _, p := range posts {
			idx.Upsert(search.Document{
				ID:      strconv.FormatInt(p.ID, 10),
				Title:   p.Title,
				Slug:    p.Slug,
				Summary: p.Summary,
				Content: richtext.MarkdownToText(p.Content),
			})
			afterID = p.ID
		}
		if err := ctx.Err(); err != nil {
			return 0, err
		}
	}

	if err := s.store.Persist(ctx, idx); err != nil {
		return 0, err
	}
	s.logger.Info("Search index rebuilt", zap.Int("documents", idx.Len()))
	return idx.Len(), nil
}
