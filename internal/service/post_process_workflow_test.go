package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/inkpress/config"
	"github.com/qs3c/inkpress/internal/model"
	"github.com/qs3c/inkpress/internal/pkg/cache"
	"github.com/qs3c/inkpress/internal/pkg/cdn"
	"github.com/qs3c/inkpress/internal/testutil"
)

func TestPostProcessWorkflow_Publish(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.moderator.summary = "A gentle introduction to channels"

	author := testutil.TestUser(t, env.db)
	post := testutil.TestPost(t, env.db, author.ID,
		testutil.WithTitle("Go Concurrency"),
		testutil.WithSummary(""),
		testutil.WithPostContent("Goroutines and **channels** explained."))

	err := env.postProcess.Run(ctx, "pp-publish", PostProcessParams{PostID: post.ID, Action: PostActionPublish})
	require.NoError(t, err)

	assert.Equal(t, 1, env.moderator.summaryCalls)
	saved, err := env.postRepo.GetByID(post.ID)
	require.NoError(t, err)
	assert.Equal(t, "A gentle introduction to channels", saved.Summary)

	hits := env.searchStore.Get(ctx).Search("goroutines", 10)
	require.Len(t, hits, 1)
	assert.Equal(t, post.Slug, hits[0].Slug)
	assert.Equal(t, "A gentle introduction to channels", hits[0].Summary)

	postsVersion, err := env.cache.Version(ctx, cache.PostsNamespace)
	require.NoError(t, err)
	assert.Equal(t, int64(1), postsVersion)

	purged := env.purged()
	require.Len(t, purged, 1)
	assert.Equal(t, []string{
		"https://blog.example.com/",
		"https://blog.example.com/posts/" + post.Slug,
		"https://blog.example.com/feed.xml",
	}, purged[0])

	assert.Equal(t, []string{
		stepFetchPost, stepGenerateSummary, stepSaveSummary, stepIndexPost, stepInvalidateCache, stepPurgeCDN,
	}, env.stepNames(t, "pp-publish"))
}

func TestPostProcessWorkflow_KeepsExistingSummary(t *testing.T) {
	env := newTestEnv(t)

	author := testutil.TestUser(t, env.db)
	post := testutil.TestPost(t, env.db, author.ID, testutil.WithSummary("Hand written"))

	require.NoError(t, env.postProcess.Run(context.Background(), "pp-summary",
		PostProcessParams{PostID: post.ID, Action: PostActionPublish}))

	assert.Equal(t, 0, env.moderator.summaryCalls)
	saved, err := env.postRepo.GetByID(post.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hand written", saved.Summary)
}

func TestPostProcessWorkflow_SummaryFailureStillIndexes(t *testing.T) {
	env := newTestEnv(t)
	env.moderator.summaryErr = errors.New("quota exceeded")

	author := testutil.TestUser(t, env.db)
	post := testutil.TestPost(t, env.db, author.ID, testutil.WithSummary(""), testutil.WithTitle("Distributed tracing"))

	require.NoError(t, env.postProcess.Run(context.Background(), "pp-nosummary",
		PostProcessParams{PostID: post.ID, Action: PostActionPublish}))

	assert.Equal(t, env.cfg.Moderation.RetryLimit, env.moderator.summaryCalls)
	assert.NotContains(t, env.stepNames(t, "pp-nosummary"), stepSaveSummary)
	assert.Len(t, env.searchStore.Get(context.Background()).Search("tracing", 10), 1)
}

func TestPostProcessWorkflow_Unpublish(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	author := testutil.TestUser(t, env.db)
	post := testutil.TestPost(t, env.db, author.ID, testutil.WithTitle("Kubernetes operators"))

	require.NoError(t, env.postProcess.Run(ctx, "pp-on", PostProcessParams{PostID: post.ID, Action: PostActionPublish}))
	require.Len(t, env.searchStore.Get(ctx).Search("operators", 10), 1)

	require.NoError(t, env.db.Model(&model.Post{}).Where("id = ?", post.ID).
		Update("status", model.PostStatusDraft).Error)
	require.NoError(t, env.postProcess.Run(ctx, "pp-off", PostProcessParams{PostID: post.ID, Action: PostActionUnpublish}))
	assert.Empty(t, env.searchStore.Get(ctx).Search("operators", 10))
	assert.Contains(t, env.stepNames(t, "pp-off"), stepRemoveFromIndex)
	assert.Len(t, env.purged(), 2)
}

func TestPostProcessWorkflow_CDNDisabled(t *testing.T) {
	env := newTestEnv(t)
	env.postProcess.purger = cdn.NewPurger(config.CDNConfig{}, env.cfg.Site.BaseURL)

	author := testutil.TestUser(t, env.db)
	post := testutil.TestPost(t, env.db, author.ID)

	require.NoError(t, env.postProcess.Run(context.Background(), "pp-nocdn",
		PostProcessParams{PostID: post.ID, Action: PostActionPublish}))
	assert.Empty(t, env.purged())
}

func TestPostProcessWorkflow_MissingPost(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.postProcess.Run(context.Background(), "pp-missing",
		PostProcessParams{PostID: 4242, Action: PostActionPublish}))
	assert.Equal(t, []string{stepFetchPost}, env.stepNames(t, "pp-missing"))
	assert.Empty(t, env.purged())
}

func TestPostProcessWorkflow_PublishSupersededByUnpublish(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	author := testutil.TestUser(t, env.db)
	post := testutil.TestPost(t, env.db, author.ID, testutil.WithTitle("Secret draft"), testutil.WithDraft())

	require.NoError(t, env.postProcess.Run(ctx, "pp-stale-publish",
		PostProcessParams{PostID: post.ID, Action: PostActionPublish}))

	assert.Empty(t, env.searchStore.Get(ctx).Search("secret", 10))
	assert.Equal(t, 0, env.moderator.summaryCalls)
	assert.Equal(t, []string{stepFetchPost}, env.stepNames(t, "pp-stale-publish"))
	assert.Empty(t, env.purged())
}

func TestPostProcessWorkflow_UnpublishSupersededByPublish(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	author := testutil.TestUser(t, env.db)
	post := testutil.TestPost(t, env.db, author.ID, testutil.WithTitle("Service meshes"))

	require.NoError(t, env.postProcess.Run(ctx, "pp-live", PostProcessParams{PostID: post.ID, Action: PostActionPublish}))
	require.Len(t, env.searchStore.Get(ctx).Search("meshes", 10), 1)

	// 下线后又重新发布，迟到的下线任务不应移除索引
	require.NoError(t, env.postProcess.Run(ctx, "pp-stale-unpublish",
		PostProcessParams{PostID: post.ID, Action: PostActionUnpublish}))

	assert.Len(t, env.searchStore.Get(ctx).Search("meshes", 10), 1)
	assert.Equal(t, []string{stepFetchPost}, env.stepNames(t, "pp-stale-unpublish"))
	assert.Len(t, env.purged(), 1)
}
