package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/qs3c/inkpress/config"
	"github.com/qs3c/inkpress/internal/model"
	"github.com/qs3c/inkpress/internal/pkg/cache"
	"github.com/qs3c/inkpress/internal/pkg/cdn"
	"github.com/qs3c/inkpress/internal/pkg/kv"
	"github.com/qs3c/inkpress/internal/pkg/moderation"
	"github.com/qs3c/inkpress/internal/pkg/pubsub"
	"github.com/qs3c/inkpress/internal/pkg/queue"
	"github.com/qs3c/inkpress/internal/pkg/search"
	"github.com/qs3c/inkpress/internal/repository"
	"github.com/qs3c/inkpress/internal/testutil"
	"github.com/qs3c/inkpress/internal/workflow"
)

// fakeModerator 记录调用次数，按配置返回结果
type fakeModerator struct {
	mu           sync.Mutex
	calls        int
	lastInput    moderation.Input
	verdict      moderation.Verdict
	err          error
	hook         func()
	summaryCalls int
	summary      string
	summaryErr   error
}

func (f *fakeModerator) ModerateComment(_ context.Context, in moderation.Input) (moderation.Verdict, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastInput = in
	if f.hook != nil {
		f.hook()
	}
	return f.verdict, f.err
}

func (f *fakeModerator) Summarize(_ context.Context, _, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summaryCalls++
	return f.summary, f.summaryErr
}

func (f *fakeModerator) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type testEnv struct {
	db    *gorm.DB
	redis *redis.Client
	cfg   *config.Config

	commentRepo  *repository.CommentRepository
	postRepo     *repository.PostRepository
	userRepo     *repository.UserRepository
	unsubRepo    *repository.UnsubscriptionRepository
	workflowRepo *repository.WorkflowRepository

	workflowQueue *queue.Queue
	emailQueue    *queue.Queue
	cache         *cache.Cache
	searchStore   *search.Store

	moderator   *fakeModerator
	notifier    *NotificationService
	moderation  *ModerationWorkflow
	postProcess *PostProcessWorkflow
	comments    *CommentService
	posts       *PostService
	search      *SearchService
	unsubscribe *UnsubscribeService

	cdnMu    sync.Mutex
	cdnFiles [][]string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })
	client, _ := testutil.SetupTestRedis(t)

	env := &testEnv{db: db, redis: client}

	cdnServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string][]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		env.cdnMu.Lock()
		env.cdnFiles = append(env.cdnFiles, body["files"])
		env.cdnMu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(cdnServer.Close)

	env.cfg = &config.Config{
		App:  config.AppConfig{Env: "production"},
		JWT:  config.JWTConfig{Secret: testJWTSecret, ExpireHours: 1},
		Site: config.SiteConfig{Name: "Inkpress", BaseURL: "https://blog.example.com", AdminEmail: "admin@example.com"},
		Email: config.EmailConfig{
			UnsubscribeSecret: "unsubscribe-secret",
			UnsubscribeTTL:    24 * time.Hour,
		},
		Moderation: config.ModerationConfig{RetryLimit: 3, RetryDelay: time.Millisecond},
		Cache:      config.CacheConfig{Prefix: "test:cache", TTL: time.Minute},
		CDN:        config.CDNConfig{PurgeURL: cdnServer.URL},
	}

	logger := zap.NewNop()

	env.commentRepo = repository.NewCommentRepository(db)
	env.postRepo = repository.NewPostRepository(db)
	env.userRepo = repository.NewUserRepository(db)
	env.unsubRepo = repository.NewUnsubscriptionRepository(db)
	env.workflowRepo = repository.NewWorkflowRepository(db)

	env.workflowQueue = queue.NewQueue(client, "test:workflows")
	env.emailQueue = queue.NewQueue(client, "test:emails")
	env.cache = cache.NewCache(client, env.cfg.Cache.Prefix)
	env.searchStore = search.NewStore(kv.NewRedisStore(client), "test:search", "test:search:meta", logger)
	publisher := pubsub.NewPublisher(client)

	engine := workflow.NewEngine(env.workflowRepo, logger)
	env.moderator = &fakeModerator{verdict: moderation.Verdict{Safe: true, Reason: "looks fine"}}
	env.notifier = NewNotificationService(env.commentRepo, env.unsubRepo, env.emailQueue, env.cfg, logger)
	env.moderation = NewModerationWorkflow(engine, env.commentRepo, env.postRepo, env.moderator,
		env.notifier, env.cache, publisher, env.cfg, logger)
	env.postProcess = NewPostProcessWorkflow(engine, env.postRepo, env.moderator, env.searchStore,
		env.cache, cdn.NewPurger(env.cfg.CDN, env.cfg.Site.BaseURL), env.cfg, logger)
	env.comments = NewCommentService(env.commentRepo, env.postRepo, env.userRepo, env.notifier,
		env.workflowQueue, env.cache, publisher, env.cfg, logger)
	env.posts = NewPostService(env.postRepo, env.workflowQueue, env.cache, env.cfg, logger)
	env.search = NewSearchService(env.searchStore, env.postRepo, logger)
	env.unsubscribe = NewUnsubscribeService(env.unsubRepo, client, env.cfg, logger)

	return env
}

// drain 取出队列中的全部消息
func drain(t *testing.T, q *queue.Queue) []*queue.Message {
	t.Helper()
	ctx := context.Background()

	n, err := q.Length(ctx)
	require.NoError(t, err)

	msgs := make([]*queue.Message, 0, n)
	for i := int64(0); i < n; i++ {
		msg, err := q.Pop(ctx, time.Second)
		require.NoError(t, err)
		require.NotNil(t, msg)
		msgs = append(msgs, msg)
	}
	return msgs
}

func drainEmails(t *testing.T, env *testEnv) []queue.EmailPayload {
	t.Helper()
	var out []queue.EmailPayload
	for _, msg := range drain(t, env.emailQueue) {
		require.Equal(t, queue.TypeEmail, msg.Type)
		var p queue.EmailPayload
		require.NoError(t, msg.Decode(&p))
		out = append(out, p)
	}
	return out
}

func (env *testEnv) reload(t *testing.T, id int64) *model.Comment {
	t.Helper()
	c, err := env.commentRepo.GetByID(id)
	require.NoError(t, err)
	return c
}

func (env *testEnv) instance(t *testing.T, id string) *model.WorkflowInstance {
	t.Helper()
	inst, err := env.workflowRepo.FindInstance(id)
	require.NoError(t, err)
	require.NotNil(t, inst)
	return inst
}

func (env *testEnv) stepNames(t *testing.T, instanceID string) []string {
	t.Helper()
	steps, err := env.workflowRepo.ListSteps(instanceID)
	require.NoError(t, err)
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = s.Name
	}
	return names
}

func (env *testEnv) purged() [][]string {
	env.cdnMu.Lock()
	defer env.cdnMu.Unlock()
	return append([][]string(nil), env.cdnFiles...)
}
