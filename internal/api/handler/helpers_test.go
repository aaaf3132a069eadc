package handler

import (
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/qs3c/inkpress/config"
	"github.com/qs3c/inkpress/internal/api/middleware"
	"github.com/qs3c/inkpress/internal/pkg/cache"
	"github.com/qs3c/inkpress/internal/pkg/kv"
	"github.com/qs3c/inkpress/internal/pkg/pubsub"
	"github.com/qs3c/inkpress/internal/pkg/queue"
	"github.com/qs3c/inkpress/internal/pkg/search"
	"github.com/qs3c/inkpress/internal/repository"
	"github.com/qs3c/inkpress/internal/service"
	"github.com/qs3c/inkpress/internal/testutil"
)

const handlerJWTSecret = "handler-test-secret"

type testContext struct {
	DB            *gorm.DB
	Redis         *redis.Client
	Cfg           *config.Config
	UserRepo      *repository.UserRepository
	WorkflowQueue *queue.Queue
	EmailQueue    *queue.Queue

	Comments    *service.CommentService
	Posts       *service.PostService
	Search      *service.SearchService
	Unsubscribe *service.UnsubscribeService
}

func setupTestContext(t *testing.T) *testContext {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })
	client, _ := testutil.SetupTestRedis(t)
	logger := zap.NewNop()

	cfg := &config.Config{
		JWT:   config.JWTConfig{Secret: handlerJWTSecret, ExpireHours: 1},
		Site:  config.SiteConfig{Name: "Inkpress", BaseURL: "https://blog.example.com"},
		Email: config.EmailConfig{UnsubscribeSecret: "handler-unsubscribe", UnsubscribeTTL: time.Hour},
		Cache: config.CacheConfig{Prefix: "test:cache", TTL: time.Minute},
	}

	userRepo := repository.NewUserRepository(db)
	postRepo := repository.NewPostRepository(db)
	commentRepo := repository.NewCommentRepository(db)
	unsubRepo := repository.NewUnsubscriptionRepository(db)

	workflowQueue := queue.NewQueue(client, "test:workflows")
	emailQueue := queue.NewQueue(client, "test:emails")
	c := cache.NewCache(client, cfg.Cache.Prefix)
	publisher := pubsub.NewPublisher(client)
	notifier := service.NewNotificationService(commentRepo, unsubRepo, emailQueue, cfg, logger)
	store := search.NewStore(kv.NewRedisStore(client), "test:search", "test:search:meta", logger)

	return &testContext{
		DB:            db,
		Redis:         client,
		Cfg:           cfg,
		UserRepo:      userRepo,
		WorkflowQueue: workflowQueue,
		EmailQueue:    emailQueue,
		Comments: service.NewCommentService(commentRepo, postRepo, userRepo, notifier,
			workflowQueue, c, publisher, cfg, logger),
		Posts:       service.NewPostService(postRepo, workflowQueue, c, cfg, logger),
		Search:      service.NewSearchService(store, postRepo, logger),
		Unsubscribe: service.NewUnsubscribeService(unsubRepo, client, cfg, logger),
	}
}

// mockAuth 模拟认证中间件
func mockAuth(userID int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.UserIDKey, userID)
		c.Next()
	}
}
