package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/qs3c/inkpress/config"
	"github.com/qs3c/inkpress/internal/api"
	"github.com/qs3c/inkpress/internal/api/handler"
	"github.com/qs3c/inkpress/internal/database"
	"github.com/qs3c/inkpress/internal/pkg/cache"
	"github.com/qs3c/inkpress/internal/pkg/kv"
	"github.com/qs3c/inkpress/internal/pkg/logger"
	"github.com/qs3c/inkpress/internal/pkg/oss"
	"github.com/qs3c/inkpress/internal/pkg/pubsub"
	"github.com/qs3c/inkpress/internal/pkg/queue"
	"github.com/qs3c/inkpress/internal/pkg/search"
	"github.com/qs3c/inkpress/internal/pkg/ws"
	"github.com/qs3c/inkpress/internal/repository"
	"github.com/qs3c/inkpress/internal/service"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	// 加载配置
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log, cfg.App)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// 初始化数据库
	db, err := database.Open(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect database", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal("Failed to migrate database", zap.Error(err))
	}
	log.Info("Database connected", zap.String("driver", cfg.Database.Driver))

	// 初始化 Redis
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		log.Fatal("Failed to connect redis", zap.Error(err))
	}
	log.Info("Redis connected")

	// 初始化 OSS（可选）
	var ossClient *oss.Client
	if cfg.OSS.Endpoint != "" && cfg.OSS.AccessKeyID != "" {
		ossClient, err = oss.NewClient(&cfg.OSS)
		if err != nil {
			log.Warn("Failed to init OSS client, image upload disabled", zap.Error(err))
			ossClient = nil
		} else {
			log.Info("OSS client initialized")
		}
	}

	kvStore, err := kv.New(cfg.Search.Backend, rdb, ossClient)
	if err != nil {
		log.Fatal("Failed to init search storage", zap.Error(err))
	}

	// 基础组件
	workflowQueue := queue.NewQueue(rdb, cfg.Queue.WorkflowQueue)
	emailQueue := queue.NewQueue(rdb, cfg.Queue.EmailQueue)
	responseCache := cache.NewCache(rdb, cfg.Cache.Prefix)
	publisher := pubsub.NewPublisher(rdb)
	searchStore := search.NewStore(kvStore, cfg.Search.IndexKey, cfg.Search.MetaKey, log)
	wsHub := ws.NewHub(log)

	// 初始化 Repository
	userRepo := repository.NewUserRepository(db)
	postRepo := repository.NewPostRepository(db)
	commentRepo := repository.NewCommentRepository(db)
	unsubRepo := repository.NewUnsubscriptionRepository(db)

	// 初始化 Service
	var uploader service.ImageUploader
	if ossClient != nil {
		uploader = ossClient
	}
	notifier := service.NewNotificationService(commentRepo, unsubRepo, emailQueue, cfg, log)
	authService := service.NewAuthService(userRepo, cfg)
	userService := service.NewUserService(userRepo, uploader)
	postService := service.NewPostService(postRepo, workflowQueue, responseCache, cfg, log)
	commentService := service.NewCommentService(commentRepo, postRepo, userRepo, notifier,
		workflowQueue, responseCache, publisher, cfg, log)
	searchService := service.NewSearchService(searchStore, postRepo, log)
	unsubscribeService := service.NewUnsubscribeService(unsubRepo, rdb, cfg, log)

	// 初始化 Handler
	router := api.NewRouter(
		handler.NewAuthHandler(authService),
		handler.NewUserHandler(userService),
		handler.NewPostHandler(postService),
		handler.NewCommentHandler(commentService, userRepo),
		handler.NewAdminHandler(commentService),
		handler.NewSearchHandler(searchService),
		handler.NewUnsubscribeHandler(unsubscribeService),
		handler.NewWebSocketHandler(wsHub, cfg.JWT.Secret, userRepo, cfg.CORS.AllowedOrigins, log),
		userRepo,
		cfg,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 审核结果推送给在线管理员
	go func() {
		subscriber := pubsub.NewSubscriber(rdb)
		err := subscriber.Subscribe(ctx, func(ev *pubsub.ModerationEvent) {
			if err := wsHub.Broadcast(&ws.Message{Type: ev.Type, Data: ev}); err != nil {
				log.Warn("Failed to broadcast moderation event", zap.Error(err))
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Moderation subscriber stopped", zap.Error(err))
		}
	}()

	// 启动服务器
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router.Setup(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", zap.Error(err))
	}
	log.Info("Server stopped")
}
