package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/qs3c/inkpress/config"
	"github.com/qs3c/inkpress/internal/database"
	"github.com/qs3c/inkpress/internal/pkg/cache"
	"github.com/qs3c/inkpress/internal/pkg/cdn"
	"github.com/qs3c/inkpress/internal/pkg/cron"
	"github.com/qs3c/inkpress/internal/pkg/email"
	"github.com/qs3c/inkpress/internal/pkg/kv"
	"github.com/qs3c/inkpress/internal/pkg/logger"
	"github.com/qs3c/inkpress/internal/pkg/moderation"
	"github.com/qs3c/inkpress/internal/pkg/oss"
	"github.com/qs3c/inkpress/internal/pkg/pubsub"
	"github.com/qs3c/inkpress/internal/pkg/queue"
	"github.com/qs3c/inkpress/internal/pkg/search"
	"github.com/qs3c/inkpress/internal/repository"
	"github.com/qs3c/inkpress/internal/service"
	"github.com/qs3c/inkpress/internal/worker"
	"github.com/qs3c/inkpress/internal/workflow"
)

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
			log.Warn("Failed to init OSS client", zap.Error(err))
			ossClient = nil
		}
	}

	kvStore, err := kv.New(cfg.Search.Backend, rdb, ossClient)
	if err != nil {
		log.Fatal("Failed to init search storage", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 审核与摘要模型，未配置 API Key 时评论进入人工审核
	var moderator moderation.Moderator = moderation.Unconfigured{}
	if cfg.Moderation.APIKey != "" {
		gemini, err := moderation.NewGeminiClient(ctx, cfg.Moderation.APIKey, cfg.Moderation.Model, log)
		if err != nil {
			log.Fatal("Failed to init moderation client", zap.Error(err))
		}
		defer gemini.Close()
		moderator = gemini
	} else {
		log.Warn("Moderation API key not configured, comments will wait for manual review")
	}

	// 基础组件
	workflowQueue := queue.NewQueue(rdb, cfg.Queue.WorkflowQueue)
	emailQueue := queue.NewQueue(rdb, cfg.Queue.EmailQueue)
	responseCache := cache.NewCache(rdb, cfg.Cache.Prefix)
	publisher := pubsub.NewPublisher(rdb)
	searchStore := search.NewStore(kvStore, cfg.Search.IndexKey, cfg.Search.MetaKey, log)
	purger := cdn.NewPurger(cfg.CDN, cfg.Site.BaseURL)

	// 初始化 Repository
	postRepo := repository.NewPostRepository(db)
	commentRepo := repository.NewCommentRepository(db)
	unsubRepo := repository.NewUnsubscriptionRepository(db)
	workflowRepo := repository.NewWorkflowRepository(db)

	// 工作流
	engine := workflow.NewEngine(workflowRepo, log)
	notifier := service.NewNotificationService(commentRepo, unsubRepo, emailQueue, cfg, log)
	moderationWorkflow := service.NewModerationWorkflow(engine, commentRepo, postRepo, moderator,
		notifier, responseCache, publisher, cfg, log)
	postProcessWorkflow := service.NewPostProcessWorkflow(engine, postRepo, moderator,
		searchStore, responseCache, purger, cfg, log)

	processor := worker.NewProcessor(email.NewMailer(&cfg.Email), moderationWorkflow, postProcessWorkflow, log)

	// 定时扫描停滞的工作流
	scheduler := cron.NewScheduler(workflowRepo, workflowQueue, cfg.Workflow, log)
	scheduler.Start(ctx)

	log.Info("Worker started", zap.Int("maxWorkers", cfg.Queue.MaxWorkers))

	wp := pool.New().WithContext(ctx)
	for _, q := range []*queue.Queue{workflowQueue, emailQueue} {
		p := worker.NewPool(q, processor, cfg.Queue.MaxWorkers, cfg.Queue.PopTimeout, log)
		wp.Go(p.Run)
	}
	if err := wp.Wait(); err != nil {
		log.Error("Worker pool exited", zap.Error(err))
	}

	scheduler.Stop()
	log.Info("Worker shutdown complete")
}
