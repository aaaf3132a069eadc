package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/qs3c/inkpress/config"
	"github.com/qs3c/inkpress/internal/database"
	"github.com/qs3c/inkpress/internal/pkg/cron"
	"github.com/qs3c/inkpress/internal/pkg/kv"
	"github.com/qs3c/inkpress/internal/pkg/logger"
	"github.com/qs3c/inkpress/internal/pkg/oss"
	"github.com/qs3c/inkpress/internal/pkg/queue"
	"github.com/qs3c/inkpress/internal/pkg/search"
	"github.com/qs3c/inkpress/internal/repository"
	"github.com/qs3c/inkpress/internal/service"
)

type deps struct {
	cfg    *config.Config
	db     *gorm.DB
	redis  *redis.Client
	logger *zap.Logger
}

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	app := &cli.Command{
		Name:  "maintain",
		Usage: "Inkpress maintenance tool",
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "Create or update database tables",
				Action: func(_ context.Context, _ *cli.Command) error {
					d, err := setup(false)
					if err != nil {
						return err
					}
					if err := database.Migrate(d.db); err != nil {
						return fmt.Errorf("failed to migrate database: %w", err)
					}
					d.logger.Info("Database migrated")
					return nil
				},
			},
			{
				Name:  "reindex",
				Usage: "Rebuild the search index from published posts",
				Action: func(ctx context.Context, _ *cli.Command) error {
					d, err := setup(true)
					if err != nil {
						return err
					}
					return reindex(ctx, d)
				},
			},
			{
				Name:  "sweep-workflows",
				Usage: "Re-enqueue stale workflow instances once",
				Action: func(ctx context.Context, _ *cli.Command) error {
					d, err := setup(true)
					if err != nil {
						return err
					}
					n := scheduler(d).Sweep(ctx)
					d.logger.Info("Stale workflows re-enqueued", zap.Int("count", n))
					return nil
				},
			},
			{
				Name:  "prune-workflows",
				Usage: "Delete completed workflow instances older than the retention",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "days",
						Aliases: []string{"d"},
						Value:   30,
						Usage:   "Retention in days",
					},
				},
				Action: func(_ context.Context, c *cli.Command) error {
					days := c.Int("days")
					if days < 1 {
						return fmt.Errorf("days must be positive, got %d", days)
					}
					d, err := setup(true)
					if err != nil {
						return err
					}
					deleted, err := scheduler(d).Prune(time.Duration(days) * 24 * time.Hour)
					if err != nil {
						return fmt.Errorf("failed to prune workflows: %w", err)
					}
					d.logger.Info("Workflows pruned", zap.Int64("deleted", deleted), zap.Int64("days", days))
					return nil
				},
			},
		},
	}

	return app.Run(context.Background(), os.Args)
}

// setup 加载配置并连接数据库，withRedis 时同时连接 Redis
func setup(withRedis bool) (*deps, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	zl, err := logger.New(cfg.Log, cfg.App)
	if err != nil {
		return nil, err
	}

	db, err := database.Open(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	d := &deps{cfg: cfg, db: db, logger: zl}
	if withRedis {
		d.redis, err = database.NewRedis(&cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to connect redis: %w", err)
		}
	}
	return d, nil
}

func reindex(ctx context.Context, d *deps) error {
	var ossClient *oss.Client
	if d.cfg.Search.Backend == "oss" {
		client, err := oss.NewClient(&d.cfg.OSS)
		if err != nil {
			return err
		}
		ossClient = client
	}

	store, err := kv.New(d.cfg.Search.Backend, d.redis, ossClient)
	if err != nil {
		return err
	}

	searchService := service.NewSearchService(
		search.NewStore(store, d.cfg.Search.IndexKey, d.cfg.Search.MetaKey, d.logger),
		repository.NewPostRepository(d.db),
		d.logger,
	)

	n, err := searchService.Reindex(ctx)
	if err != nil {
		return fmt.Errorf("failed to rebuild search index: %w", err)
	}
	d.logger.Info("Search index rebuilt", zap.Int("documents", n))
	return nil
}

func scheduler(d *deps) *cron.Scheduler {
	return cron.NewScheduler(
		repository.NewWorkflowRepository(d.db),
		queue.NewQueue(d.redis, d.cfg.Queue.WorkflowQueue),
		d.cfg.Workflow,
		d.logger,
	)
}
