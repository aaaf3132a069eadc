package worker

import (
	"context"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/qs3c/inkpress/internal/pkg/queue"
)

// MessageSource 阻塞式消息来源
type MessageSource interface {
	Name() string
	Pop(ctx context.Context, timeout time.Duration) (*queue.Message, error)
}

// Pool 从一个队列消费消息的一组 worker
type Pool struct {
	source     MessageSource
	processor  *Processor
	workers    int
	popTimeout time.Duration
	logger     *zap.Logger
}

func NewPool(source MessageSource, processor *Processor, workers int, popTimeout time.Duration, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if popTimeout <= 0 {
		popTimeout = 5 * time.Second
	}
	return &Pool{
		source:     source,
		processor:  processor,
		workers:    workers,
		popTimeout: popTimeout,
		logger:     logger.With(zap.String("queue", source.Name())),
	}
}

// Run 启动 worker 并阻塞到 ctx 取消
func (p *Pool) Run(ctx context.Context) error {
	wp := pool.New().WithContext(ctx)
	for i := range p.workers {
		wp.Go(func(ctx context.Context) error {
			p.loop(ctx, i)
			return nil
		})
	}
	p.logger.Info("Worker pool started", zap.Int("workers", p.workers))
	return wp.Wait()
}

func (p *Pool) loop(ctx context.Context, workerID int) {
	log := p.logger.With(zap.Int("worker", workerID))
	for {
		select {
		case <-ctx.Done():
			log.Debug("Worker shutting down")
			return
		default:
		}

		msg, err := p.source.Pop(ctx, p.popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("Failed to pop message", zap.Error(err))
			// 避免 Redis 不可用时空转
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if msg == nil {
			continue // 超时，继续等待
		}

		start := time.Now()
		if err := p.processor.Process(ctx, msg); err != nil {
			log.Error("Failed to process message",
				zap.String("type", msg.Type),
				zap.Duration("elapsed", time.Since(start)),
				zap.Error(err))
			continue
		}
		log.Debug("Message processed",
			zap.String("type", msg.Type),
			zap.Duration("elapsed", time.Since(start)))
	}
}
