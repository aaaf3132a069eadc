package cron

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/qs3c/inkpress/config"
	"github.com/qs3c/inkpress/internal/model"
)

const sweepBatch = 100

// WorkflowStore 扫描所需的工作流存储
type WorkflowStore interface {
	ListStale(before time.Time, maxAttempts, limit int) ([]*model.WorkflowInstance, error)
	Touch(id string) error
	DeleteCompletedBefore(before time.Time) (int64, error)
}

// Enqueuer 工作流队列
type Enqueuer interface {
	EnqueueWorkflow(ctx context.Context, msgType, instanceID string, params interface{}) error
}

// Scheduler 定时任务：重新投递停滞的工作流，每日清理已完成的历史实例
type Scheduler struct {
	store     WorkflowStore
	queue     Enqueuer
	cfg       config.WorkflowConfig
	retention time.Duration
	logger    *zap.Logger
	now       func() time.Time

	stopOnce sync.Once
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewScheduler(store WorkflowStore, queue Enqueuer, cfg config.WorkflowConfig, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		store:     store,
		queue:     queue,
		cfg:       cfg,
		retention: 30 * 24 * time.Hour,
		logger:    logger.Named("cron"),
		now:       time.Now,
		stopChan:  make(chan struct{}),
	}
}

// Start 启动定时任务
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(2)
	go s.runSweep(ctx)
	go s.runDailyPrune(ctx)
	s.logger.Info("Scheduler started",
		zap.Duration("sweepInterval", s.sweepInterval()),
		zap.Duration("staleAfter", s.cfg.StaleAfter))
}

// Stop 停止定时任务并等待退出
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) sweepInterval() time.Duration {
	if s.cfg.SweepInterval <= 0 {
		return time.Minute
	}
	return s.cfg.SweepInterval
}

func (s *Scheduler) runSweep(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.sweepInterval())
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep 重新投递停滞的实例（沿用原实例 ID，从第一个未完成的步骤继续），返回投递数量
func (s *Scheduler) Sweep(ctx context.Context) int {
	before := s.now().Add(-s.cfg.StaleAfter)
	instances, err := s.store.ListStale(before, s.cfg.MaxAttempts, sweepBatch)
	if err != nil {
		s.logger.Error("Failed to list stale workflows", zap.Error(err))
		return 0
	}

	requeued := 0
	for _, inst := range instances {
		params := json.RawMessage(inst.Params)
		if len(params) == 0 {
			params = json.RawMessage("null")
		}
		if err := s.queue.EnqueueWorkflow(ctx, inst.Name, inst.ID, params); err != nil {
			s.logger.Error("Failed to requeue workflow",
				zap.String("instanceID", inst.ID), zap.Error(err))
			continue
		}
		if err := s.store.Touch(inst.ID); err != nil {
			s.logger.Warn("Failed to touch workflow", zap.String("instanceID", inst.ID), zap.Error(err))
		}
		requeued++
	}

	if requeued > 0 {
		s.logger.Info("Requeued stale workflows", zap.Int("count", requeued))
	}
	return requeued
}

// runDailyPrune 每日 UTC 零点清理
func (s *Scheduler) runDailyPrune(ctx context.Context) {
	defer s.wg.Done()

	now := s.now().UTC()
	nextMidnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	timer := time.NewTimer(nextMidnight.Sub(now))
	defer timer.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		case <-timer.C:
			s.Prune(s.retention)
			timer.Reset(24 * time.Hour)
		}
	}
}

// Prune 删除早于 retention 的已完成实例
func (s *Scheduler) Prune(retention time.Duration) (int64, error) {
	deleted, err := s.store.DeleteCompletedBefore(s.now().Add(-retention))
	if err != nil {
		s.logger.Error("Failed to prune workflows", zap.Error(err))
		return 0, err
	}
	if deleted > 0 {
		s.logger.Info("Pruned completed workflows", zap.Int64("count", deleted))
	}
	return deleted, nil
}
