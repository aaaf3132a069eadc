// Package workflow 提供持久化的分步工作流执行：每个命名步骤完成后落库，
// 重新执行同一实例时跳过已完成的步骤，从第一个未完成的步骤继续。
package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/qs3c/inkpress/internal/model"
)

// Store 工作流状态存储
type Store interface {
	FindInstance(id string) (*model.WorkflowInstance, error)
	CreateInstance(inst *model.WorkflowInstance) error
	MarkRunning(id string) error
	Finish(id, status, errMsg string) error
	ListSteps(instanceID string) ([]*model.WorkflowStep, error)
	SaveStep(step *model.WorkflowStep) error
}

// Body 工作流主体
type Body func(ctx context.Context, run *Run) error

type Engine struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

func NewEngine(store Store, logger *zap.Logger) *Engine {
	return &Engine{
		store:  store,
		logger: logger.Named("workflow"),
		now:    time.Now,
	}
}

// Execute 执行（或恢复）一个工作流实例。已完成的实例直接返回。
func (e *Engine) Execute(ctx context.Context, name, instanceID string, params any, body Body) error {
	inst, err := e.store.FindInstance(instanceID)
	if err != nil {
		return fmt.Errorf("failed to load workflow instance: %w", err)
	}

	if inst == nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("failed to marshal workflow params: %w", err)
		}
		inst = &model.WorkflowInstance{
			ID:     instanceID,
			Name:   name,
			Params: string(raw),
			Status: model.WorkflowStatusRunning,
		}
		if err := e.store.CreateInstance(inst); err != nil {
			return fmt.Errorf("failed to create workflow instance: %w", err)
		}
	} else if inst.Status == model.WorkflowStatusCompleted {
		e.logger.Debug("Workflow instance already completed",
			zap.String("instanceID", instanceID),
			zap.String("workflow", name))
		return nil
	}

	if err := e.store.MarkRunning(instanceID); err != nil {
		return fmt.Errorf("failed to mark workflow running: %w", err)
	}

	steps, err := e.store.ListSteps(instanceID)
	if err != nil {
		return fmt.Errorf("failed to load workflow steps: %w", err)
	}

	run := &Run{
		engine:     e,
		instanceID: instanceID,
		name:       name,
		params:     []byte(inst.Params),
		completed:  make(map[string][]byte, len(steps)),
		logger:     e.logger.With(zap.String("workflow", name), zap.String("instanceID", instanceID)),
	}
	for _, s := range steps {
		run.completed[s.Name] = []byte(s.Output)
	}
	if len(steps) > 0 {
		run.logger.Info("Resuming workflow instance", zap.Int("completedSteps", len(steps)))
	}

	if err := body(ctx, run); err != nil {
		run.logger.Error("Workflow instance failed", zap.Error(err))
		if ferr := e.store.Finish(instanceID, model.WorkflowStatusFailed, err.Error()); ferr != nil {
			run.logger.Error("Failed to record workflow failure", zap.Error(ferr))
		}
		return err
	}

	if err := e.store.Finish(instanceID, model.WorkflowStatusCompleted, ""); err != nil {
		return fmt.Errorf("failed to mark workflow completed: %w", err)
	}
	run.logger.Debug("Workflow instance completed")
	return nil
}

// Run 单次执行的上下文
type Run struct {
	engine     *Engine
	instanceID string
	name       string
	params     []byte
	completed  map[string][]byte
	logger     *zap.Logger
}

func (r *Run) InstanceID() string {
	return r.instanceID
}

func (r *Run) Logger() *zap.Logger {
	return r.logger
}

// Params 解析实例参数
func (r *Run) Params(v any) error {
	if err := json.Unmarshal(r.params, v); err != nil {
		return fmt.Errorf("failed to decode workflow params: %w", err)
	}
	return nil
}

// Completed 步骤是否已有持久化结果
func (r *Run) Completed(step string) bool {
	_, ok := r.completed[step]
	return ok
}

func (r *Run) record(step string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal output of step %q: %w", step, err)
	}
	if err := r.engine.store.SaveStep(&model.WorkflowStep{
		InstanceID:  r.instanceID,
		Name:        step,
		Output:      string(raw),
		CompletedAt: r.engine.now(),
	}); err != nil {
		return fmt.Errorf("failed to save step %q: %w", step, err)
	}
	r.completed[step] = raw
	return nil
}
