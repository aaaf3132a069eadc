package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/qs3c/inkpress/internal/model"
)

type WorkflowRepository struct {
	db *gorm.DB
}

func NewWorkflowRepository(db *gorm.DB) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

// FindInstance 查询实例，不存在时返回 nil
func (r *WorkflowRepository) FindInstance(id string) (*model.WorkflowInstance, error) {
	var inst model.WorkflowInstance
	err := r.db.Where("id = ?", id).First(&inst).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &inst, nil
}

func (r *WorkflowRepository) CreateInstance(inst *model.WorkflowInstance) error {
	return r.db.Create(inst).Error
}

// MarkRunning 开始一次执行：状态置为 running，尝试次数 +1
func (r *WorkflowRepository) MarkRunning(id string) error {
	return r.db.Model(&model.WorkflowInstance{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":   model.WorkflowStatusRunning,
			"error":    "",
			"attempts": gorm.Expr("attempts + 1"),
		}).Error
}

// Finish 记录执行结果
func (r *WorkflowRepository) Finish(id, status, errMsg string) error {
	return r.db.Model(&model.WorkflowInstance{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"status": status,
			"error":  errMsg,
		}).Error
}

func (r *WorkflowRepository) ListSteps(instanceID string) ([]*model.WorkflowStep, error) {
	var steps []*model.WorkflowStep
	err := r.db.Where("instance_id = ?", instanceID).Order("id ASC").Find(&steps).Error
	return steps, err
}

// SaveStep 保存步骤输出，同名步骤已存在时保留先写入的结果
func (r *WorkflowRepository) SaveStep(step *model.WorkflowStep) error {
	return r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(step).Error
}

// ListStale 查找长时间未推进且仍可重试的实例
func (r *WorkflowRepository) ListStale(before time.Time, maxAttempts, limit int) ([]*model.WorkflowInstance, error) {
	var instances []*model.WorkflowInstance
	err := r.db.Where("status IN ? AND updated_at < ? AND attempts < ?",
		[]string{model.WorkflowStatusRunning, model.WorkflowStatusFailed}, before, maxAttempts).
		Order("updated_at ASC").
		Limit(limit).
		Find(&instances).Error
	return instances, err
}

// Touch 刷新 updated_at，避免被重复扫描
func (r *WorkflowRepository) Touch(id string) error {
	return r.db.Model(&model.WorkflowInstance{}).Where("id = ?", id).
		Update("updated_at", time.Now()).Error
}

// DeleteCompletedBefore 清理已完成的历史实例及其步骤
func (r *WorkflowRepository) DeleteCompletedBefore(before time.Time) (int64, error) {
	var deleted int64
	err := r.db.Transaction(func(tx *gorm.DB) error {
		sub := tx.Model(&model.WorkflowInstance{}).Select("id").
			Where("status = ? AND updated_at < ?", model.WorkflowStatusCompleted, before)
		if err := tx.Where("instance_id IN (?)", sub).Delete(&model.WorkflowStep{}).Error; err != nil {
			return err
		}
		result := tx.Where("status = ? AND updated_at < ?", model.WorkflowStatusCompleted, before).
			Delete(&model.WorkflowInstance{})
		deleted = result.RowsAffected
		return result.Error
	})
	return deleted, err
}
