package model

import (
	"time"
)

const (
	WorkflowStatusRunning   = "running"
	WorkflowStatusCompleted = "completed"
	WorkflowStatusFailed    = "failed"
)

// WorkflowInstance 持久化的工作流实例
type WorkflowInstance struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Name      string    `gorm:"size:50;not null;index" json:"name"`
	Params    string    `gorm:"type:text" json:"params"`
	Status    string    `gorm:"size:20;not null;index" json:"status"`
	Error     string    `gorm:"type:text" json:"error,omitempty"`
	Attempts  int       `gorm:"default:0" json:"attempts"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `gorm:"index" json:"updated_at"`
}

func (WorkflowInstance) TableName() string {
	return "workflow_instances"
}

// WorkflowStep 已完成步骤的输出
type WorkflowStep struct {
	ID          int64     `gorm:"primaryKey" json:"id"`
	InstanceID  string    `gorm:"size:36;not null;uniqueIndex:idx_instance_step" json:"instance_id"`
	Name        string    `gorm:"size:100;not null;uniqueIndex:idx_instance_step" json:"name"`
	Output      string    `gorm:"type:text" json:"output"`
	CompletedAt time.Time `json:"completed_at"`
}

func (WorkflowStep) TableName() string {
	return "workflow_steps"
}
