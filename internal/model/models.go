package model

import "time"

// TaskCategory 任务分类。
type TaskCategory string

const (
	CategoryFrontend      TaskCategory = "Frontend"
	CategoryBackend       TaskCategory = "Backend"
	CategoryDocumentation TaskCategory = "Documentation"
	CategoryDatabase      TaskCategory = "Database"
	CategoryTesting       TaskCategory = "Testing"
	CategoryDeployment    TaskCategory = "Deployment"
	CategoryGeneral       TaskCategory = "General"
)

// TaskPriority 任务优先级。
type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
)

// TaskStatus 任务状态。
type TaskStatus string

const (
	StatusIncomplete TaskStatus = "incomplete"
	StatusComplete   TaskStatus = "complete"
)

// Task 表示一条用户任务。
//
// UserID 创建后不可变；新建任务的状态一律为 incomplete，
// 无论请求里传了什么。
type Task struct {
	ID        uint      `gorm:"primaryKey"` // 任务唯一标识
	CreatedAt time.Time // 创建时间
	UpdatedAt time.Time // 更新时间

	UserID uint `gorm:"not null;index"` // 所属用户 ID
	User   User `gorm:"foreignKey:UserID"`

	Title     string       `gorm:"type:varchar(255);not null"`          // 任务标题
	Category  TaskCategory `gorm:"type:varchar(32);not null"`           // 分类
	Priority  TaskPriority `gorm:"type:varchar(16);not null"`           // 优先级: low / medium / high
	Status    TaskStatus   `gorm:"type:varchar(16);default:incomplete"` // 状态: incomplete / complete
	SortOrder int          `gorm:"default:0"`                           // 前端展示排序

	SharedTasks []SharedTask `gorm:"foreignKey:TaskID"`
}

// SharedTask 是任务共享授权记录。
//
// (TaskID, SharedWith) 上有唯一索引，重复共享同一任务给同一用户
// 是幂等操作，不会产生第二条记录。
type SharedTask struct {
	ID         uint      `gorm:"primaryKey"`
	TaskID     uint      `gorm:"not null;uniqueIndex:idx_task_recipient"` // 被共享的任务 ID
	SharedWith uint      `gorm:"not null;uniqueIndex:idx_task_recipient"` // 接收方用户 ID
	SharedBy   uint      `gorm:"not null"`                                // 授权方用户 ID
	CreatedAt  time.Time // 共享时间
}
