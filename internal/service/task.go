package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"taskmanager/internal/apperr"
	"taskmanager/internal/model"

	"gorm.io/gorm"
)

// MaxPageSize 是列表接口单页上限。超过的请求会被静默钳到该值，
// 不报错。
const MaxPageSize = 20

// TaskFilters 列表过滤条件，全部按 AND 组合。
type TaskFilters struct {
	Shared   bool       // true 时只看共享给自己的任务
	Status   string     // incomplete / complete
	Priority string     // low / medium / high
	Category string     // Frontend / Backend / ...
	FromDate *time.Time // 创建时间下界（含）
	ToDate   *time.Time // 创建时间上界（含）
	Page     int        // 页码，默认 1
	Limit    int        // 每页条数，默认与上限都是 MaxPageSize
}

// PageMeta 分页元数据。
type PageMeta struct {
	CurrentPage int   `json:"current_page"`
	PerPage     int   `json:"per_page"`
	Total       int64 `json:"total"`
	LastPage    int   `json:"last_page"`
}

// TaskPage 一页任务与分页信息。
type TaskPage struct {
	Tasks []model.Task
	Meta  PageMeta
}

// TaskInput 创建/更新任务的参数。
type TaskInput struct {
	Title     string
	Category  model.TaskCategory
	Priority  model.TaskPriority
	Status    model.TaskStatus
	SortOrder int
}

// TaskService 实现任务的查询、共享与增删改。
//
// 所有方法都显式接收调用方身份。
type TaskService struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewTaskService 创建 TaskService。
func NewTaskService(db *gorm.DB, logger *slog.Logger) *TaskService {
	return &TaskService{db: db, logger: logger}
}

// sharedTaskIDs 返回共享给 viewer 的任务 ID 子查询。
func (s *TaskService) sharedTaskIDs(viewerID uint) *gorm.DB {
	return s.db.Model(&model.SharedTask{}).Select("task_id").Where("shared_with = ?", viewerID)
}

// List 返回 viewer 可见的任务分页。
//
// 基础集合是自有任务与被共享任务的并集；Shared 为 true 时只取
// 被共享的部分。排序固定为创建时间倒序。
func (s *TaskService) List(ctx context.Context, viewerID uint, f TaskFilters) (*TaskPage, error) {
	visible := func(db *gorm.DB) *gorm.DB {
		if f.Shared {
			return db.Where("id IN (?)", s.sharedTaskIDs(viewerID))
		}
		return db.Where("user_id = ? OR id IN (?)", viewerID, s.sharedTaskIDs(viewerID))
	}
	filtered := func(db *gorm.DB) *gorm.DB {
		db = visible(db)
		if f.Status != "" {
			db = db.Where("status = ?", f.Status)
		}
		if f.Priority != "" {
			db = db.Where("priority = ?", f.Priority)
		}
		if f.Category != "" {
			db = db.Where("category = ?", f.Category)
		}
		if f.FromDate != nil {
			db = db.Where("created_at >= ?", *f.FromDate)
		}
		if f.ToDate != nil {
			db = db.Where("created_at <= ?", *f.ToDate)
		}
		return db
	}

	var total int64
	if err := filtered(s.db.WithContext(ctx).Model(&model.Task{})).Count(&total).Error; err != nil {
		s.logger.Error("count tasks failed", slog.String("error", err.Error()))
		return nil, fmt.Errorf("count tasks: %w", err)
	}

	limit := clampLimit(f.Limit)
	page := f.Page
	if page < 1 {
		page = 1
	}

	tasks := []model.Task{}
	err := filtered(s.db.WithContext(ctx).Model(&model.Task{})).
		Preload("User").
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&tasks).Error
	if err != nil {
		s.logger.Error("list tasks failed", slog.String("error", err.Error()))
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	return &TaskPage{
		Tasks: tasks,
		Meta: PageMeta{
			CurrentPage: page,
			PerPage:     limit,
			Total:       total,
			LastPage:    lastPage(total, limit),
		},
	}, nil
}

// Create 为 owner 创建任务。状态一律从 incomplete 开始，
// 请求里带的状态会被忽略。
func (s *TaskService) Create(ctx context.Context, ownerID uint, in TaskInput) (*model.Task, error) {
	task := model.Task{
		UserID:    ownerID,
		Title:     in.Title,
		Category:  in.Category,
		Priority:  in.Priority,
		Status:    model.StatusIncomplete,
		SortOrder: in.SortOrder,
	}
	if err := s.db.WithContext(ctx).Create(&task).Error; err != nil {
		s.logger.Error("create task failed", slog.String("error", err.Error()))
		return nil, fmt.Errorf("create task: %w", err)
	}
	return s.load(ctx, task.ID)
}

// Get 返回单个任务。owner 或共享接收方可见，其他人 403。
func (s *TaskService) Get(ctx context.Context, viewerID, taskID uint) (*model.Task, error) {
	task, err := s.load(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.UserID != viewerID {
		var count int64
		if err := s.db.WithContext(ctx).Model(&model.SharedTask{}).
			Where("task_id = ? AND shared_with = ?", taskID, viewerID).
			Count(&count).Error; err != nil {
			return nil, fmt.Errorf("query share grant: %w", err)
		}
		if count == 0 {
			return nil, apperr.Forbidden("You are not authorized to view this task.")
		}
	}
	return task, nil
}

// Update 由 owner 更新任务字段。所属用户不可变更。
func (s *TaskService) Update(ctx context.Context, callerID, taskID uint, in TaskInput) (*model.Task, error) {
	task, err := s.load(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.UserID != callerID {
		return nil, apperr.Forbidden("You are not authorized to update this task.")
	}

	updates := map[string]interface{}{
		"title":      in.Title,
		"category":   in.Category,
		"priority":   in.Priority,
		"status":     in.Status,
		"sort_order": in.SortOrder,
	}
	if err := s.db.WithContext(ctx).Model(&model.Task{}).Where("id = ?", taskID).Updates(updates).Error; err != nil {
		s.logger.Error("update task failed", slog.Uint64("task_id", uint64(taskID)), slog.String("error", err.Error()))
		return nil, fmt.Errorf("update task: %w", err)
	}
	return s.load(ctx, taskID)
}

// Share 把一批任务共享给 username 指定的用户。
//
// 只有调用方自己拥有的任务会生成授权记录；同一 (任务, 接收方)
// 重复共享是幂等的。整个批次在一个事务里执行。
func (s *TaskService) Share(ctx context.Context, ownerID uint, taskIDs []uint, username string) (int, error) {
	var recipient model.User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&recipient).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, apperr.NotFound("Username not found.")
		}
		return 0, fmt.Errorf("query user: %w", err)
	}
	if recipient.ID == ownerID {
		return 0, apperr.BadRequest("You cannot share your task with yourself.")
	}

	ids := make([]uint, 0, len(taskIDs))
	for _, id := range taskIDs {
		if id != 0 {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}

	granted := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ownedIDs []uint
		if err := tx.Model(&model.Task{}).
			Where("id IN ? AND user_id = ?", ids, ownerID).
			Pluck("id", &ownedIDs).Error; err != nil {
			return err
		}

		for _, id := range ownedIDs {
			grant := model.SharedTask{TaskID: id, SharedWith: recipient.ID}
			res := tx.Where(&grant).
				Attrs(model.SharedTask{SharedBy: ownerID}).
				FirstOrCreate(&grant)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected > 0 {
				granted++
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Error("share tasks failed", slog.String("username", username), slog.String("error", err.Error()))
		return 0, fmt.Errorf("share tasks: %w", err)
	}

	s.logger.Info("tasks shared",
		slog.Uint64("owner_id", uint64(ownerID)),
		slog.String("username", username),
		slog.Int("granted", granted),
	)
	return granted, nil
}

// Delete 由 owner 删除任务，任务的共享授权在同一事务里一并清理。
func (s *TaskService) Delete(ctx context.Context, callerID, taskID uint) error {
	task, err := s.load(ctx, taskID)
	if err != nil {
		return err
	}
	if task.UserID != callerID {
		return apperr.Forbidden("You are not authorized to delete this task.")
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("task_id = ?", taskID).Delete(&model.SharedTask{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Task{}, taskID).Error
	})
	if err != nil {
		s.logger.Error("delete task failed", slog.Uint64("task_id", uint64(taskID)), slog.String("error", err.Error()))
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

func (s *TaskService) load(ctx context.Context, taskID uint) (*model.Task, error) {
	var task model.Task
	if err := s.db.WithContext(ctx).Preload("User").First(&task, taskID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("Resource not found.")
		}
		return nil, fmt.Errorf("query task: %w", err)
	}
	return &task, nil
}

// clampLimit 把请求的每页条数钳到 [1, MaxPageSize]，缺省取上限。
func clampLimit(limit int) int {
	if limit <= 0 || limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}

// lastPage 计算最后一页页码，至少为 1。
func lastPage(total int64, perPage int) int {
	if total <= 0 {
		return 1
	}
	pages := int((total + int64(perPage) - 1) / int64(perPage))
	if pages < 1 {
		return 1
	}
	return pages
}
