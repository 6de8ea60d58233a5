package api

import (
	"net/http"
	"strconv"
	"time"

	"taskmanager/internal/api/middleware"
	"taskmanager/internal/api/respond"
	"taskmanager/internal/model"
	"taskmanager/internal/pkg/metrics"
	"taskmanager/internal/service"

	"github.com/gin-gonic/gin"
)

// listTasksRequest 任务列表的查询参数。
type listTasksRequest struct {
	Shared   string `form:"shared" binding:"omitempty,oneof=true false 1 0"`
	Status   string `form:"status" binding:"omitempty,oneof=incomplete complete"`
	Priority string `form:"priority" binding:"omitempty,oneof=low medium high"`
	Category string `form:"category" binding:"omitempty,oneof=Frontend Backend Documentation Database Testing Deployment General"`
	FromDate string `form:"from_date" binding:"omitempty,datetime=2006-01-02"`
	ToDate   string `form:"to_date" binding:"omitempty,datetime=2006-01-02"`
	Page     int    `form:"page"`
	Limit    int    `form:"limit"`
}

type createTaskRequest struct {
	Title     string `json:"title" binding:"required,max=255"`
	Category  string `json:"category" binding:"required,oneof=Frontend Backend Documentation Database Testing Deployment General"`
	Priority  string `json:"priority" binding:"required,oneof=low medium high"`
	Status    string `json:"status" binding:"omitempty,oneof=incomplete complete"`
	SortOrder int    `json:"sort_order"`
}

type updateTaskRequest struct {
	Title     string `json:"title" binding:"required,max=255"`
	Category  string `json:"category" binding:"required,oneof=Frontend Backend Documentation Database Testing Deployment General"`
	Priority  string `json:"priority" binding:"required,oneof=low medium high"`
	Status    string `json:"status" binding:"required,oneof=incomplete complete"`
	SortOrder int    `json:"sort_order"`
}

type shareTasksRequest struct {
	Tasks    []uint `json:"tasks" binding:"required,min=1"`
	Username string `json:"username" binding:"required,max=50"`
}

type taskOwnerView struct {
	ID       uint   `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// taskResponse 任务的对外表示。canDelete/canShare 只对任务所有者为 true。
type taskResponse struct {
	ID        uint          `json:"id"`
	Title     string        `json:"title"`
	Category  string        `json:"category"`
	Priority  string        `json:"priority"`
	Status    string        `json:"status"`
	SortOrder int           `json:"sort_order"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	CanDelete bool          `json:"canDelete"`
	CanShare  bool          `json:"canShare"`
	User      taskOwnerView `json:"user"`
}

func toTaskResponse(t *model.Task, viewerID uint) taskResponse {
	owned := t.UserID == viewerID
	return taskResponse{
		ID:        t.ID,
		Title:     t.Title,
		Category:  string(t.Category),
		Priority:  string(t.Priority),
		Status:    string(t.Status),
		SortOrder: t.SortOrder,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
		CanDelete: owned,
		CanShare:  owned,
		User: taskOwnerView{
			ID:       t.User.ID,
			Name:     t.User.Name,
			Username: t.User.Username,
			Email:    t.User.Email,
		},
	}
}

// handleListTasks 返回过滤分页后的任务列表。
//
// GET /api/v1/tasks?shared=true&status=incomplete&priority=high&category=Backend&from_date=2025-01-01&to_date=2025-01-31&page=1&limit=20
func (s *Server) handleListTasks(c *gin.Context) {
	var req listTasksRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		respond.BindingError(c, err)
		return
	}

	filters := service.TaskFilters{
		Shared:   req.Shared == "true" || req.Shared == "1",
		Status:   req.Status,
		Priority: req.Priority,
		Category: req.Category,
		Page:     req.Page,
		Limit:    req.Limit,
	}
	if req.FromDate != "" {
		from, _ := time.Parse("2006-01-02", req.FromDate)
		filters.FromDate = &from
	}
	if req.ToDate != "" {
		to, _ := time.Parse("2006-01-02", req.ToDate)
		if filters.FromDate != nil && to.Before(*filters.FromDate) {
			respond.ValidationFailed(c, map[string][]string{
				"to_date": {"The to date must be a date after or equal to from date."},
			})
			return
		}
		// 包含 to_date 当天
		end := to.Add(24*time.Hour - time.Nanosecond)
		filters.ToDate = &end
	}

	userID := middleware.CurrentUserID(c)
	page, err := s.tasks.List(c.Request.Context(), userID, filters)
	if err != nil {
		respond.HandleError(c, s.logger, "tasks.List", err)
		return
	}

	views := make([]taskResponse, 0, len(page.Tasks))
	for i := range page.Tasks {
		views = append(views, toTaskResponse(&page.Tasks[i], userID))
	}
	respond.SuccessWithData(c, gin.H{"tasks": views, "meta": page.Meta}, "Tasks fetched successfully")
}

// handleCreateTask 创建任务。新任务一律以 incomplete 状态落库。
//
// POST /api/v1/tasks
func (s *Server) handleCreateTask(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BindingError(c, err)
		return
	}

	userID := middleware.CurrentUserID(c)
	task, err := s.tasks.Create(c.Request.Context(), userID, service.TaskInput{
		Title:     req.Title,
		Category:  model.TaskCategory(req.Category),
		Priority:  model.TaskPriority(req.Priority),
		Status:    model.TaskStatus(req.Status),
		SortOrder: req.SortOrder,
	})
	if err != nil {
		respond.HandleError(c, s.logger, "tasks.Create", err)
		return
	}

	if metrics.TaskCreatedTotal != nil {
		metrics.TaskCreatedTotal.Inc()
	}
	view := toTaskResponse(task, userID)
	c.JSON(http.StatusCreated, gin.H{
		"result":  true,
		"status":  "success",
		"message": "Task created successfully",
		"data":    view,
	})
}

// handleGetTask 返回单个任务详情，所有者或被分享者可见。
//
// GET /api/v1/tasks/:id
func (s *Server) handleGetTask(c *gin.Context) {
	taskID, ok := parseTaskID(c)
	if !ok {
		return
	}

	userID := middleware.CurrentUserID(c)
	task, err := s.tasks.Get(c.Request.Context(), userID, taskID)
	if err != nil {
		respond.HandleError(c, s.logger, "tasks.Get", err)
		return
	}

	respond.SuccessWithData(c, toTaskResponse(task, userID), "Task fetched successfully")
}

// handleUpdateTask 更新任务，仅所有者可操作。
//
// PUT /api/v1/tasks/:id
func (s *Server) handleUpdateTask(c *gin.Context) {
	taskID, ok := parseTaskID(c)
	if !ok {
		return
	}

	var req updateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BindingError(c, err)
		return
	}

	userID := middleware.CurrentUserID(c)
	task, err := s.tasks.Update(c.Request.Context(), userID, taskID, service.TaskInput{
		Title:     req.Title,
		Category:  model.TaskCategory(req.Category),
		Priority:  model.TaskPriority(req.Priority),
		Status:    model.TaskStatus(req.Status),
		SortOrder: req.SortOrder,
	})
	if err != nil {
		respond.HandleError(c, s.logger, "tasks.Update", err)
		return
	}

	respond.SuccessWithData(c, toTaskResponse(task, userID), "Task updated successfully")
}

// handleShareTasks 将任务批量分享给指定用户。
//
// POST /api/v1/tasks/share
func (s *Server) handleShareTasks(c *gin.Context) {
	var req shareTasksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BindingError(c, err)
		return
	}

	shared, err := s.tasks.Share(c.Request.Context(), middleware.CurrentUserID(c), req.Tasks, req.Username)
	if err != nil {
		respond.HandleError(c, s.logger, "tasks.Share", err)
		return
	}

	if metrics.TaskSharedTotal != nil && shared > 0 {
		metrics.TaskSharedTotal.Add(float64(shared))
	}
	respond.Success(c, "Tasks shared successfully")
}

// handleDeleteTask 删除任务并清理分享记录，仅所有者可操作。
//
// DELETE /api/v1/tasks/:id
func (s *Server) handleDeleteTask(c *gin.Context) {
	taskID, ok := parseTaskID(c)
	if !ok {
		return
	}

	err := s.tasks.Delete(c.Request.Context(), middleware.CurrentUserID(c), taskID)
	if err != nil {
		respond.HandleError(c, s.logger, "tasks.Delete", err)
		return
	}

	respond.Success(c, "Task deleted successfully")
}

// parseTaskID 解析路径里的任务 ID，非法时直接写 404 响应。
func parseTaskID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		respond.Error(c, http.StatusNotFound, "Resource not found.")
		return 0, false
	}
	return uint(id), true
}
