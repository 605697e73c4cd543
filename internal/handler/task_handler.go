package handler

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"taskmanager/internal/filter"
	"taskmanager/internal/repository"
	"taskmanager/internal/service"
	"taskmanager/pkg/logger"
)

type TaskHandler struct {
	tasks     *service.TaskService
	paginator Paginator
	logger    *zap.Logger
}

func NewTaskHandler(tasks *service.TaskService, paginator Paginator, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{tasks: tasks, paginator: paginator, logger: logger}
}

// taskRequest is the writable task payload. owner, created_at and completed_at are ignored if sent.
type taskRequest struct {
	Title        *string                  `json:"title" binding:"omitempty,max=200"`
	Description  *string                  `json:"description"`
	Status       *string                  `json:"status" binding:"omitempty,oneof=todo in_progress completed"`
	Priority     *string                  `json:"priority" binding:"omitempty,oneof=low medium high"`
	DueDate      service.Nullable[string] `json:"due_date"`
	AssignedToID service.Nullable[int64]  `json:"assigned_to_id"`
	CategoryIDs  *[]int64                 `json:"category_ids"`
	TagIDs       *[]int64                 `json:"tag_ids"`
}

func (r taskRequest) input() service.TaskInput {
	return service.TaskInput{
		Title:        r.Title,
		Description:  r.Description,
		Status:       r.Status,
		Priority:     r.Priority,
		DueDate:      r.DueDate,
		AssignedToID: r.AssignedToID,
		CategoryIDs:  r.CategoryIDs,
		TagIDs:       r.TagIDs,
	}
}

type assignRequest struct {
	UserID json.RawMessage `json:"user_id"`
}

// List handles GET /api/tasks
func (h *TaskHandler) List(c *gin.Context) {
	h.list(c, repository.ScopeVisible)
}

// MyTasks handles GET /api/tasks/my_tasks
func (h *TaskHandler) MyTasks(c *gin.Context) {
	h.list(c, repository.ScopeOwned)
}

// AssignedToMe handles GET /api/tasks/assigned_to_me
func (h *TaskHandler) AssignedToMe(c *gin.Context) {
	h.list(c, repository.ScopeAssigned)
}

func (h *TaskHandler) list(c *gin.Context, scope repository.TaskScope) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	q, err := filter.ParseTaskQuery(c.Request.URL.Query())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	req, page, err := h.paginator.parse(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	res, err := h.tasks.List(c.Request.Context(), userID, scope, q, page)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	body, err := wrap(c, req, res.Total, mapSlice(res.Items, newTaskSummaryResponse))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, body)
}

// Get handles GET /api/tasks/:id
func (h *TaskHandler) Get(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	taskID, ok := pathID(c)
	if !ok {
		return
	}

	detail, err := h.tasks.Get(c.Request.Context(), userID, taskID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, newTaskResponse(c, detail))
}

// Create handles POST /api/tasks
func (h *TaskHandler) Create(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	var req taskRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, err)
		return
	}

	detail, err := h.tasks.Create(c.Request.Context(), userID, req.input())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, newTaskResponse(c, detail))
}

// Update handles PUT /api/tasks/:id
func (h *TaskHandler) Update(c *gin.Context) {
	h.update(c, false)
}

// PartialUpdate handles PATCH /api/tasks/:id
func (h *TaskHandler) PartialUpdate(c *gin.Context) {
	h.update(c, true)
}

func (h *TaskHandler) update(c *gin.Context, partial bool) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	taskID, ok := pathID(c)
	if !ok {
		return
	}

	var req taskRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, err)
		return
	}

	detail, err := h.tasks.Update(c.Request.Context(), userID, taskID, req.input(), partial)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, newTaskResponse(c, detail))
}

// Delete handles DELETE /api/tasks/:id
func (h *TaskHandler) Delete(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	taskID, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.tasks.Delete(c.Request.Context(), userID, taskID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Complete handles POST /api/tasks/:id/complete
func (h *TaskHandler) Complete(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	taskID, ok := pathID(c)
	if !ok {
		return
	}

	detail, err := h.tasks.Complete(c.Request.Context(), userID, taskID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, newTaskResponse(c, detail))
}

// Assign handles POST /api/tasks/:id/assign
func (h *TaskHandler) Assign(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	taskID, ok := pathID(c)
	if !ok {
		return
	}

	var req assignRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, err)
		return
	}

	detail, err := h.tasks.Assign(c.Request.Context(), userID, taskID, rawScalar(req.UserID))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	logger.WithTrace(c.Request.Context(), h.logger).Debug("Assign request served",
		zap.Int64("task_id", taskID),
		zap.Int64("user_id", userID),
	)
	c.JSON(http.StatusOK, newTaskResponse(c, detail))
}

// rawScalar renders a JSON scalar as text: strings are unquoted, null and absent become "".
func rawScalar(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return string(raw)
}
