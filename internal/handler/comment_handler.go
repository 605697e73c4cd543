package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"taskmanager/internal/apperr"
	"taskmanager/internal/service"
)

type CommentHandler struct {
	comments  *service.CommentService
	paginator Paginator
	logger    *zap.Logger
}

func NewCommentHandler(comments *service.CommentService, paginator Paginator, logger *zap.Logger) *CommentHandler {
	return &CommentHandler{comments: comments, paginator: paginator, logger: logger}
}

type commentRequest struct {
	Task    *int64  `json:"task" binding:"omitempty,gt=0"`
	Content *string `json:"content"`
}

// taskIDQuery reads the optional task_id filter shared by comment and attachment listings.
func taskIDQuery(c *gin.Context) (*int64, error) {
	v := strings.TrimSpace(c.Query("task_id"))
	if v == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, apperr.Invalid("task_id", "Enter a whole number.")
	}
	return &id, nil
}

// List handles GET /api/comments
func (h *CommentHandler) List(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	taskID, err := taskIDQuery(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	req, page, err := h.paginator.parse(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	res, err := h.comments.List(c.Request.Context(), userID, taskID, page)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	body, err := wrap(c, req, res.Total, mapSlice(res.Items, newCommentResponse))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, body)
}

// Get handles GET /api/comments/:id
func (h *CommentHandler) Get(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	comment, err := h.comments.Get(c.Request.Context(), userID, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, newCommentResponse(comment))
}

// Create handles POST /api/comments
func (h *CommentHandler) Create(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	var req commentRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, err)
		return
	}

	comment, err := h.comments.Create(c.Request.Context(), userID, service.CommentInput{TaskID: req.Task, Content: req.Content})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, newCommentResponse(comment))
}

// Update handles PUT /api/comments/:id
func (h *CommentHandler) Update(c *gin.Context) { h.update(c, false) }

// PartialUpdate handles PATCH /api/comments/:id
func (h *CommentHandler) PartialUpdate(c *gin.Context) { h.update(c, true) }

func (h *CommentHandler) update(c *gin.Context, partial bool) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req commentRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, err)
		return
	}

	comment, err := h.comments.Update(c.Request.Context(), userID, id,
		service.CommentInput{TaskID: req.Task, Content: req.Content}, partial)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, newCommentResponse(comment))
}

// Delete handles DELETE /api/comments/:id
func (h *CommentHandler) Delete(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.comments.Delete(c.Request.Context(), userID, id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
