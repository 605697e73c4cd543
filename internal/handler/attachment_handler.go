package handler

import (
	"errors"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"taskmanager/internal/apperr"
	"taskmanager/internal/service"
	"taskmanager/pkg/logger"
)

type AttachmentHandler struct {
	attachments *service.AttachmentService
	paginator   Paginator
	logger      *zap.Logger
}

func NewAttachmentHandler(attachments *service.AttachmentService, paginator Paginator, logger *zap.Logger) *AttachmentHandler {
	return &AttachmentHandler{attachments: attachments, paginator: paginator, logger: logger}
}

// readInput accepts multipart/form-data (task, file) or a JSON body carrying only task.
// The returned cleanup closes the uploaded file.
func (h *AttachmentHandler) readInput(c *gin.Context) (service.AttachmentInput, func(), error) {
	noop := func() {}
	var in service.AttachmentInput

	if c.ContentType() == gin.MIMEJSON {
		var req struct {
			Task *int64 `json:"task" binding:"omitempty,gt=0"`
		}
		if err := bindJSON(c, &req); err != nil {
			return in, noop, err
		}
		in.TaskID = req.Task
		return in, noop, nil
	}

	if v := strings.TrimSpace(c.PostForm("task")); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return in, noop, apperr.Invalid("task", "Incorrect type. Expected pk value, received str.")
		}
		in.TaskID = &id
	}

	header, err := c.FormFile("file")
	switch {
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		return in, noop, nil
	case err != nil:
		return in, noop, apperr.BadRequest("Multipart form parse error - " + err.Error())
	}
	f, err := header.Open()
	if err != nil {
		return in, noop, err
	}
	in.File = &service.Upload{Filename: header.Filename, Body: f}
	return in, func() { _ = f.Close() }, nil
}

// List handles GET /api/attachments
func (h *AttachmentHandler) List(c *gin.Context) {
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

	res, err := h.attachments.List(c.Request.Context(), userID, taskID, page)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	items := make([]AttachmentResponse, 0, len(res.Items))
	for i := range res.Items {
		items = append(items, newAttachmentResponse(c, &res.Items[i]))
	}
	body, err := wrap(c, req, res.Total, items)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, body)
}

// Get handles GET /api/attachments/:id
func (h *AttachmentHandler) Get(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	a, err := h.attachments.Get(c.Request.Context(), userID, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, newAttachmentResponse(c, a))
}

// Create handles POST /api/attachments
func (h *AttachmentHandler) Create(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	in, cleanup, err := h.readInput(c)
	defer cleanup()
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	a, err := h.attachments.Create(c.Request.Context(), userID, in)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, newAttachmentResponse(c, a))
}

// Update handles PUT /api/attachments/:id
func (h *AttachmentHandler) Update(c *gin.Context) { h.update(c, false) }

// PartialUpdate handles PATCH /api/attachments/:id
func (h *AttachmentHandler) PartialUpdate(c *gin.Context) { h.update(c, true) }

func (h *AttachmentHandler) update(c *gin.Context, partial bool) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	in, cleanup, err := h.readInput(c)
	defer cleanup()
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	a, err := h.attachments.Update(c.Request.Context(), userID, id, in, partial)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, newAttachmentResponse(c, a))
}

// Delete handles DELETE /api/attachments/:id
func (h *AttachmentHandler) Delete(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.attachments.Delete(c.Request.Context(), userID, id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Download handles GET /api/attachments/:id/download
func (h *AttachmentHandler) Download(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	a, f, err := h.attachments.Open(c.Request.Context(), userID, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	defer f.Close()

	logger.WithTrace(c.Request.Context(), h.logger).Debug("Serving attachment",
		zap.Int64("attachment_id", a.ID),
		zap.Int64("size", a.FileSize),
	)
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": a.Filename}))
	http.ServeContent(c.Writer, c.Request, a.Filename, a.UploadedAt, f)
}
