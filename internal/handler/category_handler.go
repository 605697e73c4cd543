package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"taskmanager/internal/service"
)

type CategoryHandler struct {
	categories *service.CategoryService
	paginator  Paginator
	logger     *zap.Logger
}

func NewCategoryHandler(categories *service.CategoryService, paginator Paginator, logger *zap.Logger) *CategoryHandler {
	return &CategoryHandler{categories: categories, paginator: paginator, logger: logger}
}

type categoryRequest struct {
	Name        *string `json:"name" binding:"omitempty,max=50"`
	Description *string `json:"description"`
	Color       *string `json:"color" binding:"omitempty,hexcolor"`
}

func (r categoryRequest) input() service.CategoryInput {
	return service.CategoryInput{Name: r.Name, Description: r.Description, Color: r.Color}
}

// List handles GET /api/categories
func (h *CategoryHandler) List(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	req, page, err := h.paginator.parse(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	res, err := h.categories.List(c.Request.Context(), userID, page)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	body, err := wrap(c, req, res.Total, mapSlice(res.Items, newCategoryResponse))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, body)
}

// Get handles GET /api/categories/:id
func (h *CategoryHandler) Get(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	cat, err := h.categories.Get(c.Request.Context(), userID, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, newCategoryResponse(cat))
}

// Create handles POST /api/categories
func (h *CategoryHandler) Create(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	var req categoryRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, err)
		return
	}

	cat, err := h.categories.Create(c.Request.Context(), userID, req.input())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, newCategoryResponse(cat))
}

// Update handles PUT /api/categories/:id
func (h *CategoryHandler) Update(c *gin.Context) { h.update(c, false) }

// PartialUpdate handles PATCH /api/categories/:id
func (h *CategoryHandler) PartialUpdate(c *gin.Context) { h.update(c, true) }

func (h *CategoryHandler) update(c *gin.Context, partial bool) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req categoryRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, err)
		return
	}

	cat, err := h.categories.Update(c.Request.Context(), userID, id, req.input(), partial)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, newCategoryResponse(cat))
}

// Delete handles DELETE /api/categories/:id
func (h *CategoryHandler) Delete(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.categories.Delete(c.Request.Context(), userID, id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type TagHandler struct {
	tags      *service.TagService
	paginator Paginator
	logger    *zap.Logger
}

func NewTagHandler(tags *service.TagService, paginator Paginator, logger *zap.Logger) *TagHandler {
	return &TagHandler{tags: tags, paginator: paginator, logger: logger}
}

type tagRequest struct {
	Name *string `json:"name" binding:"omitempty,max=50"`
}

// List handles GET /api/tags
func (h *TagHandler) List(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	req, page, err := h.paginator.parse(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	res, err := h.tags.List(c.Request.Context(), userID, page)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	body, err := wrap(c, req, res.Total, mapSlice(res.Items, newTagResponse))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, body)
}

// Get handles GET /api/tags/:id
func (h *TagHandler) Get(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	tag, err := h.tags.Get(c.Request.Context(), userID, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, newTagResponse(tag))
}

// Create handles POST /api/tags
func (h *TagHandler) Create(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	var req tagRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, err)
		return
	}

	tag, err := h.tags.Create(c.Request.Context(), userID, req.Name)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, newTagResponse(tag))
}

// Update handles PUT /api/tags/:id
func (h *TagHandler) Update(c *gin.Context) { h.update(c, false) }

// PartialUpdate handles PATCH /api/tags/:id
func (h *TagHandler) PartialUpdate(c *gin.Context) { h.update(c, true) }

func (h *TagHandler) update(c *gin.Context, partial bool) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req tagRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, err)
		return
	}

	tag, err := h.tags.Update(c.Request.Context(), userID, id, req.Name, partial)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, newTagResponse(tag))
}

// Delete handles DELETE /api/tags/:id
func (h *TagHandler) Delete(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.tags.Delete(c.Request.Context(), userID, id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
