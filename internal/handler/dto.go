package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"taskmanager/internal/model"
)

type UserResponse struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	FullName  string    `json:"full_name"`
	Phone     *string   `json:"phone"`
	Bio       string    `json:"bio"`
	CreatedAt time.Time `json:"created_at"`
}

func newUserResponse(u *model.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		FullName:  u.FullName(),
		Phone:     u.Phone,
		Bio:       u.Bio,
		CreatedAt: u.CreatedAt,
	}
}

type CategoryResponse struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Color       string       `json:"color"`
	CreatedBy   UserResponse `json:"created_by"`
	CreatedAt   time.Time    `json:"created_at"`
}

func newCategoryResponse(c *model.CategoryWithCreator) CategoryResponse {
	return CategoryResponse{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		Color:       c.Color,
		CreatedBy:   newUserResponse(&c.CreatedBy),
		CreatedAt:   c.CreatedAt,
	}
}

type TagResponse struct {
	ID        int64        `json:"id"`
	Name      string       `json:"name"`
	CreatedBy UserResponse `json:"created_by"`
	CreatedAt time.Time    `json:"created_at"`
}

func newTagResponse(t *model.TagWithCreator) TagResponse {
	return TagResponse{
		ID:        t.ID,
		Name:      t.Name,
		CreatedBy: newUserResponse(&t.CreatedBy),
		CreatedAt: t.CreatedAt,
	}
}

type CommentResponse struct {
	ID        int64        `json:"id"`
	Task      int64        `json:"task"`
	Author    UserResponse `json:"author"`
	Content   string       `json:"content"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

func newCommentResponse(c *model.CommentWithAuthor) CommentResponse {
	return CommentResponse{
		ID:        c.ID,
		Task:      c.TaskID,
		Author:    newUserResponse(&c.Author),
		Content:   c.Content,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

type AttachmentResponse struct {
	ID         int64        `json:"id"`
	Task       int64        `json:"task"`
	File       string       `json:"file"`
	Filename   string       `json:"filename"`
	FileSize   int64        `json:"file_size"`
	UploadedBy UserResponse `json:"uploaded_by"`
	UploadedAt time.Time    `json:"uploaded_at"`
}

// newAttachmentResponse points file at the download endpoint; storage keys stay private.
func newAttachmentResponse(c *gin.Context, a *model.AttachmentWithUploader) AttachmentResponse {
	return AttachmentResponse{
		ID:         a.ID,
		Task:       a.TaskID,
		File:       absoluteURL(c, "/api/attachments/"+strconv.FormatInt(a.ID, 10)+"/download"),
		Filename:   a.Filename,
		FileSize:   a.FileSize,
		UploadedBy: newUserResponse(&a.UploadedBy),
		UploadedAt: a.UploadedAt,
	}
}

type TaskSummaryResponse struct {
	ID         int64      `json:"id"`
	Title      string     `json:"title"`
	Status     string     `json:"status"`
	Priority   string     `json:"priority"`
	DueDate    *time.Time `json:"due_date"`
	Owner      string     `json:"owner"`
	AssignedTo *string    `json:"assigned_to"`
	CreatedAt  time.Time  `json:"created_at"`
}

func newTaskSummaryResponse(t *model.TaskSummary) TaskSummaryResponse {
	return TaskSummaryResponse{
		ID:         t.ID,
		Title:      t.Title,
		Status:     string(t.Status),
		Priority:   string(t.Priority),
		DueDate:    t.DueDate,
		Owner:      t.OwnerUsername,
		AssignedTo: t.AssignedToUsername,
		CreatedAt:  t.CreatedAt,
	}
}

type TaskResponse struct {
	ID          int64                `json:"id"`
	Title       string               `json:"title"`
	Description string               `json:"description"`
	Status      string               `json:"status"`
	Priority    string               `json:"priority"`
	DueDate     *time.Time           `json:"due_date"`
	Owner       UserResponse         `json:"owner"`
	AssignedTo  *UserResponse        `json:"assigned_to"`
	Categories  []CategoryResponse   `json:"categories"`
	Tags        []TagResponse        `json:"tags"`
	Comments    []CommentResponse    `json:"comments"`
	Attachments []AttachmentResponse `json:"attachments"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
	CompletedAt *time.Time           `json:"completed_at"`
}

func newTaskResponse(c *gin.Context, d *model.TaskDetail) TaskResponse {
	resp := TaskResponse{
		ID:          d.ID,
		Title:       d.Title,
		Description: d.Description,
		Status:      string(d.Status),
		Priority:    string(d.Priority),
		DueDate:     d.DueDate,
		Owner:       newUserResponse(&d.Owner),
		Categories:  make([]CategoryResponse, 0, len(d.Categories)),
		Tags:        make([]TagResponse, 0, len(d.Tags)),
		Comments:    make([]CommentResponse, 0, len(d.Comments)),
		Attachments: make([]AttachmentResponse, 0, len(d.Attachments)),
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
		CompletedAt: d.CompletedAt,
	}
	if d.AssignedTo != nil {
		u := newUserResponse(d.AssignedTo)
		resp.AssignedTo = &u
	}
	for i := range d.Categories {
		resp.Categories = append(resp.Categories, newCategoryResponse(&d.Categories[i]))
	}
	for i := range d.Tags {
		resp.Tags = append(resp.Tags, newTagResponse(&d.Tags[i]))
	}
	for i := range d.Comments {
		resp.Comments = append(resp.Comments, newCommentResponse(&d.Comments[i]))
	}
	for i := range d.Attachments {
		resp.Attachments = append(resp.Attachments, newAttachmentResponse(c, &d.Attachments[i]))
	}
	return resp
}

func mapSlice[T, R any](items []T, fn func(*T) R) []R {
	out := make([]R, 0, len(items))
	for i := range items {
		out = append(out, fn(&items[i]))
	}
	return out
}
