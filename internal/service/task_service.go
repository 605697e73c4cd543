package service

import (
	"context"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"taskmanager/internal/apperr"
	"taskmanager/internal/filter"
	"taskmanager/internal/model"
	"taskmanager/internal/policy"
	"taskmanager/internal/repository"
	"taskmanager/internal/storage"
	"taskmanager/pkg/logger"
	"taskmanager/pkg/metrics"
	"taskmanager/pkg/otel"
)

// TaskInput carries the client-writable task fields. Nil or unset fields are left alone.
// Owner, created_at and completed_at are not part of it.
type TaskInput struct {
	Title        *string
	Description  *string
	Status       *string
	Priority     *string
	DueDate      Nullable[string]
	AssignedToID Nullable[int64]
	CategoryIDs  *[]int64
	TagIDs       *[]int64
}

type TaskService struct {
	tx      repository.TxManager
	storage *storage.Storage
	logger  *zap.Logger
}

func NewTaskService(tx repository.TxManager, store *storage.Storage, logger *zap.Logger) *TaskService {
	return &TaskService{tx: tx, storage: store, logger: logger}
}

func (s *TaskService) startSpan(ctx context.Context, op string, userID int64) (context.Context, trace.Span) {
	return otel.StartSpan(ctx, "TaskService."+op, trace.WithAttributes(
		attribute.Int64("user.id", userID),
	))
}

func finish(span trace.Span, op string, err error) {
	metrics.RecordTaskOperation(op, err)
	otel.EndSpan(span, err)
}

// List returns one page of task summaries in the given scope.
// An assigned_to filter naming no user is a validation error.
func (s *TaskService) List(ctx context.Context, userID int64, scope repository.TaskScope, q filter.TaskQuery, page repository.Page) (res *ListResult[model.TaskSummary], err error) {
	ctx, span := s.startSpan(ctx, "List", userID)
	defer func() { finish(span, "list", err) }()

	repos := s.tx.Repos()
	if q.AssignedTo != nil {
		exists, err := repos.Users.Exists(ctx, *q.AssignedTo)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, apperr.Invalid("assigned_to", "Select a valid choice. That choice is not one of the available choices.")
		}
	}

	rows, total, err := repos.Tasks.List(ctx, userID, scope, q, page)
	if err != nil {
		return nil, err
	}
	return &ListResult[model.TaskSummary]{Items: rows, Total: total}, nil
}

// Get returns the detailed record of a visible task.
func (s *TaskService) Get(ctx context.Context, userID, taskID int64) (detail *model.TaskDetail, err error) {
	ctx, span := s.startSpan(ctx, "Get", userID)
	defer func() { finish(span, "retrieve", err) }()

	repos := s.tx.Repos()
	task, err := repos.Tasks.GetVisible(ctx, taskID, userID)
	if err != nil {
		return nil, err
	}
	return loadTaskDetail(ctx, repos, task)
}

// Create stores a task owned by userID together with its category and tag links.
func (s *TaskService) Create(ctx context.Context, userID int64, in TaskInput) (detail *model.TaskDetail, err error) {
	ctx, span := s.startSpan(ctx, "Create", userID)
	defer func() { finish(span, "create", err) }()
	log := logger.WithTrace(ctx, s.logger)

	task := &model.Task{
		Status:   model.StatusTodo,
		Priority: model.PriorityMedium,
		OwnerID:  userID,
	}
	if err := applyTaskInput(task, in, true); err != nil {
		return nil, err
	}

	err = s.tx.WithinTx(ctx, func(r *repository.Repositories) error {
		if err := validateTaskRefs(ctx, r, in); err != nil {
			return err
		}
		task.ApplyCompletion(clock())
		if err := r.Tasks.Insert(ctx, task); err != nil {
			return err
		}
		return writeAssociations(ctx, r, task.ID, in)
	})
	if err != nil {
		return nil, mapWriteError(err, "", "")
	}

	log.Info("Task created", zap.Int64("task_id", task.ID), zap.Int64("owner_id", userID))
	return loadTaskDetail(ctx, s.tx.Repos(), task)
}

// Update applies in to a task the requester owns. partial selects PATCH semantics;
// otherwise the title is required.
func (s *TaskService) Update(ctx context.Context, userID, taskID int64, in TaskInput, partial bool) (detail *model.TaskDetail, err error) {
	ctx, span := s.startSpan(ctx, "Update", userID)
	defer func() { finish(span, "update", err) }()
	log := logger.WithTrace(ctx, s.logger)

	var task *model.Task
	err = s.tx.WithinTx(ctx, func(r *repository.Repositories) error {
		var err error
		task, err = r.Tasks.GetVisible(ctx, taskID, userID)
		if err != nil {
			return err
		}
		if err := policy.CheckTask(userID, task, policy.AccessWrite); err != nil {
			return err
		}
		if err := applyTaskInput(task, in, !partial); err != nil {
			return err
		}
		if err := validateTaskRefs(ctx, r, in); err != nil {
			return err
		}
		task.ApplyCompletion(clock())
		if err := r.Tasks.Update(ctx, task); err != nil {
			return err
		}
		return writeAssociations(ctx, r, task.ID, in)
	})
	if err != nil {
		return nil, mapWriteError(err, "", "")
	}

	log.Info("Task updated", zap.Int64("task_id", task.ID), zap.Bool("partial", partial))
	return loadTaskDetail(ctx, s.tx.Repos(), task)
}

// Delete removes a task the requester owns along with its stored attachment files.
func (s *TaskService) Delete(ctx context.Context, userID, taskID int64) (err error) {
	ctx, span := s.startSpan(ctx, "Delete", userID)
	defer func() { finish(span, "delete", err) }()
	log := logger.WithTrace(ctx, s.logger)

	var keys []string
	err = s.tx.WithinTx(ctx, func(r *repository.Repositories) error {
		task, err := r.Tasks.GetVisible(ctx, taskID, userID)
		if err != nil {
			return err
		}
		if err := policy.CheckTask(userID, task, policy.AccessWrite); err != nil {
			return err
		}
		attachments, err := r.Attachments.ListForTask(ctx, task.ID)
		if err != nil {
			return err
		}
		for _, a := range attachments {
			keys = append(keys, a.StorageKey)
		}
		return r.Tasks.Delete(ctx, task.ID)
	})
	if err != nil {
		return err
	}

	for _, key := range keys {
		if err := s.storage.Delete(key); err != nil {
			log.Warn("Failed to remove attachment file", zap.String("key", key), zap.Error(err))
		}
	}
	log.Info("Task deleted", zap.Int64("task_id", taskID), zap.Int("attachments", len(keys)))
	return nil
}

// Complete marks a task completed. Completing an already completed task keeps completed_at.
func (s *TaskService) Complete(ctx context.Context, userID, taskID int64) (detail *model.TaskDetail, err error) {
	ctx, span := s.startSpan(ctx, "Complete", userID)
	defer func() { finish(span, "complete", err) }()

	var task *model.Task
	err = s.tx.WithinTx(ctx, func(r *repository.Repositories) error {
		var err error
		task, err = r.Tasks.GetVisible(ctx, taskID, userID)
		if err != nil {
			return err
		}
		if err := policy.CheckTask(userID, task, policy.AccessWrite); err != nil {
			return err
		}
		task.Status = model.StatusCompleted
		task.ApplyCompletion(clock())
		return r.Tasks.Update(ctx, task)
	})
	if err != nil {
		return nil, err
	}

	logger.WithTrace(ctx, s.logger).Info("Task completed", zap.Int64("task_id", task.ID))
	return loadTaskDetail(ctx, s.tx.Repos(), task)
}

// Assign sets the task's assignee from the raw user_id body value. Lookup and permission
// failures take precedence over a missing or malformed user_id. An unknown user leaves the
// task untouched.
func (s *TaskService) Assign(ctx context.Context, userID, taskID int64, rawAssignee string) (detail *model.TaskDetail, err error) {
	ctx, span := s.startSpan(ctx, "Assign", userID)
	defer func() { finish(span, "assign", err) }()

	var (
		task       *model.Task
		assigneeID int64
	)
	err = s.tx.WithinTx(ctx, func(r *repository.Repositories) error {
		var err error
		task, err = r.Tasks.GetVisible(ctx, taskID, userID)
		if err != nil {
			return err
		}
		if err := policy.CheckTask(userID, task, policy.AccessWrite); err != nil {
			return err
		}
		rawAssignee = strings.TrimSpace(rawAssignee)
		if rawAssignee == "" {
			return apperr.BadRequest("user_id is required")
		}
		assigneeID, err = strconv.ParseInt(rawAssignee, 10, 64)
		if err != nil {
			return apperr.BadRequest("user_id must be an integer")
		}
		if assigneeID <= 0 {
			return apperr.BadRequest("user_id is required")
		}
		exists, err := r.Users.Exists(ctx, assigneeID)
		if err != nil {
			return err
		}
		if !exists {
			return apperr.NotFound("User not found")
		}
		task.AssignedToID = &assigneeID
		task.ApplyCompletion(clock())
		return r.Tasks.Update(ctx, task)
	})
	if err != nil {
		return nil, err
	}

	logger.WithTrace(ctx, s.logger).Info("Task assigned",
		zap.Int64("task_id", task.ID),
		zap.Int64("assigned_to", assigneeID),
	)
	return loadTaskDetail(ctx, s.tx.Repos(), task)
}

// applyTaskInput copies the set fields of in onto task, validating their shape.
func applyTaskInput(task *model.Task, in TaskInput, requireTitle bool) error {
	verr := &apperr.ValidationError{}

	if requireTitle {
		requiredText(verr, "title", in.Title, model.TaskTitleMaxLen)
	} else {
		checkText(verr, "title", in.Title, model.TaskTitleMaxLen)
	}
	if in.Title != nil {
		task.Title = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		task.Description = *in.Description
	}
	if in.Status != nil {
		st := model.TaskStatus(*in.Status)
		if !st.Valid() {
			verr.Add("status", "\""+*in.Status+"\" is not a valid choice.")
		} else {
			task.Status = st
		}
	}
	if in.Priority != nil {
		p := model.TaskPriority(*in.Priority)
		if !p.Valid() {
			verr.Add("priority", "\""+*in.Priority+"\" is not a valid choice.")
		} else {
			task.Priority = p
		}
	}
	if in.DueDate.Set {
		if in.DueDate.Value == nil || strings.TrimSpace(*in.DueDate.Value) == "" {
			task.DueDate = nil
		} else if due, ok := filter.ParseTime(strings.TrimSpace(*in.DueDate.Value)); ok {
			task.DueDate = &due
		} else {
			verr.Add("due_date", "Datetime has wrong format. Use one of these formats instead: YYYY-MM-DDThh:mm[:ss[.uuuuuu]][+HH:MM|-HH:MM|Z].")
		}
	}
	if in.AssignedToID.Set {
		task.AssignedToID = in.AssignedToID.Value
	}

	return verr.OrNil()
}

// validateTaskRefs checks that every referenced user, category and tag exists.
func validateTaskRefs(ctx context.Context, r *repository.Repositories, in TaskInput) error {
	verr := &apperr.ValidationError{}

	if in.AssignedToID.Set && in.AssignedToID.Value != nil {
		id := *in.AssignedToID.Value
		ok, err := r.Users.Exists(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			invalidPK(verr, "assigned_to_id", id)
		}
	}
	if in.CategoryIDs != nil {
		missing, err := r.Categories.MissingIDs(ctx, *in.CategoryIDs)
		if err != nil {
			return err
		}
		for _, id := range missing {
			invalidPK(verr, "category_ids", id)
		}
	}
	if in.TagIDs != nil {
		missing, err := r.Tags.MissingIDs(ctx, *in.TagIDs)
		if err != nil {
			return err
		}
		for _, id := range missing {
			invalidPK(verr, "tag_ids", id)
		}
	}

	return verr.OrNil()
}

// writeAssociations rewrites category and tag links that were supplied; absent lists are left alone.
func writeAssociations(ctx context.Context, r *repository.Repositories, taskID int64, in TaskInput) error {
	if in.CategoryIDs != nil {
		if err := r.Tasks.SetCategories(ctx, taskID, *in.CategoryIDs); err != nil {
			return err
		}
	}
	if in.TagIDs != nil {
		if err := r.Tasks.SetTags(ctx, taskID, *in.TagIDs); err != nil {
			return err
		}
	}
	return nil
}

// loadTaskDetail gathers every related record of task and resolves all referenced users in one query.
func loadTaskDetail(ctx context.Context, r *repository.Repositories, task *model.Task) (*model.TaskDetail, error) {
	categories, err := r.Categories.ListForTask(ctx, task.ID)
	if err != nil {
		return nil, err
	}
	tags, err := r.Tags.ListForTask(ctx, task.ID)
	if err != nil {
		return nil, err
	}
	comments, err := r.Comments.ListForTask(ctx, task.ID)
	if err != nil {
		return nil, err
	}
	attachments, err := r.Attachments.ListForTask(ctx, task.ID)
	if err != nil {
		return nil, err
	}

	ids := []int64{task.OwnerID}
	if task.AssignedToID != nil {
		ids = append(ids, *task.AssignedToID)
	}
	for _, c := range categories {
		ids = append(ids, c.CreatedByID)
	}
	for _, t := range tags {
		ids = append(ids, t.CreatedByID)
	}
	for _, c := range comments {
		ids = append(ids, c.AuthorID)
	}
	for _, a := range attachments {
		ids = append(ids, a.UploadedByID)
	}
	users, err := loadUsers(ctx, r.Users, ids...)
	if err != nil {
		return nil, err
	}

	detail := &model.TaskDetail{
		Task:        *task,
		Owner:       users.get(task.OwnerID),
		Categories:  make([]model.CategoryWithCreator, 0, len(categories)),
		Tags:        make([]model.TagWithCreator, 0, len(tags)),
		Comments:    make([]model.CommentWithAuthor, 0, len(comments)),
		Attachments: make([]model.AttachmentWithUploader, 0, len(attachments)),
	}
	if task.AssignedToID != nil {
		if u, ok := users[*task.AssignedToID]; ok {
			detail.AssignedTo = &u
		}
	}
	for _, c := range categories {
		detail.Categories = append(detail.Categories, model.CategoryWithCreator{Category: c, CreatedBy: users.get(c.CreatedByID)})
	}
	for _, t := range tags {
		detail.Tags = append(detail.Tags, model.TagWithCreator{Tag: t, CreatedBy: users.get(t.CreatedByID)})
	}
	for _, c := range comments {
		detail.Comments = append(detail.Comments, model.CommentWithAuthor{Comment: c, Author: users.get(c.AuthorID)})
	}
	for _, a := range attachments {
		detail.Attachments = append(detail.Attachments, model.AttachmentWithUploader{Attachment: a, UploadedBy: users.get(a.UploadedByID)})
	}
	return detail, nil
}
