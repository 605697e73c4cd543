package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"taskmanager/internal/apperr"
	"taskmanager/internal/model"
)

const taskColumns = `t.id, t.title, t.description, t.status, t.priority, t.due_date,
        t.owner_id, t.assigned_to_id, t.created_at, t.updated_at, t.completed_at`

// visibleTo matches tasks owned by or assigned to a user. It binds the user id twice.
const visibleTo = `(t.owner_id = ? OR t.assigned_to_id = ?)`

type TaskRepository struct {
	db     sqlx.ExtContext
	logger *zap.Logger
}

func NewTaskRepository(db sqlx.ExtContext, logger *zap.Logger) *TaskRepository {
	return &TaskRepository{db: db, logger: logger}
}

// Insert stores t and sets its ID. Callers run ApplyCompletion first.
func (r *TaskRepository) Insert(ctx context.Context, t *model.Task) error {
	r.logger.Debug("Inserting task",
		zap.Int64("owner_id", t.OwnerID),
		zap.String("title", t.Title),
		zap.String("status", string(t.Status)),
	)
	ts := now()
	query := r.db.Rebind(`
        INSERT INTO tasks (title, description, status, priority, due_date, owner_id,
            assigned_to_id, created_at, updated_at, completed_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        RETURNING id
    `)
	err := r.db.QueryRowxContext(ctx, query,
		t.Title, t.Description, t.Status, t.Priority, utcPtr(t.DueDate), t.OwnerID,
		t.AssignedToID, ts, ts, utcPtr(t.CompletedAt),
	).Scan(&t.ID)
	if err != nil {
		r.logger.Error("Failed to insert task", zap.Int64("owner_id", t.OwnerID), zap.Error(err))
		return err
	}
	t.CreatedAt, t.UpdatedAt = ts, ts
	r.logger.Info("Task inserted successfully",
		zap.Int64("task_id", t.ID),
		zap.Int64("owner_id", t.OwnerID),
	)
	return nil
}

// Update writes every mutable column of t. owner_id and created_at are never touched.
func (r *TaskRepository) Update(ctx context.Context, t *model.Task) error {
	ts := now()
	query := r.db.Rebind(`
        UPDATE tasks
        SET title = ?, description = ?, status = ?, priority = ?, due_date = ?,
            assigned_to_id = ?, updated_at = ?, completed_at = ?
        WHERE id = ?
    `)
	res, err := r.db.ExecContext(ctx, query,
		t.Title, t.Description, t.Status, t.Priority, utcPtr(t.DueDate),
		t.AssignedToID, ts, utcPtr(t.CompletedAt), t.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update task", zap.Int64("task_id", t.ID), zap.Error(err))
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	t.UpdatedAt = ts
	r.logger.Info("Task updated", zap.Int64("task_id", t.ID), zap.String("status", string(t.Status)))
	return nil
}

// Delete removes the task; comments, attachments and associations cascade.
func (r *TaskRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM tasks WHERE id = ?`), id)
	if err != nil {
		r.logger.Error("Failed to delete task", zap.Int64("task_id", id), zap.Error(err))
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	r.logger.Info("Task deleted", zap.Int64("task_id", id))
	return nil
}

// GetVisible loads a task inside the requester's visibility scope.
// Tasks outside it are reported as apperr.ErrNotFound.
func (r *TaskRepository) GetVisible(ctx context.Context, id, userID int64) (*model.Task, error) {
	var t model.Task
	query := r.db.Rebind(`SELECT ` + taskColumns + ` FROM tasks t WHERE t.id = ? AND ` + visibleTo)
	if err := sqlx.GetContext(ctx, r.db, &t, query, id, userID, userID); err != nil {
		return nil, mapNotFound(err)
	}
	return &t, nil
}

// IsVisible reports whether userID owns or is assigned the task.
func (r *TaskRepository) IsVisible(ctx context.Context, id, userID int64) (bool, error) {
	var n int
	query := r.db.Rebind(`SELECT COUNT(*) FROM tasks t WHERE t.id = ? AND ` + visibleTo)
	if err := sqlx.GetContext(ctx, r.db, &n, query, id, userID, userID); err != nil {
		return false, err
	}
	return n > 0, nil
}

// SetCategories replaces all category associations for a task.
func (r *TaskRepository) SetCategories(ctx context.Context, taskID int64, categoryIDs []int64) error {
	return r.replaceAssociations(ctx, "task_categories", "category_id", taskID, categoryIDs)
}

// SetTags replaces all tag associations for a task.
func (r *TaskRepository) SetTags(ctx context.Context, taskID int64, tagIDs []int64) error {
	return r.replaceAssociations(ctx, "task_tags", "tag_id", taskID, tagIDs)
}

func (r *TaskRepository) replaceAssociations(ctx context.Context, table, column string, taskID int64, ids []int64) error {
	if _, err := r.db.ExecContext(ctx,
		r.db.Rebind(`DELETE FROM `+table+` WHERE task_id = ?`), taskID); err != nil {
		return fmt.Errorf("clearing %s for task %d: %w", table, taskID, err)
	}

	insert := r.db.Rebind(`INSERT INTO ` + table + ` (task_id, ` + column + `) VALUES (?, ?)`)
	for _, id := range uniqueIDs(ids) {
		if _, err := r.db.ExecContext(ctx, insert, taskID, id); err != nil {
			return fmt.Errorf("linking %s %d to task %d: %w", column, id, taskID, err)
		}
	}
	r.logger.Debug("Task associations replaced",
		zap.String("table", table),
		zap.Int64("task_id", taskID),
		zap.Int("count", len(ids)),
	)
	return nil
}

// CategoryIDs returns the category ids linked to a task.
func (r *TaskRepository) CategoryIDs(ctx context.Context, taskID int64) ([]int64, error) {
	var ids []int64
	err := sqlx.SelectContext(ctx, r.db, &ids,
		r.db.Rebind(`SELECT category_id FROM task_categories WHERE task_id = ? ORDER BY category_id`), taskID)
	return ids, err
}

// TagIDs returns the tag ids linked to a task.
func (r *TaskRepository) TagIDs(ctx context.Context, taskID int64) ([]int64, error) {
	var ids []int64
	err := sqlx.SelectContext(ctx, r.db, &ids,
		r.db.Rebind(`SELECT tag_id FROM task_tags WHERE task_id = ? ORDER BY tag_id`), taskID)
	return ids, err
}
