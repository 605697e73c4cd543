package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"taskmanager/internal/apperr"
	"taskmanager/internal/model"
)

const commentColumns = `c.id, c.task_id, c.author_id, c.content, c.created_at, c.updated_at`

type CommentRepository struct {
	db     sqlx.ExtContext
	logger *zap.Logger
}

func NewCommentRepository(db sqlx.ExtContext, logger *zap.Logger) *CommentRepository {
	return &CommentRepository{db: db, logger: logger}
}

func (r *CommentRepository) Insert(ctx context.Context, c *model.Comment) error {
	ts := now()
	query := r.db.Rebind(`
        INSERT INTO comments (task_id, author_id, content, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?)
        RETURNING id
    `)
	if err := r.db.QueryRowxContext(ctx, query, c.TaskID, c.AuthorID, c.Content, ts, ts).Scan(&c.ID); err != nil {
		r.logger.Error("Failed to insert comment", zap.Int64("task_id", c.TaskID), zap.Error(err))
		return err
	}
	c.CreatedAt, c.UpdatedAt = ts, ts
	r.logger.Info("Comment created", zap.Int64("comment_id", c.ID), zap.Int64("task_id", c.TaskID))
	return nil
}

func (r *CommentRepository) Update(ctx context.Context, c *model.Comment) error {
	ts := now()
	query := r.db.Rebind(`UPDATE comments SET task_id = ?, content = ?, updated_at = ? WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, query, c.TaskID, c.Content, ts, c.ID)
	if err != nil {
		r.logger.Error("Failed to update comment", zap.Int64("comment_id", c.ID), zap.Error(err))
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	c.UpdatedAt = ts
	return nil
}

func (r *CommentRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM comments WHERE id = ?`), id)
	if err != nil {
		r.logger.Error("Failed to delete comment", zap.Int64("comment_id", id), zap.Error(err))
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// GetVisible loads a comment whose task is visible to userID.
func (r *CommentRepository) GetVisible(ctx context.Context, id, userID int64) (*model.Comment, error) {
	var c model.Comment
	query := r.db.Rebind(`SELECT ` + commentColumns + ` FROM comments c
        JOIN tasks t ON t.id = c.task_id
        WHERE c.id = ? AND ` + visibleTo)
	if err := sqlx.GetContext(ctx, r.db, &c, query, id, userID, userID); err != nil {
		return nil, mapNotFound(err)
	}
	return &c, nil
}

// ListVisible pages through comments on tasks visible to userID, newest first.
// taskID narrows the listing to one task when set.
func (r *CommentRepository) ListVisible(ctx context.Context, userID int64, taskID *int64, page Page) ([]model.Comment, int, error) {
	where := visibleTo
	args := []interface{}{userID, userID}
	if taskID != nil {
		where += ` AND c.task_id = ?`
		args = append(args, *taskID)
	}

	var total int
	countQuery := r.db.Rebind(`SELECT COUNT(*) FROM comments c JOIN tasks t ON t.id = c.task_id WHERE ` + where)
	if err := sqlx.GetContext(ctx, r.db, &total, countQuery, args...); err != nil {
		return nil, 0, err
	}

	comments := []model.Comment{}
	query := r.db.Rebind(`SELECT ` + commentColumns + ` FROM comments c
        JOIN tasks t ON t.id = c.task_id
        WHERE ` + where + `
        ORDER BY c.created_at DESC, c.id DESC
        LIMIT ? OFFSET ?`)
	if err := sqlx.SelectContext(ctx, r.db, &comments, query, append(args, page.Limit, page.Offset)...); err != nil {
		r.logger.Error("Failed to list comments", zap.Int64("user_id", userID), zap.Error(err))
		return nil, 0, err
	}
	return comments, total, nil
}

// ListForTask returns every comment on a task, newest first.
func (r *CommentRepository) ListForTask(ctx context.Context, taskID int64) ([]model.Comment, error) {
	comments := []model.Comment{}
	query := r.db.Rebind(`SELECT ` + commentColumns + ` FROM comments c
        WHERE c.task_id = ? ORDER BY c.created_at DESC, c.id DESC`)
	err := sqlx.SelectContext(ctx, r.db, &comments, query, taskID)
	return comments, err
}
