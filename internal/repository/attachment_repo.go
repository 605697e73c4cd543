package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"taskmanager/internal/apperr"
	"taskmanager/internal/model"
)

const attachmentColumns = `a.id, a.task_id, a.storage_key, a.filename, a.file_size, a.uploaded_by_id, a.uploaded_at`

type AttachmentRepository struct {
	db     sqlx.ExtContext
	logger *zap.Logger
}

func NewAttachmentRepository(db sqlx.ExtContext, logger *zap.Logger) *AttachmentRepository {
	return &AttachmentRepository{db: db, logger: logger}
}

func (r *AttachmentRepository) Insert(ctx context.Context, a *model.Attachment) error {
	ts := now()
	query := r.db.Rebind(`
        INSERT INTO attachments (task_id, storage_key, filename, file_size, uploaded_by_id, uploaded_at)
        VALUES (?, ?, ?, ?, ?, ?)
        RETURNING id
    `)
	if err := r.db.QueryRowxContext(ctx, query,
		a.TaskID, a.StorageKey, a.Filename, a.FileSize, a.UploadedByID, ts,
	).Scan(&a.ID); err != nil {
		r.logger.Error("Failed to insert attachment", zap.Int64("task_id", a.TaskID), zap.Error(err))
		return err
	}
	a.UploadedAt = ts
	r.logger.Info("Attachment created",
		zap.Int64("attachment_id", a.ID),
		zap.Int64("task_id", a.TaskID),
		zap.Int64("size", a.FileSize),
	)
	return nil
}

// Update rewrites the task link and file fields. uploaded_by and uploaded_at are kept.
func (r *AttachmentRepository) Update(ctx context.Context, a *model.Attachment) error {
	query := r.db.Rebind(`UPDATE attachments SET task_id = ?, storage_key = ?, filename = ?, file_size = ? WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, query, a.TaskID, a.StorageKey, a.Filename, a.FileSize, a.ID)
	if err != nil {
		r.logger.Error("Failed to update attachment", zap.Int64("attachment_id", a.ID), zap.Error(err))
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (r *AttachmentRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM attachments WHERE id = ?`), id)
	if err != nil {
		r.logger.Error("Failed to delete attachment", zap.Int64("attachment_id", id), zap.Error(err))
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// GetVisible loads an attachment whose task is visible to userID.
func (r *AttachmentRepository) GetVisible(ctx context.Context, id, userID int64) (*model.Attachment, error) {
	var a model.Attachment
	query := r.db.Rebind(`SELECT ` + attachmentColumns + ` FROM attachments a
        JOIN tasks t ON t.id = a.task_id
        WHERE a.id = ? AND ` + visibleTo)
	if err := sqlx.GetContext(ctx, r.db, &a, query, id, userID, userID); err != nil {
		return nil, mapNotFound(err)
	}
	return &a, nil
}

// ListVisible pages through attachments on tasks visible to userID, newest first.
func (r *AttachmentRepository) ListVisible(ctx context.Context, userID int64, taskID *int64, page Page) ([]model.Attachment, int, error) {
	where := visibleTo
	args := []interface{}{userID, userID}
	if taskID != nil {
		where += ` AND a.task_id = ?`
		args = append(args, *taskID)
	}

	var total int
	countQuery := r.db.Rebind(`SELECT COUNT(*) FROM attachments a JOIN tasks t ON t.id = a.task_id WHERE ` + where)
	if err := sqlx.GetContext(ctx, r.db, &total, countQuery, args...); err != nil {
		return nil, 0, err
	}

	attachments := []model.Attachment{}
	query := r.db.Rebind(`SELECT ` + attachmentColumns + ` FROM attachments a
        JOIN tasks t ON t.id = a.task_id
        WHERE ` + where + `
        ORDER BY a.uploaded_at DESC, a.id DESC
        LIMIT ? OFFSET ?`)
	if err := sqlx.SelectContext(ctx, r.db, &attachments, query, append(args, page.Limit, page.Offset)...); err != nil {
		r.logger.Error("Failed to list attachments", zap.Int64("user_id", userID), zap.Error(err))
		return nil, 0, err
	}
	return attachments, total, nil
}

// ListForTask returns every attachment on a task, newest first.
func (r *AttachmentRepository) ListForTask(ctx context.Context, taskID int64) ([]model.Attachment, error) {
	attachments := []model.Attachment{}
	query := r.db.Rebind(`SELECT ` + attachmentColumns + ` FROM attachments a
        WHERE a.task_id = ? ORDER BY a.uploaded_at DESC, a.id DESC`)
	err := sqlx.SelectContext(ctx, r.db, &attachments, query, taskID)
	return attachments, err
}
