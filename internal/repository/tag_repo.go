package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"taskmanager/internal/apperr"
	"taskmanager/internal/model"
)

const tagColumns = `g.id, g.name, g.created_by_id, g.created_at`

type TagRepository struct {
	db     sqlx.ExtContext
	logger *zap.Logger
}

func NewTagRepository(db sqlx.ExtContext, logger *zap.Logger) *TagRepository {
	return &TagRepository{db: db, logger: logger}
}

func (r *TagRepository) Insert(ctx context.Context, t *model.Tag) error {
	ts := now()
	query := r.db.Rebind(`INSERT INTO tags (name, created_by_id, created_at) VALUES (?, ?, ?) RETURNING id`)
	if err := r.db.QueryRowxContext(ctx, query, t.Name, t.CreatedByID, ts).Scan(&t.ID); err != nil {
		r.logger.Warn("Failed to insert tag", zap.String("name", t.Name), zap.Error(err))
		return err
	}
	t.CreatedAt = ts
	r.logger.Info("Tag created", zap.Int64("tag_id", t.ID), zap.Int64("created_by", t.CreatedByID))
	return nil
}

func (r *TagRepository) Update(ctx context.Context, t *model.Tag) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE tags SET name = ? WHERE id = ?`), t.Name, t.ID)
	if err != nil {
		r.logger.Warn("Failed to update tag", zap.Int64("tag_id", t.ID), zap.Error(err))
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (r *TagRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM tags WHERE id = ?`), id)
	if err != nil {
		r.logger.Error("Failed to delete tag", zap.Int64("tag_id", id), zap.Error(err))
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	r.logger.Info("Tag deleted", zap.Int64("tag_id", id))
	return nil
}

// GetOwned loads a tag created by userID.
func (r *TagRepository) GetOwned(ctx context.Context, id, userID int64) (*model.Tag, error) {
	var t model.Tag
	query := r.db.Rebind(`SELECT ` + tagColumns + ` FROM tags g WHERE g.id = ? AND g.created_by_id = ?`)
	if err := sqlx.GetContext(ctx, r.db, &t, query, id, userID); err != nil {
		return nil, mapNotFound(err)
	}
	return &t, nil
}

// ListOwned pages through the tags created by userID, ordered by name.
func (r *TagRepository) ListOwned(ctx context.Context, userID int64, page Page) ([]model.Tag, int, error) {
	var total int
	if err := sqlx.GetContext(ctx, r.db, &total,
		r.db.Rebind(`SELECT COUNT(*) FROM tags WHERE created_by_id = ?`), userID); err != nil {
		return nil, 0, err
	}

	tags := []model.Tag{}
	query := r.db.Rebind(`SELECT ` + tagColumns + ` FROM tags g
        WHERE g.created_by_id = ? ORDER BY g.name, g.id LIMIT ? OFFSET ?`)
	if err := sqlx.SelectContext(ctx, r.db, &tags, query, userID, page.Limit, page.Offset); err != nil {
		r.logger.Error("Failed to list tags", zap.Int64("user_id", userID), zap.Error(err))
		return nil, 0, err
	}
	return tags, total, nil
}

// MissingIDs returns the ids with no tag row, in input order.
func (r *TagRepository) MissingIDs(ctx context.Context, ids []int64) ([]int64, error) {
	return missingIDs(ctx, r.db, "tags", ids)
}

// ListForTask returns the tags linked to a task, ordered by name.
func (r *TagRepository) ListForTask(ctx context.Context, taskID int64) ([]model.Tag, error) {
	tags := []model.Tag{}
	query := r.db.Rebind(`SELECT ` + tagColumns + ` FROM tags g
        JOIN task_tags tt ON tt.tag_id = g.id
        WHERE tt.task_id = ? ORDER BY g.name, g.id`)
	err := sqlx.SelectContext(ctx, r.db, &tags, query, taskID)
	return tags, err
}
