package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"taskmanager/internal/apperr"
	"taskmanager/internal/model"
)

const categoryColumns = `c.id, c.name, c.description, c.color, c.created_by_id, c.created_at`

type CategoryRepository struct {
	db     sqlx.ExtContext
	logger *zap.Logger
}

func NewCategoryRepository(db sqlx.ExtContext, logger *zap.Logger) *CategoryRepository {
	return &CategoryRepository{db: db, logger: logger}
}

func (r *CategoryRepository) Insert(ctx context.Context, c *model.Category) error {
	ts := now()
	query := r.db.Rebind(`
        INSERT INTO categories (name, description, color, created_by_id, created_at)
        VALUES (?, ?, ?, ?, ?)
        RETURNING id
    `)
	if err := r.db.QueryRowxContext(ctx, query, c.Name, c.Description, c.Color, c.CreatedByID, ts).Scan(&c.ID); err != nil {
		r.logger.Warn("Failed to insert category", zap.String("name", c.Name), zap.Error(err))
		return err
	}
	c.CreatedAt = ts
	r.logger.Info("Category created", zap.Int64("category_id", c.ID), zap.Int64("created_by", c.CreatedByID))
	return nil
}

func (r *CategoryRepository) Update(ctx context.Context, c *model.Category) error {
	query := r.db.Rebind(`UPDATE categories SET name = ?, description = ?, color = ? WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, query, c.Name, c.Description, c.Color, c.ID)
	if err != nil {
		r.logger.Warn("Failed to update category", zap.Int64("category_id", c.ID), zap.Error(err))
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (r *CategoryRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM categories WHERE id = ?`), id)
	if err != nil {
		r.logger.Error("Failed to delete category", zap.Int64("category_id", id), zap.Error(err))
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	r.logger.Info("Category deleted", zap.Int64("category_id", id))
	return nil
}

// GetOwned loads a category created by userID.
func (r *CategoryRepository) GetOwned(ctx context.Context, id, userID int64) (*model.Category, error) {
	var c model.Category
	query := r.db.Rebind(`SELECT ` + categoryColumns + ` FROM categories c WHERE c.id = ? AND c.created_by_id = ?`)
	if err := sqlx.GetContext(ctx, r.db, &c, query, id, userID); err != nil {
		return nil, mapNotFound(err)
	}
	return &c, nil
}

// ListOwned pages through the categories created by userID, ordered by name.
func (r *CategoryRepository) ListOwned(ctx context.Context, userID int64, page Page) ([]model.Category, int, error) {
	var total int
	if err := sqlx.GetContext(ctx, r.db, &total,
		r.db.Rebind(`SELECT COUNT(*) FROM categories WHERE created_by_id = ?`), userID); err != nil {
		return nil, 0, err
	}

	categories := []model.Category{}
	query := r.db.Rebind(`SELECT ` + categoryColumns + ` FROM categories c
        WHERE c.created_by_id = ? ORDER BY c.name, c.id LIMIT ? OFFSET ?`)
	if err := sqlx.SelectContext(ctx, r.db, &categories, query, userID, page.Limit, page.Offset); err != nil {
		r.logger.Error("Failed to list categories", zap.Int64("user_id", userID), zap.Error(err))
		return nil, 0, err
	}
	return categories, total, nil
}

// MissingIDs returns the ids with no category row, in input order.
func (r *CategoryRepository) MissingIDs(ctx context.Context, ids []int64) ([]int64, error) {
	return missingIDs(ctx, r.db, "categories", ids)
}

// ListForTask returns the categories linked to a task, ordered by name.
func (r *CategoryRepository) ListForTask(ctx context.Context, taskID int64) ([]model.Category, error) {
	categories := []model.Category{}
	query := r.db.Rebind(`SELECT ` + categoryColumns + ` FROM categories c
        JOIN task_categories tc ON tc.category_id = c.id
        WHERE tc.task_id = ? ORDER BY c.name, c.id`)
	err := sqlx.SelectContext(ctx, r.db, &categories, query, taskID)
	return categories, err
}

func missingIDs(ctx context.Context, db sqlx.ExtContext, table string, ids []int64) ([]int64, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil, nil
	}

	query, args, err := inClause(db, `SELECT id FROM `+table+` WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	var found []int64
	if err := sqlx.SelectContext(ctx, db, &found, query, args...); err != nil {
		return nil, err
	}

	present := make(map[int64]bool, len(found))
	for _, id := range found {
		present[id] = true
	}
	var missing []int64
	for _, id := range ids {
		if !present[id] {
			missing = append(missing, id)
		}
	}
	return missing, nil
}
