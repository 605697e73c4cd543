package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"taskmanager/internal/model"
)

const userColumns = `id, username, email, password_hash, first_name, last_name, phone, bio, created_at, updated_at`

type UserRepository struct {
	db     sqlx.ExtContext
	logger *zap.Logger
}

func NewUserRepository(db sqlx.ExtContext, logger *zap.Logger) *UserRepository {
	return &UserRepository{db: db, logger: logger}
}

// Create inserts a new user and sets its ID and timestamps.
func (r *UserRepository) Create(ctx context.Context, u *model.User) error {
	ts := now()
	query := r.db.Rebind(`
        INSERT INTO users (username, email, password_hash, first_name, last_name, phone, bio, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
        RETURNING id
    `)
	err := r.db.QueryRowxContext(ctx, query,
		u.Username, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Phone, u.Bio, ts, ts,
	).Scan(&u.ID)
	if err != nil {
		r.logger.Warn("Failed to insert user", zap.String("username", u.Username), zap.Error(err))
		return err
	}
	u.CreatedAt, u.UpdatedAt = ts, ts
	r.logger.Info("User created", zap.Int64("user_id", u.ID))
	return nil
}

// GetByID returns apperr.ErrNotFound when no user has id.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	var u model.User
	err := sqlx.GetContext(ctx, r.db, &u,
		r.db.Rebind(`SELECT `+userColumns+` FROM users WHERE id = ?`), id)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &u, nil
}

// FindByUsername returns apperr.ErrNotFound when no user matches.
func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	var u model.User
	err := sqlx.GetContext(ctx, r.db, &u,
		r.db.Rebind(`SELECT `+userColumns+` FROM users WHERE username = ?`), username)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &u, nil
}

// FindByEmail returns apperr.ErrNotFound when no user matches.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User
	err := sqlx.GetContext(ctx, r.db, &u,
		r.db.Rebind(`SELECT `+userColumns+` FROM users WHERE email = ?`), email)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &u, nil
}

// GetMany loads the users with the given ids, keyed by id. Unknown ids are absent from the map.
func (r *UserRepository) GetMany(ctx context.Context, ids []int64) (map[int64]model.User, error) {
	out := make(map[int64]model.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query, args, err := inClause(r.db, `SELECT `+userColumns+` FROM users WHERE id IN (?)`, uniqueIDs(ids))
	if err != nil {
		return nil, err
	}
	var users []model.User
	if err := sqlx.SelectContext(ctx, r.db, &users, query, args...); err != nil {
		r.logger.Error("Failed to load users", zap.Int("count", len(ids)), zap.Error(err))
		return nil, err
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

// Exists reports whether a user with id exists.
func (r *UserRepository) Exists(ctx context.Context, id int64) (bool, error) {
	var n int
	err := sqlx.GetContext(ctx, r.db, &n, r.db.Rebind(`SELECT COUNT(*) FROM users WHERE id = ?`), id)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
