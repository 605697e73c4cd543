package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"taskmanager/internal/apperr"
)

// TxManager hands out repositories bound either to the pool or to a single transaction.
type TxManager interface {
	Repos() *Repositories
	WithinTx(ctx context.Context, fn func(r *Repositories) error) error
}

// Repositories groups every repository over one query handle.
type Repositories struct {
	Users       *UserRepository
	Tasks       *TaskRepository
	Categories  *CategoryRepository
	Tags        *TagRepository
	Comments    *CommentRepository
	Attachments *AttachmentRepository
}

func newRepositories(q sqlx.ExtContext, logger *zap.Logger) *Repositories {
	return &Repositories{
		Users:       NewUserRepository(q, logger),
		Tasks:       NewTaskRepository(q, logger),
		Categories:  NewCategoryRepository(q, logger),
		Tags:        NewTagRepository(q, logger),
		Comments:    NewCommentRepository(q, logger),
		Attachments: NewAttachmentRepository(q, logger),
	}
}

// Store owns the database handle and implements TxManager.
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
	repos  *Repositories
}

func NewStore(db *sqlx.DB, logger *zap.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger,
		repos:  newRepositories(db, logger),
	}
}

func (s *Store) Repos() *Repositories {
	return s.repos
}

// WithinTx runs fn in a transaction, committing when fn returns nil and rolling back otherwise.
// fn must only use the repositories it is given.
func (s *Store) WithinTx(ctx context.Context, fn func(r *Repositories) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.Error("Failed to begin transaction", zap.Error(err))
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(newRepositories(tx, s.logger)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Error("Failed to roll back transaction", zap.Error(rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("Failed to commit transaction", zap.Error(err))
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Ping is used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Page bounds a listing query.
type Page struct {
	Limit  int
	Offset int
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// mapNotFound turns a missing row into apperr.ErrNotFound.
func mapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.ErrNotFound
	}
	return err
}

// escapeLike escapes LIKE wildcards so user input matches literally under ESCAPE '\'.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// inClause expands an IN (?) query for ids and rebinds it for the driver.
func inClause(q sqlx.ExtContext, query string, args ...interface{}) (string, []interface{}, error) {
	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return "", nil, err
	}
	return q.Rebind(query), args, nil
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
