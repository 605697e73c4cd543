package util

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBErrorKind 数据库错误类别
type DBErrorKind string

const (
	DBErrorNone       DBErrorKind = ""
	DBErrorNotFound   DBErrorKind = "not_found"
	DBErrorUnique     DBErrorKind = "unique_violation"
	DBErrorForeignKey DBErrorKind = "foreign_key_violation"
	DBErrorNotNull    DBErrorKind = "not_null_violation"
	DBErrorOther      DBErrorKind = "other"
)

// ClassifyDBError maps driver errors from PostgreSQL and SQLite onto a common kind.
func ClassifyDBError(err error) DBErrorKind {
	if err == nil {
		return DBErrorNone
	}

	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows) {
		return DBErrorNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return DBErrorUnique
		case "23503":
			return DBErrorForeignKey
		case "23502":
			return DBErrorNotNull
		}
		return DBErrorOther
	}

	// SQLite 只暴露错误文本
	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "UNIQUE constraint failed"), strings.Contains(errStr, "duplicate key"):
		return DBErrorUnique
	case strings.Contains(errStr, "FOREIGN KEY constraint failed"):
		return DBErrorForeignKey
	case strings.Contains(errStr, "NOT NULL constraint failed"):
		return DBErrorNotNull
	}
	return DBErrorOther
}
