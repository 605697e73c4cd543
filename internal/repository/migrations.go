package repository

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// migration holds a single schema migration with its target version and statements.
type migration struct {
	version    int
	statements []string
}

var postgresMigrations = []migration{
	{
		version: 1,
		statements: []string{
			`CREATE TABLE IF NOT EXISTS users (
				id            BIGSERIAL PRIMARY KEY,
				username      VARCHAR(150) NOT NULL UNIQUE,
				email         VARCHAR(254) NOT NULL UNIQUE,
				password_hash TEXT NOT NULL,
				first_name    VARCHAR(150) NOT NULL DEFAULT '',
				last_name     VARCHAR(150) NOT NULL DEFAULT '',
				phone         VARCHAR(15),
				bio           VARCHAR(500) NOT NULL DEFAULT '',
				created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE TABLE IF NOT EXISTS tasks (
				id             BIGSERIAL PRIMARY KEY,
				title          VARCHAR(200) NOT NULL,
				description    TEXT NOT NULL DEFAULT '',
				status         VARCHAR(20) NOT NULL DEFAULT 'todo'
					CHECK (status IN ('todo', 'in_progress', 'completed')),
				priority       VARCHAR(20) NOT NULL DEFAULT 'medium'
					CHECK (priority IN ('low', 'medium', 'high')),
				due_date       TIMESTAMPTZ,
				owner_id       BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				assigned_to_id BIGINT REFERENCES users(id) ON DELETE SET NULL,
				created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				completed_at   TIMESTAMPTZ
			)`,
			`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status)`,
			`CREATE INDEX IF NOT EXISTS idx_tasks_priority ON tasks(priority)`,
			`CREATE INDEX IF NOT EXISTS idx_tasks_due_date ON tasks(due_date)`,
			`CREATE INDEX IF NOT EXISTS idx_tasks_owner ON tasks(owner_id)`,
			`CREATE INDEX IF NOT EXISTS idx_tasks_assigned_to ON tasks(assigned_to_id)`,
			`CREATE TABLE IF NOT EXISTS categories (
				id            BIGSERIAL PRIMARY KEY,
				name          VARCHAR(50) NOT NULL UNIQUE,
				description   TEXT NOT NULL DEFAULT '',
				color         VARCHAR(7) NOT NULL DEFAULT '#808080',
				created_by_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE TABLE IF NOT EXISTS tags (
				id            BIGSERIAL PRIMARY KEY,
				name          VARCHAR(50) NOT NULL UNIQUE,
				created_by_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE TABLE IF NOT EXISTS task_categories (
				id          BIGSERIAL PRIMARY KEY,
				task_id     BIGINT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
				category_id BIGINT NOT NULL REFERENCES categories(id) ON DELETE CASCADE,
				UNIQUE (task_id, category_id)
			)`,
			`CREATE TABLE IF NOT EXISTS task_tags (
				id      BIGSERIAL PRIMARY KEY,
				task_id BIGINT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
				tag_id  BIGINT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
				UNIQUE (task_id, tag_id)
			)`,
			`CREATE TABLE IF NOT EXISTS comments (
				id         BIGSERIAL PRIMARY KEY,
				task_id    BIGINT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
				author_id  BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				content    TEXT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE INDEX IF NOT EXISTS idx_comments_task ON comments(task_id)`,
			`CREATE TABLE IF NOT EXISTS attachments (
				id             BIGSERIAL PRIMARY KEY,
				task_id        BIGINT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
				storage_key    VARCHAR(255) NOT NULL UNIQUE,
				filename       VARCHAR(255) NOT NULL,
				file_size      BIGINT NOT NULL,
				uploaded_by_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				uploaded_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE INDEX IF NOT EXISTS idx_attachments_task ON attachments(task_id)`,
		},
	},
}

var sqliteMigrations = []migration{
	{
		version: 1,
		statements: []string{
			`CREATE TABLE IF NOT EXISTS users (
				id            INTEGER PRIMARY KEY AUTOINCREMENT,
				username      TEXT NOT NULL UNIQUE,
				email         TEXT NOT NULL UNIQUE,
				password_hash TEXT NOT NULL,
				first_name    TEXT NOT NULL DEFAULT '',
				last_name     TEXT NOT NULL DEFAULT '',
				phone         TEXT,
				bio           TEXT NOT NULL DEFAULT '',
				created_at    DATETIME NOT NULL,
				updated_at    DATETIME NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS tasks (
				id             INTEGER PRIMARY KEY AUTOINCREMENT,
				title          TEXT NOT NULL,
				description    TEXT NOT NULL DEFAULT '',
				status         TEXT NOT NULL DEFAULT 'todo'
					CHECK (status IN ('todo', 'in_progress', 'completed')),
				priority       TEXT NOT NULL DEFAULT 'medium'
					CHECK (priority IN ('low', 'medium', 'high')),
				due_date       DATETIME,
				owner_id       INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				assigned_to_id INTEGER REFERENCES users(id) ON DELETE SET NULL,
				created_at     DATETIME NOT NULL,
				updated_at     DATETIME NOT NULL,
				completed_at   DATETIME
			)`,
			`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status)`,
			`CREATE INDEX IF NOT EXISTS idx_tasks_priority ON tasks(priority)`,
			`CREATE INDEX IF NOT EXISTS idx_tasks_due_date ON tasks(due_date)`,
			`CREATE INDEX IF NOT EXISTS idx_tasks_owner ON tasks(owner_id)`,
			`CREATE INDEX IF NOT EXISTS idx_tasks_assigned_to ON tasks(assigned_to_id)`,
			`CREATE TABLE IF NOT EXISTS categories (
				id            INTEGER PRIMARY KEY AUTOINCREMENT,
				name          TEXT NOT NULL UNIQUE,
				description   TEXT NOT NULL DEFAULT '',
				color         TEXT NOT NULL DEFAULT '#808080',
				created_by_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				created_at    DATETIME NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS tags (
				id            INTEGER PRIMARY KEY AUTOINCREMENT,
				name          TEXT NOT NULL UNIQUE,
				created_by_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				created_at    DATETIME NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS task_categories (
				id          INTEGER PRIMARY KEY AUTOINCREMENT,
				task_id     INTEGER NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
				category_id INTEGER NOT NULL REFERENCES categories(id) ON DELETE CASCADE,
				UNIQUE (task_id, category_id)
			)`,
			`CREATE TABLE IF NOT EXISTS task_tags (
				id      INTEGER PRIMARY KEY AUTOINCREMENT,
				task_id INTEGER NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
				tag_id  INTEGER NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
				UNIQUE (task_id, tag_id)
			)`,
			`CREATE TABLE IF NOT EXISTS comments (
				id         INTEGER PRIMARY KEY AUTOINCREMENT,
				task_id    INTEGER NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
				author_id  INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				content    TEXT NOT NULL,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_comments_task ON comments(task_id)`,
			`CREATE TABLE IF NOT EXISTS attachments (
				id             INTEGER PRIMARY KEY AUTOINCREMENT,
				task_id        INTEGER NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
				storage_key    TEXT NOT NULL UNIQUE,
				filename       TEXT NOT NULL,
				file_size      INTEGER NOT NULL,
				uploaded_by_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				uploaded_at    DATETIME NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_attachments_task ON attachments(task_id)`,
		},
	},
}

func migrationsFor(driver string) ([]migration, error) {
	switch driver {
	case "pgx", "postgres":
		return postgresMigrations, nil
	case "sqlite":
		return sqliteMigrations, nil
	}
	return nil, fmt.Errorf("no migrations for driver %q", driver)
}

// Migrate applies outstanding migrations for the store's driver, each in its own transaction.
func (s *Store) Migrate(ctx context.Context) error {
	migrations, err := migrationsFor(s.db.DriverName())
	if err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	var current int
	if err := s.db.GetContext(ctx, &current,
		`SELECT COALESCE(MAX(version), 0) FROM schema_version`); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}

		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("beginning migration v%d: %w", m.version, err)
		}
		for _, stmt := range m.statements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("applying migration v%d: %w", m.version, err)
			}
		}
		if _, err := tx.ExecContext(ctx,
			tx.Rebind(`INSERT INTO schema_version (version) VALUES (?)`), m.version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("recording migration v%d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration v%d: %w", m.version, err)
		}
		s.logger.Info("Applied schema migration", zap.Int("version", m.version))
	}
	return nil
}
