package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"taskmanager/internal/model"
	"taskmanager/internal/repository"
	"taskmanager/pkg/db"
)

// NewTestStore creates an in-memory SQLite store with all migrations applied.
// It automatically closes the database when the test completes.
func NewTestStore(t *testing.T) *repository.Store {
	t.Helper()

	ctx := context.Background()
	sqlDB, err := db.OpenSQLite(ctx, ":memory:")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() {
		if err := sqlDB.Close(); err != nil {
			t.Errorf("closing test database: %v", err)
		}
	})

	store := repository.NewStore(sqlDB, zaptest.NewLogger(t))
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}
	return store
}

// CreateUser inserts a user with a throwaway password hash.
func CreateUser(t *testing.T, store *repository.Store, username string) *model.User {
	t.Helper()

	u := &model.User{
		Username:     username,
		Email:        fmt.Sprintf("%s@example.com", username),
		PasswordHash: "x",
	}
	if err := store.Repos().Users.Create(context.Background(), u); err != nil {
		t.Fatalf("creating user %s: %v", username, err)
	}
	return u
}

// CreateTask inserts a task owned by ownerID with the given title.
func CreateTask(t *testing.T, store *repository.Store, ownerID int64, title string, mutate ...func(*model.Task)) *model.Task {
	t.Helper()

	task := &model.Task{
		Title:    title,
		Status:   model.StatusTodo,
		Priority: model.PriorityMedium,
		OwnerID:  ownerID,
	}
	for _, m := range mutate {
		m(task)
	}
	task.ApplyCompletion(time.Now())
	if err := store.Repos().Tasks.Insert(context.Background(), task); err != nil {
		t.Fatalf("creating task %q: %v", title, err)
	}
	return task
}
