package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskmanager/internal/apperr"
	"taskmanager/internal/filter"
	"taskmanager/internal/model"
	"taskmanager/internal/repository"
	"taskmanager/internal/testutil"
	"taskmanager/pkg/util"
)

var firstPage = repository.Page{Limit: 100}

func summaryIDs(rows []model.TaskSummary) []int64 {
	ids := make([]int64, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	return ids
}

func TestTaskRepository_Visibility(t *testing.T) {
	store := testutil.NewTestStore(t)
	ctx := context.Background()
	alice := testutil.CreateUser(t, store, "alice")
	bob := testutil.CreateUser(t, store, "bob")
	carol := testutil.CreateUser(t, store, "carol")

	owned := testutil.CreateTask(t, store, alice.ID, "owned")
	shared := testutil.CreateTask(t, store, alice.ID, "shared", func(task *model.Task) {
		task.AssignedToID = &bob.ID
	})
	bobs := testutil.CreateTask(t, store, bob.ID, "bob's")

	tasks := store.Repos().Tasks
	rows, total, err := tasks.List(ctx, alice.ID, repository.ScopeVisible, filter.TaskQuery{}, firstPage)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.ElementsMatch(t, []int64{owned.ID, shared.ID}, summaryIDs(rows))

	rows, _, err = tasks.List(ctx, bob.ID, repository.ScopeVisible, filter.TaskQuery{}, firstPage)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{shared.ID, bobs.ID}, summaryIDs(rows))

	rows, total, err = tasks.List(ctx, carol.ID, repository.ScopeVisible, filter.TaskQuery{}, firstPage)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, rows)

	_, err = tasks.GetVisible(ctx, shared.ID, bob.ID)
	require.NoError(t, err)
	_, err = tasks.GetVisible(ctx, shared.ID, carol.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	// owner who is also the assignee appears once
	self := testutil.CreateTask(t, store, carol.ID, "self", func(task *model.Task) {
		task.AssignedToID = &carol.ID
	})
	rows, total, err = tasks.List(ctx, carol.ID, repository.ScopeVisible, filter.TaskQuery{}, firstPage)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, []int64{self.ID}, summaryIDs(rows))
}

func TestTaskRepository_Scopes(t *testing.T) {
	store := testutil.NewTestStore(t)
	ctx := context.Background()
	alice := testutil.CreateUser(t, store, "alice")
	bob := testutil.CreateUser(t, store, "bob")

	mine := testutil.CreateTask(t, store, alice.ID, "mine")
	given := testutil.CreateTask(t, store, bob.ID, "given", func(task *model.Task) {
		task.AssignedToID = &alice.ID
	})

	rows, _, err := store.Repos().Tasks.List(ctx, alice.ID, repository.ScopeOwned, filter.TaskQuery{}, firstPage)
	require.NoError(t, err)
	assert.Equal(t, []int64{mine.ID}, summaryIDs(rows))

	rows, _, err = store.Repos().Tasks.List(ctx, alice.ID, repository.ScopeAssigned, filter.TaskQuery{}, firstPage)
	require.NoError(t, err)
	assert.Equal(t, []int64{given.ID}, summaryIDs(rows))
	assert.Equal(t, "bob", rows[0].OwnerUsername)
	require.NotNil(t, rows[0].AssignedToUsername)
	assert.Equal(t, "alice", *rows[0].AssignedToUsername)
}

func TestTaskRepository_Filters(t *testing.T) {
	store := testutil.NewTestStore(t)
	ctx := context.Background()
	alice := testutil.CreateUser(t, store, "alice")
	bob := testutil.CreateUser(t, store, "bob")

	jan := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	mar := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)

	report := testutil.CreateTask(t, store, alice.ID, "Quarterly REPORT", func(task *model.Task) {
		task.Priority = model.PriorityHigh
		task.DueDate = &jan
	})
	groceries := testutil.CreateTask(t, store, alice.ID, "Groceries", func(task *model.Task) {
		task.Description = "milk and 100% juice"
		task.Status = model.StatusCompleted
		task.Priority = model.PriorityLow
		task.DueDate = &mar
		task.AssignedToID = &bob.ID
	})
	plain := testutil.CreateTask(t, store, alice.ID, "plain_task")

	list := func(q filter.TaskQuery) []int64 {
		t.Helper()
		rows, total, err := store.Repos().Tasks.List(ctx, alice.ID, repository.ScopeVisible, q, firstPage)
		require.NoError(t, err)
		assert.Len(t, rows, total)
		return summaryIDs(rows)
	}
	status := func(s model.TaskStatus) *model.TaskStatus { return &s }
	priority := func(p model.TaskPriority) *model.TaskPriority { return &p }
	at := func(v time.Time) *time.Time { return &v }

	assert.ElementsMatch(t, []int64{report.ID, plain.ID}, list(filter.TaskQuery{Status: status(model.StatusTodo)}))
	assert.Equal(t, []int64{groceries.ID}, list(filter.TaskQuery{Priority: priority(model.PriorityLow)}))
	assert.Equal(t, []int64{report.ID}, list(filter.TaskQuery{Search: "report"}))
	assert.Equal(t, []int64{groceries.ID}, list(filter.TaskQuery{Search: "100%"}))
	assert.Equal(t, []int64{plain.ID}, list(filter.TaskQuery{Search: "_"}))
	assert.Empty(t, list(filter.TaskQuery{Search: "nothing matches"}))
	assert.Equal(t, []int64{groceries.ID}, list(filter.TaskQuery{AssignedTo: &bob.ID}))

	assert.Equal(t, []int64{groceries.ID}, list(filter.TaskQuery{DueAfter: at(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))}))
	assert.Equal(t, []int64{report.ID}, list(filter.TaskQuery{DueBefore: at(jan)}))
	assert.Equal(t, []int64{report.ID, groceries.ID}, list(filter.TaskQuery{
		DueAfter:  at(jan),
		DueBefore: at(mar),
		Ordering:  []filter.OrderField{{Field: filter.FieldDueDate}},
	}))

	assert.Empty(t, list(filter.TaskQuery{CreatedAfter: at(time.Now().Add(time.Hour))}))
	assert.Len(t, list(filter.TaskQuery{CreatedBefore: at(time.Now().Add(time.Hour))}), 3)

	// filters combine with AND
	assert.Empty(t, list(filter.TaskQuery{Status: status(model.StatusCompleted), Priority: priority(model.PriorityHigh)}))
}

func TestTaskRepository_Ordering(t *testing.T) {
	store := testutil.NewTestStore(t)
	ctx := context.Background()
	alice := testutil.CreateUser(t, store, "alice")

	due := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	high := testutil.CreateTask(t, store, alice.ID, "high", func(task *model.Task) {
		task.Priority = model.PriorityHigh
		task.Status = model.StatusInProgress
	})
	low := testutil.CreateTask(t, store, alice.ID, "low", func(task *model.Task) {
		task.Priority = model.PriorityLow
		task.Status = model.StatusCompleted
		task.DueDate = &due
	})
	medium := testutil.CreateTask(t, store, alice.ID, "medium")

	list := func(fields ...filter.OrderField) []int64 {
		t.Helper()
		rows, _, err := store.Repos().Tasks.List(ctx, alice.ID, repository.ScopeVisible, filter.TaskQuery{Ordering: fields}, firstPage)
		require.NoError(t, err)
		return summaryIDs(rows)
	}

	assert.Equal(t, []int64{low.ID, medium.ID, high.ID}, list(filter.OrderField{Field: filter.FieldPriority}))
	assert.Equal(t, []int64{high.ID, medium.ID, low.ID}, list(filter.OrderField{Field: filter.FieldPriority, Desc: true}))
	assert.Equal(t, []int64{medium.ID, high.ID, low.ID}, list(filter.OrderField{Field: filter.FieldStatus}))
	// newest first by default; equal timestamps fall back to id
	assert.Equal(t, []int64{medium.ID, low.ID, high.ID}, list())
	// null due dates sort last ascending
	assert.Equal(t, low.ID, list(filter.OrderField{Field: filter.FieldDueDate})[0])
}

func TestTaskRepository_Pagination(t *testing.T) {
	store := testutil.NewTestStore(t)
	ctx := context.Background()
	alice := testutil.CreateUser(t, store, "alice")
	for i := 0; i < 5; i++ {
		testutil.CreateTask(t, store, alice.ID, "task")
	}

	asc := filter.TaskQuery{Ordering: []filter.OrderField{{Field: filter.FieldCreatedAt}}}
	first, total, err := store.Repos().Tasks.List(ctx, alice.ID, repository.ScopeVisible, asc, repository.Page{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, first, 2)

	last, _, err := store.Repos().Tasks.List(ctx, alice.ID, repository.ScopeVisible, asc, repository.Page{Limit: 2, Offset: 4})
	require.NoError(t, err)
	require.Len(t, last, 1)
	assert.Greater(t, last[0].ID, first[1].ID)
}

func TestTaskRepository_UpdateAndDelete(t *testing.T) {
	store := testutil.NewTestStore(t)
	ctx := context.Background()
	alice := testutil.CreateUser(t, store, "alice")
	task := testutil.CreateTask(t, store, alice.ID, "draft")

	task.Title = "final"
	task.Status = model.StatusCompleted
	task.ApplyCompletion(time.Now())
	require.NoError(t, store.Repos().Tasks.Update(ctx, task))

	got, err := store.Repos().Tasks.GetVisible(ctx, task.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "final", got.Title)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.CompletedAt.Equal(*task.CompletedAt))

	require.NoError(t, store.Repos().Tasks.Delete(ctx, task.ID))
	assert.ErrorIs(t, store.Repos().Tasks.Delete(ctx, task.ID), apperr.ErrNotFound)
}

func TestTaskRepository_SetAssociations(t *testing.T) {
	store := testutil.NewTestStore(t)
	ctx := context.Background()
	alice := testutil.CreateUser(t, store, "alice")
	task := testutil.CreateTask(t, store, alice.ID, "linked")

	repos := store.Repos()
	work := &model.Category{Name: "work", Color: model.DefaultCategoryColor, CreatedByID: alice.ID}
	home := &model.Category{Name: "home", Color: model.DefaultCategoryColor, CreatedByID: alice.ID}
	require.NoError(t, repos.Categories.Insert(ctx, work))
	require.NoError(t, repos.Categories.Insert(ctx, home))

	require.NoError(t, repos.Tasks.SetCategories(ctx, task.ID, []int64{work.ID, home.ID, work.ID}))
	ids, err := repos.Tasks.CategoryIDs(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{work.ID, home.ID}, ids)

	require.NoError(t, repos.Tasks.SetCategories(ctx, task.ID, []int64{home.ID}))
	ids, err = repos.Tasks.CategoryIDs(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{home.ID}, ids)

	require.NoError(t, repos.Tasks.SetCategories(ctx, task.ID, nil))
	ids, err = repos.Tasks.CategoryIDs(ctx, task.ID)
	require.NoError(t, err)
	assert.Empty(t, ids)

	err = repos.Tasks.SetTags(ctx, task.ID, []int64{999})
	assert.Equal(t, util.DBErrorForeignKey, util.ClassifyDBError(err))
}

func TestStore_WithinTxRollsBack(t *testing.T) {
	store := testutil.NewTestStore(t)
	ctx := context.Background()
	alice := testutil.CreateUser(t, store, "alice")
	task := testutil.CreateTask(t, store, alice.ID, "atomic")

	tag := &model.Tag{Name: "keep", CreatedByID: alice.ID}
	require.NoError(t, store.Repos().Tags.Insert(ctx, tag))
	require.NoError(t, store.Repos().Tasks.SetTags(ctx, task.ID, []int64{tag.ID}))

	errBoom := errors.New("boom")
	err := store.WithinTx(ctx, func(r *repository.Repositories) error {
		if err := r.Tasks.SetTags(ctx, task.ID, nil); err != nil {
			return err
		}
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)

	ids, err := store.Repos().Tasks.TagIDs(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{tag.ID}, ids)
}

func TestTaskRepository_DeleteCascades(t *testing.T) {
	store := testutil.NewTestStore(t)
	ctx := context.Background()
	alice := testutil.CreateUser(t, store, "alice")
	task := testutil.CreateTask(t, store, alice.ID, "doomed")
	repos := store.Repos()

	cat := &model.Category{Name: "c", Color: model.DefaultCategoryColor, CreatedByID: alice.ID}
	tag := &model.Tag{Name: "t", CreatedByID: alice.ID}
	require.NoError(t, repos.Categories.Insert(ctx, cat))
	require.NoError(t, repos.Tags.Insert(ctx, tag))
	require.NoError(t, repos.Tasks.SetCategories(ctx, task.ID, []int64{cat.ID}))
	require.NoError(t, repos.Tasks.SetTags(ctx, task.ID, []int64{tag.ID}))
	require.NoError(t, repos.Comments.Insert(ctx, &model.Comment{TaskID: task.ID, AuthorID: alice.ID, Content: "hi"}))
	require.NoError(t, repos.Attachments.Insert(ctx, &model.Attachment{
		TaskID: task.ID, StorageKey: "k1", Filename: "a.txt", FileSize: 3, UploadedByID: alice.ID,
	}))

	require.NoError(t, repos.Tasks.Delete(ctx, task.ID))

	comments, err := repos.Comments.ListForTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Empty(t, comments)
	attachments, err := repos.Attachments.ListForTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Empty(t, attachments)
	catIDs, err := repos.Tasks.CategoryIDs(ctx, task.ID)
	require.NoError(t, err)
	assert.Empty(t, catIDs)
	tagIDs, err := repos.Tasks.TagIDs(ctx, task.ID)
	require.NoError(t, err)
	assert.Empty(t, tagIDs)

	// the category itself survives
	_, err = repos.Categories.GetOwned(ctx, cat.ID, alice.ID)
	assert.NoError(t, err)
}
