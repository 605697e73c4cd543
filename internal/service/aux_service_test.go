package service_test

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskmanager/internal/apperr"
	"taskmanager/internal/model"
	"taskmanager/internal/repository"
	"taskmanager/internal/service"
	"taskmanager/internal/testutil"
)

func TestCategoryService(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := testutil.CreateUser(t, f.store, "alice")
	bob := testutil.CreateUser(t, f.store, "bob")

	work, err := f.categories.Create(ctx, alice.ID, service.CategoryInput{Name: ptr("work")})
	require.NoError(t, err)
	assert.Equal(t, model.DefaultCategoryColor, work.Color)
	assert.Equal(t, "alice", work.CreatedBy.Username)

	_, err = f.categories.Create(ctx, bob.ID, service.CategoryInput{Name: ptr("work")})
	assert.Equal(t, []string{"category with this name already exists."}, fieldErrors(t, err)["name"])

	_, err = f.categories.Create(ctx, alice.ID, service.CategoryInput{Name: ptr("home"), Color: ptr("red")})
	assert.Contains(t, fieldErrors(t, err), "color")

	updated, err := f.categories.Update(ctx, alice.ID, work.ID, service.CategoryInput{Color: ptr("#00ff00")}, true)
	require.NoError(t, err)
	assert.Equal(t, "#00ff00", updated.Color)
	assert.Equal(t, "work", updated.Name)

	_, err = f.categories.Get(ctx, bob.ID, work.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.ErrorIs(t, f.categories.Delete(ctx, bob.ID, work.ID), apperr.ErrNotFound)

	res, err := f.categories.List(ctx, bob.ID, repository.Page{Limit: 10})
	require.NoError(t, err)
	assert.Zero(t, res.Total)

	require.NoError(t, f.categories.Delete(ctx, alice.ID, work.ID))
	res, err = f.categories.List(ctx, alice.ID, repository.Page{Limit: 10})
	require.NoError(t, err)
	assert.Zero(t, res.Total)
}

func TestTagService(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := testutil.CreateUser(t, f.store, "alice")

	_, err := f.tags.Create(ctx, alice.ID, ptr("   "))
	assert.Equal(t, []string{"This field may not be blank."}, fieldErrors(t, err)["name"])

	urgent, err := f.tags.Create(ctx, alice.ID, ptr("urgent"))
	require.NoError(t, err)
	_, err = f.tags.Create(ctx, alice.ID, ptr("urgent"))
	assert.Contains(t, fieldErrors(t, err), "name")

	_, err = f.tags.Update(ctx, alice.ID, urgent.ID, nil, false)
	assert.Contains(t, fieldErrors(t, err), "name")

	renamed, err := f.tags.Update(ctx, alice.ID, urgent.ID, ptr("later"), false)
	require.NoError(t, err)
	assert.Equal(t, "later", renamed.Name)

	res, err := f.tags.List(ctx, alice.ID, repository.Page{Limit: 10})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "alice", res.Items[0].CreatedBy.Username)
}

func TestCommentService(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := testutil.CreateUser(t, f.store, "alice")
	bob := testutil.CreateUser(t, f.store, "bob")
	carol := testutil.CreateUser(t, f.store, "carol")
	task := testutil.CreateTask(t, f.store, alice.ID, "shared", func(task *model.Task) {
		task.AssignedToID = &bob.ID
	})

	_, err := f.comments.Create(ctx, carol.ID, service.CommentInput{TaskID: &task.ID, Content: ptr("hi")})
	assert.Contains(t, fieldErrors(t, err), "task")

	_, err = f.comments.Create(ctx, bob.ID, service.CommentInput{TaskID: &task.ID, Content: ptr("")})
	assert.Contains(t, fieldErrors(t, err), "content")

	c, err := f.comments.Create(ctx, bob.ID, service.CommentInput{TaskID: &task.ID, Content: ptr("on it")})
	require.NoError(t, err)
	assert.Equal(t, bob.ID, c.AuthorID)
	assert.Equal(t, "bob", c.Author.Username)

	// the task owner can read but not edit another user's comment
	_, err = f.comments.Get(ctx, alice.ID, c.ID)
	require.NoError(t, err)
	_, err = f.comments.Update(ctx, alice.ID, c.ID, service.CommentInput{Content: ptr("x")}, true)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	assert.ErrorIs(t, f.comments.Delete(ctx, alice.ID, c.ID), apperr.ErrForbidden)

	_, err = f.comments.Get(ctx, carol.ID, c.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	res, err := f.comments.List(ctx, carol.ID, nil, repository.Page{Limit: 10})
	require.NoError(t, err)
	assert.Zero(t, res.Total)

	edited, err := f.comments.Update(ctx, bob.ID, c.ID, service.CommentInput{Content: ptr("done")}, true)
	require.NoError(t, err)
	assert.Equal(t, "done", edited.Content)
	assert.Equal(t, task.ID, edited.TaskID)

	res, err = f.comments.List(ctx, alice.ID, &task.ID, repository.Page{Limit: 10})
	require.NoError(t, err)
	require.Equal(t, 1, res.Total)
	assert.Equal(t, "done", res.Items[0].Content)

	require.NoError(t, f.comments.Delete(ctx, bob.ID, c.ID))
}

func TestAttachmentService(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := testutil.CreateUser(t, f.store, "alice")
	bob := testutil.CreateUser(t, f.store, "bob")
	task := testutil.CreateTask(t, f.store, alice.ID, "t")
	other := testutil.CreateTask(t, f.store, alice.ID, "other")
	hidden := testutil.CreateTask(t, f.store, bob.ID, "hidden")

	_, err := f.attachments.Create(ctx, alice.ID, service.AttachmentInput{TaskID: &task.ID})
	assert.Contains(t, fieldErrors(t, err), "file")

	_, err = f.attachments.Create(ctx, alice.ID, service.AttachmentInput{
		TaskID: &hidden.ID,
		File:   &service.Upload{Filename: "a.txt", Body: strings.NewReader("a")},
	})
	assert.Contains(t, fieldErrors(t, err), "task")

	_, err = f.attachments.Create(ctx, alice.ID, service.AttachmentInput{
		TaskID: &task.ID,
		File:   &service.Upload{Filename: "big.bin", Body: strings.NewReader(strings.Repeat("x", 2048))},
	})
	assert.Contains(t, fieldErrors(t, err), "file")

	a, err := f.attachments.Create(ctx, alice.ID, service.AttachmentInput{
		TaskID: &task.ID,
		File:   &service.Upload{Filename: `C:\docs\plan.txt`, Body: strings.NewReader("plan v1")},
	})
	require.NoError(t, err)
	assert.Equal(t, "plan.txt", a.Filename)
	assert.Equal(t, int64(len("plan v1")), a.FileSize)
	assert.Equal(t, "alice", a.UploadedBy.Username)

	oldKey := a.StorageKey
	replaced, err := f.attachments.Update(ctx, alice.ID, a.ID, service.AttachmentInput{
		TaskID: &other.ID,
		File:   &service.Upload{Filename: "plan2.md", Body: strings.NewReader("plan v2!")},
	}, true)
	require.NoError(t, err)
	assert.Equal(t, other.ID, replaced.TaskID)
	assert.Equal(t, "plan2.md", replaced.Filename)
	assert.Equal(t, int64(8), replaced.FileSize)
	assert.NotEqual(t, oldKey, replaced.StorageKey)
	_, err = f.blobs.Open(oldKey)
	assert.Error(t, err)

	rec, file, err := f.attachments.Open(ctx, alice.ID, a.ID)
	require.NoError(t, err)
	body, err := io.ReadAll(file)
	require.NoError(t, err)
	require.NoError(t, file.Close())
	assert.Equal(t, "plan v2!", string(body))
	assert.Equal(t, "plan2.md", rec.Filename)

	_, _, err = f.attachments.Open(ctx, bob.ID, a.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	require.NoError(t, f.attachments.Delete(ctx, alice.ID, a.ID))
	_, err = f.blobs.Open(replaced.StorageKey)
	assert.Error(t, err)
}
