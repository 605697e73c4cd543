package policy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"taskmanager/internal/apperr"
	"taskmanager/internal/model"
)

func ptr(v int64) *int64 { return &v }

func TestTaskAccess(t *testing.T) {
	task := &model.Task{ID: 9, OwnerID: 1, AssignedToID: ptr(2)}

	assert.Equal(t, AccessWrite, TaskAccess(1, task))
	assert.Equal(t, AccessRead, TaskAccess(2, task))
	assert.Equal(t, AccessNone, TaskAccess(3, task))
	assert.Equal(t, AccessNone, TaskAccess(1, nil))

	unassigned := &model.Task{ID: 10, OwnerID: 1}
	assert.Equal(t, AccessNone, TaskAccess(2, unassigned))
}

func TestCheckTask(t *testing.T) {
	task := &model.Task{ID: 9, OwnerID: 1, AssignedToID: ptr(2)}

	assert.NoError(t, CheckTask(1, task, AccessWrite))
	assert.NoError(t, CheckTask(2, task, AccessRead))

	err := CheckTask(2, task, AccessWrite)
	var denied *PermissionDeniedError
	assert.True(t, errors.As(err, &denied))
	assert.Equal(t, int64(9), denied.TaskID)
	assert.EqualError(t, err, "user 2 lacks write access to task 9")
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestCheckAuthor(t *testing.T) {
	assert.NoError(t, CheckAuthor(4, 4))
	assert.Error(t, CheckAuthor(4, 5))
}
