package policy

import (
	"fmt"

	"taskmanager/internal/apperr"
	"taskmanager/internal/model"
)

// Access 访问级别
type Access int

const (
	AccessNone Access = iota
	AccessRead
	AccessWrite
)

func (a Access) String() string {
	switch a {
	case AccessRead:
		return "read"
	case AccessWrite:
		return "write"
	}
	return "none"
}

// TaskAccess 计算请求者对任务的访问级别：owner 可写，assignee 只读
func TaskAccess(requesterID int64, task *model.Task) Access {
	switch {
	case task == nil:
		return AccessNone
	case task.OwnerID == requesterID:
		return AccessWrite
	case task.IsAssignedTo(requesterID):
		return AccessRead
	}
	return AccessNone
}

// CheckTask 检查请求者是否具有所需访问级别（返回错误而不是布尔值，便于处理）
func CheckTask(requesterID int64, task *model.Task, want Access) error {
	if got := TaskAccess(requesterID, task); got < want {
		return &PermissionDeniedError{UserID: requesterID, TaskID: taskID(task), Want: want}
	}
	return nil
}

// CheckAuthor 检查请求者是否为记录作者（评论、附件、分类、标签）
func CheckAuthor(requesterID, authorID int64) error {
	if requesterID != authorID {
		return &PermissionDeniedError{UserID: requesterID, Want: AccessWrite}
	}
	return nil
}

// PermissionDeniedError 表示权限不足的错误
type PermissionDeniedError struct {
	UserID int64
	TaskID int64
	Want   Access
}

func (e *PermissionDeniedError) Error() string {
	if e.TaskID != 0 {
		return fmt.Sprintf("user %d lacks %s access to task %d", e.UserID, e.Want, e.TaskID)
	}
	return fmt.Sprintf("user %d lacks %s access", e.UserID, e.Want)
}

// Unwrap lets callers match apperr.ErrForbidden.
func (e *PermissionDeniedError) Unwrap() error {
	return apperr.ErrForbidden
}

func taskID(t *model.Task) int64 {
	if t == nil {
		return 0
	}
	return t.ID
}
