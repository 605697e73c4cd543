package model

import "time"

type TaskStatus string

const (
	StatusTodo       TaskStatus = "todo"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
)

// TaskStatuses lists statuses in rank order.
var TaskStatuses = []TaskStatus{StatusTodo, StatusInProgress, StatusCompleted}

func (s TaskStatus) Valid() bool {
	return s.Rank() >= 0
}

func (s TaskStatus) Rank() int {
	for i, v := range TaskStatuses {
		if v == s {
			return i
		}
	}
	return -1
}

type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
)

// TaskPriorities lists priorities in rank order.
var TaskPriorities = []TaskPriority{PriorityLow, PriorityMedium, PriorityHigh}

func (p TaskPriority) Valid() bool {
	return p.Rank() >= 0
}

func (p TaskPriority) Rank() int {
	for i, v := range TaskPriorities {
		if v == p {
			return i
		}
	}
	return -1
}

const TaskTitleMaxLen = 200

type Task struct {
	ID           int64        `db:"id"`
	Title        string       `db:"title"`
	Description  string       `db:"description"`
	Status       TaskStatus   `db:"status"`
	Priority     TaskPriority `db:"priority"`
	DueDate      *time.Time   `db:"due_date"`
	OwnerID      int64        `db:"owner_id"`
	AssignedToID *int64       `db:"assigned_to_id"`
	CreatedAt    time.Time    `db:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at"`
	CompletedAt  *time.Time   `db:"completed_at"`
}

// ApplyCompletion derives CompletedAt from Status. It must run before every task write.
// A task that stays completed keeps its original completion time.
func (t *Task) ApplyCompletion(now time.Time) {
	if t.Status == StatusCompleted {
		if t.CompletedAt == nil {
			ts := now.UTC()
			t.CompletedAt = &ts
		}
		return
	}
	t.CompletedAt = nil
}

// IsAssignedTo reports whether userID is the task's assignee.
func (t *Task) IsAssignedTo(userID int64) bool {
	return t.AssignedToID != nil && *t.AssignedToID == userID
}

// TaskSummary is a list row with owner and assignee resolved to usernames.
type TaskSummary struct {
	ID                 int64        `db:"id"`
	Title              string       `db:"title"`
	Status             TaskStatus   `db:"status"`
	Priority           TaskPriority `db:"priority"`
	DueDate            *time.Time   `db:"due_date"`
	OwnerUsername      string       `db:"owner_username"`
	AssignedToUsername *string      `db:"assigned_to_username"`
	CreatedAt          time.Time    `db:"created_at"`
}

// TaskDetail is a task with every related record loaded.
type TaskDetail struct {
	Task
	Owner       User
	AssignedTo  *User
	Categories  []CategoryWithCreator
	Tags        []TagWithCreator
	Comments    []CommentWithAuthor
	Attachments []AttachmentWithUploader
}
