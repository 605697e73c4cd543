package repository

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"taskmanager/internal/filter"
	"taskmanager/internal/model"
)

// TaskScope selects which relation to the requester a listed task must have.
type TaskScope int

const (
	// ScopeVisible: owned by or assigned to the requester.
	ScopeVisible TaskScope = iota
	ScopeOwned
	ScopeAssigned
)

var orderExpr = map[string]string{
	filter.FieldCreatedAt: "t.created_at",
	filter.FieldDueDate:   "t.due_date",
	filter.FieldPriority:  rankCase("t.priority", priorityNames()),
	filter.FieldStatus:    rankCase("t.status", statusNames()),
}

// List returns one page of task summaries matching scope and q, plus the total match count.
func (r *TaskRepository) List(ctx context.Context, userID int64, scope TaskScope, q filter.TaskQuery, page Page) ([]model.TaskSummary, int, error) {
	where, args := buildTaskWhere(userID, scope, q)

	var total int
	countQuery := r.db.Rebind(`SELECT COUNT(*) FROM tasks t WHERE ` + where)
	if err := sqlx.GetContext(ctx, r.db, &total, countQuery, args...); err != nil {
		r.logger.Error("Failed to count tasks", zap.Int64("user_id", userID), zap.Error(err))
		return nil, 0, err
	}

	query := r.db.Rebind(`
        SELECT t.id, t.title, t.status, t.priority, t.due_date, t.created_at,
            o.username AS owner_username, a.username AS assigned_to_username
        FROM tasks t
        JOIN users o ON o.id = t.owner_id
        LEFT JOIN users a ON a.id = t.assigned_to_id
        WHERE ` + where + `
        ORDER BY ` + buildTaskOrder(q.Ordering) + `
        LIMIT ? OFFSET ?`)
	args = append(args, page.Limit, page.Offset)

	tasks := []model.TaskSummary{}
	if err := sqlx.SelectContext(ctx, r.db, &tasks, query, args...); err != nil {
		r.logger.Error("Failed to query tasks", zap.Int64("user_id", userID), zap.Error(err))
		return nil, 0, err
	}
	r.logger.Debug("Tasks listed",
		zap.Int64("user_id", userID),
		zap.Int("count", len(tasks)),
		zap.Int("total", total),
	)
	return tasks, total, nil
}

// buildTaskWhere ANDs the scope predicate with one predicate per present filter.
// Placeholders are '?' and rebound by the caller.
func buildTaskWhere(userID int64, scope TaskScope, q filter.TaskQuery) (string, []interface{}) {
	var conds []string
	var args []interface{}

	switch scope {
	case ScopeOwned:
		conds = append(conds, "t.owner_id = ?")
		args = append(args, userID)
	case ScopeAssigned:
		conds = append(conds, "t.assigned_to_id = ?")
		args = append(args, userID)
	default:
		conds = append(conds, visibleTo)
		args = append(args, userID, userID)
	}

	if q.Status != nil {
		conds = append(conds, "t.status = ?")
		args = append(args, string(*q.Status))
	}
	if q.Priority != nil {
		conds = append(conds, "t.priority = ?")
		args = append(args, string(*q.Priority))
	}
	if q.DueAfter != nil {
		conds = append(conds, "t.due_date >= ?")
		args = append(args, q.DueAfter.UTC())
	}
	if q.DueBefore != nil {
		conds = append(conds, "t.due_date <= ?")
		args = append(args, q.DueBefore.UTC())
	}
	if q.CreatedAfter != nil {
		conds = append(conds, "t.created_at >= ?")
		args = append(args, q.CreatedAfter.UTC())
	}
	if q.CreatedBefore != nil {
		conds = append(conds, "t.created_at <= ?")
		args = append(args, q.CreatedBefore.UTC())
	}
	if q.AssignedTo != nil {
		conds = append(conds, "t.assigned_to_id = ?")
		args = append(args, *q.AssignedTo)
	}
	if q.Search != "" {
		conds = append(conds, `(LOWER(t.title) LIKE ? ESCAPE '\' OR LOWER(t.description) LIKE ? ESCAPE '\')`)
		pattern := "%" + escapeLike(strings.ToLower(q.Search)) + "%"
		args = append(args, pattern, pattern)
	}

	return strings.Join(conds, " AND "), args
}

// buildTaskOrder renders the ORDER BY list. NULL due dates sort last ascending and first
// descending on every driver, and t.id breaks ties in the direction of the leading field.
func buildTaskOrder(fields []filter.OrderField) string {
	if len(fields) == 0 {
		fields = filter.DefaultOrdering
	}

	parts := make([]string, 0, len(fields)+1)
	for _, f := range fields {
		expr, ok := orderExpr[f.Field]
		if !ok {
			continue
		}
		dir := " ASC"
		if f.Desc {
			dir = " DESC"
		}
		if f.Field == filter.FieldDueDate {
			parts = append(parts, "CASE WHEN t.due_date IS NULL THEN 1 ELSE 0 END"+dir)
		}
		parts = append(parts, expr+dir)
	}

	tie := " ASC"
	if fields[0].Desc {
		tie = " DESC"
	}
	return strings.Join(append(parts, "t.id"+tie), ", ")
}

func rankCase(column string, names []string) string {
	var b strings.Builder
	b.WriteString("CASE " + column)
	for i, n := range names {
		b.WriteString(" WHEN '" + n + "' THEN ")
		b.WriteByte(byte('0' + i))
	}
	b.WriteString(" END")
	return b.String()
}

func priorityNames() []string {
	names := make([]string, len(model.TaskPriorities))
	for i, p := range model.TaskPriorities {
		names[i] = string(p)
	}
	return names
}

func statusNames() []string {
	names := make([]string, len(model.TaskStatuses))
	for i, s := range model.TaskStatuses {
		names[i] = string(s)
	}
	return names
}
