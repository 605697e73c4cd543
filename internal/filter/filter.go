// Package filter parses task list query parameters into a validated TaskQuery.
package filter

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"taskmanager/internal/apperr"
	"taskmanager/internal/model"
)

// Orderable task fields.
const (
	FieldCreatedAt = "created_at"
	FieldDueDate   = "due_date"
	FieldPriority  = "priority"
	FieldStatus    = "status"
)

var orderable = map[string]bool{
	FieldCreatedAt: true,
	FieldDueDate:   true,
	FieldPriority:  true,
	FieldStatus:    true,
}

// DefaultOrdering is used when no valid ordering field is requested.
var DefaultOrdering = []OrderField{{Field: FieldCreatedAt, Desc: true}}

type OrderField struct {
	Field string
	Desc  bool
}

// TaskQuery is the set of predicates and ordering applied to a task listing.
// Nil fields add no predicate.
type TaskQuery struct {
	Status        *model.TaskStatus
	Priority      *model.TaskPriority
	DueAfter      *time.Time
	DueBefore     *time.Time
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	AssignedTo    *int64
	Search        string
	Ordering      []OrderField
}

// ParseTaskQuery validates every recognised parameter and reports all bad ones at once.
// Blank values are treated as absent.
func ParseTaskQuery(values url.Values) (TaskQuery, error) {
	q := TaskQuery{Ordering: DefaultOrdering}
	verr := &apperr.ValidationError{}

	if v := strings.TrimSpace(values.Get("status")); v != "" {
		s := model.TaskStatus(v)
		if !s.Valid() {
			verr.Add("status", "Select a valid choice. "+v+" is not one of the available choices.")
		} else {
			q.Status = &s
		}
	}

	if v := strings.TrimSpace(values.Get("priority")); v != "" {
		p := model.TaskPriority(v)
		if !p.Valid() {
			verr.Add("priority", "Select a valid choice. "+v+" is not one of the available choices.")
		} else {
			q.Priority = &p
		}
	}

	q.DueAfter = parseTimeParam(values, "due_date_after", verr)
	q.DueBefore = parseTimeParam(values, "due_date_before", verr)
	q.CreatedAfter = parseTimeParam(values, "created_after", verr)
	q.CreatedBefore = parseTimeParam(values, "created_before", verr)

	if v := strings.TrimSpace(values.Get("assigned_to")); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			verr.Add("assigned_to", "Enter a valid user id.")
		} else {
			q.AssignedTo = &id
		}
	}

	q.Search = strings.TrimSpace(values.Get("search"))

	if v := values.Get("ordering"); v != "" {
		if fields := ParseOrdering(v); len(fields) > 0 {
			q.Ordering = fields
		}
	}

	if err := verr.OrNil(); err != nil {
		return TaskQuery{}, err
	}
	return q, nil
}

// ParseOrdering keeps the known fields of a comma-separated list, first occurrence wins.
func ParseOrdering(raw string) []OrderField {
	var fields []OrderField
	seen := make(map[string]bool)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		desc := strings.HasPrefix(part, "-")
		name := strings.TrimPrefix(part, "-")
		if !orderable[name] || seen[name] {
			continue
		}
		seen[name] = true
		fields = append(fields, OrderField{Field: name, Desc: desc})
	}
	return fields
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTime accepts an ISO-8601 date or datetime. Values without a zone are UTC;
// a bare date means midnight.
func ParseTime(v string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func parseTimeParam(values url.Values, key string, verr *apperr.ValidationError) *time.Time {
	v := strings.TrimSpace(values.Get(key))
	if v == "" {
		return nil
	}
	t, ok := ParseTime(v)
	if !ok {
		verr.Add(key, "Enter a valid date/time.")
		return nil
	}
	return &t
}
