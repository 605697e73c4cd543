package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"taskmanager/internal/apperr"
	"taskmanager/internal/model"
	"taskmanager/internal/repository"
	"taskmanager/pkg/util"
)

// Nullable distinguishes an absent JSON field (Set == false) from an explicit null (Value == nil).
type Nullable[T any] struct {
	Set   bool
	Value *T
}

func (n *Nullable[T]) UnmarshalJSON(data []byte) error {
	n.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		n.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	n.Value = &v
	return nil
}

// Of returns a set, non-null Nullable.
func Of[T any](v T) Nullable[T] {
	return Nullable[T]{Set: true, Value: &v}
}

// Null returns a set, null Nullable.
func Null[T any]() Nullable[T] {
	return Nullable[T]{Set: true}
}

// ListResult is one page of rows plus the total row count.
type ListResult[T any] struct {
	Items []T
	Total int
}

func clock() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// mapWriteError turns constraint violations on a write into field errors.
func mapWriteError(err error, uniqueField, uniqueMsg string) error {
	if err == nil {
		return nil
	}
	var verr *apperr.ValidationError
	if errors.As(err, &verr) || errors.Is(err, apperr.ErrNotFound) || errors.Is(err, apperr.ErrForbidden) {
		return err
	}
	switch util.ClassifyDBError(err) {
	case util.DBErrorUnique:
		if uniqueField != "" {
			return apperr.Invalid(uniqueField, uniqueMsg)
		}
		return apperr.Invalid("non_field_errors", "A record with these values already exists.")
	case util.DBErrorForeignKey:
		return apperr.Invalid("non_field_errors", "A referenced object does not exist.")
	case util.DBErrorNotFound:
		return apperr.ErrNotFound
	}
	return err
}

func requiredText(verr *apperr.ValidationError, field string, v *string, maxLen int) {
	if v == nil {
		verr.Add(field, "This field is required.")
		return
	}
	checkText(verr, field, v, maxLen)
}

func checkText(verr *apperr.ValidationError, field string, v *string, maxLen int) {
	if v == nil {
		return
	}
	if strings.TrimSpace(*v) == "" {
		verr.Add(field, "This field may not be blank.")
		return
	}
	if maxLen > 0 && len([]rune(*v)) > maxLen {
		verr.Add(field, fmt.Sprintf("Ensure this field has no more than %d characters.", maxLen))
	}
}

func invalidPK(verr *apperr.ValidationError, field string, id int64) {
	verr.Add(field, fmt.Sprintf("Invalid pk \"%d\" - object does not exist.", id))
}

// userSet collects user ids and resolves them in one query.
type userSet map[int64]model.User

func loadUsers(ctx context.Context, users *repository.UserRepository, ids ...int64) (userSet, error) {
	m, err := users.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	return userSet(m), nil
}

func (s userSet) get(id int64) model.User {
	if u, ok := s[id]; ok {
		return u
	}
	return model.User{ID: id}
}
