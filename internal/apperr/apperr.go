// Package apperr holds the error values services return and handlers translate into HTTP responses.
package apperr

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("you do not have permission to perform this action")
	ErrUnauthorized = errors.New("authentication credentials were not provided or are invalid")
)

// ValidationError carries per-field messages.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(e.Fields[k], "; "))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// Add appends msg to field and returns e for chaining.
func (e *ValidationError) Add(field, msg string) *ValidationError {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], msg)
	return e
}

// OrNil returns nil when no field has been flagged.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// Invalid builds a single-field ValidationError.
func Invalid(field, msg string) *ValidationError {
	return (&ValidationError{}).Add(field, msg)
}

// BadRequestError is a malformed request that is not tied to a field.
type BadRequestError struct {
	Message string
}

func (e *BadRequestError) Error() string {
	return e.Message
}

func BadRequest(msg string) *BadRequestError {
	return &BadRequestError{Message: msg}
}

// NotFoundError is ErrNotFound with a client-facing message.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string {
	return e.Message
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

func NotFound(msg string) *NotFoundError {
	return &NotFoundError{Message: msg}
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsBadRequest(err error) bool {
	var be *BadRequestError
	return errors.As(err, &be)
}
