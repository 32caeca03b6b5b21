package service

import (
	"errors"
	"fmt"
)

// Sentinel kinds returned by the query and write APIs.
var (
	ErrValidation  = errors.New("validation failed")
	ErrNotFound    = errors.New("entity not ranked")
	ErrUnavailable = errors.New("ranking backend unavailable")
	ErrNotStarted  = errors.New("service not started")
)

// ValidationError describes a rejected request parameter. It matches
// ErrValidation with errors.Is.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrValidation) true.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
