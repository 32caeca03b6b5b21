package api

import (
	"errors"
	"fmt"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrBackpressure = errors.New("backpressure")
)

// NewKind tags an operation's failure with one of the sentinel kinds above.
func NewKind(op string, kind error) error {
	return fmt.Errorf("%s: %w", op, kind)
}

// WrapKind tags err with kind, keeping err in the chain.
func WrapKind(op string, kind, err error) error {
	return fmt.Errorf("%s: %w: %w", op, kind, err)
}

// paramError reports a query parameter that could not be parsed.
type paramError struct {
	name string
	err  error
}

func (e *paramError) Error() string { return fmt.Sprintf("%s: %v", e.name, e.err) }

func (e *paramError) Unwrap() error { return e.err }

// Is makes errors.Is(err, ErrBadRequest) true.
func (e *paramError) Is(target error) bool { return target == ErrBadRequest }
