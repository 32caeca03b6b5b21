package repository

import "errors"

// Sentinel kinds for ranked store errors.
var (
	ErrNotFound      = errors.New("entity not ranked")
	ErrInvalidLimit  = errors.New("invalid slice limit")
	ErrInvalidOffset = errors.New("invalid slice offset")
	ErrFrozen        = errors.New("partition is frozen")
)
