package model

import "errors"

var (
	ErrInvalidKind = errors.New("invalid entity kind")
	ErrInvalidUUID = errors.New("invalid uuid")
)
