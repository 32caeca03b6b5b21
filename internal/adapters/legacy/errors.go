package legacy

import "errors"

// ErrUnavailable marks a failure of the relational store itself, as opposed
// to an entity that simply has no row.
var ErrUnavailable = errors.New("legacy store unavailable")
