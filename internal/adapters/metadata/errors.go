package metadata

import "errors"

// ErrLookup marks a failed metadata lookup.
var ErrLookup = errors.New("metadata lookup failed")
