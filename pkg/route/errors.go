package route

import "errors"

var (
	// ErrInvalidPattern is returned for malformed route patterns.
	ErrInvalidPattern = errors.New("invalid route pattern")

	// ErrConflict is returned when a pattern clashes with an existing
	// parameter or wildcard segment of a different name.
	ErrConflict = errors.New("route conflict")
)
