package id

import (
	"github.com/google/uuid"
)

// Conn returns a time-ordered identifier for an accepted connection.
// Falls back to a random UUID if the v7 generator fails.
func Conn() string {
	u, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return u.String()
}

// Request returns a random identifier for a single request.
func Request() string {
	return uuid.NewString()
}

// Valid reports whether s parses as a UUID.
func Valid(s string) bool {
	return uuid.Validate(s) == nil
}
