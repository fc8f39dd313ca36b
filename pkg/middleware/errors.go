package middleware

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyOverride is returned for an override list with no entries.
	ErrEmptyOverride = errors.New("middleware override is empty")

	// ErrMultipleInherit is returned when an override holds more than one
	// inheritance marker.
	ErrMultipleInherit = errors.New("middleware override has more than one inheritance marker")

	// ErrNilMiddleware is returned when a middleware list contains nil.
	ErrNilMiddleware = errors.New("middleware list contains nil")
)

// ConfigError reports a middleware list rejected at registration time.
type ConfigError struct {
	Route string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Route == "" {
		return fmt.Sprintf("middleware configuration: %v", e.Err)
	}
	return fmt.Sprintf("middleware configuration for %s: %v", e.Route, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// ValidateOverride checks the rules for an explicit override list.
func ValidateOverride(route string, override []Middleware) error {
	if len(override) == 0 {
		return &ConfigError{Route: route, Err: ErrEmptyOverride}
	}
	markers := 0
	for _, m := range override {
		if m == nil {
			return &ConfigError{Route: route, Err: ErrNilMiddleware}
		}
		if IsInherit(m) {
			markers++
		}
	}
	if markers > 1 {
		return &ConfigError{Route: route, Err: ErrMultipleInherit}
	}
	return nil
}

// ValidateLocal checks a local (non-override) middleware list. The
// inheritance marker is meaningless there and rejected.
func ValidateLocal(route string, local []Middleware) error {
	for _, m := range local {
		if m == nil {
			return &ConfigError{Route: route, Err: ErrNilMiddleware}
		}
		if IsInherit(m) {
			return &ConfigError{Route: route, Err: fmt.Errorf("inheritance marker only allowed in overrides")}
		}
	}
	return nil
}
