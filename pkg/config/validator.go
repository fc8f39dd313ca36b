package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/getmockd/switchboard/pkg/logging"
)

// KnownProtocols lists the protocol tags routes may be attached to.
var KnownProtocols = []string{"http", "h2c", "websocket", "mqtt", "text", "mux"}

// detectable lists the protocols that can appear in the detection order.
var detectable = []string{"http", "h2c", "mqtt", "text", "mux"}

var middlewareTypes = []string{
	MiddlewareLogging, MiddlewareRecover, MiddlewareRequestID, MiddlewareTiming,
	MiddlewareMetrics, MiddlewareRateLimit, MiddlewareJWTAuth, MiddlewareGuard, MiddlewareGzip,
}

// ValidationError describes one invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the whole configuration and returns every problem found.
func (c *Config) Validate() error {
	var errs []error
	add := func(field, format string, args ...any) {
		errs = append(errs, &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if c.Server.Listen == "" {
		add("server.listen", "is required")
	}
	if c.Server.MaxConnectionTime < 0 {
		add("server.maxConnectionTime", "must not be negative")
	}
	if c.Server.ReadBufferSize < 0 {
		add("server.readBufferSize", "must not be negative")
	}
	if c.Admin.Enabled && c.Admin.Listen == "" {
		add("admin.listen", "is required when admin is enabled")
	}
	if err := logging.ValidateLevel(c.Log.Level); err != nil {
		add("log.level", "%v", err)
	}
	if err := logging.ValidateFormat(c.Log.Format); err != nil {
		add("log.format", "%v", err)
	}
	if err := c.Pool.Validate(); err != nil {
		add("pool", "%v", err)
	}

	if len(c.Protocols.Order) == 0 {
		add("protocols.order", "at least one protocol is required")
	}
	seen := map[string]bool{}
	for _, p := range c.Protocols.Order {
		if !slices.Contains(detectable, p) {
			add("protocols.order", "unknown or undetectable protocol %q", p)
		}
		if seen[p] {
			add("protocols.order", "protocol %q listed twice", p)
		}
		seen[p] = true
	}
	if c.Protocols.PeekSize < 0 {
		add("protocols.peekSize", "must not be negative")
	}

	for name, spec := range c.Middleware {
		if err := spec.validate(); err != nil {
			add("middleware."+name, "%v", err)
		}
	}

	for proto, set := range c.Routes {
		field := "routes." + proto
		if !slices.Contains(KnownProtocols, proto) {
			add(field, "unknown protocol %q", proto)
			continue
		}
		for _, name := range set.Middleware {
			if !c.middlewareDefined(name) {
				add(field+".middleware", "undefined middleware %q", name)
			}
		}
		for i, r := range set.Routes {
			errs = append(errs, c.validateRoute(fmt.Sprintf("%s.routes[%d]", field, i), r)...)
		}
	}

	return errors.Join(errs...)
}

func (c *Config) validateRoute(field string, r RouteConfig) []error {
	var errs []error
	add := func(f, format string, args ...any) {
		errs = append(errs, &ValidationError{Field: f, Message: fmt.Sprintf(format, args...)})
	}

	if !strings.HasPrefix(r.Path, "/") {
		add(field+".path", "must start with /")
	}
	for _, name := range r.Middleware {
		if name == InheritMarker {
			add(field+".middleware", "%q is only allowed in override", InheritMarker)
			continue
		}
		if !c.middlewareDefined(name) {
			add(field+".middleware", "undefined middleware %q", name)
		}
	}
	if r.Override != nil {
		if len(r.Override) == 0 {
			add(field+".override", "must not be empty")
		}
		markers := 0
		for _, name := range r.Override {
			if name == InheritMarker {
				markers++
				continue
			}
			if !c.middlewareDefined(name) {
				add(field+".override", "undefined middleware %q", name)
			}
		}
		if markers > 1 {
			add(field+".override", "%q may appear at most once", InheritMarker)
		}
	}
	if r.Response != nil && r.Proxy != "" {
		add(field, "response and proxy are mutually exclusive")
	}
	if r.Response != nil && r.Response.Status != 0 && (r.Response.Status < 100 || r.Response.Status > 999) {
		add(field+".response.status", "invalid status %d", r.Response.Status)
	}
	if r.Proxy != "" && !strings.HasPrefix(r.Proxy, "http://") && !strings.HasPrefix(r.Proxy, "https://") {
		add(field+".proxy", "must be an http or https URL")
	}
	return errs
}

func (c *Config) middlewareDefined(name string) bool {
	if _, ok := c.Middleware[name]; ok {
		return true
	}
	return slices.Contains(BuiltinMiddleware, name)
}

func (s MiddlewareSpec) validate() error {
	if !slices.Contains(middlewareTypes, s.Type) {
		return fmt.Errorf("unknown type %q", s.Type)
	}
	switch s.Type {
	case MiddlewareRateLimit:
		if s.Rate < 0 || s.Burst < 0 {
			return errors.New("rate and burst must not be negative")
		}
	case MiddlewareJWTAuth:
		if s.Secret == "" {
			return errors.New("secret is required")
		}
	case MiddlewareGuard:
		if strings.TrimSpace(s.Expression) == "" {
			return errors.New("expression is required")
		}
	case MiddlewareGzip:
		if s.Level < -2 || s.Level > 9 {
			return fmt.Errorf("invalid gzip level %d", s.Level)
		}
	}
	return nil
}
