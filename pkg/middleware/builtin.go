package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/getmockd/switchboard/internal/id"
	"github.com/getmockd/switchboard/pkg/logging"
)

// Header and local keys used by the builtin middleware.
const (
	HeaderRequestID    = "X-Request-ID"
	HeaderResponseTime = "X-Response-Time"

	LocalRequestID = "request_id"
)

// Logging logs one line per request after the rest of the chain returns.
func Logging(log *slog.Logger) Middleware {
	log = logging.OrNop(log)
	return Named("logging", func(c *Context, next Next) *Response {
		start := time.Now()
		resp := next(c)
		attrs := []any{
			"protocol", c.Protocol,
			"method", c.Method,
			"path", c.Path,
			"status", resp.Status,
			"duration", time.Since(start),
		}
		if rid, ok := LocalValue[string](c.Locals, LocalRequestID); ok {
			attrs = append(attrs, "request_id", rid)
		}
		level := slog.LevelInfo
		if resp.Status >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		log.Log(c.Context(), level, "request", attrs...)
		return resp
	})
}

// Recover turns a panic in the rest of the chain into a 500 response.
func Recover(log *slog.Logger) Middleware {
	log = logging.OrNop(log)
	return Named("recover", func(c *Context, next Next) (resp *Response) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic in request chain",
					"protocol", c.Protocol,
					"path", c.Path,
					"panic", fmt.Sprint(r),
					"stack", string(debug.Stack()))
				resp = Text(http.StatusInternalServerError, "internal server error")
			}
		}()
		return next(c)
	})
}

// RequestID keeps a valid incoming X-Request-ID or assigns a new one, and
// echoes it on the response.
func RequestID() Middleware {
	return Named("request_id", func(c *Context, next Next) *Response {
		rid := c.Header.Get(HeaderRequestID)
		if !id.Valid(rid) {
			rid = id.Request()
			c.Header.Set(HeaderRequestID, rid)
		}
		c.Locals.Set(LocalRequestID, rid)
		resp := next(c)
		resp.Header.Set(HeaderRequestID, rid)
		return resp
	})
}

// Timing adds the time spent in the rest of the chain as a response header.
func Timing() Middleware {
	return Named("timing", func(c *Context, next Next) *Response {
		start := time.Now()
		resp := next(c)
		elapsed := time.Since(start)
		resp.Header.Set(HeaderResponseTime, strconv.FormatFloat(float64(elapsed.Microseconds())/1000, 'f', 3, 64)+"ms")
		return resp
	})
}
