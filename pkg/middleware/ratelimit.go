package middleware

import (
	"net/http"
	"strconv"

	"github.com/getmockd/switchboard/pkg/ratelimit"
)

// RateLimit short-circuits with 429 once the client behind a request has
// used up its tokens. A nil limiter passes everything through.
func RateLimit(limiter *ratelimit.Limiter) Middleware {
	return Named("rate_limit", func(c *Context, next Next) *Response {
		if limiter == nil {
			return next(c)
		}

		key := limiter.ClientIP(c.Remote, c.Header)
		allowed, remaining, retryAfter := limiter.Allow(key)
		if !allowed {
			resp := Text(http.StatusTooManyRequests, "rate limit exceeded")
			resp.Header.Set("X-RateLimit-Limit", strconv.Itoa(limiter.Burst()))
			resp.Header.Set("X-RateLimit-Remaining", "0")
			resp.Header.Set("Retry-After", strconv.FormatInt(retryAfter, 10))
			return resp
		}

		resp := next(c)
		resp.Header.Set("X-RateLimit-Limit", strconv.Itoa(limiter.Burst()))
		resp.Header.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		return resp
	})
}
