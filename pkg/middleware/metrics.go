package middleware

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts requests and observes their latency. Both collectors are
// labelled by protocol, method and status; either may be nil.
func Metrics(requests *prometheus.CounterVec, duration *prometheus.HistogramVec) Middleware {
	return Named("metrics", func(c *Context, next Next) *Response {
		start := time.Now()
		resp := next(c)
		status := strconv.Itoa(resp.Status)
		if requests != nil {
			requests.WithLabelValues(c.Protocol, c.Method, status).Inc()
		}
		if duration != nil {
			duration.WithLabelValues(c.Protocol, c.Method, status).Observe(time.Since(start).Seconds())
		}
		return resp
	})
}
