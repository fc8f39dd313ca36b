package app

import (
	"net/http"
	"strings"

	"github.com/getmockd/switchboard/pkg/config"
	"github.com/getmockd/switchboard/pkg/middleware"
)

// StaticResponse returns a handler answering with rc. "{name}" in the
// body is replaced with the route parameter of that name.
func StaticResponse(rc config.ResponseConfig) middleware.Handler {
	status := rc.Status
	if status == 0 {
		status = http.StatusOK
	}
	return func(c *middleware.Context) *middleware.Response {
		body := rc.Body
		if strings.Contains(body, "{") {
			for k, v := range c.Params {
				body = strings.ReplaceAll(body, "{"+k+"}", v)
			}
		}
		resp := middleware.NewResponse(status, []byte(body))
		for k, v := range rc.Headers {
			resp.Header.Set(k, v)
		}
		if resp.Header.Get("Content-Type") == "" && body != "" {
			resp.Header.Set("Content-Type", "text/plain; charset=utf-8")
		}
		return resp
	}
}
