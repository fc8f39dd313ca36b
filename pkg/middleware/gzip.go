package middleware

import (
	"bytes"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// DefaultGzipMinSize is the smallest body Gzip compresses.
const DefaultGzipMinSize = 256

// Gzip compresses response bodies for clients that accept gzip. Bodies
// shorter than minSize and already-encoded responses are left alone.
func Gzip(level, minSize int) (Middleware, error) {
	if minSize <= 0 {
		minSize = DefaultGzipMinSize
	}
	// Validate the level once up front.
	if _, err := gzip.NewWriterLevel(nil, level); err != nil {
		return nil, err
	}

	return Named("gzip", func(c *Context, next Next) *Response {
		resp := next(c)
		if !acceptsGzip(c.Header.Get("Accept-Encoding")) ||
			len(resp.Body) < minSize ||
			resp.Header.Get("Content-Encoding") != "" {
			return resp
		}

		var buf bytes.Buffer
		zw, _ := gzip.NewWriterLevel(&buf, level)
		if _, err := zw.Write(resp.Body); err != nil {
			return resp
		}
		if err := zw.Close(); err != nil {
			return resp
		}

		resp.Body = buf.Bytes()
		resp.Header.Set("Content-Encoding", "gzip")
		resp.Header.Add("Vary", "Accept-Encoding")
		resp.Header.Del("Content-Length")
		return resp
	}), nil
}

func acceptsGzip(header string) bool {
	for part := range strings.SplitSeq(header, ",") {
		enc, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if !strings.EqualFold(strings.TrimSpace(enc), "gzip") && strings.TrimSpace(enc) != "*" {
			continue
		}
		if strings.ReplaceAll(strings.TrimSpace(params), " ", "") == "q=0" {
			return false
		}
		return true
	}
	return false
}
