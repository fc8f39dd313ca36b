package app

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/getmockd/switchboard/pkg/client"
	"github.com/getmockd/switchboard/pkg/middleware"
)

// MaxProxyBody bounds the upstream response body read into memory.
const MaxProxyBody = 10 << 20

var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"TE",
	"Trailers",
	"Transfer-Encoding",
	"Upgrade",
}

// Proxy forwards requests to an upstream HTTP server through the pooled
// client. The request path is appended to the upstream path.
type Proxy struct {
	target  *url.URL
	client  *client.Client
	maxBody int64
}

// NewProxy returns a proxy to rawURL.
func NewProxy(rawURL string, cl *client.Client) (*Proxy, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid proxy url %q: scheme must be http or https", rawURL)
	}
	if cl == nil {
		return nil, fmt.Errorf("proxy %q: no client", rawURL)
	}
	return &Proxy{target: u, client: cl, maxBody: MaxProxyBody}, nil
}

// Handle implements middleware.Handler. Methods that are not HTTP methods
// (text lines, MQTT publishes) are forwarded as POST.
func (p *Proxy) Handle(c *middleware.Context) *middleware.Response {
	out := *p.target
	out.Path = joinPath(p.target.Path, c.Path)
	if r, ok := c.Request.(*http.Request); ok {
		out.RawQuery = r.URL.RawQuery
	}

	method := c.Method
	if !isHTTPMethod(method) {
		method = http.MethodPost
	}

	req, err := http.NewRequestWithContext(c.Context(), method, out.String(), bytes.NewReader(c.Body))
	if err != nil {
		return middleware.Text(http.StatusBadGateway, "bad gateway")
	}
	copyHeaders(req.Header, c.Header)
	removeHopByHopHeaders(req.Header)
	req.Header.Del("Host")
	if c.Remote != "" {
		req.Header.Set("X-Forwarded-For", c.Remote)
	}
	req.Header.Set("X-Forwarded-Proto", c.Protocol)

	resp, err := p.client.Do(c.Context(), req)
	if err != nil {
		c.Logger().Warn("proxy request failed", "target", out.String(), "error", err)
		return middleware.Text(http.StatusBadGateway, "bad gateway")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, p.maxBody+1))
	if err != nil {
		c.Logger().Warn("proxy response read failed", "target", out.String(), "error", err)
		return middleware.Text(http.StatusBadGateway, "bad gateway")
	}
	if int64(len(body)) > p.maxBody {
		c.Logger().Warn("proxy response too large", "target", out.String(), "limit", p.maxBody)
		return middleware.Text(http.StatusBadGateway, "upstream response too large")
	}

	r := middleware.NewResponse(resp.StatusCode, body)
	copyHeaders(r.Header, resp.Header)
	removeHopByHopHeaders(r.Header)
	r.Header.Del("Content-Length")
	return r
}

func joinPath(base, p string) string {
	if base == "" || base == "/" {
		return p
	}
	joined := path.Join(base, p)
	if strings.HasSuffix(p, "/") && !strings.HasSuffix(joined, "/") {
		joined += "/"
	}
	return joined
}

func isHTTPMethod(m string) bool {
	switch m {
	case http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut, http.MethodPatch,
		http.MethodDelete, http.MethodOptions, http.MethodTrace, http.MethodConnect:
		return true
	}
	return false
}

// copyHeaders copies headers from src to dst.
func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		for _, value := range values {
			dst.Add(key, value)
		}
	}
}

// removeHopByHopHeaders removes headers that should not be forwarded.
func removeHopByHopHeaders(h http.Header) {
	for _, header := range hopByHopHeaders {
		h.Del(header)
	}
}
