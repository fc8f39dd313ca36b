package app

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/switchboard/pkg/client"
	"github.com/getmockd/switchboard/pkg/config"
	"github.com/getmockd/switchboard/pkg/logging"
	"github.com/getmockd/switchboard/pkg/metrics"
	"github.com/getmockd/switchboard/pkg/middleware"
	"github.com/getmockd/switchboard/pkg/pool"
	"github.com/getmockd/switchboard/pkg/protocol"
	"github.com/getmockd/switchboard/pkg/route"
)

const appYAML = `
middleware:
  auth:
    type: jwt_auth
    secret: s3cret
  strict:
    type: rate_limit
    rate: 1
    burst: 1
  internal:
    type: guard
    expression: 'remote startsWith "10."'
routes:
  http:
    middleware: [recover, request_id]
    routes:
      - path: /api
        middleware: [timing]
      - path: /api/users/:id
        middleware: [auth]
        response:
          status: 200
          headers: {Content-Type: application/json}
          body: '{"id":"{id}"}'
      - path: /api/health
        override: [metrics, "..."]
        response: {body: ok}
      - path: /api/raw
        override: [timing]
        response: {status: 202, body: raw}
      - path: /limited
        middleware: [strict]
        response: {body: limited}
      - path: /admin
        middleware: [internal]
        response: {body: secret}
  text:
    routes:
      - path: /hello/:name
        response: {body: "hello {name}"}
`

func newApp(t *testing.T, yaml string) *App {
	t.Helper()
	cfg, err := config.Parse([]byte(yaml))
	require.NoError(t, err)
	p := pool.New(cfg.Pool)
	t.Cleanup(func() { _ = p.Close() })
	a, err := New(cfg, client.New(p), WithMetrics(metrics.New()))
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func serve(tree *route.Tree, method, path string, hdr http.Header) *middleware.Response {
	c := middleware.NewContext(context.Background(), "http", method, path)
	c.Remote = "192.0.2.1:5555"
	for k, v := range hdr {
		c.Header[k] = v
	}
	return tree.Serve(c)
}

func token(t *testing.T) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u1"}).SignedString([]byte("s3cret"))
	require.NoError(t, err)
	return "Bearer " + s
}

func chainOf(t *testing.T, a *App, p protocol.Protocol, pattern string) []string {
	t.Helper()
	for _, info := range a.Routes(p).Routes() {
		if info.Pattern == pattern {
			return info.Chain
		}
	}
	t.Fatalf("route %s not found", pattern)
	return nil
}

func TestChains(t *testing.T) {
	a := newApp(t, appYAML)

	assert.Equal(t, []string{"recover", "request_id", "timing", "auth"}, chainOf(t, a, protocol.ProtocolHTTP, "/api/users/:id"))
	assert.Equal(t, []string{"metrics", "recover", "request_id", "timing"}, chainOf(t, a, protocol.ProtocolHTTP, "/api/health"))
	assert.Equal(t, []string{"timing"}, chainOf(t, a, protocol.ProtocolHTTP, "/api/raw"))
}

func TestStaticResponses(t *testing.T) {
	a := newApp(t, appYAML)
	tree := a.Routes(protocol.ProtocolHTTP)

	resp := serve(tree, http.MethodGet, "/api/users/42", http.Header{"Authorization": {token(t)}})
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, `{"id":"42"}`, string(resp.Body))
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, resp.Header.Get(middleware.HeaderRequestID))
	assert.NotEmpty(t, resp.Header.Get(middleware.HeaderResponseTime))

	resp = serve(tree, http.MethodGet, "/api/users/42", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.Status)

	resp = serve(tree, http.MethodGet, "/api/raw", nil)
	assert.Equal(t, http.StatusAccepted, resp.Status)
	assert.Empty(t, resp.Header.Get(middleware.HeaderRequestID), "override without marker drops inherited middleware")

	resp = serve(tree, http.MethodGet, "/admin", nil)
	assert.Equal(t, http.StatusForbidden, resp.Status)

	resp = serve(tree, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.Status)
	assert.NotEmpty(t, resp.Header.Get(middleware.HeaderRequestID), "unmatched paths run the protocol chain")

	resp = serve(a.Routes(protocol.ProtocolText), "LINE", "/hello/ann", nil)
	assert.Equal(t, "hello ann", string(resp.Body))
}

func TestRateLimitShared(t *testing.T) {
	a := newApp(t, appYAML)
	tree := a.Routes(protocol.ProtocolHTTP)

	assert.Equal(t, http.StatusOK, serve(tree, http.MethodGet, "/limited", nil).Status)
	resp := serve(tree, http.MethodGet, "/limited", nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.Status)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
}

func TestRoutesFallback(t *testing.T) {
	a := newApp(t, appYAML)
	assert.Same(t, a.Routes(protocol.ProtocolHTTP), a.Routes(protocol.ProtocolH2C))
	assert.Nil(t, a.Routes(protocol.ProtocolMQTT))

	own := route.New()
	a.SetRoutes(protocol.ProtocolH2C, own)
	assert.Same(t, own, a.Routes(protocol.ProtocolH2C))

	table := a.RouteTable()
	assert.Contains(t, table, "http")
	assert.Contains(t, table, "text")
}

func TestUndefinedMiddleware(t *testing.T) {
	cfg := config.Default()
	cfg.Routes = map[string]config.RouteSet{
		"http": {Routes: []config.RouteConfig{{Path: "/", Middleware: []string{"ghost"}}}},
	}
	_, err := New(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `undefined middleware "ghost"`)
}

func TestInvalidOverride(t *testing.T) {
	cfg := config.Default()
	cfg.Routes = map[string]config.RouteSet{
		"http": {Routes: []config.RouteConfig{{Path: "/", Override: []string{"...", "..."}}}},
	}
	_, err := New(cfg, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, middleware.ErrMultipleInherit)

	var cerr *middleware.ConfigError
	assert.ErrorAs(t, err, &cerr)
}

func TestNewLimitersStoppedOnError(t *testing.T) {
	cfg := config.Default()
	cfg.Middleware = map[string]config.MiddlewareSpec{
		"limit": {Type: config.MiddlewareRateLimit, Rate: 10, Burst: 10},
	}
	cfg.Routes = map[string]config.RouteSet{
		"http": {Middleware: []string{"limit"}},
		"text": {Middleware: []string{"ghost"}},
	}

	a := &App{cfg: cfg, log: logging.Nop(), trees: make(map[protocol.Protocol]*route.Tree)}
	b := newBuilder(a)
	require.Error(t, a.build(b))
	require.Len(t, b.limiters, 1)
	b.close()

	select {
	case <-b.limiters[0].Done():
	default:
		t.Fatal("limiter cleanup still running")
	}

	_, err := New(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "routes.text")
}

func TestProxy(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("X-Upstream-Path", r.URL.Path)
		w.Header().Set("X-Upstream-Method", r.Method)
		w.Header().Set("X-Forwarded-Proto", r.Header.Get("X-Forwarded-Proto"))
		_, _ = w.Write(append([]byte("got:"), body...))
	}))
	defer upstream.Close()

	a := newApp(t, `
routes:
  text:
    routes:
      - path: /up/*rest
        proxy: `+upstream.URL+`/base
`)
	c := middleware.NewContext(context.Background(), "text", "LINE", "/up/a/b")
	c.Body = []byte("payload")
	resp := a.Routes(protocol.ProtocolText).Serve(c)

	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "got:payload", string(resp.Body))
	assert.Equal(t, "/base/up/a/b", resp.Header.Get("X-Upstream-Path"))
	assert.Equal(t, http.MethodPost, resp.Header.Get("X-Upstream-Method"))
	assert.Equal(t, "text", resp.Header.Get("X-Forwarded-Proto"))

	resp = a.Routes(protocol.ProtocolText).Serve(middleware.NewContext(context.Background(), "text", "LINE", "/up/again"))
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, uint64(1), a.Client().Pool().Stats().Hits, "second request reuses the pooled connection")
}

func TestProxyResponseTooLarge(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer upstream.Close()

	p, err := NewProxy(upstream.URL, client.New(pool.New(pool.DefaultConfig())))
	require.NoError(t, err)

	p.maxBody = 64
	resp := p.Handle(middleware.NewContext(context.Background(), "http", http.MethodGet, "/"))
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Len(t, resp.Body, 64)

	p.maxBody = 63
	resp = p.Handle(middleware.NewContext(context.Background(), "http", http.MethodGet, "/"))
	assert.Equal(t, http.StatusBadGateway, resp.Status)
	assert.Equal(t, "upstream response too large", string(resp.Body))
}

func TestProxyUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	p, err := NewProxy(addr, client.New(pool.New(pool.DefaultConfig())))
	require.NoError(t, err)
	resp := p.Handle(middleware.NewContext(context.Background(), "http", http.MethodGet, "/"))
	assert.Equal(t, http.StatusBadGateway, resp.Status)
}

func TestNewProxyValidation(t *testing.T) {
	_, err := NewProxy("ftp://x", client.New(pool.New(pool.DefaultConfig())))
	assert.Error(t, err)
	_, err = NewProxy("http://x", nil)
	assert.Error(t, err)
}

func TestJoinPath(t *testing.T) {
	assert.Equal(t, "/a", joinPath("", "/a"))
	assert.Equal(t, "/a", joinPath("/", "/a"))
	assert.Equal(t, "/base/a", joinPath("/base", "/a"))
	assert.Equal(t, "/base/a/", joinPath("/base/", "/a/"))
}
