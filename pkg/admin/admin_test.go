package admin

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/switchboard/pkg/metrics"
	"github.com/getmockd/switchboard/pkg/pool"
	"github.com/getmockd/switchboard/pkg/ratelimit"
	"github.com/getmockd/switchboard/pkg/route"
)

type staticRoutes map[string][]route.Info

func (s staticRoutes) RouteTable() map[string][]route.Info { return s }

func do(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "192.0.2.1:1234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func newTestAPI(t *testing.T, opts ...Option) *AdminAPI {
	t.Helper()
	a := New("127.0.0.1:0", opts...)
	t.Cleanup(func() { _ = a.Stop(context.Background()) })
	return a
}

func TestHealth(t *testing.T) {
	a := newTestAPI(t)

	rec := do(t, a.Handler(), "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.GreaterOrEqual(t, resp.Uptime, 0)
}

func TestPool(t *testing.T) {
	t.Run("stats", func(t *testing.T) {
		p := pool.New(pool.DefaultConfig())
		t.Cleanup(func() { _ = p.Close() })
		_, ok := p.Get(pool.Key{Host: "example.com", Port: 80})
		require.False(t, ok)

		a := newTestAPI(t, WithPool(p))
		rec := do(t, a.Handler(), "/pool")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp PoolResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Enabled)
		assert.Equal(t, uint64(1), resp.Stats.Misses)
		assert.Equal(t, 0, resp.Stats.Pooled)
	})

	t.Run("no pool", func(t *testing.T) {
		a := newTestAPI(t)
		rec := do(t, a.Handler(), "/pool")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "no_pool", resp.Error)
	})
}

func TestRoutes(t *testing.T) {
	table := staticRoutes{
		"http": {{Pattern: "/users/:id", Handler: true, Local: []string{"auth"}, Chain: []string{"logging", "auth"}}},
	}
	a := newTestAPI(t, WithRoutes(table))

	rec := do(t, a.Handler(), "/routes")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp RoutesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp["http"], 1)
	assert.Equal(t, "/users/:id", resp["http"][0].Pattern)
	assert.Equal(t, []string{"logging", "auth"}, resp["http"][0].Chain)
}

func TestProtocols(t *testing.T) {
	a := newTestAPI(t, WithProtocols(func() []string { return []string{"mqtt", "http"} }))

	rec := do(t, a.Handler(), "/protocols")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ProtocolsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"mqtt", "http"}, resp.Order)
}

func TestMetrics(t *testing.T) {
	m := metrics.New()
	m.ConnOpened()
	a := newTestAPI(t, WithMetrics(m))

	rec := do(t, a.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "switchboard_connections_open 1")

	t.Run("absent without metrics", func(t *testing.T) {
		a := newTestAPI(t)
		rec := do(t, a.Handler(), "/metrics")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestRateLimit(t *testing.T) {
	l := ratelimit.New(ratelimit.Config{Rate: 0.001, Burst: 2})
	a := newTestAPI(t, WithRateLimiter(l))

	assert.Equal(t, http.StatusOK, do(t, a.Handler(), "/healthz").Code)
	assert.Equal(t, http.StatusOK, do(t, a.Handler(), "/healthz").Code)

	rec := do(t, a.Handler(), "/healthz")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
}

func TestMethodNotAllowed(t *testing.T) {
	a := newTestAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/healthz", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStartStop(t *testing.T) {
	a := New("127.0.0.1:0")
	assert.Nil(t, a.Addr())
	require.NoError(t, a.Start())
	require.NotNil(t, a.Addr())

	resp, err := http.Get("http://" + a.Addr().String() + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"status":"ok"`)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, a.Stop(ctx))

	_, err = http.Get("http://" + a.Addr().String() + "/healthz")
	assert.Error(t, err)
}

func TestStart_ListenError(t *testing.T) {
	a := newTestAPI(t)
	require.NoError(t, a.Start())

	b := New(a.Addr().String())
	err := b.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "admin listen")
	_ = b.Stop(context.Background())
}
