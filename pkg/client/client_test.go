package client

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/switchboard/pkg/pool"
)

func newServer(t *testing.T, h http.HandlerFunc) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var conns atomic.Int64
	srv := httptest.NewUnstartedServer(h)
	srv.Config.ConnState = func(_ net.Conn, state http.ConnState) {
		if state == http.StateNew {
			conns.Add(1)
		}
	}
	srv.Start()
	t.Cleanup(srv.Close)
	return srv, &conns
}

func newClient(t *testing.T) *Client {
	t.Helper()
	p := pool.New(pool.DefaultConfig())
	t.Cleanup(func() { _ = p.Close() })
	return New(p)
}

func readAll(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestDo_ReusesConnection(t *testing.T) {
	srv, conns := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "hello "+r.URL.Path)
	})
	c := newClient(t)

	resp, err := c.Get(context.Background(), srv.URL+"/a")
	require.NoError(t, err)
	assert.Equal(t, "hello /a", readAll(t, resp))
	assert.Equal(t, 1, c.Pool().Stats().Pooled)

	resp, err = c.Get(context.Background(), srv.URL+"/b")
	require.NoError(t, err)
	assert.Equal(t, "hello /b", readAll(t, resp))

	assert.Equal(t, int64(1), conns.Load())
	stats := c.Pool().Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
}

func TestDo_EarlyCloseDiscardsConnection(t *testing.T) {
	srv, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "some body")
	})
	c := newClient(t)

	resp, err := c.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	assert.Equal(t, 0, c.Pool().Stats().Pooled)
}

func TestDo_ConnectionCloseNotPooled(t *testing.T) {
	srv, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Connection", "close")
		_, _ = io.WriteString(w, "bye")
	})
	c := newClient(t)

	resp, err := c.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "bye", readAll(t, resp))
	assert.Equal(t, 0, c.Pool().Stats().Pooled)
}

func TestDo_EmptyBodyReturnsConnection(t *testing.T) {
	srv, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	c := newClient(t)

	resp, err := c.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 1, c.Pool().Stats().Pooled)
}

func TestDo_RetriesStaleReusedConnection(t *testing.T) {
	srv, conns := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "ok")
	})
	c := newClient(t)

	resp, err := c.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	readAll(t, resp)

	srv.CloseClientConnections()

	resp, err = c.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "ok", readAll(t, resp))
	assert.Equal(t, int64(2), conns.Load())
}

func TestDo_DialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	c := newClient(t)
	_, err = c.Get(context.Background(), "http://"+addr)
	assert.ErrorIs(t, err, pool.ErrPoolExhausted)
}

func TestKeyFor(t *testing.T) {
	tests := []struct {
		raw     string
		want    pool.Key
		wantErr bool
	}{
		{"http://example.com/x", pool.Key{Host: "example.com", Port: 80}, false},
		{"https://example.com", pool.Key{Host: "example.com", Port: 443, TLS: true}, false},
		{"http://[::1]:8080", pool.Key{Host: "::1", Port: 8080}, false},
		{"ftp://example.com", pool.Key{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			u, err := url.Parse(tt.raw)
			require.NoError(t, err)
			got, err := KeyFor(u)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedScheme)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDo_SetsUserAgent(t *testing.T) {
	var ua atomic.Value
	srv, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		ua.Store(r.UserAgent())
	})
	c := New(pool.New(pool.DefaultConfig()), WithUserAgent("probe/1"))
	defer c.Pool().Close()

	resp, err := c.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	readAll(t, resp)
	assert.Equal(t, "probe/1", ua.Load())
}
