package http1_test

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/switchboard/pkg/middleware"
	"github.com/getmockd/switchboard/pkg/protocol"
	"github.com/getmockd/switchboard/pkg/protocols/http1"
	sbtest "github.com/getmockd/switchboard/pkg/testing"
)

func TestDetect(t *testing.T) {
	h := http1.New(nil)
	assert.True(t, h.Detect([]byte("GET / HTTP/1.1\r\n")))
	assert.True(t, h.Detect([]byte("POST ")))
	assert.True(t, h.Detect([]byte("OPTIONS * HTTP/1.1")))
	assert.False(t, h.Detect([]byte("GE")))
	assert.False(t, h.Detect([]byte("GETX /")))
	assert.False(t, h.Detect([]byte("PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n")))
	assert.False(t, h.Detect([]byte("HELO")))
}

func TestServeRoutes(t *testing.T) {
	h := sbtest.New(t, http1.New(nil))
	h.Reply(protocol.ProtocolHTTP, "/users/:id", http.StatusOK, "user {id}")
	h.Handle(protocol.ProtocolHTTP, "/echo", func(c *middleware.Context) *middleware.Response {
		resp := middleware.NewResponse(http.StatusCreated, c.Body)
		resp.Header.Set("X-Method", c.Method)
		return resp
	})
	addr := h.Listen()

	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get("http://" + addr + "/users/7")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "user 7", string(body))

	resp, err = client.Post("http://"+addr+"/echo", "text/plain", strings.NewReader("payload"))
	require.NoError(t, err)
	body, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "payload", string(body))
	assert.Equal(t, "POST", resp.Header.Get("X-Method"))

	resp, err = client.Get("http://" + addr + "/missing")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServeKeepAlive(t *testing.T) {
	h := sbtest.New(t, http1.New(nil))
	h.Reply(protocol.ProtocolHTTP, "/ping", http.StatusOK, "pong")

	conn := h.Dial()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))
	r := bufio.NewReader(conn)

	for i := 0; i < 3; i++ {
		_, err := fmt.Fprint(conn, "GET /ping HTTP/1.1\r\nHost: test\r\n\r\n")
		require.NoError(t, err)
		resp, err := http.ReadResponse(r, nil)
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, "pong", string(body))
		assert.False(t, resp.Close)
	}

	_, err := fmt.Fprint(conn, "GET /ping HTTP/1.1\r\nHost: test\r\nConnection: close\r\n\r\n")
	require.NoError(t, err)
	resp, err := http.ReadResponse(r, nil)
	require.NoError(t, err)
	assert.True(t, resp.Close)
	_, _ = io.ReadAll(resp.Body)

	_, err = r.ReadByte()
	assert.ErrorIs(t, err, io.EOF)
}

func TestServeHead(t *testing.T) {
	h := sbtest.New(t, http1.New(nil))
	h.Reply(protocol.ProtocolHTTP, "/doc", http.StatusOK, "0123456789")

	conn := h.Dial()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))
	r := bufio.NewReader(conn)

	_, err := fmt.Fprint(conn, "HEAD /doc HTTP/1.1\r\nHost: test\r\n\r\nGET /doc HTTP/1.1\r\nHost: test\r\n\r\n")
	require.NoError(t, err)

	req, _ := http.NewRequest(http.MethodHead, "/doc", nil)
	resp, err := http.ReadResponse(r, req)
	require.NoError(t, err)
	assert.Equal(t, int64(10), resp.ContentLength)

	resp, err = http.ReadResponse(r, nil)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(body))
}

func TestServeHTTP10Closes(t *testing.T) {
	h := sbtest.New(t, http1.New(nil))
	h.Reply(protocol.ProtocolHTTP, "/", http.StatusOK, "root")

	conn := h.Dial()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	_, err := fmt.Fprint(conn, "GET / HTTP/1.0\r\n\r\n")
	require.NoError(t, err)
	raw, err := io.ReadAll(conn)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), "HTTP/1.0 200 OK\r\n"))
	assert.True(t, strings.HasSuffix(string(raw), "\r\n\r\nroot"))
}

func TestServeBodyTooLarge(t *testing.T) {
	h := sbtest.New(t, http1.New(nil, http1.WithMaxBodySize(4)))
	h.Reply(protocol.ProtocolHTTP, "/upload", http.StatusOK, "ok")

	conn := h.Dial()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	go func() {
		_, _ = fmt.Fprint(conn, "POST /upload HTTP/1.1\r\nHost: test\r\nContent-Length: 8\r\n\r\n12345678")
	}()
	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestServeMalformed(t *testing.T) {
	h := sbtest.New(t, http1.New(nil))

	conn := h.Dial()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	go func() { _, _ = fmt.Fprint(conn, "GET / NOTHTTP\r\n\r\n") }()
	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.True(t, resp.Close)
}

func TestUpgradeHandoff(t *testing.T) {
	seen := make(chan *http.Request, 1)
	ws := protocol.Descriptor{
		Tag:        protocol.ProtocolWebSocket,
		DetectFunc: protocol.Never,
		ServeFunc: func(s *protocol.Session) (protocol.Status, error) {
			req, _ := middleware.LocalValue[*http.Request](s.Locals, protocol.LocalUpgradeRequest)
			seen <- req
			_, err := io.WriteString(s.Conn, "HTTP/1.1 101 Switching Protocols\r\n\r\n")
			return protocol.Stopped, err
		},
	}
	h := sbtest.New(t, http1.New(nil), ws)

	conn := h.Dial()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	go func() {
		_, _ = fmt.Fprint(conn, "GET /chat HTTP/1.1\r\nHost: test\r\nConnection: keep-alive, Upgrade\r\nUpgrade: websocket\r\n\r\n")
	}()
	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	req := <-seen
	require.NotNil(t, req)
	assert.Equal(t, "/chat", req.URL.Path)
}

func TestIsWebSocketUpgrade(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	assert.False(t, http1.IsWebSocketUpgrade(req))
	req.Header.Set("Upgrade", "WebSocket")
	assert.False(t, http1.IsWebSocketUpgrade(req))
	req.Header.Set("Connection", "Upgrade")
	assert.True(t, http1.IsWebSocketUpgrade(req))
}
