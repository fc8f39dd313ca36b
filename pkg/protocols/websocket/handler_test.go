package websocket_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	ws "github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/switchboard/pkg/middleware"
	"github.com/getmockd/switchboard/pkg/protocol"
	"github.com/getmockd/switchboard/pkg/protocols/http1"
	"github.com/getmockd/switchboard/pkg/protocols/websocket"
	sbtest "github.com/getmockd/switchboard/pkg/testing"
)

func newHarness(t *testing.T) (*sbtest.Harness, string) {
	t.Helper()
	h := sbtest.New(t, http1.New(nil), websocket.New(nil))
	h.Handle(protocol.ProtocolWebSocket, "/rooms/:room", func(c *middleware.Context) *middleware.Response {
		if string(c.Body) == "silent" {
			return middleware.NewResponse(http.StatusNoContent, nil)
		}
		return middleware.Text(http.StatusOK, c.Params.Get("room")+": "+strings.ToUpper(string(c.Body)))
	})
	return h, h.Listen()
}

func TestMessagesRouted(t *testing.T) {
	_, addr := newHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, resp, err := ws.Dial(ctx, "ws://"+addr+"/rooms/lobby", nil)
	require.NoError(t, err)
	defer conn.CloseNow()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	require.NoError(t, conn.Write(ctx, ws.MessageText, []byte("silent")))
	require.NoError(t, conn.Write(ctx, ws.MessageText, []byte("hello")))
	typ, data, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, ws.MessageText, typ)
	assert.Equal(t, "lobby: HELLO", string(data))

	require.NoError(t, conn.Write(ctx, ws.MessageBinary, []byte("bin")))
	typ, data, err = conn.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, ws.MessageBinary, typ)
	assert.Equal(t, "lobby: BIN", string(data))

	require.NoError(t, conn.Close(ws.StatusNormalClosure, ""))
}

func TestUnknownPathNotFound(t *testing.T) {
	_, addr := newHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := ws.Dial(ctx, "ws://"+addr+"/elsewhere", nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	require.NoError(t, conn.Write(ctx, ws.MessageText, []byte("anyone?")))
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "not found", string(data))
}

func TestOriginRejected(t *testing.T) {
	_, addr := newHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, resp, err := ws.Dial(ctx, "ws://"+addr+"/rooms/x", &ws.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{"http://evil.example"}},
	})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestServeWithoutUpgradeRequest(t *testing.T) {
	text := protocol.Descriptor{
		Tag:        "start",
		DetectFunc: func(p []byte) bool { return len(p) > 0 },
		ServeFunc: func(*protocol.Session) (protocol.Status, error) {
			return protocol.SwitchTo(protocol.ProtocolWebSocket), nil
		},
	}
	h := sbtest.New(t, text, websocket.New(nil))

	conn := h.Dial()
	go func() { _, _ = conn.Write([]byte("x")) }()

	assert.Eventually(t, func() bool {
		for _, err := range h.Errors() {
			if errors.Is(err, websocket.ErrNoUpgradeRequest) {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}
