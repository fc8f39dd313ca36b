package testing_test

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/switchboard/pkg/middleware"
	"github.com/getmockd/switchboard/pkg/protocol"
	sbtest "github.com/getmockd/switchboard/pkg/testing"
)

// lineRouter routes one path per line and replies "<status> <body>".
var lineRouter = protocol.Descriptor{
	Tag:        "lines",
	DetectFunc: func(prefix []byte) bool { return len(prefix) > 0 && prefix[0] == '/' },
	ServeFunc: func(s *protocol.Session) (protocol.Status, error) {
		line, err := s.Conn.Reader().ReadString('\n')
		if err != nil {
			return protocol.Stopped, nil
		}
		c := s.RequestContext("GET", strings.TrimSpace(line))
		resp := s.Routes().Serve(c)
		if _, err := fmt.Fprintf(s.Conn, "%d %s\n", resp.Status, resp.Body); err != nil {
			return protocol.Stopped, err
		}
		return s.Status.FramePassed(), nil
	},
}

func TestHarness_Dial(t *testing.T) {
	h := sbtest.New(t, lineRouter)
	h.Reply("lines", "/greet/:name", 200, "hi {name}")
	h.Handle("lines", "/teapot", func(*middleware.Context) *middleware.Response {
		return middleware.Text(418, "short and stout")
	})

	conn := h.Dial()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))
	r := bufio.NewReader(conn)

	for _, tc := range []struct{ send, want string }{
		{"/greet/ada", "200 hi ada\n"},
		{"/teapot", "418 short and stout\n"},
		{"/missing", "404 not found\n"},
	} {
		_, err := io.WriteString(conn, tc.send+"\n")
		require.NoError(t, err)
		got, err := r.ReadString('\n')
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}
}

func TestHarness_Listen(t *testing.T) {
	h := sbtest.New(t, lineRouter)
	h.Reply("lines", "/ping", 200, "pong")
	addr := h.Listen()

	for i := 0; i < 3; i++ {
		conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
		require.NoError(t, err)
		require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))
		_, err = io.WriteString(conn, "/ping\n")
		require.NoError(t, err)
		got, err := bufio.NewReader(conn).ReadString('\n')
		require.NoError(t, err)
		assert.Equal(t, "200 pong\n", got)
		require.NoError(t, conn.Close())
	}
}

func TestHarness_CollectsErrors(t *testing.T) {
	h := sbtest.New(t, lineRouter)

	conn := h.Dial()
	_, err := io.WriteString(conn, "GARBAGE\n")
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool {
		for _, err := range h.Errors() {
			if errors.Is(err, protocol.ErrDetectionExhausted) {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)
}

func TestHarness_AppDefaults(t *testing.T) {
	h := sbtest.New(t)

	assert.NotNil(t, h.Config())
	assert.NotNil(t, h.Logger())
	require.NotNil(t, h.Client())
	assert.NotNil(t, h.Client().Pool())
	assert.Same(t, h.Routes("any"), h.Routes("any"))
}
