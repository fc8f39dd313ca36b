package text

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/switchboard/pkg/middleware"
	"github.com/getmockd/switchboard/pkg/protocol"
	"github.com/getmockd/switchboard/pkg/route"
)

func newCtx(path string) *middleware.Context {
	return middleware.NewContext(context.Background(), string(protocol.ProtocolText), Method, path)
}

func TestExec(t *testing.T) {
	tree := route.New()
	_, err := tree.Handle("/echo/:name", func(c *middleware.Context) *middleware.Response {
		return middleware.Text(200, c.Params.Get("name")+":"+string(c.Body))
	})
	require.NoError(t, err)
	_, err = tree.Handle("/multi", func(*middleware.Context) *middleware.Response {
		return middleware.Text(200, "a\r\nb")
	})
	require.NoError(t, err)

	tests := []struct {
		name   string
		line   Line
		reply  Line
		quit   bool
		target protocol.Protocol
	}{
		{"empty", "   ", "400 empty line", false, ""},
		{"quit", "quit", "221 bye", true, ""},
		{"ping", "PING", "200 PONG", false, ""},
		{"helo", "HELO again", "250 hello", false, ""},
		{"switch", "SWITCH http", "101 switching to http", false, protocol.ProtocolHTTP},
		{"switch without target", "SWITCH", "400 SWITCH needs a protocol", false, ""},
		{"unknown", "FOO", `400 unknown command "FOO"`, false, ""},
		{"routed", "/echo/bob hello world", "200 bob:hello world", false, ""},
		{"not found", "/missing", "404 not found", false, ""},
		{"flattened", "/multi", `200 a\r\nb`, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Exec(tt.line, tree, newCtx)
			assert.Equal(t, tt.reply, res.Reply)
			assert.Equal(t, tt.quit, res.Quit)
			assert.Equal(t, tt.target, res.Switch)
		})
	}
}

func TestExecWithoutTree(t *testing.T) {
	res := Exec("/anything", nil, newCtx)
	assert.Equal(t, Line("404 not found"), res.Reply)
}

func TestCodec(t *testing.T) {
	line, n, err := Codec{}.Decode([]byte("hello\r\nrest"))
	require.NoError(t, err)
	assert.Equal(t, Line("hello"), line)
	assert.Equal(t, 7, n)

	line, n, err = Codec{}.Decode([]byte("bare\n"))
	require.NoError(t, err)
	assert.Equal(t, Line("bare"), line)
	assert.Equal(t, 5, n)

	_, _, err = Codec{}.Decode([]byte("partial"))
	assert.ErrorIs(t, err, protocol.ErrNeedMoreData)

	var buf bytes.Buffer
	require.NoError(t, Line("x").Encode(&buf))
	assert.Equal(t, "x\r\n", buf.String())
}

func TestDetect(t *testing.T) {
	h := New(nil)
	assert.True(t, h.Detect([]byte("HELO")))
	assert.True(t, h.Detect([]byte("helo client\r\n")))
	assert.True(t, h.Detect([]byte("HELO\r\n")))
	assert.False(t, h.Detect([]byte("HEL")))
	assert.False(t, h.Detect([]byte("HELOX")))
	assert.False(t, h.Detect([]byte("GET / HTTP/1.1")))
}
