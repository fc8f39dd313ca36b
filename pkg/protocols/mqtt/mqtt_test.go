package mqtt_test

import (
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/switchboard/pkg/middleware"
	"github.com/getmockd/switchboard/pkg/protocol"
	"github.com/getmockd/switchboard/pkg/protocols/http1"
	"github.com/getmockd/switchboard/pkg/protocols/mqtt"
	sbtest "github.com/getmockd/switchboard/pkg/testing"
)

var connect = []byte{
	0x10, 0x0d,
	0x00, 0x04, 'M', 'Q', 'T', 'T',
	0x04, 0x02, 0x00, 0x3c,
	0x00, 0x01, 'a',
}

func newHarness(t *testing.T) (*sbtest.Harness, *mqtt.Handler) {
	t.Helper()
	h := sbtest.New(t)
	handler, err := mqtt.New(h, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = handler.Close() })
	h.Register(handler, http1.New(nil))
	return h, handler
}

func TestIsConnect(t *testing.T) {
	assert.True(t, mqtt.IsConnect(connect))
	assert.True(t, mqtt.IsConnect(connect[:8]))
	assert.False(t, mqtt.IsConnect(connect[:7]), "protocol name incomplete")
	assert.False(t, mqtt.IsConnect(connect[:1]))

	v31 := []byte{0x10, 0x10, 0x00, 0x06, 'M', 'Q', 'I', 's', 'd', 'p', 0x03}
	assert.True(t, mqtt.IsConnect(v31))

	longLen := []byte{0x10, 0x80, 0x01, 0x00, 0x04, 'M', 'Q', 'T', 'T'}
	assert.True(t, mqtt.IsConnect(longLen))

	assert.False(t, mqtt.IsConnect([]byte{0x10, 0x0d, 0x00, 0x04, 'H', 'T', 'T', 'P'}))
	assert.False(t, mqtt.IsConnect([]byte{0x10, 0x80, 0x80, 0x80, 0x80, 0x01}), "length over four bytes")
	assert.False(t, mqtt.IsConnect([]byte("GET / HTTP/1.1\r\n")))
}

func TestMatchTopic(t *testing.T) {
	tests := []struct {
		filter, topic string
		want          bool
	}{
		{"a/b", "a/b", true},
		{"a/+", "a/b", true},
		{"a/+", "a/b/c", false},
		{"a/#", "a/b/c", true},
		{"#", "x", true},
		{"a/b", "a", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, mqtt.MatchTopic(tt.filter, tt.topic), tt.filter+" "+tt.topic)
	}
}

func TestRawConnect(t *testing.T) {
	h, _ := newHarness(t)

	conn := h.Dial()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))
	_, err := conn.Write(connect)
	require.NoError(t, err)

	ack := make([]byte, 4)
	_, err = io.ReadFull(conn, ack)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x20, 0x02, 0x00, 0x00}, ack)
}

func TestPublishRoutedAndReplied(t *testing.T) {
	h, handler := newHarness(t)
	h.Handle(protocol.ProtocolMQTT, "/sensors/:id", func(c *middleware.Context) *middleware.Response {
		return middleware.Text(http.StatusOK, "ack "+c.Params.Get("id")+" "+strings.ToUpper(string(c.Body)))
	})
	h.Reply(protocol.ProtocolHTTP, "/", http.StatusOK, "http")
	addr := h.Listen()

	seen := make(chan string, 4)
	handler.Subscribe("sensors/+", func(topic string, payload []byte) {
		seen <- topic + "=" + string(payload)
	})

	opts := paho.NewClientOptions().
		AddBroker("tcp://" + addr).
		SetClientID("sensor-client").
		SetConnectTimeout(5 * time.Second)
	client := paho.NewClient(opts)
	token := client.Connect()
	require.True(t, token.WaitTimeout(5*time.Second))
	require.NoError(t, token.Error())
	defer client.Disconnect(100)

	replies := make(chan string, 1)
	token = client.Subscribe("sensors/7/reply", 0, func(_ paho.Client, msg paho.Message) {
		replies <- string(msg.Payload())
	})
	require.True(t, token.WaitTimeout(5*time.Second))
	require.NoError(t, token.Error())

	token = client.Publish("sensors/7", 0, false, "on")
	require.True(t, token.WaitTimeout(5*time.Second))

	select {
	case got := <-replies:
		assert.Equal(t, "ack 7 ON", got)
	case <-time.After(5 * time.Second):
		t.Fatal("no reply published")
	}
	assert.Equal(t, "sensors/7=on", <-seen)
	assert.Equal(t, 1, handler.Clients())

	resp, err := (&http.Client{Timeout: 5 * time.Second}).Get("http://" + addr + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode, "http shares the listener with mqtt")
}

func TestUnroutedPublishNotAnswered(t *testing.T) {
	h, _ := newHarness(t)
	addr := h.Listen()

	client := paho.NewClient(paho.NewClientOptions().AddBroker("tcp://" + addr).SetClientID("quiet"))
	token := client.Connect()
	require.True(t, token.WaitTimeout(5*time.Second))
	require.NoError(t, token.Error())
	defer client.Disconnect(100)

	replies := make(chan string, 1)
	client.Subscribe("nothing/reply", 0, func(_ paho.Client, msg paho.Message) {
		replies <- string(msg.Payload())
	}).WaitTimeout(5 * time.Second)
	client.Publish("nothing", 0, false, "x").WaitTimeout(5 * time.Second)

	select {
	case got := <-replies:
		t.Fatalf("unexpected reply %q", got)
	case <-time.After(200 * time.Millisecond):
	}
}
