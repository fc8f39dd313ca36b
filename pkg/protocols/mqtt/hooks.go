package mqtt

import (
	"bytes"
	"context"
	"strings"

	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/packets"

	"github.com/getmockd/switchboard/pkg/middleware"
	"github.com/getmockd/switchboard/pkg/protocol"
)

// Method is the request method reported for routed publishes.
const Method = "PUBLISH"

// HeaderClientID carries the MQTT client id into the middleware context.
const HeaderClientID = "X-Mqtt-Client-Id"

// messageHook routes client publishes through the route tree.
type messageHook struct {
	mqtt.HookBase
	h *Handler
}

func newMessageHook(h *Handler) *messageHook {
	return &messageHook{h: h}
}

// ID returns the hook identifier
func (m *messageHook) ID() string {
	return "switchboard-routes"
}

// Provides indicates which hook methods this hook provides
func (m *messageHook) Provides(b byte) bool {
	return bytes.Contains([]byte{mqtt.OnPublish}, []byte{b})
}

// OnPublish handles incoming publish messages
func (m *messageHook) OnPublish(cl *mqtt.Client, pk packets.Packet) (packets.Packet, error) {
	topic := pk.TopicName
	m.h.notify(topic, pk.Payload)

	if cl.Net.Inline || strings.HasSuffix(topic, ReplySuffix) || m.h.app == nil {
		return pk, nil
	}
	tree := m.h.app.Routes(protocol.ProtocolMQTT)
	if tree == nil {
		return pk, nil
	}

	c := middleware.NewContext(context.Background(), string(protocol.ProtocolMQTT), Method, "/"+topic)
	c.Body = append([]byte(nil), pk.Payload...)
	c.Remote = cl.Net.Remote
	c.Header.Set(HeaderClientID, cl.ID)
	c.Request = pk
	c.Log = m.h.log.With("client_id", cl.ID, "topic", topic)

	resp := tree.Serve(c)
	if resp.Status < 200 || resp.Status > 299 || len(resp.Body) == 0 {
		c.Log.Debug("publish not answered", "status", resp.Status)
		return pk, nil
	}

	// Publishing from inside the hook would re-enter the broker.
	go func(reply string, body []byte) {
		if err := m.h.Publish(reply, body, 0, false); err != nil {
			m.h.log.Error("failed to publish reply", "topic", reply, "error", err)
		}
	}(topic+ReplySuffix, resp.Body)

	return pk, nil
}
