// Package mqtt hands MQTT connections to an embedded mochi-mqtt broker.
//
// Publishes from clients are also routed through the mqtt route tree with
// path "/" + topic and method PUBLISH. A 2xx response with a non-empty body
// is published back on "<topic>/reply".
package mqtt

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"

	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"

	"github.com/getmockd/switchboard/pkg/logging"
	"github.com/getmockd/switchboard/pkg/protocol"
)

// ReplySuffix is appended to a topic to form the topic replies go to.
const ReplySuffix = "/reply"

// DefaultListenerID labels clients attached through the dispatcher.
const DefaultListenerID = "switchboard"

// SubscriptionHandler receives messages published on a matching topic.
type SubscriptionHandler func(topic string, payload []byte)

// Handler serves MQTT by attaching connections to an embedded broker.
type Handler struct {
	app        protocol.App
	server     *mqtt.Server
	log        *slog.Logger
	listenerID string

	mu          sync.RWMutex
	subscribers map[string][]SubscriptionHandler
}

// New returns a handler with a running broker. app supplies the route tree
// used for publishes and may be nil.
func New(app protocol.App, log *slog.Logger) (*Handler, error) {
	log = logging.Component(log, "mqtt")
	h := &Handler{
		app:         app,
		log:         log,
		listenerID:  DefaultListenerID,
		subscribers: make(map[string][]SubscriptionHandler),
	}
	if app != nil && app.Config() != nil && app.Config().Protocols.MQTT.ListenerID != "" {
		h.listenerID = app.Config().Protocols.MQTT.ListenerID
	}

	h.server = mqtt.New(&mqtt.Options{
		InlineClient: true,
		Logger:       log,
	})
	if err := h.server.AddHook(new(auth.AllowHook), nil); err != nil {
		return nil, fmt.Errorf("failed to add allow hook: %w", err)
	}
	if err := h.server.AddHook(newMessageHook(h), nil); err != nil {
		return nil, fmt.Errorf("failed to add message hook: %w", err)
	}
	if err := h.server.Serve(); err != nil {
		return nil, fmt.Errorf("failed to start broker: %w", err)
	}
	return h, nil
}

// Protocol implements protocol.Handler.
func (h *Handler) Protocol() protocol.Protocol { return protocol.ProtocolMQTT }

// Detect implements protocol.Handler.
func (h *Handler) Detect(prefix []byte) bool { return IsConnect(prefix) }

// Serve attaches the connection to the broker and blocks until the client
// goes away.
func (h *Handler) Serve(s *protocol.Session) (protocol.Status, error) {
	err := h.server.EstablishConnection(h.listenerID, s.Conn)
	if err != nil && !quietErr(err) {
		s.Log.Debug("mqtt client disconnected", "error", err)
	}
	return protocol.Stopped, nil
}

// Publish sends a message to every subscriber of topic.
func (h *Handler) Publish(topic string, payload []byte, qos byte, retain bool) error {
	return h.server.Publish(topic, payload, retain, qos)
}

// Subscribe registers an in-process handler for a topic filter. The
// filter accepts the MQTT wildcards + and #.
func (h *Handler) Subscribe(filter string, fn SubscriptionHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribers[filter] = append(h.subscribers[filter], fn)
}

// Unsubscribe removes every in-process handler for filter.
func (h *Handler) Unsubscribe(filter string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subscribers, filter)
}

// Clients returns the number of attached clients.
func (h *Handler) Clients() int {
	return h.server.Clients.Len()
}

// Close disconnects every client and stops the broker.
func (h *Handler) Close() error {
	return h.server.Close()
}

func (h *Handler) notify(topic string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for filter, fns := range h.subscribers {
		if !MatchTopic(filter, topic) {
			continue
		}
		for _, fn := range fns {
			go fn(topic, payload)
		}
	}
}

// MatchTopic reports whether topic matches filter, honoring + (one level)
// and # (the remaining levels).
func MatchTopic(filter, topic string) bool {
	fp := strings.Split(filter, "/")
	tp := strings.Split(topic, "/")
	for i, part := range fp {
		if part == "#" {
			return true
		}
		if i >= len(tp) {
			return false
		}
		if part != "+" && part != tp[i] {
			return false
		}
	}
	return len(fp) == len(tp)
}

func quietErr(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe)
}
