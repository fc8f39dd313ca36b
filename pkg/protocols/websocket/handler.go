// Package websocket serves WebSocket connections handed off by the HTTP/1
// adapter. It is never detected from raw bytes.
//
// Each data message is routed through the websocket route tree using the
// path of the upgrade request; the response body is sent back as one
// message of the same type. Empty bodies send nothing.
package websocket

import (
	"errors"
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"

	"github.com/getmockd/switchboard/pkg/logging"
	"github.com/getmockd/switchboard/pkg/middleware"
	"github.com/getmockd/switchboard/pkg/protocol"
)

// Method is the request method reported for routed messages.
const Method = "MESSAGE"

// DefaultReadLimit bounds a single incoming message.
const DefaultReadLimit = 32 << 10

// ErrNoUpgradeRequest is returned when a session reaches the handler
// without the HTTP request that asked for the upgrade.
var ErrNoUpgradeRequest = errors.New("websocket: no upgrade request in session")

// Handler serves WebSocket sessions.
type Handler struct {
	log *slog.Logger
}

// New returns a websocket handler.
func New(log *slog.Logger) *Handler {
	return &Handler{log: logging.Component(log, "websocket")}
}

// Protocol implements protocol.Handler.
func (h *Handler) Protocol() protocol.Protocol { return protocol.ProtocolWebSocket }

// Detect implements protocol.Handler. WebSocket is reachable only through
// handoff.
func (h *Handler) Detect([]byte) bool { return false }

// Serve accepts the handshake and runs the message loop until the peer
// goes away.
func (h *Handler) Serve(s *protocol.Session) (protocol.Status, error) {
	req, ok := middleware.LocalValue[*http.Request](s.Locals, protocol.LocalUpgradeRequest)
	if !ok || req == nil {
		return protocol.Stopped, ErrNoUpgradeRequest
	}
	s.Locals.Delete(protocol.LocalUpgradeRequest)

	readLimit := int64(DefaultReadLimit)
	opts := &ws.AcceptOptions{CompressionMode: ws.CompressionDisabled}
	if s.App != nil && s.App.Config() != nil {
		wc := s.App.Config().Protocols.WebSocket
		opts.OriginPatterns = wc.OriginPatterns
		if wc.ReadLimit > 0 {
			readLimit = wc.ReadLimit
		}
	}

	w := newResponseWriter(s.Conn)
	conn, err := ws.Accept(w, req, opts)
	if err != nil {
		h.log.Debug("websocket handshake rejected", "conn_id", s.Conn.ID(), "status", w.Status(), "error", err)
		return protocol.Stopped, nil
	}
	defer conn.CloseNow()
	conn.SetReadLimit(readLimit)

	ctx := s.Context()
	tree := s.Routes()
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			status := ws.CloseStatus(err)
			if status == -1 && ctx.Err() == nil {
				h.log.Debug("websocket read failed", "conn_id", s.Conn.ID(), "error", err)
			}
			return protocol.Stopped, nil
		}

		c := s.RequestContext(Method, req.URL.Path)
		c.Header = req.Header.Clone()
		c.Body = data
		c.Request = req

		resp := middleware.NotFound()
		if tree != nil {
			resp = tree.Serve(c)
		}
		if len(resp.Body) == 0 {
			continue
		}
		if err := conn.Write(ctx, typ, resp.Body); err != nil {
			return protocol.Stopped, nil
		}
	}
}
