// Package text implements a line-oriented protocol. A client opens with
// "HELO [name]" and then sends one command per line:
//
//	/path [body]   route the line through the protocol's route tree
//	PING           liveness check
//	SWITCH <tag>   hand the connection to another protocol
//	QUIT           close the connection
//
// Every command gets one "<code> <text>" reply line.
package text

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net"

	"github.com/getmockd/switchboard/pkg/logging"
	"github.com/getmockd/switchboard/pkg/middleware"
	"github.com/getmockd/switchboard/pkg/protocol"
)

// Greeting is sent once a session is established.
const Greeting Line = "220 switchboard ready"

// Handler serves the text protocol.
type Handler struct {
	log *slog.Logger
}

// New returns a text protocol handler.
func New(log *slog.Logger) *Handler {
	return &Handler{log: logging.Component(log, "text")}
}

// Protocol implements protocol.Handler.
func (h *Handler) Protocol() protocol.Protocol { return protocol.ProtocolText }

// Detect implements protocol.Handler.
func (h *Handler) Detect(prefix []byte) bool {
	if len(prefix) < len(CmdHelo) {
		return false
	}
	if !bytes.EqualFold(prefix[:len(CmdHelo)], []byte(CmdHelo)) {
		return false
	}
	if len(prefix) == len(CmdHelo) {
		return true
	}
	switch prefix[len(CmdHelo)] {
	case ' ', '\r', '\n':
		return true
	}
	return false
}

// Serve implements protocol.Handler. Each call handles one line.
func (h *Handler) Serve(s *protocol.Session) (protocol.Status, error) {
	switch s.Status.Kind() {
	case protocol.KindEstablished:
		if _, err := h.read(s); err != nil {
			return protocol.Stopped, nil
		}
		return h.reply(s, Greeting, s.Status.FramePassed())
	case protocol.KindUpgraded:
		return h.reply(s, Greeting, protocol.Connected)
	}

	line, err := h.read(s)
	if err != nil {
		if errors.Is(err, protocol.ErrMessageTooLarge) {
			_ = protocol.WriteMessage(s.Conn, Line("500 line too long"))
		}
		return protocol.Stopped, nil
	}

	res := Exec(line, s.Routes(), func(path string) *middleware.Context {
		return s.RequestContext(Method, path)
	})
	if res.Quit {
		_, _ = h.reply(s, res.Reply, protocol.Stopped)
		return protocol.Stopped, nil
	}
	if res.Switch != "" {
		return h.reply(s, res.Reply, protocol.SwitchTo(res.Switch))
	}
	return h.reply(s, res.Reply, s.Status.FramePassed())
}

func (h *Handler) read(s *protocol.Session) (Line, error) {
	line, err := protocol.ReadMessage[Line](s.Conn.Reader(), Codec{})
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
		h.log.Debug("text read failed", "conn_id", s.Conn.ID(), "error", err)
	}
	return line, err
}

func (h *Handler) reply(s *protocol.Session, line Line, next protocol.Status) (protocol.Status, error) {
	if err := protocol.WriteMessage(s.Conn, line); err != nil {
		if errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
			return protocol.Stopped, nil
		}
		return protocol.Stopped, err
	}
	return next, nil
}
