// Package h2c serves HTTP/2 with prior knowledge (cleartext, no upgrade).
// The connection is handed to golang.org/x/net/http2, and every stream is
// routed through the protocol's route tree.
package h2c

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"

	"golang.org/x/net/http2"

	"github.com/getmockd/switchboard/pkg/logging"
	"github.com/getmockd/switchboard/pkg/middleware"
	"github.com/getmockd/switchboard/pkg/protocol"
)

// DefaultMaxBodySize bounds request bodies read into the middleware context.
const DefaultMaxBodySize = 10 << 20

var preface = []byte(http2.ClientPreface)

// Handler serves HTTP/2 prior-knowledge connections.
type Handler struct {
	log         *slog.Logger
	server      *http2.Server
	maxBodySize int64
}

// Option configures a Handler.
type Option func(*Handler)

// WithServer replaces the http2 server settings.
func WithServer(srv *http2.Server) Option {
	return func(h *Handler) {
		if srv != nil {
			h.server = srv
		}
	}
}

// WithMaxBodySize sets the largest accepted request body.
func WithMaxBodySize(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxBodySize = n
		}
	}
}

// New returns an h2c handler.
func New(log *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		log:         logging.Component(log, "h2c"),
		server:      &http2.Server{},
		maxBodySize: DefaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Protocol implements protocol.Handler.
func (h *Handler) Protocol() protocol.Protocol { return protocol.ProtocolH2C }

// Detect claims a prefix that holds the complete client connection preface.
func (h *Handler) Detect(prefix []byte) bool {
	return bytes.HasPrefix(prefix, preface)
}

// Serve runs the HTTP/2 connection to completion.
func (h *Handler) Serve(s *protocol.Session) (protocol.Status, error) {
	h.server.ServeConn(s.Conn, &http2.ServeConnOpts{
		Context: s.Context(),
		Handler: h.handler(s),
	})
	return protocol.Stopped, nil
}

func (h *Handler) handler(s *protocol.Session) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, h.maxBodySize+1))
		if err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if int64(len(body)) > h.maxBodySize {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}

		c := s.RequestContext(r.Method, r.URL.Path)
		c.SetContext(r.Context())
		c.Header = r.Header.Clone()
		c.Body = body
		c.Request = r
		if r.RemoteAddr != "" {
			c.Remote = r.RemoteAddr
		}

		resp := middleware.NotFound()
		if tree := s.Routes(); tree != nil {
			resp = tree.Serve(c)
		}

		for k, v := range resp.Header {
			w.Header()[k] = append([]string(nil), v...)
		}
		w.WriteHeader(resp.Status)
		if _, err := w.Write(resp.Body); err != nil {
			h.log.Debug("h2c write failed", "conn_id", s.Conn.ID(), "error", err)
		}
	})
}
