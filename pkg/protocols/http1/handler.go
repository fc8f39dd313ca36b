// Package http1 serves HTTP/1.0 and HTTP/1.1 over a dispatched connection.
// One request is handled per invocation; keep-alive connections return to
// the dispatcher between requests. A request carrying "Upgrade: websocket"
// is handed to the websocket protocol with the request stored in the
// session locals.
package http1

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/getmockd/switchboard/pkg/logging"
	"github.com/getmockd/switchboard/pkg/middleware"
	"github.com/getmockd/switchboard/pkg/protocol"
)

// DefaultMaxBodySize bounds request bodies read into the middleware context.
const DefaultMaxBodySize = 10 << 20

var methods = [][]byte{
	[]byte("GET "),
	[]byte("HEAD "),
	[]byte("POST "),
	[]byte("PUT "),
	[]byte("DELETE "),
	[]byte("OPTIONS "),
	[]byte("PATCH "),
	[]byte("TRACE "),
	[]byte("CONNECT "),
}

// Handler serves HTTP/1.x.
type Handler struct {
	log         *slog.Logger
	maxBodySize int64
}

// Option configures a Handler.
type Option func(*Handler)

// WithMaxBodySize sets the largest accepted request body.
func WithMaxBodySize(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxBodySize = n
		}
	}
}

// New returns an HTTP/1.x handler.
func New(log *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		log:         logging.Component(log, "http1"),
		maxBodySize: DefaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Protocol implements protocol.Handler.
func (h *Handler) Protocol() protocol.Protocol { return protocol.ProtocolHTTP }

// Detect reports whether prefix starts with a request method and a space.
// The HTTP/2 preface method PRI is not claimed.
func (h *Handler) Detect(prefix []byte) bool {
	for _, m := range methods {
		if bytes.HasPrefix(prefix, m) {
			return true
		}
	}
	return false
}

// Serve implements protocol.Handler.
func (h *Handler) Serve(s *protocol.Session) (protocol.Status, error) {
	req, err := http.ReadRequest(s.Conn.Reader())
	if err != nil {
		if closedErr(err) {
			return protocol.Stopped, nil
		}
		h.log.Debug("malformed request", "conn_id", s.Conn.ID(), "error", err)
		return protocol.Stopped, h.write(s.Conn, nil, middleware.Text(http.StatusBadRequest, "bad request"), false)
	}

	if IsWebSocketUpgrade(req) && websocketEnabled(s) {
		s.Locals.Set(protocol.LocalUpgradeRequest, req)
		return protocol.SwitchTo(protocol.ProtocolWebSocket), nil
	}

	if strings.EqualFold(req.Header.Get("Expect"), "100-continue") && req.ContentLength != 0 {
		if _, err := io.WriteString(s.Conn, "HTTP/1.1 100 Continue\r\n\r\n"); err != nil {
			return protocol.Stopped, nil
		}
	}

	body, err := io.ReadAll(io.LimitReader(req.Body, h.maxBodySize+1))
	_ = req.Body.Close()
	if err != nil {
		if closedErr(err) {
			return protocol.Stopped, nil
		}
		return protocol.Stopped, h.write(s.Conn, req, middleware.Text(http.StatusBadRequest, "bad request"), false)
	}
	if int64(len(body)) > h.maxBodySize {
		return protocol.Stopped, h.write(s.Conn, req, middleware.Text(http.StatusRequestEntityTooLarge, "request body too large"), false)
	}

	c := s.RequestContext(req.Method, req.URL.Path)
	c.Header = req.Header.Clone()
	c.Body = body
	c.Request = req

	resp := middleware.NotFound()
	if tree := s.Routes(); tree != nil {
		resp = tree.Serve(c)
	}

	keepAlive := !req.Close && resp.Header.Get("Connection") != "close"
	if err := h.write(s.Conn, req, resp, keepAlive); err != nil {
		if closedErr(err) {
			return protocol.Stopped, nil
		}
		return protocol.Stopped, err
	}
	if !keepAlive {
		return protocol.Stopped, nil
	}
	return s.Status.FramePassed(), nil
}

// write serializes resp. req may be nil when the request could not be read.
func (h *Handler) write(w io.Writer, req *http.Request, resp *middleware.Response, keepAlive bool) error {
	minor := 1
	if req != nil && req.ProtoMajor == 1 && req.ProtoMinor == 0 {
		minor = 0
	}

	hdr := make(http.Header, len(resp.Header)+3)
	for k, v := range resp.Header {
		hdr[k] = append([]string(nil), v...)
	}
	hdr.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	switch {
	case !keepAlive:
		hdr.Set("Connection", "close")
	case minor == 0:
		hdr.Set("Connection", "keep-alive")
	}

	withBody := bodyAllowed(resp.Status)
	if withBody {
		hdr.Set("Content-Length", strconv.Itoa(len(resp.Body)))
		if hdr.Get("Content-Type") == "" && len(resp.Body) > 0 {
			hdr.Set("Content-Type", http.DetectContentType(resp.Body))
		}
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "HTTP/1.%d %03d %s\r\n", minor, resp.Status, http.StatusText(resp.Status))
	if err := hdr.Write(bw); err != nil {
		return err
	}
	bw.WriteString("\r\n")
	if withBody && (req == nil || req.Method != http.MethodHead) {
		bw.Write(resp.Body)
	}
	return bw.Flush()
}

// IsWebSocketUpgrade reports whether req asks for a websocket upgrade.
func IsWebSocketUpgrade(req *http.Request) bool {
	return headerContains(req.Header, "Connection", "upgrade") &&
		headerContains(req.Header, "Upgrade", "websocket")
}

func headerContains(h http.Header, name, token string) bool {
	for _, v := range h.Values(name) {
		for _, part := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(part), token) {
				return true
			}
		}
	}
	return false
}

func websocketEnabled(s *protocol.Session) bool {
	if s.App == nil || s.App.Config() == nil {
		return true
	}
	return s.App.Config().Protocols.WebSocket.Enabled
}

func bodyAllowed(status int) bool {
	switch {
	case status >= 100 && status < 200:
		return false
	case status == http.StatusNoContent, status == http.StatusNotModified:
		return false
	}
	return true
}

func closedErr(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe)
}
