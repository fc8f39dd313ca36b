// Package mux serves many logical streams over one connection using
// hashicorp/yamux. Each stream speaks the line format of package text,
// without the HELO greeting. SWITCH is refused on streams.
package mux

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/hashicorp/yamux"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/getmockd/switchboard/pkg/config"
	"github.com/getmockd/switchboard/pkg/logging"
	"github.com/getmockd/switchboard/pkg/middleware"
	"github.com/getmockd/switchboard/pkg/protocol"
	"github.com/getmockd/switchboard/pkg/protocols/text"
)

// HeaderStreamID carries the stream id into the middleware context.
const HeaderStreamID = "X-Stream-Id"

const (
	protoVersion     = 0
	typeWindowUpdate = 1
	flagSYN          = 1
	headerSize       = 12
)

// Handler serves yamux sessions.
type Handler struct {
	log *slog.Logger
}

// New returns a mux handler.
func New(log *slog.Logger) *Handler {
	return &Handler{log: logging.Component(log, "mux")}
}

// Protocol implements protocol.Handler.
func (h *Handler) Protocol() protocol.Protocol { return protocol.ProtocolMux }

// Detect claims a prefix that starts with the window update frame a yamux
// client sends when it opens its first stream.
func (h *Handler) Detect(prefix []byte) bool {
	if len(prefix) < headerSize {
		return false
	}
	if prefix[0] != protoVersion || prefix[1] != typeWindowUpdate {
		return false
	}
	flags := uint16(prefix[2])<<8 | uint16(prefix[3])
	if flags&flagSYN == 0 {
		return false
	}
	id := uint32(prefix[4])<<24 | uint32(prefix[5])<<16 | uint32(prefix[6])<<8 | uint32(prefix[7])
	return id%2 == 1
}

// Serve runs the session until the peer closes it or the connection
// context ends.
func (h *Handler) Serve(s *protocol.Session) (protocol.Status, error) {
	mc := config.Default().Protocols.Mux
	if s.App != nil && s.App.Config() != nil {
		mc = s.App.Config().Protocols.Mux
	}

	session, err := yamux.Server(s.Conn, yamuxConfig(mc, s.Log))
	if err != nil {
		return protocol.Stopped, fmt.Errorf("mux session: %w", err)
	}
	defer session.Close()

	maxStreams := int64(mc.MaxStreams)
	if maxStreams <= 0 {
		maxStreams = int64(config.Default().Protocols.Mux.MaxStreams)
	}
	sem := semaphore.NewWeighted(maxStreams)

	var g errgroup.Group
	for {
		st, err := session.AcceptStreamWithContext(s.Context())
		if err != nil {
			break
		}
		if !sem.TryAcquire(1) {
			s.Log.Warn("mux stream limit reached", "limit", maxStreams)
			_ = st.Close()
			continue
		}
		stream := &Stream{Stream: st, transport: s.Conn.ID()}
		g.Go(func() error {
			defer sem.Release(1)
			h.serveStream(s, stream, mc.StreamDeadline)
			return nil
		})
	}
	_ = session.Close()
	_ = g.Wait()
	return protocol.Stopped, nil
}

func (h *Handler) serveStream(s *protocol.Session, st *Stream, deadline time.Duration) {
	defer st.Close()
	id, _ := st.StreamID()
	log := s.Log.With("stream_id", id)
	r := bufio.NewReader(st)

	for {
		if deadline > 0 {
			_ = st.SetReadDeadline(time.Now().Add(deadline))
		}
		line, err := protocol.ReadMessage[text.Line](r, text.Codec{})
		if err != nil {
			if errors.Is(err, protocol.ErrMessageTooLarge) {
				_ = protocol.WriteMessage(st, text.Line("500 line too long"))
			} else if !quietErr(err) {
				log.Debug("mux stream read failed", "error", err)
			}
			return
		}

		res := text.Exec(line, s.Routes(), func(path string) *middleware.Context {
			c := s.RequestContext(text.Method, path)
			c.Header.Set(HeaderStreamID, strconv.FormatUint(uint64(id), 10))
			c.Request = st
			return c
		})
		reply := res.Reply
		if res.Switch != "" {
			reply = "501 SWITCH not supported on streams"
		}
		if err := protocol.WriteMessage(st, reply); err != nil || res.Quit {
			return
		}
	}
}

func yamuxConfig(mc config.MuxConfig, log *slog.Logger) *yamux.Config {
	cfg := yamux.DefaultConfig()
	if mc.AcceptBacklog > 0 {
		cfg.AcceptBacklog = mc.AcceptBacklog
	}
	if mc.KeepAlive > 0 {
		cfg.KeepAliveInterval = mc.KeepAlive
	} else {
		cfg.EnableKeepAlive = false
	}
	cfg.LogOutput = nil
	cfg.Logger = slog.NewLogLogger(logging.OrNop(log).Handler(), slog.LevelDebug)
	return cfg
}

func quietErr(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, yamux.ErrStreamClosed) ||
		errors.Is(err, yamux.ErrSessionShutdown) ||
		errors.Is(err, yamux.ErrTimeout)
}
