package protocol

import (
	"context"
	"log/slog"

	"github.com/getmockd/switchboard/pkg/client"
	"github.com/getmockd/switchboard/pkg/config"
	"github.com/getmockd/switchboard/pkg/middleware"
	"github.com/getmockd/switchboard/pkg/route"
)

// App is the application handle available to handlers.
type App interface {
	// Routes returns the route tree of a protocol, or nil.
	Routes(p Protocol) *route.Tree
	Config() *config.Config
	Logger() *slog.Logger
	Client() *client.Client
}

// Session is the state a handler works with. It survives protocol handoff:
// the target handler sees the same connection, params and locals.
type Session struct {
	Conn *Conn
	App  App

	// Protocol is the tag of the handler currently owning the session.
	Protocol Protocol
	// Status is the entry status of the current invocation.
	Status Status

	Params middleware.Params
	Locals *middleware.Locals
	Log    *slog.Logger

	ctx context.Context
}

// NewSession returns a session in status Established.
func NewSession(ctx context.Context, conn *Conn, app App, log *slog.Logger) *Session {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Session{
		Conn:   conn,
		App:    app,
		Status: Established,
		Params: make(middleware.Params),
		Locals: middleware.NewLocals(),
		Log:    log,
		ctx:    ctx,
	}
}

// Context returns the connection's context. It is canceled on shutdown or
// when the connection exceeds its maximum lifetime.
func (s *Session) Context() context.Context { return s.ctx }

// RequestContext returns a middleware context for one request carried by
// the session. Params are copied, locals are shared.
func (s *Session) RequestContext(method, path string) *middleware.Context {
	c := middleware.NewContext(s.ctx, string(s.Protocol), method, path)
	c.Params = s.Params.Clone()
	c.Locals = s.Locals
	c.Log = s.Log
	if s.Conn != nil && s.Conn.RemoteAddr() != nil {
		c.Remote = s.Conn.RemoteAddr().String()
	}
	return c
}

// Routes returns the route tree for the session's current protocol.
func (s *Session) Routes() *route.Tree {
	if s.App == nil {
		return nil
	}
	return s.App.Routes(s.Protocol)
}
