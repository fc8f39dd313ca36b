package cli

import (
	"context"
	"log/slog"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/multierr"

	"github.com/getmockd/switchboard/pkg/admin"
	"github.com/getmockd/switchboard/pkg/app"
	"github.com/getmockd/switchboard/pkg/client"
	"github.com/getmockd/switchboard/pkg/config"
	"github.com/getmockd/switchboard/pkg/logging"
	"github.com/getmockd/switchboard/pkg/metrics"
	"github.com/getmockd/switchboard/pkg/pool"
	"github.com/getmockd/switchboard/pkg/protocol"
	"github.com/getmockd/switchboard/pkg/server"
)

// Module assembles a switchboard process around cfg, log and the outbound
// pool p. The pool is closed when the fx app stops.
func Module(cfg *config.Config, log *slog.Logger, p *pool.Pool) fx.Option {
	log = logging.OrNop(log)
	return fx.Module("switchboard",
		fx.Supply(cfg, log, p),
		fx.WithLogger(func() fxevent.Logger {
			l := &fxevent.SlogLogger{Logger: logging.Component(log, "fx")}
			l.UseLogLevel(slog.LevelDebug)
			return l
		}),
		fx.Provide(
			newMetrics,
			newClient,
			newApp,
			newHandlers,
			newDispatcher,
			newServer,
			newAdmin,
		),
		fx.Invoke(registerLifecycle),
	)
}

func newMetrics(p *pool.Pool) (*metrics.Metrics, error) {
	m := metrics.New()
	if err := m.RegisterPool(p); err != nil {
		return nil, err
	}
	return m, nil
}

func newClient(p *pool.Pool, log *slog.Logger) *client.Client {
	return client.New(p, client.WithLogger(log))
}

func newApp(cfg *config.Config, cl *client.Client, m *metrics.Metrics, log *slog.Logger) (*app.App, error) {
	return app.New(cfg, cl, app.WithLogger(log), app.WithMetrics(m))
}

func newHandlers(a *app.App, log *slog.Logger) (*server.Handlers, error) {
	return server.NewHandlers(a, log)
}

func newDispatcher(cfg *config.Config, hs *server.Handlers, a *app.App, m *metrics.Metrics, log *slog.Logger) *protocol.Dispatcher {
	return protocol.NewDispatcher(hs.Registry, a,
		protocol.WithLogger(log),
		protocol.WithObserver(m),
		protocol.WithDetectTimeout(cfg.Protocols.DetectTimeout),
		protocol.WithPeekSize(cfg.Protocols.PeekSize),
		protocol.WithReadBufferSize(cfg.Server.ReadBufferSize),
	)
}

// The pool sweeper is owned by the pool itself (Start), so the server is
// not given the pool.
func newServer(cfg *config.Config, d *protocol.Dispatcher, m *metrics.Metrics, log *slog.Logger) *server.Server {
	return server.New(cfg.Server, d, server.WithLogger(log), server.WithMetrics(m))
}

// newAdmin returns nil when the admin surface is disabled.
func newAdmin(cfg *config.Config, a *app.App, d *protocol.Dispatcher, p *pool.Pool, m *metrics.Metrics, log *slog.Logger) *admin.AdminAPI {
	if !cfg.Admin.Enabled {
		return nil
	}
	return admin.New(cfg.Admin.Listen,
		admin.WithLogger(log),
		admin.WithMetrics(m),
		admin.WithPool(p),
		admin.WithRoutes(a),
		admin.WithProtocols(func() []string {
			tags := d.Protocols()
			out := make([]string, len(tags))
			for i, t := range tags {
				out[i] = string(t)
			}
			return out
		}),
	)
}

type lifecycleParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Log       *slog.Logger
	Pool      *pool.Pool
	App       *app.App
	Handlers  *server.Handlers
	Server    *server.Server
	Admin     *admin.AdminAPI `optional:"true"`
}

func registerLifecycle(p lifecycleParams) {
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			p.Pool.Start()
			if err := p.Server.Start(); err != nil {
				return err
			}
			if p.Admin != nil {
				if err := p.Admin.Start(); err != nil {
					_ = p.Server.Stop(context.Background())
					return err
				}
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			var err error
			if p.Admin != nil {
				err = multierr.Append(err, p.Admin.Stop(ctx))
			}
			err = multierr.Append(err, p.Server.Stop(ctx))
			err = multierr.Append(err, p.Handlers.Close())
			p.App.Close()
			err = multierr.Append(err, p.Pool.Close())
			if err != nil {
				p.Log.Warn("shutdown finished with errors", "error", err)
			}
			return err
		},
	})
}
