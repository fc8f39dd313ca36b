package app

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/getmockd/switchboard/pkg/client"
	"github.com/getmockd/switchboard/pkg/config"
	"github.com/getmockd/switchboard/pkg/logging"
	"github.com/getmockd/switchboard/pkg/metrics"
	"github.com/getmockd/switchboard/pkg/protocol"
	"github.com/getmockd/switchboard/pkg/ratelimit"
	"github.com/getmockd/switchboard/pkg/route"
)

// App implements protocol.App.
type App struct {
	cfg     *config.Config
	log     *slog.Logger
	client  *client.Client
	metrics *metrics.Metrics

	mu    sync.RWMutex
	trees map[protocol.Protocol]*route.Tree

	limiters []*ratelimit.Limiter
}

var _ protocol.App = (*App)(nil)

// Option configures an App.
type Option func(*App)

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(a *App) { a.log = logging.OrNop(log) }
}

// WithMetrics supplies the collectors used by the "metrics" middleware.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New builds the route trees described by cfg.
func New(cfg *config.Config, cl *client.Client, opts ...Option) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	a := &App{
		cfg:    cfg,
		log:    logging.Nop(),
		client: cl,
		trees:  make(map[protocol.Protocol]*route.Tree),
	}
	for _, opt := range opts {
		opt(a)
	}

	b := newBuilder(a)
	if err := a.build(b); err != nil {
		b.close()
		return nil, err
	}
	a.limiters = b.limiters
	return a, nil
}

func (a *App) build(b *builder) error {
	protos := make([]string, 0, len(a.cfg.Routes))
	for p := range a.cfg.Routes {
		protos = append(protos, p)
	}
	sort.Strings(protos)
	for _, p := range protos {
		tree, err := b.tree(p, a.cfg.Routes[p])
		if err != nil {
			return fmt.Errorf("routes.%s: %w", p, err)
		}
		a.trees[protocol.Protocol(p)] = tree
	}
	return nil
}

// Routes returns the tree of p. HTTP/2 shares the HTTP/1 tree unless h2c
// routes are configured.
func (a *App) Routes(p protocol.Protocol) *route.Tree {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if t, ok := a.trees[p]; ok {
		return t
	}
	if p == protocol.ProtocolH2C {
		return a.trees[protocol.ProtocolHTTP]
	}
	return nil
}

// SetRoutes installs or replaces the tree of p.
func (a *App) SetRoutes(p protocol.Protocol, t *route.Tree) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.trees[p] = t
}

// Config implements protocol.App.
func (a *App) Config() *config.Config { return a.cfg }

// Logger implements protocol.App.
func (a *App) Logger() *slog.Logger { return a.log }

// Client implements protocol.App.
func (a *App) Client() *client.Client { return a.client }

// RouteTable lists the routes of every protocol.
func (a *App) RouteTable() map[string][]route.Info {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string][]route.Info, len(a.trees))
	for p, t := range a.trees {
		out[string(p)] = t.Routes()
	}
	return out
}

// Close releases the resources held by configured middleware.
func (a *App) Close() {
	for _, l := range a.limiters {
		l.Stop()
	}
}
