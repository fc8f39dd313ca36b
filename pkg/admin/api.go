package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/getmockd/switchboard/pkg/logging"
	"github.com/getmockd/switchboard/pkg/metrics"
	"github.com/getmockd/switchboard/pkg/pool"
	"github.com/getmockd/switchboard/pkg/ratelimit"
	"github.com/getmockd/switchboard/pkg/route"
)

// DefaultRateLimit is the default requests per second per client.
const DefaultRateLimit float64 = 100

// DefaultBurstSize is the default burst size.
const DefaultBurstSize int = 200

// RouteTable reports the routes of every protocol.
type RouteTable interface {
	RouteTable() map[string][]route.Info
}

// ProtocolLister reports the detection order.
type ProtocolLister interface {
	Protocols() []string
}

// AdminAPI is the admin HTTP server.
type AdminAPI struct {
	addr      string
	log       *slog.Logger
	metrics   *metrics.Metrics
	pool      *pool.Pool
	routes    RouteTable
	protocols func() []string

	rateLimiter *ratelimit.Limiter
	httpServer  *http.Server
	startTime   time.Time

	mu sync.Mutex
	ln net.Listener
}

// Option configures the AdminAPI.
type Option func(*AdminAPI)

// WithLogger sets the operational logger.
func WithLogger(log *slog.Logger) Option {
	return func(a *AdminAPI) { a.log = logging.Component(log, "admin") }
}

// WithMetrics exposes m on /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *AdminAPI) { a.metrics = m }
}

// WithPool exposes the statistics of p on /pool.
func WithPool(p *pool.Pool) Option {
	return func(a *AdminAPI) { a.pool = p }
}

// WithRoutes exposes the route table on /routes.
func WithRoutes(rt RouteTable) Option {
	return func(a *AdminAPI) { a.routes = rt }
}

// WithProtocols exposes the detection order on /protocols.
func WithProtocols(fn func() []string) Option {
	return func(a *AdminAPI) { a.protocols = fn }
}

// WithRateLimiter replaces the default per-client limiter.
func WithRateLimiter(l *ratelimit.Limiter) Option {
	return func(a *AdminAPI) { a.rateLimiter = l }
}

// New returns an admin API that will listen on addr.
func New(addr string, opts ...Option) *AdminAPI {
	a := &AdminAPI{
		addr:      addr,
		log:       logging.Nop(),
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.rateLimiter == nil {
		a.rateLimiter = ratelimit.New(ratelimit.Config{Rate: DefaultRateLimit, Burst: DefaultBurstSize})
	}

	mux := http.NewServeMux()
	a.registerRoutes(mux)
	a.httpServer = &http.Server{
		Handler:           a.rateLimit(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a
}

// Handler returns the admin handler, rate limiting included.
func (a *AdminAPI) Handler() http.Handler { return a.httpServer.Handler }

func (a *AdminAPI) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", a.handleHealth)
	mux.HandleFunc("GET /pool", a.handlePool)
	mux.HandleFunc("GET /routes", a.handleRoutes)
	mux.HandleFunc("GET /protocols", a.handleProtocols)
	if a.metrics != nil {
		mux.Handle("GET /metrics", a.metrics.Handler())
	}
}

// rateLimit rejects clients over budget with 429.
func (a *AdminAPI) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, remaining, retryAfter := a.rateLimiter.Allow(a.rateLimiter.ClientIP(r.RemoteAddr, r.Header))
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(a.rateLimiter.Burst()))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if !ok {
			w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start binds the listen address and serves in the background.
func (a *AdminAPI) Start() error {
	ln, err := net.Listen("tcp", a.addr)
	if err != nil {
		return fmt.Errorf("admin listen %s: %w", a.addr, err)
	}
	a.mu.Lock()
	a.ln = ln
	a.mu.Unlock()

	a.log.Info("starting admin API", "addr", ln.Addr().String())
	go func() {
		if err := a.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("admin API error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or nil before Start.
func (a *AdminAPI) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ln == nil {
		return nil
	}
	return a.ln.Addr()
}

// Stop gracefully shuts down the admin API server.
func (a *AdminAPI) Stop(ctx context.Context) error {
	a.rateLimiter.Stop()
	return a.httpServer.Shutdown(ctx)
}

// Uptime returns the API uptime in seconds.
func (a *AdminAPI) Uptime() int {
	return int(time.Since(a.startTime).Seconds())
}
