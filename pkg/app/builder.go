package app

import (
	"fmt"
	"slices"

	"github.com/klauspost/compress/gzip"

	"github.com/getmockd/switchboard/pkg/config"
	"github.com/getmockd/switchboard/pkg/logging"
	"github.com/getmockd/switchboard/pkg/middleware"
	"github.com/getmockd/switchboard/pkg/ratelimit"
	"github.com/getmockd/switchboard/pkg/route"
)

// builder turns configuration into trees. Middleware instances are shared
// by name, so a rate limiter named once keeps one budget across routes.
type builder struct {
	a        *App
	cache    map[string]middleware.Middleware
	limiters []*ratelimit.Limiter
}

func newBuilder(a *App) *builder {
	return &builder{a: a, cache: make(map[string]middleware.Middleware)}
}

// close stops the limiters built so far.
func (b *builder) close() {
	for _, l := range b.limiters {
		l.Stop()
	}
}

func (b *builder) tree(proto string, set config.RouteSet) (*route.Tree, error) {
	t := route.New(route.WithLogger(logging.Component(b.a.log, "routes").With("protocol", proto)))

	mws, err := b.list(set.Middleware)
	if err != nil {
		return nil, err
	}
	if err := t.Use(mws...); err != nil {
		return nil, err
	}

	for _, rc := range set.Routes {
		if err := b.route(t, rc); err != nil {
			return nil, fmt.Errorf("%s: %w", rc.Path, err)
		}
	}
	return t, nil
}

func (b *builder) route(t *route.Tree, rc config.RouteConfig) error {
	var h middleware.Handler
	switch {
	case rc.Response != nil:
		h = StaticResponse(*rc.Response)
	case rc.Proxy != "":
		p, err := NewProxy(rc.Proxy, b.a.client)
		if err != nil {
			return err
		}
		h = p.Handle
	}
	if h != nil {
		if _, err := t.Handle(rc.Path, h); err != nil {
			return err
		}
	}

	if len(rc.Middleware) > 0 {
		mws, err := b.list(rc.Middleware)
		if err != nil {
			return err
		}
		if err := t.UseAt(rc.Path, mws...); err != nil {
			return err
		}
	}

	if rc.Override != nil {
		mws, err := b.list(rc.Override)
		if err != nil {
			return err
		}
		if err := t.SetOverride(rc.Path, mws...); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) list(names []string) ([]middleware.Middleware, error) {
	out := make([]middleware.Middleware, 0, len(names))
	for _, name := range names {
		mw, err := b.get(name)
		if err != nil {
			return nil, err
		}
		out = append(out, mw)
	}
	return out, nil
}

func (b *builder) get(name string) (middleware.Middleware, error) {
	if name == config.InheritMarker {
		return middleware.Inherit, nil
	}
	if mw, ok := b.cache[name]; ok {
		return mw, nil
	}

	spec, ok := b.a.cfg.Middleware[name]
	if !ok {
		if !slices.Contains(config.BuiltinMiddleware, name) {
			return nil, fmt.Errorf("undefined middleware %q", name)
		}
		spec = config.MiddlewareSpec{Type: name}
	}

	mw, err := b.build(spec)
	if err != nil {
		return nil, fmt.Errorf("middleware %q: %w", name, err)
	}
	if mw.Name() != name {
		mw = middleware.Named(name, mw.Handle)
	}
	b.cache[name] = mw
	return mw, nil
}

func (b *builder) build(spec config.MiddlewareSpec) (middleware.Middleware, error) {
	log := b.a.log
	switch spec.Type {
	case config.MiddlewareLogging:
		return middleware.Logging(log), nil
	case config.MiddlewareRecover:
		return middleware.Recover(log), nil
	case config.MiddlewareRequestID:
		return middleware.RequestID(), nil
	case config.MiddlewareTiming:
		return middleware.Timing(), nil
	case config.MiddlewareMetrics:
		if b.a.metrics == nil {
			return middleware.Metrics(nil, nil), nil
		}
		return middleware.Metrics(b.a.metrics.RequestsTotal, b.a.metrics.RequestDuration), nil
	case config.MiddlewareRateLimit:
		l := ratelimit.New(ratelimit.Config{
			Rate:           spec.Rate,
			Burst:          spec.Burst,
			TrustedProxies: spec.TrustedProxies,
		})
		b.limiters = append(b.limiters, l)
		return middleware.RateLimit(l), nil
	case config.MiddlewareJWTAuth:
		return middleware.JWTAuth(middleware.JWTConfig{
			Secret:   []byte(spec.Secret),
			Issuer:   spec.Issuer,
			Audience: spec.Audience,
			Header:   spec.Header,
		})
	case config.MiddlewareGuard:
		return middleware.Guard(spec.Expression)
	case config.MiddlewareGzip:
		level := spec.Level
		if level == 0 {
			level = gzip.DefaultCompression
		}
		return middleware.Gzip(level, spec.MinSize)
	default:
		return nil, fmt.Errorf("unknown middleware type %q", spec.Type)
	}
}
