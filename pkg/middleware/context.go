package middleware

import (
	"context"
	"log/slog"
	"maps"
	"net/http"
	"sync"

	"github.com/getmockd/switchboard/pkg/logging"
)

// Context is the request-scoped state that flows through a chain.
// Protocol adapters fill the generic fields and may attach their native
// request through Request.
type Context struct {
	ctx context.Context

	// Protocol is the tag of the protocol that produced the request.
	Protocol string
	Method   string
	Path     string
	Header   http.Header
	Body     []byte

	// Remote is the peer address of the underlying connection.
	Remote string

	// Params holds values captured by the route pattern.
	Params Params

	// Locals is shared with the connection and survives protocol handoff.
	Locals *Locals

	// Request is the protocol-native request, if any.
	Request any

	Log *slog.Logger
}

// NewContext returns a Context with empty header, params and locals.
func NewContext(ctx context.Context, protocol, method, path string) *Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Context{
		ctx:      ctx,
		Protocol: protocol,
		Method:   method,
		Path:     path,
		Header:   make(http.Header),
		Params:   make(Params),
		Locals:   NewLocals(),
		Log:      logging.Nop(),
	}
}

// Context returns the context.Context bound to the request.
func (c *Context) Context() context.Context {
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

// Logger returns the request logger, never nil.
func (c *Context) Logger() *slog.Logger {
	return logging.OrNop(c.Log)
}

// SetContext replaces the bound context.Context.
func (c *Context) SetContext(ctx context.Context) {
	if ctx != nil {
		c.ctx = ctx
	}
}

// Response is the protocol-agnostic result of a chain.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// NewResponse creates a response with the given status and body.
func NewResponse(status int, body []byte) *Response {
	return &Response{Status: status, Header: make(http.Header), Body: body}
}

// Text creates a plain text response.
func Text(status int, body string) *Response {
	r := NewResponse(status, []byte(body))
	r.Header.Set("Content-Type", "text/plain; charset=utf-8")
	return r
}

// NotFound is returned for paths without a final handler.
func NotFound() *Response {
	return Text(http.StatusNotFound, "not found")
}

// Params holds route parameters captured during matching.
type Params map[string]string

// Get returns the named parameter or "".
func (p Params) Get(name string) string {
	return p[name]
}

// Clone returns a copy of p.
func (p Params) Clone() Params {
	if p == nil {
		return make(Params)
	}
	return maps.Clone(p)
}

// Locals is a concurrency-safe key/value store attached to a connection.
type Locals struct {
	mu sync.RWMutex
	m  map[string]any
}

// NewLocals returns an empty store.
func NewLocals() *Locals {
	return &Locals{m: make(map[string]any)}
}

// Get returns the value stored under key.
func (l *Locals) Get(key string) (any, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	v, ok := l.m[key]
	return v, ok
}

// Set stores v under key.
func (l *Locals) Set(key string, v any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.m[key] = v
}

// Delete removes key.
func (l *Locals) Delete(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.m, key)
}

// Len returns the number of stored values.
func (l *Locals) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.m)
}

// Clone returns an independent copy of the store. Values are copied
// shallowly.
func (l *Locals) Clone() *Locals {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return &Locals{m: maps.Clone(l.m)}
}

// LocalValue returns the value stored under key if it has type T.
func LocalValue[T any](l *Locals, key string) (T, bool) {
	var zero T
	if l == nil {
		return zero, false
	}
	v, ok := l.Get(key)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}
