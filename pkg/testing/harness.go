package testing

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/getmockd/switchboard/pkg/client"
	"github.com/getmockd/switchboard/pkg/config"
	"github.com/getmockd/switchboard/pkg/logging"
	"github.com/getmockd/switchboard/pkg/middleware"
	"github.com/getmockd/switchboard/pkg/pool"
	"github.com/getmockd/switchboard/pkg/protocol"
	"github.com/getmockd/switchboard/pkg/route"
)

// Harness serves connections through a dispatcher built from a fixed set
// of handlers.
type Harness struct {
	t   testing.TB
	cfg *config.Config
	log *slog.Logger

	mu     sync.Mutex
	trees  map[protocol.Protocol]*route.Tree
	errs   []error
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	reg        *protocol.Registry
	dispatcher *protocol.Dispatcher
	pool       *pool.Pool
	client     *client.Client
}

// New returns a harness for handlers, registered in the given order. It
// is torn down with t.Cleanup.
func New(t testing.TB, handlers ...protocol.Handler) *Harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	p := pool.New(pool.DefaultConfig())
	h := &Harness{
		t:      t,
		cfg:    config.Default(),
		log:    logging.Nop(),
		trees:  make(map[protocol.Protocol]*route.Tree),
		ctx:    ctx,
		cancel: cancel,
		reg:    protocol.NewRegistry(),
		pool:   p,
		client: client.New(p),
	}
	h.Register(handlers...)
	t.Cleanup(h.close)
	return h
}

// Register adds handlers after the ones given to New. Handlers that need
// the harness as their App are registered this way. It must be called
// before the first Dial or Listen.
func (h *Harness) Register(handlers ...protocol.Handler) {
	h.t.Helper()
	for _, hd := range handlers {
		if err := h.reg.Register(hd); err != nil {
			h.t.Fatalf("register %s: %v", hd.Protocol(), err)
		}
	}
}

// Routes implements protocol.App. Trees are created on first use.
func (h *Harness) Routes(p protocol.Protocol) *route.Tree {
	h.mu.Lock()
	defer h.mu.Unlock()
	tree, ok := h.trees[p]
	if !ok {
		tree = route.New()
		h.trees[p] = tree
	}
	return tree
}

// Config implements protocol.App.
func (h *Harness) Config() *config.Config { return h.cfg }

// Logger implements protocol.App.
func (h *Harness) Logger() *slog.Logger { return h.log }

// Client implements protocol.App.
func (h *Harness) Client() *client.Client { return h.client }

// Handle registers fn for pattern on the tree of p.
func (h *Harness) Handle(p protocol.Protocol, pattern string, fn middleware.Handler) {
	h.t.Helper()
	if _, err := h.Routes(p).Handle(pattern, fn); err != nil {
		h.t.Fatalf("handle %s %s: %v", p, pattern, err)
	}
}

// Reply registers a static response for pattern. "{name}" in body is
// replaced with the route parameter of that name.
func (h *Harness) Reply(p protocol.Protocol, pattern string, status int, body string) {
	h.t.Helper()
	h.Handle(p, pattern, func(c *middleware.Context) *middleware.Response {
		out := body
		for k, v := range c.Params {
			out = strings.ReplaceAll(out, "{"+k+"}", v)
		}
		return middleware.Text(status, out)
	})
}

// Dispatcher returns the dispatcher, building it on first use.
func (h *Harness) Dispatcher() *protocol.Dispatcher {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.dispatcher == nil {
		h.dispatcher = protocol.NewDispatcher(h.reg, h)
	}
	return h.dispatcher
}

// Dial returns the client end of a pipe whose server end is being served.
func (h *Harness) Dial() net.Conn {
	server, clientConn := net.Pipe()
	h.serve(server)
	h.t.Cleanup(func() { _ = clientConn.Close() })
	return clientConn
}

// Listen serves every connection accepted on a loopback listener and
// returns its address.
func (h *Harness) Listen() string {
	h.t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		h.t.Fatalf("listen: %v", err)
	}
	h.t.Cleanup(func() { _ = ln.Close() })

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			h.serve(c)
		}
	}()
	return ln.Addr().String()
}

func (h *Harness) serve(c net.Conn) {
	d := h.Dispatcher()
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if err := d.Serve(h.ctx, c); err != nil && !errors.Is(err, context.Canceled) {
			h.mu.Lock()
			h.errs = append(h.errs, err)
			h.mu.Unlock()
		}
	}()
}

// Errors returns the errors returned by finished connections so far.
func (h *Harness) Errors() []error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]error(nil), h.errs...)
}

func (h *Harness) close() {
	h.cancel()
	h.wg.Wait()
	_ = h.pool.Close()
}
