package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	tec "github.com/jbenet/go-temp-err-catcher"
	"golang.org/x/sync/errgroup"

	"github.com/getmockd/switchboard/pkg/config"
	"github.com/getmockd/switchboard/pkg/logging"
	"github.com/getmockd/switchboard/pkg/metrics"
	"github.com/getmockd/switchboard/pkg/pool"
	"github.com/getmockd/switchboard/pkg/protocol"
)

// ErrServerClosed is returned by Serve after Stop.
var ErrServerClosed = errors.New("server closed")

// ConnServer runs one connection to completion.
type ConnServer interface {
	Serve(ctx context.Context, nc net.Conn) error
}

// Server is the listener and per-connection task manager.
type Server struct {
	cfg        config.ServerConfig
	dispatcher ConnServer
	pool       *pool.Pool
	metrics    *metrics.Metrics
	log        *slog.Logger

	mu       sync.Mutex
	ln       net.Listener
	conns    map[net.Conn]struct{}
	stop     context.CancelFunc
	done     chan struct{}
	serveErr error

	connWG sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) { s.log = logging.Component(log, "server") }
}

// WithPool runs the pool sweeper alongside the listener.
func WithPool(p *pool.Pool) Option {
	return func(s *Server) { s.pool = p }
}

// WithMetrics counts open connections.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithListener serves on ln instead of binding cfg.Listen.
func WithListener(ln net.Listener) Option {
	return func(s *Server) { s.ln = ln }
}

// New returns a server that hands connections to d.
func New(cfg config.ServerConfig, d ConnServer, opts ...Option) *Server {
	s := &Server{
		cfg:        cfg,
		dispatcher: d,
		log:        logging.Nop(),
		conns:      make(map[net.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Listen binds the listen address unless a listener was supplied.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Listen, err)
	}
	s.ln = ln
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve accepts connections until ctx ends, then shuts down gracefully.
// The pool sweeper, when configured, runs for the same lifetime.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()

	s.log.Info("server listening", "addr", ln.Addr().String())

	// Connections outlive ctx by up to the shutdown timeout.
	connCtx, cancelConns := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelConns()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		return ln.Close()
	})
	g.Go(func() error {
		err := s.acceptLoop(connCtx, ln)
		if ctx.Err() != nil {
			return nil
		}
		return err
	})
	if s.pool != nil {
		g.Go(func() error { return s.pool.Run(gctx) })
	}

	err := g.Wait()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	s.drain(cancelConns)
	return err
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) error {
	var catcher tec.TempErrCatcher
	for {
		nc, err := ln.Accept()
		if err != nil {
			if catcher.IsTemporary(err) {
				s.log.Warn("temporary accept error", "error", err)
				continue
			}
			return err
		}
		catcher.Reset()
		s.track(nc, true)
		s.connWG.Add(1)
		go s.serveConn(ctx, nc)
	}
}

func (s *Server) serveConn(ctx context.Context, nc net.Conn) {
	defer s.connWG.Done()
	defer s.track(nc, false)
	if s.metrics != nil {
		s.metrics.ConnOpened()
		defer s.metrics.ConnClosed()
	}

	if s.cfg.MaxConnectionTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.MaxConnectionTime)
		defer cancel()
	}

	err := s.dispatcher.Serve(ctx, nc)
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded):
		s.log.Debug("connection reached max lifetime", "remote", nc.RemoteAddr().String())
	case errors.Is(err, context.Canceled), errors.Is(err, net.ErrClosed):
	case errors.Is(err, protocol.ErrDetectionExhausted):
		s.log.Debug("connection rejected", "remote", nc.RemoteAddr().String(), "error", err)
	default:
		s.log.Warn("connection ended with error", "remote", nc.RemoteAddr().String(), "error", err)
	}
}

func (s *Server) track(nc net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[nc] = struct{}{}
	} else {
		delete(s.conns, nc)
	}
}

// Conns returns the number of connections being served.
func (s *Server) Conns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// drain waits for open connections, then cancels the rest.
func (s *Server) drain(cancel context.CancelFunc) {
	done := make(chan struct{})
	go func() {
		s.connWG.Wait()
		close(done)
	}()

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		cancel()
		<-done
		return
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-done:
	case <-t.C:
		s.log.Warn("shutdown timeout reached, closing connections", "open", s.Conns())
		cancel()
		<-done
	}
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.mu.Lock()
	s.stop = cancel
	s.done = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		err := s.Serve(ctx)
		s.mu.Lock()
		s.serveErr = err
		s.mu.Unlock()
	}()
	return nil
}

// Stop ends a server started with Start and waits for it, bounded by ctx.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.mu.Unlock()
	if stop == nil {
		return nil
	}
	stop()
	select {
	case <-done:
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.serveErr
	case <-ctx.Done():
		return ctx.Err()
	}
}
