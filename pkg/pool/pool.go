package pool

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"

	"github.com/getmockd/switchboard/pkg/logging"
)

var (
	// ErrPoolExhausted is returned when no pooled connection is available
	// and a new one cannot be dialed.
	ErrPoolExhausted = errors.New("connection pool exhausted")

	// ErrClosed is returned by operations on a closed pool.
	ErrClosed = errors.New("connection pool closed")
)

// Dialer opens outbound connections.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Stats is a snapshot of pool counters.
type Stats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	Pooled    int    `json:"pooled"`
	Hosts     int    `json:"hosts"`
}

type queue struct {
	mu    sync.Mutex
	conns []*Conn
}

// Pool is a keyed pool of idle outbound connections.
type Pool struct {
	cfg    Config
	clock  clock.Clock
	dialer Dialer
	tls    *tls.Config
	log    *slog.Logger

	mu     sync.RWMutex
	queues map[Key]*queue

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64

	closed    atomic.Bool
	sweepOnce sync.Once
	stopSweep context.CancelFunc
	sweepDone chan struct{}
}

// Option configures a Pool.
type Option func(*Pool)

// WithClock replaces the wall clock.
func WithClock(c clock.Clock) Option {
	return func(p *Pool) { p.clock = c }
}

// WithDialer replaces the TCP dialer.
func WithDialer(d Dialer) Option {
	return func(p *Pool) { p.dialer = d }
}

// WithTLSConfig sets the base TLS configuration for TLS keys.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(p *Pool) { p.tls = cfg }
}

// WithLogger sets the pool logger.
func WithLogger(log *slog.Logger) Option {
	return func(p *Pool) { p.log = logging.OrNop(log) }
}

// New creates a pool. The sweeper is not running until Start or Run.
func New(cfg Config, opts ...Option) *Pool {
	p := &Pool{
		cfg:    cfg,
		clock:  clock.New(),
		dialer: &net.Dialer{},
		log:    logging.Nop(),
		queues: make(map[Key]*queue),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Config returns the pool configuration.
func (p *Pool) Config() Config { return p.cfg }

// Get returns the most recently returned healthy connection for key.
// Stale connections passed over are closed and counted as evictions.
func (p *Pool) Get(key Key) (*Conn, bool) {
	if !p.cfg.Enabled || p.closed.Load() {
		p.misses.Add(1)
		return nil, false
	}

	// The map read lock is held while q is used so Sweep and Clear, which
	// take the write lock, cannot detach q underneath us.
	p.mu.RLock()
	defer p.mu.RUnlock()
	q, ok := p.queues[key]
	if !ok {
		p.misses.Add(1)
		return nil, false
	}

	now := p.clock.Now()
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.conns) > 0 {
		last := len(q.conns) - 1
		c := q.conns[last]
		q.conns[last] = nil
		q.conns = q.conns[:last]
		if c.healthy(now, p.cfg) {
			p.hits.Add(1)
			return c, true
		}
		p.evict(c, "stale")
	}
	p.misses.Add(1)
	return nil, false
}

// Put returns c to its queue, or closes it when the queue is full or
// pooling is disabled.
func (p *Pool) Put(c *Conn) {
	if c == nil {
		return
	}
	if !p.cfg.Enabled || p.closed.Load() {
		_ = c.Close()
		return
	}

	p.mu.RLock()
	if q, ok := p.queues[c.key]; ok {
		p.push(q, c)
		p.mu.RUnlock()
		return
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	q, ok := p.queues[c.key]
	if !ok {
		q = &queue{}
		p.queues[c.key] = q
	}
	p.push(q, c)
}

// push appends c to q. The caller holds p.mu, read or write.
func (p *Pool) push(q *queue, c *Conn) {
	// Close sets closed before Clear takes the write lock, so a Put that
	// lost the race to Close lands here instead of in a detached queue.
	if p.closed.Load() {
		_ = c.Close()
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.conns) >= p.cfg.MaxIdlePerHost {
		p.evict(c, "queue full")
		return
	}
	c.lastUsed = p.clock.Now()
	q.conns = append(q.conns, c)
}

func (p *Pool) evict(c *Conn, reason string) {
	p.evictions.Add(1)
	if err := c.Close(); err != nil {
		p.log.Debug("closing evicted connection", "key", c.key.String(), "reason", reason, "error", err)
	}
}

// Acquire returns a pooled connection for key or dials a new one within
// the connect timeout. Dial failures are not retried.
func (p *Pool) Acquire(ctx context.Context, key Key) (*Conn, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}
	if c, ok := p.Get(key); ok {
		return c, nil
	}
	return p.Dial(ctx, key)
}

// Dial opens a new connection for key without consulting the idle queue.
func (p *Pool) Dial(ctx context.Context, key Key) (*Conn, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}
	dialCtx, cancel := context.WithTimeout(ctx, p.cfg.ConnectTimeout)
	defer cancel()

	nc, err := p.dialer.DialContext(dialCtx, "tcp", key.Addr())
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrPoolExhausted, key.Addr(), err)
	}
	if key.TLS {
		cfg := &tls.Config{}
		if p.tls != nil {
			cfg = p.tls.Clone()
		}
		if cfg.ServerName == "" {
			cfg.ServerName = key.Host
		}
		tc := tls.Client(nc, cfg)
		if err := tc.HandshakeContext(dialCtx); err != nil {
			_ = nc.Close()
			return nil, fmt.Errorf("%w: tls handshake with %s: %v", ErrPoolExhausted, key.Addr(), err)
		}
		nc = tc
	}
	return newConn(key, nc, p.clock.Now()), nil
}

// Sweep closes every stale idle connection and drops empty queues. It
// returns the number of connections closed.
func (p *Pool) Sweep() int {
	now := p.clock.Now()
	evicted := 0

	p.mu.Lock()
	defer p.mu.Unlock()
	for key, q := range p.queues {
		q.mu.Lock()
		kept := q.conns[:0]
		for _, c := range q.conns {
			if c.healthy(now, p.cfg) {
				kept = append(kept, c)
				continue
			}
			p.evict(c, "stale")
			evicted++
		}
		clear(q.conns[len(kept):])
		q.conns = kept
		empty := len(q.conns) == 0
		q.mu.Unlock()
		if empty {
			delete(p.queues, key)
		}
	}
	if evicted > 0 {
		p.log.Debug("pool sweep", "evicted", evicted)
	}
	return evicted
}

// Run sweeps every SweepInterval until ctx is done.
func (p *Pool) Run(ctx context.Context) error {
	ticker := p.clock.Ticker(p.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.Sweep()
		}
	}
}

// Start runs the sweeper in the background until Close.
func (p *Pool) Start() {
	p.sweepOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		p.stopSweep = cancel
		p.sweepDone = make(chan struct{})
		go func() {
			defer close(p.sweepDone)
			_ = p.Run(ctx)
		}()
	})
}

// Stats returns a snapshot of the counters and the number of idle
// connections.
func (p *Pool) Stats() Stats {
	s := Stats{
		Hits:      p.hits.Load(),
		Misses:    p.misses.Load(),
		Evictions: p.evictions.Load(),
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, q := range p.queues {
		q.mu.Lock()
		s.Pooled += len(q.conns)
		q.mu.Unlock()
	}
	s.Hosts = len(p.queues)
	return s
}

// Clear closes every idle connection.
func (p *Pool) Clear() error {
	p.mu.Lock()
	queues := p.queues
	p.queues = make(map[Key]*queue)
	p.mu.Unlock()

	var err error
	for _, q := range queues {
		q.mu.Lock()
		for _, c := range q.conns {
			err = multierr.Append(err, c.Close())
		}
		q.conns = nil
		q.mu.Unlock()
	}
	return err
}

// Close stops the sweeper and closes every idle connection. Later Puts
// close their connection.
func (p *Pool) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	// Block a later Start from launching a sweeper.
	p.sweepOnce.Do(func() {})
	if p.stopSweep != nil {
		p.stopSweep()
		<-p.sweepDone
	}
	return p.Clear()
}
