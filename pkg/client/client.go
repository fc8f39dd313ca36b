// Package client sends HTTP/1.1 requests over connections from a pool.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/getmockd/switchboard/pkg/logging"
	"github.com/getmockd/switchboard/pkg/pool"
)

// DefaultUserAgent is sent when a request has no User-Agent.
const DefaultUserAgent = "switchboard"

// ErrUnsupportedScheme is returned for URLs other than http and https.
var ErrUnsupportedScheme = errors.New("unsupported URL scheme")

// Client is an HTTP/1.1 client that reuses pooled connections.
type Client struct {
	pool      *pool.Pool
	log       *slog.Logger
	userAgent string
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = logging.OrNop(log) }
}

// WithUserAgent sets the default User-Agent.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// New returns a client drawing connections from p.
func New(p *pool.Pool, opts ...Option) *Client {
	c := &Client{pool: p, log: logging.Nop(), userAgent: DefaultUserAgent}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Pool returns the connection pool.
func (c *Client) Pool() *pool.Pool { return c.pool }

// KeyFor returns the pool key for u.
func KeyFor(u *url.URL) (pool.Key, error) {
	var key pool.Key
	switch u.Scheme {
	case "http":
		key.Port = 80
	case "https":
		key.Port = 443
		key.TLS = true
	default:
		return key, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	key.Host = u.Hostname()
	if p := u.Port(); p != "" {
		n, err := strconv.ParseUint(p, 10, 16)
		if err != nil {
			return key, fmt.Errorf("invalid port %q: %w", p, err)
		}
		key.Port = uint16(n)
	}
	return key, nil
}

// Get issues a GET for rawURL.
func (c *Client) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, req)
}

// Do sends req and returns the response. The connection goes back to the
// pool once the body has been read to EOF and both sides allow keep-alive;
// closing the body early discards the connection. A reused connection that
// fails before a response arrives is retried once on a fresh connection
// when the request body can be replayed.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	key, err := KeyFor(req.URL)
	if err != nil {
		return nil, err
	}
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	if req.Header.Get("User-Agent") == "" && c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	conn, err := c.pool.Acquire(ctx, key)
	if err != nil {
		return nil, err
	}
	resp, err := c.roundTrip(ctx, conn, req)
	if err == nil || !conn.Reused() || !replayable(req) || ctx.Err() != nil {
		return resp, err
	}

	c.log.Debug("retrying request on fresh connection", "key", key.String(), "error", err)
	if req.GetBody != nil {
		if req.Body, err = req.GetBody(); err != nil {
			return nil, err
		}
	}
	conn, err = c.pool.Dial(ctx, key)
	if err != nil {
		return nil, err
	}
	return c.roundTrip(ctx, conn, req)
}

func replayable(req *http.Request) bool {
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}

func (c *Client) roundTrip(ctx context.Context, conn *pool.Conn, req *http.Request) (*http.Response, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})

	conn.MarkRequest()
	if err := req.Write(conn); err != nil {
		stop()
		_ = conn.Close()
		return nil, fmt.Errorf("write request: %w", err)
	}
	resp, err := http.ReadResponse(conn.Reader(), req)
	if err != nil {
		stop()
		_ = conn.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("read response: %w", err)
	}

	keep := !resp.Close && !req.Close && resp.ProtoAtLeast(1, 1)
	b := &body{
		ReadCloser: resp.Body,
		conn:       conn,
		pool:       c.pool,
		keep:       keep,
		stop:       stop,
	}
	if resp.Body == http.NoBody {
		b.release(true)
		return resp, nil
	}
	resp.Body = b
	return resp, nil
}

// body returns its connection to the pool at EOF.
type body struct {
	io.ReadCloser
	conn *pool.Conn
	pool *pool.Pool
	keep bool
	stop func() bool
	once sync.Once
}

func (b *body) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	if errors.Is(err, io.EOF) {
		b.release(true)
	} else if err != nil {
		b.release(false)
	}
	return n, err
}

func (b *body) Close() error {
	err := b.ReadCloser.Close()
	b.release(false)
	return err
}

func (b *body) release(eof bool) {
	b.once.Do(func() {
		if !b.stop() {
			// The context fired and poisoned the deadline.
			eof = false
		}
		if eof && b.keep {
			_ = b.conn.SetDeadline(time.Time{})
			b.pool.Put(b.conn)
			return
		}
		_ = b.conn.Close()
	})
}
