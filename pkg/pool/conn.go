package pool

import (
	"bufio"
	"net"
	"strconv"
	"time"
)

// Key identifies the remote endpoint of a pooled connection.
type Key struct {
	Host string
	Port uint16
	TLS  bool
}

// Addr returns host:port.
func (k Key) Addr() string {
	return net.JoinHostPort(k.Host, strconv.Itoa(int(k.Port)))
}

func (k Key) String() string {
	if k.TLS {
		return "tls://" + k.Addr()
	}
	return "tcp://" + k.Addr()
}

// Conn is a pooled outbound connection. The buffered reader is kept with
// the connection so bytes read ahead survive reuse.
type Conn struct {
	net.Conn

	key      Key
	reader   *bufio.Reader
	created  time.Time
	lastUsed time.Time
	requests uint64
}

func newConn(key Key, nc net.Conn, now time.Time) *Conn {
	return &Conn{
		Conn:     nc,
		key:      key,
		reader:   bufio.NewReader(nc),
		created:  now,
		lastUsed: now,
	}
}

// Key returns the endpoint key.
func (c *Conn) Key() Key { return c.key }

// Reader returns the buffered reader bound to the connection.
func (c *Conn) Reader() *bufio.Reader { return c.reader }

// Created returns when the connection was dialed.
func (c *Conn) Created() time.Time { return c.created }

// LastUsed returns when the connection was last returned to the pool.
func (c *Conn) LastUsed() time.Time { return c.lastUsed }

// Requests returns how many requests have been sent on the connection.
func (c *Conn) Requests() uint64 { return c.requests }

// MarkRequest counts one request sent on the connection.
func (c *Conn) MarkRequest() { c.requests++ }

// Reused reports whether the connection has carried a request before.
func (c *Conn) Reused() bool { return c.requests > 0 }

func (c *Conn) healthy(now time.Time, cfg Config) bool {
	return now.Sub(c.created) <= cfg.MaxLifetime && now.Sub(c.lastUsed) <= cfg.IdleTimeout
}
