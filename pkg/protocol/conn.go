package protocol

import (
	"bufio"
	"net"
	"sync"
	"sync/atomic"

	"github.com/getmockd/switchboard/internal/id"
)

// DefaultReadBufferSize is the size of a Conn's read buffer.
const DefaultReadBufferSize = 4096

// Transport is anything that carries bytes for a connection.
type Transport interface {
	TransportID() string
}

// Stream is a logical stream inside a transport. Simple protocols have a
// single implicit stream and report ok=false.
type Stream interface {
	Transport
	StreamID() (sid uint32, ok bool)
}

// Conn is an inbound connection with a peekable read buffer. Close is
// idempotent; only the first call closes the underlying connection.
type Conn struct {
	net.Conn

	id       string
	r        *bufio.Reader
	once     sync.Once
	closeErr error
	closed   atomic.Bool
}

// NewConn wraps nc with a read buffer of size bytes (DefaultReadBufferSize
// when size <= 0).
func NewConn(nc net.Conn, size int) *Conn {
	if size <= 0 {
		size = DefaultReadBufferSize
	}
	return &Conn{Conn: nc, id: id.Conn(), r: bufio.NewReaderSize(nc, size)}
}

// ID returns the connection identifier.
func (c *Conn) ID() string { return c.id }

// TransportID implements Transport.
func (c *Conn) TransportID() string { return c.id }

// StreamID implements Stream. A plain connection has no stream ID.
func (c *Conn) StreamID() (uint32, bool) { return 0, false }

// Reader returns the buffered reader. Reads through it and through Read are
// interchangeable.
func (c *Conn) Reader() *bufio.Reader { return c.r }

// Read reads through the buffer so peeked bytes are not lost.
func (c *Conn) Read(p []byte) (int, error) { return c.r.Read(p) }

// Peek returns the next n bytes without consuming them.
func (c *Conn) Peek(n int) ([]byte, error) { return c.r.Peek(n) }

// Buffered returns the number of bytes that can be read without blocking.
func (c *Conn) Buffered() int { return c.r.Buffered() }

// Close closes the underlying connection once.
func (c *Conn) Close() error {
	c.once.Do(func() {
		c.closed.Store(true)
		c.closeErr = c.Conn.Close()
	})
	return c.closeErr
}

// Closed reports whether Close has been called.
func (c *Conn) Closed() bool { return c.closed.Load() }
