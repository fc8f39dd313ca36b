package websocket

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/getmockd/switchboard/pkg/protocol"
)

// responseWriter lets websocket.Accept answer an upgrade request that was
// read by another protocol handler. Headers go straight to the connection;
// Hijack hands the connection back.
type responseWriter struct {
	conn   *protocol.Conn
	header http.Header

	mu       sync.Mutex
	wrote    bool
	hijacked bool
	status   int
}

func newResponseWriter(conn *protocol.Conn) *responseWriter {
	return &responseWriter{conn: conn, header: make(http.Header)}
}

func (w *responseWriter) Header() http.Header { return w.header }

func (w *responseWriter) WriteHeader(status int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.wrote || w.hijacked {
		return
	}
	w.wrote = true
	w.status = status

	bw := bufio.NewWriter(w.conn)
	fmt.Fprintf(bw, "HTTP/1.1 %03d %s\r\n", status, http.StatusText(status))
	if status != http.StatusSwitchingProtocols {
		w.header.Set("Connection", "close")
	}
	_ = w.header.Write(bw)
	_, _ = bw.WriteString("\r\n")
	_ = bw.Flush()
}

func (w *responseWriter) Write(p []byte) (int, error) {
	w.WriteHeader(http.StatusOK)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.hijacked {
		return 0, http.ErrHijacked
	}
	return w.conn.Write(p)
}

// Hijack implements http.Hijacker. The returned reader drains whatever the
// session already buffered before reading from the network.
func (w *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.hijacked {
		return nil, nil, http.ErrHijacked
	}
	w.hijacked = true
	rw := bufio.NewReadWriter(bufio.NewReader(w.conn), bufio.NewWriter(w.conn))
	return w.conn, rw, nil
}

// Status returns the status written before hijacking, or 0.
func (w *responseWriter) Status() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}
