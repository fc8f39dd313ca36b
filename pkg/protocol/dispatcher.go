package protocol

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/getmockd/switchboard/pkg/logging"
)

// Dispatcher defaults.
const (
	DefaultDetectTimeout = 10 * time.Second
	DefaultPeekSize      = 64
)

// Observer receives dispatch events. Implementations must be safe for
// concurrent use.
type Observer interface {
	Detected(p Protocol)
	Rejected()
	StatusChanged(connID string, p Protocol, s Status)
	Handoff(from, to Protocol)
	Fault(p Protocol)
}

// Dispatcher assigns connections to handlers and runs the handler loop.
// Its handler list is fixed when it is built.
type Dispatcher struct {
	handlers []Handler
	byTag    map[Protocol]Handler
	app      App

	log           *slog.Logger
	observer      Observer
	detectTimeout time.Duration
	peekSize      int
	bufferSize    int
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLogger sets the dispatcher logger.
func WithLogger(log *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.log = logging.OrNop(log) }
}

// WithObserver sets the event observer.
func WithObserver(o Observer) DispatcherOption {
	return func(d *Dispatcher) { d.observer = o }
}

// WithDetectTimeout bounds how long detection waits for the first bytes.
func WithDetectTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.detectTimeout = timeout
		}
	}
}

// WithPeekSize sets how many bytes detection may look at.
func WithPeekSize(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.peekSize = n
		}
	}
}

// WithReadBufferSize sets the read buffer size of each connection.
func WithReadBufferSize(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.bufferSize = n
		}
	}
}

// NewDispatcher snapshots reg and seals it.
func NewDispatcher(reg *Registry, app App, opts ...DispatcherOption) *Dispatcher {
	reg.Seal()
	d := &Dispatcher{
		handlers:      reg.List(),
		byTag:         make(map[Protocol]Handler),
		app:           app,
		log:           logging.Nop(),
		observer:      nopObserver{},
		detectTimeout: DefaultDetectTimeout,
		peekSize:      DefaultPeekSize,
		bufferSize:    DefaultReadBufferSize,
	}
	for _, h := range d.handlers {
		d.byTag[h.Protocol()] = h
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.bufferSize < d.peekSize {
		d.bufferSize = d.peekSize
	}
	return d
}

// Protocols returns the handler tags in detection order.
func (d *Dispatcher) Protocols() []Protocol {
	out := make([]Protocol, len(d.handlers))
	for i, h := range d.handlers {
		out[i] = h.Protocol()
	}
	return out
}

// Serve runs nc to completion: detection, then the handler loop. The
// connection is closed when Serve returns. Canceling ctx closes the
// connection, which unblocks the handler.
func (d *Dispatcher) Serve(ctx context.Context, nc net.Conn) error {
	conn := NewConn(nc, d.bufferSize)
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	log := d.log.With("conn_id", conn.ID(), "remote", remoteAddr(nc))

	h, err := d.detect(conn)
	if err != nil {
		d.observer.Rejected()
		log.Debug("protocol detection failed", "error", err)
		return err
	}
	d.observer.Detected(h.Protocol())

	sess := NewSession(ctx, conn, d.app, log)
	sess.Protocol = h.Protocol()
	sess.Log = log.With("protocol", string(h.Protocol()))
	d.observer.StatusChanged(conn.ID(), sess.Protocol, sess.Status)

	for {
		st, err := d.invoke(h, sess)
		if err != nil {
			d.observer.Fault(sess.Protocol)
			sess.Log.Warn("protocol handler fault", "error", err)
			return &HandlerFault{Protocol: sess.Protocol, ConnID: conn.ID(), Err: err}
		}
		d.observer.StatusChanged(conn.ID(), sess.Protocol, st)

		switch st.Kind() {
		case KindStopped:
			return nil

		case KindSwitchProtocol:
			target, _ := st.Target()
			next, ok := d.byTag[target]
			if !ok {
				sess.Log.Warn("protocol handoff target missing", "target", string(target))
				return fmt.Errorf("%w: %s", ErrHandoffTargetMissing, target)
			}
			d.observer.Handoff(sess.Protocol, target)
			sess.Log.Debug("protocol handoff", "target", string(target))
			h = next
			sess.Protocol = target
			sess.Log = log.With("protocol", string(target))
			sess.Status = Upgraded
			d.observer.StatusChanged(conn.ID(), target, Upgraded)

		default:
			sess.Status = st
		}

		if conn.Closed() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// invoke runs one handler call, turning a panic into an error.
func (d *Dispatcher) invoke(h Handler, s *Session) (st Status, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return h.Serve(s)
}

// detect reads until some handler claims the prefix, the prefix reaches
// the peek size, or the peer stops sending.
func (d *Dispatcher) detect(conn *Conn) (Handler, error) {
	if err := conn.SetReadDeadline(time.Now().Add(d.detectTimeout)); err != nil {
		return nil, err
	}
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()

	want := 1
	for {
		_, readErr := conn.Peek(want)
		prefix, _ := conn.Peek(min(conn.Buffered(), d.peekSize))
		if len(prefix) > 0 {
			if h := d.match(prefix); h != nil {
				return h, nil
			}
		}
		if readErr != nil {
			if errors.Is(readErr, net.ErrClosed) {
				return nil, readErr
			}
			return nil, fmt.Errorf("%w: %d bytes seen: %v", ErrDetectionExhausted, len(prefix), readErr)
		}
		if len(prefix) >= d.peekSize {
			return nil, fmt.Errorf("%w: %d bytes seen", ErrDetectionExhausted, len(prefix))
		}
		want = len(prefix) + 1
	}
}

func (d *Dispatcher) match(prefix []byte) Handler {
	for _, h := range d.handlers {
		if d.safeDetect(h, prefix) {
			return h
		}
	}
	return nil
}

func (d *Dispatcher) safeDetect(h Handler, prefix []byte) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Warn("protocol detector panicked", "protocol", string(h.Protocol()), "panic", fmt.Sprint(r))
			ok = false
		}
	}()
	return h.Detect(prefix)
}

func remoteAddr(nc net.Conn) string {
	if a := nc.RemoteAddr(); a != nil {
		return a.String()
	}
	return ""
}

type nopObserver struct{}

func (nopObserver) Detected(Protocol)                      {}
func (nopObserver) Rejected()                              {}
func (nopObserver) StatusChanged(string, Protocol, Status) {}
func (nopObserver) Handoff(Protocol, Protocol)             {}
func (nopObserver) Fault(Protocol)                         {}
