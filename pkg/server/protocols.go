package server

import (
	"fmt"
	"io"
	"log/slog"

	"go.uber.org/multierr"

	"github.com/getmockd/switchboard/pkg/protocol"
	"github.com/getmockd/switchboard/pkg/protocols/h2c"
	"github.com/getmockd/switchboard/pkg/protocols/http1"
	"github.com/getmockd/switchboard/pkg/protocols/mqtt"
	"github.com/getmockd/switchboard/pkg/protocols/mux"
	"github.com/getmockd/switchboard/pkg/protocols/text"
	"github.com/getmockd/switchboard/pkg/protocols/websocket"
)

// Handlers is the registry of the bundled protocol handlers plus the ones
// that hold resources.
type Handlers struct {
	Registry *protocol.Registry
	closers  []io.Closer
}

// NewHandlers registers the bundled handlers in the configured detection
// order. The websocket handler, reachable only by handoff, is added last
// when enabled.
func NewHandlers(a protocol.App, log *slog.Logger) (*Handlers, error) {
	hs := &Handlers{Registry: protocol.NewRegistry()}
	cfg := a.Config()

	for _, name := range cfg.Protocols.Order {
		var h protocol.Handler
		switch protocol.Protocol(name) {
		case protocol.ProtocolHTTP:
			h = http1.New(log)
		case protocol.ProtocolH2C:
			h = h2c.New(log)
		case protocol.ProtocolText:
			h = text.New(log)
		case protocol.ProtocolMux:
			h = mux.New(log)
		case protocol.ProtocolMQTT:
			m, err := mqtt.New(a, log)
			if err != nil {
				_ = hs.Close()
				return nil, err
			}
			hs.closers = append(hs.closers, m)
			h = m
		default:
			_ = hs.Close()
			return nil, fmt.Errorf("unknown protocol %q", name)
		}
		if err := hs.Registry.Register(h); err != nil {
			_ = hs.Close()
			return nil, err
		}
	}

	if cfg.Protocols.WebSocket.Enabled {
		if err := hs.Registry.Register(websocket.New(log)); err != nil {
			_ = hs.Close()
			return nil, err
		}
	}
	return hs, nil
}

// Close releases handler resources.
func (hs *Handlers) Close() error {
	var err error
	for _, c := range hs.closers {
		err = multierr.Append(err, c.Close())
	}
	hs.closers = nil
	return err
}
