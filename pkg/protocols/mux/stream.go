package mux

import (
	"github.com/hashicorp/yamux"

	"github.com/getmockd/switchboard/pkg/protocol"
)

// Stream is one yamux stream of a dispatched connection.
type Stream struct {
	*yamux.Stream
	transport string
}

var _ protocol.Stream = (*Stream)(nil)

// TransportID returns the id of the carrying connection.
func (s *Stream) TransportID() string { return s.transport }

// StreamID returns the yamux stream id.
func (s *Stream) StreamID() (uint32, bool) { return s.Stream.StreamID(), true }
