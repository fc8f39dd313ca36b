package protocol

// Handler owns connections of one protocol.
type Handler interface {
	// Protocol returns the tag the handler is registered under.
	Protocol() Protocol

	// Detect reports whether prefix starts a connection of this protocol.
	// It must not block and must return false when prefix is too short.
	Detect(prefix []byte) bool

	// Serve handles the connection until the next status change.
	Serve(s *Session) (Status, error)
}

// Descriptor builds a Handler from functions.
type Descriptor struct {
	Tag        Protocol
	DetectFunc func(prefix []byte) bool
	ServeFunc  func(s *Session) (Status, error)
}

// Protocol implements Handler.
func (d Descriptor) Protocol() Protocol { return d.Tag }

// Detect implements Handler.
func (d Descriptor) Detect(prefix []byte) bool { return d.DetectFunc(prefix) }

// Serve implements Handler.
func (d Descriptor) Serve(s *Session) (Status, error) { return d.ServeFunc(s) }

// Never is a detector for handlers reachable only through handoff.
func Never([]byte) bool { return false }
