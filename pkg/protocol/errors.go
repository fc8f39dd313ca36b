package protocol

import "fmt"

// Error is a simple error type for protocol errors.
// It allows defining sentinel errors as constants.
type Error string

// Error implements the error interface.
func (e Error) Error() string { return string(e) }

// Sentinel errors for registration and dispatch.
const (
	// ErrNilHandler is returned when attempting to register a nil handler.
	ErrNilHandler = Error("handler cannot be nil")

	// ErrEmptyProtocol is returned when a handler reports an empty tag.
	ErrEmptyProtocol = Error("handler protocol tag cannot be empty")

	// ErrMissingDetector is returned for a descriptor without a detector.
	ErrMissingDetector = Error("handler detector is required")

	// ErrHandlerExists is returned when registering a tag twice.
	ErrHandlerExists = Error("handler for this protocol already exists")

	// ErrHandlerNotFound is returned when looking up an unknown tag.
	ErrHandlerNotFound = Error("handler not found")

	// ErrRegistrySealed is returned when registering after a dispatcher
	// has been built from the registry.
	ErrRegistrySealed = Error("registry is sealed")

	// ErrDetectionExhausted is returned when no handler claims a connection.
	ErrDetectionExhausted = Error("no protocol handler matched the connection")

	// ErrHandoffTargetMissing is returned when a handler asks to switch to a
	// protocol that is not registered.
	ErrHandoffTargetMissing = Error("protocol handoff target not registered")

	// ErrHandlerPanic wraps a panic raised by a handler.
	ErrHandlerPanic = Error("protocol handler panicked")

	// ErrNeedMoreData is returned by a Codec when the buffer holds an
	// incomplete message.
	ErrNeedMoreData = Error("need more data")

	// ErrMessageTooLarge is returned when a message does not fit the
	// connection's read buffer.
	ErrMessageTooLarge = Error("message exceeds read buffer")
)

// HandlerFault reports an error returned by a protocol handler. The
// connection it happened on has been closed.
type HandlerFault struct {
	Protocol Protocol
	ConnID   string
	Err      error
}

func (f *HandlerFault) Error() string {
	return fmt.Sprintf("protocol %s handler fault on %s: %v", f.Protocol, f.ConnID, f.Err)
}

func (f *HandlerFault) Unwrap() error { return f.Err }
