package protocol

import (
	"fmt"
	"sync"
)

// Registry holds handlers in registration order, which is also their
// detection priority. It is thread-safe and can be used concurrently.
type Registry struct {
	mu       sync.RWMutex
	handlers []Handler
	byTag    map[Protocol]Handler
	sealed   bool
}

// NewRegistry creates a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{byTag: make(map[Protocol]Handler)}
}

// Register appends a handler. Returns an error if the tag is empty or
// already registered, or if the registry is sealed.
func (r *Registry) Register(h Handler) error {
	if h == nil {
		return ErrNilHandler
	}
	if d, ok := h.(Descriptor); ok && (d.DetectFunc == nil || d.ServeFunc == nil) {
		if d.DetectFunc == nil {
			return fmt.Errorf("%w: %s", ErrMissingDetector, d.Tag)
		}
		return fmt.Errorf("%w: %s", ErrNilHandler, d.Tag)
	}
	tag := h.Protocol()
	if tag == "" {
		return ErrEmptyProtocol
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return fmt.Errorf("%w: cannot add %s", ErrRegistrySealed, tag)
	}
	if _, exists := r.byTag[tag]; exists {
		return fmt.Errorf("%w: %s", ErrHandlerExists, tag)
	}
	r.handlers = append(r.handlers, h)
	r.byTag[tag] = h
	return nil
}

// Lookup returns the handler registered for tag.
func (r *Registry) Lookup(tag Protocol) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.byTag[tag]
	return h, ok
}

// List returns the handlers in registration order.
func (r *Registry) List() []Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Handler, len(r.handlers))
	copy(out, r.handlers)
	return out
}

// Protocols returns the registered tags in registration order.
func (r *Registry) Protocols() []Protocol {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Protocol, len(r.handlers))
	for i, h := range r.handlers {
		out[i] = h.Protocol()
	}
	return out
}

// Count returns the number of registered handlers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// Seal rejects any further registration.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}
