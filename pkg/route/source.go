package route

import (
	"slices"

	"github.com/getmockd/switchboard/pkg/middleware"
)

func (t *Tree) valid(id middleware.NodeID) bool {
	return int(id) < len(t.nodes)
}

// ProtocolMiddleware returns the protocol-level middleware.
func (t *Tree) ProtocolMiddleware() []middleware.Middleware {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.protocol)
}

// ProtocolVersion returns the version of the protocol-level list.
func (t *Tree) ProtocolVersion() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.protocolVersion
}

// Ancestors returns the ancestors of id, root first.
func (t *Tree) Ancestors(id middleware.NodeID) []middleware.NodeID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.valid(id) {
		return nil
	}
	var out []middleware.NodeID
	for p := t.nodes[id].parent; p != noParent; p = t.nodes[p].parent {
		out = append(out, middleware.NodeID(p))
	}
	slices.Reverse(out)
	return out
}

// LocalMiddleware returns the local list of id.
func (t *Tree) LocalMiddleware(id middleware.NodeID) []middleware.Middleware {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.valid(id) {
		return nil
	}
	return slices.Clone(t.nodes[id].local)
}

// Override returns the override list of id, if it has one.
func (t *Tree) Override(id middleware.NodeID) ([]middleware.Middleware, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.valid(id) || !t.nodes[id].hasOverride {
		return nil, false
	}
	return slices.Clone(t.nodes[id].override), true
}

// Version returns the version of node id.
func (t *Tree) Version(id middleware.NodeID) uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.valid(id) {
		return 0
	}
	return t.nodes[id].version
}
