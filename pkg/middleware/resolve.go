package middleware

import (
	"slices"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMemoSize is the number of resolved chains a Resolver keeps.
const DefaultMemoSize = 1024

// NodeID identifies a node in a route tree.
type NodeID uint32

// Source is the view of a route tree the Resolver needs. Versions must
// change whenever the corresponding middleware list (or, for nodes, the
// override) changes.
type Source interface {
	ProtocolMiddleware() []Middleware
	ProtocolVersion() uint64

	// Ancestors returns the ancestors of id, root first, excluding id.
	Ancestors(id NodeID) []NodeID

	LocalMiddleware(id NodeID) []Middleware
	Override(id NodeID) ([]Middleware, bool)
	Version(id NodeID) uint64
}

type memo struct {
	protocol  uint64
	ancestors []NodeID
	versions  []uint64 // ancestors root first, then the node itself
	chain     []Middleware
}

// Resolver computes the effective middleware chain of a node.
type Resolver struct {
	src   Source
	cache *lru.Cache[NodeID, *memo]
}

// NewResolver returns a resolver over src memoising up to size chains.
func NewResolver(src Source, size int) (*Resolver, error) {
	if size <= 0 {
		size = DefaultMemoSize
	}
	cache, err := lru.New[NodeID, *memo](size)
	if err != nil {
		return nil, err
	}
	return &Resolver{src: src, cache: cache}, nil
}

// Resolve returns the effective chain for id. The returned slice must not
// be modified.
func (r *Resolver) Resolve(id NodeID) []Middleware {
	if m, ok := r.cache.Get(id); ok && r.fresh(id, m) {
		return m.chain
	}
	m := r.build(id)
	r.cache.Add(id, m)
	return m.chain
}

func (r *Resolver) fresh(id NodeID, m *memo) bool {
	if m.protocol != r.src.ProtocolVersion() {
		return false
	}
	for i, a := range m.ancestors {
		if r.src.Version(a) != m.versions[i] {
			return false
		}
	}
	return r.src.Version(id) == m.versions[len(m.versions)-1]
}

// build reads every version before the lists it guards, so a concurrent
// change leaves a memo that fails the next freshness check.
func (r *Resolver) build(id NodeID) *memo {
	ancestors := r.src.Ancestors(id)
	m := &memo{
		protocol:  r.src.ProtocolVersion(),
		ancestors: ancestors,
		versions:  make([]uint64, 0, len(ancestors)+1),
	}
	for _, a := range ancestors {
		m.versions = append(m.versions, r.src.Version(a))
	}
	m.versions = append(m.versions, r.src.Version(id))

	def := slices.Clone(r.src.ProtocolMiddleware())
	for _, a := range ancestors {
		def = append(def, r.src.LocalMiddleware(a)...)
	}
	def = append(def, r.src.LocalMiddleware(id)...)

	override, ok := r.src.Override(id)
	if !ok {
		m.chain = def
		return m
	}
	m.chain = Splice(override, def)
	return m
}

// Splice replaces the inheritance marker in override with def. Without a
// marker the override is returned as is.
func Splice(override, def []Middleware) []Middleware {
	idx := slices.IndexFunc(override, IsInherit)
	if idx < 0 {
		return slices.Clone(override)
	}
	out := make([]Middleware, 0, len(override)-1+len(def))
	out = append(out, override[:idx]...)
	out = append(out, def...)
	out = append(out, override[idx+1:]...)
	return out
}

// Purge drops every memoised chain.
func (r *Resolver) Purge() {
	r.cache.Purge()
}

// Len returns the number of memoised chains.
func (r *Resolver) Len() int {
	return r.cache.Len()
}
