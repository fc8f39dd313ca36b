package route

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/getmockd/switchboard/pkg/logging"
	"github.com/getmockd/switchboard/pkg/middleware"
)

// Root is the ID of the root node of every tree.
const Root middleware.NodeID = 0

const noParent = -1

type segmentKind uint8

const (
	kindLiteral segmentKind = iota
	kindParam
	kindWildcard
)

type node struct {
	segment string // literal text or parameter name
	kind    segmentKind
	parent  int
	pattern string

	literals []int
	param    int
	wildcard int

	handler     middleware.Handler
	local       []middleware.Middleware
	override    []middleware.Middleware
	hasOverride bool
	version     uint64
}

// Tree is a route tree for one protocol. It is safe for concurrent use.
type Tree struct {
	mu    sync.RWMutex
	nodes []node

	protocol        []middleware.Middleware
	protocolVersion uint64

	resolver *middleware.Resolver
	log      *slog.Logger
}

// Option configures a Tree.
type Option func(*options)

type options struct {
	memoSize int
	log      *slog.Logger
}

// WithMemoSize sets how many resolved chains the tree memoises.
func WithMemoSize(n int) Option {
	return func(o *options) { o.memoSize = n }
}

// WithLogger sets the tree's logger.
func WithLogger(log *slog.Logger) Option {
	return func(o *options) { o.log = log }
}

// New returns a tree holding only the root node.
func New(opts ...Option) *Tree {
	o := options{memoSize: middleware.DefaultMemoSize}
	for _, opt := range opts {
		opt(&o)
	}
	t := &Tree{
		nodes: []node{newNode("", kindLiteral, noParent, "/")},
		log:   logging.OrNop(o.log),
	}
	// NewResolver only fails for non-positive sizes, which it replaces.
	t.resolver, _ = middleware.NewResolver(t, o.memoSize)
	return t
}

func newNode(segment string, kind segmentKind, parent int, pattern string) node {
	return node{segment: segment, kind: kind, parent: parent, pattern: pattern, param: -1, wildcard: -1}
}

type parsedSegment struct {
	kind segmentKind
	text string
}

func splitPath(path string) []string {
	var out []string
	for s := range strings.SplitSeq(path, "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parsePattern(pattern string) ([]parsedSegment, error) {
	if !strings.HasPrefix(pattern, "/") {
		return nil, fmt.Errorf("%w: %q must start with /", ErrInvalidPattern, pattern)
	}
	parts := splitPath(pattern)
	out := make([]parsedSegment, 0, len(parts))
	for i, p := range parts {
		switch {
		case strings.HasPrefix(p, ":"):
			out = append(out, parsedSegment{kindParam, p[1:]})
		case strings.HasPrefix(p, "{") && strings.HasSuffix(p, "}"):
			out = append(out, parsedSegment{kindParam, p[1 : len(p)-1]})
		case strings.HasPrefix(p, "*"):
			if i != len(parts)-1 {
				return nil, fmt.Errorf("%w: wildcard must be the last segment of %q", ErrInvalidPattern, pattern)
			}
			out = append(out, parsedSegment{kindWildcard, p[1:]})
		default:
			out = append(out, parsedSegment{kindLiteral, p})
			continue
		}
		if out[len(out)-1].text == "" {
			return nil, fmt.Errorf("%w: unnamed segment in %q", ErrInvalidPattern, pattern)
		}
	}
	return out, nil
}

// ensure returns the node for pattern, creating missing nodes. Caller holds
// the write lock.
func (t *Tree) ensure(pattern string) (int, error) {
	segs, err := parsePattern(pattern)
	if err != nil {
		return 0, err
	}
	cur := 0
	prefix := ""
	for _, s := range segs {
		switch s.kind {
		case kindLiteral:
			prefix += "/" + s.text
		case kindParam:
			prefix += "/:" + s.text
		case kindWildcard:
			prefix += "/*" + s.text
		}
		next, err := t.child(cur, s, prefix)
		if err != nil {
			return 0, err
		}
		cur = next
	}
	return cur, nil
}

func (t *Tree) child(parent int, s parsedSegment, pattern string) (int, error) {
	n := &t.nodes[parent]
	switch s.kind {
	case kindLiteral:
		for _, c := range n.literals {
			if t.nodes[c].segment == s.text {
				return c, nil
			}
		}
	case kindParam:
		if n.param >= 0 {
			if t.nodes[n.param].segment != s.text {
				return 0, fmt.Errorf("%w: parameter :%s clashes with :%s at %s", ErrConflict, s.text, t.nodes[n.param].segment, pattern)
			}
			return n.param, nil
		}
	case kindWildcard:
		if n.wildcard >= 0 {
			if t.nodes[n.wildcard].segment != s.text {
				return 0, fmt.Errorf("%w: wildcard *%s clashes with *%s at %s", ErrConflict, s.text, t.nodes[n.wildcard].segment, pattern)
			}
			return n.wildcard, nil
		}
	}

	id := len(t.nodes)
	t.nodes = append(t.nodes, newNode(s.text, s.kind, parent, pattern))
	n = &t.nodes[parent]
	switch s.kind {
	case kindLiteral:
		n.literals = append(n.literals, id)
	case kindParam:
		n.param = id
	case kindWildcard:
		n.wildcard = id
	}
	return id, nil
}

// Handle registers the final handler for pattern and returns its node.
func (t *Tree) Handle(pattern string, h middleware.Handler) (middleware.NodeID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id, err := t.ensure(pattern)
	if err != nil {
		return 0, err
	}
	if t.nodes[id].handler != nil {
		t.log.Debug("replacing route handler", "pattern", t.nodes[id].pattern)
	}
	t.nodes[id].handler = h
	return middleware.NodeID(id), nil
}

// Use appends protocol-level middleware, which run first for every route.
func (t *Tree) Use(mws ...middleware.Middleware) error {
	if err := middleware.ValidateLocal("protocol", mws); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.protocol = append(t.protocol, mws...)
	t.protocolVersion++
	return nil
}

// UseAt appends local middleware to the node for pattern. They apply to the
// node and all of its descendants.
func (t *Tree) UseAt(pattern string, mws ...middleware.Middleware) error {
	if err := middleware.ValidateLocal(pattern, mws); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	id, err := t.ensure(pattern)
	if err != nil {
		return err
	}
	n := &t.nodes[id]
	n.local = append(n.local, mws...)
	n.version++
	return nil
}

// SetOverride sets the override list of the node for pattern. It applies
// to that node only.
func (t *Tree) SetOverride(pattern string, mws ...middleware.Middleware) error {
	if err := middleware.ValidateOverride(pattern, mws); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	id, err := t.ensure(pattern)
	if err != nil {
		return err
	}
	n := &t.nodes[id]
	n.override = slices.Clone(mws)
	n.hasOverride = true
	n.version++
	return nil
}

// ClearOverride removes the override list of the node for pattern.
func (t *Tree) ClearOverride(pattern string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	id, err := t.ensure(pattern)
	if err != nil {
		return err
	}
	n := &t.nodes[id]
	if !n.hasOverride {
		return nil
	}
	n.override = nil
	n.hasOverride = false
	n.version++
	return nil
}

// Lookup returns the node registered for pattern without creating it.
func (t *Tree) Lookup(pattern string) (middleware.NodeID, bool) {
	segs, err := parsePattern(pattern)
	if err != nil {
		return 0, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	cur := 0
	for _, s := range segs {
		n := &t.nodes[cur]
		next := -1
		switch s.kind {
		case kindLiteral:
			for _, c := range n.literals {
				if t.nodes[c].segment == s.text {
					next = c
				}
			}
		case kindParam:
			if n.param >= 0 && t.nodes[n.param].segment == s.text {
				next = n.param
			}
		case kindWildcard:
			if n.wildcard >= 0 && t.nodes[n.wildcard].segment == s.text {
				next = n.wildcard
			}
		}
		if next < 0 {
			return 0, false
		}
		cur = next
	}
	return middleware.NodeID(cur), true
}

// Len returns the number of nodes, including the root.
func (t *Tree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.nodes)
}

// Info describes one node for introspection.
type Info struct {
	Pattern  string   `json:"pattern"`
	Handler  bool     `json:"handler"`
	Local    []string `json:"local,omitempty"`
	Override []string `json:"override,omitempty"`
	Chain    []string `json:"chain"`
}

// Routes describes every node that has a handler or middleware attached.
func (t *Tree) Routes() []Info {
	t.mu.RLock()
	ids := make([]middleware.NodeID, 0, len(t.nodes))
	infos := make([]Info, 0, len(t.nodes))
	for i := range t.nodes {
		n := &t.nodes[i]
		if n.handler == nil && len(n.local) == 0 && !n.hasOverride {
			continue
		}
		info := Info{
			Pattern: n.pattern,
			Handler: n.handler != nil,
			Local:   middleware.Names(n.local),
		}
		if n.hasOverride {
			info.Override = middleware.Names(n.override)
		}
		ids = append(ids, middleware.NodeID(i))
		infos = append(infos, info)
	}
	t.mu.RUnlock()

	for i, id := range ids {
		infos[i].Chain = middleware.Names(t.Chain(id))
	}
	slices.SortFunc(infos, func(a, b Info) int { return strings.Compare(a.Pattern, b.Pattern) })
	return infos
}
