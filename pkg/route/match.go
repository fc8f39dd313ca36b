package route

import (
	"strings"

	"github.com/getmockd/switchboard/pkg/middleware"
)

// Match is the result of matching a path.
type Match struct {
	Node    middleware.NodeID
	Pattern string
	Params  middleware.Params
	Handler middleware.Handler
}

// Match finds the node for path. A node without a handler still matches.
func (t *Tree) Match(path string) (Match, bool) {
	parts := splitPath(path)

	t.mu.RLock()
	defer t.mu.RUnlock()

	params := make(middleware.Params)
	id, ok := t.match(0, parts, params)
	if !ok {
		return Match{}, false
	}
	n := &t.nodes[id]
	return Match{
		Node:    middleware.NodeID(id),
		Pattern: n.pattern,
		Params:  params,
		Handler: n.handler,
	}, true
}

func (t *Tree) match(cur int, parts []string, params middleware.Params) (int, bool) {
	if len(parts) == 0 {
		return cur, true
	}
	n := &t.nodes[cur]
	head := parts[0]

	for _, c := range n.literals {
		if t.nodes[c].segment == head {
			if id, ok := t.match(c, parts[1:], params); ok {
				return id, true
			}
		}
	}
	if n.param >= 0 {
		name := t.nodes[n.param].segment
		if id, ok := t.match(n.param, parts[1:], params); ok {
			params[name] = head
			return id, true
		}
	}
	if n.wildcard >= 0 {
		params[t.nodes[n.wildcard].segment] = strings.Join(parts, "/")
		return n.wildcard, true
	}
	return 0, false
}

// Chain returns the effective middleware chain for id.
func (t *Tree) Chain(id middleware.NodeID) []middleware.Middleware {
	return t.resolver.Resolve(id)
}

// Serve matches c.Path, copies the captured parameters into c and runs the
// node's chain. Unmatched paths run the root chain with a not-found handler.
func (t *Tree) Serve(c *middleware.Context) *middleware.Response {
	id := Root
	var h middleware.Handler
	if m, ok := t.Match(c.Path); ok {
		id = m.Node
		h = m.Handler
		if c.Params == nil {
			c.Params = make(middleware.Params, len(m.Params))
		}
		for k, v := range m.Params {
			c.Params[k] = v
		}
	}
	return middleware.NewChain(t.Chain(id), h).Run(c)
}
