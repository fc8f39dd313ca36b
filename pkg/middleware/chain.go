package middleware

import "net/http"

// Chain is a resolved middleware list bound to a final handler.
type Chain struct {
	mws   []Middleware
	final Handler
}

// NewChain binds mws to final. A nil final handler answers NotFound.
func NewChain(mws []Middleware, final Handler) *Chain {
	if final == nil {
		final = func(*Context) *Response { return NotFound() }
	}
	return &Chain{mws: mws, final: final}
}

// Len returns the number of middleware in the chain.
func (ch *Chain) Len() int {
	return len(ch.mws)
}

// Run executes the chain for c.
func (ch *Chain) Run(c *Context) *Response {
	return ch.at(0)(c)
}

// at returns the continuation that runs the chain from position i.
func (ch *Chain) at(i int) Next {
	return func(c *Context) *Response {
		if i >= len(ch.mws) {
			return normalize(ch.final(c))
		}
		return normalize(ch.mws[i].Handle(c, ch.at(i+1)))
	}
}

func normalize(r *Response) *Response {
	if r == nil {
		return NewResponse(http.StatusNoContent, nil)
	}
	if r.Header == nil {
		r.Header = make(http.Header)
	}
	if r.Status == 0 {
		r.Status = http.StatusOK
	}
	return r
}
