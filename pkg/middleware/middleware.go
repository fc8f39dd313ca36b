package middleware

// Next runs the remainder of a chain, including the final handler.
type Next func(c *Context) *Response

// Handler is the final step of a chain.
type Handler func(c *Context) *Response

// Middleware is one step of a chain. Handle either calls next and returns
// its (possibly rewritten) result, or returns its own result without
// calling next.
type Middleware interface {
	Name() string
	Handle(c *Context, next Next) *Response
}

// Func adapts a function to Middleware.
type Func func(c *Context, next Next) *Response

type named struct {
	name string
	fn   Func
}

func (n named) Name() string                           { return n.name }
func (n named) Handle(c *Context, next Next) *Response { return n.fn(c, next) }

// Named returns a Middleware with the given name running fn.
func Named(name string, fn Func) Middleware {
	return named{name: name, fn: fn}
}

type inheritMarker struct{}

func (inheritMarker) Name() string { return "..." }

func (inheritMarker) Handle(c *Context, next Next) *Response { return next(c) }

// Inherit is the inheritance-splice marker for override lists.
var Inherit Middleware = inheritMarker{}

// IsInherit reports whether m is the inheritance marker.
func IsInherit(m Middleware) bool {
	_, ok := m.(inheritMarker)
	return ok
}

// Names returns the names of mws in order.
func Names(mws []Middleware) []string {
	out := make([]string, len(mws))
	for i, m := range mws {
		out[i] = m.Name()
	}
	return out
}
