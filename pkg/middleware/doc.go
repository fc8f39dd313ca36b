// Package middleware resolves and runs the ordered request-processing steps
// that wrap a route's final handler.
//
// # Chain resolution
//
// A route's default chain is the protocol-level middleware, then the local
// middleware of every ancestor from the root down, then the route's own local
// middleware. A route may instead carry an override list. An override that
// contains the Inherit marker has the default chain spliced in at the marker:
//
//	[Auth, Inherit, Cache]  =>  Auth, <protocol>, <ancestors>, <local>, Cache
//
// An override without the marker replaces the default chain entirely. Empty
// overrides and overrides with more than one marker are rejected by
// ValidateOverride when the route is registered.
//
// The Resolver memoises chains per node and re-validates each memo against
// the version of every level that contributed to it.
//
// # Execution
//
// Chain.Run executes middleware strictly in order. Every middleware receives
// a Next bound to its position: calling it runs the rest of the chain and the
// final handler, not calling it short-circuits.
//
//	mw := middleware.Named("auth", func(c *middleware.Context, next middleware.Next) *middleware.Response {
//	    if c.Header.Get("Authorization") == "" {
//	        return middleware.Text(http.StatusUnauthorized, "unauthorized")
//	    }
//	    return next(c)
//	})
package middleware
