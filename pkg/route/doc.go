// Package route implements the per-protocol route tree.
//
// Nodes live in a flat table and refer to their parent by index. Each node
// holds one path segment, an optional final handler, a local middleware list
// and an optional override list. Segments are literals, named parameters
// (":id" or "{id}") or a trailing wildcard ("*rest"). Matching prefers
// literals over parameters over wildcards and backtracks when a branch fails.
//
// A Tree is a middleware.Source: every change that affects chain resolution
// bumps the version of the node (or of the protocol level) it touches.
package route
