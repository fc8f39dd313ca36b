// Package server accepts connections on one listener and runs each of them
// through the protocol dispatcher in its own goroutine.
//
// Temporary accept errors are retried with backoff. Every connection gets
// a context bounded by the configured maximum connection time. On
// shutdown the listener closes first; open connections get the shutdown
// timeout to finish before their contexts are canceled.
package server
