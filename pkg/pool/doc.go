// Package pool keeps idle outbound connections for reuse, keyed by
// host, port and TLS flag.
//
// Each key has a bounded LIFO queue. Get hands out the most recently
// returned healthy connection and closes stale ones it passes over; Put
// closes the connection instead of queueing it when the queue is full. A
// connection is healthy while it is younger than MaxLifetime and has been
// idle for no longer than IdleTimeout. A sweeper closes stale connections
// every SweepInterval.
//
// The process-wide pool is created once with InitDefault and retrieved with
// Default; components receive it by injection.
package pool
