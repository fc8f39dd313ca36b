// Package admin serves the operational HTTP surface of a switchboard
// process:
//
//	GET /healthz   liveness and uptime
//	GET /metrics   Prometheus exposition
//	GET /pool      outbound connection pool statistics
//	GET /routes    route table of every protocol with resolved chains
//	GET /protocols detection order of the dispatcher
//
// Requests are rate limited per client IP.
package admin
