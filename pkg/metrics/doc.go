// Package metrics holds the Prometheus collectors of the server.
//
// A Metrics value owns its own prometheus.Registry so tests and multiple
// servers in one process do not collide on the global registry.
//
//	m := metrics.New()
//	m.RegisterPool(p)
//	d := protocol.NewDispatcher(reg, app, protocol.WithObserver(m))
//	mux.Handle("/metrics", m.Handler())
//
// Exposed series:
//
//   - switchboard_connections_open: connections being served
//   - switchboard_connections_detected_total{protocol}
//   - switchboard_connections_rejected_total: detection failures
//   - switchboard_status_transitions_total{protocol,status}
//   - switchboard_handoffs_total{from,to}
//   - switchboard_handler_faults_total{protocol}
//   - switchboard_requests_total{protocol,method,status}
//   - switchboard_request_duration_seconds{protocol,method,status}
//   - switchboard_pool_*: outbound pool counters
//   - switchboard_uptime_seconds, plus the Go and process collectors
package metrics
