package admin

import (
	"github.com/getmockd/switchboard/pkg/pool"
	"github.com/getmockd/switchboard/pkg/route"
)

// HealthResponse is returned by /healthz.
type HealthResponse struct {
	Status string `json:"status"`
	Uptime int    `json:"uptime"`
}

// ErrorResponse is the body of every error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// PoolResponse is returned by /pool.
type PoolResponse struct {
	Enabled bool       `json:"enabled"`
	Stats   pool.Stats `json:"stats"`
}

// RoutesResponse is returned by /routes, keyed by protocol.
type RoutesResponse map[string][]route.Info

// ProtocolsResponse is returned by /protocols.
type ProtocolsResponse struct {
	Order []string `json:"order"`
}
