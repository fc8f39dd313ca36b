package admin

import (
	"encoding/json"
	"net/http"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, errCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Error:   errCode,
		Message: message,
	})
}

// handleHealth handles GET /healthz.
func (a *AdminAPI) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Uptime: a.Uptime(),
	})
}

// handlePool handles GET /pool.
func (a *AdminAPI) handlePool(w http.ResponseWriter, _ *http.Request) {
	if a.pool == nil {
		writeError(w, http.StatusServiceUnavailable, "no_pool", "no connection pool configured")
		return
	}
	writeJSON(w, http.StatusOK, PoolResponse{
		Enabled: a.pool.Config().Enabled,
		Stats:   a.pool.Stats(),
	})
}

// handleRoutes handles GET /routes.
func (a *AdminAPI) handleRoutes(w http.ResponseWriter, _ *http.Request) {
	if a.routes == nil {
		writeJSON(w, http.StatusOK, RoutesResponse{})
		return
	}
	writeJSON(w, http.StatusOK, RoutesResponse(a.routes.RouteTable()))
}

// handleProtocols handles GET /protocols.
func (a *AdminAPI) handleProtocols(w http.ResponseWriter, _ *http.Request) {
	resp := ProtocolsResponse{Order: []string{}}
	if a.protocols != nil {
		resp.Order = a.protocols()
	}
	writeJSON(w, http.StatusOK, resp)
}
