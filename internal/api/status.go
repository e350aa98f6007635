package api

import "net/http"

// handleAIStatus reports the gateway's health-check result.
func (s *Server) handleAIStatus(w http.ResponseWriter, r *http.Request) {
	status := s.gateway.HealthCheck(r.Context())
	code := http.StatusOK
	if !status.Reachable {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}
