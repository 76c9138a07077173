package httpapi

import "net/http"

// handleHealthz implements GET /healthz: liveness only, no dependency
// checks, so a misbehaving backend never flaps the process's own readiness.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
