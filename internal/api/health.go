package api

import (
	"net/http"
	"time"

	"github.com/Axmae/ambulance-management/internal/api/respond"
)

// checkHealth handles GET /healthz.
// Always returns 200; the body reports healthy/unhealthy per component.
func (s *Server) checkHealth(w http.ResponseWriter, r *http.Request) {
	status := "unhealthy"
	var components map[string]bool
	if s.opt.Health != nil {
		if s.opt.Health.IsHealthy() {
			status = "healthy"
		}
		components = s.opt.Health.Components()
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().Format(time.RFC3339),
	})
}
