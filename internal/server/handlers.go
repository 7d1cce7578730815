package server

import (
	"net/http"

	"github.com/aristath/tradeledger/internal/api"
)

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.systemHandlers.storeHealthy(r.Context()); err != nil {
		s.log.Error().Err(err).Msg("Health check failed")
		api.WriteJSON(w, s.log, http.StatusServiceUnavailable, map[string]interface{}{
			"status":  "unhealthy",
			"service": "tradeledger",
			"error":   err.Error(),
		})
		return
	}

	api.WriteJSON(w, s.log, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"version": "1.0.0",
		"service": "tradeledger",
	})
}
