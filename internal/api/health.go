package api

import (
	"context"
	"net/http"
	"time"
)

// handleHealth is a liveness probe; it answers as long as the process
// serves requests.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.logger, http.StatusOK, struct {
		Status string `json:"status"`
	}{Status: "ok"})
}

// handleReady is a readiness probe; it additionally requires the
// database to answer a ping.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.db.Ping(ctx); err != nil {
		s.logger.Warn("readiness ping failed", "error", err)
		writeJSON(w, s.logger, http.StatusServiceUnavailable, struct {
			Status string `json:"status"`
		}{Status: "unavailable"})
		return
	}
	writeJSON(w, s.logger, http.StatusOK, struct {
		Status string `json:"status"`
	}{Status: "ok"})
}
