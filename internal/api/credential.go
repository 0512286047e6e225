package api

import (
	"encoding/json"
	"net/http"
	"strings"
)

// handleGetCredential reports presence only. The key itself never
// crosses the wire back out.
func (s *Server) handleGetCredential(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.userID(w, r); !ok {
		return
	}

	writeJSON(w, s.logger, http.StatusOK, struct {
		Configured bool `json:"configured"`
	}{Configured: s.creds.Has(r.Context())})
}

func (s *Server) handlePutCredential(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.userID(w, r); !ok {
		return
	}

	var req struct {
		APIKey string `json:"api_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.APIKey) == "" {
		writeJSON(w, s.logger, http.StatusBadRequest,
			errorBody{Code: "invalid_request", Message: "api_key is required"})
		return
	}

	if err := s.creds.Set(r.Context(), strings.TrimSpace(req.APIKey)); err != nil {
		writeError(w, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
