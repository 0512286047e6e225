package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/podscout/podscout/internal/chat"
	"github.com/podscout/podscout/internal/conversation"
	"github.com/podscout/podscout/internal/gemini"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeJSON encodes v to a buffer before touching the wire, so an
// encoding failure can still produce a clean 500.
func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		logger.Error("response encoding failed", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// writeError maps a domain error to its HTTP status and code.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "status", status, "code", code, "error", err)
	} else {
		logger.Debug("request rejected", "status", status, "code", code, "error", err)
	}
	writeJSON(w, logger, status, errorBody{Code: code, Message: publicMessage(err, status)})
}

// errorStatus classifies a domain error. Unknown errors are internal.
func errorStatus(err error) (status int, code string) {
	var (
		reqErr  *gemini.RequestError
		persist *conversation.PersistenceError
	)
	switch {
	case errors.Is(err, conversation.ErrAuthRequired):
		return http.StatusUnauthorized, "auth_required"
	case errors.Is(err, conversation.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, chat.ErrBusy):
		return http.StatusConflict, "busy"
	case errors.Is(err, chat.ErrCredentialMissing), errors.Is(err, gemini.ErrMissingCredential):
		return http.StatusPreconditionRequired, "credential_required"
	case errors.As(err, &reqErr):
		return http.StatusBadGateway, "upstream_error"
	case errors.As(err, &persist):
		return http.StatusServiceUnavailable, "storage_unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// publicMessage decides what error text crosses the wire. Internal
// failures stay generic; client-caused rejections carry the real text.
func publicMessage(err error, status int) string {
	if status >= http.StatusInternalServerError || status == http.StatusBadGateway ||
		status == http.StatusServiceUnavailable {
		return http.StatusText(status)
	}
	return err.Error()
}
