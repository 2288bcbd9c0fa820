package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"sampleflow/internal/api/middleware"
	"sampleflow/pkg/domain"
)

// HTTPStatus maps a core status class to a response code.
func HTTPStatus(status domain.Status) int {
	switch status {
	case domain.StatusOK:
		return http.StatusOK
	case domain.StatusInvalid:
		return http.StatusBadRequest
	case domain.StatusNotFound:
		return http.StatusNotFound
	case domain.StatusConflict:
		return http.StatusConflict
	case domain.StatusUnauthorized:
		return http.StatusUnauthorized
	case domain.StatusUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	middleware.WriteMessage(w, status, message)
}

// writeError reports err to the client. Internal failures are logged and
// replaced by a generic message.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeMessage(w, http.StatusRequestEntityTooLarge, "Request body too large")
		return
	}
	status := domain.StatusOf(err)
	code := HTTPStatus(status)
	if status == domain.StatusFailed {
		h.logger.Error("request failed",
			slog.String("path", r.URL.Path),
			slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
			slog.String("error", err.Error()),
		)
		writeMessage(w, code, "Internal server error")
		return
	}
	writeMessage(w, code, err.Error())
}
