package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/pulseapp/identity"
	"github.com/pulseapp/identity/middleware"
)

const maxBodyBytes = 64 << 10

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decode reads a JSON body into dst. An empty body leaves dst zeroed.
func (h *handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: identity.ErrorCode(identity.ErrInvalidInput)})
		return false
	}
	return true
}

// StatusFor maps an engine error to its HTTP status.
func StatusFor(err error) int {
	switch identity.CategoryOf(err) {
	case identity.CategoryNone:
		return http.StatusOK
	case identity.CategoryInput:
		return http.StatusBadRequest
	case identity.CategoryConflict:
		return http.StatusConflict
	case identity.CategoryAuthentication:
		return http.StatusUnauthorized
	case identity.CategoryDisabled:
		return http.StatusForbidden
	case identity.CategoryRateLimited:
		return http.StatusTooManyRequests
	case identity.CategoryUpstream:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(r.Context(), "request failed",
			"path", r.URL.Path,
			"error", err,
			"request_id", middleware.RequestIDFromContext(r.Context()),
		)
	}
	writeJSON(w, status, errorResponse{Error: identity.ErrorCode(err)})
}
