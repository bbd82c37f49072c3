package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kilianp07/agvdispatch/core/dispatch"
	corelog "github.com/kilianp07/agvdispatch/core/logger"
)

// statusFor maps dispatcher errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, dispatch.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, dispatch.ErrUnknownObject):
		return http.StatusNotFound
	case errors.Is(err, dispatch.ErrNotAssignable):
		return http.StatusConflict
	case errors.Is(err, dispatch.ErrServiceFailure):
		return http.StatusBadGateway
	case errors.Is(err, dispatch.ErrNotRunning):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, log corelog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("encode failed: method=%s path=%s err=%v", r.Method, r.URL.Path, err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, log corelog.Logger, err error) {
	writeJSON(w, r, log, statusFor(err), map[string]string{"error": err.Error()})
}
