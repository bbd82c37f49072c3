package dispatch

import (
	"fmt"
	"net/http"
	"time"

	"github.com/kilianp07/agvdispatch/core/dispatch"
	"github.com/kilianp07/agvdispatch/core/dispatch/logging"
	corelog "github.com/kilianp07/agvdispatch/core/logger"
)

// NewLogHandler returns an HTTP handler exposing decision logs via GET /api/dispatch/logs.
// Requests must include an Authorization header with "Bearer <token>" when token is non-empty.
func NewLogHandler(store logging.LogStore, token string) http.Handler {
	return RequireToken(token, logsHandler(store, corelog.NopLogger{}))
}

func logsHandler(store logging.LogStore, log corelog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := parseLogQuery(r)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		records, err := store.Query(r.Context(), q)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		if records == nil {
			records = []logging.LogRecord{}
		}
		writeJSON(w, r, log, http.StatusOK, records)
	}
}

func parseLogQuery(r *http.Request) (logging.LogQuery, error) {
	v := r.URL.Query()
	q := logging.LogQuery{
		VehicleID: v.Get("vehicle_id"),
		OrderID:   v.Get("order_id"),
		Phase:     v.Get("phase"),
	}
	for _, f := range []struct {
		key string
		dst *time.Time
	}{{"start", &q.Start}, {"end", &q.End}} {
		s := v.Get(f.key)
		if s == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return q, fmt.Errorf("%w: %s must be RFC3339", dispatch.ErrInvalidArgument, f.key)
		}
		*f.dst = t
	}
	return q, nil
}

// RequireToken rejects requests without the bearer token. An empty token
// disables the check.
func RequireToken(token string, next http.Handler) http.Handler {
	if token == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
