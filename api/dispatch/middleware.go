package dispatch

import (
	"net/http"
	"time"

	corelog "github.com/kilianp07/agvdispatch/core/logger"
)

// statusWriter captures the final HTTP status code and number of bytes written.
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

func requestLogger(log corelog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)
		log.Debugw("http request", map[string]any{
			"method":   r.Method,
			"path":     r.URL.RequestURI(),
			"status":   sw.status,
			"bytes":    sw.bytes,
			"duration": time.Since(start).String(),
		})
	})
}
