package httpapi

import (
	"net"
	"net/http"
	"strings"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/tmplay/schema"
)

// statusWriter records the status and size of a response. It forwards
// Flush so the event stream keeps working behind the logging middleware.
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (w *statusWriter) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.bytes += int64(n)
	return n, err
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) code() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

type sessionLookupFunc func(*http.Request) schema.SessionID

// withRequestLogging logs one line per request. Reads that a playing tape
// polls on every tick go to debug so they do not drown the access log.
func withRequestLogging(next http.Handler, lookup sessionLookupFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		var sessionID schema.SessionID
		if lookup != nil {
			sessionID = lookup(r)
		}
		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)

		logger := pslog.Ctx(r.Context()).With("remote", clientIP(r))
		if sessionID != "" {
			logger = logger.With("session", sessionID)
		}
		status := sw.code()
		fields := []any{"method", r.Method, "path", requestPath(r), "status", status, "bytes", sw.bytes, "duration_ms", time.Since(start).Milliseconds()}
		switch {
		case status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable:
			logger.Warn("http request", fields...)
		case isPollRequest(r) && status < http.StatusBadRequest:
			logger.Debug("http request", fields...)
		default:
			logger.Info("http request", fields...)
		}
		logger.Trace("http request details", "ua", r.UserAgent())
	})
}

func isPollRequest(r *http.Request) bool {
	if r.Method != http.MethodGet {
		return false
	}
	path := r.URL.Path
	return strings.HasSuffix(path, "/api/viewport") ||
		strings.HasSuffix(path, "/api/session") ||
		strings.HasSuffix(path, "/api/engine")
}

func requestPath(r *http.Request) string {
	if r.URL.RawQuery == "" {
		return r.URL.Path
	}
	return r.URL.Path + "?" + r.URL.RawQuery
}

func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
