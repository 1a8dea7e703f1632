package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"time"

	"github.com/patientcheck/patientcheck/internal/auth"
)

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func wrapResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, status: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.status = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// credentialHolder lets handlers deeper in the chain report the credential
// back to the logger, which runs before Auth.
type credentialHolder struct {
	id string
}

// Logger returns a middleware that logs HTTP requests.
// Request bodies and the Authorization header are never logged, and the
// client address is truncated to its network prefix.
func Logger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := wrapResponseWriter(w)

			holder := &credentialHolder{}
			next.ServeHTTP(wrapped, r.WithContext(withCredentialHolder(r.Context(), holder)))

			duration := time.Since(start)

			attrs := []slog.Attr{
				slog.String("request_id", GetRequestID(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status_code", wrapped.status),
				slog.Float64("duration_ms", float64(duration.Microseconds())/1000),
				slog.String("remote_addr", anonymizeIP(r.RemoteAddr)),
				slog.String("user_agent", r.UserAgent()),
			}
			if holder.id != "" {
				attrs = append(attrs, slog.String("credential_id", holder.id))
			}
			if traceID := GetTraceID(r.Context()); traceID != "" {
				attrs = append(attrs, slog.String("trace_id", traceID))
			}

			level := slog.LevelInfo
			if wrapped.status >= 500 {
				level = slog.LevelError
			} else if wrapped.status >= 400 {
				level = slog.LevelWarn
			}

			logger.LogAttrs(r.Context(), level, "http request", attrs...)
		})
	}
}

// RecordCredential copies the authenticated credential ID to the request logger.
// Mount it after Auth.
func RecordCredential(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if holder := credentialHolderFrom(r.Context()); holder != nil {
			holder.id = auth.CredentialIDFromContext(r.Context())
		}
		next.ServeHTTP(w, r)
	})
}

// anonymizeIP keeps the /24 of an IPv4 address or the /48 of an IPv6 address.
func anonymizeIP(remoteAddr string) string {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}

	addr, err := netip.ParseAddr(host)
	if err != nil {
		return ""
	}
	addr = addr.Unmap()

	bits := 48
	if addr.Is4() {
		bits = 24
	}
	prefix, err := addr.Prefix(bits)
	if err != nil {
		return ""
	}
	return prefix.Addr().String()
}
