package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/patientcheck/patientcheck/internal/auth"
	"github.com/patientcheck/patientcheck/internal/metrics"
	"github.com/patientcheck/patientcheck/internal/model"
	"github.com/patientcheck/patientcheck/internal/tracing"
)

// Auth failure reasons, as logged and exported as metric labels.
const (
	ReasonMissingKey = "missing_key"
	ReasonInvalidKey = "invalid_key"
)

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	Logger    *slog.Logger
	Validator auth.Validator
	Metrics   metrics.Recorder
	Tracer    tracing.Tracer
	// MinDuration is the least time any authentication attempt takes.
	MinDuration time.Duration
}

// Auth returns a middleware that admits only requests carrying an accepted
// bearer token. Missing and unrecognised tokens get the same 401 response.
func Auth(cfg AuthConfig) func(http.Handler) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoop()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = tracing.NewNoop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ctx, span := cfg.Tracer.Start(r.Context(), tracing.SpanCredentialCheck)
			cred, err := cfg.Validator.Validate(ctx, extractBearerToken(r), model.Caller{RemoteAddr: r.RemoteAddr})
			if err == nil {
				span.SetAttributes(tracing.String(tracing.AttrCredentialID, cred.ID))
			}
			span.End(err)

			if err != nil {
				reason := ReasonInvalidKey
				if errors.Is(err, auth.ErrMissingCredential) {
					reason = ReasonMissingKey
				}
				cfg.Metrics.IncAuthFailure(reason)
				cfg.Logger.Warn("authentication failed",
					slog.String("reason", reason),
					slog.String("ip", anonymizeIP(r.RemoteAddr)),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				padDuration(r, start, cfg.MinDuration)
				writeAuthError(w)
				return
			}

			cfg.Logger.Debug("authentication successful",
				slog.String("credential_id", cred.ID),
				slog.String("credential_kind", cred.Kind),
				slog.String("request_id", GetRequestID(r.Context())),
			)

			padDuration(r, start, cfg.MinDuration)
			next.ServeHTTP(w, r.WithContext(auth.ContextWithCredential(r.Context(), cred)))
		})
	}
}

// padDuration sleeps until floor has elapsed since start or the request is cancelled.
func padDuration(r *http.Request, start time.Time, floor time.Duration) {
	remaining := floor - time.Since(start)
	if remaining <= 0 {
		return
	}
	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-r.Context().Done():
	}
}

// extractBearerToken returns the token of an "Authorization: Bearer <token>" header.
// The scheme is matched case-insensitively. Anything else yields "".
func extractBearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// writeAuthError writes a 401 Unauthorized response.
// Uses the same message for all auth failures to prevent enumeration.
func writeAuthError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="patientcheck"`)
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":{"code":"UNAUTHORIZED","message":"Invalid or missing API key"}}`))
}
