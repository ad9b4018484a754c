package handler

import (
	"net/http"
	"strings"

	"github.com/boddenberg/charter-leads-bfa/internal/domain"
	"github.com/boddenberg/charter-leads-bfa/internal/service"

	"go.uber.org/zap"
)

// IntakeTokenHeader carries the capture agent's shared token.
const IntakeTokenHeader = "X-Intake-Token"

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

// SupabaseAuthMiddleware validates Supabase Bearer tokens and stores the
// caller in the request context.
func SupabaseAuthMiddleware(authSvc *service.AuthService, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				logger.Warn("auth: missing or malformed token",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			principal, err := authSvc.ValidateAccessToken(token)
			if err != nil {
				logger.Warn("auth: invalid or expired token",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
					zap.Error(err),
				)
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}

			next.ServeHTTP(w, r.WithContext(domain.WithPrincipal(r.Context(), principal)))
		})
	}
}

// IntakeAuthMiddleware accepts either the capture agent's intake token
// or a regular Supabase Bearer token.
func IntakeAuthMiddleware(authSvc *service.AuthService, logger *zap.Logger) func(http.Handler) http.Handler {
	jwtAuth := SupabaseAuthMiddleware(authSvc, logger)
	return func(next http.Handler) http.Handler {
		withJWT := jwtAuth(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get(IntakeTokenHeader)
			if token == "" {
				withJWT.ServeHTTP(w, r)
				return
			}

			principal, err := authSvc.ValidateIntakeToken(token)
			if err != nil {
				logger.Warn("auth: intake token rejected",
					zap.String("remote_addr", r.RemoteAddr),
				)
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(domain.WithPrincipal(r.Context(), principal)))
		})
	}
}
