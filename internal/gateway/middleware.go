package gateway

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"github.com/phuczkz/healthcare-center/pkg/logger"
	"github.com/phuczkz/healthcare-center/pkg/types"
)

type contextKey string

const claimsKey contextKey = "user_claims"

// ErrorResponder writes err as an HTTP error response
type ErrorResponder func(w http.ResponseWriter, r *http.Request, err error)

// AuthMiddleware authenticates, authorizes and rate limits API requests
type AuthMiddleware struct {
	validator *TokenValidator
	limiter   *RateLimiter
	logger    *logger.Logger
	respond   ErrorResponder
}

// NewAuthMiddleware creates the middleware; limiter may be nil to disable rate limiting
func NewAuthMiddleware(validator *TokenValidator, limiter *RateLimiter, log *logger.Logger, respond ErrorResponder) *AuthMiddleware {
	if respond == nil {
		respond = writeError
	}
	return &AuthMiddleware{
		validator: validator,
		limiter:   limiter,
		logger:    log,
		respond:   respond,
	}
}

// ClaimsFromContext returns the verified claims stored by Authenticate
func ClaimsFromContext(ctx context.Context) (*types.UserClaims, bool) {
	claims, ok := ctx.Value(claimsKey).(*types.UserClaims)
	return claims, ok && claims != nil
}

// WithClaims stores claims in ctx
func WithClaims(ctx context.Context, claims *types.UserClaims) context.Context {
	ctx = context.WithValue(ctx, claimsKey, claims)
	return context.WithValue(ctx, logger.UserIDKey, claims.UserID)
}

// Authenticate validates the bearer token and stores its claims in the request context
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			m.respond(w, r, types.NewAuthenticationError(types.ErrCodeUnauthorized, "missing authorization header"))
			return
		}

		// Check Bearer token format
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			m.respond(w, r, types.NewAuthenticationError(types.ErrCodeUnauthorized, "invalid authorization header format"))
			return
		}

		claims, err := m.validator.ValidateJWT(strings.TrimSpace(parts[1]))
		if err != nil {
			m.logger.WithContext(r.Context()).WithError(err).Warn("Token validation failed")
			m.respond(w, r, types.NewAuthenticationError(types.ErrCodeUnauthorized, "invalid token"))
			return
		}

		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

// RequireRole rejects authenticated callers that carry none of roles
func (m *AuthMiddleware) RequireRole(roles ...types.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				m.respond(w, r, types.NewAuthenticationError(types.ErrCodeUnauthorized, "authentication required"))
				return
			}
			if !claims.HasRole(roles...) {
				m.logger.WithContext(r.Context()).WithField("role", claims.Role).Warn("Access denied")
				m.respond(w, r, types.NewAuthorizationError(types.ErrCodeForbidden, "insufficient role"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimit applies the per-user limiter, keyed by client address for anonymous callers
func (m *AuthMiddleware) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.limiter == nil {
			next.ServeHTTP(w, r)
			return
		}

		key := clientIP(r)
		if claims, ok := ClaimsFromContext(r.Context()); ok {
			key = claims.UserID
		}

		if !m.limiter.Allow(key) {
			m.logger.WithContext(r.Context()).WithField("key", key).Warn("Rate limit exceeded")
			m.respond(w, r, &types.SchedulingError{
				Type:    types.ErrorTypeRateLimit,
				Code:    types.ErrCodeRateLimitExceeded,
				Message: "rate limit exceeded",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// CORS handles CORS headers
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		w.Header().Set("Access-Control-Max-Age", "86400")

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// SecurityHeaders adds security headers
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeError is the fallback responder
func writeError(w http.ResponseWriter, _ *http.Request, err error) {
	status := http.StatusInternalServerError
	switch types.ErrorTypeOf(err) {
	case types.ErrorTypeAuthentication:
		status = http.StatusUnauthorized
	case types.ErrorTypeAuthorization:
		status = http.StatusForbidden
	case types.ErrorTypeRateLimit:
		status = http.StatusTooManyRequests
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error":  err.Error(),
		"code":   types.ErrorCodeOf(err),
		"status": status,
	})
}
