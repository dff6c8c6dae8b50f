package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/elskow/mystery-message/internal/config"
)

// Define a custom type for context keys
type contextKey string

const (
	// ClaimsContextKey is the key used to store the session claims in the context
	ClaimsContextKey contextKey = "session"
)

// TokenResolver turns a session token into claims.
type TokenResolver interface {
	ResolveToken(token string) (*SessionClaims, error)
}

type AuthMiddleware struct {
	config   *config.AuthConfig
	resolver TokenResolver
	log      *zap.Logger
}

func NewAuthMiddleware(config *config.AuthConfig, resolver TokenResolver, log *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		config:   config,
		resolver: resolver,
		log:      log,
	}
}

// TokenFromRequest reads the session cookie, falling back to a bearer token.
func (m *AuthMiddleware) TokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(m.config.CookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

// Resolve returns the request's claims, or ErrUnauthenticated when it carries
// no usable token. Other errors are faults in resolution itself.
func (m *AuthMiddleware) Resolve(r *http.Request) (*SessionClaims, error) {
	token := m.TokenFromRequest(r)
	if token == "" {
		return nil, ErrUnauthenticated
	}
	return m.resolver.ResolveToken(token)
}

// RequireSession rejects requests without a valid session with 401.
func (m *AuthMiddleware) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := m.Resolve(r)
		if err != nil {
			if !errors.Is(err, ErrUnauthenticated) {
				m.log.Error("session resolution failed",
					zap.String("path", r.URL.Path),
					zap.Error(err))
			}
			writeError(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

func WithClaims(ctx context.Context, claims *SessionClaims) context.Context {
	return context.WithValue(ctx, ClaimsContextKey, claims)
}

// Helper function to get the session claims from context
func ClaimsFromContext(ctx context.Context) (*SessionClaims, bool) {
	claims, ok := ctx.Value(ClaimsContextKey).(*SessionClaims)
	return claims, ok && claims != nil
}
