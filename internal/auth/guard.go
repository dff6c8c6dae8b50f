package auth

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/elskow/mystery-message/internal/config"
)

type Action int

const (
	ActionAllow Action = iota
	ActionRedirect
)

type Decision struct {
	Action   Action
	Location string
}

// Guard redirects page requests based on whether the caller has a session.
type Guard struct {
	homePath                  string
	signInPath                string
	redirectWhenAuthenticated []string
	protectedPrefixes         []string
	sessions                  *AuthMiddleware
	log                       *zap.Logger
}

func NewGuard(cfg *config.GuardConfig, sessions *AuthMiddleware, log *zap.Logger) *Guard {
	return &Guard{
		homePath:                  cfg.HomePath,
		signInPath:                cfg.SignInPath,
		redirectWhenAuthenticated: cfg.RedirectWhenAuthenticated,
		protectedPrefixes:         cfg.ProtectedPrefixes,
		sessions:                  sessions,
		log:                       log,
	}
}

// Decide is the guard policy; the first matching rule wins.
func (g *Guard) Decide(authenticated bool, path string) Decision {
	if authenticated && matchesAny(path, g.redirectWhenAuthenticated) {
		return Decision{Action: ActionRedirect, Location: g.homePath}
	}
	if !authenticated && matchesAny(path, g.protectedPrefixes) {
		return Decision{Action: ActionRedirect, Location: g.signInPath}
	}
	return Decision{Action: ActionAllow}
}

// Middleware applies Decide to each request. A failure to resolve the token,
// as opposed to its absence, answers 500 instead of redirecting.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				g.log.Error("route guard panicked",
					zap.String("path", r.URL.Path),
					zap.Any("panic", rec))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}
		}()

		claims, err := g.sessions.Resolve(r)
		if err != nil && !errors.Is(err, ErrUnauthenticated) {
			g.log.Error("route guard could not resolve session",
				zap.String("path", r.URL.Path),
				zap.Error(err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		decision := g.Decide(claims != nil, r.URL.Path)
		if decision.Action == ActionRedirect {
			http.Redirect(w, r, decision.Location, http.StatusTemporaryRedirect)
			return
		}

		if claims != nil {
			r = r.WithContext(WithClaims(r.Context(), claims))
		}
		next.ServeHTTP(w, r)
	})
}

// matchesAny reports whether path is one of patterns or lies beneath one.
// "/" matches only the root itself.
func matchesAny(path string, patterns []string) bool {
	for _, p := range patterns {
		if p == "/" {
			if path == "/" {
				return true
			}
			continue
		}
		p = strings.TrimSuffix(p, "/")
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}
