package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/elskow/mystery-message/internal/api"
	"github.com/elskow/mystery-message/internal/auth"
	"github.com/elskow/mystery-message/internal/config"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

func newTestAppConfig() *config.AppConfig {
	return &config.AppConfig{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: "0", ShutdownTimeout: time.Second},
		Auth: config.AuthConfig{
			JWTSecret:       "server-test-secret-key",
			Issuer:          "mystery-message",
			TokenExpiration: time.Hour,
			CookieName:      "session_token",
		},
		Guard: config.GuardConfig{
			HomePath:                  api.PageDashboard,
			SignInPath:                api.PageSignIn,
			RedirectWhenAuthenticated: api.RedirectWhenAuthenticated,
			ProtectedPrefixes:         api.ProtectedPrefixes,
		},
		CORS: config.CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}},
	}
}

type testServer struct {
	handler  http.Handler
	sessions *auth.SessionAuthority
	registry *prometheus.Registry
}

func newTestServer(t *testing.T, database Pinger) *testServer {
	t.Helper()
	cfg := newTestAppConfig()
	log := zap.NewNop()
	registry := prometheus.NewRegistry()
	metrics := auth.NewMetrics(registry)

	// Token resolution never reaches the store, so no repository is needed here
	sessions := auth.NewSessionAuthority(&cfg.Auth, nil, nil, nil, metrics, log)
	middleware := auth.NewAuthMiddleware(&cfg.Auth, sessions, log)
	handler := auth.NewHandler(&cfg.Auth, nil, nil, sessions, nil, middleware, log)
	guard := auth.NewGuard(&cfg.Guard, middleware, log)

	srv := NewServer(Params{
		Config:      cfg,
		Logger:      log,
		AuthHandler: handler,
		Guard:       guard,
		Gatherer:    registry,
		Database:    database,
	})

	return &testServer{handler: srv.Handler(), sessions: sessions, registry: registry}
}

func (s *testServer) token(t *testing.T) *http.Cookie {
	t.Helper()
	token, _, err := s.sessions.MintToken(auth.SessionClaims{
		ID:                  "0b9d1f5e-8f3c-4a51-9a43-6f4d2c1e7a10",
		Username:            "alice",
		IsVerified:          true,
		IsAcceptingMessages: true,
	})
	require.NoError(t, err)
	return &http.Cookie{Name: "session_token", Value: token}
}

func (s *testServer) get(path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func TestServer_Health(t *testing.T) {
	tests := []struct {
		name     string
		ping     error
		wantCode int
		want     healthResponse
	}{
		{"database reachable", nil, http.StatusOK, healthResponse{Status: "ok", Database: "ok"}},
		{"database down", errors.New("connection refused"), http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Database: "unreachable"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, pingerFunc(func(context.Context) error { return tt.ping }))

			rec := s.get(api.Health)
			assert.Equal(t, tt.wantCode, rec.Code)

			var got healthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestServer_Metrics(t *testing.T) {
	s := newTestServer(t, pingerFunc(func(context.Context) error { return nil }))

	rec := s.get(api.Metrics)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_GuardedPages(t *testing.T) {
	s := newTestServer(t, pingerFunc(func(context.Context) error { return nil }))
	session := s.token(t)

	tests := []struct {
		name         string
		path         string
		signedIn     bool
		wantCode     int
		wantLocation string
	}{
		{"anonymous dashboard", "/dashboard", false, http.StatusTemporaryRedirect, "/sign-in"},
		{"anonymous nested dashboard", "/dashboard/settings", false, http.StatusTemporaryRedirect, "/sign-in"},
		{"anonymous sign-in page", "/sign-in", false, http.StatusOK, ""},
		{"anonymous home", "/", false, http.StatusOK, ""},
		{"anonymous verify page", "/verify/alice", false, http.StatusOK, ""},
		{"signed in home", "/", true, http.StatusTemporaryRedirect, "/dashboard"},
		{"signed in sign-up page", "/sign-up", true, http.StatusTemporaryRedirect, "/dashboard"},
		{"signed in verify page", "/verify/alice", true, http.StatusTemporaryRedirect, "/dashboard"},
		{"signed in dashboard", "/dashboard", true, http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cookies []*http.Cookie
			if tt.signedIn {
				cookies = append(cookies, session)
			}

			rec := s.get(tt.path, cookies...)
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantLocation, rec.Header().Get("Location"))
		})
	}

	t.Run("dashboard sees the session", func(t *testing.T) {
		rec := s.get("/dashboard", session)
		require.Equal(t, http.StatusOK, rec.Code)

		var page pageResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
		assert.Equal(t, "/dashboard", page.Page)
		require.NotNil(t, page.User)
		assert.Equal(t, "alice", page.User.Username)
	})
}

func TestServer_SessionRequiresToken(t *testing.T) {
	s := newTestServer(t, pingerFunc(func(context.Context) error { return nil }))

	rec := s.get(api.Session)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_CORSPreflight(t *testing.T) {
	s := newTestServer(t, pingerFunc(func(context.Context) error { return nil }))

	req := httptest.NewRequest(http.MethodOptions, api.SignIn, nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}
