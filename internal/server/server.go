package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/elskow/mystery-message/internal/api"
	"github.com/elskow/mystery-message/internal/auth"
	"github.com/elskow/mystery-message/internal/config"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	config     *config.AppConfig
	log        *zap.Logger
	router     chi.Router
	httpServer *http.Server
	database   Pinger
}

type Params struct {
	fx.In

	Config      *config.AppConfig
	Logger      *zap.Logger
	AuthHandler *auth.Handler
	Guard       *auth.Guard
	Gatherer    prometheus.Gatherer
	Database    Pinger
}

func NewServer(p Params) *Server {
	s := &Server{
		config:   p.Config,
		log:      p.Logger,
		router:   chi.NewRouter(),
		database: p.Database,
	}

	s.routes(p.AuthHandler, p.Guard, p.Gatherer)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", p.Config.Server.Host, p.Config.Server.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

func (s *Server) routes(authHandler *auth.Handler, guard *auth.Guard, gatherer prometheus.Gatherer) {
	r := s.router

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.CORS.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Handle(api.Metrics, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get(api.Health, s.handleHealth)

	authHandler.Routes(r)

	// Page routes are served behind the route guard
	r.Group(func(r chi.Router) {
		r.Use(guard.Middleware)
		r.Get(api.PageHome, handlePage)
		r.Get(api.PageSignIn, handlePage)
		r.Get(api.PageSignUp, handlePage)
		r.Get(api.PageVerify+"/{username}", handlePage)
		r.Get(api.PageDashboard, handlePage)
		r.Get(api.PageDashboard+"/*", handlePage)
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	s.log.Info("Starting HTTP server",
		zap.String("address", s.httpServer.Addr),
		zap.Object("config", serverConfigToField(s.config)),
	)

	if err := s.httpServer.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve: %w", err)
	}

	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.log.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Database: "ok"}
	status := http.StatusOK
	if err := s.database.Ping(ctx); err != nil {
		s.log.Warn("health check failed", zap.Error(err))
		resp = healthResponse{Status: "unavailable", Database: "unreachable"}
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

type pageResponse struct {
	Page string              `json:"page"`
	User *auth.SessionClaims `json:"user,omitempty"`
}

// handlePage stands in for the web frontend, which is served separately.
func handlePage(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFromContext(r.Context())
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(pageResponse{Page: r.URL.Path, User: claims})
}

func serverConfigToField(config *config.AppConfig) zapcore.ObjectMarshaler {
	return zapcore.ObjectMarshalerFunc(func(enc zapcore.ObjectEncoder) error {
		enc.AddString("environment", os.Getenv("APP_ENV"))
		enc.AddDuration("token_expiration", config.Auth.TokenExpiration)
		enc.AddBool("refresh_enabled", config.Auth.RefreshTokenEnabled)
		enc.AddString("notification_driver", config.Notification.Driver)
		enc.AddBool("redis_enabled", config.Redis.Enabled)
		enc.AddBool("auto_migrate", config.Database.AutoMigrate)
		return nil
	})
}
