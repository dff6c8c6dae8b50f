package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/elskow/mystery-message/internal/config"
)

const (
	// ServiceName is the health service name reported for the API.
	ServiceName = "mystery_message.API"

	healthCheckInterval = 15 * time.Second
)

// OpsServer serves grpc.health.v1 and reflection. Health follows database
// reachability.
type OpsServer struct {
	config     *config.AppConfig
	log        *zap.Logger
	grpcServer *grpc.Server
	health     *health.Server
	database   Pinger
	interval   time.Duration

	stopOnce sync.Once
	done     chan struct{}
}

func NewOpsServer(config *config.AppConfig, database Pinger, log *zap.Logger) *OpsServer {
	opts := []grpc.ServerOption{
		grpc.MaxRecvMsgSize(config.GRPC.MaxReceiveMessageSize),
		grpc.MaxSendMsgSize(config.GRPC.MaxSendMessageSize),
	}

	grpcServer := grpc.NewServer(opts...)
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	if config.GRPC.EnableReflection {
		reflection.Register(grpcServer)
	}

	return &OpsServer{
		config:     config,
		log:        log,
		grpcServer: grpcServer,
		health:     healthServer,
		database:   database,
		interval:   healthCheckInterval,
		done:       make(chan struct{}),
	}
}

func (s *OpsServer) Start() error {
	addr := fmt.Sprintf("%s:%s", s.config.GRPC.Host, s.config.GRPC.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	s.log.Info("Starting gRPC ops server",
		zap.String("address", addr),
		zap.Bool("reflection_enabled", s.config.GRPC.EnableReflection),
		zap.Int("max_receive_size", s.config.GRPC.MaxReceiveMessageSize),
		zap.Int("max_send_size", s.config.GRPC.MaxSendMessageSize),
	)

	s.checkHealth(context.Background())
	go s.watchHealth()

	if err := s.grpcServer.Serve(lis); err != nil {
		return fmt.Errorf("failed to serve: %w", err)
	}

	return nil
}

func (s *OpsServer) watchHealth() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.checkHealth(context.Background())
		}
	}
}

func (s *OpsServer) checkHealth(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := s.database.Ping(ctx); err != nil {
		s.log.Warn("database unreachable", zap.Error(err))
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

func (s *OpsServer) Stop() {
	s.stopOnce.Do(func() {
		s.log.Info("shutting down gRPC ops server")
		close(s.done)
		s.health.Shutdown()
		s.grpcServer.GracefulStop()
	})
}
