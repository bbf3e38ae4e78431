// Package server runs the administrative gRPC endpoint. It exposes the
// standard gRPC health service, reporting SERVING for a session only while
// that session is logged on and in sequence.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/solatis/fixengine/internal/core/config"
	"github.com/solatis/fixengine/internal/session"
	"github.com/solatis/fixengine/internal/types"
)

const shutdownTimeout = 30 * time.Second

// AdminServer manages the gRPC server lifecycle.
type AdminServer struct {
	server *grpc.Server
	health *health.Server
	config config.AdminConfig
	logger *slog.Logger

	mu       sync.Mutex
	listener net.Listener
}

// NewAdminServer registers the health service. Every service starts
// NOT_SERVING.
func NewAdminServer(cfg config.AdminConfig, logger *slog.Logger) (*AdminServer, error) {
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("port must be between 0 and 65535, got %d", cfg.Port)
	}
	if logger == nil {
		logger = slog.Default()
	}

	srv := grpc.NewServer()
	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(srv, hs)
	hs.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	return &AdminServer{
		server: srv,
		health: hs,
		config: cfg,
		logger: logger,
	}, nil
}

// ObservePhase updates health for id. It has the signature of a session
// phase observer. The overall status ("") follows the last observed
// session.
func (s *AdminServer) ObservePhase(id types.SessionIdentity, p session.Phase) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if p == session.PhaseActive || p == session.PhaseResendInProgress {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(id.String(), status)
	s.health.SetServingStatus("", status)
	s.logger.Debug("health status updated", "session", id.String(), "phase", p.String(), "status", status.String())
}

// Listen binds the configured address and returns it. Port 0 picks a free
// port.
func (s *AdminServer) Listen() (net.Addr, error) {
	addr := net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to bind %s: %w", addr, err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	return listener.Addr(), nil
}

// Serve blocks serving on the bound listener until Shutdown.
func (s *AdminServer) Serve() error {
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()
	if listener == nil {
		return fmt.Errorf("admin server not bound")
	}
	s.logger.Info("admin server listening", "addr", listener.Addr().String())
	return s.server.Serve(listener)
}

// Start binds and serves.
func (s *AdminServer) Start() error {
	if _, err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Shutdown marks every service NOT_SERVING and stops gracefully, forcing
// the stop when ctx ends or after 30 seconds.
func (s *AdminServer) Shutdown(ctx context.Context) error {
	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		s.server.Stop()
		return fmt.Errorf("shutdown cancelled by context: %w", ctx.Err())
	case <-time.After(shutdownTimeout):
		s.server.Stop()
		return fmt.Errorf("graceful shutdown timeout, forced stop")
	}
}
