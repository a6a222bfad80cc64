package health

import (
	"context"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCServer serves the standard gRPC health protocol. The empty service
// name reports the whole system; each index is also a service.
type GRPCServer struct {
	monitor *Monitor
	health  *grpchealth.Server
	server  *grpc.Server
	port    int
}

// NewGRPCServer creates a gRPC health server.
func NewGRPCServer(monitor *Monitor, port int) *GRPCServer {
	s := &GRPCServer{
		monitor: monitor,
		health:  grpchealth.NewServer(),
		server:  grpc.NewServer(),
		port:    port,
	}
	healthpb.RegisterHealthServer(s.server, s.health)
	return s
}

// Refresh copies the monitor's current report into the serving statuses.
func (s *GRPCServer) Refresh(ctx context.Context) {
	report := s.monitor.CheckHealth(ctx)
	s.health.SetServingStatus("", servingStatus(report.SystemStatus))
	for name, idx := range report.Indexes {
		s.health.SetServingStatus(name, servingStatus(idx.Status))
	}
}

// Watch refreshes the statuses every interval until ctx is done.
func (s *GRPCServer) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}

// Start listens on the configured port and serves until Stop.
func (s *GRPCServer) Start() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(lis)
}

// Serve serves on lis until Stop.
func (s *GRPCServer) Serve(lis net.Listener) error {
	return s.server.Serve(lis)
}

// Stop marks every service not serving and stops gracefully, or forcefully
// once ctx is done.
func (s *GRPCServer) Stop(ctx context.Context) {
	s.health.Shutdown()
	done := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.server.Stop()
	}
}

// Degraded still serves; only a critical status stops serving.
func servingStatus(status SystemStatus) healthpb.HealthCheckResponse_ServingStatus {
	if status == StatusCritical {
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
	return healthpb.HealthCheckResponse_SERVING
}
