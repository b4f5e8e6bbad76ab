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

// GRPCServer exposes the monitor through the standard gRPC health service.
// Every reader is reported under "feed.<entity>" and the overall status
// under the empty service name.
type GRPCServer struct {
	monitor *Monitor
	port    int
	server  *grpc.Server
	health  *grpchealth.Server
}

// NewGRPCServer creates a gRPC health server.
func NewGRPCServer(monitor *Monitor, port int) *GRPCServer {
	srv := grpc.NewServer()
	hs := grpchealth.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	return &GRPCServer{monitor: monitor, port: port, server: srv, health: hs}
}

// Start listens on the configured port and serves until Stop.
func (s *GRPCServer) Start() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("failed to listen on %d: %w", s.port, err)
	}
	return s.Serve(lis)
}

// Serve serves on lis until Stop.
func (s *GRPCServer) Serve(lis net.Listener) error {
	s.Sync(context.Background())
	return s.server.Serve(lis)
}

// Sync publishes the current monitor report to the health service.
func (s *GRPCServer) Sync(ctx context.Context) {
	report := s.monitor.CheckHealth(ctx)
	for entity, fh := range report.Feeds {
		s.health.SetServingStatus("feed."+entity, servingStatus(fh.Status))
	}
	s.health.SetServingStatus("", servingStatus(report.SystemStatus))
}

// Run syncs the health service every interval until ctx is done.
func (s *GRPCServer) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sync(ctx)
		}
	}
}

// Stop marks every service NOT_SERVING and stops the server.
func (s *GRPCServer) Stop() {
	s.health.Shutdown()
	s.server.GracefulStop()
}

// servingStatus treats degraded as serving; only critical is NOT_SERVING.
func servingStatus(st SystemStatus) healthpb.HealthCheckResponse_ServingStatus {
	if st == StatusCritical {
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
	return healthpb.HealthCheckResponse_SERVING
}
