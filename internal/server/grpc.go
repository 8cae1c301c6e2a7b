package server

import (
	"context"
	"net"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/loansight/assistant/internal/observability"
)

// HealthServer serves the standard gRPC health protocol. The overall status
// and one status per dependency are refreshed from the readiness checks.
type HealthServer struct {
	health   *health.Server
	grpc     *grpc.Server
	checks   []observability.DependencyCheck
	interval time.Duration
	logger   zerolog.Logger
}

// NewHealthServer creates a gRPC health server refreshed every interval
func NewHealthServer(checks []observability.DependencyCheck, interval time.Duration) *HealthServer {
	hs := &HealthServer{
		health:   health.NewServer(),
		grpc:     grpc.NewServer(),
		checks:   checks,
		interval: interval,
		logger:   observability.WithComponent("grpc_health"),
	}
	healthpb.RegisterHealthServer(hs.grpc, hs.health)
	return hs
}

// Refresh runs the checks once and publishes the results
func (hs *HealthServer) Refresh(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	results, healthy := observability.RunChecks(ctx, hs.checks)
	for name, st := range results {
		hs.health.SetServingStatus(name, servingStatus(st.Status == "healthy"))
	}
	hs.health.SetServingStatus("", servingStatus(healthy))
}

// Serve refreshes the status until ctx is done and serves on lis until Stop
func (hs *HealthServer) Serve(ctx context.Context, lis net.Listener) error {
	hs.Refresh(ctx)
	go func() {
		ticker := time.NewTicker(hs.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				hs.Refresh(ctx)
			}
		}
	}()

	hs.logger.Info().Str("addr", lis.Addr().String()).Msg("gRPC health server listening")
	return hs.grpc.Serve(lis)
}

// Stop marks everything not serving and stops the gRPC server
func (hs *HealthServer) Stop() {
	hs.health.Shutdown()
	hs.grpc.GracefulStop()
}

// Check answers a health request directly
func (hs *HealthServer) Check(ctx context.Context, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := hs.health.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}

func servingStatus(ok bool) healthpb.HealthCheckResponse_ServingStatus {
	if ok {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}
