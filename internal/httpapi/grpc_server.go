package httpapi

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"sameieportalen.no/internal/obs"
)

// HealthServer serves the standard gRPC health protocol, driven by a readiness check.
type HealthServer struct {
	srv   *health.Server
	check Checker
}

func NewHealthServer(check Checker) *HealthServer {
	if check == nil {
		check = ReadyCheck{}
	}
	return &HealthServer{srv: health.NewServer(), check: check}
}

// Register attaches the health service to s.
func (h *HealthServer) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.srv)
}

// Update runs the check once and publishes the result for the whole server
// and for the named service.
func (h *HealthServer) Update(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	err := h.check.Check(ctx)
	if err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		obs.Component("grpc").WithError(err).Warn("readiness check failed")
	}
	h.srv.SetServingStatus("", status)
	h.srv.SetServingStatus(serviceName, status)
	obs.SetReady(err == nil)
	return err == nil
}

// Run re-checks every interval until ctx is done, then marks the server as shutting down.
func (h *HealthServer) Run(ctx context.Context, interval time.Duration) {
	h.Update(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.srv.Shutdown()
			return
		case <-ticker.C:
			h.Update(ctx)
		}
	}
}
