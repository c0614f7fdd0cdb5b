package httpapi

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"folio.org/internal/obs"
)

// GRPCServer answers grpc.health.v1 checks from the same readiness check
// that backs /readyz.
type GRPCServer struct {
	healthpb.UnimplementedHealthServer

	readiness readinessChecker
	version   string
}

// NewGRPCServer creates the gRPC service wrapper.
func NewGRPCServer(r readinessChecker, version string) *GRPCServer {
	if r == nil {
		r = ReadyCheck{}
	}
	return &GRPCServer{
		readiness: r,
		version:   version,
	}
}

// Register attaches the health service to srv.
func (s *GRPCServer) Register(srv *grpc.Server) {
	healthpb.RegisterHealthServer(srv, s)
}

// Check evaluates readiness. The empty service name and serviceName are
// known; anything else is NotFound as the health protocol requires.
func (s *GRPCServer) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	if name := req.GetService(); name != "" && name != serviceName {
		return nil, status.Errorf(codes.NotFound, "unknown service %q", name)
	}
	if err := s.readiness.Check(ctx); err != nil {
		obs.SetReady(false)
		l := obs.Component("grpc")
		l.Warn().Err(err).Msg("readiness check failed")
		return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}, nil
	}
	obs.SetReady(true)
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
}

// UnaryLogger logs every unary call with its code and latency.
func UnaryLogger() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		l := obs.Component("grpc")
		e := l.Debug()
		if err != nil {
			e = l.Warn().Err(err)
		}
		e.Str("method", info.FullMethod).
			Str("code", status.Code(err).String()).
			Float64("duration_ms", float64(time.Since(start).Microseconds())/1000).
			Msg("rpc_complete")
		return resp, err
	}
}
