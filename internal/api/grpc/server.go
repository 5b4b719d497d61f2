// Package grpcapi serves the gRPC health endpoint used by orchestrators to
// probe the dispatch service.
package grpcapi

import (
	"net"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"emergency-dispatch-service/internal/observability"
	"emergency-dispatch-service/internal/observability/logging"
	"emergency-dispatch-service/internal/observability/metrics"
)

// ServiceName is the health-checked service name.
const ServiceName = "emergency.dispatch.DispatchService"

type Server struct {
	grpc   *grpc.Server
	health *health.Server
	addr   string
	lis    net.Listener
	log    zerolog.Logger
}

// New creates a gRPC server with health checking and reflection. Both the
// overall and the named service start NOT_SERVING.
func New(addr string, m *metrics.Metrics) *Server {
	g := grpc.NewServer(
		grpc.ChainUnaryInterceptor(observability.UnaryServerInterceptor(m)),
		grpc.ChainStreamInterceptor(observability.StreamServerInterceptor(m)),
	)

	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(g, hs)
	hs.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	// Enable gRPC reflection for debugging tools like grpcurl
	reflection.Register(g)

	return &Server{
		grpc:   g,
		health: hs,
		addr:   addr,
		log:    logging.WithComponent("grpc"),
	}
}

// Start binds the listener and serves in a goroutine.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.lis = lis

	go func() {
		s.log.Info().Str("addr", lis.Addr().String()).Msg("gRPC health server started")
		if err := s.grpc.Serve(lis); err != nil {
			s.log.Error().Err(err).Msg("gRPC serve failed")
		}
	}()
	return nil
}

// Addr returns the bound address; valid after Start.
func (s *Server) Addr() string {
	if s.lis == nil {
		return s.addr
	}
	return s.lis.Addr().String()
}

// SetServing flips the reported health of the service.
func (s *Server) SetServing(serving bool) {
	st := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		st = grpc_health_v1.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// Stop reports NOT_SERVING and drains in-flight calls.
func (s *Server) Stop() {
	s.log.Info().Msg("Shutting down gRPC server")
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
