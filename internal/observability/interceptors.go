// Package observability provides the admin HTTP server and gRPC interceptors
// for metrics and logging.
package observability

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"emergency-dispatch-service/internal/observability/logging"
	"emergency-dispatch-service/internal/observability/metrics"
)

// serviceRequest matches health check requests, which name the service an
// orchestrator is asking about.
type serviceRequest interface {
	GetService() string
}

func serviceOf(msg any) string {
	if r, ok := msg.(serviceRequest); ok {
		return r.GetService()
	}
	return ""
}

// UnaryServerInterceptor counts and times health checks and other unary
// calls, logging each one under the grpc component.
func UnaryServerInterceptor(m *metrics.Metrics) grpc.UnaryServerInterceptor {
	logger := logging.WithComponent("grpc")
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		observeCall(ctx, logger, m, info.FullMethod, serviceOf(req), "unary", start, err)
		return resp, err
	}
}

// StreamServerInterceptor does the same for streams such as health Watch.
// The watched service is taken from the first message the client sends.
func StreamServerInterceptor(m *metrics.Metrics) grpc.StreamServerInterceptor {
	logger := logging.WithComponent("grpc")
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		wrapped := &observedStream{ServerStream: ss}
		err := handler(srv, wrapped)
		observeCall(ss.Context(), logger, m, info.FullMethod, wrapped.service, "stream", start, err)
		return err
	}
}

type observedStream struct {
	grpc.ServerStream
	service string
}

func (s *observedStream) RecvMsg(msg any) error {
	err := s.ServerStream.RecvMsg(msg)
	if err == nil && s.service == "" {
		s.service = serviceOf(msg)
	}
	return err
}

func observeCall(ctx context.Context, logger zerolog.Logger, m *metrics.Metrics, method, service, kind string, start time.Time, err error) {
	elapsed := time.Since(start)
	code := status.Code(err)
	m.RecordGRPCCall(method, code.String(), elapsed.Seconds())

	ev := logger.WithLevel(levelFor(code)).
		Str("method", method).
		Str("kind", kind).
		Str("code", code.String()).
		Dur("duration", elapsed)
	if service != "" {
		ev = ev.Str("service", service)
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		ev = ev.Str("peer", p.Addr.String())
	}
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Msg("gRPC call finished")
}

// levelFor keeps routine health polling at debug and surfaces server
// faults.
func levelFor(code codes.Code) zerolog.Level {
	switch code {
	case codes.OK, codes.Canceled:
		return zerolog.DebugLevel
	case codes.Internal, codes.Unknown, codes.DataLoss, codes.Unavailable:
		return zerolog.ErrorLevel
	default:
		return zerolog.WarnLevel
	}
}
