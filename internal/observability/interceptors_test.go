package observability

import (
	"context"
	"net"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"emergency-dispatch-service/internal/observability/metrics"
)

const (
	checkMethod = "/grpc.health.v1.Health/Check"
	watchMethod = "/grpc.health.v1.Health/Watch"
)

func TestUnaryServerInterceptor_RecordsCodes(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	intercept := UnaryServerInterceptor(m)
	info := &grpc.UnaryServerInfo{FullMethod: checkMethod}

	ctx := peer.NewContext(context.Background(), &peer.Peer{
		Addr: &net.TCPAddr{IP: net.IPv4(10, 0, 0, 7), Port: 51234},
	})
	req := &grpc_health_v1.HealthCheckRequest{Service: "emergency.dispatch.DispatchService"}

	tests := []struct {
		name string
		err  error
	}{
		{"serving", nil},
		{"unknown service", status.Error(codes.NotFound, "unknown service")},
		{"serving again", nil},
	}

	for _, tt := range tests {
		resp, err := intercept(ctx, req, info, func(ctx context.Context, req any) (any, error) {
			if tt.err != nil {
				return nil, tt.err
			}
			return &grpc_health_v1.HealthCheckResponse{Status: grpc_health_v1.HealthCheckResponse_SERVING}, nil
		})
		if err != tt.err {
			t.Errorf("%s: expected handler error to pass through, got %v", tt.name, err)
		}
		if tt.err == nil && resp == nil {
			t.Errorf("%s: expected handler response to pass through", tt.name)
		}
	}

	if got := testutil.ToFloat64(m.GRPCRequests.WithLabelValues(checkMethod, "OK")); got != 2 {
		t.Errorf("expected 2 OK checks, got %v", got)
	}
	if got := testutil.ToFloat64(m.GRPCRequests.WithLabelValues(checkMethod, "NotFound")); got != 1 {
		t.Errorf("expected 1 NotFound check, got %v", got)
	}
}

type fakeServerStream struct {
	grpc.ServerStream
	ctx     context.Context
	service string
}

func (s *fakeServerStream) Context() context.Context { return s.ctx }

func (s *fakeServerStream) RecvMsg(msg any) error {
	if r, ok := msg.(*grpc_health_v1.HealthCheckRequest); ok {
		r.Service = s.service
	}
	return nil
}

func TestStreamServerInterceptor_CapturesWatchedService(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	intercept := StreamServerInterceptor(m)
	ss := &fakeServerStream{ctx: context.Background(), service: "emergency.dispatch.DispatchService"}

	var seen grpc.ServerStream
	err := intercept(nil, ss, &grpc.StreamServerInfo{FullMethod: watchMethod, IsServerStream: true},
		func(srv any, stream grpc.ServerStream) error {
			seen = stream
			var req grpc_health_v1.HealthCheckRequest
			if err := stream.RecvMsg(&req); err != nil {
				return err
			}
			return status.Error(codes.Canceled, "watcher went away")
		})
	if status.Code(err) != codes.Canceled {
		t.Fatalf("expected Canceled to pass through, got %v", err)
	}

	wrapped, ok := seen.(*observedStream)
	if !ok {
		t.Fatalf("expected handler to receive the observed stream, got %T", seen)
	}
	if wrapped.service != "emergency.dispatch.DispatchService" {
		t.Errorf("expected watched service to be captured, got %q", wrapped.service)
	}
	if got := testutil.ToFloat64(m.GRPCRequests.WithLabelValues(watchMethod, "Canceled")); got != 1 {
		t.Errorf("expected 1 canceled watch, got %v", got)
	}
}

func TestLevelFor(t *testing.T) {
	tests := []struct {
		code codes.Code
		want zerolog.Level
	}{
		{codes.OK, zerolog.DebugLevel},
		{codes.Canceled, zerolog.DebugLevel},
		{codes.NotFound, zerolog.WarnLevel},
		{codes.DeadlineExceeded, zerolog.WarnLevel},
		{codes.Internal, zerolog.ErrorLevel},
		{codes.Unavailable, zerolog.ErrorLevel},
	}
	for _, tt := range tests {
		if got := levelFor(tt.code); got != tt.want {
			t.Errorf("levelFor(%v) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestServiceOf(t *testing.T) {
	if got := serviceOf(&grpc_health_v1.HealthCheckRequest{Service: "svc"}); got != "svc" {
		t.Errorf("expected svc, got %q", got)
	}
	if got := serviceOf("not a request"); got != "" {
		t.Errorf("expected empty service, got %q", got)
	}
}
