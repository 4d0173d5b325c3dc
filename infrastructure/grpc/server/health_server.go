package server

import (
	"context"
	"log/slog"
	"net"
	"runtime/debug"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// ChatService is the name probes use to ask about the chat endpoint itself.
const ChatService = "groupchat.Chat"

// HealthServer reports readiness over the standard gRPC health protocol.
// Both the overall status ("") and ChatService move together.
type HealthServer struct {
	log    *slog.Logger
	server *grpc.Server
	health *health.Server
}

func NewHealthServer(log *slog.Logger) *HealthServer {
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(unaryLogger(log)))
	h := health.NewServer()
	healthpb.RegisterHealthServer(s, h)

	hs := &HealthServer{log: log, server: s, health: h}
	hs.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return hs
}

// Serve blocks until the listener fails or Stop is called.
func (s *HealthServer) Serve(lis net.Listener) error {
	s.log.Info("Starting gRPC health server", "address", lis.Addr().String())
	if err := s.server.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return err
	}
	return nil
}

func (s *HealthServer) SetServing() {
	s.set(healthpb.HealthCheckResponse_SERVING)
}

func (s *HealthServer) SetNotServing() {
	s.set(healthpb.HealthCheckResponse_NOT_SERVING)
}

// Stop marks everything NOT_SERVING, ends watch streams and drains calls.
func (s *HealthServer) Stop() {
	s.health.Shutdown()
	s.server.GracefulStop()
}

func (s *HealthServer) set(st healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ChatService, st)
}

func unaryLogger(log *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler) (resp any, err error) {
		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				log.Error("gRPC panic", "method", info.FullMethod, "panic", r, "stack", string(debug.Stack()))
				err = status.Error(codes.Internal, "internal server error")
			}
			log.Debug("gRPC call", "method", info.FullMethod,
				"duration", time.Since(start), "code", status.Code(err).String())
		}()
		return handler(ctx, req)
	}
}
