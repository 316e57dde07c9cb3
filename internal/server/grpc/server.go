// Package grpc exposes the standard gRPC health service. Every other method
// registered on the server goes through the access token interceptor.
package grpc

import (
	"context"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/sparkbridge/server/internal/logging"
	"github.com/sparkbridge/server/internal/server/models"
)

// Authenticator verifies access tokens.
type Authenticator interface {
	VerifyAccess(ctx context.Context, token string) (models.TokenPayload, error)
}

// Pinger reports database reachability. *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

const defaultProbeInterval = 10 * time.Second

type Server struct {
	address       string
	auth          Authenticator
	db            Pinger
	health        *health.Server
	probeInterval time.Duration
	logger        logging.Logger
}

func NewServer(address string, auth Authenticator, db Pinger, l logging.Logger) *Server {
	return &Server{
		address:       address,
		auth:          auth,
		db:            db,
		health:        health.NewServer(),
		probeInterval: defaultProbeInterval,
		logger:        l.With("module", "grpc_server"),
	}
}

// Run serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, listen net.Listener) error {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.accessTokenInterceptor))

	healthpb.RegisterHealthServer(srv, s.health)
	reflection.Register(srv)

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	go s.probe(ctx)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil {
		return err
	}
	return nil
}

// probe keeps the overall serving status in step with the database.
func (s *Server) probe(ctx context.Context) {
	ticker := time.NewTicker(s.probeInterval)
	defer ticker.Stop()

	serving := false
	for {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := s.db.PingContext(pingCtx)
		cancel()

		switch {
		case err == nil && !serving:
			s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
			serving = true
		case err != nil && serving:
			s.logger.Warn(ctx, "database ping failed", "error", err)
			s.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
			serving = false
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
