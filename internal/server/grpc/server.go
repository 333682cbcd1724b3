package grpc

import (
	"context"
	"net"
	"time"

	"github.com/dmitrijs2005/tiergate/internal/logging"
	"github.com/dmitrijs2005/tiergate/internal/rpc"
	"github.com/dmitrijs2005/tiergate/internal/server/auth"
	"github.com/dmitrijs2005/tiergate/internal/server/models"
	"github.com/dmitrijs2005/tiergate/internal/server/services"
	"github.com/dmitrijs2005/tiergate/internal/tier"
	"google.golang.org/grpc"
)

type Registrar interface {
	Register(ctx context.Context, installationID string) (*services.Registration, error)
}

type EngagementTracker interface {
	RecordHeartbeat(ctx context.Context, userID string) (*models.UserRecord, error)
}

type ProfileCompleter interface {
	Complete(ctx context.Context, userID string) (*models.UserRecord, error)
}

type AccountLinker interface {
	LinkAccount(ctx context.Context, userID, credential string) (*models.UserRecord, error)
}

type ReferralAttributor interface {
	AttributeReferral(ctx context.Context, code, newUserID string) (*services.Attribution, error)
}

type StatusReader interface {
	Status(ctx context.Context, userID string) (*services.Status, error)
	CurrentTier(ctx context.Context, userID string) (tier.Tier, error)
}

// Services are the operations exposed over gRPC.
type Services struct {
	Registrar  Registrar
	Engagement EngagementTracker
	Profiles   ProfileCompleter
	Accounts   AccountLinker
	Referrals  ReferralAttributor
	Status     StatusReader
}

type GRPCServer struct {
	address       string
	svc           Services
	logger        logging.Logger
	jwtSecret     []byte
	tokenValidity time.Duration
	// authEvents receives events published by the identity provider. Nil
	// disables PublishAuthEvent.
	authEvents chan<- auth.Event
}

func NewGRPCServer(a string, l logging.Logger, svc Services, secretKey string, tokenValidity time.Duration, authEvents chan<- auth.Event) *GRPCServer {
	return &GRPCServer{
		address:       a,
		logger:        l.With("module", "grpc_server"),
		svc:           svc,
		jwtSecret:     []byte(secretKey),
		tokenValidity: tokenValidity,
		authEvents:    authEvents,
	}
}

// NewServer builds the grpc.Server with the service and interceptors
// registered.
func (s *GRPCServer) NewServer() *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor, s.accessTokenInterceptor))
	rpc.RegisterTierServiceServer(srv, s)
	return srv
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.Serve(ctx, listen)
}

// Serve accepts connections on listen until ctx is done.
func (s *GRPCServer) Serve(ctx context.Context, listen net.Listener) error {
	srv := s.NewServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}
