// Package grpc exposes the authentication flows as the pxauth.AuthService
// gRPC service, using a JSON codec instead of generated protobuf stubs.
package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/pxauth/internal/logging"
	"github.com/dmitrijs2005/pxauth/internal/server/models"
	"github.com/dmitrijs2005/pxauth/internal/server/services"
	"google.golang.org/grpc"
)

// AuthAPI is the part of services.AuthService the transport calls.
type AuthAPI interface {
	SignUp(ctx context.Context, req services.SignUpRequest, device models.DeviceInfo) (*services.SignUpResponse, error)
	SignIn(ctx context.Context, req services.SignInRequest, device models.DeviceInfo) (*services.SignInResponse, error)
	SignInByEmail(ctx context.Context, req services.SignInRequest, device models.DeviceInfo) (*services.EmailChallengeResponse, error)
	ConfirmCode(ctx context.Context, accountID int64, req services.ConfirmCodeRequest, device models.DeviceInfo) (services.ConfirmResponse, error)
	ConfirmToken(ctx context.Context, accountID int64, req services.ConfirmTokenRequest, device models.DeviceInfo) (services.ConfirmResponse, error)
	ResolveSession(ctx context.Context, accountID int64, token []byte) (*models.Account, error)
	Status(ctx context.Context, account *models.Account) *services.StatusResponse
}

type GRPCServer struct {
	address string
	auth    AuthAPI
	logger  logging.Logger
}

func NewGRPCServer(address string, l logging.Logger, auth AuthAPI) *GRPCServer {
	return &GRPCServer{
		address: address,
		logger:  l.With("module", "grpc_server"),
		auth:    auth,
	}
}

// Run listens on the configured address and serves until ctx is cancelled.
func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is cancelled, then stops
// gracefully.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := grpc.NewServer(
		grpc.ForceServerCodec(jsonCodec{}),
		grpc.ChainUnaryInterceptor(s.loggingInterceptor, s.sessionInterceptor),
	)
	srv.RegisterService(&authServiceDesc, s)

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		s.logger.Info(context.Background(), "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	if err := srv.Serve(lis); err != nil {
		return err
	}
	<-stopped
	return nil
}
