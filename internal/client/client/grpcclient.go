package client

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/pxauth/internal/common"
	"github.com/dmitrijs2005/pxauth/internal/server/services"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	gs "github.com/dmitrijs2005/pxauth/internal/server/grpc"
)

// userAgent becomes the device string the server records for our sessions.
const userAgent = "pxctl"

// authAPI is the subset of gs.Client used here; tests substitute a fake.
type authAPI interface {
	SignUp(ctx context.Context, req services.SignUpRequest, opts ...grpc.CallOption) (*services.SignUpResponse, error)
	SignIn(ctx context.Context, req services.SignInRequest, opts ...grpc.CallOption) (*services.SignInResponse, error)
	SignInByEmail(ctx context.Context, req services.SignInRequest, opts ...grpc.CallOption) (*services.EmailChallengeResponse, error)
	ConfirmCode(ctx context.Context, req services.ConfirmCodeRequest, opts ...grpc.CallOption) (*gs.ConfirmReply, error)
	Status(ctx context.Context, opts ...grpc.CallOption) (*services.StatusResponse, error)
}

type GRPCClient struct {
	endpointURL string
	conn        *grpc.ClientConn
	api         authAPI
}

func NewPxAuthClient(endpointURL string) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL}
	if err := c.InitGRPCClient(); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *GRPCClient) InitGRPCClient() error {
	conn, err := grpc.NewClient(s.endpointURL,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUserAgent(userAgent),
	)
	if err != nil {
		return err
	}
	s.conn = conn
	s.api = gs.NewClient(conn)
	return nil
}

func (s *GRPCClient) SignUp(ctx context.Context, req services.SignUpRequest) (*services.SignUpResponse, error) {
	resp, err := s.api.SignUp(ctx, req)
	if err != nil {
		return nil, mapError(err)
	}
	return resp, nil
}

func (s *GRPCClient) SignIn(ctx context.Context, req services.SignInRequest) (*services.SignInResponse, error) {
	resp, err := s.api.SignIn(ctx, req)
	if err != nil {
		return nil, mapError(err)
	}
	return resp, nil
}

func (s *GRPCClient) SignInByEmail(ctx context.Context, req services.SignInRequest) (*services.EmailChallengeResponse, error) {
	resp, err := s.api.SignInByEmail(ctx, req)
	if err != nil {
		return nil, mapError(err)
	}
	return resp, nil
}

func (s *GRPCClient) ConfirmCode(ctx context.Context, accountID int64, req services.ConfirmCodeRequest) (*gs.ConfirmReply, error) {
	resp, err := s.api.ConfirmCode(gs.WithAccount(ctx, accountID, ""), req)
	if err != nil {
		return nil, mapError(err)
	}
	return resp, nil
}

func (s *GRPCClient) Status(ctx context.Context, accountID int64, token string) (*services.StatusResponse, error) {
	resp, err := s.api.Status(gs.WithAccount(ctx, accountID, token))
	if err != nil {
		return nil, mapError(err)
	}
	return resp, nil
}

func (s *GRPCClient) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// mapError turns transport failures into ErrUnavailable and server statuses
// back into *common.Error so callers can branch on the kind.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrUnavailable
	}

	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded:
		return ErrUnavailable
	}

	kind := gs.KindFromError(err)
	if kind == "" {
		kind = common.KindInternalError
	}
	e := common.NewError(kind)
	e.Message = st.Message()
	return e
}
