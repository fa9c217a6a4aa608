package client

import (
	"context"

	"github.com/dmitrijs2005/pxauth/internal/server/services"

	gs "github.com/dmitrijs2005/pxauth/internal/server/grpc"
)

// Client is the pxauth API as seen by pxctl. Calls that act on an existing
// account take its id; Status also takes the hex session token.
type Client interface {
	Close() error
	SignUp(ctx context.Context, req services.SignUpRequest) (*services.SignUpResponse, error)
	SignIn(ctx context.Context, req services.SignInRequest) (*services.SignInResponse, error)
	SignInByEmail(ctx context.Context, req services.SignInRequest) (*services.EmailChallengeResponse, error)
	ConfirmCode(ctx context.Context, accountID int64, req services.ConfirmCodeRequest) (*gs.ConfirmReply, error)
	Status(ctx context.Context, accountID int64, token string) (*services.StatusResponse, error)
}
