package grpc

import (
	"context"
	"strconv"

	"github.com/dmitrijs2005/pxauth/internal/common"
	"github.com/dmitrijs2005/pxauth/internal/server/services"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// Client calls pxauth.AuthService over an existing connection.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func invoke[Req, Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, req *Req, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append(opts, grpc.CallContentSubtype(codecName))
	if err := cc.Invoke(ctx, method, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// WithAccount attaches the x-user-id header, and x-auth-token when token is
// not empty, to outgoing calls made with ctx.
func WithAccount(ctx context.Context, accountID int64, tokenHex string) context.Context {
	kv := []string{common.UserIDHeaderName, strconv.FormatInt(accountID, 10)}
	if tokenHex != "" {
		kv = append(kv, common.AuthTokenHeaderName, tokenHex)
	}
	return metadata.AppendToOutgoingContext(ctx, kv...)
}

func (c *Client) SignUp(ctx context.Context, req services.SignUpRequest, opts ...grpc.CallOption) (*services.SignUpResponse, error) {
	return invoke[services.SignUpRequest, services.SignUpResponse](ctx, c.cc, MethodSignUp, &req, opts)
}

func (c *Client) SignIn(ctx context.Context, req services.SignInRequest, opts ...grpc.CallOption) (*services.SignInResponse, error) {
	return invoke[services.SignInRequest, services.SignInResponse](ctx, c.cc, MethodSignIn, &req, opts)
}

func (c *Client) SignInByEmail(ctx context.Context, req services.SignInRequest, opts ...grpc.CallOption) (*services.EmailChallengeResponse, error) {
	return invoke[services.SignInRequest, services.EmailChallengeResponse](ctx, c.cc, MethodSignInByEmail, &req, opts)
}

func (c *Client) ConfirmCode(ctx context.Context, req services.ConfirmCodeRequest, opts ...grpc.CallOption) (*ConfirmReply, error) {
	return invoke[services.ConfirmCodeRequest, ConfirmReply](ctx, c.cc, MethodConfirmCode, &req, opts)
}

func (c *Client) ConfirmToken(ctx context.Context, req services.ConfirmTokenRequest, opts ...grpc.CallOption) (*ConfirmReply, error) {
	return invoke[services.ConfirmTokenRequest, ConfirmReply](ctx, c.cc, MethodConfirmToken, &req, opts)
}

func (c *Client) Status(ctx context.Context, opts ...grpc.CallOption) (*services.StatusResponse, error) {
	return invoke[StatusRequest, services.StatusResponse](ctx, c.cc, MethodStatus, &StatusRequest{}, opts)
}
