package grpc

import (
	"context"

	"github.com/dmitrijs2005/pxauth/internal/server/services"
	"google.golang.org/grpc"
)

const serviceName = "pxauth.AuthService"

// Full method names, as seen by interceptors and clients.
const (
	MethodSignUp        = "/" + serviceName + "/SignUp"
	MethodSignIn        = "/" + serviceName + "/SignIn"
	MethodSignInByEmail = "/" + serviceName + "/SignInByEmail"
	MethodConfirmCode   = "/" + serviceName + "/ConfirmCode"
	MethodConfirmToken  = "/" + serviceName + "/ConfirmToken"
	MethodStatus        = "/" + serviceName + "/Status"
)

type StatusRequest struct{}

// ConfirmReply flattens a services.ConfirmResponse; Type is "SignUp" or
// "SignIn".
type ConfirmReply struct {
	Type string `json:"type"`
	services.ConfirmedSession
}

// authServer is the handler set registered under serviceName.
type authServer interface {
	SignUp(context.Context, *services.SignUpRequest) (*services.SignUpResponse, error)
	SignIn(context.Context, *services.SignInRequest) (*services.SignInResponse, error)
	SignInByEmail(context.Context, *services.SignInRequest) (*services.EmailChallengeResponse, error)
	ConfirmCode(context.Context, *services.ConfirmCodeRequest) (*ConfirmReply, error)
	ConfirmToken(context.Context, *services.ConfirmTokenRequest) (*ConfirmReply, error)
	Status(context.Context, *StatusRequest) (*services.StatusResponse, error)
}

var authServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*authServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("SignUp", authServer.SignUp),
		unary("SignIn", authServer.SignIn),
		unary("SignInByEmail", authServer.SignInByEmail),
		unary("ConfirmCode", authServer.ConfirmCode),
		unary("ConfirmToken", authServer.ConfirmToken),
		unary("Status", authServer.Status),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "pxauth/auth",
}

// unary adapts a typed handler to grpc.MethodDesc the way generated code
// does: decode, then run through the interceptor chain if there is one.
func unary[Req, Resp any](name string, call func(authServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(authServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/" + name}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(authServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}
