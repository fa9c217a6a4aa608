package grpc

import (
	"context"

	"github.com/dmitrijs2005/pxauth/internal/common"
	"github.com/dmitrijs2005/pxauth/internal/server/services"
)

func (s *GRPCServer) SignUp(ctx context.Context, req *services.SignUpRequest) (*services.SignUpResponse, error) {
	resp, err := s.auth.SignUp(ctx, *req, deviceFromContext(ctx))
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	s.logger.Info(ctx, "Registered", "account_id", resp.AccountID)
	return resp, nil
}

func (s *GRPCServer) SignIn(ctx context.Context, req *services.SignInRequest) (*services.SignInResponse, error) {
	resp, err := s.auth.SignIn(ctx, *req, deviceFromContext(ctx))
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return resp, nil
}

func (s *GRPCServer) SignInByEmail(ctx context.Context, req *services.SignInRequest) (*services.EmailChallengeResponse, error) {
	resp, err := s.auth.SignInByEmail(ctx, *req, deviceFromContext(ctx))
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return resp, nil
}

func (s *GRPCServer) ConfirmCode(ctx context.Context, req *services.ConfirmCodeRequest) (*ConfirmReply, error) {
	accountID, err := accountIDFromContext(ctx)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	resp, err := s.auth.ConfirmCode(ctx, accountID, *req, deviceFromContext(ctx))
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return confirmReply(resp), nil
}

func (s *GRPCServer) ConfirmToken(ctx context.Context, req *services.ConfirmTokenRequest) (*ConfirmReply, error) {
	accountID, err := accountIDFromContext(ctx)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	resp, err := s.auth.ConfirmToken(ctx, accountID, *req, deviceFromContext(ctx))
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return confirmReply(resp), nil
}

func (s *GRPCServer) Status(ctx context.Context, _ *StatusRequest) (*services.StatusResponse, error) {
	account, ok := accountFromContext(ctx)
	if !ok {
		return nil, s.toStatus(ctx, common.NewError(common.KindUnauthorized))
	}
	return s.auth.Status(ctx, account), nil
}

func confirmReply(resp services.ConfirmResponse) *ConfirmReply {
	kind := "SignIn"
	if _, ok := resp.(services.SignUpConfirmed); ok {
		kind = "SignUp"
	}
	return &ConfirmReply{Type: kind, ConfirmedSession: resp.Session()}
}
