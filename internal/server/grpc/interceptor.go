package grpc

import (
	"context"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/pxauth/internal/common"
	"github.com/dmitrijs2005/pxauth/internal/netx"
	"github.com/dmitrijs2005/pxauth/internal/server/models"
	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

type ctxKey string

const accountKey ctxKey = "account"

const (
	requestIDHeader     = "x-request-id"
	userAgentHeader     = "user-agent"
	forwardedForHeader  = "x-forwarded-for"
	maxUserAgentRunes   = 255
	grpcUserAgentSuffix = " grpc-go/"
)

// authenticatedMethods need a resolved session before the handler runs.
var authenticatedMethods = map[string]bool{
	MethodStatus: true,
}

// loggingInterceptor tags every call with a request id, echoes it back in
// the response header and logs the outcome.
func (s *GRPCServer) loggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	id := firstMetadata(ctx, requestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	_ = grpc.SetHeader(ctx, metadata.Pairs(requestIDHeader, id))

	log := s.logger.With("request_id", id, "method", info.FullMethod)
	start := time.Now()

	resp, err := handler(ctx, req)

	if err != nil {
		log.Info(ctx, "request failed", "code", status.Code(err).String(), "duration", time.Since(start))
	} else {
		log.Debug(ctx, "request served", "duration", time.Since(start))
	}
	return resp, err
}

// sessionInterceptor resolves x-user-id and x-auth-token into an account
// for methods listed in authenticatedMethods.
func (s *GRPCServer) sessionInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if !authenticatedMethods[info.FullMethod] {
		return handler(ctx, req)
	}

	accountID, err := accountIDFromContext(ctx)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	token, err := hex.DecodeString(firstMetadata(ctx, common.AuthTokenHeaderName))
	if err != nil || len(token) == 0 {
		return nil, s.toStatus(ctx, common.NewError(common.KindUnauthorized))
	}

	account, err := s.auth.ResolveSession(ctx, accountID, token)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	return handler(context.WithValue(ctx, accountKey, account), req)
}

func accountFromContext(ctx context.Context) (*models.Account, bool) {
	a, ok := ctx.Value(accountKey).(*models.Account)
	return a, ok
}

// accountIDFromContext parses the x-user-id metadata value.
func accountIDFromContext(ctx context.Context) (int64, error) {
	raw := firstMetadata(ctx, common.UserIDHeaderName)
	if raw == "" {
		return 0, common.NewError(common.KindUnauthorized)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, common.NewError(common.KindBadRequest)
	}
	return id, nil
}

// deviceFromContext builds the device description stored with sessions and
// confirmations from the user agent and the client address.
func deviceFromContext(ctx context.Context) models.DeviceInfo {
	ua := firstMetadata(ctx, userAgentHeader)
	// grpc-go appends its own version to custom user agents.
	if i := strings.Index(ua, grpcUserAgentSuffix); i > 0 {
		ua = ua[:i]
	}

	var peerAddr string
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		peerAddr = p.Addr.String()
	}

	return models.NewDeviceInfo(
		netx.CleanDeviceString(ua, maxUserAgentRunes),
		netx.ClientAddress(peerAddr, firstMetadata(ctx, forwardedForHeader)),
	)
}

func firstMetadata(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if values := md.Get(key); len(values) > 0 {
		return strings.TrimSpace(values[0])
	}
	return ""
}
