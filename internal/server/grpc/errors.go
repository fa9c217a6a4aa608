package grpc

import (
	"context"

	"github.com/dmitrijs2005/pxauth/internal/common"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorDomain is set on the ErrorInfo detail of every pxauth status.
const ErrorDomain = "pxauth"

// codeFor maps an error kind to its gRPC status code.
func codeFor(kind common.Kind) codes.Code {
	switch kind {
	case common.KindInvalidInput, common.KindBadRequest:
		return codes.InvalidArgument
	case common.KindEmailAlreadyExists:
		return codes.AlreadyExists
	case common.KindDatabaseError, common.KindInternalError:
		return codes.Internal
	default:
		return codes.Unauthenticated
	}
}

// toStatus converts err into a gRPC status carrying the kind as an
// ErrorInfo reason. Store and internal failures are logged in full and
// reach the client as "internal error".
func (s *GRPCServer) toStatus(ctx context.Context, err error) error {
	e := common.AsError(err)
	code := codeFor(e.Kind)
	if code == codes.Internal {
		s.logger.Error(ctx, "request failed", "kind", e.Kind, "error", err)
	}

	public := e.Public()
	message := public.Message
	if e.Kind == common.KindTFARequired || e.Kind == common.KindTFARequiredOverEmail {
		message = string(e.Kind)
	}

	st := status.New(code, message)
	detailed, derr := st.WithDetails(&errdetails.ErrorInfo{
		Reason: string(e.Kind),
		Domain: ErrorDomain,
	})
	if derr != nil {
		return st.Err()
	}
	return detailed.Err()
}

// KindFromError recovers the error kind from a status produced by this
// server, or "" when it carries none.
func KindFromError(err error) common.Kind {
	st, ok := status.FromError(err)
	if !ok {
		return ""
	}
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok && info.GetDomain() == ErrorDomain {
			return common.Kind(info.GetReason())
		}
	}
	return ""
}
