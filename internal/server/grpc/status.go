package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// codeOf maps an error kind to its gRPC code.
func codeOf(k common.Kind) codes.Code {
	switch k {
	case common.KindInvalidInput:
		return codes.InvalidArgument
	case common.KindUnauthorized, common.KindSignatureInvalid:
		return codes.Unauthenticated
	case common.KindForbidden:
		return codes.PermissionDenied
	case common.KindConflict:
		return codes.AlreadyExists
	case common.KindNotFound:
		return codes.NotFound
	}
	return codes.Internal
}

// toStatus converts a service error into a gRPC status. Input and conflict
// errors keep their detail; authentication failures and internal errors do
// not.
func (s *GRPCServer) toStatus(ctx context.Context, err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return status.FromContextError(err).Err()
	}
	k := common.KindOf(err)
	c := codeOf(k)
	switch c {
	case codes.InvalidArgument, codes.AlreadyExists:
		return status.Error(c, err.Error())
	case codes.Internal:
		s.logger.Error(ctx, "request failed", "error", err)
		return status.Error(c, "internal error")
	}
	return status.Error(c, k.String())
}
