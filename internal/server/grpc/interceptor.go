package grpc

import (
	"context"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/session"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type ctxKey string

const sessionKey ctxKey = "session"

// protected lists the methods that need a live session.
var protected = map[string]bool{
	FullMethod("Logout"):            true,
	FullMethod("Session"):           true,
	FullMethod("ChangePassword"):    true,
	FullMethod("CreateAccessToken"): true,
}

func firstValue(ctx context.Context, key string) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(key); len(values) > 0 {
			return values[0]
		}
	}
	return ""
}

// clientMetadata is the session metadata recorded at login and compared on
// every protected call.
func clientMetadata(ctx context.Context) map[string]string {
	md := map[string]string{}
	if ua := firstValue(ctx, "user-agent"); ua != "" {
		md["userAgent"] = ua
	}
	return md
}

func sessionFrom(ctx context.Context) (*session.Session, bool) {
	sess, ok := ctx.Value(sessionKey).(*session.Session)
	return sess, ok
}

func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {

	if protected[info.FullMethod] {

		accessToken := firstValue(ctx, common.AccessTokenHeaderName)
		if len(accessToken) == 0 {
			return nil, status.Error(codes.Unauthenticated, "missing token")
		}

		sess, err := s.svc.Sessions.Authorize(ctx, accessToken)
		if err != nil {
			return nil, s.toStatus(ctx, err)
		}

		sess, err = s.svc.Sessions.Check(ctx, sess.ID, clientMetadata(ctx))
		if err != nil {
			return nil, s.toStatus(ctx, err)
		}

		ctx = context.WithValue(ctx, sessionKey, sess)

	}

	return handler(ctx, req)
}
