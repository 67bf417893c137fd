package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/gophauth/internal/account"
	"github.com/dmitrijs2005/gophauth/internal/account/username"
	"github.com/dmitrijs2005/gophauth/internal/authn/accesstoken"
	"github.com/dmitrijs2005/gophauth/internal/authn/password"
	"github.com/dmitrijs2005/gophauth/internal/authn/totp"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/messenger"
	"github.com/dmitrijs2005/gophauth/internal/session"
	"google.golang.org/grpc"
)

// Services are the features exposed over gRPC. TOTP and Emails may be nil.
type Services struct {
	Accounts     *account.Service
	Usernames    *username.Service
	Passwords    *password.Service
	TOTP         *totp.Service
	AccessTokens *accesstoken.Service
	Emails       *messenger.Service
	Sessions     *session.Service
}

type GRPCServer struct {
	address string
	svc     Services
	logger  logging.Logger
}

func NewGRPCServer(a string, l logging.Logger, svc Services) *GRPCServer {
	if l == nil {
		l = logging.Nop()
	}
	return &GRPCServer{
		address: a,
		logger:  l.With("module", "grpc_server"),
		svc:     svc,
	}
}

// NewServer returns a grpc.Server with the auth service and the session
// interceptor registered.
func (s *GRPCServer) NewServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(s.accessTokenInterceptor))
	srv := grpc.NewServer(opts...)
	srv.RegisterService(&AuthServiceDesc, s)
	return srv
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.Serve(ctx, listen)
}

// Serve accepts connections on l until ctx is done.
func (s *GRPCServer) Serve(ctx context.Context, l net.Listener) error {
	srv := s.NewServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", l.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(l); err != nil {
		return err
	}

	return nil
}
