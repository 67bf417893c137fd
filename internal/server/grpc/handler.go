package grpc

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/gophauth/internal/account/username"
	"github.com/dmitrijs2005/gophauth/internal/authn"
	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/session"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

func field(in *structpb.Struct, name string) string {
	return in.GetFields()[name].GetStringValue()
}

func reply(values map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(values)
	if err != nil {
		return nil, status.Error(codes.Internal, "internal error")
	}
	return out, nil
}

func (s *GRPCServer) current(ctx context.Context) (*session.Session, error) {
	sess, ok := sessionFrom(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing session")
	}
	return sess, nil
}

func (s *GRPCServer) Ping(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {

	return reply(map[string]any{"status": "OK"})

}

// Register creates an account with a username and a password, and an
// unverified e-mail messenger when one is given.
func (s *GRPCServer) Register(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {

	s.logger.Info(ctx, "Registration request")

	name, pw, email := field(req, "username"), field(req, "password"), field(req, "email")

	sub, err := s.register(ctx, name, pw, email)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	s.logger.Info(ctx, "Registered", "sub", sub)
	return reply(map[string]any{"sub": sub})

}

func (s *GRPCServer) register(ctx context.Context, name, pw, email string) (string, error) {
	u := s.svc.Usernames
	if err := u.Validate(username.Sanitize(name)); err != nil {
		return "", err
	}
	if owner, err := u.Exists(ctx, name); err != nil {
		return "", err
	} else if owner != "" {
		return "", fmt.Errorf("%w: username taken", common.ErrorConflict)
	}
	if err := s.svc.Passwords.Policy().Validate(ctx, pw, name); err != nil {
		return "", err
	}
	if email != "" && s.svc.Emails == nil {
		return "", fmt.Errorf("%w: e-mail is not supported", common.ErrorInvalidInput)
	}

	sub, err := s.svc.Accounts.Create(ctx, nil)
	if err != nil {
		return "", err
	}
	if err := s.populate(ctx, sub, name, pw, email); err != nil {
		s.rollback(ctx, sub)
		return "", err
	}
	return sub, nil
}

func (s *GRPCServer) populate(ctx context.Context, sub, name, pw, email string) error {
	if _, err := s.svc.Usernames.Create(ctx, sub, name); err != nil {
		return err
	}
	if _, err := s.svc.Passwords.Create(ctx, sub, pw, name); err != nil {
		return err
	}
	if email == "" {
		return nil
	}
	id, err := s.svc.Emails.Create(ctx, sub, email)
	if err != nil {
		return err
	}
	return s.svc.Emails.CreateToken(ctx, sub, id)
}

// rollback removes a half created account. Failures are only logged.
func (s *GRPCServer) rollback(ctx context.Context, sub string) {
	if err := s.svc.Passwords.Remove(ctx, sub); err != nil {
		s.logger.Warn(ctx, "rollback password", "sub", sub, "error", err)
	}
	if s.svc.Emails != nil {
		list, err := s.svc.Emails.List(ctx, sub)
		if err != nil {
			s.logger.Warn(ctx, "rollback messengers", "sub", sub, "error", err)
		}
		for _, m := range list {
			if err := s.svc.Emails.Remove(ctx, sub, m.ID); err != nil {
				s.logger.Warn(ctx, "rollback messenger", "sub", sub, "error", err)
			}
		}
	}
	if err := s.svc.Accounts.Remove(ctx, sub); err != nil {
		s.logger.Warn(ctx, "rollback account", "sub", sub, "error", err)
	}
}

// Login authenticates with a username and password, or with a personal
// access token, and opens a session. Accounts with a TOTP credential must
// also send a code.
func (s *GRPCServer) Login(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {

	var (
		cred *authn.Credential
		err  error
	)
	if tok := field(req, "token"); tok != "" {
		cred, err = s.svc.AccessTokens.Authenticate(ctx, tok)
	} else {
		cred, err = s.svc.Passwords.Authenticate(ctx, field(req, "username"), field(req, "password"))
		if err == nil {
			err = s.secondFactor(ctx, cred.Sub, field(req, "username"), field(req, "code"))
		}
	}
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	sess, err := s.svc.Sessions.Create(ctx, cred.Sub, clientMetadata(ctx))
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	token, err := s.svc.Sessions.IssueToken(sess)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	return reply(map[string]any{
		"sub":          sess.Sub,
		"session_id":   sess.ID,
		"access_token": token,
		"expire":       sess.Expire,
	})

}

func (s *GRPCServer) secondFactor(ctx context.Context, sub, name, code string) error {
	if s.svc.TOTP == nil {
		return nil
	}
	n, err := s.svc.TOTP.Count(ctx, sub)
	if err != nil || n == 0 {
		return err
	}
	if code == "" {
		return status.Error(codes.FailedPrecondition, "second factor required")
	}
	cred, err := s.svc.TOTP.Authenticate(ctx, name, code)
	if err != nil {
		return err
	}
	if cred.Sub != sub {
		return common.ErrorUnauthorized
	}
	return nil
}

func (s *GRPCServer) Logout(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {

	sess, err := s.current(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.svc.Sessions.Expire(ctx, sess.Sub, sess.ID); err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return reply(nil)

}

func (s *GRPCServer) Session(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {

	sess, err := s.current(ctx)
	if err != nil {
		return nil, err
	}
	name, err := s.svc.Usernames.Lookup(ctx, sess.Sub)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return reply(map[string]any{
		"sub":        sess.Sub,
		"session_id": sess.ID,
		"expire":     sess.Expire,
		"username":   name,
	})

}

// ChangePassword replaces the password after checking the current one.
func (s *GRPCServer) ChangePassword(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {

	sess, err := s.current(ctx)
	if err != nil {
		return nil, err
	}
	name, err := s.svc.Usernames.Lookup(ctx, sess.Sub)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	cred, err := s.svc.Passwords.Authenticate(ctx, name, field(req, "password"))
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	if cred.Sub != sess.Sub {
		return nil, s.toStatus(ctx, common.ErrorUnauthorized)
	}
	if err := s.svc.Passwords.Update(ctx, sess.Sub, field(req, "new_password"), name); err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return reply(nil)

}

func (s *GRPCServer) CreateAccessToken(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {

	sess, err := s.current(ctx)
	if err != nil {
		return nil, err
	}
	tok, err := s.svc.AccessTokens.Create(ctx, sess.Sub, field(req, "name"))
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return reply(map[string]any{"id": tok.ID, "token": tok.Value})

}
