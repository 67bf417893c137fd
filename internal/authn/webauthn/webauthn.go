// Package webauthn is the passkey credential. A registered credential is
// stored as the JSON of the library credential, and every registration or
// login ceremony keeps its session data in a one-time token row keyed by
// the challenge.
package webauthn

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/authn"
	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/cryptox"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/notify"
	"github.com/dmitrijs2005/gophauth/internal/store"
	"github.com/go-webauthn/webauthn/protocol"
	gowebauthn "github.com/go-webauthn/webauthn/webauthn"
)

const (
	ID = "webauthn"

	NotifyCreate = "authn-webauthn-create"

	DefaultChallengeTTL = 5 * time.Minute
)

type Options struct {
	RPID          string
	RPDisplayName string
	RPOrigins     []string
	// ChallengeTTL bounds how long a ceremony may stay unfinished.
	ChallengeTTL time.Duration
}

// user adapts a subject and its stored credentials to the library.
type user struct {
	id          []byte
	name        string
	credentials []gowebauthn.Credential
}

func (u *user) WebAuthnID() []byte                           { return u.id }
func (u *user) WebAuthnName() string                         { return u.name }
func (u *user) WebAuthnDisplayName() string                  { return u.name }
func (u *user) WebAuthnCredentials() []gowebauthn.Credential { return u.credentials }

// challenge is the token descriptor. The stored value is session data and
// the input is the challenge echoed in the client data.
type challenge struct {
	authn.Base
}

func (challenge) Create(context.Context) (string, error) {
	return "", fmt.Errorf("%w: challenges are created by a ceremony", common.ErrorInvalidInput)
}

func (challenge) Verify(_ context.Context, input, stored string, _ store.Row) (authn.Result, error) {
	var session gowebauthn.SessionData
	if err := json.Unmarshal([]byte(stored), &session); err != nil {
		return authn.Result{}, err
	}
	return authn.Result{Matched: cryptox.SafeEqualString(input, session.Challenge)}, nil
}

// assertion is the input handed to the secret descriptor: the consumed
// login session and the raw client response.
type assertion struct {
	Session  json.RawMessage `json:"session"`
	Response json.RawMessage `json:"response"`
}

type credential struct {
	authn.Base
	web    *gowebauthn.WebAuthn
	logger logging.Logger
}

func (credential) Create(context.Context) (string, error) {
	return "", fmt.Errorf("%w: passkeys are created by a ceremony", common.ErrorInvalidInput)
}

// Verify validates the assertion against one stored credential. A match
// reports the credential with its new sign counter as the update. A counter
// that did not advance marks a cloned authenticator and is no match.
func (c credential) Verify(ctx context.Context, input, stored string, row store.Row) (authn.Result, error) {
	var in assertion
	if err := json.Unmarshal([]byte(input), &in); err != nil {
		return authn.Result{}, err
	}
	var cred gowebauthn.Credential
	if err := json.Unmarshal([]byte(stored), &cred); err != nil {
		return authn.Result{}, err
	}
	parsed, err := protocol.ParseCredentialRequestResponseBody(bytes.NewReader(in.Response))
	if err != nil {
		return authn.Result{}, err
	}
	if !bytes.Equal(parsed.RawID, cred.ID) {
		return authn.Result{}, nil
	}
	var session gowebauthn.SessionData
	if err := json.Unmarshal(in.Session, &session); err != nil {
		return authn.Result{}, err
	}

	u := &user{id: []byte(row.String("sub")), name: row.String("sub"), credentials: []gowebauthn.Credential{cred}}
	validated, err := c.web.ValidateLogin(u, session, parsed)
	if err != nil {
		return authn.Result{}, err
	}
	if validated.Authenticator.CloneWarning {
		c.logger.Warn(ctx, "passkey sign counter did not advance", "sub", row.String("sub"), "id", row.String("id"),
			"stored", cred.Authenticator.SignCount, "received", parsed.Response.AuthenticatorData.Counter)
		return authn.Result{}, nil
	}
	updated, err := json.Marshal(validated)
	if err != nil {
		return authn.Result{}, err
	}
	return authn.Result{Matched: true, Update: string(updated)}, nil
}

type Service struct {
	authn  *authn.Authenticator
	web    *gowebauthn.WebAuthn
	plugin authn.Plugin
	logger logging.Logger
}

func New(a *authn.Authenticator, opts Options, logger logging.Logger) (*Service, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	if opts.ChallengeTTL == 0 {
		opts.ChallengeTTL = DefaultChallengeTTL
	}
	if opts.RPDisplayName == "" {
		opts.RPDisplayName = opts.RPID
	}
	web, err := gowebauthn.New(&gowebauthn.Config{
		RPID:          opts.RPID,
		RPDisplayName: opts.RPDisplayName,
		RPOrigins:     opts.RPOrigins,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: webauthn config: %v", common.ErrorInvalidInput, err)
	}
	c := a.Crypto()
	logger = logger.With("module", "webauthn")
	return &Service{
		authn:  a,
		web:    web,
		logger: logger,
		plugin: authn.Plugin{
			ID:     ID,
			Secret: credential{Base: authn.Base{Crypto: c, TypeName: string(authn.KindSecret)}, web: web, logger: logger},
			Token:  challenge{Base: authn.Base{Crypto: c, TypeName: string(authn.KindToken), OneTime: true, TTL: opts.ChallengeTTL}},
		},
	}, nil
}

func (s *Service) Plugin() authn.Plugin { return s.plugin }

// user loads every stored passkey of sub.
func (s *Service) user(ctx context.Context, sub, name string) (*user, error) {
	creds, err := s.authn.Candidates(ctx, s.plugin, authn.KindSecret, sub)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = sub
	}
	u := &user{id: []byte(sub), name: name}
	for _, c := range creds {
		var cred gowebauthn.Credential
		if err := json.Unmarshal([]byte(c.Value), &cred); err != nil {
			s.logger.Warn(ctx, "stored passkey not readable", "sub", sub, "id", c.ID, "error", err)
			continue
		}
		u.credentials = append(u.credentials, cred)
	}
	return u, nil
}

func (s *Service) saveSession(ctx context.Context, sub, name string, session *gowebauthn.SessionData) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	_, err = s.authn.Create(ctx, s.plugin, authn.KindToken, authn.Values{Sub: sub, Value: string(data), Name: name})
	return err
}

// CreateChallenge starts a registration for sub. Existing passkeys are
// excluded so an authenticator cannot register twice. name labels the
// credential once registration completes.
func (s *Service) CreateChallenge(ctx context.Context, sub, userName, name string) (*protocol.CredentialCreation, error) {
	if sub == "" {
		return nil, fmt.Errorf("%w: sub is required", common.ErrorInvalidInput)
	}
	u, err := s.user(ctx, sub, userName)
	if err != nil {
		return nil, err
	}
	exclude := make([]protocol.CredentialDescriptor, 0, len(u.credentials))
	for _, c := range u.credentials {
		exclude = append(exclude, c.Descriptor())
	}
	creation, session, err := s.web.BeginRegistration(u, gowebauthn.WithExclusions(exclude))
	if err != nil {
		return nil, fmt.Errorf("begin registration: %w", err)
	}
	if _, err := s.authn.ExpireAll(ctx, s.plugin, authn.KindToken, sub); err != nil {
		return nil, err
	}
	if err := s.saveSession(ctx, sub, name, session); err != nil {
		return nil, err
	}
	return creation, nil
}

// Verify completes a registration with the client attestation response
// and returns the new credential id.
func (s *Service) Verify(ctx context.Context, sub string, body []byte) (string, error) {
	parsed, err := protocol.ParseCredentialCreationResponseBody(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: attestation: %v", common.ErrorInvalidInput, err)
	}
	pending, err := s.authn.Verify(ctx, s.plugin, authn.KindToken, sub, parsed.Response.CollectedClientData.Challenge)
	if err != nil {
		return "", err
	}
	var session gowebauthn.SessionData
	if err := json.Unmarshal([]byte(pending.Value), &session); err != nil {
		return "", fmt.Errorf("session data: %w", err)
	}
	u, err := s.user(ctx, sub, "")
	if err != nil {
		return "", err
	}
	cred, err := s.web.CreateCredential(u, session, parsed)
	if err != nil {
		s.logger.Info(ctx, "attestation rejected", "sub", sub, "error", err)
		return "", common.ErrorUnauthorized
	}
	data, err := json.Marshal(cred)
	if err != nil {
		return "", err
	}
	id, err := s.authn.Create(ctx, s.plugin, authn.KindSecret, authn.Values{Sub: sub, Value: string(data), Name: pending.Name})
	if err != nil {
		return "", err
	}
	if err := s.authn.VerifySecret(ctx, s.plugin, authn.KindSecret, sub, id); err != nil {
		return "", err
	}
	s.authn.Notify(ctx, NotifyCreate, sub, nil, notify.Options{})
	return id, nil
}

// AuthenticateChallenge starts a login for username. A username without
// passkeys fails with ErrorUnauthorized.
func (s *Service) AuthenticateChallenge(ctx context.Context, username string) (*protocol.CredentialAssertion, error) {
	sub, err := s.authn.ResolveSubject(ctx, username)
	if err != nil {
		return nil, err
	}
	if sub == "" {
		return nil, common.ErrorUnauthorized
	}
	u, err := s.user(ctx, sub, username)
	if err != nil {
		return nil, err
	}
	if len(u.credentials) == 0 {
		return nil, common.ErrorUnauthorized
	}
	req, session, err := s.web.BeginLogin(u)
	if err != nil {
		return nil, fmt.Errorf("begin login: %w", err)
	}
	if err := s.saveSession(ctx, sub, "", session); err != nil {
		return nil, err
	}
	return req, nil
}

// Authenticate finishes a login with the client assertion response. The
// ceremony's challenge is consumed first, then the assertion is matched
// against the subject's passkeys and the sign counter is stored.
func (s *Service) Authenticate(ctx context.Context, username string, body []byte) (*authn.Credential, error) {
	return s.authn.Guard(ctx, func(ctx context.Context) (*authn.Credential, error) {
		sub, err := s.authn.ResolveSubject(ctx, username)
		if err != nil {
			return nil, err
		}
		if sub == "" {
			return nil, common.ErrorUnauthorized
		}
		parsed, err := protocol.ParseCredentialRequestResponseBody(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("%w: assertion: %v", common.ErrorInvalidInput, err)
		}
		pending, err := s.authn.Match(ctx, s.plugin, authn.KindToken, sub, parsed.Response.CollectedClientData.Challenge)
		if err != nil {
			return nil, err
		}
		input, err := json.Marshal(assertion{Session: json.RawMessage(pending.Value), Response: json.RawMessage(body)})
		if err != nil {
			return nil, err
		}
		return s.authn.Match(ctx, s.plugin, authn.KindSecret, sub, string(input))
	})
}

func (s *Service) Count(ctx context.Context, sub string) (int, error) {
	return s.authn.Count(ctx, s.plugin, authn.KindSecret, sub)
}

func (s *Service) List(ctx context.Context, sub string) ([]*authn.Credential, error) {
	return s.authn.List(ctx, s.plugin, authn.KindSecret, sub)
}

func (s *Service) Remove(ctx context.Context, sub, id string) error {
	return s.authn.Expire(ctx, s.plugin, authn.KindSecret, sub, id)
}
