package authn

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/cryptox"
	"github.com/dmitrijs2005/gophauth/internal/store"
	"golang.org/x/sync/errgroup"
)

// Authenticate resolves username to a subject and matches secret against
// the subject's credentials of kind secret. Every failure, including an
// unknown username, is ErrorUnauthorized, and the call never returns
// before the authentication duration has elapsed.
func (a *Authenticator) Authenticate(ctx context.Context, p Plugin, username, secret string) (*Credential, error) {
	return a.Guard(ctx, func(ctx context.Context) (*Credential, error) {
		sub, err := a.ResolveSubject(ctx, username)
		if err != nil {
			return nil, err
		}
		if sub == "" {
			return nil, common.ErrorUnauthorized
		}
		return a.Match(ctx, p, KindSecret, sub, secret)
	})
}

// Verify matches token against the credentials of kind held by a known
// subject, under the same floor and error collapsing as Authenticate.
func (a *Authenticator) Verify(ctx context.Context, p Plugin, kind Kind, sub, token string) (*Credential, error) {
	return a.Guard(ctx, func(ctx context.Context) (*Credential, error) {
		if sub == "" {
			return nil, common.ErrorUnauthorized
		}
		return a.Match(ctx, p, kind, sub, token)
	})
}

// Guard runs fn under the authentication floor. The timer starts before
// fn, so the elapsed time is the larger of the two rather than their sum.
// Failures classified as authentication or input errors collapse to
// ErrorUnauthorized; anything else, such as a store failure, is returned
// unchanged.
func (a *Authenticator) Guard(ctx context.Context, fn func(context.Context) (*Credential, error)) (*Credential, error) {
	timer := time.NewTimer(a.duration)
	defer timer.Stop()

	cred, err := fn(ctx)

	select {
	case <-timer.C:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if err != nil {
		if collapses(err) {
			return nil, common.ErrorUnauthorized
		}
		return nil, err
	}
	return cred, nil
}

func collapses(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return common.KindOf(err) != common.KindUnknown
}

// Match tries input against every live credential of kind held by sub in
// store order and stops at the first match. It has no timing floor; wrap
// it in Guard when the result is visible to a caller.
//
// A matched one-time credential is removed before Match returns. If the
// row is already gone another attempt consumed it first and Match fails.
func (a *Authenticator) Match(ctx context.Context, p Plugin, kind Kind, sub, input string) (*Credential, error) {
	if input == "" {
		return nil, common.ErrorUnauthorized
	}
	d, err := p.Descriptor(kind)
	if err != nil {
		return nil, err
	}
	rows, err := a.live(ctx, p, kind, sub)
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		id := row.String("id")
		value, err := a.decode(ctx, d, row)
		if err != nil {
			a.skipUndecodable(ctx, sub, id, err)
			continue
		}
		res, err := d.Verify(ctx, input, value, row)
		if err != nil {
			a.logger.Debug(ctx, "candidate verify failed", "sub", sub, "id", id, "error", err)
			continue
		}
		if !res.Matched {
			continue
		}
		return a.consume(ctx, d, row, value, res)
	}
	return nil, common.ErrorUnauthorized
}

func (a *Authenticator) consume(ctx context.Context, d Descriptor, row store.Row, value string, res Result) (*Credential, error) {
	sub, id := row.String("sub"), row.String("id")
	filters := store.Filters{"sub": sub, "id": id}

	if row.Bool("otp") {
		n, err := a.store.Remove(ctx, a.table, filters)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			a.logger.Info(ctx, "one-time credential already consumed", "sub", sub, "id", id)
			return nil, common.ErrorUnauthorized
		}
		if res.Update != "" {
			value = res.Update
		}
		return credentialFromRow(row, value), nil
	}

	now := a.Now()
	patch := store.Row{"update": now}
	if !row.Has("verify") {
		patch["verify"] = now
	}
	if res.Update != "" {
		encoded, err := d.Encode(ctx, res.Update, cryptox.KeyOptions{EncryptedKey: row.String("encryptionKey"), Sub: sub})
		if err != nil {
			return nil, err
		}
		patch["value"] = encoded
		value = res.Update
	}
	if err := a.store.Update(ctx, a.table, filters, patch); err != nil {
		return nil, err
	}
	return credentialFromRow(row.Merge(patch), value), nil
}

// ResolveSubject runs every username resolver concurrently and returns the
// first non-empty subject in resolver order, or "" when none matched.
func (a *Authenticator) ResolveSubject(ctx context.Context, username string) (string, error) {
	if username == "" || len(a.resolvers) == 0 {
		return "", nil
	}
	subs := make([]string, len(a.resolvers))
	g, gctx := errgroup.WithContext(ctx)
	for i, r := range a.resolvers {
		g.Go(func() error {
			sub, err := r(gctx, username)
			if err != nil {
				return err
			}
			subs[i] = sub
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}
	for _, s := range subs {
		if s != "" {
			return s, nil
		}
	}
	return "", nil
}
