package authn

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/cryptox"
	"github.com/dmitrijs2005/gophauth/internal/store"
)

// Create encodes v.Value under a fresh row key and stores the credential.
// It returns the credential id.
func (a *Authenticator) Create(ctx context.Context, p Plugin, kind Kind, v Values) (string, error) {
	row, err := a.newRow(ctx, p, kind, v)
	if err != nil {
		return "", err
	}
	id, err := a.store.Insert(ctx, a.table, row)
	if err != nil {
		return "", err
	}
	a.logger.Debug(ctx, "credential created", "sub", v.Sub, "id", id, "type", row.String("type"))
	return id, nil
}

// CreateList stores several credentials of one kind at once.
func (a *Authenticator) CreateList(ctx context.Context, p Plugin, kind Kind, list []Values) ([]string, error) {
	rows := make([]store.Row, 0, len(list))
	for _, v := range list {
		row, err := a.newRow(ctx, p, kind, v)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return a.store.InsertList(ctx, a.table, rows)
}

// Update re-encodes the value under the credential's existing key.
func (a *Authenticator) Update(ctx context.Context, p Plugin, kind Kind, v Patch) error {
	d, err := p.Descriptor(kind)
	if err != nil {
		return err
	}
	filters := store.Filters{"sub": v.Sub, "id": v.ID, "type": p.Type(kind)}

	wrapped := v.EncryptionKey
	if wrapped == "" {
		row, err := a.store.Select(ctx, a.table, filters, "encryptionKey")
		if err != nil {
			return err
		}
		if row == nil {
			return common.ErrorNotFound
		}
		wrapped = row.String("encryptionKey")
	}

	patch := store.Row{}.Merge(v.Extra)
	if v.Value != "" {
		encoded, err := d.Encode(ctx, v.Value, cryptox.KeyOptions{EncryptedKey: wrapped, Sub: v.Sub})
		if err != nil {
			return err
		}
		patch["value"] = encoded
	}
	patch["update"] = a.Now()
	return a.store.Update(ctx, a.table, filters, patch)
}

// VerifySecret marks a credential confirmed without consuming it.
func (a *Authenticator) VerifySecret(ctx context.Context, p Plugin, kind Kind, sub, id string) error {
	filters := store.Filters{"sub": sub, "id": id, "type": p.Type(kind)}
	row, err := a.store.Select(ctx, a.table, filters, "id")
	if err != nil {
		return err
	}
	if row == nil {
		return common.ErrorNotFound
	}
	now := a.Now()
	return a.store.Update(ctx, a.table, filters, store.Row{"verify": now, "update": now})
}

// Expire deletes one credential. The delete is scoped by subject and id,
// so ids of other subjects cannot be expired.
func (a *Authenticator) Expire(ctx context.Context, p Plugin, kind Kind, sub, id string) error {
	if sub == "" || id == "" {
		return fmt.Errorf("%w: sub and id are required", common.ErrorInvalidInput)
	}
	n, err := a.store.Remove(ctx, a.table, store.Filters{"sub": sub, "id": id, "type": p.Type(kind)})
	if err != nil {
		return err
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	a.logger.Debug(ctx, "credential expired", "sub", sub, "id", id)
	return nil
}

// ExpireAll deletes every credential of kind held by sub.
func (a *Authenticator) ExpireAll(ctx context.Context, p Plugin, kind Kind, sub string) (int64, error) {
	if sub == "" {
		return 0, fmt.Errorf("%w: sub is required", common.ErrorInvalidInput)
	}
	return a.store.Remove(ctx, a.table, store.Filters{"sub": sub, "type": p.Type(kind)})
}

// Count returns the number of live credentials of kind held by sub.
func (a *Authenticator) Count(ctx context.Context, p Plugin, kind Kind, sub string) (int, error) {
	list, err := a.List(ctx, p, kind, sub)
	if err != nil {
		return 0, err
	}
	return len(list), nil
}

// List returns the live credentials of kind held by sub without decoding
// their values. Expired rows are purged.
func (a *Authenticator) List(ctx context.Context, p Plugin, kind Kind, sub string) ([]*Credential, error) {
	rows, err := a.live(ctx, p, kind, sub)
	if err != nil {
		return nil, err
	}
	out := make([]*Credential, 0, len(rows))
	for _, row := range rows {
		out = append(out, credentialFromRow(row, ""))
	}
	return out, nil
}

// Candidates returns the live credentials of kind held by sub with their
// values decoded. Rows that fail to decode are skipped.
func (a *Authenticator) Candidates(ctx context.Context, p Plugin, kind Kind, sub string) ([]*Credential, error) {
	d, err := p.Descriptor(kind)
	if err != nil {
		return nil, err
	}
	rows, err := a.live(ctx, p, kind, sub)
	if err != nil {
		return nil, err
	}
	out := make([]*Credential, 0, len(rows))
	for _, row := range rows {
		value, err := a.decode(ctx, d, row)
		if err != nil {
			a.skipUndecodable(ctx, sub, row.String("id"), err)
			continue
		}
		out = append(out, credentialFromRow(row, value))
	}
	return out, nil
}

// skipUndecodable logs a candidate that failed to decode. A bad signature
// means the stored row was altered and is logged at Warn.
func (a *Authenticator) skipUndecodable(ctx context.Context, sub, id string, err error) {
	if errors.Is(err, common.ErrorSignatureInvalid) {
		a.logger.Warn(ctx, "candidate signature invalid", "sub", sub, "id", id, "error", err)
		return
	}
	a.logger.Debug(ctx, "candidate not decodable", "sub", sub, "id", id, "error", err)
}

// live loads the rows of kind held by sub in store order, purging the
// ones past their deadline.
func (a *Authenticator) live(ctx context.Context, p Plugin, kind Kind, sub string) ([]store.Row, error) {
	if _, err := p.Descriptor(kind); err != nil {
		return nil, err
	}
	rows, err := a.store.SelectList(ctx, a.table, store.Filters{"sub": sub, "type": p.Type(kind)})
	if err != nil {
		return nil, err
	}
	now := a.Now()
	out := rows[:0]
	for _, row := range rows {
		if exp := row.Int64("expire"); exp != 0 && exp <= now {
			if _, err := a.store.Remove(ctx, a.table, store.Filters{"sub": sub, "id": row.String("id")}); err != nil {
				return nil, err
			}
			a.logger.Debug(ctx, "expired credential purged", "sub", sub, "id", row.String("id"))
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

func (a *Authenticator) decode(ctx context.Context, d Descriptor, row store.Row) (string, error) {
	return d.Decode(ctx, row.String("value"), cryptox.KeyOptions{
		EncryptedKey: row.String("encryptionKey"),
		Sub:          row.String("sub"),
	})
}

func (a *Authenticator) newRow(ctx context.Context, p Plugin, kind Kind, v Values) (store.Row, error) {
	d, err := p.Descriptor(kind)
	if err != nil {
		return nil, err
	}
	if v.Sub == "" {
		return nil, fmt.Errorf("%w: sub is required", common.ErrorInvalidInput)
	}
	if v.Value == "" {
		return nil, fmt.Errorf("%w: value is required", common.ErrorInvalidInput)
	}
	id := v.ID
	if id == "" {
		if id, err = a.crypto.RandomID(""); err != nil {
			return nil, err
		}
	}

	key, wrapped, err := a.crypto.SymmetricGenerateEncryptionKey(v.Sub)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(key)

	encoded, err := d.Encode(ctx, v.Value, cryptox.KeyOptions{EncryptionKey: key, Sub: v.Sub})
	if err != nil {
		return nil, err
	}

	now := a.Now()
	row := store.Row{}.Merge(v.Extra).Merge(store.Row{
		"id":            id,
		"sub":           v.Sub,
		"type":          p.Type(kind),
		"otp":           d.OTP(),
		"encryptionKey": nullable(wrapped),
		"value":         encoded,
		"create":        now,
		"update":        now,
	})
	if v.Name != "" {
		row["name"] = v.Name
	}
	if ttl := d.Expire(); ttl > 0 {
		row["expire"] = now + int64(ttl.Seconds())
	}
	return row, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
