// Package account manages account records: one row per subject holding
// the wrapped account key, an EC key pair and profile fields. Fields on
// the encrypted allowlist are sealed under the account key and bound to
// the subject.
package account

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/cryptox"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/notify"
	"github.com/dmitrijs2005/gophauth/internal/store"
	"github.com/google/uuid"
)

const (
	DefaultTable = "accounts"

	NotifyCreate = "account-create"
	NotifyExpire = "account-expire"
)

// DefaultEncryptedFields are sealed unless Options says otherwise. The
// private key is always sealed.
var DefaultEncryptedFields = []string{"name"}

// reserved columns are managed by the service and cannot be written by
// callers.
var reserved = []string{"sub", cryptox.EncryptionKeyField, "publicKey", "privateKey", "create", "update", "expire", "remove"}

type Options struct {
	Store           store.Store
	Crypto          *cryptox.Envelope
	Notify          notify.Notifier
	Logger          logging.Logger
	Table           string
	EncryptedFields []string
	Clock           func() time.Time
}

type Service struct {
	store     store.Store
	crypto    *cryptox.Envelope
	notifier  notify.Notifier
	logger    logging.Logger
	table     string
	encrypted []string
	clock     func() time.Time
}

func New(opts Options) *Service {
	s := &Service{
		store:     opts.Store,
		crypto:    opts.Crypto,
		notifier:  opts.Notify,
		logger:    opts.Logger,
		table:     opts.Table,
		encrypted: opts.EncryptedFields,
		clock:     opts.Clock,
	}
	if s.logger == nil {
		s.logger = logging.Nop()
	}
	s.logger = s.logger.With("module", "account")
	if s.notifier == nil {
		s.notifier = notify.Nop{}
	}
	if s.table == "" {
		s.table = DefaultTable
	}
	if s.encrypted == nil {
		s.encrypted = DefaultEncryptedFields
	}
	if !slices.Contains(s.encrypted, "privateKey") {
		s.encrypted = append(slices.Clone(s.encrypted), "privateKey")
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	return s
}

func (s *Service) now() int64 { return s.clock().Unix() }

func checkWritable(values store.Row) error {
	for _, k := range reserved {
		if values.Has(k) {
			return fmt.Errorf("%w: %s cannot be set", common.ErrorInvalidInput, k)
		}
	}
	return nil
}

// Create stores a new account with values and returns its subject.
func (s *Service) Create(ctx context.Context, values store.Row) (string, error) {
	if err := checkWritable(values); err != nil {
		return "", err
	}
	sub := uuid.NewString()

	key, wrapped, err := s.crypto.SymmetricGenerateEncryptionKey(sub)
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(key)

	pub, priv, err := s.crypto.MakeAsymmetricKeys()
	if err != nil {
		return "", err
	}

	now := s.now()
	row := values.Clone().Merge(store.Row{
		"sub":        sub,
		"publicKey":  pub,
		"privateKey": priv,
		"create":     now,
		"update":     now,
	})
	row, err = s.crypto.SymmetricEncryptFields(row, cryptox.KeyOptions{EncryptionKey: key, Sub: sub}, s.encrypted)
	if err != nil {
		return "", err
	}
	if wrapped != "" {
		row[cryptox.EncryptionKeyField] = wrapped
	}
	if _, err := s.store.Insert(ctx, s.table, row); err != nil {
		return "", err
	}
	s.trigger(ctx, NotifyCreate, sub)
	return sub, nil
}

// load returns the stored row of a live account.
func (s *Service) load(ctx context.Context, sub string) (store.Row, error) {
	if sub == "" {
		return nil, fmt.Errorf("%w: sub is required", common.ErrorInvalidInput)
	}
	row, err := s.store.Select(ctx, s.table, store.Filters{"sub": sub})
	if err != nil {
		return nil, err
	}
	if row == nil || !s.live(row) {
		return nil, common.ErrorNotFound
	}
	return row, nil
}

func (s *Service) live(row store.Row) bool {
	exp := row.Int64("expire")
	return exp == 0 || exp > s.now()
}

func (s *Service) Exists(ctx context.Context, sub string) (bool, error) {
	_, err := s.load(ctx, sub)
	if errors.Is(err, common.ErrorNotFound) {
		return false, nil
	}
	return err == nil, err
}

// FindBy returns the subject of the live account whose column equals
// value, or "" if there is none. Only plaintext columns can be searched.
func (s *Service) FindBy(ctx context.Context, column, value string) (string, error) {
	if slices.Contains(s.encrypted, column) {
		return "", fmt.Errorf("%w: %s is encrypted", common.ErrorInvalidInput, column)
	}
	rows, err := s.store.SelectList(ctx, s.table, store.Filters{column: value}, "sub", "expire")
	if err != nil {
		return "", err
	}
	for _, r := range rows {
		if s.live(r) {
			return r.String("sub"), nil
		}
	}
	return "", nil
}

// Lookup returns the decrypted account without its key material.
func (s *Service) Lookup(ctx context.Context, sub string) (store.Row, error) {
	row, err := s.load(ctx, sub)
	if err != nil {
		return nil, err
	}
	plain, err := s.decrypt(row)
	if err != nil {
		return nil, err
	}
	return plain.Without(cryptox.EncryptionKeyField, "privateKey"), nil
}

func (s *Service) decrypt(row store.Row) (store.Row, error) {
	sub := row.String("sub")
	plain, err := s.crypto.SymmetricDecryptFields(row, cryptox.KeyOptions{EncryptedKey: row.String(cryptox.EncryptionKeyField), Sub: sub}, s.encrypted)
	if err != nil {
		return nil, fmt.Errorf("account %s: %w", sub, err)
	}
	return plain, nil
}

// Update writes patch to the account, sealing allowlisted fields under the
// existing account key.
func (s *Service) Update(ctx context.Context, sub string, patch store.Row) error {
	if err := checkWritable(patch); err != nil {
		return err
	}
	row, err := s.load(ctx, sub)
	if err != nil {
		return err
	}
	sealed, err := s.crypto.SymmetricEncryptFields(patch.Clone(), cryptox.KeyOptions{EncryptedKey: row.String(cryptox.EncryptionKeyField), Sub: sub}, s.encrypted)
	if err != nil {
		return err
	}
	sealed["update"] = s.now()
	return s.store.Update(ctx, s.table, store.Filters{"sub": sub}, sealed)
}

// RotateKeys re-seals the account under a fresh account key. With prev
// set, the stored fields are read with the previous process envelope,
// which lets an operator retire an old process key account by account.
func (s *Service) RotateKeys(ctx context.Context, sub string, prev *cryptox.Envelope) error {
	row, err := s.load(ctx, sub)
	if err != nil {
		return err
	}
	side := cryptox.RotationSide{Row: row, Sub: sub, Fields: s.encrypted}
	if prev != nil {
		plain, err := prev.SymmetricDecryptFields(row, cryptox.KeyOptions{EncryptedKey: row.String(cryptox.EncryptionKeyField), Sub: sub}, s.encrypted)
		if err != nil {
			return fmt.Errorf("account %s: %w", sub, err)
		}
		side = cryptox.RotationSide{Row: store.Row(plain).Without(cryptox.EncryptionKeyField), Sub: sub, Fields: []string{}}
	}
	next, err := s.crypto.SymmetricRotation(side, cryptox.RotationSide{Sub: sub, Fields: s.encrypted})
	if err != nil {
		return err
	}
	patch := store.Row{"update": s.now()}
	for _, f := range append(slices.Clone(s.encrypted), cryptox.EncryptionKeyField) {
		if v, ok := next[f]; ok {
			patch[f] = v
		}
	}
	if err := s.store.Update(ctx, s.table, store.Filters{"sub": sub}, patch); err != nil {
		return err
	}
	s.logger.Info(ctx, "account keys rotated", "sub", sub)
	return nil
}

// Sign signs data with the account private key.
func (s *Service) Sign(ctx context.Context, sub, data string) (string, error) {
	row, err := s.load(ctx, sub)
	if err != nil {
		return "", err
	}
	plain, err := s.decrypt(row)
	if err != nil {
		return "", err
	}
	return s.crypto.AsymmetricSign(data, plain.String("privateKey"))
}

// VerifySignature checks a signature made by Sign.
func (s *Service) VerifySignature(ctx context.Context, sub, data, signature string) (bool, error) {
	row, err := s.load(ctx, sub)
	if err != nil {
		return false, err
	}
	return s.crypto.AsymmetricVerify(data, row.String("publicKey"), signature)
}

// Expire marks the account dead from now on. The row stays until Remove.
func (s *Service) Expire(ctx context.Context, sub string) error {
	if _, err := s.load(ctx, sub); err != nil {
		return err
	}
	now := s.now()
	if err := s.store.Update(ctx, s.table, store.Filters{"sub": sub}, store.Row{"expire": now, "update": now}); err != nil {
		return err
	}
	s.trigger(ctx, NotifyExpire, sub)
	return nil
}

// Remove deletes the account row. Credentials and messengers of the
// subject are removed by their own services.
func (s *Service) Remove(ctx context.Context, sub string) error {
	if sub == "" {
		return fmt.Errorf("%w: sub is required", common.ErrorInvalidInput)
	}
	n, err := s.store.Remove(ctx, s.table, store.Filters{"sub": sub})
	if err != nil {
		return err
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (s *Service) trigger(ctx context.Context, id, sub string) {
	if err := s.notifier.Trigger(ctx, id, sub, nil, notify.Options{}); err != nil {
		s.logger.Warn(ctx, "notify failed", "id", id, "sub", sub, "error", err)
	}
}
