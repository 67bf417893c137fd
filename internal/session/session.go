// Package session issues and checks login sessions. Session rows carry
// encrypted client metadata; hot rows are kept in an expiring LRU so the
// per-request Authorize path rarely reaches the store.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/cryptox"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/store"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	DefaultTable     = "sessions"
	DefaultTTL       = 30 * 24 * time.Hour
	DefaultCacheSize = 1024
	DefaultCacheTTL  = time.Minute
)

type Session struct {
	ID     string
	Sub    string
	Create int64
	Update int64
	Expire int64
	// Metadata is client context such as user agent or address.
	Metadata map[string]string
}

type Options struct {
	Store  store.Store
	Crypto *cryptox.Envelope
	Logger logging.Logger
	Table  string
	// TTL is the sliding lifetime of a session; each Check extends it.
	TTL       time.Duration
	CacheSize int
	CacheTTL  time.Duration
	// TokenSecret signs access tokens; TokenTTL bounds their validity.
	TokenSecret []byte
	TokenTTL    time.Duration
	Clock       func() time.Time
}

type Service struct {
	store  store.Store
	crypto *cryptox.Envelope
	logger logging.Logger
	table  string
	ttl    time.Duration
	cache  *expirable.LRU[string, *Session]
	tokens *tokenIssuer
	clock  func() time.Time
}

func New(opts Options) (*Service, error) {
	if len(opts.TokenSecret) == 0 {
		return nil, fmt.Errorf("%w: session token secret is required", common.ErrorInvalidInput)
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.Table == "" {
		opts.Table = DefaultTable
	}
	if opts.TTL == 0 {
		opts.TTL = DefaultTTL
	}
	if opts.CacheSize == 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if opts.CacheTTL == 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.TokenTTL == 0 {
		opts.TokenTTL = DefaultTokenTTL
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Service{
		store:  opts.Store,
		crypto: opts.Crypto,
		logger: opts.Logger.With("module", "session"),
		table:  opts.Table,
		ttl:    opts.TTL,
		cache:  expirable.NewLRU[string, *Session](opts.CacheSize, nil, opts.CacheTTL),
		tokens: &tokenIssuer{secret: opts.TokenSecret, ttl: opts.TokenTTL, clock: opts.Clock},
		clock:  opts.Clock,
	}, nil
}

func (s *Service) now() int64 { return s.clock().Unix() }

// Create starts a session for sub.
func (s *Service) Create(ctx context.Context, sub string, metadata map[string]string) (*Session, error) {
	if sub == "" {
		return nil, fmt.Errorf("%w: sub is required", common.ErrorInvalidInput)
	}
	id, err := s.crypto.RandomID("")
	if err != nil {
		return nil, err
	}
	key, wrapped, err := s.crypto.SymmetricGenerateEncryptionKey(sub)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(key)

	data, err := json.Marshal(metadata)
	if err != nil {
		return nil, err
	}
	value, err := s.crypto.SymmetricEncrypt(string(data), cryptox.KeyOptions{EncryptionKey: key, Sub: sub})
	if err != nil {
		return nil, err
	}

	now := s.now()
	row := store.Row{
		"id":     id,
		"sub":    sub,
		"value":  value,
		"create": now,
		"update": now,
		"expire": now + int64(s.ttl.Seconds()),
	}
	if wrapped != "" {
		row[cryptox.EncryptionKeyField] = wrapped
	}
	if _, err := s.store.Insert(ctx, s.table, row); err != nil {
		return nil, err
	}
	sess := &Session{ID: id, Sub: sub, Create: now, Update: now, Expire: row.Int64("expire"), Metadata: metadata}
	s.cache.Add(id, sess)
	s.logger.Info(ctx, "session created", "sub", sub, "sid", id)
	return sess, nil
}

func (s *Service) decode(row store.Row) (*Session, error) {
	sub := row.String("sub")
	plain, err := s.crypto.SymmetricDecrypt(row.String("value"), cryptox.KeyOptions{
		EncryptedKey: row.String(cryptox.EncryptionKeyField),
		Sub:          sub,
	})
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", row.String("id"), err)
	}
	var md map[string]string
	if plain != "" {
		if err := json.Unmarshal([]byte(plain), &md); err != nil {
			return nil, fmt.Errorf("session %s metadata: %w", row.String("id"), err)
		}
	}
	return &Session{
		ID:       row.String("id"),
		Sub:      sub,
		Create:   row.Int64("create"),
		Update:   row.Int64("update"),
		Expire:   row.Int64("expire"),
		Metadata: md,
	}, nil
}

func (s *Service) expired(sess *Session) bool {
	return sess.Expire != 0 && sess.Expire <= s.now()
}

// Lookup returns a live session by id. Expired sessions are purged and
// reported as ErrorNotFound.
func (s *Service) Lookup(ctx context.Context, sid string) (*Session, error) {
	if sid == "" {
		return nil, fmt.Errorf("%w: sid is required", common.ErrorInvalidInput)
	}
	if sess, ok := s.cache.Get(sid); ok && !s.expired(sess) {
		return sess, nil
	}
	row, err := s.store.Select(ctx, s.table, store.Filters{"id": sid})
	if err != nil {
		return nil, err
	}
	if row == nil {
		s.cache.Remove(sid)
		return nil, common.ErrorNotFound
	}
	sess, err := s.decode(row)
	if err != nil {
		return nil, err
	}
	if s.expired(sess) {
		s.cache.Remove(sid)
		if _, err := s.store.Remove(ctx, s.table, store.Filters{"sub": sess.Sub, "id": sid}); err != nil {
			return nil, err
		}
		return nil, common.ErrorNotFound
	}
	s.cache.Add(sid, sess)
	return sess, nil
}

// Check confirms that sid is live and that every given metadata entry
// matches the one recorded at creation, then extends the session.
func (s *Service) Check(ctx context.Context, sid string, metadata map[string]string) (*Session, error) {
	sess, err := s.Lookup(ctx, sid)
	if err != nil {
		if common.KindOf(err) == common.KindNotFound {
			return nil, common.ErrorUnauthorized
		}
		return nil, err
	}
	for k, v := range metadata {
		if !cryptox.SafeEqualString(sess.Metadata[k], v) {
			s.logger.Info(ctx, "session metadata mismatch", "sub", sess.Sub, "sid", sid, "key", k)
			return nil, common.ErrorUnauthorized
		}
	}
	now := s.now()
	patch := store.Row{"update": now, "expire": now + int64(s.ttl.Seconds())}
	if err := s.store.Update(ctx, s.table, store.Filters{"sub": sess.Sub, "id": sid}, patch); err != nil {
		return nil, err
	}
	next := *sess
	next.Update, next.Expire = now, patch.Int64("expire")
	s.cache.Add(sid, &next)
	return &next, nil
}

// List returns the live sessions of sub.
func (s *Service) List(ctx context.Context, sub string) ([]*Session, error) {
	if sub == "" {
		return nil, fmt.Errorf("%w: sub is required", common.ErrorInvalidInput)
	}
	rows, err := s.store.SelectList(ctx, s.table, store.Filters{"sub": sub})
	if err != nil {
		return nil, err
	}
	out := make([]*Session, 0, len(rows))
	for _, r := range rows {
		sess, err := s.decode(r)
		if err != nil {
			s.logger.Warn(ctx, "session not decodable", "sub", sub, "sid", r.String("id"), "error", err)
			continue
		}
		if s.expired(sess) {
			continue
		}
		out = append(out, sess)
	}
	return out, nil
}

// Expire ends one session of sub.
func (s *Service) Expire(ctx context.Context, sub, sid string) error {
	if sub == "" || sid == "" {
		return fmt.Errorf("%w: sub and sid are required", common.ErrorInvalidInput)
	}
	s.cache.Remove(sid)
	n, err := s.store.Remove(ctx, s.table, store.Filters{"sub": sub, "id": sid})
	if err != nil {
		return err
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	s.logger.Info(ctx, "session expired", "sub", sub, "sid", sid)
	return nil
}

// ExpireAll ends every session of sub and returns how many there were.
func (s *Service) ExpireAll(ctx context.Context, sub string) (int64, error) {
	if sub == "" {
		return 0, fmt.Errorf("%w: sub is required", common.ErrorInvalidInput)
	}
	rows, err := s.store.SelectList(ctx, s.table, store.Filters{"sub": sub}, "id")
	if err != nil {
		return 0, err
	}
	for _, r := range rows {
		s.cache.Remove(r.String("id"))
	}
	return s.store.Remove(ctx, s.table, store.Filters{"sub": sub})
}

// IssueToken signs an access token for sess.
func (s *Service) IssueToken(sess *Session) (string, error) {
	return s.tokens.issue(sess.Sub, sess.ID)
}

// Authorize validates an access token and returns its session. Bad
// signatures, expired tokens and ended sessions are ErrorUnauthorized.
func (s *Service) Authorize(ctx context.Context, token string) (*Session, error) {
	c, err := s.tokens.parse(token)
	if err != nil {
		s.logger.Debug(ctx, "token rejected", "error", err)
		return nil, common.ErrorUnauthorized
	}
	sess, err := s.Lookup(ctx, c.SID)
	if err != nil {
		if common.KindOf(err) == common.KindNotFound || common.KindOf(err) == common.KindInvalidInput {
			return nil, common.ErrorUnauthorized
		}
		return nil, err
	}
	if sess.Sub != c.Subject {
		return nil, common.ErrorUnauthorized
	}
	return sess, nil
}
