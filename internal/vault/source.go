package vault

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/vyrodovalexey/langgate/internal/observability"
)

// Defaults for SecretSource.
const (
	DefaultKey          = "jwt_secret"
	DefaultCacheTTL     = 5 * time.Minute
	DefaultStaleGrace   = 5 * time.Minute
	DefaultFetchTimeout = 30 * time.Second
)

const refreshKey = "signing_key"

// KVReader reads KV v2 data. *Client implements it.
type KVReader interface {
	ReadKV2(ctx context.Context, mount, path string) (map[string]interface{}, error)
}

// SecretSource serves a single string value from a KV v2 secret as a
// signing key, caching it for a TTL.
type SecretSource struct {
	reader KVReader
	mount  string
	path   string
	key    string
	ttl    time.Duration
	now    func() time.Time
	logger observability.Logger

	staleGrace   time.Duration
	fetchTimeout time.Duration
	group        singleflight.Group

	mu        sync.Mutex
	cached    []byte
	expiresAt time.Time
}

// SourceOption configures a SecretSource.
type SourceOption func(*SecretSource)

// WithCacheTTL sets how long a fetched secret is reused. Zero disables
// caching.
func WithCacheTTL(ttl time.Duration) SourceOption {
	return func(s *SecretSource) {
		s.ttl = ttl
	}
}

// WithStaleGrace sets how long an expired secret keeps being served while
// Vault cannot be read. Zero disables stale serving.
func WithStaleGrace(d time.Duration) SourceOption {
	return func(s *SecretSource) {
		s.staleGrace = d
	}
}

// WithFetchTimeout bounds a single refresh, retries included.
func WithFetchTimeout(d time.Duration) SourceOption {
	return func(s *SecretSource) {
		s.fetchTimeout = d
	}
}

// WithClock replaces the clock used for cache expiry.
func WithClock(now func() time.Time) SourceOption {
	return func(s *SecretSource) {
		s.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) SourceOption {
	return func(s *SecretSource) {
		s.logger = logger
	}
}

// NewSecretSource creates a source reading key from mount/data/path.
func NewSecretSource(reader KVReader, mount, path, key string, opts ...SourceOption) *SecretSource {
	if key == "" {
		key = DefaultKey
	}
	s := &SecretSource{
		reader: reader,
		mount:  mount,
		path:   path,
		key:    key,
		ttl:    DefaultCacheTTL,
		now:    time.Now,
		logger: observability.NopLogger(),

		staleGrace:   DefaultStaleGrace,
		fetchTimeout: DefaultFetchTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SigningKey implements jwt.KeySource. The cache is consulted under the
// lock; Vault is read outside it, with concurrent refreshes merged into one
// request. Callers stop waiting when ctx ends. A failed refresh keeps
// serving the previous secret until the stale grace period runs out.
func (s *SecretSource) SigningKey(ctx context.Context) ([]byte, error) {
	m := getMetrics()
	now := s.now()

	s.mu.Lock()
	cached, expiresAt := s.cached, s.expiresAt
	s.mu.Unlock()

	if cached != nil && now.Before(expiresAt) {
		m.cacheHits.Inc()
		return cached, nil
	}
	m.cacheMisses.Inc()

	ch := s.group.DoChan(refreshKey, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fetchTimeout)
		defer cancel()
		return s.refresh(fetchCtx)
	})

	select {
	case res := <-ch:
		if res.Err == nil {
			return res.Val.([]byte), nil
		}
		return s.stale(cached, expiresAt, now, res.Err)
	case <-ctx.Done():
		return s.stale(cached, expiresAt, now, ctx.Err())
	}
}

// refresh reads the secret and stores it in the cache.
func (s *SecretSource) refresh(ctx context.Context) ([]byte, error) {
	data, err := s.reader.ReadKV2(ctx, s.mount, s.path)
	if err != nil {
		return nil, err
	}

	raw, ok := data[s.key]
	if !ok {
		return nil, newVaultError("signing_key", JoinPath(s.mount, s.path), ErrKeyNotFound)
	}
	value, ok := raw.(string)
	if !ok || value == "" {
		return nil, newVaultError("signing_key", JoinPath(s.mount, s.path), ErrInvalidValue)
	}

	secret := []byte(value)
	s.mu.Lock()
	s.cached = secret
	s.expiresAt = s.now().Add(s.ttl)
	s.mu.Unlock()

	s.logger.Debug("signing secret refreshed",
		observability.String("path", JoinPath(s.mount, s.path)),
		observability.Duration("ttl", s.ttl),
	)
	return secret, nil
}

// stale returns the expired secret while it is within the grace period,
// otherwise err.
func (s *SecretSource) stale(cached []byte, expiresAt, now time.Time, err error) ([]byte, error) {
	if cached == nil || !now.Before(expiresAt.Add(s.staleGrace)) {
		return nil, err
	}
	getMetrics().staleServed.Inc()
	s.logger.Warn("signing secret refresh failed, serving previous secret",
		observability.String("path", JoinPath(s.mount, s.path)),
		observability.Duration("stale_for", now.Sub(expiresAt)),
		observability.Error(err),
	)
	return cached, nil
}

// Invalidate drops the cached secret so the next call reads Vault. The
// dropped secret is not served as stale.
func (s *SecretSource) Invalidate() {
	s.mu.Lock()
	s.cached = nil
	s.expiresAt = time.Time{}
	s.mu.Unlock()
}
