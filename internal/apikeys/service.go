package apikeys

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/vyrodovalexey/langgate/internal/kv"
	"github.com/vyrodovalexey/langgate/internal/observability"
	"github.com/vyrodovalexey/langgate/internal/retry"
	"github.com/vyrodovalexey/langgate/internal/util"
)

// Store key prefixes.
const (
	PrefixKeys       = "keys"
	PrefixKeysByUser = "keys_by_user"
	PrefixKeysByKey  = "keys_by_key"
)

// Retry bounds for concurrent issues by the same user.
const (
	DefaultMaxAttempts  = 3
	DefaultRetryBackoff = 20 * time.Millisecond
)

// ErrKeyNotFound is returned when the user has no key.
var ErrKeyNotFound = util.NewHTTPErrorWithCause(http.StatusNotFound, "Key not found", util.ErrNotFound)

var errLostRace = errors.New("api key pointer changed concurrently")

// APIKey is the stored key record.
type APIKey struct {
	ID        string    `json:"id"`
	Key       string    `json:"key"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Service issues and revokes API keys.
type Service struct {
	store   kv.Store
	logger  observability.Logger
	now     func() time.Time
	newKey  func() string
	backoff retry.Backoff
	sleep   retry.SleepFunc
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithClock replaces the clock stamping CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithKeyGenerator replaces the UUIDv4 key generator.
func WithKeyGenerator(fn func() string) Option {
	return func(s *Service) {
		s.newKey = fn
	}
}

// WithSleep replaces the retry sleeper.
func WithSleep(fn retry.SleepFunc) Option {
	return func(s *Service) {
		s.sleep = fn
	}
}

// NewService creates an API key service.
func NewService(store kv.Store, opts ...Option) *Service {
	s := &Service{
		store:   store,
		logger:  observability.NopLogger(),
		now:     time.Now,
		newKey:  uuid.NewString,
		backoff: retry.NewConstantBackoff(DefaultRetryBackoff),
		sleep:   retry.SleepContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue creates a new key for userID, replacing any previous key.
func (s *Service) Issue(ctx context.Context, userID string) (APIKey, error) {
	if userID == "" {
		return APIKey{}, util.NewValidationError("user id is required")
	}

	var issued APIKey
	err := retry.Do(ctx, retry.Policy{
		Operation:   "apikey_issue",
		MaxAttempts: DefaultMaxAttempts,
		Backoff:     s.backoff,
	}, func(ctx context.Context, _ int) error {
		var err error
		issued, err = s.issueOnce(ctx, userID)
		return err
	}, &retry.Options{
		ShouldRetry: func(err error) bool { return errors.Is(err, errLostRace) },
		Sleep:       s.sleep,
	})
	if errors.Is(err, retry.ErrExhausted) {
		return APIKey{}, fmt.Errorf("%w: %w", util.ErrConcurrency, err)
	}
	if err != nil {
		return APIKey{}, err
	}

	s.logger.WithContext(ctx).Info("api key issued",
		observability.String("user_id", userID),
		observability.String("key_id", issued.ID),
	)
	return issued, nil
}

func (s *Service) issueOnce(ctx context.Context, userID string) (APIKey, error) {
	pointerKey := kv.NewKey(PrefixKeysByUser, userID)
	current, err := s.store.Get(ctx, pointerKey)
	if err != nil {
		return APIKey{}, fmt.Errorf("reading key pointer: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return APIKey{}, err
	}
	k := APIKey{
		ID:        id.String(),
		Key:       s.newKey(),
		UserID:    userID,
		CreatedAt: s.now().UTC(),
	}
	record, err := json.Marshal(k)
	if err != nil {
		return APIKey{}, err
	}

	if err := s.create(ctx, kv.NewKey(PrefixKeys, k.ID), record); err != nil {
		return APIKey{}, err
	}
	if err := s.create(ctx, kv.NewKey(PrefixKeysByKey, k.Key), []byte(userID)); err != nil {
		s.remove(ctx, kv.NewKey(PrefixKeys, k.ID))
		return APIKey{}, err
	}

	swapped, err := s.store.CompareAndSwap(ctx, pointerKey, current.Version, []byte(k.ID), 0)
	if err != nil || !swapped {
		s.remove(ctx, kv.NewKey(PrefixKeys, k.ID), kv.NewKey(PrefixKeysByKey, k.Key))
		if err != nil {
			return APIKey{}, fmt.Errorf("swapping key pointer: %w", err)
		}
		return APIKey{}, errLostRace
	}

	if current.Exists() {
		s.revoke(ctx, string(current.Value))
	}
	return k, nil
}

func (s *Service) create(ctx context.Context, key kv.Key, value []byte) error {
	ok, err := s.store.CompareAndSwap(ctx, key, kv.NoVersion, value, 0)
	if err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	if !ok {
		return fmt.Errorf("writing %s: %w", key, util.ErrConflict)
	}
	return nil
}

// revoke deletes a superseded key record and its reverse index.
func (s *Service) revoke(ctx context.Context, keyID string) {
	old, err := s.record(ctx, keyID)
	if err != nil {
		s.logger.WithContext(ctx).Warn("failed to read superseded api key",
			observability.String("key_id", keyID),
			observability.Error(err),
		)
		s.remove(ctx, kv.NewKey(PrefixKeys, keyID))
		return
	}
	s.remove(ctx, kv.NewKey(PrefixKeys, keyID), kv.NewKey(PrefixKeysByKey, old.Key))
}

func (s *Service) remove(ctx context.Context, keys ...kv.Key) {
	ctx = context.WithoutCancel(ctx)
	for _, k := range keys {
		if err := s.store.Delete(ctx, k); err != nil {
			s.logger.WithContext(ctx).Error("failed to delete api key entry",
				observability.String("key", k.String()),
				observability.Error(err),
			)
		}
	}
}

func (s *Service) record(ctx context.Context, keyID string) (APIKey, error) {
	entry, err := s.store.Get(ctx, kv.NewKey(PrefixKeys, keyID))
	if err != nil {
		return APIKey{}, fmt.Errorf("reading api key: %w", err)
	}
	if !entry.Exists() {
		return APIKey{}, ErrKeyNotFound
	}
	var k APIKey
	if err := json.Unmarshal(entry.Value, &k); err != nil {
		return APIKey{}, fmt.Errorf("decoding api key %s: %w", keyID, err)
	}
	return k, nil
}

// Get returns the current key of userID.
func (s *Service) Get(ctx context.Context, userID string) (APIKey, error) {
	if userID == "" {
		return APIKey{}, ErrKeyNotFound
	}
	pointer, err := s.store.Get(ctx, kv.NewKey(PrefixKeysByUser, userID))
	if err != nil {
		return APIKey{}, fmt.Errorf("reading key pointer: %w", err)
	}
	if !pointer.Exists() {
		return APIKey{}, ErrKeyNotFound
	}
	return s.record(ctx, string(pointer.Value))
}

// UserForKey resolves a presented key to its owner.
func (s *Service) UserForKey(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", ErrKeyNotFound
	}
	entry, err := s.store.Get(ctx, kv.NewKey(PrefixKeysByKey, key))
	if err != nil {
		return "", fmt.Errorf("reading key index: %w", err)
	}
	if !entry.Exists() {
		return "", ErrKeyNotFound
	}
	return string(entry.Value), nil
}

// Delete revokes the current key of userID.
func (s *Service) Delete(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrKeyNotFound
	}
	pointerKey := kv.NewKey(PrefixKeysByUser, userID)
	pointer, err := s.store.Get(ctx, pointerKey)
	if err != nil {
		return fmt.Errorf("reading key pointer: %w", err)
	}
	if !pointer.Exists() {
		return ErrKeyNotFound
	}

	k, err := s.record(ctx, string(pointer.Value))
	if err != nil && !errors.Is(err, util.ErrNotFound) {
		return err
	}

	if err := s.store.Delete(ctx, pointerKey); err != nil {
		return fmt.Errorf("deleting key pointer: %w", err)
	}
	keys := []kv.Key{kv.NewKey(PrefixKeys, string(pointer.Value))}
	if k.Key != "" {
		keys = append(keys, kv.NewKey(PrefixKeysByKey, k.Key))
	}
	for _, key := range keys {
		if err := s.store.Delete(ctx, key); err != nil {
			return fmt.Errorf("deleting %s: %w", key, err)
		}
	}

	s.logger.WithContext(ctx).Info("api key revoked", observability.String("user_id", userID))
	return nil
}
