package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/vyrodovalexey/langgate/internal/auth"
	"github.com/vyrodovalexey/langgate/internal/kv"
	"github.com/vyrodovalexey/langgate/internal/observability"
	"github.com/vyrodovalexey/langgate/internal/util"
)

// listPageSize bounds each store round trip while listing.
const listPageSize = 100

// Service implements account operations on a kv.Store.
type Service struct {
	store    kv.Store
	logger   observability.Logger
	now      func() time.Time
	newID    func() (string, error)
	hashCost int
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

// WithIDGenerator replaces the UUIDv7 generator.
func WithIDGenerator(fn func() (string, error)) Option {
	return func(s *Service) {
		s.newID = fn
	}
}

// WithHashCost sets the bcrypt cost. Tests use bcrypt.MinCost.
func WithHashCost(cost int) Option {
	return func(s *Service) {
		s.hashCost = cost
	}
}

// NewService creates a user service.
func NewService(store kv.Store, opts ...Option) *Service {
	s := &Service{
		store:    store,
		logger:   observability.NopLogger(),
		now:      time.Now,
		newID:    newV7,
		hashCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newV7() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Register creates a user with the user role.
func (s *Service) Register(ctx context.Context, in Registration) (User, error) {
	return s.create(ctx, in, auth.RoleUser)
}

func (s *Service) create(ctx context.Context, in Registration, role string) (User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = NormalizeEmail(in.Email)
	if err := util.ValidateStruct(in); err != nil {
		return User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
	if err != nil {
		return User{}, fmt.Errorf("hashing password: %w", err)
	}
	id, err := s.newID()
	if err != nil {
		return User{}, fmt.Errorf("generating user id: %w", err)
	}

	u := User{
		ID:           id,
		Name:         in.Name,
		Email:        in.Email,
		Role:         role,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	}
	record, err := json.Marshal(u)
	if err != nil {
		return User{}, err
	}

	indexKey := kv.NewKey(PrefixUsersByEmail, u.Email)
	claimed, err := s.store.CompareAndSwap(ctx, indexKey, kv.NoVersion, []byte(u.ID), 0)
	if err != nil {
		return User{}, fmt.Errorf("claiming email index: %w", err)
	}
	if !claimed {
		return User{}, ErrEmailTaken
	}

	ok, err := s.store.CompareAndSwap(ctx, kv.NewKey(PrefixUsers, u.ID), kv.NoVersion, record, 0)
	if err != nil || !ok {
		s.release(ctx, indexKey)
		if err == nil {
			err = errors.New("user id collision")
		}
		return User{}, fmt.Errorf("writing user record: %w", err)
	}

	s.logger.WithContext(ctx).Info("user created",
		observability.String("user_id", u.ID),
		observability.String("role", role),
	)
	return u, nil
}

// release drops a claimed index after a failed write. It runs on a fresh
// context so a cancelled request does not strand the claim.
func (s *Service) release(ctx context.Context, key kv.Key) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.store.Delete(cleanupCtx, key); err != nil {
		s.logger.WithContext(ctx).Error("failed to release index",
			observability.String("key", key.String()),
			observability.Error(err),
		)
	}
}

// Authenticate checks credentials and returns the matching user.
func (s *Service) Authenticate(ctx context.Context, in Credentials) (User, error) {
	if err := util.ValidateStruct(in); err != nil {
		return User{}, err
	}

	id, err := s.idForEmail(ctx, NormalizeEmail(in.Email))
	if err != nil {
		return User{}, err
	}
	if id == "" {
		return User{}, ErrInvalidCredentials
	}

	u, err := s.Get(ctx, id)
	if errors.Is(err, util.ErrNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.Password)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return u, nil
}

func (s *Service) idForEmail(ctx context.Context, email string) (string, error) {
	if email == "" {
		return "", nil
	}
	entry, err := s.store.Get(ctx, kv.NewKey(PrefixUsersByEmail, email))
	if err != nil {
		return "", fmt.Errorf("reading email index: %w", err)
	}
	return string(entry.Value), nil
}

// Get returns the user with id.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	if id == "" {
		return User{}, ErrUserNotFound
	}
	entry, err := s.store.Get(ctx, kv.NewKey(PrefixUsers, id))
	if err != nil {
		return User{}, fmt.Errorf("reading user: %w", err)
	}
	if !entry.Exists() {
		return User{}, ErrUserNotFound
	}

	var u User
	if err := json.Unmarshal(entry.Value, &u); err != nil {
		return User{}, fmt.Errorf("decoding user %s: %w", id, err)
	}
	return u, nil
}

// List returns every user ordered by ID, which for UUIDv7 is creation order.
func (s *Service) List(ctx context.Context) ([]User, error) {
	var (
		out    []User
		cursor string
	)
	for {
		page, err := s.store.ListByPrefix(ctx, kv.NewKey(PrefixUsers), kv.ListOptions{
			Limit:  listPageSize,
			Cursor: cursor,
		})
		if err != nil {
			return nil, fmt.Errorf("listing users: %w", err)
		}
		for _, e := range page.Entries {
			var u User
			if err := json.Unmarshal(e.Value, &u); err != nil {
				s.logger.WithContext(ctx).Warn("skipping unreadable user record",
					observability.String("key", e.Key.String()),
					observability.Error(err),
				)
				continue
			}
			out = append(out, u)
		}
		if page.Cursor == "" {
			return out, nil
		}
		cursor = page.Cursor
	}
}

// Delete removes a user and its email index.
func (s *Service) Delete(ctx context.Context, id string) error {
	u, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, kv.NewKey(PrefixUsers, id)); err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}

	// The index may already point at a newer account after a re-registration race.
	indexKey := kv.NewKey(PrefixUsersByEmail, u.Email)
	if owner, err := s.idForEmail(ctx, u.Email); err == nil && owner == id {
		if err := s.store.Delete(ctx, indexKey); err != nil {
			return fmt.Errorf("deleting email index: %w", err)
		}
	}

	s.logger.WithContext(ctx).Info("user deleted", observability.String("user_id", id))
	return nil
}

// LookupIdentity implements auth.UserLookup.
func (s *Service) LookupIdentity(ctx context.Context, id string) (auth.Identity, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return auth.Identity{}, err
	}
	return u.Identity(), nil
}

// EnsureAdmin creates an admin account unless the email is already
// registered. It reports whether a new account was created.
func (s *Service) EnsureAdmin(ctx context.Context, in Registration) (User, bool, error) {
	u, err := s.create(ctx, in, auth.RoleAdmin)
	if err == nil {
		return u, true, nil
	}
	if !errors.Is(err, util.ErrConflict) {
		return User{}, false, err
	}

	id, err := s.idForEmail(ctx, NormalizeEmail(in.Email))
	if err != nil {
		return User{}, false, err
	}
	existing, err := s.Get(ctx, id)
	if err != nil {
		return User{}, false, err
	}
	if existing.Role != auth.RoleAdmin {
		s.logger.WithContext(ctx).Warn("bootstrap email belongs to a non-admin account",
			observability.String("user_id", existing.ID),
		)
	}
	return existing, false, nil
}
