package users

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/vyrodovalexey/langgate/internal/auth"
	"github.com/vyrodovalexey/langgate/internal/kv"
	"github.com/vyrodovalexey/langgate/internal/util"
)

var fixedNow = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, store kv.Store) *Service {
	t.Helper()

	if store == nil {
		store = kv.NewMemoryStore()
	}
	return NewService(store,
		WithHashCost(bcrypt.MinCost),
		WithClock(func() time.Time { return fixedNow }),
	)
}

func ada() Registration {
	return Registration{Name: " Ada ", Email: "Ada@Example.com", Password: "analytical-engine"}
}

func TestService_Register(t *testing.T) {
	t.Parallel()

	store := kv.NewMemoryStore()
	svc := newTestService(t, store)
	ctx := context.Background()

	u, err := svc.Register(ctx, ada())
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "Ada", u.Name)
	assert.Equal(t, "ada@example.com", u.Email)
	assert.Equal(t, auth.RoleUser, u.Role)
	assert.Equal(t, fixedNow, u.CreatedAt)
	assert.NotEqual(t, "analytical-engine", u.PasswordHash)

	idx, err := store.Get(ctx, kv.NewKey(PrefixUsersByEmail, "ada@example.com"))
	require.NoError(t, err)
	assert.Equal(t, u.ID, string(idx.Value))

	got, err := svc.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u, got)
}

func TestService_RegisterDuplicateEmail(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.Register(ctx, ada())
	require.NoError(t, err)

	dup := ada()
	dup.Email = "ADA@example.COM "
	_, err = svc.Register(ctx, dup)
	assert.ErrorIs(t, err, ErrEmailTaken)
	assert.ErrorIs(t, err, util.ErrConflict)
}

func TestService_RegisterConcurrentSameEmail(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, nil)
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		created   atomic.Int32
		conflicts atomic.Int32
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Register(ctx, ada())
			switch {
			case err == nil:
				created.Add(1)
			case errors.Is(err, util.ErrConflict):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), created.Load())
	assert.Equal(t, int32(19), conflicts.Load())

	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestService_RegisterValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		in    Registration
		field string
	}{
		{"missing name", Registration{Email: "a@b.co", Password: "password1"}, "name"},
		{"blank name", Registration{Name: "   ", Email: "a@b.co", Password: "password1"}, "name"},
		{"bad email", Registration{Name: "A", Email: "nope", Password: "password1"}, "email"},
		{"short password", Registration{Name: "A", Email: "a@b.co", Password: "short"}, "password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := newTestService(t, nil).Register(context.Background(), tt.in)
			require.Error(t, err)
			assert.ErrorIs(t, err, util.ErrInvalidInput)

			var verr *util.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Contains(t, verr.Fields, tt.field)
		})
	}
}

func TestService_RegisterReleasesIndexOnWriteFailure(t *testing.T) {
	t.Parallel()

	store := kv.NewMemoryStore()
	svc := newTestService(t, store)
	svc.newID = func() (string, error) { return "fixed-id", nil }
	ctx := context.Background()

	_, err := svc.Register(ctx, ada())
	require.NoError(t, err)

	other := Registration{Name: "Grace", Email: "grace@example.com", Password: "compilers!"}
	_, err = svc.Register(ctx, other)
	require.Error(t, err)

	idx, err := store.Get(ctx, kv.NewKey(PrefixUsersByEmail, "grace@example.com"))
	require.NoError(t, err)
	assert.False(t, idx.Exists())
}

func TestService_Authenticate(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, nil)
	ctx := context.Background()
	u, err := svc.Register(ctx, ada())
	require.NoError(t, err)

	got, err := svc.Authenticate(ctx, Credentials{Email: "ADA@example.com", Password: "analytical-engine"})
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	tests := []struct {
		name    string
		in      Credentials
		wantErr error
	}{
		{"wrong password", Credentials{Email: "ada@example.com", Password: "difference-engine"}, ErrInvalidCredentials},
		{"unknown email", Credentials{Email: "nobody@example.com", Password: "whatever1"}, ErrInvalidCredentials},
		{"missing password", Credentials{Email: "ada@example.com"}, util.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Authenticate(ctx, tt.in)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestService_Delete(t *testing.T) {
	t.Parallel()

	store := kv.NewMemoryStore()
	svc := newTestService(t, store)
	ctx := context.Background()

	u, err := svc.Register(ctx, ada())
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, u.ID))

	_, err = svc.Get(ctx, u.ID)
	assert.ErrorIs(t, err, util.ErrNotFound)
	idx, err := store.Get(ctx, kv.NewKey(PrefixUsersByEmail, u.Email))
	require.NoError(t, err)
	assert.False(t, idx.Exists())

	assert.ErrorIs(t, svc.Delete(ctx, u.ID), ErrUserNotFound)

	// The email is free again.
	_, err = svc.Register(ctx, ada())
	assert.NoError(t, err)
}

func TestService_ListOrderedByID(t *testing.T) {
	t.Parallel()

	store := kv.NewMemoryStore()
	svc := newTestService(t, store)
	ctx := context.Background()

	var n atomic.Int32
	svc.newID = func() (string, error) {
		return "u" + string(rune('a'+n.Add(1))), nil
	}

	for i := range 3 {
		_, err := svc.Register(ctx, Registration{
			Name:     "user",
			Email:    string(rune('a'+i)) + "@example.com",
			Password: "password1",
		})
		require.NoError(t, err)
	}

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"ub", "uc", "ud"}, []string{list[0].ID, list[1].ID, list[2].ID})
}

func TestService_LookupIdentity(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, nil)
	ctx := context.Background()
	u, err := svc.Register(ctx, ada())
	require.NoError(t, err)

	var lookup auth.UserLookup = svc
	id, err := lookup.LookupIdentity(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, auth.Identity{ID: u.ID, Role: auth.RoleUser, Name: "Ada", Email: "ada@example.com"}, id)

	_, err = lookup.LookupIdentity(ctx, "missing")
	assert.ErrorIs(t, err, util.ErrNotFound)
}

func TestService_EnsureAdmin(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, nil)
	ctx := context.Background()
	in := Registration{Name: "admin", Email: "root@example.com", Password: "change-me-now"}

	u, created, err := svc.EnsureAdmin(ctx, in)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, auth.RoleAdmin, u.Role)

	again, created, err := svc.EnsureAdmin(ctx, in)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, u.ID, again.ID)
}

func TestSanitize(t *testing.T) {
	t.Parallel()

	u := User{ID: "1", Name: "Ada", Email: "ada@example.com", Role: auth.RoleUser, PasswordHash: "$2a$..."}
	assert.Equal(t, PublicUser{ID: "1", Name: "Ada", Email: "ada@example.com", Role: auth.RoleUser}, Sanitize(u))
	assert.Len(t, SanitizeAll([]User{u, u}), 2)
}
