package jwt

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	jwxt "github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/langgate/internal/util"
)

var testKey = StaticKey("0123456789abcdef0123456789abcdef")

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newTestOracle(t *testing.T, keys KeySource, c *clock) *HMACOracle {
	t.Helper()

	o, err := NewHMACOracle(keys, Config{}, WithClock(c.Now))
	require.NoError(t, err)
	return o
}

func TestHMACOracle_RoundTrip(t *testing.T) {
	t.Parallel()

	c := &clock{now: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
	o := newTestOracle(t, testKey, c)
	ctx := context.Background()

	token, err := o.Sign(ctx, "01HZX")
	require.NoError(t, err)
	assert.Len(t, strings.Split(token, "."), 3)

	claims, err := o.Verify(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "01HZX", claims.UserID)
	assert.Equal(t, DefaultIssuer, claims.Issuer)
	assert.WithinDuration(t, c.now, claims.IssuedAt, 0)
	assert.WithinDuration(t, c.now.Add(DefaultExpiry), claims.ExpiresAt, 0)
}

func TestHMACOracle_Expiry(t *testing.T) {
	t.Parallel()

	c := &clock{now: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
	o := newTestOracle(t, testKey, c)
	ctx := context.Background()

	token, err := o.Sign(ctx, "u1")
	require.NoError(t, err)

	c.now = c.now.Add(DefaultExpiry + DefaultClockSkew - time.Second)
	_, err = o.Verify(ctx, token)
	require.NoError(t, err, "within clock skew")

	c.now = c.now.Add(2 * time.Second)
	_, err = o.Verify(ctx, token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestHMACOracle_RejectsForeignTokens(t *testing.T) {
	t.Parallel()

	c := &clock{now: time.Now()}
	o := newTestOracle(t, testKey, c)
	ctx := context.Background()

	other := newTestOracle(t, StaticKey("another-secret-another-secret!!"), c)
	forged, err := other.Sign(ctx, "u1")
	require.NoError(t, err)

	foreignIssuer, err := NewHMACOracle(testKey, Config{Issuer: "someone-else"}, WithClock(c.Now))
	require.NoError(t, err)
	wrongIss, err := foreignIssuer.Sign(ctx, "u1")
	require.NoError(t, err)

	good, err := o.Sign(ctx, "u1")
	require.NoError(t, err)
	parts := strings.Split(good, ".")
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]

	tests := map[string]string{
		"forged":        forged,
		"wrong issuer":  wrongIss,
		"tampered":      tampered,
		"garbage":       "not-a-token",
		"empty":         "",
		"unsigned part": parts[0] + "." + parts[1] + ".",
	}
	for name, token := range tests {
		_, err := o.Verify(ctx, token)
		assert.ErrorIs(t, err, ErrInvalidToken, name)
	}
}

func TestHMACOracle_TokenWithoutUserID(t *testing.T) {
	t.Parallel()

	c := &clock{now: time.Now()}
	o := newTestOracle(t, testKey, c)

	tok, err := jwxt.NewBuilder().Issuer(DefaultIssuer).IssuedAt(c.now).Expiration(c.now.Add(time.Hour)).Build()
	require.NoError(t, err)
	signed, err := jwxt.Sign(tok, jwxt.WithKey(jwa.HS256, []byte(testKey)))
	require.NoError(t, err)

	claims, err := o.Verify(context.Background(), string(signed))
	require.NoError(t, err)
	assert.Empty(t, claims.UserID)
}

func TestHMACOracle_KeyUnavailable(t *testing.T) {
	t.Parallel()

	c := &clock{now: time.Now()}
	down := KeySourceFunc(func(context.Context) ([]byte, error) {
		return nil, errors.New("vault sealed")
	})
	o := newTestOracle(t, down, c)
	ctx := context.Background()

	_, err := o.Sign(ctx, "u1")
	assert.ErrorIs(t, err, ErrKeyUnavailable)

	_, err = o.Verify(ctx, "a.b.c")
	assert.ErrorIs(t, err, ErrKeyUnavailable)
	assert.ErrorIs(t, err, util.ErrDependencyUnavailable)
	assert.NotErrorIs(t, err, ErrInvalidToken)

	empty := newTestOracle(t, StaticKey(nil), c)
	_, err = empty.Sign(ctx, "u1")
	assert.ErrorIs(t, err, ErrKeyUnavailable)
}

func TestHMACOracle_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewHMACOracle(nil, Config{})
	assert.ErrorIs(t, err, util.ErrConfigInvalid)

	_, err = NewHMACOracle(testKey, Config{ClockSkew: -time.Second})
	assert.ErrorIs(t, err, util.ErrConfigInvalid)

	o := newTestOracle(t, testKey, &clock{now: time.Now()})
	_, err = o.Sign(context.Background(), "")
	assert.ErrorIs(t, err, util.ErrInvalidInput)
}
