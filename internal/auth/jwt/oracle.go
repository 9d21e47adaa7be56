package jwt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	jwxt "github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/vyrodovalexey/langgate/internal/observability"
	"github.com/vyrodovalexey/langgate/internal/util"
)

// ClaimUserID is the private claim holding the user's ID.
const ClaimUserID = "userId"

// Default token settings.
const (
	DefaultIssuer    = "langgate"
	DefaultExpiry    = time.Hour
	DefaultClockSkew = 30 * time.Second
)

var (
	// ErrInvalidToken covers malformed, forged and expired tokens.
	ErrInvalidToken = errors.New("invalid token")

	// ErrKeyUnavailable means the signing key could not be loaded.
	ErrKeyUnavailable = fmt.Errorf("signing key unavailable: %w", util.ErrDependencyUnavailable)
)

// Claims are the verified contents of a token.
type Claims struct {
	// UserID is empty when the token verified but carries no userId.
	UserID    string
	Issuer    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Oracle signs and verifies tokens.
type Oracle interface {
	Sign(ctx context.Context, userID string) (string, error)
	Verify(ctx context.Context, token string) (Claims, error)
}

// Config configures an HMACOracle.
type Config struct {
	Issuer    string
	Expiry    time.Duration
	ClockSkew time.Duration
}

// HMACOracle is an Oracle using HS256 with a symmetric key.
type HMACOracle struct {
	keys   KeySource
	cfg    Config
	now    func() time.Time
	logger observability.Logger
}

// Option configures an HMACOracle.
type Option func(*HMACOracle)

// WithClock sets the clock used for iat, exp and validation.
func WithClock(now func() time.Time) Option {
	return func(o *HMACOracle) {
		o.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(o *HMACOracle) {
		o.logger = logger
	}
}

// NewHMACOracle creates an oracle signing with keys.
func NewHMACOracle(keys KeySource, cfg Config, opts ...Option) (*HMACOracle, error) {
	if keys == nil {
		return nil, util.NewConfigError("auth.jwt.secret", "a key source is required")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultIssuer
	}
	if cfg.Expiry <= 0 {
		cfg.Expiry = DefaultExpiry
	}
	if cfg.ClockSkew < 0 {
		return nil, util.NewConfigError("auth.jwt.clockSkew", "must not be negative")
	}

	o := &HMACOracle{
		keys:   keys,
		cfg:    cfg,
		now:    time.Now,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Sign issues a token for userID.
func (o *HMACOracle) Sign(ctx context.Context, userID string) (string, error) {
	m := getMetrics()
	if userID == "" {
		m.operations.WithLabelValues(opSign, resultError).Inc()
		return "", fmt.Errorf("%w: empty user id", util.ErrInvalidInput)
	}

	key, err := o.key(ctx)
	if err != nil {
		m.operations.WithLabelValues(opSign, resultError).Inc()
		return "", err
	}

	now := o.now()
	tok, err := jwxt.NewBuilder().
		Issuer(o.cfg.Issuer).
		IssuedAt(now).
		Expiration(now.Add(o.cfg.Expiry)).
		Claim(ClaimUserID, userID).
		Build()
	if err != nil {
		m.operations.WithLabelValues(opSign, resultError).Inc()
		return "", fmt.Errorf("building token: %w", err)
	}

	signed, err := jwxt.Sign(tok, jwxt.WithKey(jwa.HS256, key))
	if err != nil {
		m.operations.WithLabelValues(opSign, resultError).Inc()
		return "", fmt.Errorf("signing token: %w", err)
	}

	m.operations.WithLabelValues(opSign, resultSuccess).Inc()
	return string(signed), nil
}

// Verify checks the signature, issuer and validity window of token.
func (o *HMACOracle) Verify(ctx context.Context, token string) (Claims, error) {
	m := getMetrics()

	key, err := o.key(ctx)
	if err != nil {
		m.operations.WithLabelValues(opVerify, resultError).Inc()
		return Claims{}, err
	}

	tok, err := jwxt.Parse([]byte(token),
		jwxt.WithKey(jwa.HS256, key),
		jwxt.WithValidate(true),
		jwxt.WithIssuer(o.cfg.Issuer),
		jwxt.WithAcceptableSkew(o.cfg.ClockSkew),
		jwxt.WithClock(jwxt.ClockFunc(o.now)),
	)
	if err != nil {
		m.operations.WithLabelValues(opVerify, resultInvalid).Inc()
		o.logger.WithContext(ctx).Debug("token rejected", observability.Error(err))
		return Claims{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims := Claims{
		Issuer:    tok.Issuer(),
		IssuedAt:  tok.IssuedAt(),
		ExpiresAt: tok.Expiration(),
	}
	if v, ok := tok.Get(ClaimUserID); ok {
		if s, ok := v.(string); ok {
			claims.UserID = s
		}
	}

	m.operations.WithLabelValues(opVerify, resultSuccess).Inc()
	return claims, nil
}

func (o *HMACOracle) key(ctx context.Context) ([]byte, error) {
	key, err := o.keys.SigningKey(ctx)
	if err != nil {
		o.logger.WithContext(ctx).Error("failed to load signing key", observability.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrKeyUnavailable, err)
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("%w: empty key", ErrKeyUnavailable)
	}
	return key, nil
}
