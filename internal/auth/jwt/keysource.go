package jwt

import "context"

// KeySource supplies the HMAC signing key.
type KeySource interface {
	SigningKey(ctx context.Context) ([]byte, error)
}

// StaticKey is a KeySource holding a fixed key, typically JWT_SECRET.
type StaticKey []byte

// SigningKey implements KeySource.
func (k StaticKey) SigningKey(context.Context) ([]byte, error) {
	return k, nil
}

// KeySourceFunc adapts a function to KeySource.
type KeySourceFunc func(ctx context.Context) ([]byte, error)

// SigningKey implements KeySource.
func (f KeySourceFunc) SigningKey(ctx context.Context) ([]byte, error) {
	return f(ctx)
}
