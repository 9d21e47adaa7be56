package vault

import (
	"errors"
	"fmt"

	"github.com/vyrodovalexey/langgate/internal/util"
)

var (
	// ErrSecretNotFound indicates the path holds no live secret version.
	ErrSecretNotFound = errors.New("vault: secret not found")

	// ErrKeyNotFound indicates the secret exists but lacks the requested key.
	ErrKeyNotFound = errors.New("vault: key not found in secret")

	// ErrInvalidValue indicates the key holds something other than a non-empty string.
	ErrInvalidValue = errors.New("vault: secret value is not a non-empty string")
)

// VaultError describes a failed Vault operation.
type VaultError struct {
	Op   string
	Path string
	Err  error
}

// Error implements the error interface.
func (e *VaultError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("vault %s on path %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("vault %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *VaultError) Unwrap() error {
	return e.Err
}

// Is reports every Vault failure as an unavailable dependency.
func (e *VaultError) Is(target error) bool {
	return target == util.ErrDependencyUnavailable
}

func newVaultError(op, path string, err error) *VaultError {
	return &VaultError{Op: op, Path: path, Err: err}
}
