package vault

import (
	"context"
	"errors"
	"net/http"
	"time"

	vaultapi "github.com/hashicorp/vault/api"

	"github.com/vyrodovalexey/langgate/internal/observability"
	"github.com/vyrodovalexey/langgate/internal/retry"
	"github.com/vyrodovalexey/langgate/internal/util"
)

// Defaults for Config.
const (
	DefaultMount       = "secret"
	DefaultTimeout     = 10 * time.Second
	DefaultMaxAttempts = 3
)

// Config locates the Vault server.
type Config struct {
	Address     string
	Token       string
	Timeout     time.Duration
	MaxAttempts int
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Address == "" {
		return util.NewConfigError("vault.address", "is required")
	}
	if c.Timeout < 0 {
		return util.NewConfigError("vault.timeout", "must not be negative")
	}
	return nil
}

// Client reads KV v2 secrets.
type Client struct {
	api         *vaultapi.Client
	logger      observability.Logger
	metrics     *vaultMetrics
	maxAttempts int
	backoff     retry.Backoff
}

// New creates a client authenticated with a static token.
func New(cfg Config, logger observability.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}

	apiConfig := vaultapi.DefaultConfig()
	apiConfig.Address = cfg.Address
	apiConfig.Timeout = cfg.Timeout
	// Retries are handled by Read so they show up in the retry metrics.
	apiConfig.MaxRetries = 0

	api, err := vaultapi.NewClient(apiConfig)
	if err != nil {
		return nil, util.NewConfigErrorWithCause("vault.address", "failed to create vault client", err)
	}
	if cfg.Token != "" {
		api.SetToken(cfg.Token)
	}

	return &Client{
		api:         api,
		logger:      logger.With(observability.String("component", "vault")),
		metrics:     getMetrics(),
		maxAttempts: cfg.MaxAttempts,
		backoff:     retry.NewExponentialBackoff(100*time.Millisecond, 2*time.Second, 2, 0.2),
	}, nil
}

// ReadKV2 returns the data map of the latest version of mount/data/path.
// Soft-deleted and absent secrets yield ErrSecretNotFound.
func (c *Client) ReadKV2(ctx context.Context, mount, path string) (map[string]interface{}, error) {
	if mount == "" {
		mount = DefaultMount
	}
	if path == "" {
		return nil, newVaultError("kv_read", "", errors.New("path is required"))
	}
	fullPath := JoinPath(mount, "data", path)

	start := time.Now()
	var secret *vaultapi.Secret
	err := retry.Do(ctx, retry.Policy{
		Operation:   "vault_kv_read",
		MaxAttempts: c.maxAttempts,
		Backoff:     c.backoff,
	}, func(ctx context.Context, _ int) error {
		var err error
		secret, err = c.api.Logical().ReadWithContext(ctx, fullPath)
		return err
	}, &retry.Options{ShouldRetry: isRetryable})
	if err != nil {
		c.metrics.recordRequest("kv_read", "error", time.Since(start))
		return nil, newVaultError("kv_read", fullPath, err)
	}

	if secret == nil || secret.Data == nil {
		c.metrics.recordRequest("kv_read", "not_found", time.Since(start))
		return nil, newVaultError("kv_read", fullPath, ErrSecretNotFound)
	}

	// Deleted versions come back with "data": null.
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok || data == nil {
		c.metrics.recordRequest("kv_read", "not_found", time.Since(start))
		return nil, newVaultError("kv_read", fullPath, ErrSecretNotFound)
	}

	c.metrics.recordRequest("kv_read", "success", time.Since(start))
	c.logger.Debug("secret read", observability.String("path", fullPath))
	return data, nil
}

// isRetryable retries transport failures and server-side errors, never
// client errors such as permission denied.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var respErr *vaultapi.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode >= http.StatusInternalServerError
	}
	return true
}
