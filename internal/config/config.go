package config

import (
	"fmt"
	"time"

	"github.com/vyrodovalexey/langgate/internal/observability"
	"github.com/vyrodovalexey/langgate/internal/util"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Rate limit key sources.
const (
	KeySourceForwarded = "forwarded"
	KeySourceRemote    = "remote"
)

// JWT secret sources.
const (
	SecretSourceEnv   = "env"
	SecretSourceVault = "vault"
)

// Config holds all configuration settings for langgate.
type Config struct {
	Server    ServerConfig               `yaml:"server"`
	Logging   observability.LogConfig    `yaml:"logging"`
	Metrics   MetricsConfig              `yaml:"metrics"`
	Tracing   observability.TracerConfig `yaml:"tracing"`
	Store     StoreConfig                `yaml:"store"`
	RateLimit RateLimitConfig            `yaml:"rateLimit"`
	ClientIP  ClientIPConfig             `yaml:"clientIP"`
	Auth      AuthConfig                 `yaml:"auth"`
	Vault     VaultConfig                `yaml:"vault"`
	Bootstrap BootstrapConfig            `yaml:"bootstrap"`
}

// ServerConfig configures the public HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	IdleTimeout     time.Duration `yaml:"idleTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// MetricsConfig configures the operational listener serving /metrics and
// the health probes.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// StoreConfig selects and configures the key-value store.
type StoreConfig struct {
	Driver        string         `yaml:"driver"`
	SweepSchedule string         `yaml:"sweepSchedule"`
	Redis         RedisConfig    `yaml:"redis"`
	SQLite        SQLiteConfig   `yaml:"sqlite"`
	Postgres      PostgresConfig `yaml:"postgres"`
	Breaker       BreakerConfig  `yaml:"breaker"`
}

// RedisConfig configures the Redis store.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// SQLiteConfig configures the embedded SQLite store.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PostgresConfig configures the PostgreSQL store.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// BreakerConfig configures the circuit breaker guarding store calls.
type BreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures int           `yaml:"maxFailures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// RateLimitConfig configures the fixed-window limiter.
type RateLimitConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Window       time.Duration `yaml:"window"`
	MaxRequests  int           `yaml:"maxRequests"`
	MaxAttempts  int           `yaml:"maxAttempts"`
	RetryBackoff time.Duration `yaml:"retryBackoff"`
	KeySource    string        `yaml:"keySource"`
}

// ClientIPConfig configures the forwarded-address trust boundary.
type ClientIPConfig struct {
	TrustedProxies []string `yaml:"trustedProxies"`
}

// AuthConfig configures bearer-token authentication.
type AuthConfig struct {
	JWT              JWTConfig `yaml:"jwt"`
	EnforceOwnership bool      `yaml:"enforceOwnership"`
}

// JWTConfig configures token signing.
type JWTConfig struct {
	Secret       string        `yaml:"secret"`
	SecretSource string        `yaml:"secretSource"`
	Issuer       string        `yaml:"issuer"`
	Expiry       time.Duration `yaml:"expiry"`
	ClockSkew    time.Duration `yaml:"clockSkew"`
}

// VaultConfig locates the JWT secret in a Vault KV v2 engine.
type VaultConfig struct {
	Address string        `yaml:"address"`
	Token   string        `yaml:"token"`
	Mount   string        `yaml:"mount"`
	Path    string        `yaml:"path"`
	Key     string        `yaml:"key"`
	Timeout time.Duration `yaml:"timeout"`
}

// BootstrapConfig creates an initial admin account at startup.
type BootstrapConfig struct {
	AdminName     string `yaml:"adminName"`
	AdminEmail    string `yaml:"adminEmail"`
	AdminPassword string `yaml:"adminPassword"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":4242",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Logging: observability.DefaultLogConfig(),
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
		Tracing: observability.TracerConfig{
			ServiceName:  "langgate",
			SamplingRate: 1.0,
		},
		Store: StoreConfig{
			Driver:        DriverSQLite,
			SweepSchedule: "@every 1m",
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "langgate:",
			},
			SQLite: SQLiteConfig{
				Path: ".db/data.sqlite3",
			},
			Breaker: BreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				Timeout:     10 * time.Second,
			},
		},
		RateLimit: RateLimitConfig{
			Enabled:      true,
			Window:       60 * time.Second,
			MaxRequests:  10,
			MaxAttempts:  3,
			RetryBackoff: 50 * time.Millisecond,
			KeySource:    KeySourceForwarded,
		},
		Auth: AuthConfig{
			JWT: JWTConfig{
				SecretSource: SecretSourceEnv,
				Issuer:       "langgate",
				Expiry:       time.Hour,
				ClockSkew:    30 * time.Second,
			},
		},
		Vault: VaultConfig{
			Mount:   "secret",
			Key:     "jwt_secret",
			Timeout: 10 * time.Second,
		},
		Bootstrap: BootstrapConfig{
			AdminName: "admin",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return util.NewConfigError("server.addr", "is required")
	}

	if c.Metrics.Enabled {
		if err := validatePort(c.Metrics.Port, "metrics.port"); err != nil {
			return err
		}
	}

	if err := c.validateStore(); err != nil {
		return err
	}

	if err := c.validateRateLimit(); err != nil {
		return err
	}

	return c.validateAuth()
}

func (c *Config) validateStore() error {
	switch c.Store.Driver {
	case DriverMemory:
	case DriverRedis:
		if c.Store.Redis.Addr == "" {
			return util.NewConfigError("store.redis.addr", "is required for the redis driver")
		}
	case DriverSQLite:
		if c.Store.SQLite.Path == "" {
			return util.NewConfigError("store.sqlite.path", "is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Store.Postgres.DSN == "" {
			return util.NewConfigError("store.postgres.dsn", "is required for the postgres driver")
		}
	default:
		return util.NewConfigError("store.driver",
			fmt.Sprintf("invalid driver %q, must be one of: memory, redis, sqlite, postgres", c.Store.Driver))
	}

	if c.Store.Breaker.Enabled {
		if c.Store.Breaker.MaxFailures <= 0 {
			return util.NewConfigError("store.breaker.maxFailures", "must be positive")
		}
		if c.Store.Breaker.Timeout <= 0 {
			return util.NewConfigError("store.breaker.timeout", "must be positive")
		}
	}
	return nil
}

func (c *Config) validateRateLimit() error {
	rl := c.RateLimit
	if !rl.Enabled {
		return nil
	}
	if rl.Window <= 0 {
		return util.NewConfigError("rateLimit.window", "must be positive")
	}
	if rl.MaxRequests <= 0 {
		return util.NewConfigError("rateLimit.maxRequests", "must be positive")
	}
	if rl.MaxAttempts <= 0 {
		return util.NewConfigError("rateLimit.maxAttempts", "must be positive")
	}
	if rl.RetryBackoff < 0 {
		return util.NewConfigError("rateLimit.retryBackoff", "must not be negative")
	}
	if rl.KeySource != KeySourceForwarded && rl.KeySource != KeySourceRemote {
		return util.NewConfigError("rateLimit.keySource",
			fmt.Sprintf("invalid key source %q, must be one of: forwarded, remote", rl.KeySource))
	}
	return nil
}

func (c *Config) validateAuth() error {
	jwt := c.Auth.JWT
	if jwt.Expiry <= 0 {
		return util.NewConfigError("auth.jwt.expiry", "must be positive")
	}

	switch jwt.SecretSource {
	case SecretSourceEnv:
		if jwt.Secret == "" {
			return util.NewConfigError("auth.jwt.secret", "is required (set JWT_SECRET)")
		}
	case SecretSourceVault:
		if c.Vault.Address == "" {
			return util.NewConfigError("vault.address", "is required when auth.jwt.secretSource is vault")
		}
		if c.Vault.Path == "" {
			return util.NewConfigError("vault.path", "is required when auth.jwt.secretSource is vault")
		}
	default:
		return util.NewConfigError("auth.jwt.secretSource",
			fmt.Sprintf("invalid secret source %q, must be one of: env, vault", jwt.SecretSource))
	}

	if (c.Bootstrap.AdminEmail == "") != (c.Bootstrap.AdminPassword == "") {
		return util.NewConfigError("bootstrap", "adminEmail and adminPassword must be set together")
	}
	return nil
}

func validatePort(port int, name string) error {
	if port < 1 || port > 65535 {
		return util.NewConfigError(name, fmt.Sprintf("invalid port %d", port))
	}
	return nil
}
