package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// Environment variables that override the file configuration.
const (
	EnvTrustedProxies   = "TRUSTED_PROXIES"
	EnvRateLimitWindow  = "RATE_LIMIT_WINDOW_MS"
	EnvRateLimitMax     = "RATE_LIMIT_MAX_REQUESTS"
	EnvJWTSecret        = "JWT_SECRET"
	EnvEnableAdminRole  = "ENABLE_ADMIN_ROLE"
	EnvStoreDriver      = "LANGGATE_STORE_DRIVER"
	EnvRedisAddr        = "LANGGATE_REDIS_ADDR"
	EnvPostgresDSN      = "LANGGATE_POSTGRES_DSN"
	EnvLogLevel         = "LANGGATE_LOG_LEVEL"
	EnvServerAddr       = "LANGGATE_ADDR"
	EnvRateLimitKeySrc  = "LANGGATE_RATE_LIMIT_KEY_SOURCE"
	EnvBootstrapEmail   = "LANGGATE_ADMIN_EMAIL"
	EnvBootstrapPasswrd = "LANGGATE_ADMIN_PASSWORD"
)

// LoadDotEnv loads variables from the given .env files into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// LoadConfig loads configuration from a YAML file layered over
// DefaultConfig, then applies environment overrides. An empty path skips
// the file.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		cfg := DefaultConfig()
		if err := applyEnvOverrides(cfg, os.LookupEnv); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", path, err)
	}

	f, err := os.Open(absPath) //nolint:gosec // operator-supplied config path
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	defer f.Close()

	return LoadConfigFromReader(f)
}

// LoadConfigFromReader loads configuration from an io.Reader.
func LoadConfigFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := DefaultConfig()
	content := substituteEnvVars(string(data))
	if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := applyEnvOverrides(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// substituteEnvVars replaces ${VAR} and ${VAR:-default} patterns with
// environment variable values. $$ escapes a literal dollar sign.
func substituteEnvVars(content string) string {
	content = strings.ReplaceAll(content, "$$", "\x00ESCAPED_DOLLAR\x00")

	result := envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		defaultValue := ""
		if len(submatches) >= 3 {
			defaultValue = submatches[2]
		}

		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return defaultValue
	})

	return strings.ReplaceAll(result, "\x00ESCAPED_DOLLAR\x00", "$")
}

// lookupFunc matches os.LookupEnv.
type lookupFunc func(string) (string, bool)

// applyEnvOverrides applies the environment variables the service has
// always honored directly.
func applyEnvOverrides(cfg *Config, lookup lookupFunc) error {
	if v, ok := lookup(EnvTrustedProxies); ok {
		cfg.ClientIP.TrustedProxies = splitList(v)
	}

	if v, ok := lookup(EnvRateLimitWindow); ok && v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvRateLimitWindow, v, err)
		}
		cfg.RateLimit.Window = time.Duration(ms) * time.Millisecond
	}

	if v, ok := lookup(EnvRateLimitMax); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvRateLimitMax, v, err)
		}
		cfg.RateLimit.MaxRequests = n
	}

	if v, ok := lookup(EnvEnableAdminRole); ok && v != "" {
		cfg.Auth.EnforceOwnership = parseBool(v)
	}

	setString(lookup, EnvJWTSecret, &cfg.Auth.JWT.Secret)
	setString(lookup, EnvStoreDriver, &cfg.Store.Driver)
	setString(lookup, EnvRedisAddr, &cfg.Store.Redis.Addr)
	setString(lookup, EnvPostgresDSN, &cfg.Store.Postgres.DSN)
	setString(lookup, EnvLogLevel, &cfg.Logging.Level)
	setString(lookup, EnvServerAddr, &cfg.Server.Addr)
	setString(lookup, EnvRateLimitKeySrc, &cfg.RateLimit.KeySource)
	setString(lookup, EnvBootstrapEmail, &cfg.Bootstrap.AdminEmail)
	setString(lookup, EnvBootstrapPasswrd, &cfg.Bootstrap.AdminPassword)

	return nil
}

func setString(lookup lookupFunc, key string, dst *string) {
	if v, ok := lookup(key); ok && v != "" {
		*dst = v
	}
}

// splitList splits a comma-separated list, trimming entries and dropping
// empty ones.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseBool accepts "true", "1", "yes", "on" (case-insensitive).
func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "on":
		return true
	default:
		return false
	}
}
