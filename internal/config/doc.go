// Package config loads langgate's configuration.
//
// Settings are layered: DefaultConfig, then an optional YAML file (with
// ${VAR} and ${VAR:-default} substitution), then a fixed set of environment
// variables such as TRUSTED_PROXIES, RATE_LIMIT_WINDOW_MS and JWT_SECRET.
// A .env file may seed the environment through LoadDotEnv.
//
// Watcher re-reads the file on change so the log level can be adjusted
// without a restart.
package config
