package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/vyrodovalexey/langgate/internal/apikeys"
	"github.com/vyrodovalexey/langgate/internal/auth"
	"github.com/vyrodovalexey/langgate/internal/auth/jwt"
	"github.com/vyrodovalexey/langgate/internal/authz"
	"github.com/vyrodovalexey/langgate/internal/config"
	"github.com/vyrodovalexey/langgate/internal/health"
	"github.com/vyrodovalexey/langgate/internal/kv"
	"github.com/vyrodovalexey/langgate/internal/languages"
	"github.com/vyrodovalexey/langgate/internal/middleware"
	"github.com/vyrodovalexey/langgate/internal/observability"
	"github.com/vyrodovalexey/langgate/internal/ratelimit"
	"github.com/vyrodovalexey/langgate/internal/router"
	"github.com/vyrodovalexey/langgate/internal/users"
	"github.com/vyrodovalexey/langgate/internal/vault"
)

// maxBodyBytes bounds request bodies on routes that accept input.
const maxBodyBytes int64 = 1 << 20

// msgWorking is the body of the root route.
const msgWorking = "It's working!"

// application holds all application components.
type application struct {
	config  *config.Config
	logger  observability.Logger
	store   kv.Store
	sweeper *kv.Sweeper
	metrics *observability.Metrics
	tracer  *observability.Tracer
	health  *health.Handler
	router  *router.Router
}

// appOptions carries test hooks.
type appOptions struct {
	now func() time.Time
}

type appOption func(*appOptions)

// withClock overrides the clock of the rate limiter and router.
func withClock(now func() time.Time) appOption {
	return func(o *appOptions) {
		o.now = now
	}
}

// newApplication wires every component from cfg. Resources opened before a
// failure are released.
func newApplication(
	ctx context.Context,
	cfg *config.Config,
	logger observability.Logger,
	opts ...appOption,
) (_ *application, err error) {
	o := appOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	app := &application{
		config:  cfg,
		logger:  logger,
		metrics: observability.NewMetrics("langgate"),
	}
	app.metrics.SetBuildInfo(version, gitCommit, buildTime)

	app.tracer, err = observability.NewTracer(cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}

	app.store, err = kv.Open(ctx, cfg.Store, logger)
	if err != nil {
		_ = app.tracer.Shutdown(ctx)
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		if err != nil {
			app.close(ctx)
		}
	}()

	if purger, ok := app.store.(kv.Purger); ok {
		app.sweeper = kv.NewSweeper(purger, cfg.Store.SweepSchedule, logger)
	}

	app.health = health.NewHandler(
		health.WithLogger(logger),
		health.WithVersion(version),
	)
	app.health.AddCheck(health.StoreCheck("store", app.store))

	keys, err := newKeySource(cfg, logger)
	if err != nil {
		return nil, err
	}
	oracle, err := jwt.NewHMACOracle(keys, jwt.Config{
		Issuer:    cfg.Auth.JWT.Issuer,
		Expiry:    cfg.Auth.JWT.Expiry,
		ClockSkew: cfg.Auth.JWT.ClockSkew,
	}, jwt.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create token oracle: %w", err)
	}

	usersSvc := users.NewService(app.store, users.WithLogger(logger))
	if err := bootstrapAdmin(ctx, cfg.Bootstrap, usersSvc, logger); err != nil {
		return nil, err
	}

	app.router = router.New(
		router.WithLogger(logger),
		router.WithMetrics(app.metrics),
		router.WithTracer(app.tracer),
		router.WithClock(o.now),
	)

	if err := app.installGlobalMiddleware(o); err != nil {
		return nil, err
	}

	routes := routeSet{
		users:     users.NewHandler(usersSvc, oracle, logger),
		languages: languages.NewHandler(languages.NewService(app.store, languages.WithLogger(logger))),
		keys:      apikeys.NewHandler(apikeys.NewService(app.store, apikeys.WithLogger(logger))),
		gate:      auth.NewGate(oracle, usersSvc, auth.WithLogger(logger)),
	}
	if err := routes.register(app.router, cfg.Auth.EnforceOwnership, logger); err != nil {
		return nil, err
	}

	return app, nil
}

// newKeySource returns the JWT signing key source selected by
// auth.jwt.secretSource.
func newKeySource(cfg *config.Config, logger observability.Logger) (jwt.KeySource, error) {
	if cfg.Auth.JWT.SecretSource != config.SecretSourceVault {
		return jwt.StaticKey(cfg.Auth.JWT.Secret), nil
	}

	client, err := vault.New(vault.Config{
		Address: cfg.Vault.Address,
		Token:   cfg.Vault.Token,
		Timeout: cfg.Vault.Timeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	logger.Info("reading JWT secret from vault",
		observability.String("mount", cfg.Vault.Mount),
		observability.String("path", cfg.Vault.Path),
	)
	return vault.NewSecretSource(client, cfg.Vault.Mount, cfg.Vault.Path, cfg.Vault.Key,
		vault.WithLogger(logger)), nil
}

// bootstrapAdmin creates the configured admin account if it does not exist.
func bootstrapAdmin(
	ctx context.Context,
	cfg config.BootstrapConfig,
	svc *users.Service,
	logger observability.Logger,
) error {
	if cfg.AdminEmail == "" {
		return nil
	}

	u, created, err := svc.EnsureAdmin(ctx, users.Registration{
		Name:     cfg.AdminName,
		Email:    cfg.AdminEmail,
		Password: cfg.AdminPassword,
	})
	if err != nil {
		return fmt.Errorf("failed to bootstrap admin account: %w", err)
	}
	if created {
		logger.Info("admin account created", observability.String("user_id", u.ID))
	}
	return nil
}

// installGlobalMiddleware installs the middlewares that run ahead of every
// route: request ID, client address and, when enabled, the rate limiter.
func (app *application) installGlobalMiddleware(o appOptions) error {
	cfg := app.config
	global := []router.Middleware{middleware.RequestID(nil)}

	key := middleware.RemoteKey()
	if cfg.RateLimit.KeySource == config.KeySourceForwarded {
		proxies := middleware.ParseTrustedProxies(cfg.ClientIP.TrustedProxies, app.logger)
		key = middleware.ForwardedKey(middleware.NewClientIPResolver(proxies, app.logger))
	}
	global = append(global, middleware.ClientIP(key))

	if cfg.RateLimit.Enabled {
		limitCfg := ratelimit.DefaultConfig()
		limitCfg.Window = cfg.RateLimit.Window
		limitCfg.MaxRequests = cfg.RateLimit.MaxRequests
		limitCfg.MaxAttempts = cfg.RateLimit.MaxAttempts
		limitCfg.RetryBackoff = cfg.RateLimit.RetryBackoff

		limiter, err := ratelimit.New(app.store, limitCfg,
			ratelimit.WithLogger(app.logger),
			ratelimit.WithClock(o.now),
		)
		if err != nil {
			return fmt.Errorf("failed to create rate limiter: %w", err)
		}
		global = append(global, middleware.RateLimit(limiter, app.logger))
	}

	return app.router.Use(global...)
}

// routeSet groups the handlers mounted on the public router.
type routeSet struct {
	users     *users.Handler
	languages *languages.Handler
	keys      *apikeys.Handler
	gate      *auth.Gate
}

func (s routeSet) register(r *router.Router, enforceOwnership bool, logger observability.Logger) error {
	authn := s.gate.Middleware()
	body := middleware.BodyLimit(maxBodyBytes, logger)
	adminOnly := authz.Require(authz.AdminOnly(), logger)
	ownerOrAdmin := authz.Require(authz.OwnerOrAdmin(), logger)

	readUser := []router.Middleware{authn}
	if enforceOwnership {
		readUser = append(readUser, ownerOrAdmin)
	}

	routes := []struct {
		route   string
		handler router.HandlerFunc
		mw      []router.Middleware
	}{
		{"GET /", root, nil},

		{"POST /users/add", s.users.Add, []router.Middleware{body}},
		{"POST /users/login", s.users.Login, []router.Middleware{body}},
		{"GET /users", s.users.List, []router.Middleware{authn, adminOnly}},
		{"GET /users/:id", s.users.Get, readUser},
		{"DELETE /users/:id", s.users.Delete, []router.Middleware{authn, ownerOrAdmin}},

		{"POST /languages/add", s.languages.Add, []router.Middleware{authn, body}},
		{"GET /languages", s.languages.List, []router.Middleware{authn}},
		{"GET /languages/:code", s.languages.Get, []router.Middleware{authn}},
		{"DELETE /languages/:id", s.languages.Delete, []router.Middleware{authn}},

		{"POST /key/add", s.keys.Add, []router.Middleware{authn}},
		{"GET /key", s.keys.Get, []router.Middleware{authn}},
		{"DELETE /key", s.keys.Delete, []router.Middleware{authn}},
	}

	for _, rt := range routes {
		if _, err := r.Route(rt.route, rt.handler, rt.mw...); err != nil {
			return fmt.Errorf("failed to register %q: %w", rt.route, err)
		}
	}
	return nil
}

func root(_ *http.Request, _ router.Params, _ router.ConnInfo) (*router.Response, error) {
	return router.Text(http.StatusOK, msgWorking), nil
}

// start launches background tasks.
func (app *application) start(ctx context.Context) error {
	if app.sweeper == nil {
		return nil
	}
	return app.sweeper.Start(ctx)
}

// close releases the store and flushes traces.
func (app *application) close(ctx context.Context) {
	var errs []error
	if app.sweeper != nil {
		app.sweeper.Stop()
	}
	if app.store != nil {
		if err := app.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store: %w", err))
		}
	}
	if err := app.tracer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("tracer: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		app.logger.Error("failed to release resources", observability.Error(err))
	}
}
