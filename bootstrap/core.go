package bootstrap

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/otel/metric"

	"github.com/kbukum/accountguard/authflow"
	"github.com/kbukum/accountguard/component"
	"github.com/kbukum/accountguard/config"
	"github.com/kbukum/accountguard/credential"
	"github.com/kbukum/accountguard/cryptotier"
	"github.com/kbukum/accountguard/diagnostics"
	apperrors "github.com/kbukum/accountguard/errors"
	"github.com/kbukum/accountguard/guardian"
	"github.com/kbukum/accountguard/logger"
	"github.com/kbukum/accountguard/recovery"
	"github.com/kbukum/accountguard/store"
	"github.com/kbukum/accountguard/version"
)

// Core is the assembled system. Fields are exported so hosts can reach any
// layer directly; lifecycle goes through Start/Stop.
type Core struct {
	Config      config.CoreConfig
	Log         *logger.Logger
	Negotiator  *cryptotier.Negotiator
	Hasher      *credential.Hasher
	Store       *store.Store
	Recovery    *recovery.Manager
	Sessions    *diagnostics.SessionStore
	Sink        diagnostics.Sink
	Coordinator *authflow.Coordinator
	Components  *component.Registry

	// Warnings collects every CONFIG_INVALID substitution made while
	// normalizing the configuration.
	Warnings []*apperrors.AppError
}

// Option configures the assembly.
type Option func(*options)

type options struct {
	log      *logger.Logger
	meter    metric.Meter
	auth     []authflow.Option
	withAuth bool
}

// WithLogger replaces the logger built from the config.
func WithLogger(log *logger.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithMeter installs an OpenTelemetry meter for diagnostic report counters.
func WithMeter(meter metric.Meter) Option {
	return func(o *options) { o.meter = meter }
}

// WithAuthOptions forwards options to the authentication coordinator.
func WithAuthOptions(opts ...authflow.Option) Option {
	return func(o *options) { o.auth = opts }
}

// New wires the core from a configuration. Invalid configuration values are
// substituted, never fatal; the substitutions are kept on Core.Warnings.
// Nothing touches the disk until Start.
func New(cfg config.CoreConfig, opts ...Option) (*Core, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	warnings := cfg.Normalize()

	log := o.log
	if log == nil {
		log = logger.New(&cfg.Logging, cfg.Base.Name)
	}
	log.Info("assembling core", logger.Fields(
		"environment", cfg.Base.Environment,
		"version", version.Short(),
	))

	neg := cryptotier.New(log)
	guard := guardian.New(log)

	st, err := store.New(cfg.Store, guard, log)
	if err != nil {
		return nil, err
	}
	manager := recovery.NewManager(cfg.Recovery, st, log)
	sessions := diagnostics.NewSessionStore(cfg.Diagnostics)

	var sink diagnostics.Sink
	if o.meter != nil {
		sink = diagnostics.NewLogSink(log, diagnostics.WithMeter(o.meter))
	} else {
		sink = diagnostics.NewLogSink(log)
	}

	hasher, hashWarnings := credential.NewHasher(neg, cfg.Credential, log)
	warnings = append(warnings, hashWarnings...)

	coordinator, coordWarnings, err := authflow.NewCoordinator(
		cfg.Auth, st, hasher, neg, sessions, sink, log, o.auth...)
	if err != nil {
		return nil, err
	}
	warnings = append(warnings, coordWarnings...)

	registry := component.NewRegistry(log)
	if err := registry.Register(manager); err != nil {
		return nil, err
	}
	if err := registry.Register(diagnostics.NewSweeper(sessions, log, coordinator.SweepLockouts)); err != nil {
		return nil, err
	}

	for _, w := range warnings {
		log.Warn(w.Message)
	}

	return &Core{
		Config:      cfg,
		Log:         log,
		Negotiator:  neg,
		Hasher:      hasher,
		Store:       st,
		Recovery:    manager,
		Sessions:    sessions,
		Sink:        sink,
		Coordinator: coordinator,
		Components:  registry,
		Warnings:    warnings,
	}, nil
}

// Start brings up every component: storage bootstrap (with emergency
// recovery if needed) first, then the session sweeper.
func (c *Core) Start(ctx context.Context) error {
	return c.Components.StartAll(ctx)
}

// Stop shuts components down in reverse start order.
func (c *Core) Stop(ctx context.Context) error {
	return c.Components.StopAll(ctx)
}

// Health reports every component's health.
func (c *Core) Health(ctx context.Context) []component.Health {
	return c.Components.HealthAll(ctx)
}

// Run starts the core, blocks until a termination signal or context
// cancellation, then stops it.
func (c *Core) Run(ctx context.Context) error {
	if err := c.Start(ctx); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		c.Log.Info("shutdown signal received", logger.Fields("signal", sig.String()))
	case <-ctx.Done():
		c.Log.Info("context canceled, shutting down")
	}
	return c.Stop(context.Background())
}
