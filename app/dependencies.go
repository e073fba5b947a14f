package app

import (
	"context"
	"fmt"
	"time"

	"github.com/upb/mcp-auth-gateway/auth"
	"github.com/upb/mcp-auth-gateway/config"
	"github.com/upb/mcp-auth-gateway/internal/observability"
	"github.com/upb/mcp-auth-gateway/middleware"
	"github.com/upb/mcp-auth-gateway/repositories"
	"github.com/upb/mcp-auth-gateway/repositories/memory"
	"github.com/upb/mcp-auth-gateway/repositories/postgres"
	"github.com/upb/mcp-auth-gateway/repositories/postgrest"
	"github.com/upb/mcp-auth-gateway/services/audit"
	"github.com/upb/mcp-auth-gateway/services/authn"
	"github.com/upb/mcp-auth-gateway/services/privy"
	"github.com/upb/mcp-auth-gateway/services/secrets"
	"github.com/upb/mcp-auth-gateway/services/session"
	"github.com/upb/mcp-auth-gateway/services/tokens"
	"github.com/upb/mcp-auth-gateway/services/tools"
	"go.uber.org/zap"
)

const auditStopTimeout = 5 * time.Second

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config  *config.Config
	DB      *postgres.DB
	Logger  *zap.Logger
	Metrics *observability.Metrics

	// Repository Factory, nil unless a component uses PostgreSQL
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	SecretRepo repositories.SecretRepository
	AuditRepo  repositories.AuditRepository

	// Services
	Secrets       *secrets.Service
	Audit         *audit.AuditService
	Recorder      audit.Recorder
	Issuer        *tokens.Issuer
	TokenCache    *authn.TokenCache
	Authenticator *authn.Authenticator
	Privy         *privy.Client
	Session       *session.Flow
	Tools         *tools.Registry

	// Auth
	Guard          *middleware.Guard
	AuthMiddleware *middleware.AuthMiddleware
	authHandler    *auth.Handler

	stopCacheSweep chan struct{}
	sweepDone      chan struct{}
}

// AuthHandler returns the session handler for route wiring (implements handlers.AuthDeps)
func (d *Dependencies) AuthHandler() *auth.Handler {
	return d.authHandler
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:   cfg,
		Logger:   logger,
		Recorder: audit.Discard,
	}

	if cfg.Observability.MetricsEnabled {
		deps.Metrics = observability.NewMetrics()
	}

	if cfg.NeedsDatabase() {
		if err := deps.initDatabase(ctx, cfg); err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
	}

	if err := deps.initSecrets(cfg); err != nil {
		deps.closeDatabase()
		return nil, fmt.Errorf("failed to initialize secret store: %w", err)
	}

	if err := deps.initAudit(cfg); err != nil {
		deps.closeDatabase()
		return nil, fmt.Errorf("failed to initialize audit trail: %w", err)
	}

	if err := deps.initAuth(cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize authentication: %w", err)
	}

	if err := deps.initTools(cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize tools: %w", err)
	}

	logger.Info("all dependencies initialized successfully",
		zap.String("store_backend", cfg.Store.Backend),
		zap.Bool("audit_enabled", cfg.Audit.Enabled),
		zap.Bool("metrics_enabled", deps.Metrics != nil))
	return deps, nil
}

// initDatabase opens PostgreSQL and creates the schema
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	factory, err := postgres.NewRepositoryFactory(cfg, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}

	d.RepoFactory = factory
	d.DB = factory.GetDB()

	if err := d.DB.PingContext(ctx); err != nil {
		d.closeDatabase()
		return fmt.Errorf("database ping failed: %w", err)
	}

	if err := d.DB.InitSchema(ctx, cfg.Store.Table); err != nil {
		d.closeDatabase()
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	d.Logger.Info("database connection established",
		zap.String("connection", cfg.Database.LogString()))
	return nil
}

// initSecrets selects the store backend and builds the encrypting secrets service
func (d *Dependencies) initSecrets(cfg *config.Config) error {
	switch cfg.Store.Backend {
	case config.StoreBackendPostgREST:
		d.SecretRepo = postgrest.NewSecretRepository(postgrest.Config{
			BaseURL:    cfg.Store.URL,
			ServiceKey: cfg.Store.ServiceKey,
			Table:      cfg.Store.Table,
			Timeout:    cfg.Store.Timeout,
		}, d.Logger)
	case config.StoreBackendPostgres:
		d.SecretRepo = d.RepoFactory.Secrets(cfg.Store.Table)
	case config.StoreBackendMemory:
		d.Logger.Warn("using in-memory secret store; secrets and tokens are lost on restart")
		d.SecretRepo = memory.NewSecretRepository()
	default:
		return fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	cipher, err := secrets.LoadCipher(cfg.Store.EncryptionKey, d.Logger)
	if err != nil {
		return err
	}

	d.Secrets = secrets.NewService(d.SecretRepo, cipher, cfg.Store.Timeout, d.Metrics, d.Logger)
	d.Logger.Info("secret store initialized", zap.String("backend", cfg.Store.Backend))
	return nil
}

// initAudit starts the audit worker pool over the configured sink
func (d *Dependencies) initAudit(cfg *config.Config) error {
	if !cfg.Audit.Enabled {
		d.Logger.Info("audit trail disabled")
		return nil
	}

	switch cfg.Audit.Sink {
	case config.AuditSinkPostgres:
		d.AuditRepo = d.RepoFactory.AuditLogs()
	case config.AuditSinkMemory:
		d.AuditRepo = memory.NewAuditRepository(memory.DefaultAuditCapacity)
	default:
		d.AuditRepo = audit.NewLogSink(d.Logger)
	}

	d.Audit = audit.NewAuditService(d.AuditRepo, d.Logger, audit.Config{
		BufferSize:  cfg.Audit.BufferSize,
		WorkerCount: cfg.Audit.Workers,
	})
	if err := d.Audit.Start(); err != nil {
		return err
	}
	d.Recorder = d.Audit
	return nil
}

// initAuth builds the token issuer, authenticator, guard and session flow
func (d *Dependencies) initAuth(cfg *config.Config) error {
	signer, err := tokens.NewSigner(cfg.Auth.JWTSecret, cfg.Auth.JWTAlgorithm)
	if err != nil {
		return err
	}
	if !signer.Configured() {
		d.Logger.Warn("JWT_SECRET not set; JWT authentication and session endpoints are disabled")
	}

	d.Issuer = tokens.NewIssuer(d.Secrets, signer, d.Metrics, d.Logger)

	d.TokenCache = authn.NewTokenCache(cfg.Auth.CacheSize, cfg.Auth.CacheTTL)
	if cfg.Auth.CacheSweepInterval > 0 {
		d.stopCacheSweep = make(chan struct{})
		d.sweepDone = make(chan struct{})
		go func(cache *authn.TokenCache, interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
			defer close(done)
			cache.StartCleanupWorker(interval, stop)
		}(d.TokenCache, cfg.Auth.CacheSweepInterval, d.stopCacheSweep, d.sweepDone)
	}

	d.Authenticator = authn.NewAuthenticator(authn.Config{
		APITokenHeader: cfg.Auth.APITokenHeader,
		JWTHeader:      cfg.Auth.JWTHeader,
		RequiredScopes: cfg.Auth.RequiredScopes,
		Skip:           cfg.Auth.Skip,
	}, d.Secrets, d.Issuer, d.TokenCache, d.Metrics, d.Recorder, d.Logger)

	if cfg.Auth.Skip {
		d.Logger.Warn("AUTH_SKIP is enabled; every request runs as the development principal")
	}

	d.Guard = middleware.NewGuard(d.Authenticator, middleware.GuardConfig{
		Skip:           cfg.Auth.Skip,
		AllowUnguarded: cfg.Auth.AllowUnguarded,
	}, d.Metrics, d.Logger)
	d.AuthMiddleware = middleware.NewAuthMiddleware(d.Authenticator, d.Logger)

	d.Privy = privy.NewClient(privy.Config{
		AppID:     cfg.Privy.AppID,
		APIKey:    cfg.Privy.APIKey,
		BaseURL:   cfg.Privy.BaseURL,
		CreatorID: cfg.Privy.CreatorID,
		Timeout:   cfg.Privy.Timeout,
	}, d.Secrets, d.Logger)

	d.Session = session.NewFlow(d.Privy, d.Issuer, d.Secrets, session.Config{
		TokenTTL:   cfg.Auth.SessionTokenTTL,
		RefreshTTL: cfg.Auth.RefreshTokenTTL,
	}, d.Recorder, d.Logger)

	if signer.Configured() {
		d.authHandler = auth.NewHandler(d.Session, d.Issuer, d.Logger)
		d.Logger.Info("session handler initialized", zap.Bool("privy_configured", cfg.Privy.AppID != ""))
	}
	return nil
}

// initTools registers the built-in MCP tools behind the guard
func (d *Dependencies) initTools(cfg *config.Config) error {
	d.Tools = tools.NewRegistry(d.Guard)
	if err := tools.RegisterBuiltins(d.Tools, d.Secrets); err != nil {
		return err
	}
	d.Logger.Info("tools registered", zap.Int("count", len(d.Tools.List())))
	return nil
}

func (d *Dependencies) closeDatabase() {
	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			d.Logger.Warn("failed to close database", zap.Error(err))
		}
		d.RepoFactory = nil
		d.DB = nil
	}
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.stopCacheSweep != nil {
		close(d.stopCacheSweep)
		<-d.sweepDone
		d.stopCacheSweep = nil
		d.sweepDone = nil
	}

	// Drain audit events before the database goes away
	if d.Audit != nil {
		if err := d.Audit.Stop(auditStopTimeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop audit service: %w", err))
		}
		d.Audit = nil
		d.Recorder = audit.Discard
	}

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
		d.RepoFactory = nil
		d.DB = nil
	}

	// Sync logger
	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
