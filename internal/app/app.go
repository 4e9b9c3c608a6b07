// Package app wires configuration, infrastructure, and the HTTP/worker
// surfaces together and runs the selected mode.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/fleetgate/agentctl/internal/admission"
	"github.com/fleetgate/agentctl/internal/authn"
	"github.com/fleetgate/agentctl/internal/config"
	"github.com/fleetgate/agentctl/internal/gateway"
	"github.com/fleetgate/agentctl/internal/httpserver"
	"github.com/fleetgate/agentctl/internal/platform"
	"github.com/fleetgate/agentctl/internal/ratelimit"
	"github.com/fleetgate/agentctl/internal/telemetry"
	"github.com/fleetgate/agentctl/pkg/plan"
	"github.com/fleetgate/agentctl/pkg/provisioning"
	"github.com/fleetgate/agentctl/pkg/tenant"
	"github.com/fleetgate/agentctl/pkg/usage"
)

const serviceVersion = "dev"

// Run reads config, connects to infrastructure, and starts the mode named
// by cfg.Mode: "api", "worker", or "worker-once".
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting agentctl", "mode", cfg.Mode, "listen", cfg.ListenAddr())

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.OTLPEndpoint, "agentctl", serviceVersion)
	if err != nil {
		return fmt.Errorf("initializing tracer: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Error("shutting down tracer", "error", err)
		}
	}()

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsGlobalDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")

	plans := plan.NewPostgresStore(db)
	if err := plans.EnsureSeeded(ctx); err != nil {
		return fmt.Errorf("seeding plan catalog: %w", err)
	}
	tenants := tenant.NewPostgresStore(db)
	meter := usage.NewPostgresMeter(db)

	var queue provisioning.Queue = provisioning.NewPostgresQueue(db)
	if cfg.QueueBackend == "redis" {
		queue = provisioning.NewNotifyingQueue(queue, rdb, "agentctl:provisioning", logger)
	}

	metricsReg := telemetry.NewMetricsRegistry(telemetry.All()...)

	switch cfg.Mode {
	case "api":
		return runAPI(ctx, cfg, logger, db, rdb, metricsReg, tenants, plans, meter, queue)
	case "worker":
		return runWorker(ctx, cfg, logger, tenants, queue)
	case "worker-once":
		processed, err := provisioning.ProcessNext(ctx, queue, tenants, cfg.ProvisioningJobMaxAttempts, cfg.ProvisioningRetryBaseSeconds, logger)
		if err != nil {
			return fmt.Errorf("processing job: %w", err)
		}
		logger.Info("worker-once tick complete", "processed", processed)
		return nil
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

func buildTenantAuthenticator(cfg *config.Config, logger *slog.Logger) (*authn.TenantAuthenticator, error) {
	apiKeys, err := cfg.TenantAPIKeys()
	if err != nil {
		return nil, fmt.Errorf("parsing tenant API keys: %w", err)
	}

	bearer, err := buildBearerVerifier(cfg)
	if err != nil {
		return nil, err
	}

	if len(apiKeys) == 0 && bearer == nil {
		logger.Warn("tenant authentication is not configured")
	}

	return authn.NewTenantAuthenticator(apiKeys, bearer, cfg.AllowAPIKeyFallback, cfg.IsProduction()), nil
}

func buildBearerVerifier(cfg *config.Config) (*authn.BearerVerifier, error) {
	bcfg := authn.BearerConfig{
		Algorithm:    jose.SignatureAlgorithm(cfg.JWTAlgorithm),
		SharedSecret: []byte(cfg.JWTSharedSecret),
		JWKSURL:      cfg.JWTJWKSURL,
		Issuer:       cfg.JWTIssuer,
		Audience:     cfg.JWTAudience,
		JWKSCacheTTL: time.Duration(cfg.JWTJWKSCacheTTLSeconds) * time.Second,
	}
	if len(bcfg.SharedSecret) == 0 && bcfg.JWKSURL == "" {
		return nil, nil
	}
	bearer, err := authn.NewBearerVerifier(bcfg)
	if err != nil {
		return nil, fmt.Errorf("configuring bearer verifier: %w", err)
	}
	return bearer, nil
}

func runAPI(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	db *pgxpool.Pool,
	rdb *redis.Client,
	metricsReg *prometheus.Registry,
	tenants tenant.Store,
	plans plan.Store,
	meter usage.Meter,
	queue provisioning.Queue,
) error {
	tenantAuth, err := buildTenantAuthenticator(cfg, logger)
	if err != nil {
		return err
	}

	bearer, err := buildBearerVerifier(cfg)
	if err != nil {
		return err
	}
	adminAuth := authn.NewAdminAuthenticator(bearer)

	var limiter ratelimit.Limiter
	if cfg.RateLimitBackend == "redis" {
		limiter = ratelimit.NewRedisLimiter(rdb, cfg.RateLimitKeyPrefix, cfg.DefaultRateLimitRPM, cfg.RateLimitFailOpen)
	} else {
		limiter = ratelimit.NewMemoryLimiter(cfg.DefaultRateLimitRPM)
	}

	gw := gateway.NewPlaceholderGateway()
	pipeline := admission.New(tenants, plans, limiter, meter, gw, tenantAuth)

	deps := httpserver.Deps{
		Tenants:              tenants,
		Plans:                plans,
		ProvisioningQ:        queue,
		Usage:                meter,
		Pipeline:             pipeline,
		AdminAuth:            adminAuth,
		DefaultMaxAttempts:   cfg.ProvisioningJobMaxAttempts,
		DefaultRetryBaseSecs: cfg.ProvisioningRetryBaseSeconds,
	}

	srv := httpserver.NewServer(httpserver.Config{CORSAllowedOrigins: cfg.CORSAllowedOrigins}, logger, db, rdb, metricsReg, deps)

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func runWorker(ctx context.Context, cfg *config.Config, logger *slog.Logger, tenants tenant.Store, queue provisioning.Queue) error {
	pollInterval := time.Duration(cfg.ProvisioningWorkerPollSeconds) * time.Second
	provisioning.RunLoop(ctx, queue, tenants, cfg.ProvisioningJobMaxAttempts, cfg.ProvisioningRetryBaseSeconds, pollInterval, logger)
	return nil
}
