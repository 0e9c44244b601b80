// Package app wires configuration, infrastructure, and domain packages
// together per runtime mode, grounded on the teacher's internal/app.Run.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/pulsegrid/controlplane/internal/audit"
	"github.com/pulsegrid/controlplane/internal/auth"
	"github.com/pulsegrid/controlplane/internal/bus"
	"github.com/pulsegrid/controlplane/internal/cache"
	"github.com/pulsegrid/controlplane/internal/config"
	"github.com/pulsegrid/controlplane/internal/cryptoseal"
	"github.com/pulsegrid/controlplane/internal/edge"
	"github.com/pulsegrid/controlplane/internal/httpserver"
	"github.com/pulsegrid/controlplane/internal/platform"
	"github.com/pulsegrid/controlplane/internal/telemetry"
	"github.com/pulsegrid/controlplane/internal/tenantctx"
	"github.com/pulsegrid/controlplane/internal/ws"
	"github.com/pulsegrid/controlplane/pkg/ai"
	"github.com/pulsegrid/controlplane/pkg/alert"
	"github.com/pulsegrid/controlplane/pkg/errorgroup"
	"github.com/pulsegrid/controlplane/pkg/incident"
	"github.com/pulsegrid/controlplane/pkg/ingest"
	"github.com/pulsegrid/controlplane/pkg/metricstore"
	"github.com/pulsegrid/controlplane/pkg/notifier"
	"github.com/pulsegrid/controlplane/pkg/tenant"
	"github.com/pulsegrid/controlplane/pkg/tracing"
	"github.com/pulsegrid/controlplane/pkg/webhookintake"
)

const serviceName = "controlplane"

// Run reads config, connects to infrastructure, and starts the mode the
// config selects: api, worker, edge, or migrate.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting controlplane", "mode", cfg.Mode, "listen", cfg.ListenAddr())

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.OTLPEndpoint, serviceName, "dev")
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

	if cfg.Mode == "migrate" {
		if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		logger.Info("migrations applied")
		return nil
	}

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

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	metricsReg := telemetry.NewMetricsRegistry(telemetry.All()...)

	switch cfg.Mode {
	case "api":
		return runAPI(ctx, cfg, logger, db, rdb, metricsReg)
	case "worker":
		return runWorker(ctx, cfg, logger, db, rdb, metricsReg)
	case "edge":
		return runEdge(ctx, cfg, logger, db, rdb)
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

func runAPI(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry) error {
	sessionMgr, err := auth.NewSessionManager(cfg.JWTSigningKey, time.Duration(cfg.SessionMaxAgeHours)*time.Hour)
	if err != nil {
		return fmt.Errorf("creating session manager: %w", err)
	}

	apikeyAuth := &auth.APIKeyAuthenticator{DB: db, Cache: cache.NewAPIKeyCache(rdb)}
	apiRateLimiter := auth.NewRateLimiter(cfg.IngestRateLimitPerMinute)
	ingestRateLimiter := auth.NewRateLimiter(cfg.IngestRateLimitPerMinute)

	auditWriter := audit.NewWriter(db, logger)
	auditWriter.Start(ctx)
	defer auditWriter.Close()

	sealer, err := cryptoseal.New(cfg.EncryptionKey)
	if err != nil {
		return fmt.Errorf("creating sealer: %w", err)
	}

	eventBus := bus.New(rdb, logger)

	srv := httpserver.NewServer(cfg, logger, db, rdb, metricsReg, sessionMgr, apikeyAuth, apiRateLimiter)

	// Store/service layer, grounded on each package's NewStore/NewService.
	tenantStore := tenant.NewStore(db)
	tenantSvc := tenant.NewService(tenantStore, apikeyAuth.Cache, logger)
	tenantHandler := tenant.NewHandler(tenantSvc, logger)

	metricsStore := metricstore.NewStore(db)
	errorGroupStore := errorgroup.NewStore(db)
	tracingSvc := tracing.NewService(tracing.NewStore(db), logger)

	ingestStore := ingest.NewStore(db)
	ingestSvc := ingest.NewService(ingestStore, metricsStore, tracingSvc, errorGroupStore, logger)
	ingestHandler := ingest.NewHandler(ingestSvc, logger)

	alertStore := alert.NewStore(db)
	alertSvc := alert.NewService(alertStore, sealer, logger)
	alertHandler := alert.NewHandler(alertSvc, logger)

	incidentStore := incident.NewStore(db)
	incidentSvc := incident.NewService(incidentStore, eventBus, logger)
	incidentHandler := incident.NewHandler(incidentSvc, logger)

	aiLocker := cache.NewLocker(rdb)
	var aiGenerator ai.Generator
	if cfg.AIModelAPIKey != "" {
		aiGenerator = ai.NewAnthropicGenerator(cfg.AIModelAPIKey, cfg.AIModelEndpoint, cfg.AIModel)
		logger.Info("AI enrichment enabled", "model", cfg.AIModel)
	} else {
		aiGenerator = ai.NewMockGenerator()
		logger.Info("AI enrichment using mock generator (AI_MODEL_API_KEY not set)")
	}
	aiSvc := ai.NewService(incidentStore, aiLocker, aiGenerator, cfg.AIPriceInPerMillion, cfg.AIPriceOutPerMillion, eventBus, logger)
	aiHandler := ai.NewHandler(aiSvc, logger)

	auditHandler := audit.NewHandler(db, logger)

	// --- Authenticated, tenant-scoped /api/v1 surface ---
	// incidentHandler and aiHandler share the /incidents prefix; ai's routes
	// are added onto incident's router rather than mounted separately, since
	// chi disallows two sub-routers mounted at the same pattern.
	incidentsRouter := incidentHandler.Routes()
	aiHandler.Mount(incidentsRouter)
	srv.APIRouter.Mount("/incidents", incidentsRouter)
	srv.APIRouter.Mount("/alerts", alertHandler.Routes())
	srv.APIRouter.Mount("/audit-log", auditHandler.Routes())
	srv.APIRouter.Mount("/api-keys", tenantHandler.APIKeyRoutes())
	srv.APIRouter.Mount("/admin", tenantHandler.AdminRoutes())

	// --- Agent-facing ingest: API-key authenticated, its own rate limit ---
	srv.Router.Route("/ingest", func(r chi.Router) {
		r.Use(auth.Middleware(sessionMgr, apikeyAuth, logger))
		r.Use(auth.RequireAuth)
		r.Use(tenantctx.Middleware)
		r.Use(ingestRateLimiter.Middleware)
		r.Mount("/", ingestHandler.Routes())
	})

	// --- Webhook intake: unauthenticated at the HTTP layer, signature-verified internally ---
	webhookStore := webhookintake.NewStore(db)
	webhookHandler := webhookintake.NewHandler(webhookStore, sealer, logger)
	srv.Router.Mount("/webhooks", webhookHandler.Routes())

	// --- Realtime gateway: unauthenticated at the HTTP layer, JWT handshake per-connection ---
	gateway := ws.NewGateway(sessionMgr, eventBus, logger)
	go func() {
		if err := gateway.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("realtime gateway stopped", "error", err)
		}
	}()
	srv.Router.Get("/ws", gateway.ServeHTTP)

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

func runWorker(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, _ *prometheus.Registry) error {
	logger.Info("alert worker started", "tick_interval_seconds", cfg.AlertTickIntervalSeconds)

	sealer, err := cryptoseal.New(cfg.EncryptionKey)
	if err != nil {
		return fmt.Errorf("creating sealer: %w", err)
	}

	registry := notifier.NewRegistry()
	registry.Register(notifier.NewSlackProvider())
	registry.Register(notifier.NewWebhookProvider())
	registry.Register(notifier.NewTeamsProvider())
	registry.Register(notifier.NewPagerDutyProvider())
	if cfg.SMTPHost != "" {
		registry.Register(notifier.NewEmailProvider(cfg.SMTPHost, fmt.Sprintf("%d", cfg.SMTPPort), cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom))
		logger.Info("email notification channel enabled", "smtp_host", cfg.SMTPHost)
	} else {
		logger.Info("email notification channel disabled (SMTP_HOST not set)")
	}
	dispatcher := notifier.NewDispatcher(registry, sealer, logger)

	eventBus := bus.New(rdb, logger)
	metricsStore := metricstore.NewStore(db)
	alertStore := alert.NewStore(db)

	engine := alert.NewEngine(alertStore, metricsStore, dispatcher, eventBus, logger, time.Duration(cfg.AlertTickIntervalSeconds)*time.Second)
	return engine.Run(ctx)
}

func runEdge(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client) error {
	sessionMgr, err := auth.NewSessionManager(cfg.JWTSigningKey, time.Duration(cfg.SessionMaxAgeHours)*time.Hour)
	if err != nil {
		return fmt.Errorf("creating session manager: %w", err)
	}
	apikeyAuth := &auth.APIKeyAuthenticator{DB: db, Cache: cache.NewAPIKeyCache(rdb)}

	targets := []edge.Target{
		{Prefix: "/api/v1", BaseURL: cfg.InternalServiceURL, RequireAuth: true},
		{Prefix: "/ingest", BaseURL: cfg.InternalServiceURL, RequireAuth: true},
		{Prefix: "/webhooks", BaseURL: cfg.InternalServiceURL, RequireAuth: false},
		{Prefix: "/ws", BaseURL: cfg.InternalServiceURL, RequireAuth: false},
		{Prefix: "/healthz", BaseURL: cfg.InternalServiceURL, RequireAuth: false},
		{Prefix: "/readyz", BaseURL: cfg.InternalServiceURL, RequireAuth: false},
		{Prefix: "/status", BaseURL: cfg.InternalServiceURL, RequireAuth: false},
		{Prefix: "/metrics", BaseURL: cfg.InternalServiceURL, RequireAuth: false},
	}

	router, err := edge.NewRouter(targets, cfg.InternalServiceToken, time.Duration(cfg.InternalServiceTimeoutSeconds)*time.Second, sessionMgr, apikeyAuth, logger)
	if err != nil {
		return fmt.Errorf("building edge router: %w", err)
	}

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("edge router listening", "addr", cfg.ListenAddr(), "upstream", cfg.InternalServiceURL)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down edge router")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
