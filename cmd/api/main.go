// Package main is the entry point for the logbook API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/cleansport/logbook/internal/api"
	"github.com/cleansport/logbook/internal/compliance"
	"github.com/cleansport/logbook/internal/config"
	"github.com/cleansport/logbook/internal/db"
	"github.com/cleansport/logbook/internal/entry"
	"github.com/cleansport/logbook/internal/health"
	"github.com/cleansport/logbook/internal/idempotency"
	"github.com/cleansport/logbook/internal/identity"
	"github.com/cleansport/logbook/internal/logbook"
	"github.com/cleansport/logbook/internal/middleware"
	"github.com/cleansport/logbook/internal/permission"
	"github.com/cleansport/logbook/internal/tracing"
	"github.com/cleansport/logbook/internal/verification"
)

const serviceName = "logbook-api"

func main() {
	configPath := flag.String("config", "", "path to optional YAML config file")
	help := flag.Bool("help", false, "display help message")
	flag.Parse()

	if *help {
		fmt.Println("Logbook API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	summaryAttrs := make([]any, 0, len(cfg.LogSummary())*2)
	for key, val := range cfg.LogSummary() {
		summaryAttrs = append(summaryAttrs, key, val)
	}
	logger.Info("configuration loaded", summaryAttrs...)

	// Tracing is set up first so every downstream component picks up the
	// global tracer provider.
	traceProvider, err := tracing.NewProvider(tracing.Config{
		ServiceName:  serviceName,
		Enabled:      cfg.TracingEnabled,
		Environment:  cfg.Env,
		ExporterType: cfg.TracingExporter,
		OTLPEndpoint: cfg.OTLPEndpoint,
		SamplingRate: cfg.TracingSampleRate,
		InsecureMode: cfg.Env == "development",
	})
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	database, err := db.Open(ctx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	// Redis is optional. Without it the certification cache and rate
	// limiter fall back to in-process implementations, which is fine for
	// a single replica.
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
	}

	registry := prometheus.NewRegistry()
	httpMetrics := middleware.NewMetrics()
	verificationMetrics := verification.NewMetrics()
	logbookMetrics := logbook.NewMetrics()
	complianceMetrics := compliance.NewSummaryMetrics()
	for _, register := range []func(prometheus.Registerer) error{
		httpMetrics.Register,
		verificationMetrics.Register,
		logbookMetrics.Register,
		complianceMetrics.Register,
	} {
		if err := register(registry); err != nil {
			logger.Error("failed to register metrics", "error", err)
			os.Exit(1)
		}
	}

	authorityTimeout := time.Duration(cfg.AuthorityTimeoutSeconds) * time.Second
	var authorities []verification.Authority
	if cfg.NSFEndpoint != "" {
		authorities = append(authorities, verification.NewNSFAuthority(cfg.NSFEndpoint, authorityTimeout))
	}
	if cfg.InformedSportEndpoint != "" {
		authorities = append(authorities, verification.NewInformedSportAuthority(cfg.InformedSportEndpoint, authorityTimeout))
	}
	if cfg.GlobalDROEndpoint != "" {
		authorities = append(authorities, verification.NewGlobalDROAuthority(cfg.GlobalDROEndpoint, authorityTimeout))
	}
	if len(authorities) == 0 {
		logger.Warn("no certification authority endpoints configured; verification will rely on the local catalogue")
	}

	cacheTTL := time.Duration(cfg.CacheTTLHours) * time.Hour
	var certCache verification.Cache
	if redisClient != nil {
		certCache = verification.NewRedisCache(redisClient, cacheTTL)
	} else {
		certCache = verification.NewMemoryCache(cacheTTL)
	}

	supplements := verification.NewPostgresSupplementSource(database, logger)
	verifier := verification.NewVerifier(authorities, certCache, supplements, logger,
		verification.WithMetrics(verificationMetrics))

	roleStore := permission.NewPostgresRoleStore(database, logger)
	relationshipStore := permission.NewPostgresRelationshipStore(database, logger)
	resolver := permission.NewResolver(roleStore, relationshipStore, logger)

	var jwtService *identity.JWTService
	if cfg.JWTPreviousSecret != "" {
		jwtService = identity.NewJWTServiceWithRotation(cfg.JWTSecret, cfg.JWTPreviousSecret)
	} else {
		jwtService = identity.NewJWTService(cfg.JWTSecret)
	}

	entryRepo := entry.NewPostgresRepository(database, logger)
	service := logbook.NewService(entryRepo, resolver, verifier, identity.ContextProvider{}, logger,
		logbook.WithMetrics(logbookMetrics))
	summarizer := compliance.NewSummarizer(service, logger,
		compliance.WithMetrics(complianceMetrics))

	healthConfig := api.HealthHandlersConfig{
		DBChecker: health.NewDBChecker(database),
	}
	if redisClient != nil {
		healthConfig.RedisChecker = health.NewRedisChecker(redisClient)
	}

	mux := api.NewRouter(api.RouterConfig{
		Entries:      api.NewEntryHandlers(service),
		Compliance:   api.NewComplianceHandlers(summarizer),
		Verification: api.NewVerificationHandlers(verifier),
		Health:       api.NewHealthHandlers(healthConfig),
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	var limitStore middleware.RateLimitStore
	if redisClient != nil {
		limitStore = middleware.NewRedisRateLimitStore(redisClient).WithMetrics(httpMetrics)
	} else {
		memStore := middleware.NewInMemoryRateLimitStore()
		limitStore = memStore
		go func() {
			ticker := time.NewTicker(5 * time.Minute)
			defer ticker.Stop()
			for range ticker.C {
				memStore.Cleanup()
			}
		}()
	}

	idempotencyRepo := idempotency.NewInMemoryRepository()
	cleanupStop := make(chan struct{})
	go idempotency.RunPeriodicCleanup(idempotencyRepo, time.Hour, idempotency.DefaultExpiry, cleanupStop)

	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowedOrigins = cfg.CORSAllowedOrigins

	// Middleware chain, outermost first: RequestID -> ClientIP -> Tracing
	// -> Auth -> Logging -> HTTPMetrics -> RateLimiter -> CORS ->
	// Idempotency -> router.
	handler := middleware.Idempotency(idempotencyRepo, map[string]bool{"/entries": true})(mux)
	handler = middleware.CORS(corsConfig)(handler)
	handler = middleware.RateLimiter(limitStore, middleware.DefaultGlobalLimit(), middleware.IPKeyFunc())(handler)
	handler = middleware.HTTPMetrics(httpMetrics)(handler)
	handler = middleware.Logging(logger)(handler)
	handler = middleware.Auth(jwtService)(handler)
	if cfg.TracingEnabled {
		handler = middleware.Tracing(serviceName)(handler)
	}
	handler = middleware.ClientIP(handler)
	handler = middleware.RequestID(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", "port", cfg.Port, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	close(cleanupStop)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	if err := traceProvider.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shut down tracing", "error", err)
	}

	logger.Info("server stopped")
}
