// Package main is the entry point for the reelforge workflow service.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"

	"github.com/reelforge/reelforge/internal/api"
	"github.com/reelforge/reelforge/internal/auth"
	"github.com/reelforge/reelforge/internal/config"
	"github.com/reelforge/reelforge/internal/credits"
	"github.com/reelforge/reelforge/internal/gen"
	"github.com/reelforge/reelforge/internal/media"
	"github.com/reelforge/reelforge/internal/runstore"
	"github.com/reelforge/reelforge/internal/tracing"
	"github.com/reelforge/reelforge/internal/validator"
	"github.com/reelforge/reelforge/internal/workflowstore"
)

func main() {
	cfg := config.Load()

	logger := setupLogger(cfg)
	slog.SetDefault(logger)

	logger.Info("starting reelforge",
		slog.String("port", cfg.Port),
		slog.String("store", cfg.StoreType),
		slog.String("log_level", cfg.LogLevel),
	)

	ctx := context.Background()

	tracer, err := tracing.Init(ctx, &tracing.Config{
		ServiceName:    "reelforge",
		ServiceVersion: "1.0.0",
		OTLPEndpoint:   cfg.TracingEndpoint,
		Enabled:        cfg.TracingEnabled,
		SampleRate:     cfg.TracingSampleRate,
	}, logger)
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	runs := buildRunStore(cfg, logger)
	defer runs.Close()

	workflows := buildWorkflowStore(cfg, logger)
	defer workflows.Close()

	v, err := validator.New()
	if err != nil {
		logger.Error("failed to create validator", "error", err)
		os.Exit(1)
	}

	// Media store is optional; without it generated URLs pass through
	// unhosted and uploads are unavailable.
	var mediaStore *media.Store
	rehoster := gen.Rehoster(gen.PassthroughRehoster{})
	if cfg.MediaEnabled {
		mediaStore, err = media.NewStore(media.Config{
			Endpoint:        cfg.MediaEndpoint,
			Bucket:          cfg.MediaBucket,
			Region:          cfg.MediaRegion,
			AccessKeyID:     cfg.MediaAccessKey,
			SecretAccessKey: cfg.MediaSecretKey,
			UseSSL:          cfg.MediaUseSSL,
			PublicBaseURL:   cfg.MediaPublicBaseURL,
			PresignExpiry:   cfg.MediaPresignExpiry,
		}, logger)
		if err != nil {
			logger.Error("failed to create media store", "error", err)
			os.Exit(1)
		}
		rehoster = mediaStore
		logger.Info("media store enabled", slog.String("bucket", cfg.MediaBucket))
	}

	generator := gen.NewClient(gen.ClientConfig{
		BaseURL:           cfg.GenBaseURL,
		APIKey:            cfg.GenAPIKey,
		RequestTimeout:    cfg.GenTimeout,
		RequestsPerSecond: cfg.GenRequestsPerSec,
		Burst:             cfg.GenBurst,
	}, rehoster, logger)

	var ledger credits.Ledger
	var pricer credits.Pricer
	if cfg.CreditsEnabled {
		ledger = buildLedger(cfg, logger)
		if cfg.PricingURL != "" {
			pricer = credits.NewHTTPPricer(cfg.PricingURL, cfg.GenAPIKey)
		} else {
			pricer = credits.StaticPricer{Default: cfg.DefaultUnitPrice}
		}
		logger.Info("credit metering enabled")
	}

	handlers := api.NewHandlers(api.Deps{
		Workflows: workflows,
		Runs:      runs,
		Validator: v,
		Generator: generator,
		Ledger:    ledger,
		Pricer:    pricer,
		Media:     mediaStore,
		Config:    cfg,
		Logger:    logger,
	})

	var extra []mux.MiddlewareFunc
	if cfg.OIDCEnabled {
		provider, err := auth.NewProvider(ctx, &auth.Config{
			Issuer:       cfg.OIDCIssuer,
			ClientID:     cfg.OIDCClientID,
			ClientSecret: cfg.OIDCClientSecret,
		})
		if err != nil {
			logger.Error("failed to create oidc provider", "error", err)
			os.Exit(1)
		}
		extra = append(extra, auth.NewMiddleware(provider, &auth.MiddlewareConfig{Enabled: true}).Handler)
		logger.Info("oidc auth enabled", slog.String("issuer", cfg.OIDCIssuer))
	}
	if cfg.RateLimitRPS > 0 {
		extra = append(extra, auth.NewPerIPRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst).Handler)
	}

	server := api.NewServer(handlers, extra...)

	// WriteTimeout stays unset: event streams hold the response open for
	// the lifetime of a run.
	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     server.Router(),
		ReadTimeout: cfg.ReadTimeout,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info("server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if err := tracer.Shutdown(shutdownCtx); err != nil {
		logger.Error("tracer shutdown error", "error", err)
	}

	logger.Info("server stopped")
}

func setupLogger(cfg *config.Config) *slog.Logger {
	logLevel := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	}
	return slog.New(handler)
}

func buildRunStore(cfg *config.Config, logger *slog.Logger) runstore.RunStore {
	memCfg := &runstore.Config{
		EventMaxLen: cfg.EventMaxLen,
		TTLSeconds:  int64(cfg.RunTTL.Seconds()),
	}

	if cfg.StoreType == "redis" {
		store, err := runstore.NewRedisStore(&runstore.RedisConfig{
			URL:         cfg.RedisURL,
			TTL:         cfg.RunTTL,
			EventMaxLen: cfg.EventMaxLen,
		})
		if err != nil {
			logger.Error("failed to connect to Redis, falling back to memory run store", "error", err)
			return runstore.NewMemoryStore(memCfg)
		}
		logger.Info("using Redis run store", slog.String("url", cfg.RedisURL))
		return store
	}

	logger.Info("using in-memory run store")
	return runstore.NewMemoryStore(memCfg)
}

func buildWorkflowStore(cfg *config.Config, logger *slog.Logger) workflowstore.Store {
	if cfg.StoreType == "redis" {
		store, err := workflowstore.NewRedisStore(redisAddr(cfg.RedisURL))
		if err != nil {
			logger.Error("failed to connect to Redis, falling back to memory workflow store", "error", err)
			return workflowstore.NewMemoryStore()
		}
		return store
	}
	return workflowstore.NewMemoryStore()
}

// redisAddr extracts host:port from a redis:// URL, passing through
// plain addresses unchanged.
func redisAddr(redisURL string) string {
	if opts, err := redis.ParseURL(redisURL); err == nil {
		return opts.Addr
	}
	return redisURL
}

func buildLedger(cfg *config.Config, logger *slog.Logger) credits.Ledger {
	if cfg.StoreType == "redis" {
		ledger, err := credits.NewRedisLedger(cfg.RedisURL)
		if err != nil {
			logger.Error("failed to connect to Redis, falling back to memory ledger", "error", err)
			return credits.NewMemoryLedger()
		}
		return ledger
	}
	return credits.NewMemoryLedger()
}
