package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/disaster-mail-ingest/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/disaster-mail-ingest/internal/adapter/kafka"
	"github.com/couchcryptid/disaster-mail-ingest/internal/adapter/mapbox"
	"github.com/couchcryptid/disaster-mail-ingest/internal/adapter/store"
	"github.com/couchcryptid/disaster-mail-ingest/internal/config"
	"github.com/couchcryptid/disaster-mail-ingest/internal/dedup"
	"github.com/couchcryptid/disaster-mail-ingest/internal/domain"
	"github.com/couchcryptid/disaster-mail-ingest/internal/observability"
	"github.com/couchcryptid/disaster-mail-ingest/internal/pipeline"
	"github.com/couchcryptid/disaster-mail-ingest/internal/verify"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	verifier, err := verify.NewVerifier(cfg.MailgunSigningKey, cfg.SendGridPublicKey)
	if err != nil {
		logger.Error("failed to build verifier", "error", err)
		os.Exit(1)
	}

	// Geocoding is feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN.
	var geocoder domain.Geocoder
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, metrics)
		geocoder = mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)
		metrics.GeocodeEnabled.Set(1)
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled, regions default to Unknown")
	}

	storeClient := store.NewClient(cfg.StoreAPIURL, cfg.StoreTimeout)

	var dedupCache *redis.Client
	if cfg.RedisAddr != "" {
		dedupCache = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		logger.Info("redis dedup cache enabled", "addr", cfg.RedisAddr, "ttl", cfg.DedupTTL)
	}
	gate := dedup.New(storeClient, dedupCache, cfg.DedupTTL, logger)

	reader := kafkaadapter.NewReader(cfg, logger)
	producer := kafkaadapter.NewProducer(cfg, logger)

	p := pipeline.New(reader, producer, gate, storeClient, geocoder, logger, metrics, cfg.MaxAttempts)

	srv := httpadapter.NewServer(cfg.HTTPAddr, verifier, producer, p, logger, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start the webhook edge.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start the queue consumer.
	go func() {
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := reader.Close(); err != nil {
		logger.Error("kafka reader close error", "error", err)
	}
	if err := producer.Close(); err != nil {
		logger.Error("kafka producer close error", "error", err)
	}
	if dedupCache != nil {
		if err := dedupCache.Close(); err != nil {
			logger.Error("redis close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
