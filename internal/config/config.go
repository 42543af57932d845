package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaBrokers         []string
	KafkaJobsTopic       string
	KafkaDeadLetterTopic string
	KafkaGroupID         string
	HTTPAddr             string
	LogLevel             string
	LogFormat            string
	ShutdownTimeout      time.Duration

	// Processing limits.
	MaxAttempts int

	// Provider webhook secrets.
	MailgunSigningKey string
	SendGridPublicKey string // base64-encoded Ed25519 public key

	// Storage boundary.
	StoreAPIURL  string
	StoreTimeout time.Duration

	// Mapbox geocoding configuration.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int

	// Optional Redis-backed advisory dedup cache.
	RedisAddr string
	DedupTTL  time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	storeTimeout, err := parseDuration("STORE_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}
	mapboxTimeout, err := parseDuration("MAPBOX_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}
	dedupTTL, err := parseDuration("DEDUP_TTL", "24h")
	if err != nil {
		return nil, err
	}
	maxAttempts, err := parsePositiveInt("MAX_ATTEMPTS", 5)
	if err != nil {
		return nil, err
	}
	mapboxCacheSize, err := parsePositiveInt("MAPBOX_CACHE_SIZE", 1000)
	if err != nil {
		return nil, err
	}

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	cfg := &Config{
		KafkaBrokers:         parseBrokers(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaJobsTopic:       envOrDefault("KAFKA_JOBS_TOPIC", "inbound-email-jobs"),
		KafkaDeadLetterTopic: envOrDefault("KAFKA_DEADLETTER_TOPIC", "inbound-email-deadletter"),
		KafkaGroupID:         envOrDefault("KAFKA_GROUP_ID", "disaster-mail-ingest"),
		HTTPAddr:             envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:             envOrDefault("LOG_LEVEL", "info"),
		LogFormat:            envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:      shutdownTimeout,

		MaxAttempts: maxAttempts,

		MailgunSigningKey: os.Getenv("MAILGUN_SIGNING_KEY"),
		SendGridPublicKey: os.Getenv("SENDGRID_PUBLIC_KEY"),

		StoreAPIURL:  os.Getenv("STORE_API_URL"),
		StoreTimeout: storeTimeout,

		MapboxToken:     mapboxToken,
		MapboxEnabled:   mapboxEnabled,
		MapboxTimeout:   mapboxTimeout,
		MapboxCacheSize: mapboxCacheSize,

		RedisAddr: os.Getenv("REDIS_ADDR"),
		DedupTTL:  dedupTTL,
	}

	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaJobsTopic == "" {
		return nil, errors.New("KAFKA_JOBS_TOPIC is required")
	}
	if cfg.KafkaDeadLetterTopic == "" {
		return nil, errors.New("KAFKA_DEADLETTER_TOPIC is required")
	}
	if cfg.StoreAPIURL == "" {
		return nil, errors.New("STORE_API_URL is required")
	}
	if cfg.MailgunSigningKey == "" && cfg.SendGridPublicKey == "" {
		return nil, errors.New("at least one of MAILGUN_SIGNING_KEY or SENDGRID_PUBLIC_KEY is required")
	}
	if cfg.MapboxEnabled && cfg.MapboxToken == "" {
		return nil, errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseBrokers(value string) []string {
	var brokers []string
	for _, b := range strings.Split(value, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func parseDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveInt(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}
