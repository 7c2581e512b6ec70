// Package config provides configuration loading for the service.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the service.
type Config struct {
	// Server configuration
	Port          string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	ShutdownGrace time.Duration

	// Store backends ("memory" or "redis")
	StoreType string

	// Redis configuration
	RedisURL string

	// Run store configuration
	RunTTL      time.Duration
	EventMaxLen int64

	// Generation backend
	GenBaseURL        string
	GenAPIKey         string
	GenTimeout        time.Duration
	GenRequestsPerSec float64
	GenBurst          int

	// Execution
	WaveParallel     bool
	BatchConcurrency int
	FailOnEmptyBatch bool
	RunTimeout       time.Duration

	// Credits
	CreditsEnabled   bool
	PricingURL       string
	InitialGrant     float64
	DefaultUnitPrice float64

	// Media storage (S3 compatible)
	MediaEnabled       bool
	MediaEndpoint      string
	MediaBucket        string
	MediaRegion        string
	MediaAccessKey     string
	MediaSecretKey     string
	MediaUseSSL        bool
	MediaPublicBaseURL string
	MediaPresignExpiry time.Duration

	// OIDC configuration
	OIDCIssuer       string
	OIDCClientID     string
	OIDCClientSecret string
	OIDCEnabled      bool

	// CORS configuration
	CORSOrigins []string

	// Rate limiting
	RateLimitRPS   float64
	RateLimitBurst int

	// Tracing
	TracingEnabled    bool
	TracingEndpoint   string
	TracingSampleRate float64

	// Logging
	LogLevel  string
	LogFormat string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		// Server
		Port:          getEnv("PORT", "8080"),
		ReadTimeout:   getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:  getDuration("WRITE_TIMEOUT", 30*time.Second),
		ShutdownGrace: getDuration("SHUTDOWN_GRACE", 10*time.Second),

		// Stores
		StoreType: getEnv("STORE", "memory"),
		RedisURL:  getEnv("REDIS_URL", "redis://localhost:6379"),

		// Runs
		RunTTL:      getDuration("RUN_TTL", 7*24*time.Hour),
		EventMaxLen: getInt64("EVENT_MAX_LEN", 5000),

		// Generation backend
		GenBaseURL:        getEnv("FAL_BASE_URL", "https://fal.run"),
		GenAPIKey:         getEnv("FAL_API_KEY", ""),
		GenTimeout:        getDuration("GEN_TIMEOUT", 5*time.Minute),
		GenRequestsPerSec: getFloat("GEN_RPS", 2.0),
		GenBurst:          getInt("GEN_BURST", 4),

		// Execution
		WaveParallel:     getBool("WAVE_PARALLEL", false),
		BatchConcurrency: getInt("BATCH_CONCURRENCY", 4),
		FailOnEmptyBatch: getBool("FAIL_ON_EMPTY_BATCH", false),
		RunTimeout:       getDuration("RUN_TIMEOUT", 30*time.Minute),

		// Credits
		CreditsEnabled:   getBool("CREDITS_ENABLED", false),
		PricingURL:       getEnv("PRICING_URL", ""),
		InitialGrant:     getFloat("CREDITS_INITIAL_GRANT", 10.0),
		DefaultUnitPrice: getFloat("CREDITS_DEFAULT_PRICE", 0.05),

		// Media storage
		MediaEnabled:       getBool("MEDIA_ENABLED", false),
		MediaEndpoint:      getEnv("MEDIA_ENDPOINT", ""),
		MediaBucket:        getEnv("MEDIA_BUCKET", "reelforge-media"),
		MediaRegion:        getEnv("MEDIA_REGION", "us-east-1"),
		MediaAccessKey:     getEnv("MEDIA_ACCESS_KEY", ""),
		MediaSecretKey:     getEnv("MEDIA_SECRET_KEY", ""),
		MediaUseSSL:        getBool("MEDIA_USE_SSL", true),
		MediaPublicBaseURL: getEnv("MEDIA_PUBLIC_BASE_URL", ""),
		MediaPresignExpiry: getDuration("MEDIA_PRESIGN_EXPIRY", 24*time.Hour),

		// OIDC
		OIDCIssuer:       getEnv("OIDC_ISSUER", ""),
		OIDCClientID:     getEnv("OIDC_CLIENT_ID", ""),
		OIDCClientSecret: getEnv("OIDC_CLIENT_SECRET", ""),
		OIDCEnabled:      getBool("OIDC_ENABLED", false),

		// CORS
		CORSOrigins: getStringSlice("CORS_ORIGINS", []string{"http://localhost:5173", "http://localhost:3000"}),

		// Rate limiting
		RateLimitRPS:   getFloat("RATE_LIMIT_RPS", 100.0),
		RateLimitBurst: getInt("RATE_LIMIT_BURST", 200),

		// Tracing
		TracingEnabled:    getBool("TRACING_ENABLED", false),
		TracingEndpoint:   getEnv("OTLP_ENDPOINT", "localhost:4317"),
		TracingSampleRate: getFloat("TRACING_SAMPLE_RATE", 1.0),

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}
}

// Helper functions for environment variable parsing

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getInt64(key string, defaultVal int64) int64 {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			return i
		}
	}
	return defaultVal
}

func getFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getStringSlice(key string, defaultVal []string) []string {
	if val := os.Getenv(key); val != "" {
		return strings.Split(val, ",")
	}
	return defaultVal
}
