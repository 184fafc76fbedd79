package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Addr           string
	DatabaseURL    string
	MigrationsDir  string
	SeedFile       string
	CORSOrigin     string
	LogLevel       string
	PersistTimeout time.Duration
	// Client side
	APIURL string
	// Redis board cache, disabled when empty
	RedisURL      string
	BoardCacheTTL time.Duration
	// Meilisearch, SQL search only when empty
	MeiliURL       string
	MeiliMasterKey string
	// MinIO report archive, disabled when endpoint is empty
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
}

func Load() Config {
	return Config{
		Addr:           getenv("API_ADDR", ":3000"),
		DatabaseURL:    getenv("DATABASE_URL", "sqlite://crm.db"),
		MigrationsDir:  getenv("CRM_MIGRATIONS_DIR", ""),
		SeedFile:       getenv("CRM_SEED_FILE", ""),
		CORSOrigin:     getenv("CRM_CORS_ORIGIN", "*"),
		LogLevel:       getenv("CRM_LOG_LEVEL", "info"),
		PersistTimeout: getenvDuration("CRM_PERSIST_TIMEOUT_SECONDS", 10*time.Second),
		APIURL:         getenv("CRM_API_URL", "http://localhost:3000"),
		RedisURL:       getenv("REDIS_URL", ""),
		BoardCacheTTL:  getenvDuration("CRM_BOARD_CACHE_TTL_SECONDS", 60*time.Second),
		MeiliURL:       getenv("MEILI_URL", ""),
		MeiliMasterKey: getenv("MEILI_MASTER_KEY", ""),
		MinioEndpoint:  getenv("MINIO_ENDPOINT", ""),
		MinioAccessKey: getenv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getenv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getenv("MINIO_BUCKET", "crm-reports"),
		MinioUseSSL:    getenvBool("MINIO_USE_SSL", false),
	}
}

// NewLogger builds a production zap logger at the given level name.
func NewLogger(level string) (*zap.Logger, error) {
	parsed, err := zapcore.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parsed)
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// getenvDuration reads a whole number of seconds.
func getenvDuration(key string, fallback time.Duration) time.Duration {
	seconds := getenvInt(key, -1)
	if seconds < 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
