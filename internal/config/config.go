package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds configuration for the careerpilot core.
type Config struct {
	HTTPPort string
	Database DatabaseConfig
	Redis    RedisConfig
	Cache    CacheConfig
	Provider ProviderConfig
	Quota    QuotaConfig
	Archive  ArchiveConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Address      string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// CacheConfig holds in-process cache settings
type CacheConfig struct {
	PlanCacheSize  int
	PlanCacheTTL   time.Duration
	MemoryEntryTTL time.Duration
}

// ProviderConfig holds model provider settings
type ProviderConfig struct {
	OpenAIAPIKey   string
	OpenAIBaseURL  string
	RequestTimeout time.Duration
	MaxTokens      int
	Temperature    float64
}

// QuotaConfig selects the ledger backend and its retention
type QuotaConfig struct {
	Backend    string // "memory", "redis" or "postgres"
	CounterTTL time.Duration
}

// ArchiveConfig holds configuration for the S3 run-archive sink
type ArchiveConfig struct {
	Enabled       bool
	QueueBackend  string // "memory" or "redis"
	BufferSize    int
	FlushSize     int
	FlushInterval time.Duration
	S3Bucket      string
	S3Region      string
	S3Prefix      string
	PodName       string
}

func getEnvInt(key string, defaultValue int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getEnvFloat(key string, defaultValue float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	floatVal, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return defaultValue
	}
	return floatVal
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(val)
	if err != nil {
		return defaultValue
	}

	return duration
}

func getEnvString(key string, defaultValue string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return val
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	cfg := &Config{
		HTTPPort: getEnvString("HTTP_PORT", "8080"),
		Database: DatabaseConfig{
			URL:             dbURL,
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute),
		},
		Redis: RedisConfig{
			Address:      getEnvString("REDIS_ADDRESS", "localhost:6379"),
			Password:     getEnvString("REDIS_PASSWORD", ""),
			DB:           getEnvInt("REDIS_DB", 0),
			PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Cache: CacheConfig{
			PlanCacheSize:  getEnvInt("CACHE_PLAN_SIZE", 1000),
			PlanCacheTTL:   getEnvDuration("CACHE_PLAN_TTL", 5*time.Minute),
			MemoryEntryTTL: getEnvDuration("MEMORY_ENTRY_TTL", 24*time.Hour),
		},
		Provider: ProviderConfig{
			OpenAIAPIKey:   getEnvString("OPENAI_API_KEY", ""),
			OpenAIBaseURL:  getEnvString("OPENAI_BASE_URL", ""),
			RequestTimeout: getEnvDuration("PROVIDER_REQUEST_TIMEOUT", 60*time.Second),
			MaxTokens:      getEnvInt("PROVIDER_MAX_TOKENS", 2000),
			Temperature:    getEnvFloat("PROVIDER_TEMPERATURE", 0.7),
		},
		Quota: QuotaConfig{
			Backend:    getEnvString("QUOTA_BACKEND", "postgres"),
			CounterTTL: getEnvDuration("QUOTA_COUNTER_TTL", 60*24*time.Hour),
		},
		Archive: ArchiveConfig{
			Enabled:       getEnvString("ARCHIVE_ENABLED", "false") == "true",
			QueueBackend:  getEnvString("ARCHIVE_QUEUE_BACKEND", "memory"),
			BufferSize:    getEnvInt("ARCHIVE_BUFFER_SIZE", 10000),
			FlushSize:     getEnvInt("ARCHIVE_FLUSH_SIZE", 500),
			FlushInterval: getEnvDuration("ARCHIVE_FLUSH_INTERVAL", 5*time.Minute),
			S3Bucket:      getEnvString("ARCHIVE_S3_BUCKET", ""),
			S3Region:      getEnvString("ARCHIVE_S3_REGION", "us-east-1"),
			S3Prefix:      getEnvString("ARCHIVE_S3_PREFIX", "runs/"),
			PodName:       getEnvString("POD_NAME", "careerpilot-0"),
		},
	}

	return cfg, nil
}
