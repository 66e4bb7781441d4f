package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig
	DB        DBConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Queue     QueueConfig
	Worker    WorkerConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Metrics   MetricsConfig
	Log       LogConfig
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Port            string `envconfig:"SERVER_PORT" default:"3000"`
	RequestTimeout  int    `envconfig:"REQUEST_TIMEOUT" default:"5"`   // seconds
	ShutdownTimeout int    `envconfig:"SHUTDOWN_TIMEOUT" default:"30"` // seconds
}

// DBConfig holds database-related configuration.
// WARNING: Default password is for local development only.
// In production, always set DB_PASSWORD via environment variable.
// In production, set DB_SSLMODE to "require" or "verify-full".
type DBConfig struct {
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     int    `envconfig:"DB_PORT" default:"5432"`
	User     string `envconfig:"DB_USER" default:"postgres"`
	Password string `envconfig:"DB_PASSWORD" default:"postgres"` // CHANGE IN PRODUCTION
	Name     string `envconfig:"DB_NAME" default:"flash_sale_db"`
	SSLMode  string `envconfig:"DB_SSLMODE" default:"disable"` // Use "require" in production
	MaxConns int    `envconfig:"DB_MAX_CONNS" default:"25"`
	MinConns int    `envconfig:"DB_MIN_CONNS" default:"5"`
}

// DSN returns the PostgreSQL connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s&pool_max_conns=%d&pool_min_conns=%d",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode, c.MaxConns, c.MinConns)
}

// RedisConfig holds coordination-store connection configuration.
type RedisConfig struct {
	Addr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password string `envconfig:"REDIS_PASSWORD" default:""`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

// AuthConfig holds bearer-token verification configuration.
type AuthConfig struct {
	JWTSecret string `envconfig:"JWT_SECRET" default:"dev-secret-change-me"` // CHANGE IN PRODUCTION
}

// QueueConfig holds purchase-queue tuning knobs.
type QueueConfig struct {
	Name             string `envconfig:"QUEUE_NAME" default:"purchase"`
	MaxAttempts      int    `envconfig:"QUEUE_MAX_ATTEMPTS" default:"3"`
	BackoffBaseMs    int    `envconfig:"QUEUE_BACKOFF_BASE_MS" default:"2000"`
	LeaseSeconds     int    `envconfig:"QUEUE_LEASE_SECONDS" default:"30"`
	RemoveOnComplete int    `envconfig:"QUEUE_REMOVE_ON_COMPLETE" default:"100"`
	RemoveOnFail     int    `envconfig:"QUEUE_REMOVE_ON_FAIL" default:"50"`
}

// BackoffBase returns the base delay for exponential retry backoff.
func (c QueueConfig) BackoffBase() time.Duration {
	return time.Duration(c.BackoffBaseMs) * time.Millisecond
}

// Lease returns the job lease duration.
func (c QueueConfig) Lease() time.Duration {
	return time.Duration(c.LeaseSeconds) * time.Second
}

// WorkerConfig holds purchase worker pool configuration.
type WorkerConfig struct {
	Concurrency int `envconfig:"WORKER_CONCURRENCY" default:"10"`
}

// RateLimitConfig holds per-user admission rate limiting.
type RateLimitConfig struct {
	MaxAttemptsPerMinute int `envconfig:"RATE_MAX_ATTEMPTS_PER_MINUTE" default:"10"`
}

// CacheConfig holds TTLs for every coordination-store key class, in seconds.
type CacheConfig struct {
	SaleStatusTTL int `envconfig:"CACHE_SALE_STATUS_TTL" default:"30"`
	SaleStatsTTL  int `envconfig:"CACHE_SALE_STATS_TTL" default:"300"`
	JobTTL        int `envconfig:"CACHE_JOB_TTL" default:"3600"`
	UserStateTTL  int `envconfig:"CACHE_USER_STATE_TTL" default:"1800"`
	RateWindowTTL int `envconfig:"CACHE_RATE_WINDOW_TTL" default:"60"`
	StockTTL      int `envconfig:"CACHE_STOCK_TTL" default:"60"`
}

// MetricsConfig holds the Prometheus exposition endpoint configuration.
type MetricsConfig struct {
	Port string `envconfig:"METRICS_PORT" default:"9090"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Pretty bool   `envconfig:"LOG_PRETTY" default:"false"`
}

// Load parses environment variables into the Config struct.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
