package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServiceName string
	LogLevel    string
	Database    DatabaseConfig
	Rabbit      RabbitConfig
	Redis       RedisConfig
	Sync        SyncConfig
	HTTP        HTTPConfig
	Tracing     TracingConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RabbitConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	VHost    string
	Exchange string
	Queue    string
	// DeadLetterExchange receives rejected deliveries; empty disables dead-lettering.
	DeadLetterExchange string
	Prefetch           int
	ConnectAttempts    int
	ConnectBaseDelay   time.Duration
}

type RedisConfig struct {
	Addr           string
	Password       string
	DB             int
	LeaderboardKey string
}

type SyncConfig struct {
	Interval  time.Duration
	BatchSize int
	LockTTL   time.Duration
}

type HTTPConfig struct {
	Addr string
}

// TracingConfig selects the span exporter. Empty keeps tracing off.
type TracingConfig struct {
	Exporter string
}

// Load reads the configuration from the environment, after applying a .env file if one exists.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		ServiceName: getenv("SERVICE_NAME", "gamification-service"),
		LogLevel:    getenv("LOG_LEVEL", "info"),
		Database: DatabaseConfig{
			Host:     getenv("DB_HOST", "localhost"),
			Port:     intFromEnv("DB_PORT", 5432),
			User:     getenv("DB_USER", "postgres"),
			Password: getenv("DB_PASSWORD", "postgres"),
			DBName:   getenv("DB_NAME", "gamification_db"),
			SSLMode:  getenv("DB_SSLMODE", "disable"),
		},
		Rabbit: RabbitConfig{
			Enabled:            boolFromEnv("RABBITMQ_ENABLED", true),
			Host:               getenv("RABBITMQ_HOST", "localhost"),
			Port:               intFromEnv("RABBITMQ_PORT", 5672),
			User:               getenv("RABBITMQ_USER", "guest"),
			Password:           getenv("RABBITMQ_PASSWORD", "guest"),
			VHost:              getenv("RABBITMQ_VHOST", "/"),
			Exchange:           getenv("RABBITMQ_EXCHANGE", "domain.events"),
			Queue:              getenv("RABBITMQ_QUEUE", "gamification.events"),
			DeadLetterExchange: getenv("RABBITMQ_DLX", "domain.events.dlx"),
			Prefetch:           intFromEnv("RABBITMQ_PREFETCH", 1),
			ConnectAttempts:    clamp(intFromEnv("RABBITMQ_CONNECT_ATTEMPTS", 10), 1, 10),
			ConnectBaseDelay:   time.Duration(intFromEnv("RABBITMQ_CONNECT_BASE_DELAY_MS", 500)) * time.Millisecond,
		},
		Redis: RedisConfig{
			Addr:           getenv("REDIS_ADDRESS", "localhost:6379"),
			Password:       getenv("REDIS_PASSWORD", ""),
			DB:             intFromEnv("REDIS_DB", 0),
			LeaderboardKey: getenv("REDIS_LEADERBOARD_KEY", "leaderboard:xp"),
		},
		Sync: SyncConfig{
			Interval:  time.Duration(intFromEnv("REDIS_SYNC_INTERVAL_HOURS", 24)) * time.Hour,
			BatchSize: intFromEnv("SYNC_BATCH_SIZE", 1000),
			LockTTL:   time.Duration(intFromEnv("SYNC_LOCK_TTL_SECONDS", 300)) * time.Second,
		},
		HTTP: HTTPConfig{
			Addr: getenv("HTTP_ADDR", ":8080"),
		},
		Tracing: TracingConfig{
			Exporter: getenv("TRACING_EXPORTER", ""),
		},
	}
}

func getenv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}

	return def
}

func intFromEnv(key string, def int) int {
	val := getenv(key, "")
	if val == "" {
		return def
	}

	if parsed, err := strconv.Atoi(val); err == nil {
		return parsed
	}

	return def
}

func boolFromEnv(key string, def bool) bool {
	val := getenv(key, "")
	if val == "" {
		return def
	}

	if parsed, err := strconv.ParseBool(val); err == nil {
		return parsed
	}

	return def
}

func clamp(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
