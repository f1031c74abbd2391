package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config is the ingestion service configuration. Broker endpoints live in
// the database; only the infrastructure the service itself talks to is
// configured here.
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig

	MQTT struct {
		PublishTimeoutSeconds int
	}

	Alerts struct {
		Stream string
	}

	Log struct {
		Level  string
		Format string
	}
}

// DatabaseConfig is the PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// DSN builds the lib/pq connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig is the Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Load reads the configuration from environment variables with code
// defaults.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Database.Host = getEnv("GMAO_DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("GMAO_DB_PORT", 5432)
	cfg.Database.User = getEnv("GMAO_DB_USER", "postgres")
	cfg.Database.Password = getEnv("GMAO_DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("GMAO_DB_NAME", "gmao")
	cfg.Database.SSLMode = getEnv("GMAO_DB_SSLMODE", "disable")
	cfg.Database.MaxConns = getEnvInt("GMAO_DB_MAX_CONNS", 10)
	cfg.Database.MaxIdle = getEnvInt("GMAO_DB_MAX_IDLE", 5)

	cfg.Redis.Addr = getEnv("GMAO_REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("GMAO_REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("GMAO_REDIS_DB", 0)

	cfg.MQTT.PublishTimeoutSeconds = getEnvInt("GMAO_MQTT_PUBLISH_TIMEOUT", 10)

	cfg.Alerts.Stream = getEnv("GMAO_ALERT_STREAM", "gmao:alerts:stream")

	cfg.Log.Level = getEnv("GMAO_LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("GMAO_LOG_FORMAT", "json")

	if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
		return nil, fmt.Errorf("invalid database port: %d", cfg.Database.Port)
	}
	if cfg.MQTT.PublishTimeoutSeconds <= 0 {
		return nil, fmt.Errorf("invalid publish timeout: %d", cfg.MQTT.PublishTimeoutSeconds)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
