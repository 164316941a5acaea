// Package config loads service configuration from an optional .env file,
// an optional config.yaml and the environment, in increasing precedence.
// Nested keys map to upper-case environment variables with underscores:
// MongoDB.URI is MONGODB_URI, Redis.Addr is REDIS_ADDR.
package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the moderation services.
type Config struct {
	Server     ServerConfig
	MongoDB    MongoDBConfig
	Redis      RedisConfig
	NATS       NATSConfig
	Postgres   PostgresConfig
	JWT        JWTConfig
	Moderation ModerationConfig
	RateLimit  RateLimitConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port string
	Env  string // "development" or "production"
}

type MongoDBConfig struct {
	URI      string
	Database string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type NATSConfig struct {
	URL  string
	Name string
}

// PostgresConfig configures the audit trail. An empty DSN disables it.
type PostgresConfig struct {
	DSN string
}

type JWTConfig struct {
	Secret string
}

// ModerationConfig holds the escalation and sweep policy.
type ModerationConfig struct {
	WindowDays    int
	SweepInterval time.Duration
	LexiconTTL    time.Duration
}

// RateLimitConfig holds request limits. Zero keeps the built-in default.
type RateLimitConfig struct {
	ScansPer10s     int
	LoginsPerMinute int
	AdminPerSecond  float64
	AdminBurst      int
}

// Window is the rolling escalation window.
func (m ModerationConfig) Window() time.Duration {
	return time.Duration(m.WindowDays) * 24 * time.Hour
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("Server.Port", "8080")
	v.SetDefault("Server.Env", "development")
	v.SetDefault("MongoDB.URI", "mongodb://localhost:27017")
	v.SetDefault("MongoDB.Database", "whisper")
	v.SetDefault("Redis.Addr", "localhost:6379")
	v.SetDefault("Redis.Password", "")
	v.SetDefault("Redis.DB", 0)
	v.SetDefault("NATS.URL", "nats://localhost:4222")
	v.SetDefault("NATS.Name", "moderation")
	v.SetDefault("Postgres.DSN", "")
	v.SetDefault("JWT.Secret", "")
	v.SetDefault("Moderation.WindowDays", 30)
	v.SetDefault("Moderation.SweepInterval", "1h")
	v.SetDefault("Moderation.LexiconTTL", "1m")
	v.SetDefault("RateLimit.ScansPer10s", 20)
	v.SetDefault("RateLimit.LoginsPerMinute", 10)
	v.SetDefault("RateLimit.AdminPerSecond", 5.0)
	v.SetDefault("RateLimit.AdminBurst", 10)
}

// Load reads configuration. A missing .env or config.yaml is not an error.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("[config] .env not loaded: %v", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Redact strips the password from a connection URL so it can be logged.
// Unparseable input is replaced rather than echoed.
func Redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	return u.Redacted()
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	if c.JWT.Secret == "" && c.Server.Env == "production" {
		return errors.New("config: JWT_SECRET is required in production")
	}
	if c.Moderation.WindowDays < 1 {
		return fmt.Errorf("config: MODERATION_WINDOWDAYS must be positive, got %d", c.Moderation.WindowDays)
	}
	if c.Moderation.SweepInterval <= 0 || c.Moderation.SweepInterval >= 7*24*time.Hour {
		return fmt.Errorf("config: MODERATION_SWEEPINTERVAL must be between 0 and 7 days, got %v", c.Moderation.SweepInterval)
	}
	return nil
}
