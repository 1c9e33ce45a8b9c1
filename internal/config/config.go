package config

import (
	"errors"
	"runtime"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const minProductionSecretLen = 32

// Config holds application level configuration loaded from environment variables.
type Config struct {
	AppEnv          string        `envconfig:"APP_ENV" default:"development"`
	ServerPort      string        `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"15s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`

	DBDriver    string `envconfig:"DB_DRIVER" default:"sqlite"`
	DatabaseDSN string `envconfig:"DATABASE_DSN" default:"file:expenses.db?_pragma=foreign_keys(1)"`
	ResetDB     bool   `envconfig:"RESET_DB" default:"false"`

	RedisAddr    string        `envconfig:"REDIS_ADDR"`
	RedisPass    string        `envconfig:"REDIS_PASSWORD"`
	RedisDB      int           `envconfig:"REDIS_DB" default:"0"`
	ListCacheTTL time.Duration `envconfig:"LIST_CACHE_TTL" default:"5m"`

	JWTSecret   string        `envconfig:"JWT_SECRET" required:"true"`
	JWTIssuer   string        `envconfig:"JWT_ISSUER" default:"expense-tracker"`
	TokenTTL    time.Duration `envconfig:"TOKEN_TTL" default:"1h"`
	BcryptCost  int           `envconfig:"BCRYPT_COST" default:"10"`
	HashWorkers int           `envconfig:"HASH_WORKERS" default:"0"`

	AllowedOrigins []string      `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:3000,http://127.0.0.1:5500"`
	AuthRateLimit  int           `envconfig:"AUTH_RATE_LIMIT" default:"10"`
	AuthRateWindow time.Duration `envconfig:"AUTH_RATE_WINDOW" default:"1m"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`
	LogFile   string `envconfig:"LOG_FILE"`

	SwaggerEnabled bool `envconfig:"SWAGGER_ENABLED" default:"true"`
}

// Load builds Config from environment with sensible defaults.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.HashWorkers <= 0 {
		cfg.HashWorkers = runtime.NumCPU()
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return errors.New("config: JWT_SECRET must be provided")
	}
	if c.IsProduction() && len(c.JWTSecret) < minProductionSecretLen {
		return errors.New("config: JWT_SECRET must be at least 32 bytes in production")
	}
	if c.TokenTTL <= 0 {
		return errors.New("config: TOKEN_TTL must be positive")
	}
	switch c.DBDriver {
	case "sqlite", "mysql", "postgres":
	default:
		return errors.New("config: DB_DRIVER must be one of sqlite, mysql, postgres")
	}
	return nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

// Debug reports whether error responses may carry internal detail.
func (c *Config) Debug() bool {
	return c != nil && c.AppEnv == "development"
}
