package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Env         string `yaml:"env" env:"APP_ENV" env-default:"local"`
	HTTPServer  `yaml:"http_server"`
	Tokens      `yaml:"tokens"`
	RateLimit   `yaml:"rate_limit"`
	Storage     `yaml:"storage"`
	Redis       `yaml:"redis"`
	RabbitMQ    `yaml:"rabbitmq"`
	Leaderboard `yaml:"leaderboard"`
}

type HTTPServer struct {
	Address       string        `yaml:"address" env:"HTTP_ADDRESS" env-default:"localhost:5000"`
	Timeout       time.Duration `yaml:"timeout" env-default:"4s"`
	IdleTimeout   time.Duration `yaml:"idle_timeout" env-default:"60s"`
	AllowedOrigin string        `yaml:"allowed_origin" env:"CLIENT_URL" env-default:"http://localhost:8080"`
	AllowBearer   bool          `yaml:"allow_bearer" env:"ALLOW_BEARER" env-default:"true"`
}

type Tokens struct {
	AccessSecret  string        `yaml:"access_secret" env:"JWT_SECRET" env-required:"true"`
	RefreshSecret string        `yaml:"refresh_secret" env:"REFRESH_TOKEN_SECRET" env-required:"true"`
	AccessTTL     time.Duration `yaml:"access_ttl" env:"JWT_EXPIRES_IN" env-default:"15m"`
	RefreshTTL    time.Duration `yaml:"refresh_ttl" env:"REFRESH_TOKEN_EXPIRES_IN" env-default:"168h"`
	RotateRefresh bool          `yaml:"rotate_refresh" env:"ROTATE_REFRESH_TOKEN" env-default:"false"`
}

type RateLimit struct {
	Window time.Duration `yaml:"window" env:"RATE_LIMIT_WINDOW" env-default:"15m"`
	Max    int           `yaml:"max" env:"RATE_LIMIT_MAX" env-default:"100"`
}

type Storage struct {
	Driver  string `yaml:"driver" env:"STORAGE_DRIVER" env-default:"postgres"`
	DSN     string `yaml:"dsn" env:"DATABASE_URL"`
	Migrate bool   `yaml:"migrate" env:"DATABASE_MIGRATE" env-default:"true"`
}

// Redis caching is disabled when Addr is empty.
type Redis struct {
	Addr     string        `yaml:"addr" env:"REDIS_ADDR"`
	Password string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db" env:"REDIS_DB" env-default:"0"`
	TTL      time.Duration `yaml:"ttl" env:"REDIS_TTL" env-default:"30s"`
}

// Score events are not published when URL is empty.
type RabbitMQ struct {
	URL       string `yaml:"url" env:"RABBITMQ_URL"`
	QueueName string `yaml:"queue_name" env:"RABBITMQ_QUEUE" env-default:"score_events"`
}

type Leaderboard struct {
	Size         int           `yaml:"size" env:"LEADERBOARD_SIZE" env-default:"10"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"LEADERBOARD_WRITE_TIMEOUT" env-default:"5s"`
}

// Load reads the config file at path, or only the environment when path is
// empty. A .env file in the working directory is loaded first if present.
func Load(path string) (*Config, error) {
	const op = "config.Load"

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var cfg Config

	if path == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	} else {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("%s: config file does not exist: %s", op, path)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case DriverPostgres:
		if c.Storage.DSN == "" {
			return errors.New("storage.dsn is required for the postgres driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	if c.Tokens.AccessSecret == c.Tokens.RefreshSecret {
		return errors.New("access and refresh secrets must differ")
	}
	if c.Tokens.AccessTTL <= 0 || c.Tokens.RefreshTTL <= 0 {
		return errors.New("token lifetimes must be positive")
	}

	return nil
}
