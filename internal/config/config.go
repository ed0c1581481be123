// Package config handles loading and parsing application configuration.
// It supports two sources for the YAML file path (in priority order):
//  1. An environment variable:  CONFIG_PATH=/path/to/config.yaml
//  2. A command-line flag:      --config=/path/to/config.yaml
//
// Secrets (token secret, payment key, database DSN) are usually kept out of
// the YAML file: an optional .env file in the working directory is loaded
// first, and every field can be overridden by its env:"..." variable.
package config

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Storage drivers understood by main.go.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config is the root configuration structure.
// Every field maps to a key in the YAML file AND can be overridden
// by the corresponding environment variable (env:"...").
type Config struct {
	// Env controls log format and verbosity: "dev", "staging", "prod".
	Env string `yaml:"env" env:"ENV" env-required:"true"`

	// StoragePath is the filesystem path to the SQLite .db file.
	StoragePath string `yaml:"storage_path" env:"STORAGE_PATH" env-default:"storage/coursemart.db"`

	Storage    Storage    `yaml:"storage"`
	HTTPServer HTTPServer `yaml:"http_server"`
	Auth       Auth       `yaml:"auth"`
	Payments   Payments   `yaml:"payments"`
	RateLimit  RateLimit  `yaml:"rate_limit"`
}

// Storage selects the database backend.
type Storage struct {
	Driver      string `yaml:"driver" env:"STORAGE_DRIVER" env-default:"sqlite"`
	PostgresDSN string `yaml:"postgres_dsn" env:"DATABASE_DSN"`
}

// HTTPServer holds settings specific to the HTTP server.
type HTTPServer struct {
	Addr           string   `yaml:"address" env:"HTTP_SERVER_ADDR" env-required:"true"`
	AllowedOrigins []string `yaml:"allowed_origins" env:"HTTP_ALLOWED_ORIGINS" env-separator:"," env-default:"*"`
}

// Auth holds the session-token signing secret.
type Auth struct {
	TokenSecret string `yaml:"token_secret" env:"ACCESS_TOKEN_SECRET" env-required:"true"`
}

// Payments configures the payment processor.
type Payments struct {
	SecretKey string `yaml:"secret_key" env:"PAYMENT_SECRET_KEY" env-required:"true"`
	Currency  string `yaml:"currency" env:"PAYMENT_CURRENCY" env-default:"usd"`
}

// RateLimit configures the limiter on the public token and payment-intent
// endpoints. An empty RedisAddr keeps counters in process memory.
type RateLimit struct {
	Requests      int           `yaml:"requests" env:"RATE_LIMIT_REQUESTS" env-default:"30"`
	Window        time.Duration `yaml:"window" env:"RATE_LIMIT_WINDOW" env-default:"1m"`
	RedisAddr     string        `yaml:"redis_addr" env:"RATE_LIMIT_REDIS_ADDR"`
	RedisPassword string        `yaml:"redis_password" env:"RATE_LIMIT_REDIS_PASSWORD"`
	RedisDB       int           `yaml:"redis_db" env:"RATE_LIMIT_REDIS_DB" env-default:"0"`
}

// Load reads and validates the config file at path. Environment variables
// override file values.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is not set: use --config flag or CONFIG_PATH env var")
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", path)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("cannot read config: %w", err)
	}

	switch cfg.Storage.Driver {
	case DriverSQLite:
	case DriverPostgres:
		if cfg.Storage.PostgresDSN == "" {
			return nil, errors.New("storage.postgres_dsn is required for the postgres driver")
		}
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	return &cfg, nil
}

// MustLoad reads, validates, and returns the application config.
// It exits the process on failure: if it returns, the config is valid.
func MustLoad() *Config {
	// A missing .env file is normal outside local development.
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		flags := flag.String("config", "", "Path to the configuration YAML file")
		flag.Parse()
		configPath = *flags
	}

	cfg, err := Load(configPath)
	if err != nil {
		log.Fatal(err)
	}
	return cfg
}
