package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Redis    RedisConfig
	Webhook  WebhookConfig
	Scanner  ScannerConfig
	Workflow WorkflowConfig
	Drafts   DraftsConfig
	Log      LogConfig
}

type ServerConfig struct {
	Address string `env:"SERVER_ADDRESS" envDefault:":8080"`
}

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type StoreConfig struct {
	Driver      string `env:"STORE_DRIVER" envDefault:"memory"`
	PostgresURL string `env:"POSTGRES_URL"`
	SQLitePath  string `env:"SQLITE_PATH"`
}

type RedisConfig struct {
	Enabled    bool
	Address    string `env:"REDIS_ADDR"`
	Password   string `env:"REDIS_PASSWORD"`
	DB         int    `env:"REDIS_DB" envDefault:"0"`
	TTLSeconds int    `env:"REDIS_TTL_SECONDS" envDefault:"86400"`
	TTL        time.Duration
}

type WebhookConfig struct {
	URL         string `env:"WEBHOOK_URL,required"`
	ContentMax  int    `env:"CONTENT_MAX" envDefault:"918"`
	Concurrency int    `env:"BULK_CONCURRENCY" envDefault:"4"`
}

type ScannerConfig struct {
	URL   string `env:"SCANNER_URL,required"`
	Token string `env:"SCANNER_TOKEN"`
}

type WorkflowConfig struct {
	TimeoutSeconds int `env:"EXTERNAL_TIMEOUT_SECONDS" envDefault:"30"`
	Timeout        time.Duration
}

type DraftsConfig struct {
	TTLMinutes           int `env:"DRAFT_TTL_MINUTES" envDefault:"120"`
	SweepIntervalSeconds int `env:"SWEEP_INTERVAL_SECONDS" envDefault:"300"`
	TTL                  time.Duration
	SweepInterval        time.Duration
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"text"`
}

// LoadAll reads the configuration from the environment and validates it.
func LoadAll() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.Redis.Enabled = cfg.Redis.Address != ""
	cfg.Redis.TTL = time.Duration(cfg.Redis.TTLSeconds) * time.Second
	cfg.Workflow.Timeout = time.Duration(cfg.Workflow.TimeoutSeconds) * time.Second
	cfg.Drafts.TTL = time.Duration(cfg.Drafts.TTLMinutes) * time.Minute
	cfg.Drafts.SweepInterval = time.Duration(cfg.Drafts.SweepIntervalSeconds) * time.Second

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	var errs []error

	switch cfg.Store.Driver {
	case DriverMemory:
	case DriverPostgres:
		if cfg.Store.PostgresURL == "" {
			errs = append(errs, errors.New("POSTGRES_URL is required when STORE_DRIVER=postgres"))
		}
	case DriverSQLite:
		if cfg.Store.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required when STORE_DRIVER=sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be memory, postgres or sqlite, got %q", cfg.Store.Driver))
	}

	if cfg.Webhook.ContentMax <= 0 {
		errs = append(errs, errors.New("CONTENT_MAX must be > 0"))
	}
	if cfg.Webhook.Concurrency <= 0 {
		errs = append(errs, errors.New("BULK_CONCURRENCY must be > 0"))
	}
	if cfg.Workflow.Timeout <= 0 {
		errs = append(errs, errors.New("EXTERNAL_TIMEOUT_SECONDS must be > 0"))
	}
	if cfg.Drafts.TTL <= 0 {
		errs = append(errs, errors.New("DRAFT_TTL_MINUTES must be > 0"))
	}
	if cfg.Drafts.SweepInterval <= 0 {
		errs = append(errs, errors.New("SWEEP_INTERVAL_SECONDS must be > 0"))
	}
	if cfg.Redis.Enabled && cfg.Redis.TTL <= 0 {
		errs = append(errs, errors.New("REDIS_TTL_SECONDS must be > 0"))
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or text, got %q", cfg.Log.Format))
	}

	return joinErrors(errs)
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}
