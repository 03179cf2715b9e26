// File: internal/config/config.go
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"telegram-image-ai/internal/domain/model"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	QueueKey string `yaml:"queue_key"`
}

type ProvidersConfig struct {
	OpenAIKey       string            `yaml:"openai_key"`
	SeedreamKey     string            `yaml:"seedream_key"`
	SeedreamBaseURL string            `yaml:"seedream_base_url"`
	GeminiKey       string            `yaml:"gemini_key"`
	GeminiURL       string            `yaml:"gemini_url"`
	DefaultProvider string            `yaml:"default_provider"`
	ResultsDir      string            `yaml:"results_dir"`
	ModelProviders  map[string]string `yaml:"model_providers"` // model -> provider override
}

type PaymentConfig struct {
	YooKassa struct {
		ShopID    string `yaml:"shop_id"`
		SecretKey string `yaml:"secret_key"`
		ReturnURL string `yaml:"return_url"`
	} `yaml:"yookassa"`
	WebhookSecret     string               `yaml:"webhook_secret"`
	Packages          []model.TokenPackage `yaml:"packages"`
	ReconcileInterval time.Duration        `yaml:"reconcile_interval"`
	StaleAfter        time.Duration        `yaml:"stale_after"`
}

type TelegramConfig struct {
	Token string `yaml:"token"`
}

type WorkerConfig struct {
	Count int `yaml:"count"`
}

type SweepConfig struct {
	Interval    time.Duration `yaml:"interval"`
	OrphanGrace time.Duration `yaml:"orphan_grace"`
}

type LedgerConfig struct {
	SignupGrant int64 `yaml:"signup_grant"`
}

type AdminConfig struct {
	APIKey       string        `yaml:"api_key"`
	JWTSecret    string        `yaml:"jwt_secret"`
	SessionTTL   time.Duration `yaml:"session_ttl"`
	SecureCookie bool          `yaml:"secure_cookie"`
	CookieDomain string        `yaml:"cookie_domain"`
}

type Config struct {
	Log       LogConfig       `yaml:"log"`
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Providers ProvidersConfig `yaml:"providers"`
	Payment   PaymentConfig   `yaml:"payment"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Worker    WorkerConfig    `yaml:"worker"`
	Sweep     SweepConfig     `yaml:"sweep"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Admin     AdminConfig     `yaml:"admin"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig() (*Config, error) {
	var configPath string
	var dev bool
	flag.StringVar(&configPath, "config", "config.yaml", "path to config yaml")
	flag.BoolVar(&dev, "dev", false, "development mode")
	flag.Parse()

	b, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Redis.QueueKey == "" {
		cfg.Redis.QueueKey = "jobs:ready"
	}
	if cfg.Providers.ResultsDir == "" {
		cfg.Providers.ResultsDir = "./results"
	}
	if cfg.Providers.DefaultProvider == "" {
		cfg.Providers.DefaultProvider = "openai"
	}
	if cfg.Providers.SeedreamBaseURL == "" {
		cfg.Providers.SeedreamBaseURL = "https://ark.ap-southeast.bytepluses.com/api/v3"
	}
	if cfg.Worker.Count <= 0 {
		cfg.Worker.Count = 4
	}
	if cfg.Sweep.Interval <= 0 {
		cfg.Sweep.Interval = 30 * time.Second
	}
	if cfg.Sweep.OrphanGrace <= 0 {
		cfg.Sweep.OrphanGrace = time.Minute
	}
	if cfg.Payment.ReconcileInterval <= 0 {
		cfg.Payment.ReconcileInterval = time.Minute
	}
	if cfg.Payment.StaleAfter <= 0 {
		cfg.Payment.StaleAfter = 10 * time.Minute
	}
	if cfg.Ledger.SignupGrant < 0 {
		cfg.Ledger.SignupGrant = 0
	}
	if cfg.Admin.SessionTTL <= 0 {
		cfg.Admin.SessionTTL = 30 * time.Minute
	}

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.Addr == "" {
		return nil, errors.New("redis.addr is required")
	}
	if cfg.Payment.WebhookSecret == "" {
		return nil, errors.New("payment.webhook_secret is required")
	}
	if cfg.Admin.APIKey == "" {
		return nil, errors.New("admin.api_key is required")
	}
	if cfg.Admin.JWTSecret == "" {
		return nil, errors.New("admin.jwt_secret is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}
