// Package config содержит логику чтения конфигурации платёжного шлюза.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации платёжного шлюза.
type Config struct {
	RunAddress      string        `env:"RUN_ADDRESS"`
	DatabaseURI     string        `env:"DATABASE_URI"`
	RevolutAPIKey   string        `env:"REVOLUT_API_KEY"`
	SandboxMode     bool          `env:"SANDBOX_MODE"`
	WebhookSecret   string        `env:"WEBHOOK_SECRET"`
	OrderPrefix     string        `env:"ORDER_PREFIX"`
	RateLimit       int           `env:"WEBHOOK_RATE_LIMIT"`
	RateLimitWindow time.Duration `env:"WEBHOOK_RATE_WINDOW"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Значения из окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envAPIKey := cfg.RevolutAPIKey
	envSecret := cfg.WebhookSecret
	envPrefix := cfg.OrderPrefix

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.RevolutAPIKey, "k", "", "Revolut merchant API key")
	flag.BoolVar(&cfg.SandboxMode, "sandbox", false, "use Revolut sandbox API")
	flag.StringVar(&cfg.WebhookSecret, "s", "", "webhook signing secret (generated and persisted if empty)")
	flag.StringVar(&cfg.OrderPrefix, "p", "WC-", "prefix for merchant order references")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envAPIKey != "" {
		cfg.RevolutAPIKey = envAPIKey
	}
	if envSecret != "" {
		cfg.WebhookSecret = envSecret
	}
	if envPrefix != "" {
		cfg.OrderPrefix = envPrefix
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 10
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = time.Minute
	}

	return cfg, nil
}
