// Package config содержит логику чтения конфигурации сервиса cardspend.
package config

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации сервиса cardspend.
type Config struct {
	RunAddress          string `env:"RUN_ADDRESS"`
	DatabaseURI         string `env:"DATABASE_URI"`
	RatesSystemAddress  string `env:"RATES_SYSTEM_ADDRESS"`
	CategoryCatalogPath string `env:"CATEGORY_CATALOG"`
	AuthSecret          string `env:"AUTH_SECRET"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envRatesAddress := cfg.RatesSystemAddress
	envCatalogPath := cfg.CategoryCatalogPath
	envAuthSecret := cfg.AuthSecret

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.RatesSystemAddress, "r", "", "currency rates system address")
	flag.StringVar(&cfg.CategoryCatalogPath, "c", "", "path to category catalog file")
	flag.StringVar(&cfg.AuthSecret, "s", "", "secret key for auth cookies")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envRatesAddress != "" {
		cfg.RatesSystemAddress = envRatesAddress
	}
	if envCatalogPath != "" {
		cfg.CategoryCatalogPath = envCatalogPath
	}
	if envAuthSecret != "" {
		cfg.AuthSecret = envAuthSecret
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.AuthSecret == "" {
		cfg.AuthSecret = "cardspend-secret"
	}

	return cfg, nil
}
