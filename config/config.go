/*
Package config loads the server configuration from an optional YAML
file overlaid with environment variables (cleanenv).
*/
package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all server settings.
type Config struct {
	Env string `yaml:"env" env:"BILLING_ENV" env-default:"dev"`

	Server struct {
		Addr            string        `yaml:"addr" env:"BILLING_ADDR" env-default:":8080"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"BILLING_SHUTDOWN_TIMEOUT" env-default:"10s"`
	} `yaml:"server"`

	// StoragePath is the SQLite database file; ":memory:" for ephemeral.
	StoragePath string `yaml:"storage_path" env:"BILLING_DB" env-default:"./data/billing.db"`

	// Jurisdiction selects the holiday calendar, e.g. "DE" or "DE-NW".
	Jurisdiction string `yaml:"jurisdiction" env:"BILLING_JURISDICTION" env-default:"DE-NW"`

	Log struct {
		Level  string `yaml:"level" env:"BILLING_LOG_LEVEL" env-default:"info"`
		Format string `yaml:"format" env:"BILLING_LOG_FORMAT" env-default:"console"`
	} `yaml:"log"`
}

// LoadConfig reads the file at path (when non-empty) and then the
// environment. Environment variables win over file values.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if path == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
		return &cfg, nil
	}
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return &cfg, nil
}
