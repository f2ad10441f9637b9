// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Enforce UTC timezone to prevent drift bugs in window arithmetic.
//  2. Load a .env file via godotenv (non-fatal if absent).
//  3. Process envconfig struct tags to populate the Config struct.
//  4. Validate the struct using go-playground/validator.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Load loads and validates the RainWatch configuration from the environment.
// A .env file in the working directory is applied first when present.
func Load() (*Config, error) {
	return load(".env")
}

// load is the test-injectable core of Load.
func load(dotenvPath string) (*Config, error) {
	// All internal timestamps are UTC; the cycle timestamp truncation in the
	// engine depends on it.
	time.Local = time.UTC

	// Missing .env is the normal case outside local development.
	_ = godotenv.Load(dotenvPath)

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("processing environment config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}
