// Package config defines the global configuration structure for the RainWatch
// service. Configuration is loaded once at process initialization and is
// immutable thereafter. It follows 12-Factor principles: values come from the
// OS environment, optionally seeded from a .env file for local development.
//
// Any missing required value or invalid format causes startup to fail fast.
package config

import (
	"time"
)

// Config is the top-level configuration struct. It is populated once during
// process initialization and never modified. Sub-components receive only the
// specific config subsets they require.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server   ServerConfig
	Database DatabaseConfig
	Weather  WeatherConfig
	Forecast ForecastConfig
	Webhook  WebhookConfig
	Engine   EngineConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"15s"`
	// CORSAllowedOrigins is a comma-separated origin list; "*" allows all.
	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL             string        `envconfig:"DATABASE_URL" validate:"required"`
	MaxConns        int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
}

// WeatherConfig holds the weather data provider settings.
type WeatherConfig struct {
	BaseURL string        `envconfig:"ACCUWEATHER_BASE_URL" default:"http://dataservice.accuweather.com"`
	APIKey  string        `envconfig:"ACCUWEATHER_API_KEY" validate:"required"`
	Timeout time.Duration `envconfig:"WEATHER_TIMEOUT" default:"5s"`
}

// ForecastConfig holds the generative text-forecast provider settings.
// The API key is optional; the forecast endpoint reports itself unavailable
// when no key is configured.
type ForecastConfig struct {
	GeminiAPIKey  string        `envconfig:"GEMINI_API_KEY"`
	GeminiBaseURL string        `envconfig:"GEMINI_BASE_URL" default:"https://generativelanguage.googleapis.com"`
	GeminiModel   string        `envconfig:"GEMINI_MODEL" default:"gemini-2.5-flash"`
	Timeout       time.Duration `envconfig:"FORECAST_TIMEOUT" default:"30s"`
}

// WebhookConfig holds settings for outbound trigger notifications.
type WebhookConfig struct {
	URL           string        `envconfig:"WEBHOOK_URL" validate:"required,url"`
	Timeout       time.Duration `envconfig:"WEBHOOK_TIMEOUT" default:"5s"`
	UserAgent     string        `envconfig:"WEBHOOK_USER_AGENT" default:"RainWatch-Webhook/1.0"`
	SigningSecret string        `envconfig:"WEBHOOK_SIGNING_SECRET"`
}

// EngineConfig holds evaluation-cycle tuning parameters.
type EngineConfig struct {
	// CycleInterval is the cadence of the scheduled sweep. One hour in
	// production; tests shorten it.
	CycleInterval time.Duration `envconfig:"ENGINE_CYCLE_INTERVAL" default:"1h"`
	// WindowHours is the rolling accumulation window evaluated against the
	// per-monitor trigger threshold.
	WindowHours int `envconfig:"ENGINE_WINDOW_HOURS" default:"24" validate:"min=1"`
}
