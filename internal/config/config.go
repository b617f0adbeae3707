package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/shopspring/decimal"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `env:",prefix=SERVER_"`

	// Database configuration
	Database DatabaseConfig `env:",prefix=DB_"`

	// Application configuration
	App AppConfig `env:",prefix=APP_"`

	// Authentication configuration
	Auth AuthConfig `env:",prefix=AUTH_"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port         string `env:"PORT,default=8080"`
	Host         string `env:"HOST,default=0.0.0.0"`
	ReadTimeout  int    `env:"READ_TIMEOUT,default=30"`  // seconds
	WriteTimeout int    `env:"WRITE_TIMEOUT,default=30"` // seconds
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string `env:"HOST,default=localhost"`
	Port     string `env:"PORT,default=5432"`
	User     string `env:"USER,default=postgres"`
	Password string `env:"PASSWORD,default=postgres"`
	Name     string `env:"NAME,default=aeonpay"`
	SSLMode  string `env:"SSL_MODE,default=disable"`
	MaxConns int    `env:"MAX_CONNS,default=25"`
	MinConns int    `env:"MIN_CONNS,default=5"`
}

// AppConfig holds application-specific configuration
type AppConfig struct {
	Environment string `env:"ENVIRONMENT,default=development"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`
	Debug       bool   `env:"DEBUG,default=false"`

	// Payment intents above this amount return guardrail_required=true.
	// Advisory only; the core never blocks on it.
	GuardrailThreshold decimal.Decimal `env:"GUARDRAIL_THRESHOLD,default=250"`

	// Success probability of the simulated mandate rail, in [0, 1].
	MandateSuccessRate float64 `env:"MANDATE_SUCCESS_RATE,default=0.75"`

	// SeedDemo inserts demo campuses, merchants and users at startup.
	SeedDemo bool `env:"SEED_DEMO,default=false"`

	// Global API rate limit.
	RateLimitRPS   int `env:"RATE_LIMIT_RPS,default=200"`
	RateLimitBurst int `env:"RATE_LIMIT_BURST,default=50"`
}

// AuthConfig holds token-minting configuration
type AuthConfig struct {
	JWTSecret string        `env:"JWT_SECRET,default=dev-secret-change-me"`
	TokenTTL  time.Duration `env:"TOKEN_TTL,default=24h"`
}

// Load loads configuration from environment variables
func Load(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}
	if cfg.App.MandateSuccessRate < 0 || cfg.App.MandateSuccessRate > 1 {
		return nil, fmt.Errorf("APP_MANDATE_SUCCESS_RATE must be in [0, 1], got %v", cfg.App.MandateSuccessRate)
	}
	return &cfg, nil
}

// GetDatabaseURL returns the PostgreSQL connection URL
func (c *DatabaseConfig) GetDatabaseURL() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// IsDevelopment returns true if running in development environment
func (c *AppConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production environment
func (c *AppConfig) IsProduction() bool {
	return c.Environment == "production"
}
