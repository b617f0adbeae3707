package config

import (
	"context"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func processWith(t *testing.T, env map[string]string) *Config {
	t.Helper()
	var cfg Config
	err := envconfig.ProcessWith(context.Background(), &envconfig.Config{
		Target:   &cfg,
		Lookuper: envconfig.MapLookuper(env),
	})
	require.NoError(t, err)
	return &cfg
}

func TestDefaults(t *testing.T) {
	cfg := processWith(t, nil)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.GetServerAddr())
	assert.Equal(t, 30, cfg.Server.ReadTimeout)
	assert.Equal(t, "aeonpay", cfg.Database.Name)
	assert.Equal(t, 25, cfg.Database.MaxConns)
	assert.Equal(t, "development", cfg.App.Environment)
	assert.True(t, cfg.App.IsDevelopment())
	assert.False(t, cfg.App.IsProduction())
	assert.True(t, cfg.App.GuardrailThreshold.Equal(decimal.NewFromInt(250)))
	assert.Equal(t, 0.75, cfg.App.MandateSuccessRate)
	assert.False(t, cfg.App.SeedDemo)
	assert.Equal(t, 200, cfg.App.RateLimitRPS)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
}

func TestOverrides(t *testing.T) {
	cfg := processWith(t, map[string]string{
		"SERVER_PORT":              "9090",
		"DB_NAME":                  "aeonpay_test",
		"APP_ENVIRONMENT":          "production",
		"APP_GUARDRAIL_THRESHOLD":  "500.50",
		"APP_MANDATE_SUCCESS_RATE": "1",
		"APP_SEED_DEMO":            "true",
		"AUTH_TOKEN_TTL":           "1h",
	})

	assert.Equal(t, "0.0.0.0:9090", cfg.Server.GetServerAddr())
	assert.Equal(t, "aeonpay_test", cfg.Database.Name)
	assert.True(t, cfg.App.IsProduction())
	assert.Equal(t, "500.5", cfg.App.GuardrailThreshold.String())
	assert.Equal(t, 1.0, cfg.App.MandateSuccessRate)
	assert.True(t, cfg.App.SeedDemo)
	assert.Equal(t, time.Hour, cfg.Auth.TokenTTL)
}

func TestGetDatabaseURL(t *testing.T) {
	cfg := processWith(t, map[string]string{"DB_PASSWORD": "s3cret"})
	assert.Equal(t,
		"host=localhost port=5432 user=postgres password=s3cret dbname=aeonpay sslmode=disable",
		cfg.Database.GetDatabaseURL())
}
