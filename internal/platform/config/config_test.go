package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		DatabaseURL:       "postgres://localhost/payroll",
		JWTSecret:         "secret",
		TokenTTL:          time.Hour,
		MaxBodyBytes:      1 << 20,
		RoundingMode:      "half_up",
		CurrencyPrecision: 2,
		BatchWorkers:      4,
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("DATABASE_URL", "postgres://db/payroll")
	t.Setenv("BATCH_WORKERS", "8")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "postgres://db/payroll", cfg.DatabaseURL)
	assert.Equal(t, time.Hour, cfg.TokenTTL)
	assert.Equal(t, 8, cfg.BatchWorkers)
	assert.Equal(t, int32(2), cfg.CurrencyPrecision)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.True(t, cfg.RunMigrations)
	assert.Equal(t, 600, cfg.RateLimit)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("addr: \":9090\"\nrounding_mode: bankers\n"), 0o600))
	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "bankers", cfg.RoundingMode)
}

func TestValidate(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	cases := map[string]func(*Config){
		"missing database":   func(c *Config) { c.DatabaseURL = "" },
		"missing secret":     func(c *Config) { c.JWTSecret = " " },
		"negative rate":      func(c *Config) { c.RateLimit = -1 },
		"short prod secret":  func(c *Config) { c.Environment = EnvProduction; c.DataEncryptionKey = "k" },
		"prod without key":   func(c *Config) { c.Environment = EnvProduction; c.JWTSecret = "0123456789abcdef0123456789abcdef" },
		"seed without pass":  func(c *Config) { c.RunSeed = true; c.SeedClientID = "client" },
		"tiny body limit":    func(c *Config) { c.MaxBodyBytes = 10 },
		"unknown rounding":   func(c *Config) { c.RoundingMode = "ceil" },
		"negative precision": func(c *Config) { c.CurrencyPrecision = -1 },
		"no workers":         func(c *Config) { c.BatchWorkers = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
