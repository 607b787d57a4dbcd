package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	EnvLocal      = "local"
	EnvDev        = "development"
	EnvProduction = "production"
)

type Config struct {
	Addr              string        `yaml:"addr" env:"APP_ADDR" env-default:":8080"`
	Environment       string        `yaml:"env" env:"APP_ENV" env-default:"development"`
	LogLevel          string        `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	DatabaseURL       string        `yaml:"database_url" env:"DATABASE_URL"`
	JWTSecret         string        `yaml:"jwt_secret" env:"JWT_SECRET"`
	TokenTTL          time.Duration `yaml:"token_ttl" env:"TOKEN_TTL" env-default:"1h"`
	DataEncryptionKey string        `yaml:"data_encryption_key" env:"DATA_ENCRYPTION_KEY"`
	RunMigrations     bool          `yaml:"run_migrations" env:"RUN_MIGRATIONS" env-default:"true"`
	MigrationsDir     string        `yaml:"migrations_dir" env:"MIGRATIONS_DIR" env-default:"migrations"`
	RunSeed           bool          `yaml:"run_seed" env:"RUN_SEED" env-default:"true"`
	SeedTenantName    string        `yaml:"seed_tenant_name" env:"SEED_TENANT_NAME" env-default:"Default Tenant"`
	SeedClientID      string        `yaml:"seed_client_id" env:"SEED_CLIENT_ID"`
	SeedClientSecret  string        `yaml:"seed_client_secret" env:"SEED_CLIENT_SECRET"`
	MaxBodyBytes      int64         `yaml:"max_body_bytes" env:"MAX_BODY_BYTES" env-default:"1048576"`
	CORSOrigins       []string      `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS" env-separator:"," env-default:"*"`
	RoundingMode      string        `yaml:"rounding_mode" env:"ROUNDING_MODE" env-default:"half_up"`
	CurrencyPrecision int32         `yaml:"currency_precision" env:"CURRENCY_PRECISION" env-default:"2"`
	BatchWorkers      int           `yaml:"batch_workers" env:"BATCH_WORKERS" env-default:"4"`
	MetricsEnabled    bool          `yaml:"metrics_enabled" env:"METRICS_ENABLED" env-default:"true"`
	RateLimit         int           `yaml:"rate_limit_per_minute" env:"RATE_LIMIT_PER_MINUTE" env-default:"600"`
	TokenRateLimit    int           `yaml:"token_rate_limit_per_minute" env:"TOKEN_RATE_LIMIT_PER_MINUTE" env-default:"20"`
}

// Load reads the YAML file named by CONFIG_PATH when set, then the
// environment, which wins over the file.
func Load() (Config, error) {
	var cfg Config
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		return cfg, nil
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("read env: %w", err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Environment == EnvProduction {
		if len(c.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
		}
		if strings.TrimSpace(c.DataEncryptionKey) == "" {
			return fmt.Errorf("DATA_ENCRYPTION_KEY must be set in production for encryption at rest")
		}
	}
	if c.RunSeed && c.SeedClientID != "" && c.SeedClientSecret == "" {
		return fmt.Errorf("SEED_CLIENT_SECRET must be set when SEED_CLIENT_ID is")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive")
	}
	if c.MaxBodyBytes < 1024 {
		return fmt.Errorf("MAX_BODY_BYTES must be at least 1024")
	}
	switch c.RoundingMode {
	case "half_up", "bankers", "none":
	default:
		return fmt.Errorf("ROUNDING_MODE must be half_up, bankers or none")
	}
	if c.CurrencyPrecision < 0 || c.CurrencyPrecision > 8 {
		return fmt.Errorf("CURRENCY_PRECISION must be between 0 and 8")
	}
	if c.BatchWorkers <= 0 {
		return fmt.Errorf("BATCH_WORKERS must be positive")
	}
	if c.RateLimit < 0 || c.TokenRateLimit < 0 {
		return fmt.Errorf("rate limits must not be negative")
	}
	return nil
}
