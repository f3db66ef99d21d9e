package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	DatabaseURL       string        `env:"DATABASE_URL"`
	Environment       string        `env:"APP_ENV" envDefault:"development"`
	DataEncryptionKey string        `env:"DATA_ENCRYPTION_KEY"`
	LogLevel          string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat         string        `env:"LOG_FORMAT" envDefault:"json"`
	OpsAddr           string        `env:"OPS_ADDR" envDefault:":9090"`
	RedisAddr         string        `env:"REDIS_ADDR"`
	RedisPassword     string        `env:"REDIS_PASSWORD"`
	RunMigrations     bool          `env:"RUN_MIGRATIONS" envDefault:"true"`
	BatchLimit        int           `env:"BATCH_LIMIT" envDefault:"500"`
	BatchWorkers      int           `env:"BATCH_WORKERS" envDefault:"4"`
	BatchTimeout      time.Duration `env:"BATCH_TIMEOUT" envDefault:"5m"`
	BatchInterval     time.Duration `env:"BATCH_INTERVAL" envDefault:"0s"`
	LockTTL           time.Duration `env:"LOCK_TTL" envDefault:"30s"`
	BankFeeRate       string        `env:"BANK_FEE_RATE" envDefault:"0.001"`
	AdviceDir         string        `env:"ADVICE_DIR" envDefault:"storage/advices"`
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

func (c Config) FeeRate() decimal.Decimal {
	rate, err := decimal.NewFromString(c.BankFeeRate)
	if err != nil {
		return decimal.RequireFromString("0.001")
	}
	return rate
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Environment == "production" && strings.TrimSpace(c.DataEncryptionKey) == "" {
		return fmt.Errorf("DATA_ENCRYPTION_KEY must be set in production for encryption at rest")
	}
	if c.BatchLimit <= 0 {
		return fmt.Errorf("BATCH_LIMIT must be positive")
	}
	if c.BatchWorkers <= 0 {
		return fmt.Errorf("BATCH_WORKERS must be positive")
	}
	if c.BatchTimeout <= 0 {
		return fmt.Errorf("BATCH_TIMEOUT must be positive")
	}
	if c.LockTTL <= 0 {
		return fmt.Errorf("LOCK_TTL must be positive")
	}
	if _, err := decimal.NewFromString(c.BankFeeRate); err != nil {
		return fmt.Errorf("BANK_FEE_RATE must be a decimal: %w", err)
	}
	return nil
}
