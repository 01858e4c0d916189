package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	AuthJWTSecret string `mapstructure:"AUTH_JWT_SECRET"`

	RISBaseURL     string `mapstructure:"RIS_BASE_URL"`
	RISAPIKey      string `mapstructure:"RIS_API_KEY"`
	RISTimeoutSecs int    `mapstructure:"RIS_TIMEOUT_SECONDS"`
	RISMaxRetries  int    `mapstructure:"RIS_MAX_RETRIES"`
	RISOrderLimit  int    `mapstructure:"RIS_ORDER_LIMIT"`

	PACSBaseURL     string `mapstructure:"PACS_BASE_URL"`
	PACSAuthToken   string `mapstructure:"PACS_AUTH_TOKEN"`
	PACSTimeoutSecs int    `mapstructure:"PACS_TIMEOUT_SECONDS"`
	PACSMaxRetries  int    `mapstructure:"PACS_MAX_RETRIES"`

	BlobBackend string `mapstructure:"BLOB_BACKEND"`
	BlobDir     string `mapstructure:"BLOB_DIR"`

	SyncWorkers   int `mapstructure:"SYNC_WORKERS"`
	ImportWorkers int `mapstructure:"IMPORT_WORKERS"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RIS_TIMEOUT_SECONDS", 15)
	v.SetDefault("RIS_MAX_RETRIES", 3)
	v.SetDefault("RIS_ORDER_LIMIT", 100)
	v.SetDefault("PACS_TIMEOUT_SECONDS", 30)
	v.SetDefault("PACS_MAX_RETRIES", 3)
	v.SetDefault("BLOB_BACKEND", "fs")
	v.SetDefault("BLOB_DIR", "./blobs")
	v.SetDefault("SYNC_WORKERS", 4)
	v.SetDefault("IMPORT_WORKERS", 4)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("AUTH_JWT_SECRET")
	v.BindEnv("RIS_BASE_URL")
	v.BindEnv("RIS_API_KEY")
	v.BindEnv("RIS_TIMEOUT_SECONDS")
	v.BindEnv("RIS_MAX_RETRIES")
	v.BindEnv("RIS_ORDER_LIMIT")
	v.BindEnv("PACS_BASE_URL")
	v.BindEnv("PACS_AUTH_TOKEN")
	v.BindEnv("PACS_TIMEOUT_SECONDS")
	v.BindEnv("PACS_MAX_RETRIES")
	v.BindEnv("BLOB_BACKEND")
	v.BindEnv("BLOB_DIR")
	v.BindEnv("SYNC_WORKERS")
	v.BindEnv("IMPORT_WORKERS")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: All requests are treated as authenticated admin requests.")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func (c *Config) RISTimeout() time.Duration {
	return time.Duration(c.RISTimeoutSecs) * time.Second
}

func (c *Config) PACSTimeout() time.Duration {
	return time.Duration(c.PACSTimeoutSecs) * time.Second
}

// Validate checks that the configuration is safe to run. The RIS and PACS
// endpoints were once hard-coded placeholders; they are required here so a
// misconfigured process refuses to start instead of failing mid-sync.
func (c *Config) Validate() error {
	if c.RISBaseURL == "" {
		return fmt.Errorf("RIS_BASE_URL is required")
	}
	if c.RISAPIKey == "" {
		return fmt.Errorf("RIS_API_KEY is required")
	}
	if c.PACSBaseURL == "" {
		return fmt.Errorf("PACS_BASE_URL is required")
	}
	if c.IsProduction() && c.AuthJWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is required in production")
	}
	if c.BlobBackend != "fs" && c.BlobBackend != "memory" {
		return fmt.Errorf("BLOB_BACKEND must be \"fs\" or \"memory\", got %q", c.BlobBackend)
	}
	if c.BlobBackend == "fs" && c.BlobDir == "" {
		return fmt.Errorf("BLOB_DIR is required when BLOB_BACKEND is \"fs\"")
	}
	if c.SyncWorkers < 1 || c.ImportWorkers < 1 {
		return fmt.Errorf("SYNC_WORKERS and IMPORT_WORKERS must be at least 1")
	}
	return nil
}
