package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the SheetAssist query service.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Backend  BackendConfig
	S3       S3Config
	Polling  PollingConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// BackendConfig configures the external AI processing API. Standard
// submissions get the shorter timeout; visualization/batch jobs get the
// longer one. StatusTimeout bounds a single poll read.
type BackendConfig struct {
	BaseURL         string
	APIKey          string
	StandardTimeout time.Duration
	BatchTimeout    time.Duration
	StatusTimeout   time.Duration
}

type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	ForcePathStyle  bool
	PresignExpiry   time.Duration
}

// PollingConfig bounds the job polling loop. BaseInterval grows by 1.5x per
// failed read up to MaxInterval; MaxRetries caps transient read failures and
// MaxTotalTime is the wall-clock ceiling on the whole loop.
type PollingConfig struct {
	BaseInterval time.Duration
	MaxInterval  time.Duration
	MaxRetries   int
	MaxTotalTime time.Duration
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("SHEETASSIST_PORT", 8080),
			Env:  envString("SHEETASSIST_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Backend: BackendConfig{
			BaseURL:         os.Getenv("BACKEND_BASE_URL"),
			APIKey:          os.Getenv("BACKEND_API_KEY"),
			StandardTimeout: envDuration("BACKEND_STANDARD_TIMEOUT", 10*time.Minute),
			BatchTimeout:    envDuration("BACKEND_BATCH_TIMEOUT", time.Hour),
			StatusTimeout:   envDuration("BACKEND_STATUS_TIMEOUT", time.Minute),
		},
		S3: S3Config{
			Bucket:          os.Getenv("AWS_S3_BUCKET_NAME"),
			Region:          os.Getenv("AWS_REGION"),
			Endpoint:        os.Getenv("AWS_S3_ENDPOINT"),
			AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
			ForcePathStyle:  envBool("AWS_S3_FORCE_PATH_STYLE", false),
			PresignExpiry:   envDuration("AWS_S3_PRESIGN_EXPIRY", time.Hour),
		},
		Polling: PollingConfig{
			BaseInterval: envDuration("POLLING_BASE_INTERVAL", 5*time.Second),
			MaxInterval:  envDuration("POLLING_MAX_INTERVAL", 15*time.Second),
			MaxRetries:   envInt("POLLING_MAX_RETRIES", 15),
			MaxTotalTime: envDuration("POLLING_MAX_TOTAL_TIME", time.Hour),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Backend.BaseURL == "" {
		return fmt.Errorf("BACKEND_BASE_URL is required")
	}
	if !strings.HasPrefix(c.Backend.BaseURL, "http://") && !strings.HasPrefix(c.Backend.BaseURL, "https://") {
		return fmt.Errorf("BACKEND_BASE_URL must start with http:// or https://, got %q", c.Backend.BaseURL)
	}

	if c.S3.Bucket == "" {
		return fmt.Errorf("AWS_S3_BUCKET_NAME is required")
	}

	if c.Polling.BaseInterval <= 0 {
		return fmt.Errorf("POLLING_BASE_INTERVAL must be positive, got %s", c.Polling.BaseInterval)
	}
	if c.Polling.MaxInterval < c.Polling.BaseInterval {
		return fmt.Errorf("POLLING_MAX_INTERVAL must be >= POLLING_BASE_INTERVAL")
	}
	if c.Polling.MaxRetries <= 0 {
		return fmt.Errorf("POLLING_MAX_RETRIES must be positive, got %d", c.Polling.MaxRetries)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
