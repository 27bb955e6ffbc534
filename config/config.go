package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultBatchSize = 1000
	DefaultCacheDir  = "./data/datasets"
	DefaultUserAgent = "open-prices-sync/1.0 (contact@openfoodfacts.org)"
)

type SyncConfig struct {
	BatchSize     int    `yaml:"batch_size"`
	CacheDir      string `yaml:"cache_dir"`
	ForceDownload bool   `yaml:"force_download"`
	// DatasetURLs overrides the public dump location per flavor.
	DatasetURLs map[string]string `yaml:"dataset_urls"`
}

type APIConfig struct {
	UserAgent string `yaml:"user_agent"`
	// RequestsPerMinute caps single-product lookups against the product API.
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// LockConfig enables a Redis run lock so two hosts never sync one flavor at
// the same time. An empty RedisAddr disables it.
type LockConfig struct {
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	TTL           time.Duration `yaml:"ttl"`
}

type AppConfig struct {
	Database DatabaseConfig `yaml:"database"`
	Sync     SyncConfig     `yaml:"sync"`
	API      APIConfig      `yaml:"api"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Lock     LockConfig     `yaml:"lock"`
	LogLevel string         `yaml:"log_level"`
}

// Default returns a config that only needs a reachable Postgres on localhost.
func Default() *AppConfig {
	return &AppConfig{
		Database: DatabaseConfig{
			Driver:   DriverPostgres,
			Postgres: *GetConfig(),
			SQLite:   SQLiteConfig{Path: "./data/products.db"},
		},
		Sync: SyncConfig{
			BatchSize: DefaultBatchSize,
			CacheDir:  DefaultCacheDir,
		},
		API: APIConfig{
			UserAgent:         DefaultUserAgent,
			RequestsPerMinute: 100,
		},
		Lock:     LockConfig{TTL: 6 * time.Hour},
		LogLevel: "info",
	}
}

// LoadConfig reads filename on top of Default and then applies environment
// overrides. An empty filename skips the file.
func LoadConfig(filename string) (*AppConfig, error) {
	config := Default()

	if filename != "" {
		file, err := os.Open(filename)
		if err != nil {
			return nil, err
		}
		defer file.Close()

		decoder := yaml.NewDecoder(file)
		if err := decoder.Decode(config); err != nil {
			return nil, fmt.Errorf("decode %s: %w", filename, err)
		}
	}

	if err := config.applyEnv(); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *AppConfig) applyEnv() error {
	c.Database.Driver = getEnv("DB_DRIVER", c.Database.Driver)
	c.Database.Postgres.Host = getEnv("POSTGRES_HOST", c.Database.Postgres.Host)
	c.Database.Postgres.Port = getEnv("POSTGRES_PORT", c.Database.Postgres.Port)
	c.Database.Postgres.User = getEnv("POSTGRES_USER", c.Database.Postgres.User)
	c.Database.Postgres.Password = getEnv("POSTGRES_PASSWORD", c.Database.Postgres.Password)
	c.Database.Postgres.DBName = getEnv("POSTGRES_NAME", c.Database.Postgres.DBName)
	c.Database.Postgres.SSLMode = getEnv("POSTGRES_SSLMODE", c.Database.Postgres.SSLMode)
	c.Database.SQLite.Path = getEnv("SQLITE_PATH", c.Database.SQLite.Path)

	c.Sync.CacheDir = getEnv("SYNC_CACHE_DIR", c.Sync.CacheDir)
	c.API.UserAgent = getEnv("OFF_USER_AGENT", c.API.UserAgent)
	c.Metrics.Addr = getEnv("METRICS_ADDR", c.Metrics.Addr)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.Lock.RedisAddr = getEnv("REDIS_ADDR", c.Lock.RedisAddr)
	c.Lock.RedisPassword = getEnv("REDIS_PASSWORD", c.Lock.RedisPassword)

	if raw := os.Getenv("SYNC_BATCH_SIZE"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("SYNC_BATCH_SIZE: %w", err)
		}
		c.Sync.BatchSize = size
	}
	return nil
}

func (c *AppConfig) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.Driver == DriverSQLite && c.Database.SQLite.Path == "" {
		return errors.New("sqlite driver needs database.sqlite.path")
	}
	if c.Sync.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.Sync.BatchSize)
	}
	if c.Lock.RedisAddr != "" && c.Lock.TTL <= 0 {
		return fmt.Errorf("lock.ttl must be positive, got %s", c.Lock.TTL)
	}
	if c.API.RequestsPerMinute <= 0 {
		return fmt.Errorf("api.requests_per_minute must be positive, got %d", c.API.RequestsPerMinute)
	}
	return nil
}
