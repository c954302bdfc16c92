package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	AWS      AWSConfig      `yaml:"aws"`
	Identity IdentityConfig `yaml:"identity"`
	Live     LiveConfig     `yaml:"live"`
	Limits   LimitsConfig   `yaml:"limits"`
	APNS     APNSConfig     `yaml:"apns"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// DatabaseConfig holds database configuration. An empty host selects in-memory collections.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// CatalogConfig selects and tunes the photo catalog
type CatalogConfig struct {
	Provider          string        `yaml:"provider"` // unsplash, s3 or mock
	UnsplashAccessKey string        `yaml:"unsplash_access_key"`
	UnsplashBaseURL   string        `yaml:"unsplash_base_url"`
	PerPage           int           `yaml:"per_page"`
	CacheTTL          time.Duration `yaml:"cache_ttl"`
	CacheCapacity     uint64        `yaml:"cache_capacity"`
}

// AWSConfig holds S3 catalog configuration
type AWSConfig struct {
	Region    string `yaml:"region"`
	S3Bucket  string `yaml:"s3_bucket"`
	S3Prefix  string `yaml:"s3_prefix"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Endpoint  string `yaml:"endpoint"`
}

// IdentityConfig holds identity credential configuration
type IdentityConfig struct {
	Secret       string `yaml:"secret"`
	CookieDomain string `yaml:"cookie_domain"`
	SecureCookie bool   `yaml:"secure_cookie"`
}

// LiveConfig tunes live query subscriptions
type LiveConfig struct {
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryBase     time.Duration `yaml:"retry_base"`
}

// LimitsConfig holds per-identity write throttling
type LimitsConfig struct {
	WritesPerSecond float64 `yaml:"writes_per_second"`
	Burst           int     `yaml:"burst"`
}

// APNSConfig holds push notification configuration. Empty KeyPath disables pushes.
type APNSConfig struct {
	KeyPath    string `yaml:"key_path"`
	KeyID      string `yaml:"key_id"`
	TeamID     string `yaml:"team_id"`
	Topic      string `yaml:"topic"`
	Production bool   `yaml:"production"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML configuration and fills in defaults
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()

	if cfg.Identity.Secret == "" {
		return nil, fmt.Errorf("identity.secret is required")
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Catalog.Provider == "" {
		c.Catalog.Provider = "mock"
		if c.Catalog.UnsplashAccessKey != "" {
			c.Catalog.Provider = "unsplash"
		}
	}
	if c.Catalog.PerPage == 0 {
		c.Catalog.PerPage = 12
	}
	if c.Catalog.CacheTTL == 0 {
		c.Catalog.CacheTTL = 10 * time.Minute
	}
	if c.Catalog.CacheCapacity == 0 {
		c.Catalog.CacheCapacity = 1000
	}
	if c.Live.RetryAttempts == 0 {
		c.Live.RetryAttempts = 3
	}
	if c.Live.RetryBase == 0 {
		c.Live.RetryBase = 250 * time.Millisecond
	}
	if c.Limits.WritesPerSecond == 0 {
		c.Limits.WritesPerSecond = 5
	}
	if c.Limits.Burst == 0 {
		c.Limits.Burst = 10
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Enabled reports whether a database is configured
func (c *DatabaseConfig) Enabled() bool {
	return c.Host != ""
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}
