// Package common provides shared utilities for coindex
package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for coindex
type Config struct {
	Environment string        `toml:"environment"`
	Server      ServerConfig  `toml:"server"`
	Storage     StorageConfig `toml:"storage"`
	Stream      StreamConfig  `toml:"stream"`
	Clients     ClientsConfig `toml:"clients"`
	Sync        SyncConfig    `toml:"sync"`
	Proxy       ProxyConfig   `toml:"proxy"`
	Logging     LoggingConfig `toml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// StorageConfig holds SurrealDB connection configuration.
type StorageConfig struct {
	Address   string `toml:"address"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
	Namespace string `toml:"namespace"`
	Database  string `toml:"database"`
}

// StreamConfig holds Redis configuration for the price change stream
// and the shared rate-limit counters.
type StreamConfig struct {
	Address  string `toml:"address"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	Channel  string `toml:"channel"`
}

// ClientsConfig holds API client configurations
type ClientsConfig struct {
	CoinGecko CoinGeckoConfig `toml:"coingecko"`
}

// CoinGeckoConfig holds CoinGecko API configuration
type CoinGeckoConfig struct {
	BaseURL   string `toml:"base_url"`
	APIKey    string `toml:"api_key"`
	RateLimit int    `toml:"rate_limit"`
	Timeout   string `toml:"timeout"`
}

// GetTimeout parses and returns the timeout duration
func (c *CoinGeckoConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// SyncConfig holds the price sync cycle configuration.
type SyncConfig struct {
	Interval string `toml:"interval"`
}

// GetInterval parses and returns the sync interval duration.
func (c *SyncConfig) GetInterval() time.Duration {
	d, err := time.ParseDuration(c.Interval)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

// ProxyConfig holds the market-data read proxy configuration.
type ProxyConfig struct {
	RequestsPerWindow int    `toml:"requests_per_window"`
	Window            string `toml:"window"`
	CacheMaxAge       int    `toml:"cache_max_age"`
}

// GetWindow parses and returns the rate-limit window duration.
func (c *ProxyConfig) GetWindow() time.Duration {
	d, err := time.ParseDuration(c.Window)
	if err != nil {
		return time.Minute
	}
	return d
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Storage: StorageConfig{
			Address:   "ws://localhost:8000",
			Username:  "root",
			Password:  "root",
			Namespace: "coindex",
			Database:  "coindex",
		},
		Stream: StreamConfig{
			Address: "localhost:6379",
			Channel: "prices.events",
		},
		Clients: ClientsConfig{
			CoinGecko: CoinGeckoConfig{
				BaseURL:   "https://api.coingecko.com/api/v3",
				RateLimit: 10,
				Timeout:   "30s",
			},
		},
		Sync: SyncConfig{
			Interval: "5m",
		},
		Proxy: ProxyConfig{
			RequestsPerWindow: 50,
			Window:            "1m",
			CacheMaxAge:       30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadConfig loads configuration from files with environment overrides
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier)
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue // Skip missing files
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("COINDEX_ENV"); env != "" {
		config.Environment = env
	}

	if host := os.Getenv("COINDEX_HOST"); host != "" {
		config.Server.Host = host
	}

	if port := os.Getenv("COINDEX_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if level := os.Getenv("COINDEX_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if addr := os.Getenv("COINDEX_SURREAL_ADDRESS"); addr != "" {
		config.Storage.Address = addr
	}
	if user := os.Getenv("COINDEX_SURREAL_USERNAME"); user != "" {
		config.Storage.Username = user
	}
	if pass := os.Getenv("COINDEX_SURREAL_PASSWORD"); pass != "" {
		config.Storage.Password = pass
	}

	if addr := os.Getenv("COINDEX_REDIS_ADDRESS"); addr != "" {
		config.Stream.Address = addr
	}

	if key := os.Getenv("COINDEX_COINGECKO_API_KEY"); key != "" {
		config.Clients.CoinGecko.APIKey = key
	}
	if key := os.Getenv("COINGECKO_API_KEY"); key != "" && config.Clients.CoinGecko.APIKey == "" {
		config.Clients.CoinGecko.APIKey = key
	}

	if interval := os.Getenv("COINDEX_SYNC_INTERVAL"); interval != "" {
		config.Sync.Interval = interval
	}
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
