package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
	DataDir    string           `mapstructure:"data_dir"`
	RestAPI    RestAPIConfig    `mapstructure:"rest_api"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	HashIndex  HashIndexConfig  `mapstructure:"hash_index"`
	BTreeIndex BTreeIndexConfig `mapstructure:"btree_index"`
}

// RestAPIConfig holds REST API server configuration.
type RestAPIConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	Host        string   `mapstructure:"host"`
	Port        int      `mapstructure:"port"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// RateLimitConfig holds the token-bucket rate limiter's parameters for the
// REST SQL endpoint.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // text, json
	Output string `mapstructure:"output"` // stderr, stdout, or a file path
}

// HashIndexConfig holds extendible-hash index tuning parameters.
type HashIndexConfig struct {
	BucketCapacity int `mapstructure:"bucket_capacity"`
	DirectoryDepth int `mapstructure:"directory_depth"`
}

// BTreeIndexConfig holds B+ tree index tuning parameters.
type BTreeIndexConfig struct {
	Order int `mapstructure:"order"`
}

// DefaultConfig returns configuration with reldb's built-in defaults.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		DataDir: filepath.Join(homeDir, ".reldb", "data"),
		RestAPI: RestAPIConfig{
			Enabled:     true,
			Host:        "127.0.0.1",
			Port:        8089,
			CORSOrigins: []string{"*"},
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 20,
			Burst:             40,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		HashIndex: HashIndexConfig{
			BucketCapacity: 5,
			DirectoryDepth: 5,
		},
		BTreeIndex: BTreeIndexConfig{
			Order: 4,
		},
	}
}

// Load loads configuration from a config file (searched in the current
// directory, $HOME/.reldb, and /etc/reldb) with RELDB_-prefixed
// environment-variable overrides, falling back to DefaultConfig when no
// file is found. configFile, if non-empty, is read directly instead of
// searched for.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix("RELDB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		homeDir, _ := os.UserHomeDir()
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join(homeDir, ".reldb"))
		v.AddConfigPath("/etc/reldb")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return DefaultConfig(), nil
		}
		if configFile == "" {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("rest_api.enabled", d.RestAPI.Enabled)
	v.SetDefault("rest_api.host", d.RestAPI.Host)
	v.SetDefault("rest_api.port", d.RestAPI.Port)
	v.SetDefault("rest_api.cors_origins", d.RestAPI.CORSOrigins)
	v.SetDefault("rate_limit.requests_per_second", d.RateLimit.RequestsPerSecond)
	v.SetDefault("rate_limit.burst", d.RateLimit.Burst)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output", d.Logging.Output)
	v.SetDefault("hash_index.bucket_capacity", d.HashIndex.BucketCapacity)
	v.SetDefault("hash_index.directory_depth", d.HashIndex.DirectoryDepth)
	v.SetDefault("btree_index.order", d.BTreeIndex.Order)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.RestAPI.Enabled {
		if c.RestAPI.Port < 1 || c.RestAPI.Port > 65535 {
			return fmt.Errorf("rest_api.port must be between 1 and 65535")
		}
		if c.RestAPI.Host == "" {
			return fmt.Errorf("rest_api.host is required when the REST API is enabled")
		}
	}
	if c.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("rate_limit.requests_per_second must be > 0")
	}
	if c.RateLimit.Burst < 1 {
		return fmt.Errorf("rate_limit.burst must be >= 1")
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: text, json")
	}
	if c.HashIndex.BucketCapacity < 1 {
		return fmt.Errorf("hash_index.bucket_capacity must be >= 1")
	}
	if c.HashIndex.DirectoryDepth < 1 {
		return fmt.Errorf("hash_index.directory_depth must be >= 1")
	}
	if c.BTreeIndex.Order < 3 {
		return fmt.Errorf("btree_index.order must be >= 3")
	}
	return nil
}

// EnsureDataDir creates the configured data directory if it doesn't exist.
func (c *Config) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	return nil
}
