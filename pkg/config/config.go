// Package config loads the process configuration from a YAML file merged
// with environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the full process configuration.
type Config struct {
	Storage struct {
		DBPath          string `yaml:"db_path"`
		BloomBitsPerKey int    `yaml:"bloom_bits_per_key"`
		ZScanCacheSize  int    `yaml:"zscan_cache_size"`
	} `yaml:"storage"`
	GC struct {
		Enabled bool   `yaml:"enabled"`
		Cron    string `yaml:"cron"`
	} `yaml:"gc"`
	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`
	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// Default returns the built-in configuration.
func Default() *Config {
	var c Config
	c.Storage.DBPath = "./data"
	c.Storage.BloomBitsPerKey = 10
	c.Storage.ZScanCacheSize = 1024
	c.GC.Enabled = true
	c.Metrics.Addr = ":9090"
	return &c
}

// Load reads the YAML file at path (when non-empty) over the defaults and
// then applies environment overrides.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	c.applyEnv()
	return c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("ZSETDB_DB_PATH"); v != "" {
		c.Storage.DBPath = v
	}
	if v := os.Getenv("ZSETDB_BLOOM_BITS_PER_KEY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Storage.BloomBitsPerKey = n
		}
	}
	if v := os.Getenv("ZSETDB_ZSCAN_CACHE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Storage.ZScanCacheSize = n
		}
	}
	if v := os.Getenv("ZSETDB_GC_CRON"); v != "" {
		c.GC.Cron = v
	}
	if v := os.Getenv("ZSETDB_METRICS_ADDR"); v != "" {
		c.Metrics.Addr = v
	}
	if v := os.Getenv("ZSETDB_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}
