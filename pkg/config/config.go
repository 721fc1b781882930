// Package config loads GraphKB's process-wide configuration from
// environment variables, with an optional YAML override file layered
// underneath (env wins). Grounded on the teacher's pkg/config/config.go
// env-var-driven loader and Validate() gate.
//
// Environment Variables:
//   - GRAPHKB_STORE_DRIVER ("memory" | "badger", default "memory")
//   - GRAPHKB_DATA_DIR (badger data directory)
//   - GRAPHKB_BUILD_VERSION (target schema version; falls back to a
//     linker-injected buildVersion when unset)
//   - GRAPHKB_POOL_SIZE (session pool capacity, default 16)
//   - GRAPHKB_QUERY_TIMEOUT (deadline for the session context of the
//     migrate/check commands and serve's startup migration check, default
//     30s; HTTP requests do not take a deadline from it)
//   - GRAPHKB_MAX_DEPTH (loaded and validated, default 50; traversal uses
//     the constant traversal.DefaultMaxDepth, not this value)
//   - GRAPHKB_ENCRYPTION_KEY (optional badger encryption-at-rest passphrase)
//   - GRAPHKB_METRICS_ENABLED (expose /metrics alongside /healthz)
//   - GRAPHKB_CONFIG_FILE (optional graphkb.yaml override path)
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// buildVersion is set via -ldflags at release build time, the same way the
// teacher project stamps its own version/commit into cmd/nornicdb/main.go.
var buildVersion = "0.0.0"

// Config is GraphKB's process-wide, immutable-after-startup configuration.
type Config struct {
	StoreDriver    string
	DataDir        string
	BuildVersion   string
	PoolSize       int
	QueryTimeout   time.Duration
	MaxDepth       int
	EncryptionKey  string
	MetricsEnabled bool
}

// fileOverride is the shape of an optional graphkb.yaml file, layered
// underneath environment variables (env always wins).
type fileOverride struct {
	StoreDriver    string `yaml:"storeDriver"`
	DataDir        string `yaml:"dataDir"`
	BuildVersion   string `yaml:"buildVersion"`
	PoolSize       int    `yaml:"poolSize"`
	QueryTimeout   string `yaml:"queryTimeout"`
	MaxDepth       int    `yaml:"maxDepth"`
	EncryptionKey  string `yaml:"encryptionKey"`
	MetricsEnabled bool   `yaml:"metricsEnabled"`
}

// LoadFromEnv builds a Config from environment variables, layering an
// optional GRAPHKB_CONFIG_FILE YAML override underneath them.
func LoadFromEnv() (*Config, error) {
	file, err := loadFileOverride(os.Getenv("GRAPHKB_CONFIG_FILE"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		StoreDriver:    getEnvOr("GRAPHKB_STORE_DRIVER", file.StoreDriver, "memory"),
		DataDir:        getEnvOr("GRAPHKB_DATA_DIR", file.DataDir, "./data"),
		BuildVersion:   getEnvOr("GRAPHKB_BUILD_VERSION", file.BuildVersion, buildVersion),
		PoolSize:       getEnvIntOr("GRAPHKB_POOL_SIZE", file.PoolSize, 16),
		QueryTimeout:   getEnvDurationOr("GRAPHKB_QUERY_TIMEOUT", file.QueryTimeout, 30*time.Second),
		MaxDepth:       getEnvIntOr("GRAPHKB_MAX_DEPTH", file.MaxDepth, 50),
		EncryptionKey:  getEnvOr("GRAPHKB_ENCRYPTION_KEY", file.EncryptionKey, ""),
		MetricsEnabled: getEnvBoolOr("GRAPHKB_METRICS_ENABLED", file.MetricsEnabled, false),
	}
	return cfg, nil
}

func loadFileOverride(path string) (fileOverride, error) {
	var f fileOverride
	if path == "" {
		return f, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return f, fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return f, nil
}

// Validate rejects an unknown store driver, a non-positive pool size, and a
// target version that fails semver parsing, per SPEC_FULL.md §4.0.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case "memory", "badger":
	default:
		return fmt.Errorf("unknown store driver %q", c.StoreDriver)
	}
	if c.PoolSize <= 0 {
		return fmt.Errorf("pool size must be positive, got %d", c.PoolSize)
	}
	if _, err := semver.NewVersion(c.BuildVersion); err != nil {
		return fmt.Errorf("invalid build version %q: %w", c.BuildVersion, err)
	}
	if c.StoreDriver == "badger" && c.DataDir == "" {
		return fmt.Errorf("badger store driver requires a data directory")
	}
	if c.MaxDepth <= 0 {
		return fmt.Errorf("max depth must be positive, got %d", c.MaxDepth)
	}
	return nil
}

// String is safe for logging: it omits EncryptionKey.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{StoreDriver: %s, DataDir: %s, BuildVersion: %s, PoolSize: %d, QueryTimeout: %s, MaxDepth: %d}",
		c.StoreDriver, c.DataDir, c.BuildVersion, c.PoolSize, c.QueryTimeout, c.MaxDepth,
	)
}

func getEnvOr(key, fileVal, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	if fileVal != "" {
		return fileVal
	}
	return defaultVal
}

func getEnvIntOr(key string, fileVal, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	if fileVal != 0 {
		return fileVal
	}
	return defaultVal
}

func getEnvBoolOr(key string, fileVal, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		val = strings.ToLower(val)
		return val == "true" || val == "1" || val == "yes" || val == "on"
	}
	if fileVal {
		return fileVal
	}
	return defaultVal
}

func getEnvDurationOr(key string, fileVal string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(val); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	if fileVal != "" {
		if d, err := time.ParseDuration(fileVal); err == nil {
			return d
		}
	}
	return defaultVal
}
