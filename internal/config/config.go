// Package config loads the gateway's YAML configuration file into the
// nested sections each subsystem is constructed from.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DiscoveryConfig controls the discovery cache (§4.1).
type DiscoveryConfig struct {
	Namespace    string        `yaml:"namespace"`
	CacheTTL     time.Duration `yaml:"cacheTTL"`
	PollInterval time.Duration `yaml:"pollInterval"`
}

// ExecutionConfig controls the execution engine (§4.3).
type ExecutionConfig struct {
	TimeoutSeconds int `yaml:"timeoutSeconds"`
	MaxWorkers     int `yaml:"maxWorkers"`
}

// ScheduleConfig controls the cron trigger loop (§4.5).
type ScheduleConfig struct {
	PollInterval time.Duration `yaml:"pollInterval"`
}

// AnomalyConfig controls the baseline refresher and detector (§4.6).
type AnomalyConfig struct {
	Enabled         bool          `yaml:"enabled"`
	RefreshInterval time.Duration `yaml:"refreshInterval"`
	Window          time.Duration `yaml:"window"`
	MinSamples      int           `yaml:"minSamples"`
}

// ServerConfig controls the HTTP listener (internal/httpserver).
type ServerConfig struct {
	Address      string   `yaml:"address"`
	AllowOrigins []string `yaml:"allowOrigins"`
}

// DatabaseConfig names the PostgreSQL connection.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// Config is the top-level gateway configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Execution ExecutionConfig `yaml:"execution"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Anomaly   AnomalyConfig   `yaml:"anomaly"`
	LogLevel  string          `yaml:"logLevel"`
}

// Default returns the configuration used when no file is supplied,
// mirroring each subsystem's own documented defaults.
func Default() Config {
	return Config{
		Server:    ServerConfig{Address: ":8080"},
		Discovery: DiscoveryConfig{CacheTTL: 30 * time.Second, PollInterval: 10 * time.Second},
		Execution: ExecutionConfig{TimeoutSeconds: 30, MaxWorkers: 8},
		Schedule:  ScheduleConfig{PollInterval: 30 * time.Second},
		Anomaly:   AnomalyConfig{Enabled: true, RefreshInterval: time.Hour, Window: 30 * 24 * time.Hour, MinSamples: 20},
		LogLevel:  "info",
	}
}

// Load reads and parses the YAML file at path over top of Default(), so
// an omitted section keeps its documented default rather than zeroing out.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}
	return cfg, nil
}
