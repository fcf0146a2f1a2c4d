/*
config.go - Server configuration

SOURCES (later wins):
  1. Built-in defaults
  2. Environment variables (WATER_*)
  3. YAML file named by WATER_CONFIG
  4. Command-line flags (applied by cmd/server)

EXAMPLE YAML:
  port: 8080
  db_path: ./data/water.db
  cors_origins: ["http://localhost:5173"]
  reconcile_interval: 1h
  sync:
    remote_url: https://api.example.com/api
    interval: 30s
    batch_size: 50
    max_attempts: 5
    base_backoff: 30s
    max_backoff: 30m
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// SyncConfig controls the outbox dispatcher. An empty RemoteURL disables it.
type SyncConfig struct {
	RemoteURL   string        `yaml:"remote_url"`
	Token       string        `yaml:"token"`
	Interval    time.Duration `yaml:"interval"`
	BatchSize   int           `yaml:"batch_size"`
	MaxAttempts int           `yaml:"max_attempts"`
	BaseBackoff time.Duration `yaml:"base_backoff"`
	MaxBackoff  time.Duration `yaml:"max_backoff"`
}

// Config is the full server configuration.
type Config struct {
	Port              int           `yaml:"port"`
	DBPath            string        `yaml:"db_path"`
	CORSOrigins       []string      `yaml:"cors_origins"`
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
	Sync              SyncConfig    `yaml:"sync"`
}

// Load reads defaults, then the environment, then the YAML file if any.
func Load() (Config, error) {
	cfg := Config{
		Port:              getenvIntDefault("WATER_PORT", 8080),
		DBPath:            getenvDefault("WATER_DB_PATH", "water.db"),
		CORSOrigins:       splitCSV(getenvDefault("WATER_CORS_ORIGINS", "http://localhost:5173,http://localhost:8080")),
		ReconcileInterval: getenvDurationDefault("WATER_RECONCILE_INTERVAL", time.Hour),
		Sync: SyncConfig{
			RemoteURL:   os.Getenv("WATER_SYNC_URL"),
			Token:       os.Getenv("WATER_SYNC_TOKEN"),
			Interval:    getenvDurationDefault("WATER_SYNC_INTERVAL", 30*time.Second),
			BatchSize:   getenvIntDefault("WATER_SYNC_BATCH_SIZE", 50),
			MaxAttempts: getenvIntDefault("WATER_SYNC_MAX_ATTEMPTS", 5),
			BaseBackoff: getenvDurationDefault("WATER_SYNC_BASE_BACKOFF", 30*time.Second),
			MaxBackoff:  getenvDurationDefault("WATER_SYNC_MAX_BACKOFF", 30*time.Minute),
		},
	}

	if path := os.Getenv("WATER_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	return cfg, cfg.Validate()
}

// Validate rejects settings the server cannot run with.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Port)
	}
	if c.DBPath == "" {
		return errors.New("config: db_path required")
	}
	if c.ReconcileInterval < 0 {
		return errors.New("config: reconcile_interval cannot be negative")
	}
	if c.Sync.RemoteURL != "" {
		if c.Sync.Interval <= 0 {
			return errors.New("config: sync.interval must be positive")
		}
		if c.Sync.MaxAttempts <= 0 {
			return errors.New("config: sync.max_attempts must be positive")
		}
	}
	return nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDurationDefault(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	var result []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}
