package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the server configuration: optional YAML file, every field
// overridable by environment variable.
type Config struct {
	Port     string `yaml:"port"`
	SetsDir  string `yaml:"sets_dir"`
	Store    string `yaml:"store"`    // "postgres" or "memory"
	NATSURL  string `yaml:"nats_url"` // empty disables the cross-node bridge
	LogLevel string `yaml:"log_level"`
}

func defaultConfig() Config {
	return Config{
		Port:     "8080",
		SetsDir:  "sets",
		Store:    "postgres",
		LogLevel: "info",
	}
}

// loadConfig reads CONFIG_FILE (or config.yaml when present), then applies
// environment overrides.
func loadConfig() (Config, error) {
	cfg := defaultConfig()

	path := getEnv("CONFIG_FILE", "config.yaml")
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.SetsDir = getEnv("SETS_DIR", cfg.SetsDir)
	cfg.Store = getEnv("STORE", cfg.Store)
	cfg.NATSURL = getEnv("NATS_URL", cfg.NATSURL)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
