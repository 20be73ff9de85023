// Package config loads application settings from an optional YAML file
// with RETRO_* environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all runtime settings.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`

	NATS struct {
		URL    string `yaml:"url"`
		Bucket string `yaml:"bucket"`
	} `yaml:"nats"`

	CachePath string `yaml:"cache_path"`

	Timer struct {
		DefaultMinutes int `yaml:"default_minutes"`
	} `yaml:"timer"`

	AutoSaveSeconds int `yaml:"auto_save_seconds"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	var cfg Config
	cfg.ListenAddr = ":8080"
	cfg.NATS.URL = "nats://localhost:4222"
	cfg.NATS.Bucket = "retro"
	cfg.CachePath = "retro.db"
	cfg.Timer.DefaultMinutes = 30
	cfg.AutoSaveSeconds = 30
	return cfg
}

// Load reads settings from path (if it exists) on top of the defaults,
// then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Optional file, run on defaults.
		case err != nil:
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	cfg.ListenAddr = getEnv("RETRO_LISTEN_ADDR", cfg.ListenAddr)
	cfg.NATS.URL = getEnv("RETRO_NATS_URL", cfg.NATS.URL)
	cfg.NATS.Bucket = getEnv("RETRO_NATS_BUCKET", cfg.NATS.Bucket)
	cfg.CachePath = getEnv("RETRO_CACHE_PATH", cfg.CachePath)
	cfg.Timer.DefaultMinutes = getEnvAsInt("RETRO_TIMER_MINUTES", cfg.Timer.DefaultMinutes)
	cfg.AutoSaveSeconds = getEnvAsInt("RETRO_AUTOSAVE_SECONDS", cfg.AutoSaveSeconds)

	if cfg.Timer.DefaultMinutes <= 0 {
		return Config{}, fmt.Errorf("timer default_minutes must be positive, got %d", cfg.Timer.DefaultMinutes)
	}
	if cfg.AutoSaveSeconds <= 0 {
		return Config{}, fmt.Errorf("auto_save_seconds must be positive, got %d", cfg.AutoSaveSeconds)
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
