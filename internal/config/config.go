package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port                  int    `yaml:"port"`
	DataDir               string `yaml:"data_dir"`
	LogLevel              string `yaml:"log_level"`
	CacheType             string `yaml:"cache"`
	CacheDir              string `yaml:"cache_dir"`
	LocationsDir          string `yaml:"locations_dir"`
	TripCacheCapacity     int    `yaml:"trip_cache_capacity"`
	LocationCacheCapacity int    `yaml:"location_cache_capacity"`
	WarmupWorkers         int    `yaml:"warmup_workers"`
	AllowedOrigin         string `yaml:"allowed_origin"`
}

// Load builds the configuration from defaults, then the YAML file named by
// CONFIG_FILE (if set), then individual environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:                  8080,
		DataDir:               "/data",
		LogLevel:              "info",
		CacheType:             "file",
		TripCacheCapacity:     50,
		LocationCacheCapacity: 100,
		WarmupWorkers:         1,
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.Port = getEnvInt("PORT", cfg.Port)
	cfg.DataDir = getEnv("DATA_DIR", cfg.DataDir)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.CacheType = getEnv("CACHE", cfg.CacheType)
	cfg.CacheDir = getEnv("CACHE_DIR", cfg.CacheDir)
	cfg.LocationsDir = getEnv("LOCATIONS_DIR", cfg.LocationsDir)
	cfg.TripCacheCapacity = getEnvInt("TRIP_CACHE_CAPACITY", cfg.TripCacheCapacity)
	cfg.LocationCacheCapacity = getEnvInt("LOCATION_CACHE_CAPACITY", cfg.LocationCacheCapacity)
	cfg.WarmupWorkers = getEnvInt("WARMUP_WORKERS", cfg.WarmupWorkers)
	cfg.AllowedOrigin = getEnv("ALLOWED_ORIGIN", cfg.AllowedOrigin)

	if cfg.CacheDir == "" {
		cfg.CacheDir = filepath.Join(cfg.DataDir, "cache")
	}
	if cfg.LocationsDir == "" {
		cfg.LocationsDir = filepath.Join(cfg.DataDir, "locations")
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// TripSnapshotPath is the snapshot file of the trip cache.
func (c *Config) TripSnapshotPath() string {
	return filepath.Join(c.CacheDir, "trips.json")
}

// LocationSnapshotPath is the snapshot file of the location cache.
func (c *Config) LocationSnapshotPath() string {
	return filepath.Join(c.CacheDir, "locations.json")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
