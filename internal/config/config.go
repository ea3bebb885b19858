// Package config loads the server configuration from a YAML file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Store kinds accepted in the configuration file.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// RedisConfig holds connection settings for the Redis-backed room store.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// Duration wraps time.Duration so it can be written as "3s" in YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the top-level server configuration.
type Config struct {
	Listen      string      `yaml:"listen"`
	Store       string      `yaml:"store"`
	Redis       RedisConfig `yaml:"redis"`
	LogLevel    string      `yaml:"log_level"`
	GracePeriod Duration    `yaml:"grace_period"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Listen:      ":8080",
		Store:       StoreMemory,
		Redis:       RedisConfig{Addr: "localhost:6379"},
		LogLevel:    "info",
		GracePeriod: Duration(3 * time.Second),
	}
}

// Load reads the configuration file at path, layered over Default. A missing
// file is not an error; the defaults are returned.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Store {
	case StoreMemory, StoreRedis:
	default:
		return fmt.Errorf("unknown store kind %q", c.Store)
	}
	if c.GracePeriod < 0 {
		return fmt.Errorf("grace_period must not be negative")
	}
	return nil
}
