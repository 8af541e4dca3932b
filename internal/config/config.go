// Package config loads server configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds everything the server process needs at startup.
type Config struct {
	Port               string        `mapstructure:"PORT"`
	Env                string        `mapstructure:"ENV"`
	LogLevel           string        `mapstructure:"LOG_LEVEL"`
	CORSOrigins        []string      `mapstructure:"CORS_ORIGINS"`
	AuthSecret         string        `mapstructure:"AUTH_SECRET"`
	ReadTimeout        time.Duration `mapstructure:"READ_TIMEOUT"`
	WriteTimeout       time.Duration `mapstructure:"WRITE_TIMEOUT"`
	SessionIdleTimeout time.Duration `mapstructure:"SESSION_IDLE_TIMEOUT"`
	SessionSweepEvery  time.Duration `mapstructure:"SESSION_SWEEP_EVERY"`
}

// Load reads configuration from .env (if present) and environment variables.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("READ_TIMEOUT", "15s")
	v.SetDefault("WRITE_TIMEOUT", "30s")
	v.SetDefault("SESSION_IDLE_TIMEOUT", "30m")
	v.SetDefault("SESSION_SWEEP_EVERY", "5m")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("LOG_LEVEL")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("AUTH_SECRET")
	v.BindEnv("READ_TIMEOUT")
	v.BindEnv("WRITE_TIMEOUT")
	v.BindEnv("SESSION_IDLE_TIMEOUT")
	v.BindEnv("SESSION_SWEEP_EVERY")

	// Try reading .env, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	return cfg, nil
}

// IsDev reports whether the server runs in development mode.
func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// AuthEnabled reports whether bearer-token auth is configured for the
// session API.
func (c *Config) AuthEnabled() bool {
	return c.AuthSecret != ""
}
