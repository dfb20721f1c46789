// anonbox
// Copyright 2026 Blue Static <https://www.bluestatic.org>
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

package main

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"src.bluestatic.org/anonbox/pkg/anonbox"
	"src.bluestatic.org/anonbox/pkg/version"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

type LogConfig struct {
	Level string
	// File, if set, receives a copy of the log, rotated by size.
	File       string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
}

type Config struct {
	Host  string
	NoTLS bool

	// Delay is the time between checks in watch mode.
	Delay   time.Duration
	Timeout time.Duration

	CAFile    string
	Proxy     string
	UserAgent string

	// Archive is an mbox file that new messages are appended to.
	Archive string

	Log LogConfig
}

const envPrefix = "anonbox"

func setDefaults(v *viper.Viper) {
	v.SetDefault("host", anonbox.DefaultHost)
	v.SetDefault("no_tls", false)
	v.SetDefault("delay", "30s")
	v.SetDefault("timeout", "30s")
	v.SetDefault("ca_file", "")
	v.SetDefault("proxy", "")
	v.SetDefault("user_agent", version.UserAgent)
	v.SetDefault("archive", "")
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 28)
}

// LoadConfig reads the configuration from, in decreasing priority, the
// environment (ANONBOX_HOST, ANONBOX_LOG_LEVEL, ...), a .env file in the
// working directory, the JSON file at `path` if it is not empty, and the
// defaults.
func LoadConfig(path string) (*Config, error) {
	// A missing .env is fine.
	godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("Failed to read config file: %w", err)
		}
	}

	delay, err := time.ParseDuration(v.GetString("delay"))
	if err != nil {
		return nil, fmt.Errorf("Invalid delay: %w", err)
	}
	timeout, err := time.ParseDuration(v.GetString("timeout"))
	if err != nil {
		return nil, fmt.Errorf("Invalid timeout: %w", err)
	}

	return &Config{
		Host:      v.GetString("host"),
		NoTLS:     v.GetBool("no_tls"),
		Delay:     delay,
		Timeout:   timeout,
		CAFile:    v.GetString("ca_file"),
		Proxy:     v.GetString("proxy"),
		UserAgent: v.GetString("user_agent"),
		Archive:   v.GetString("archive"),
		Log: LogConfig{
			Level:      v.GetString("log.level"),
			File:       v.GetString("log.file"),
			MaxSize:    v.GetInt("log.max_size"),
			MaxBackups: v.GetInt("log.max_backups"),
			MaxAge:     v.GetInt("log.max_age"),
		},
	}, nil
}

func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("Missing Host")
	}
	if strings.ContainsAny(c.Host, "/ ") {
		return fmt.Errorf("Invalid Host: %q", c.Host)
	}
	if c.Delay <= 0 {
		return fmt.Errorf("Delay must be positive, got %v", c.Delay)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("Timeout must be positive, got %v", c.Timeout)
	}
	if c.Proxy != "" {
		u, err := url.Parse(c.Proxy)
		if err != nil {
			return fmt.Errorf("Invalid Proxy: %w", err)
		}
		if u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("Invalid Proxy: %q", c.Proxy)
		}
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("Invalid Log.Level: %w", err)
	}
	if c.Log.File != "" && (c.Log.MaxSize < 0 || c.Log.MaxBackups < 0 || c.Log.MaxAge < 0) {
		return fmt.Errorf("Log rotation limits must not be negative")
	}
	return nil
}

func (c *Config) Service() anonbox.Service {
	return anonbox.Service{Host: c.Host, UseTLS: !c.NoTLS}
}
