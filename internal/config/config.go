// Package config loads proxy configuration from the environment, with
// an optional YAML file underneath (env always wins).
package config

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"time"

	"go.yaml.in/yaml/v3"
)

// Config is the top-level proxy configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
	Cache     CacheConfig     `yaml:"cache"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Token is the default bearer sent upstream when a request carries
	// no Authorization header. Required.
	Token string `yaml:"token"`

	LogLevel slog.Level `yaml:"-"`
}

// ServerConfig holds the listen socket settings.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// UpstreamConfig holds upstream connection settings.
type UpstreamConfig struct {
	// Host is the upstream authority; requests are rewritten to
	// https://<Host><canonical route>.
	Host string `yaml:"host"`
	// DisableHTTP2 forces HTTP/1.1 upstream.
	DisableHTTP2 bool `yaml:"disable_http2"`
}

// CacheConfig holds the response cache TTL.
type CacheConfig struct {
	Duration time.Duration `yaml:"duration"`
}

// TelemetryConfig holds metrics and tracing settings.
type TelemetryConfig struct {
	// MetricKey prefixes every metric name.
	MetricKey string `yaml:"metric_key"`
	// MetricTimeout clears idle counter/histogram series.
	MetricTimeout time.Duration `yaml:"metric_timeout"`
	// TrackInProgress enables the in-flight gauge.
	TrackInProgress bool          `yaml:"track_in_progress"`
	Tracing         TracingConfig `yaml:"tracing"`
}

// TracingConfig controls OpenTelemetry tracing.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Endpoint   string  `yaml:"endpoint"`    // OTLP gRPC endpoint
	SampleRate float64 `yaml:"sample_rate"` // 0.0 to 1.0
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnv replaces ${VAR} patterns with environment variable values.
func expandEnv(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := string(match[2 : len(match)-1])
		if val, ok := os.LookupEnv(varName); ok {
			return []byte(val)
		}
		return match
	})
}

// Load builds the configuration: defaults, then the YAML file at path
// (when non-empty), then environment variables on top. It fails when no
// default bearer token ends up configured.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            80,
			ShutdownTimeout: 30 * time.Second,
		},
		Upstream: UpstreamConfig{
			Host: "discord.com",
		},
		Cache: CacheConfig{
			Duration: 600 * time.Second,
		},
		Telemetry: TelemetryConfig{
			MetricKey:     "twilight_http_proxy",
			MetricTimeout: 300 * time.Second,
		},
		LogLevel: slog.LevelInfo,
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(expandEnv(data), cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if cfg.Token == "" {
		return nil, fmt.Errorf("DISCORD_TOKEN is required")
	}
	return cfg, nil
}

// applyEnv overlays the recognised environment variables.
func (c *Config) applyEnv() error {
	if v := os.Getenv("DISCORD_TOKEN"); v != "" {
		c.Token = v
	}
	if v := os.Getenv("HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("UPSTREAM_HOST"); v != "" {
		c.Upstream.Host = v
	}
	// Presence alone disables HTTP/2, regardless of value.
	if _, ok := os.LookupEnv("DISABLE_HTTP2"); ok {
		c.Upstream.DisableHTTP2 = true
	}
	if v := os.Getenv("CACHE_DURATION"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse CACHE_DURATION: %w", err)
		}
		c.Cache.Duration = time.Duration(secs) * time.Second
	}
	if v := os.Getenv("METRIC_KEY"); v != "" {
		c.Telemetry.MetricKey = v
	}
	if v := os.Getenv("METRIC_TIMEOUT"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse METRIC_TIMEOUT: %w", err)
		}
		c.Telemetry.MetricTimeout = time.Duration(secs) * time.Second
	}
	if v := os.Getenv("TRACK_IN_PROGRESS"); v != "" {
		track, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse TRACK_IN_PROGRESS: %w", err)
		}
		c.Telemetry.TrackInProgress = track
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("parse LOG_LEVEL: %w", err)
		}
		c.LogLevel = level
	}
	return nil
}
