// Package config loads client settings from a TOML file and DRONE_* environment
// variables. Environment variables win over the file, the file wins over defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"drone-rpc/client"
	"drone-rpc/codec"
	"drone-rpc/metrics"
	"drone-rpc/middleware"
	"drone-rpc/transport"
)

// Config is the file and environment configuration shared by the binaries.
type Config struct {
	Host        string        `toml:"host"`
	Port        int           `toml:"port"`
	Codec       string        `toml:"codec"`
	Workers     int           `toml:"workers"`
	DialTimeout time.Duration `toml:"dial_timeout"`
	// CallTimeout is applied to unary calls issued without a deadline. Zero disables it.
	CallTimeout time.Duration `toml:"call_timeout"`
	Keepalive   time.Duration `toml:"keepalive"`
	RetryBase   time.Duration `toml:"retry_base"`
	RetryMax    time.Duration `toml:"retry_max"`
	// RateLimit caps unary calls per second on one channel. Zero disables it.
	RateLimit float64  `toml:"rate_limit"`
	RateBurst int      `toml:"rate_burst"`
	Registry  Registry `toml:"registry"`
	Log       Log      `toml:"log"`
}

// Registry locates vehicle servers through etcd.
type Registry struct {
	Endpoints []string `toml:"endpoints"`
	Vehicle   string   `toml:"vehicle"`
	Balancer  string   `toml:"balancer"`
	TTL       int64    `toml:"ttl"`
}

// Log configures the logger built by the logging package.
type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // console or json
	// File enables a rotated log file next to the console output.
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Host:        transport.DefaultHost,
		Port:        transport.DefaultPort,
		Codec:       codec.CodecTypeBinary.String(),
		Workers:     transport.DefaultWorkers,
		DialTimeout: transport.DefaultDialTimeout,
		Keepalive:   transport.DefaultKeepalive,
		RetryBase:   client.DefaultRetryBase,
		RetryMax:    client.DefaultRetryMax,
		RateBurst:   1,
		Registry: Registry{
			Balancer: "round_robin",
			TTL:      10,
		},
		Log: Log{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load reads path (skipped when empty) over the defaults, then applies the
// environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	var errs error
	if v := getenv("DRONE_HOST"); v != "" {
		c.Host = v
	}
	if v := getenv("DRONE_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("DRONE_PORT: %w", err))
		} else {
			c.Port = p
		}
	}
	if v := getenv("DRONE_CODEC"); v != "" {
		c.Codec = v
	}
	if v := getenv("DRONE_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("DRONE_WORKERS: %w", err))
		} else {
			c.Workers = n
		}
	}
	if v := getenv("DRONE_DIAL_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("DRONE_DIAL_TIMEOUT: %w", err))
		} else {
			c.DialTimeout = d
		}
	}
	if v := getenv("DRONE_CALL_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("DRONE_CALL_TIMEOUT: %w", err))
		} else {
			c.CallTimeout = d
		}
	}
	if v := getenv("DRONE_REGISTRY_ENDPOINTS"); v != "" {
		c.Registry.Endpoints = strings.Split(v, ",")
	}
	if v := getenv("DRONE_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	return errs
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs error
	if err := c.Endpoint().Validate(); err != nil {
		errs = multierr.Append(errs, err)
	}
	if _, err := codec.ParseCodecType(c.Codec); err != nil {
		errs = multierr.Append(errs, err)
	}
	if c.Workers < 1 {
		errs = multierr.Append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	if c.DialTimeout <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("dial_timeout must be positive, got %s", c.DialTimeout))
	}
	if c.RetryBase <= 0 || c.RetryMax < c.RetryBase {
		errs = multierr.Append(errs, fmt.Errorf("retry backoff %s..%s is invalid", c.RetryBase, c.RetryMax))
	}
	if c.RateLimit < 0 {
		errs = multierr.Append(errs, fmt.Errorf("rate_limit must not be negative"))
	}
	return errs
}

// Endpoint returns the configured vehicle server address.
func (c *Config) Endpoint() transport.Endpoint {
	return transport.Endpoint{Host: c.Host, Port: c.Port}.WithDefaults()
}

// TransportOptions turns the settings into channel options. log and m may be nil.
func (c *Config) TransportOptions(log *zap.Logger, m *metrics.Metrics) []transport.Option {
	if log == nil {
		log = zap.NewNop()
	}
	ct, _ := codec.ParseCodecType(c.Codec)
	unary := []grpc.UnaryClientInterceptor{middleware.Logging(log)}
	if c.CallTimeout > 0 {
		unary = append(unary, middleware.Timeout(c.CallTimeout))
	}
	if c.RateLimit > 0 {
		unary = append(unary, middleware.RateLimit(c.RateLimit, c.RateBurst))
	}
	return []transport.Option{
		transport.WithCodec(ct),
		transport.WithWorkers(c.Workers),
		transport.WithDialTimeout(c.DialTimeout),
		transport.WithKeepalive(c.Keepalive),
		transport.WithUnaryInterceptors(unary...),
		transport.WithStreamInterceptors(middleware.StreamLogging(log)),
		transport.WithLogger(log),
		transport.WithMetrics(m),
	}
}

// ClientOptions are the options of the call adapters.
func (c *Config) ClientOptions(log *zap.Logger, m *metrics.Metrics) []client.Option {
	return []client.Option{
		client.WithLogger(log),
		client.WithMetrics(m),
		client.WithRetryBackoff(c.RetryBase, c.RetryMax),
	}
}
