// Package config loads gateway settings from file, environment and flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the gateway's server-side configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Database  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Wallet    WalletConfig    `mapstructure:"wallet" yaml:"wallet"`
	Auth      AuthConfig      `mapstructure:"auth" yaml:"auth"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Notify    NotifyConfig    `mapstructure:"notify" yaml:"notify"`
	MCP       MCPConfig       `mapstructure:"mcp" yaml:"mcp"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host            string     `mapstructure:"host" yaml:"host"`
	Port            int        `mapstructure:"port" yaml:"port"`
	PublicURL       string     `mapstructure:"public_url" yaml:"public_url"`
	MaxBodySize     string     `mapstructure:"max_body_size" yaml:"max_body_size"`
	ReadTimeout     string     `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    string     `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout string     `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	CORS            CORSConfig `mapstructure:"cors" yaml:"cors"`
}

// CORSConfig controls cross-origin resource sharing.
type CORSConfig struct {
	Origins []string `mapstructure:"origins" yaml:"origins"`
}

// DatabaseConfig selects the relational store holding keys and the ledger.
type DatabaseConfig struct {
	Driver          string `mapstructure:"driver" yaml:"driver"`
	DSN             string `mapstructure:"dsn" yaml:"dsn"`
	MaxOpenConns    int    `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime string `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	AcquireTimeout  string `mapstructure:"acquire_timeout" yaml:"acquire_timeout"`
}

// WalletConfig locates the wallet daemon.
type WalletConfig struct {
	URL               string `mapstructure:"url" yaml:"url"`
	APIKey            string `mapstructure:"api_key" yaml:"api_key"`
	Network           string `mapstructure:"network" yaml:"network"`
	RequestTimeout    string `mapstructure:"request_timeout" yaml:"request_timeout"`
	SendTimeout       string `mapstructure:"send_timeout" yaml:"send_timeout"`
	DisconnectTimeout string `mapstructure:"disconnect_timeout" yaml:"disconnect_timeout"`
	ConnectRetry      string `mapstructure:"connect_retry" yaml:"connect_retry"`
}

// AuthConfig controls credential extraction.
type AuthConfig struct {
	APIKeyHeader string `mapstructure:"api_key_header" yaml:"api_key_header"`
}

// RateLimitConfig throttles requests per API key.
type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled" yaml:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig controls the Prometheus listener.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
}

// NotifyConfig configures the event side-channel. Empty targets disable it.
type NotifyConfig struct {
	WebhookURL    string `mapstructure:"webhook_url" yaml:"webhook_url"`
	WebhookSecret string `mapstructure:"webhook_secret" yaml:"webhook_secret"`
	RedisAddr     string `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password" yaml:"redis_password"`
	RedisChannel  string `mapstructure:"redis_channel" yaml:"redis_channel"`
	QueueSize     int    `mapstructure:"queue_size" yaml:"queue_size"`
}

// MCPConfig controls the agent tool server.
type MCPConfig struct {
	Transport string `mapstructure:"transport" yaml:"transport"`
	Addr      string `mapstructure:"addr" yaml:"addr"`
}

// Drivers lists the supported database drivers.
var Drivers = []string{"postgres", "mysql", "mssql", "sqlite"}

// Default returns a Config pre-filled with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8000,
			MaxBodySize:     "1MB",
			ReadTimeout:     "15s",
			WriteTimeout:    "90s",
			ShutdownTimeout: "30s",
			CORS:            CORSConfig{Origins: []string{"*"}},
		},
		Database: DatabaseConfig{
			Driver:          "postgres",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: "30m",
			AcquireTimeout:  "5s",
		},
		Wallet: WalletConfig{
			URL:               "http://127.0.0.1:9737",
			Network:           "mainnet",
			RequestTimeout:    "30s",
			SendTimeout:       "60s",
			DisconnectTimeout: "5s",
			ConnectRetry:      "30s",
		},
		Auth: AuthConfig{APIKeyHeader: "X-API-Key"},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 120,
		},
		Log:     LogConfig{Level: "info", Format: "text"},
		Metrics: MetricsConfig{Enabled: false, Addr: "127.0.0.1:9090"},
		Notify: NotifyConfig{
			RedisChannel: "glow:events",
			QueueSize:    256,
		},
		MCP: MCPConfig{Transport: "stdio", Addr: "127.0.0.1:8081"},
	}
}

// SetDefaults registers every default with v so environment variables can
// override keys that no config file mentions.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.public_url", d.Server.PublicURL)
	v.SetDefault("server.max_body_size", d.Server.MaxBodySize)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.cors.origins", d.Server.CORS.Origins)

	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.dsn", d.Database.DSN)
	v.SetDefault("database.max_open_conns", d.Database.MaxOpenConns)
	v.SetDefault("database.max_idle_conns", d.Database.MaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", d.Database.ConnMaxLifetime)
	v.SetDefault("database.acquire_timeout", d.Database.AcquireTimeout)

	v.SetDefault("wallet.url", d.Wallet.URL)
	v.SetDefault("wallet.api_key", d.Wallet.APIKey)
	v.SetDefault("wallet.network", d.Wallet.Network)
	v.SetDefault("wallet.request_timeout", d.Wallet.RequestTimeout)
	v.SetDefault("wallet.send_timeout", d.Wallet.SendTimeout)
	v.SetDefault("wallet.disconnect_timeout", d.Wallet.DisconnectTimeout)
	v.SetDefault("wallet.connect_retry", d.Wallet.ConnectRetry)

	v.SetDefault("auth.api_key_header", d.Auth.APIKeyHeader)

	v.SetDefault("rate_limit.enabled", d.RateLimit.Enabled)
	v.SetDefault("rate_limit.requests_per_minute", d.RateLimit.RequestsPerMinute)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.addr", d.Metrics.Addr)

	v.SetDefault("notify.webhook_url", d.Notify.WebhookURL)
	v.SetDefault("notify.webhook_secret", d.Notify.WebhookSecret)
	v.SetDefault("notify.redis_addr", d.Notify.RedisAddr)
	v.SetDefault("notify.redis_password", d.Notify.RedisPassword)
	v.SetDefault("notify.redis_channel", d.Notify.RedisChannel)
	v.SetDefault("notify.queue_size", d.Notify.QueueSize)

	v.SetDefault("mcp.transport", d.MCP.Transport)
	v.SetDefault("mcp.addr", d.MCP.Addr)
}

// Load unmarshals v into a Config and validates it. DATABASE_URL is used
// when no DSN is configured.
func Load(v *viper.Viper) (*Config, error) {
	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = os.Getenv("DATABASE_URL")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and that every duration and size parses.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if _, err := ParseSize(c.Server.MaxBodySize); err != nil {
		errs = append(errs, fmt.Errorf("server.max_body_size: %w", err))
	}
	if !slices.Contains(Drivers, c.Database.Driver) {
		errs = append(errs, fmt.Errorf("database.driver %q must be one of %s",
			c.Database.Driver, strings.Join(Drivers, ", ")))
	}
	if c.Database.MaxOpenConns < 1 {
		errs = append(errs, errors.New("database.max_open_conns must be at least 1"))
	}
	if c.Auth.APIKeyHeader == "" {
		errs = append(errs, errors.New("auth.api_key_header must not be empty"))
	}
	if c.RateLimit.Enabled && c.RateLimit.RequestsPerMinute < 1 {
		errs = append(errs, errors.New("rate_limit.requests_per_minute must be at least 1"))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", c.Log.Format))
	}
	switch c.MCP.Transport {
	case "stdio", "http":
	default:
		errs = append(errs, fmt.Errorf("mcp.transport %q must be stdio or http", c.MCP.Transport))
	}

	durations := map[string]string{
		"server.read_timeout":        c.Server.ReadTimeout,
		"server.write_timeout":       c.Server.WriteTimeout,
		"server.shutdown_timeout":    c.Server.ShutdownTimeout,
		"database.conn_max_lifetime": c.Database.ConnMaxLifetime,
		"database.acquire_timeout":   c.Database.AcquireTimeout,
		"wallet.request_timeout":     c.Wallet.RequestTimeout,
		"wallet.send_timeout":        c.Wallet.SendTimeout,
		"wallet.disconnect_timeout":  c.Wallet.DisconnectTimeout,
		"wallet.connect_retry":       c.Wallet.ConnectRetry,
	}
	keys := make([]string, 0, len(durations))
	for k := range durations {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if _, err := time.ParseDuration(durations[k]); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", k, err))
		}
	}

	return errors.Join(errs...)
}

// Duration parses a validated duration string, returning 0 when empty or
// malformed.
func Duration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}

// ParseSize parses a human-readable byte size such as "1MB", "512KB" or
// "1048576".
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	if s == "" {
		return 0, errors.New("empty size")
	}

	mult := int64(1)
	for _, u := range []struct {
		suffix string
		mult   int64
	}{{"GB", 1 << 30}, {"MB", 1 << 20}, {"KB", 1 << 10}, {"B", 1}} {
		if strings.HasSuffix(s, u.suffix) {
			mult = u.mult
			s = strings.TrimSpace(strings.TrimSuffix(s, u.suffix))
			break
		}
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	return n * mult, nil
}
