// Package config manages natd daemon configuration using koanf/v2.
//
// Supports YAML files, environment variables, and the defaults baked into
// DefaultConfig: same file+env+defaults layering, same validation contract,
// same log-level parsing throughout, targeting the NAT64 session/binding
// domain (pool4/pool6 ranges, per-protocol session timeouts, the admin
// HTTP surface).
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete natd configuration.
type Config struct {
	Admin    AdminConfig    `koanf:"admin"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Log      LogConfig      `koanf:"log"`
	Sessions SessionsConfig `koanf:"sessions"`
	Pool4    []Pool4Range   `koanf:"pool4"`
	Pool6    []string       `koanf:"pool6"`
	Reaper   ReaperConfig   `koanf:"reaper"`
}

// AdminConfig holds the JSON admin HTTP server configuration.
type AdminConfig struct {
	// Addr is the HTTP listen address for static-route administration
	// (e.g., ":8064").
	Addr string `koanf:"addr"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9464").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// SessionsConfig holds the per-protocol session timeouts.
type SessionsConfig struct {
	// UDPTimeout is the UDP session idle timeout.
	UDPTimeout time.Duration `koanf:"udp_timeout"`
	// TCPTimeout is the established-TCP session idle timeout.
	TCPTimeout time.Duration `koanf:"tcp_timeout"`
	// ICMPTimeout is the ICMP session idle timeout.
	ICMPTimeout time.Duration `koanf:"icmp_timeout"`
}

// Pool4Range describes one configured pool4 address and the L4
// identifier range it lends.
type Pool4Range struct {
	// Addr is the pool4 IPv4 address, e.g. "203.0.113.1".
	Addr string `koanf:"addr"`
	// MinID/MaxID/Stride sample the address's borrowable L4-id range,
	// passed straight through to internal/poolnum.New.
	MinID  uint16 `koanf:"min_id"`
	MaxID  uint16 `koanf:"max_id"`
	Stride uint16 `koanf:"stride"`
}

// ParsedAddr parses Addr as a netip.Addr.
func (r Pool4Range) ParsedAddr() (netip.Addr, error) {
	addr, err := netip.ParseAddr(r.Addr)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("parse pool4 addr %q: %w", r.Addr, err)
	}
	return addr, nil
}

// ReaperConfig holds the expiry-sweep cadence.
type ReaperConfig struct {
	// Interval is how often the reaper walks each protocol's expiry list.
	Interval time.Duration `koanf:"interval"`
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults.
//
// Session timeouts follow RFC 6146's recommended minimums: 5 minutes for
// UDP, 2 hours for established TCP, 60 seconds for ICMP.
func DefaultConfig() *Config {
	return &Config{
		Admin: AdminConfig{
			Addr: ":8064",
		},
		Metrics: MetricsConfig{
			Addr: ":9464",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Sessions: SessionsConfig{
			UDPTimeout:  5 * time.Minute,
			TCPTimeout:  2 * time.Hour,
			ICMPTimeout: 60 * time.Second,
		},
		Reaper: ReaperConfig{
			Interval: 10 * time.Second,
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for natd configuration.
// Variables are named NATD_<section>_<key>, e.g., NATD_ADMIN_ADDR.
const envPrefix = "NATD_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (NATD_ prefix), and merges on top of DefaultConfig().
// Missing fields inherit defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms NATD_ADMIN_ADDR -> admin.addr and
// NATD_SESSIONS_UDP_TIMEOUT -> sessions.udp_timeout: only the first
// underscore separates section from key.
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.Replace(s, "_", ".", 1)
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"admin.addr":             defaults.Admin.Addr,
		"metrics.addr":           defaults.Metrics.Addr,
		"metrics.path":           defaults.Metrics.Path,
		"log.level":              defaults.Log.Level,
		"log.format":             defaults.Log.Format,
		"sessions.udp_timeout":   defaults.Sessions.UDPTimeout.String(),
		"sessions.tcp_timeout":   defaults.Sessions.TCPTimeout.String(),
		"sessions.icmp_timeout":  defaults.Sessions.ICMPTimeout.String(),
		"reaper.interval":        defaults.Reaper.Interval.String(),
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrEmptyAdminAddr indicates the admin HTTP listen address is empty.
	ErrEmptyAdminAddr = errors.New("admin.addr must not be empty")

	// ErrNoPool4Ranges indicates no IPv4 pool addresses were configured.
	ErrNoPool4Ranges = errors.New("pool4 must have at least one address range")

	// ErrInvalidPool4Range indicates a pool4 range is malformed.
	ErrInvalidPool4Range = errors.New("pool4 range is invalid")

	// ErrNoPool6Prefixes indicates no IPv6 translation prefixes were configured.
	ErrNoPool6Prefixes = errors.New("pool6 must have at least one prefix")

	// ErrInvalidPool6Prefix indicates a pool6 entry does not parse as a prefix.
	ErrInvalidPool6Prefix = errors.New("pool6 prefix is invalid")

	// ErrInvalidSessionTimeout indicates a configured session timeout is not positive.
	ErrInvalidSessionTimeout = errors.New("session timeout must be > 0")

	// ErrInvalidReaperInterval indicates the reaper interval is not positive.
	ErrInvalidReaperInterval = errors.New("reaper.interval must be > 0")
)

// Validate checks the configuration for logical errors.
func Validate(cfg *Config) error {
	if cfg.Admin.Addr == "" {
		return ErrEmptyAdminAddr
	}

	if len(cfg.Pool4) == 0 {
		return ErrNoPool4Ranges
	}
	for i, r := range cfg.Pool4 {
		if _, err := r.ParsedAddr(); err != nil {
			return fmt.Errorf("pool4[%d]: %w: %w", i, ErrInvalidPool4Range, err)
		}
		if r.Stride == 0 || r.MinID > r.MaxID {
			return fmt.Errorf("pool4[%d]: %w", i, ErrInvalidPool4Range)
		}
	}

	if len(cfg.Pool6) == 0 {
		return ErrNoPool6Prefixes
	}
	for i, p := range cfg.Pool6 {
		if _, err := netip.ParsePrefix(p); err != nil {
			return fmt.Errorf("pool6[%d]: %w: %w", i, ErrInvalidPool6Prefix, err)
		}
	}

	if cfg.Sessions.UDPTimeout <= 0 || cfg.Sessions.TCPTimeout <= 0 || cfg.Sessions.ICMPTimeout <= 0 {
		return ErrInvalidSessionTimeout
	}

	if cfg.Reaper.Interval <= 0 {
		return ErrInvalidReaperInterval
	}

	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
