package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"lendcore/core/types"
	"lendcore/gateway/middleware"
	nativecommon "lendcore/native/common"
)

// Storage backends.
const (
	BackendLevelDB = "leveldb"
	BackendMemory  = "memory"
)

// Outbox drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config captures the runtime settings for the lending daemon.
type Config struct {
	ListenAddress string                          `yaml:"listen"`
	Environment   string                          `yaml:"env"`
	TLS           TLSConfig                       `yaml:"tls"`
	Auth          AuthConfig                      `yaml:"auth"`
	CORS          CORSConfig                      `yaml:"cors"`
	RateLimits    map[string]middleware.RateLimit `yaml:"rate_limits"`
	Quota         nativecommon.Quota              `yaml:"quota"`
	Storage       StorageConfig                   `yaml:"storage"`
	Outbox        OutboxConfig                    `yaml:"outbox"`
	Idempotency   IdempotencyConfig               `yaml:"idempotency"`
	ProtocolPath  string                          `yaml:"protocol"`
	Prices        PriceConfig                     `yaml:"prices"`
	Votes         map[string]uint64               `yaml:"votes"`
	Accounts      AccountsConfig                  `yaml:"accounts"`
	Scheduler     SchedulerConfig                 `yaml:"scheduler"`
	Telemetry     TelemetryConfig                 `yaml:"telemetry"`
	Logging       LoggingConfig                   `yaml:"logging"`
}

// TLSConfig describes the TLS material for the HTTP server.
type TLSConfig struct {
	CertPath      string `yaml:"cert"`
	KeyPath       string `yaml:"key"`
	AllowInsecure bool   `yaml:"allow_insecure"`
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	Enabled        bool     `yaml:"enabled"`
	HMACSecret     string   `yaml:"hmac_secret"`
	Issuer         string   `yaml:"issuer"`
	Audience       string   `yaml:"audience"`
	OptionalPaths  []string `yaml:"optional_paths"`
	AllowAnonymous bool     `yaml:"allow_anonymous"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// StorageConfig selects where store snapshots are persisted.
type StorageConfig struct {
	Backend      string `yaml:"backend"`
	DataDir      string `yaml:"data_dir"`
	Retention    uint64 `yaml:"retention"`
	AllowMigrate bool   `yaml:"allow_migrate"`
}

// OutboxConfig selects the effect outbox database.
type OutboxConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// IdempotencyConfig locates the response cache.
type IdempotencyConfig struct {
	Path string        `yaml:"path"`
	TTL  time.Duration `yaml:"ttl"`
}

// PriceConfig lists static quotes and remote price sources. Static keys use
// the extended symbol form, e.g. "4,EOS@eosio.token".
type PriceConfig struct {
	Static  map[string]string `yaml:"static"`
	Sources []PriceSource     `yaml:"sources"`
	Timeout time.Duration     `yaml:"timeout"`
}

// PriceSource is an HTTP endpoint returning a JSON object of token -> price.
type PriceSource struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// AccountsConfig describes the counterparties the daemon recognises.
type AccountsConfig struct {
	Contracts []string `yaml:"contracts"`
	Unknown   []string `yaml:"unknown"`
}

// SchedulerConfig drives periodic maintenance. A zero interval disables the
// task.
type SchedulerConfig struct {
	InterestInterval time.Duration `yaml:"interest_interval"`
	PriceInterval    time.Duration `yaml:"price_interval"`
	HealthInterval   time.Duration `yaml:"health_interval"`
	HealthThreshold  float64       `yaml:"health_threshold"`
	ClaimInterval    time.Duration `yaml:"claim_interval"`
}

type TelemetryConfig struct {
	Endpoint    string            `yaml:"endpoint"`
	Insecure    bool              `yaml:"insecure"`
	Headers     map[string]string `yaml:"headers"`
	Metrics     bool              `yaml:"metrics"`
	Traces      bool              `yaml:"traces"`
	SampleRatio float64           `yaml:"sample_ratio"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Load reads the YAML configuration from disk and validates the result.
func Load(path string) (Config, error) {
	cfg := Config{}
	if path == "" {
		return cfg, fmt.Errorf("config path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) normalize() {
	if cfg == nil {
		return
	}
	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":8088"
	}
	cfg.Environment = strings.ToLower(strings.TrimSpace(cfg.Environment))
	cfg.TLS.CertPath = strings.TrimSpace(cfg.TLS.CertPath)
	cfg.TLS.KeyPath = strings.TrimSpace(cfg.TLS.KeyPath)
	cfg.Auth.HMACSecret = strings.TrimSpace(cfg.Auth.HMACSecret)
	if cfg.Auth.Audience == "" {
		cfg.Auth.Audience = "lendingd"
	}

	cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = BackendLevelDB
	}
	cfg.Storage.DataDir = strings.TrimSpace(cfg.Storage.DataDir)
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "./data/lendingd"
	}
	if cfg.Storage.Retention == 0 {
		cfg.Storage.Retention = 16
	}

	cfg.Outbox.Driver = strings.ToLower(strings.TrimSpace(cfg.Outbox.Driver))
	if cfg.Outbox.Driver == "" {
		cfg.Outbox.Driver = DriverSQLite
	}
	cfg.Outbox.DSN = strings.TrimSpace(cfg.Outbox.DSN)
	if cfg.Outbox.DSN == "" && cfg.Outbox.Driver == DriverSQLite {
		cfg.Outbox.DSN = "file:lendingd-outbox.db"
	}
	cfg.Idempotency.Path = strings.TrimSpace(cfg.Idempotency.Path)
	if cfg.Idempotency.TTL <= 0 {
		cfg.Idempotency.TTL = 24 * time.Hour
	}

	cfg.ProtocolPath = strings.TrimSpace(cfg.ProtocolPath)
	if cfg.ProtocolPath == "" {
		cfg.ProtocolPath = "lending.toml"
	}
	if cfg.Prices.Timeout <= 0 {
		cfg.Prices.Timeout = 5 * time.Second
	}
	for i := range cfg.Prices.Sources {
		cfg.Prices.Sources[i].Name = strings.TrimSpace(cfg.Prices.Sources[i].Name)
		cfg.Prices.Sources[i].URL = strings.TrimSpace(cfg.Prices.Sources[i].URL)
	}
	cfg.Accounts.Contracts = trimAll(cfg.Accounts.Contracts)
	cfg.Accounts.Unknown = trimAll(cfg.Accounts.Unknown)
	if cfg.Scheduler.HealthThreshold < 0 {
		cfg.Scheduler.HealthThreshold = 0
	}
	cfg.Logging.Level = strings.TrimSpace(cfg.Logging.Level)
}

func (cfg *Config) validate() error {
	if cfg == nil {
		return fmt.Errorf("configuration is missing")
	}
	hasCert := cfg.TLS.CertPath != ""
	if hasCert != (cfg.TLS.KeyPath != "") {
		return fmt.Errorf("tls: cert and key must either both be provided or both be empty")
	}
	if !cfg.TLS.AllowInsecure && !hasCert {
		return fmt.Errorf("tls: cert and key are required unless allow_insecure=true")
	}
	if cfg.Auth.Enabled && cfg.Auth.HMACSecret == "" {
		return fmt.Errorf("auth: hmac_secret is required when auth is enabled")
	}
	switch cfg.Storage.Backend {
	case BackendLevelDB, BackendMemory:
	default:
		return fmt.Errorf("storage: unsupported backend %q", cfg.Storage.Backend)
	}
	switch cfg.Outbox.Driver {
	case DriverSQLite:
	case DriverPostgres:
		if cfg.Outbox.DSN == "" {
			return fmt.Errorf("outbox: dsn is required for postgres")
		}
	default:
		return fmt.Errorf("outbox: unsupported driver %q", cfg.Outbox.Driver)
	}
	for key, raw := range cfg.Prices.Static {
		if _, err := types.ParseExtendedSymbol(key); err != nil {
			return fmt.Errorf("prices.static: %w", err)
		}
		if _, err := parsePrice(raw); err != nil {
			return fmt.Errorf("prices.static[%s]: %w", key, err)
		}
	}
	for i, src := range cfg.Prices.Sources {
		u, err := url.Parse(src.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("prices.sources[%d]: invalid url %q", i, src.URL)
		}
	}
	for key, limit := range cfg.RateLimits {
		if limit.RatePerSecond <= 0 || limit.Burst <= 0 {
			return fmt.Errorf("rate_limits.%s: rate_per_second and burst must be positive", key)
		}
	}
	if cfg.Telemetry.SampleRatio < 0 || cfg.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry: sample_ratio must be within [0, 1]")
	}
	return nil
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
