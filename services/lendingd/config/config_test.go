package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"lendcore/core/types"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
listen: " :6000 "
tls:
  allow_insecure: true
accounts:
  contracts: [" dex ", " "]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ListenAddress != ":6000" {
		t.Fatalf("unexpected listen address: %q", cfg.ListenAddress)
	}
	if cfg.Storage.Backend != BackendLevelDB || cfg.Storage.Retention != 16 {
		t.Fatalf("unexpected storage defaults: %+v", cfg.Storage)
	}
	if cfg.Outbox.Driver != DriverSQLite || cfg.Outbox.DSN == "" {
		t.Fatalf("unexpected outbox defaults: %+v", cfg.Outbox)
	}
	if cfg.Idempotency.TTL != 24*time.Hour {
		t.Fatalf("unexpected idempotency ttl: %s", cfg.Idempotency.TTL)
	}
	if cfg.Auth.Audience != "lendingd" {
		t.Fatalf("unexpected audience: %q", cfg.Auth.Audience)
	}
	if len(cfg.Accounts.Contracts) != 1 || cfg.Accounts.Contracts[0] != "dex" {
		t.Fatalf("expected trimmed contracts, got %v", cfg.Accounts.Contracts)
	}
}

func TestLoadConfigFull(t *testing.T) {
	path := writeConfig(t, `
listen: ":8088"
env: DEV
tls:
  allow_insecure: true
auth:
  enabled: true
  hmac_secret: "s3cret"
  issuer: lendcore
rate_limits:
  lending:
    rate_per_second: 5
    burst: 10
    tokens:
      "POST /v1/transfers": 2
quota:
  max_requests_per_epoch: 100
  epoch_seconds: 60
storage:
  backend: memory
outbox:
  driver: postgres
  dsn: "postgres://lend@localhost/outbox"
prices:
  static:
    "4,EOS@eosio.token": "1.25"
  sources:
    - name: feed
      url: "https://prices.example/v1"
  timeout: 2s
votes:
  alice: 200000
scheduler:
  interest_interval: 1m
  health_interval: 30s
  health_threshold: 1.5
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Environment != "dev" {
		t.Fatalf("unexpected env %q", cfg.Environment)
	}
	if cfg.RateLimits["lending"].Tokens["POST /v1/transfers"] != 2 {
		t.Fatalf("route cost not decoded: %+v", cfg.RateLimits)
	}
	if cfg.Quota.MaxRequestsPerEpoch != 100 {
		t.Fatalf("quota not decoded: %+v", cfg.Quota)
	}
	if cfg.Scheduler.InterestInterval != time.Minute || cfg.Scheduler.HealthInterval != 30*time.Second {
		t.Fatalf("scheduler not decoded: %+v", cfg.Scheduler)
	}
	if cfg.Prices.Timeout != 2*time.Second {
		t.Fatalf("unexpected price timeout %s", cfg.Prices.Timeout)
	}
	prices, err := cfg.Prices.StaticPrices()
	if err != nil {
		t.Fatalf("static prices: %v", err)
	}
	eos := types.ExtendedSymbol{Symbol: types.NewSymbol("EOS", 4), Contract: "eosio.token"}
	if got := prices[eos].String(); got != "1.25" {
		t.Fatalf("unexpected EOS price %s", got)
	}
	if cfg.Votes["alice"] != 200000 {
		t.Fatalf("votes not decoded")
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"missing tls": `
listen: ":8088"
`,
		"half tls": `
tls:
  cert: server.crt
`,
		"auth without secret": `
tls:
  allow_insecure: true
auth:
  enabled: true
`,
		"bad backend": `
tls:
  allow_insecure: true
storage:
  backend: rocks
`,
		"postgres without dsn": `
tls:
  allow_insecure: true
outbox:
  driver: postgres
`,
		"bad static price": `
tls:
  allow_insecure: true
prices:
  static:
    "4,EOS@eosio.token": "abc"
`,
		"bad static token": `
tls:
  allow_insecure: true
prices:
  static:
    "EOS": "1"
`,
		"bad source url": `
tls:
  allow_insecure: true
prices:
  sources:
    - url: "ftp://prices"
`,
		"bad rate limit": `
tls:
  allow_insecure: true
rate_limits:
  lending:
    rate_per_second: 0
    burst: 1
`,
		"unknown key": `
tls:
  allow_insecure: true
swap: true
`,
	}
	for name, body := range cases {
		if _, err := Load(writeConfig(t, body)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadConfigRequiresPath(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}
