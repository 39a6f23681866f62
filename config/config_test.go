package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleConfig = `
[lending]
fee_account = "pzfee"
safu_account = "pzsafu"
fee_token = "4,USDT@tethertether"
fee_free_day = 0
max_liquidation_rounds = 16

[lending.defend]
percent = 30
pause_value = "50000"
pause = "12h"

[pauses]
lending = true

[[pools]]
name = "eos"
anchor = "4,EOS@eosio.token"
share = "4,PZEOS@pztoken"
max_supply = 10000000000000
open_features = ["deposit", "borrow"]

[pools.config]
base_rate = "0.01"
max_rate = "0.5"
base_discount_rate = "0.05"
max_discount_rate = "0.2"
best_usage_rate = "0.8"
floating_fee_rate = "0.001"
fixed_fee_rate = "0.002"
liqdt_rate = "0.8"
liqdt_bonus = "0.05"
max_ltv = "0.7"
floating_rate_power = "2"
is_collateral = true
can_stable_borrow = true
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lending.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadParsesLendingSection(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	params, err := cfg.Params()
	if err != nil {
		t.Fatalf("params: %v", err)
	}
	if params.FeeAccount != "pzfee" || params.SafuAccount != "pzsafu" || params.KeepAccount != "keep" {
		t.Fatalf("unexpected accounts %+v", params)
	}
	if params.FeeFreeDay != 0 {
		t.Fatalf("explicit zero fee_free_day must disable the waiver, got %d", params.FeeFreeDay)
	}
	if params.FeeToken.String() != "4,USDT@tethertether" || !params.HasFeeToken() {
		t.Fatalf("unexpected fee token %s", params.FeeToken)
	}
	if params.MaxLiquidationRounds != 16 || params.FailOnStaleRefresh {
		t.Fatalf("unexpected maintenance params %+v", params)
	}
	if params.Defend.Percent != 30 || params.Defend.PoolSize != 7 || params.Defend.Pause != 12*time.Hour {
		t.Fatalf("unexpected defend defaults %+v", params.Defend)
	}
	if params.Defend.PauseValue.String() != "50000" || params.Defend.MaxValue.String() != "2000" {
		t.Fatalf("unexpected defend values %+v", params.Defend)
	}
	if !cfg.Pauses.IsPaused("lending") || cfg.Pauses.IsPaused("swap") {
		t.Fatalf("unexpected pauses %+v", cfg.Pauses)
	}

	specs, err := cfg.PoolSpecs()
	if err != nil {
		t.Fatalf("pool specs: %v", err)
	}
	if len(specs) != 1 || specs[0].Anchor.String() != "4,EOS@eosio.token" || specs[0].Share.Contract != "pztoken" {
		t.Fatalf("unexpected specs %+v", specs)
	}
	if specs[0].Config.MaxLTV.String() != "0.7" || !specs[0].Config.IsCollateral {
		t.Fatalf("unexpected pool config %+v", specs[0].Config)
	}
	if perms := cfg.Features()["eos"]; len(perms) != 2 || perms[1].Feature != "borrow" || !perms[1].Open {
		t.Fatalf("unexpected features %+v", perms)
	}
}

func TestLoadRejectsInvalidFiles(t *testing.T) {
	cases := map[string]string{
		"unknown key":   "[lending]\nfee_acount = \"x\"\n",
		"bad fee token": "[lending]\nfee_token = \"USDT\"\n",
		"bad pause":     "[lending.defend]\npause = \"soon\"\n",
		"bad feature":   strings.Replace(sampleConfig, `"borrow"]`, `"stake"]`, 1),
		"bad pool":      strings.Replace(sampleConfig, `max_ltv = "0.7"`, `max_ltv = "0.9"`, 1),
		"dup pool":      sampleConfig + "\n[[pools]]\nname = \"eos\"\nanchor = \"4,X@x\"\nshare = \"4,PX@x\"\n",
	}
	for name, contents := range cases {
		if _, err := Load(writeConfig(t, contents)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "lending.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load default: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected default file written: %v", err)
	}
	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload default: %v", err)
	}
	first, _ := cfg.Params()
	second, err := reloaded.Params()
	if err != nil {
		t.Fatalf("params: %v", err)
	}
	if first.FeeFreeDay != 22 || second.FeeFreeDay != 22 || second.Defend.Pause != 36*time.Hour {
		t.Fatalf("unexpected default params %+v", second)
	}
}
