package lending

import (
	"testing"
	"time"
)

func TestPoolConfigValidate(t *testing.T) {
	if err := testPoolConfig().Validate(); err != nil {
		t.Fatalf("stock config must validate: %v", err)
	}
	cases := map[string]func(*PoolConfig){
		"negative base rate":   func(c *PoolConfig) { c.BaseRate = dec("-0.01") },
		"max rate too high":    func(c *PoolConfig) { c.MaxRate = dec("2001") },
		"zero best usage":      func(c *PoolConfig) { c.BestUsageRate = dec("0") },
		"full best usage":      func(c *PoolConfig) { c.BestUsageRate = dec("1") },
		"discount below base":  func(c *PoolConfig) { c.MaxDiscountRate = dec("0.01") },
		"floating fee too big": func(c *PoolConfig) { c.FloatingFeeRate = dec("0.2") },
		"liqdt too high":       func(c *PoolConfig) { c.LiqdtRate = dec("0.96") },
		"bonus too high":       func(c *PoolConfig) { c.LiqdtBonus = dec("0.6") },
		"ltv above liqdt":      func(c *PoolConfig) { c.MaxLTV = dec("0.85") },
		"power below one":      func(c *PoolConfig) { c.FloatingRatePower = dec("0.5") },
	}
	for name, mutate := range cases {
		cfg := testPoolConfig()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		} else {
			expectErr(t, err, ErrInvalidConfig)
		}
	}
}

func TestParamsValidate(t *testing.T) {
	if err := DefaultParams().Validate(); err != nil {
		t.Fatalf("default params must validate: %v", err)
	}
	if DefaultParams().FailOnStaleRefresh {
		t.Fatalf("stale refresh guard must be off by default")
	}
	cases := map[string]func(*Params){
		"missing safu":      func(p *Params) { p.SafuAccount = " " },
		"fee free day":      func(p *Params) { p.FeeFreeDay = 32 },
		"negative mini cap": func(p *Params) { p.MiniRepayValueCap = -1 },
		"defend pool size":  func(p *Params) { p.Defend.PoolSize = 0 },
		"defend percent":    func(p *Params) { p.Defend.Percent = 101 },
		"defend pause":      func(p *Params) { p.Defend.Pause = -time.Hour },
		"liquidation rounds": func(p *Params) {
			p.MaxLiquidationRounds = 0
		},
	}
	for name, mutate := range cases {
		p := DefaultParams()
		mutate(&p)
		if err := p.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		} else {
			expectErr(t, err, ErrInvalidParams)
		}
	}
}

func TestHasFeeToken(t *testing.T) {
	p := DefaultParams()
	if p.HasFeeToken() {
		t.Fatalf("fee token unset by default")
	}
	p.FeeToken = usdToken
	if !p.HasFeeToken() {
		t.Fatalf("expected fee token configured")
	}
}
