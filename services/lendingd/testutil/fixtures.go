// Package testutil holds shared fixtures for daemon tests.
package testutil

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"lendcore/core/types"
	"lendcore/native/lending"
)

var (
	EOS    = types.ExtendedSymbol{Symbol: types.NewSymbol("EOS", 4), Contract: "eosio.token"}
	USDT   = types.ExtendedSymbol{Symbol: types.NewSymbol("USDT", 4), Contract: "tethertether"}
	PZEOS  = types.ExtendedSymbol{Symbol: types.NewSymbol("PZEOS", 4), Contract: "pztoken"}
	PZUSDT = types.ExtendedSymbol{Symbol: types.NewSymbol("PZUSDT", 4), Contract: "pztoken"}
)

// PoolConfig is a permissive config accepted by PoolConfig.Validate.
func PoolConfig() lending.PoolConfig {
	d := decimal.RequireFromString
	return lending.PoolConfig{
		BaseRate:          d("0.01"),
		MaxRate:           d("0.5"),
		BaseDiscountRate:  d("0.05"),
		MaxDiscountRate:   d("0.2"),
		BestUsageRate:     d("0.8"),
		FloatingFeeRate:   d("0.001"),
		FixedFeeRate:      d("0.002"),
		LiqdtRate:         d("0.8"),
		LiqdtBonus:        d("0.05"),
		MaxLTV:            d("0.7"),
		FloatingRatePower: d("2"),
		IsCollateral:      true,
		CanStableBorrow:   true,
	}
}

// PoolSpecs returns an EOS and a USDT pool.
func PoolSpecs() []lending.PoolSpec {
	return []lending.PoolSpec{
		{Name: "eos", Anchor: EOS, Share: PZEOS, Config: PoolConfig(), MaxSupply: 1_000_000_000_0000},
		{Name: "usdt", Anchor: USDT, Share: PZUSDT, Config: PoolConfig(), MaxSupply: 1_000_000_000_0000},
	}
}

// OpenFeatures opens every user feature on the given pools.
func OpenFeatures(pools ...string) map[string][]lending.FeaturePerm {
	out := make(map[string][]lending.FeaturePerm, len(pools))
	for _, p := range pools {
		out[p] = []lending.FeaturePerm{
			{Feature: lending.FeatureDeposit, Open: true},
			{Feature: lending.FeatureWithdraw, Open: true},
			{Feature: lending.FeatureBorrow, Open: true},
			{Feature: lending.FeatureRepay, Open: true},
		}
	}
	return out
}

// Prices quotes both anchors at 1.
func Prices() map[types.ExtendedSymbol]decimal.Decimal {
	return map[types.ExtendedSymbol]decimal.Decimal{
		EOS:  decimal.NewFromInt(1),
		USDT: decimal.NewFromInt(1),
	}
}

// Clock is a settable clock safe for concurrent use.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts on the 5th of the month, away from the fee free day.
func NewClock() *Clock {
	return &Clock{now: time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
