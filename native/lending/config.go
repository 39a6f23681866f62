package lending

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"lendcore/core/types"
)

// PoolConfig holds the admin-controlled parameters of a pool.
type PoolConfig struct {
	BaseRate             decimal.Decimal `toml:"base_rate" json:"base_rate"`
	MaxRate              decimal.Decimal `toml:"max_rate" json:"max_rate"`
	BaseDiscountRate     decimal.Decimal `toml:"base_discount_rate" json:"base_discount_rate"`
	MaxDiscountRate      decimal.Decimal `toml:"max_discount_rate" json:"max_discount_rate"`
	BestUsageRate        decimal.Decimal `toml:"best_usage_rate" json:"best_usage_rate"`
	FloatingFeeRate      decimal.Decimal `toml:"floating_fee_rate" json:"floating_fee_rate"`
	FixedFeeRate         decimal.Decimal `toml:"fixed_fee_rate" json:"fixed_fee_rate"`
	LiqdtRate            decimal.Decimal `toml:"liqdt_rate" json:"liqdt_rate"`
	LiqdtBonus           decimal.Decimal `toml:"liqdt_bonus" json:"liqdt_bonus"`
	MaxLTV               decimal.Decimal `toml:"max_ltv" json:"max_ltv"`
	FloatingRatePower    decimal.Decimal `toml:"floating_rate_power" json:"floating_rate_power"`
	IsCollateral         bool            `toml:"is_collateral" json:"is_collateral"`
	CanStableBorrow      bool            `toml:"can_stable_borrow" json:"can_stable_borrow"`
	BorrowLiqdtOrder     uint8           `toml:"borrow_liqdt_order" json:"borrow_liqdt_order"`
	CollateralLiqdtOrder uint8           `toml:"collateral_liqdt_order" json:"collateral_liqdt_order"`
}

var (
	decZero     = decimal.Zero
	decOne      = decimal.NewFromInt(1)
	decTenth    = decimal.RequireFromString("0.1")
	decHalf     = decimal.RequireFromString("0.5")
	decLiqdtMax = decimal.RequireFromString("0.95")
	decBaseMax  = decimal.NewFromInt(30)
	decMaxMax   = decimal.NewFromInt(2000)
	decPowerMax = decimal.NewFromInt(40)
)

func between(v, lo, hi decimal.Decimal) bool {
	return v.GreaterThanOrEqual(lo) && v.LessThanOrEqual(hi)
}

// Validate enforces the parameter envelope of a pool.
func (c PoolConfig) Validate() error {
	switch {
	case !between(c.BaseRate, decZero, decBaseMax):
		return fmt.Errorf("%w: base_rate %s", ErrInvalidConfig, c.BaseRate)
	case !between(c.MaxRate, decZero, decMaxMax):
		return fmt.Errorf("%w: max_rate %s", ErrInvalidConfig, c.MaxRate)
	case c.BaseDiscountRate.IsNegative() || c.BaseDiscountRate.GreaterThanOrEqual(decOne):
		return fmt.Errorf("%w: base_discount_rate %s", ErrInvalidConfig, c.BaseDiscountRate)
	case !c.BestUsageRate.IsPositive() || c.BestUsageRate.GreaterThanOrEqual(decOne):
		return fmt.Errorf("%w: best_usage_rate %s", ErrInvalidConfig, c.BestUsageRate)
	case c.MaxDiscountRate.GreaterThanOrEqual(decOne) ||
		c.BaseDiscountRate.Div(c.BestUsageRate).GreaterThan(c.MaxDiscountRate):
		return fmt.Errorf("%w: max_discount_rate %s", ErrInvalidConfig, c.MaxDiscountRate)
	case !between(c.FloatingFeeRate, decZero, decTenth):
		return fmt.Errorf("%w: floating_fee_rate %s", ErrInvalidConfig, c.FloatingFeeRate)
	case !between(c.FixedFeeRate, decZero, decTenth):
		return fmt.Errorf("%w: fixed_fee_rate %s", ErrInvalidConfig, c.FixedFeeRate)
	case !between(c.LiqdtRate, decTenth, decLiqdtMax):
		return fmt.Errorf("%w: liqdt_rate %s", ErrInvalidConfig, c.LiqdtRate)
	case !between(c.LiqdtBonus, decZero, decHalf):
		return fmt.Errorf("%w: liqdt_bonus %s", ErrInvalidConfig, c.LiqdtBonus)
	case !between(c.MaxLTV, decTenth, c.LiqdtRate):
		return fmt.Errorf("%w: max_ltv %s", ErrInvalidConfig, c.MaxLTV)
	case !between(c.FloatingRatePower, decOne, decPowerMax):
		return fmt.Errorf("%w: floating_rate_power %s", ErrInvalidConfig, c.FloatingRatePower)
	}
	return nil
}

// DefendDefaults seeds circuit breaker records created on first deposit.
type DefendDefaults struct {
	PoolSize   uint8           `toml:"pool_size"`
	Percent    uint8           `toml:"percent"`
	MaxValue   decimal.Decimal `toml:"max_value"`
	PauseValue decimal.Decimal `toml:"pause_value"`
	Pause      time.Duration   `toml:"-"`
}

// Params is the engine-wide configuration.
type Params struct {
	FeeAccount    string `toml:"fee_account"`
	SafuAccount   string `toml:"safu_account"`
	KeepAccount   string `toml:"keep_account"`
	WalletAccount string `toml:"wallet_account"`
	NullAccount   string `toml:"null_account"`

	// FeeToken enables fee-token borrows and mini repayments when set.
	FeeToken types.ExtendedSymbol `toml:"-"`

	FeeFreeDay          int     `toml:"fee_free_day"`
	VoteWaiverThreshold uint64  `toml:"vote_waiver_threshold"`
	MiniRepayValueCap   float64 `toml:"mini_repay_value_cap"`

	Defend DefendDefaults `toml:"defend"`

	// FailOnStaleRefresh makes RefreshHealth return ErrNothingChanged when a
	// pass neither moved a price nor touched a health record.
	FailOnStaleRefresh bool `toml:"fail_on_stale_refresh"`
	// MaxLiquidationRounds bounds liquidation passes per account per refresh.
	MaxLiquidationRounds int `toml:"max_liquidation_rounds"`
}

// DefaultParams returns the stock engine configuration.
func DefaultParams() Params {
	return Params{
		FeeAccount:          "fee",
		SafuAccount:         "safu",
		KeepAccount:         "keep",
		WalletAccount:       "vault",
		NullAccount:         "null",
		FeeFreeDay:          22,
		VoteWaiverThreshold: 100_000,
		MiniRepayValueCap:   0.1,
		Defend: DefendDefaults{
			PoolSize:   7,
			Percent:    50,
			MaxValue:   decimal.NewFromInt(2000),
			PauseValue: decimal.NewFromInt(100_000),
			Pause:      36 * time.Hour,
		},
		MaxLiquidationRounds: 64,
	}
}

// HasFeeToken reports whether a fee token is configured.
func (p Params) HasFeeToken() bool {
	return p.FeeToken.Contract != "" && p.FeeToken.Symbol.Valid()
}

// Validate checks the protocol accounts and numeric bounds.
func (p Params) Validate() error {
	for name, acct := range map[string]string{
		"fee_account":    p.FeeAccount,
		"safu_account":   p.SafuAccount,
		"keep_account":   p.KeepAccount,
		"wallet_account": p.WalletAccount,
		"null_account":   p.NullAccount,
	} {
		if strings.TrimSpace(acct) == "" {
			return fmt.Errorf("%w: %s required", ErrInvalidParams, name)
		}
	}
	if p.FeeFreeDay < 0 || p.FeeFreeDay > 31 {
		return fmt.Errorf("%w: fee_free_day %d", ErrInvalidParams, p.FeeFreeDay)
	}
	if p.MiniRepayValueCap < 0 {
		return fmt.Errorf("%w: mini_repay_value_cap must not be negative", ErrInvalidParams)
	}
	if p.Defend.PoolSize == 0 {
		return fmt.Errorf("%w: defend pool_size must be positive", ErrInvalidParams)
	}
	if p.Defend.Percent > 100 {
		return fmt.Errorf("%w: defend percent %d", ErrInvalidParams, p.Defend.Percent)
	}
	if p.Defend.Pause <= 0 {
		return fmt.Errorf("%w: defend pause must be positive", ErrInvalidParams)
	}
	if p.MaxLiquidationRounds <= 0 {
		return fmt.Errorf("%w: max_liquidation_rounds must be positive", ErrInvalidParams)
	}
	return nil
}
