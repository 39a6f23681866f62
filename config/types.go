package config

import "lendcore/native/lending"

// Config is the protocol configuration file.
type Config struct {
	Lending Lending     `toml:"lending"`
	Pauses  Pauses      `toml:"pauses"`
	Pools   []PoolEntry `toml:"pools"`
}

// Lending holds the engine-wide parameters. Pointer fields distinguish an
// explicit zero from an omitted key.
type Lending struct {
	FeeAccount    string `toml:"fee_account"`
	SafuAccount   string `toml:"safu_account"`
	KeepAccount   string `toml:"keep_account"`
	WalletAccount string `toml:"wallet_account"`
	NullAccount   string `toml:"null_account"`

	// FeeToken uses the "<precision>,<CODE>@<contract>" form.
	FeeToken string `toml:"fee_token"`

	FeeFreeDay          *int     `toml:"fee_free_day"`
	VoteWaiverThreshold *uint64  `toml:"vote_waiver_threshold"`
	MiniRepayValueCap   *float64 `toml:"mini_repay_value_cap"`

	FailOnStaleRefresh   bool `toml:"fail_on_stale_refresh"`
	MaxLiquidationRounds int  `toml:"max_liquidation_rounds"`

	Defend Defend `toml:"defend"`
}

// Defend seeds circuit breaker records. Values are decimal strings.
type Defend struct {
	PoolSize   uint8  `toml:"pool_size"`
	Percent    *uint8 `toml:"percent"`
	MaxValue   string `toml:"max_value"`
	PauseValue string `toml:"pause_value"`
	Pause      string `toml:"pause"`
}

// Pauses switches modules off at startup.
type Pauses struct {
	Lending bool `toml:"lending"`
}

// IsPaused implements the module pause view.
func (p Pauses) IsPaused(module string) bool {
	switch module {
	case "lending":
		return p.Lending
	default:
		return false
	}
}

// PoolEntry bootstraps one pool. Anchor and Share use the extended symbol
// form, e.g. "4,EOS@eosio.token".
type PoolEntry struct {
	Name      string             `toml:"name"`
	Anchor    string             `toml:"anchor"`
	Share     string             `toml:"share"`
	MaxSupply int64              `toml:"max_supply"`
	Features  []string           `toml:"open_features"`
	Config    lending.PoolConfig `toml:"config"`
}
