package lending

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"lendcore/core/events"
	"lendcore/core/types"
)

var (
	eosSym   = types.NewSymbol("EOS", 4)
	usdtSym  = types.NewSymbol("USDT", 4)
	eosToken = types.ExtendedSymbol{Symbol: eosSym, Contract: "eosio.token"}
	usdToken = types.ExtendedSymbol{Symbol: usdtSym, Contract: "tethertether"}
	pzEOS    = types.ExtendedSymbol{Symbol: types.NewSymbol("PZEOS", 4), Contract: "pztoken"}
	pzUSDT   = types.ExtendedSymbol{Symbol: types.NewSymbol("PZUSDT", 4), Contract: "pztoken"}
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// near compares rates to the last truncated digit.
func near(d decimal.Decimal, want string) bool {
	return d.Sub(dec(want)).Abs().LessThanOrEqual(dec("0.00000001"))
}

func asset(t *testing.T, raw string) types.Asset {
	t.Helper()
	q, err := types.ParseAsset(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return q
}

type staticOracle map[types.ExtendedSymbol]decimal.Decimal

func (o staticOracle) GetPrice(token types.ExtendedSymbol) (decimal.Decimal, error) {
	p, ok := o[token]
	if !ok {
		return decimal.Zero, ErrUnknownPrice
	}
	return p, nil
}

type stubVotes map[string]uint64

func (v stubVotes) Votes(account string) uint64 { return v[account] }

type stubAccounts struct {
	contracts map[string]bool
}

func (a stubAccounts) IsAccount(name string) bool { return name != "" && name != "nobody" }
func (a stubAccounts) IsContract(name string) bool {
	return a.contracts[name]
}

type stubPauseView struct {
	modules map[string]bool
}

func (s stubPauseView) IsPaused(module string) bool {
	if s.modules == nil {
		return false
	}
	return s.modules[module]
}

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func testPoolConfig() PoolConfig {
	return PoolConfig{
		BaseRate:          dec("0.01"),
		MaxRate:           dec("0.5"),
		BaseDiscountRate:  dec("0.05"),
		MaxDiscountRate:   dec("0.2"),
		BestUsageRate:     dec("0.8"),
		FloatingFeeRate:   dec("0.001"),
		FixedFeeRate:      dec("0.002"),
		LiqdtRate:         dec("0.8"),
		LiqdtBonus:        dec("0.05"),
		MaxLTV:            dec("0.7"),
		FloatingRatePower: dec("2"),
		IsCollateral:      true,
		CanStableBorrow:   true,
	}
}

type harness struct {
	t        *testing.T
	engine   *Engine
	clock    *testClock
	oracle   staticOracle
	votes    stubVotes
	recorder *events.Recorder
}

// newHarness builds an engine with an EOS and a USDT pool, both priced at 1
// and open for every feature. The clock starts on the 5th of the month.
func newHarness(t *testing.T) *harness {
	t.Helper()
	params := DefaultParams()
	params.FeeToken = usdToken
	h := &harness{
		t:        t,
		engine:   NewEngine(params),
		clock:    &testClock{now: time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)},
		oracle:   staticOracle{eosToken: dec("1"), usdToken: dec("1")},
		votes:    stubVotes{},
		recorder: &events.Recorder{},
	}
	h.engine.SetClock(h.clock.Now)
	h.engine.SetOracle(h.oracle)
	h.engine.SetVotes(h.votes)
	h.engine.SetAccounts(stubAccounts{contracts: map[string]bool{"dex": true}})
	h.engine.SetEmitter(h.recorder)

	h.must(h.engine.AddPool(PoolSpec{Name: "eos", Share: pzEOS, Anchor: eosToken, Config: testPoolConfig(), MaxSupply: 1_000_000_000_0000}))
	h.must(h.engine.AddPool(PoolSpec{Name: "usdt", Share: pzUSDT, Anchor: usdToken, Config: testPoolConfig(), MaxSupply: 1_000_000_000_0000}))
	open := []FeaturePerm{
		{Feature: FeatureDeposit, Open: true},
		{Feature: FeatureWithdraw, Open: true},
		{Feature: FeatureBorrow, Open: true},
		{Feature: FeatureRepay, Open: true},
	}
	h.must(h.engine.SetFeatures("eos", open))
	h.must(h.engine.SetFeatures("usdt", open))
	h.must(h.engine.RefreshPrices())
	return h
}

func (h *harness) must(res *Result, err error) *Result {
	h.t.Helper()
	if err != nil {
		h.t.Fatalf("unexpected error: %v", err)
	}
	return res
}

func (h *harness) transfer(from string, token types.ExtendedSymbol, amount, memo string) (*Result, error) {
	h.t.Helper()
	return h.engine.OnTransfer(from, token.Contract, asset(h.t, amount), memo)
}

// seed gives alice an EOS deposit and bob USDT collateral.
func (h *harness) seed() {
	h.t.Helper()
	h.must(h.transfer("alice", eosToken, "1000.0000 EOS", "deposit"))
	h.must(h.transfer("bob", usdToken, "1000.0000 USDT", "collateral"))
}

func (h *harness) pool(name string) *Pool {
	h.t.Helper()
	p, err := h.engine.Pool(name)
	if err != nil {
		h.t.Fatalf("pool %s: %v", name, err)
	}
	return p
}

func (h *harness) loan(account, pool string) *Loan {
	h.t.Helper()
	l, ok := h.engine.store.loanOf(account, pool)
	if !ok {
		return nil
	}
	return l
}

// tx opens a transaction directly on the live store.
func (h *harness) tx() *tx {
	e := h.engine
	return &tx{
		store:    e.store,
		now:      e.clock().UTC(),
		params:   e.params,
		oracle:   e.oracle,
		votes:    e.votes,
		accounts: e.accounts,
		logger:   e.logger,
		result:   &Result{},
	}
}

func findEffect(res *Result, kind EffectKind, account string) (Effect, bool) {
	for _, eff := range res.Effects {
		if eff.Kind == kind && eff.Account == account {
			return eff, true
		}
	}
	return Effect{}, false
}

func expectErr(t *testing.T, err, want error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}
