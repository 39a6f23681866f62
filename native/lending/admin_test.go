package lending

import (
	"testing"
	"time"

	"lendcore/core/types"
)

func TestAddPoolValidation(t *testing.T) {
	h := newHarness(t)
	btc := types.ExtendedSymbol{Symbol: types.NewSymbol("BTC", 8), Contract: "btc.token"}
	pzBTC := types.ExtendedSymbol{Symbol: types.NewSymbol("PZBTC", 8), Contract: "pztoken"}

	cases := []struct {
		name string
		spec PoolSpec
		want error
	}{
		{"duplicate name", PoolSpec{Name: "eos", Share: pzBTC, Anchor: btc, Config: testPoolConfig()}, ErrPoolExists},
		{"duplicate anchor", PoolSpec{Name: "eos2", Share: types.ExtendedSymbol{Symbol: types.NewSymbol("PZEOS2", 4), Contract: "pztoken"}, Anchor: eosToken, Config: testPoolConfig()}, ErrAnchorExists},
		{"duplicate share", PoolSpec{Name: "btc", Share: pzEOS, Anchor: types.ExtendedSymbol{Symbol: types.NewSymbol("BTC", 4), Contract: "btc.token"}, Config: testPoolConfig()}, ErrShareExists},
		{"precision mismatch", PoolSpec{Name: "btc", Share: pzBTC, Anchor: types.ExtendedSymbol{Symbol: types.NewSymbol("BTC", 6), Contract: "btc.token"}, Config: testPoolConfig()}, ErrPrecisionMismatch},
		{"precision too large", PoolSpec{
			Name:   "wide",
			Share:  types.ExtendedSymbol{Symbol: types.NewSymbol("PZWIDE", 16), Contract: "pztoken"},
			Anchor: types.ExtendedSymbol{Symbol: types.NewSymbol("WIDE", 16), Contract: "wide.token"},
			Config: testPoolConfig(),
		}, ErrPrecisionTooLarge},
		{"bad config", PoolSpec{Name: "btc", Share: pzBTC, Anchor: btc}, ErrInvalidConfig},
		{"no name", PoolSpec{Share: pzBTC, Anchor: btc, Config: testPoolConfig()}, ErrInvalidParams},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.engine.AddPool(tc.spec)
			expectErr(t, err, tc.want)
		})
	}

	res := h.must(h.engine.AddPool(PoolSpec{Name: "btc", Share: pzBTC, Anchor: btc, Config: testPoolConfig(), MaxSupply: 21_000_000_00000000}))
	eff, ok := findEffect(res, EffectCreateDenom, "pztoken")
	if !ok || eff.Quantity.String() != "21000000.00000000 PZBTC" {
		t.Fatalf("expected create_denom effect, got %+v", res.Effects)
	}
	p := h.pool("btc")
	if p.Borrow.Symbol.Precision != 12 || p.SharePrice != 1 || !p.AvailableDeposit.IsZero() {
		t.Fatalf("unexpected new pool %+v", p)
	}
}

func TestSetRateOnlyLowers(t *testing.T) {
	h := newHarness(t)
	h.must(h.engine.SetRate([]string{"eos", "missing"}, dec("0.02"), dec("0.3")))
	cfg := h.pool("eos").Config
	if !cfg.BaseRate.Equal(dec("0.01")) {
		t.Fatalf("base rate must not rise, got %s", cfg.BaseRate)
	}
	if !cfg.MaxRate.Equal(dec("0.3")) {
		t.Fatalf("expected max rate lowered to 0.3, got %s", cfg.MaxRate)
	}
}

func TestSetPoolConfigRejectsInvalid(t *testing.T) {
	h := newHarness(t)
	cfg := testPoolConfig()
	cfg.MaxLTV = dec("0.9")
	_, err := h.engine.SetPoolConfig("eos", cfg)
	expectErr(t, err, ErrInvalidConfig)

	_, err = h.engine.SetPoolConfig("missing", testPoolConfig())
	expectErr(t, err, ErrPoolNotFound)
}

func TestClaimEarnSkimsIncome(t *testing.T) {
	h := newHarness(t)
	h.seed()
	h.must(h.engine.Borrow("bob", eosToken.Contract, asset(t, "500.0000 EOS"), LoanVariable))
	h.clock.Advance(30 * 24 * time.Hour)
	h.must(h.engine.SettleInterest())

	before := h.pool("eos").AvailableDeposit
	res := h.must(h.engine.ClaimEarn())
	eff, ok := findEffect(res, EffectTransferOut, "keep")
	if !ok || eff.Quantity.Amount <= 0 {
		t.Fatalf("expected income paid to keep, got %+v", res.Effects)
	}
	if got := h.pool("eos").AvailableDeposit; got != before.Sub(eff.Quantity) {
		t.Fatalf("expected available %s, got %s", before.Sub(eff.Quantity), got)
	}
	earns := h.engine.Earns()
	if len(earns) != 1 || earns[0].Pool != "eos" || earns[0].Received != eff.Quantity {
		t.Fatalf("unexpected earn records %+v", earns)
	}
	if len(res.Effects) != 1 {
		t.Fatalf("idle usdt pool must not pay income: %+v", res.Effects)
	}
}

func TestCollateralSwapMovesPositions(t *testing.T) {
	h := newHarness(t)
	h.seed()

	res := h.must(h.engine.CollateralSwap(SwapRequest{From: "usdt", To: "eos", Rate: dec("1"), Limit: 10}))
	if eff, ok := findEffect(res, EffectIssue, h.engine.Params().WalletAccount); !ok || eff.Quantity.String() != "1000.0000 PZEOS" {
		t.Fatalf("expected wallet issue of 1000 PZEOS, got %+v", res.Effects)
	}
	if eff, ok := findEffect(res, EffectTransferOut, pzUSDT.Contract); !ok || eff.Quantity.String() != "1000.0000 PZUSDT" {
		t.Fatalf("expected source shares returned, got %+v", res.Effects)
	}
	pos := h.engine.Position("bob")
	if len(pos.Collaterals) != 1 || pos.Collaterals[0].Pool != "eos" {
		t.Fatalf("unexpected collaterals %+v", pos.Collaterals)
	}
	if p := h.pool("usdt"); !p.ShareSupply.IsZero() {
		t.Fatalf("expected usdt shares destroyed, got %s", p.ShareSupply)
	}

	_, err := h.engine.CollateralSwap(SwapRequest{From: "usdt", To: "eos", Rate: dec("1"), Limit: 10})
	expectErr(t, err, ErrNothingToSwap)
	_, err = h.engine.CollateralSwap(SwapRequest{From: "eos", To: "eos", Rate: dec("1"), Limit: 10})
	expectErr(t, err, ErrInvalidParams)
}

func TestCollateralSwapRepaysDebtAccount(t *testing.T) {
	h := newHarness(t)
	h.seed()
	h.must(h.engine.Borrow("bob", usdToken.Contract, asset(t, "100.0000 USDT"), LoanVariable))

	h.must(h.engine.CollateralSwap(SwapRequest{From: "usdt", To: "eos", Rate: dec("1"), Limit: 1, DebtAccount: "bob"}))
	if l := h.loan("bob", "usdt"); l != nil {
		t.Fatalf("expected usdt loan cleared, got %s", l.Quantity)
	}
	if factor, err := h.engine.HealthFactor("bob"); err != nil || factor != -1 {
		t.Fatalf("expected no remaining debt, got %f (%v)", factor, err)
	}
}
