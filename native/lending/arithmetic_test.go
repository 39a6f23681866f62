package lending

import (
	"testing"

	"lendcore/core/types"
)

func TestDepositTotalsStayInRange(t *testing.T) {
	h := newHarness(t)
	h.must(h.transfer("alice", eosToken, "300000000000000.0000 EOS", "deposit"))
	before := h.pool("eos")

	_, err := h.transfer("carol", eosToken, "300000000000000.0000 EOS", "deposit")
	expectErr(t, err, ErrQuantityOverflow)

	after := h.pool("eos")
	if after.AvailableDeposit != before.AvailableDeposit || after.CumulativeDeposit != before.CumulativeDeposit {
		t.Fatalf("rejected deposit changed totals: %s / %s", after.AvailableDeposit, after.CumulativeDeposit)
	}
	if after.ShareSupply != before.ShareSupply {
		t.Fatalf("rejected deposit changed share supply: %s", after.ShareSupply)
	}
	if after.AvailableDeposit.Amount <= 0 {
		t.Fatalf("available deposit wrapped negative: %s", after.AvailableDeposit)
	}
}

func TestCollateralTotalsStayInRange(t *testing.T) {
	h := newHarness(t)
	h.must(h.transfer("bob", usdToken, "300000000000000.0000 USDT", "collateral"))
	_, err := h.transfer("bob", usdToken, "300000000000000.0000 USDT", "collateral")
	expectErr(t, err, ErrQuantityOverflow)

	c, ok := h.engine.store.collateralOf("bob", "usdt")
	if !ok || c.Quantity.String() != "300000000000000.0000 PZUSDT" {
		t.Fatalf("unexpected collateral after rejected pledge %+v", c)
	}
}

func TestTransferAmountOutOfRange(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.OnTransfer("alice", eosToken.Contract, types.NewAsset(types.MaxAmount+1, eosSym), "deposit")
	expectErr(t, err, ErrQuantityOverflow)

	_, err = h.engine.Withdraw("bob", usdToken.Contract, types.NewAsset(-types.MaxAmount-1, usdtSym))
	expectErr(t, err, ErrQuantityOverflow)

	if p := h.pool("eos"); !p.AvailableDeposit.IsZero() {
		t.Fatalf("unexpected available %s", p.AvailableDeposit)
	}
}

func TestApplyTurnsArithmeticPanicIntoError(t *testing.T) {
	h := newHarness(t)
	h.seed()
	before := h.pool("eos").AvailableDeposit
	events := len(h.recorder.Events())

	_, err := h.engine.apply(func(t *tx) error {
		p := t.store.pools["eos"]
		p.AvailableDeposit = types.NewAsset(1, usdtSym)
		_ = p.AvailableDeposit.Add(types.NewAsset(1, eosSym))
		return nil
	})
	expectErr(t, err, ErrSymbolMismatch)

	if got := h.pool("eos").AvailableDeposit; got != before {
		t.Fatalf("failed transaction leaked into the store: %s", got)
	}
	if len(h.recorder.Events()) != events {
		t.Fatalf("failed transaction emitted events")
	}
}

func TestApplyRepanicsOnForeignPanic(t *testing.T) {
	h := newHarness(t)
	defer func() {
		if r := recover(); r != "boom" {
			t.Fatalf("expected the original panic, got %v", r)
		}
	}()
	_, _ = h.engine.apply(func(t *tx) error { panic("boom") })
	t.Fatalf("apply must not swallow unrelated panics")
}
