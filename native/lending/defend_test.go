package lending

import (
	"testing"
	"time"
)

func TestDefendLimitsBorrowWhilePaused(t *testing.T) {
	h := newHarness(t)
	h.seed()
	h.must(h.engine.SetDefend("usdt", DefendSettings{
		MaxValue:   dec("100"),
		PauseValue: dec("10"),
		Percent:    50,
		PoolSize:   7,
	}))

	// an inflow worth at least pause_value engages the breaker
	h.must(h.transfer("bob", usdToken, "100.0000 USDT", "collateral"))
	rec, err := h.engine.Defend("usdt")
	if err != nil {
		t.Fatalf("defend: %v", err)
	}
	if !rec.Paused(h.clock.now) {
		t.Fatalf("expected breaker engaged")
	}
	if want := h.clock.now.Add(36 * time.Hour); !rec.PauseTill.Equal(want) {
		t.Fatalf("expected pause until %s, got %s", want, rec.PauseTill)
	}
	if rec.Mid.String() != "1100.0000 PZUSDT" {
		t.Fatalf("unexpected median %s", rec.Mid)
	}

	// capacity = 50% · 1100/1100 · max(100, 1100) · 0.7 = 385
	_, err = h.engine.Borrow("bob", eosToken.Contract, asset(t, "400.0000 EOS"), LoanVariable)
	expectErr(t, err, ErrDefendCheck)
	h.must(h.engine.Borrow("bob", eosToken.Contract, asset(t, "300.0000 EOS"), LoanVariable))

	h.must(h.engine.ResumeDefend("usdt"))
	h.must(h.engine.Borrow("bob", eosToken.Contract, asset(t, "300.0000 EOS"), LoanVariable))
}

func TestDefendWindowRollsDaily(t *testing.T) {
	h := newHarness(t)
	h.must(h.transfer("alice", eosToken, "10.0000 EOS", "deposit"))
	for day := 0; day < 9; day++ {
		h.clock.Advance(24 * time.Hour)
		h.must(h.transfer("alice", eosToken, "1.0000 EOS", "deposit"))
	}
	rec, err := h.engine.Defend("eos")
	if err != nil {
		t.Fatalf("defend: %v", err)
	}
	if len(rec.Window) != int(rec.PoolSize) {
		t.Fatalf("expected %d slots, got %d", rec.PoolSize, len(rec.Window))
	}
	if last := rec.Window[len(rec.Window)-1]; last.String() != "19.0000 PZEOS" {
		t.Fatalf("unexpected newest slot %s", last)
	}

	// same-day updates replace today's slot
	h.must(h.transfer("alice", eosToken, "1.0000 EOS", "deposit"))
	rec, _ = h.engine.Defend("eos")
	if len(rec.Window) != int(rec.PoolSize) || rec.Window[len(rec.Window)-1].String() != "20.0000 PZEOS" {
		t.Fatalf("unexpected window %v", rec.Window)
	}
}

func TestDefendAdminErrors(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.ResumeDefend("eos")
	expectErr(t, err, ErrDefendNotFound)

	h.must(h.transfer("alice", eosToken, "1.0000 EOS", "deposit"))
	_, err = h.engine.SetDefend("eos", DefendSettings{Percent: 101, PoolSize: 7})
	expectErr(t, err, ErrInvalidParams)
}
