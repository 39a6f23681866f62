package lending

import (
	"testing"

	nativecommon "lendcore/native/common"
)

func TestPausedModuleRejectsMutations(t *testing.T) {
	h := newHarness(t)
	h.seed()
	before := h.pool("eos")
	emitted := len(h.recorder.Events())

	h.engine.SetPauses(stubPauseView{modules: map[string]bool{moduleName: true}})
	_, err := h.transfer("alice", eosToken, "1.0000 EOS", "deposit")
	expectErr(t, err, nativecommon.ErrModulePaused)
	_, err = h.engine.Borrow("bob", eosToken.Contract, asset(t, "1.0000 EOS"), LoanVariable)
	expectErr(t, err, nativecommon.ErrModulePaused)

	if p := h.pool("eos"); p.AvailableDeposit != before.AvailableDeposit || p.ShareSupply != before.ShareSupply {
		t.Fatalf("paused module mutated the pool")
	}
	if got := len(h.recorder.Events()); got != emitted {
		t.Fatalf("paused module emitted %d events", got-emitted)
	}
	// queries stay available
	if _, err := h.engine.Pool("eos"); err != nil {
		t.Fatalf("pool query while paused: %v", err)
	}

	h.engine.SetPauses(stubPauseView{modules: map[string]bool{"other": true}})
	h.must(h.transfer("alice", eosToken, "1.0000 EOS", "deposit"))
}
