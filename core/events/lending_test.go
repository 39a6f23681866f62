package events

import (
	"testing"

	"lendcore/core/types"
)

func TestLendingBorrowEvent(t *testing.T) {
	sym := types.NewSymbol("EOS", 4)
	evt := LendingBorrow{
		Account:  " alice ",
		Pool:     "pzeos",
		Quantity: types.NewAsset(499_500, sym),
		Fee:      types.NewAsset(500, sym),
		LoanType: 1,
	}.Event()
	if evt.Type != TypeLendingBorrow {
		t.Fatalf("unexpected type: %s", evt.Type)
	}
	if evt.Attr("account") != "alice" {
		t.Fatalf("unexpected account attr: %q", evt.Attr("account"))
	}
	if evt.Attr("quantity") != "49.9500 EOS" || evt.Attr("fee") != "0.0500 EOS" {
		t.Fatalf("unexpected attrs: %+v", evt.Attributes)
	}
	if evt.Attr("type") != "1" {
		t.Fatalf("unexpected type attr: %s", evt.Attr("type"))
	}
	if evt.Attr("missing") != "" {
		t.Fatalf("absent attributes must read empty")
	}
	var none *types.Event
	if none.Attr("account") != "" {
		t.Fatalf("nil event must read empty")
	}
}

func TestRenderFallsBackToBareRecord(t *testing.T) {
	if evt := Render(LendingUpBorrows{Pool: "pzeos"}); evt.Attributes["pool"] != "pzeos" {
		t.Fatalf("unexpected render: %+v", evt)
	}
	if Render(nil) != nil {
		t.Fatalf("expected nil render for nil event")
	}
}

func TestFanoutAndRecorder(t *testing.T) {
	var a, b Recorder
	Fanout{&a, nil, &b}.Emit(LendingUpBorrows{Pool: "x"})
	if len(a.Events()) != 1 || len(b.Events()) != 1 {
		t.Fatalf("expected both recorders to receive the event")
	}
}
