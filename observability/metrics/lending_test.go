package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestLendingMetrics(t *testing.T) {
	m := Lending()
	if Lending() != m {
		t.Fatalf("registry must be a singleton")
	}
	m.ObserveOperation("borrow", nil, 10*time.Millisecond)
	m.ObserveOperation("borrow", errors.New("boom"), time.Millisecond)
	if got := testutil.ToFloat64(m.operations.WithLabelValues("borrow", "error")); got != 1 {
		t.Fatalf("expected one failed borrow, got %f", got)
	}

	m.ObserveRefresh(3, 1, 2, 1)
	if got := testutil.ToFloat64(m.liquidations.WithLabelValues("capped")); got != 1 {
		t.Fatalf("expected one capped liquidation, got %f", got)
	}

	m.SetPool("eos", 500, 250, 0.33)
	if got := testutil.ToFloat64(m.usage.WithLabelValues("eos")); got != 0.33 {
		t.Fatalf("unexpected usage gauge %f", got)
	}
	m.SetOutboxPending(4)
	if got := testutil.ToFloat64(m.outboxDepth); got != 4 {
		t.Fatalf("unexpected outbox gauge %f", got)
	}

	var nilMetrics *LendingMetrics
	nilMetrics.ObserveOperation("noop", nil, 0)
	nilMetrics.SetSubscribers(1)
}
