package outbox

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

var (
	meterOnce sync.Once
	shared    *outboxMeter
)

type outboxMeter struct {
	batches metric.Int64Counter
}

func meter() *outboxMeter {
	meterOnce.Do(func() {
		const name = "lendcore.outbox.batches"
		counter, err := otel.GetMeterProvider().Meter("lendcore/outbox").Int64Counter(name)
		if err != nil {
			counter, _ = noop.NewMeterProvider().Meter("lendcore/outbox").Int64Counter(name)
		}
		shared = &outboxMeter{batches: counter}
	})
	return shared
}

// record counts a batch transition: enqueued, duplicate, dispatched or failed.
func (m *outboxMeter) record(ctx context.Context, state, op string) {
	if m == nil || m.batches == nil {
		return
	}
	m.batches.Add(ctx, 1, metric.WithAttributes(
		attribute.String("state", state),
		attribute.String("operation", op),
	))
}
