package otel

import (
	"context"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestParseHeaders(t *testing.T) {
	got := ParseHeaders(" api-key = abc ,broken, =x,tenant=lend ")
	if len(got) != 2 || got["api-key"] != "abc" || got["tenant"] != "lend" {
		t.Fatalf("unexpected headers %v", got)
	}
}

func TestInitWithoutExporters(t *testing.T) {
	if _, err := Init(context.Background(), Config{}); err == nil {
		t.Fatalf("expected service name error")
	}
	shutdown, err := Init(context.Background(), Config{ServiceName: "lendingd"})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestSamplerRatio(t *testing.T) {
	full := Config{}.sampler().Description()
	want := sdktrace.ParentBased(sdktrace.AlwaysSample()).Description()
	if full != want {
		t.Fatalf("expected %q, got %q", want, full)
	}
	partial := Config{SampleRatio: 0.25}.sampler().Description()
	if partial == full {
		t.Fatalf("expected ratio sampler, got %q", partial)
	}
}
