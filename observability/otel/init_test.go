package otel

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestParseHeaders(t *testing.T) {
	got := ParseHeaders(" authorization=Bearer abc , bad, =x,tenant=otc ")
	if len(got) != 2 || got["authorization"] != "Bearer abc" || got["tenant"] != "otc" {
		t.Fatalf("unexpected headers: %v", got)
	}
}

func TestInitDisabledIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "otcd"})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if _, err := Init(context.Background(), Config{Traces: true}); err == nil {
		t.Fatalf("expected service name error")
	}
	if Tracer() == nil {
		t.Fatalf("tracer must never be nil")
	}
}

func TestShutdownChainKeepsFirstError(t *testing.T) {
	var order []int
	chain := shutdownChain{
		func(context.Context) error { order = append(order, 1); return errors.New("a") },
		func(context.Context) error { order = append(order, 2); return errors.New("b") },
	}
	if err := chain.run(context.Background()); err == nil || err.Error() != "b" {
		t.Fatalf("expected the first error in shutdown order, got %v", err)
	}
	if len(order) != 2 || order[0] != 2 || order[1] != 1 {
		t.Fatalf("expected reverse order, got %v", order)
	}
}

func TestSamplerForRatio(t *testing.T) {
	if got := samplerFor(0).Description(); got != "AlwaysOnSampler" {
		t.Fatalf("ratio 0: %s", got)
	}
	if got := samplerFor(0.25).Description(); !strings.HasPrefix(got, "TraceIDRatioBased") {
		t.Fatalf("ratio 0.25: %s", got)
	}
}
