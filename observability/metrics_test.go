package observability

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"otcpool/core/types"
)

type testEvent struct{ evt *types.Event }

func (e testEvent) EventType() string   { return e.evt.Type }
func (e testEvent) Event() *types.Event { return e.evt }

func TestPoolMetricsObserveEvents(t *testing.T) {
	m := Pool()
	if Pool() != m {
		t.Fatalf("registry must be a singleton")
	}
	m.Emit(testEvent{evt: &types.Event{Type: "otc.offer.executed", Attributes: map[string]string{"fee": "7", "mintA": "mint1test"}}})
	m.Emit(testEvent{evt: &types.Event{Type: "otc.offer.expired", Attributes: map[string]string{"strandedAmountA": "40", "mintA": "mint1test"}}})
	m.Emit(testEvent{evt: &types.Event{Type: "otc.offer.extended", Attributes: map[string]string{"fee": "oops"}}})

	if got := testutil.ToFloat64(m.fees.WithLabelValues("mint1test")); got != 7 {
		t.Fatalf("fees: got %v", got)
	}
	if got := testutil.ToFloat64(m.stranded.WithLabelValues("mint1test")); got != 40 {
		t.Fatalf("stranded: got %v", got)
	}
	if got := testutil.ToFloat64(m.events.WithLabelValues("otc.offer.extended")); got != 1 {
		t.Fatalf("events: got %v", got)
	}
}

func TestPoolMetricsRecordOperation(t *testing.T) {
	m := Pool()
	m.RecordOperation(context.Background(), "accept_offer", "", time.Millisecond)
	m.RecordOperation(context.Background(), "accept_offer", "Temporal", time.Millisecond)
	if got := testutil.ToFloat64(m.operations.WithLabelValues("accept_offer", "ok")); got != 1 {
		t.Fatalf("ok outcome: got %v", got)
	}
	if got := testutil.ToFloat64(m.operations.WithLabelValues("accept_offer", "Temporal")); got != 1 {
		t.Fatalf("error outcome: got %v", got)
	}
	var nilMetrics *PoolMetrics
	nilMetrics.RecordAnomaly("x")
	nilMetrics.Emit(nil)
}
