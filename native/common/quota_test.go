package common

import (
	"errors"
	"math"
	"testing"
)

func TestCheckQuotaRequestLimit(t *testing.T) {
	q := Quota{MaxRequestsPerEpoch: 10}
	prev := QuotaNow{EpochID: 1}

	next, err := CheckQuota(q, 1, prev, 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.ReqCount != 10 {
		t.Fatalf("unexpected request count: %d", next.ReqCount)
	}

	denied, err := CheckQuota(q, 1, next, 1, 0)
	if !errors.Is(err, ErrQuotaRequestsExceeded) {
		t.Fatalf("expected ErrQuotaRequestsExceeded, got %v", err)
	}
	if denied != next {
		t.Fatalf("expected counters to remain unchanged on denial")
	}

	rollover, err := CheckQuota(q, 2, next, 1, 0)
	if err != nil {
		t.Fatalf("unexpected error after epoch rollover: %v", err)
	}
	if rollover.EpochID != 2 || rollover.ReqCount != 1 {
		t.Fatalf("unexpected state after rollover: %+v", rollover)
	}
}

func TestCheckQuotaVolume(t *testing.T) {
	q := Quota{MaxVolumePerEpoch: 1000}
	prev := QuotaNow{EpochID: 5}

	next, err := CheckQuota(q, 5, prev, 0, 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.Volume != 1000 {
		t.Fatalf("unexpected volume: %d", next.Volume)
	}
	if _, err := CheckQuota(q, 5, next, 0, 1); !errors.Is(err, ErrQuotaVolumeExceeded) {
		t.Fatalf("expected ErrQuotaVolumeExceeded, got %v", err)
	}
}

func TestCheckQuotaOverflow(t *testing.T) {
	prev := QuotaNow{EpochID: 1, Volume: math.MaxUint64}
	if _, err := CheckQuota(Quota{}, 1, prev, 0, 1); !errors.Is(err, ErrQuotaCounterOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
}

func TestQuotaTracker(t *testing.T) {
	tracker := NewQuotaTracker(Quota{MaxRequestsPerEpoch: 2, EpochSeconds: 60})
	id := [20]byte{1}
	if err := tracker.Charge(id, 120, 0); err != nil {
		t.Fatalf("first charge: %v", err)
	}
	if err := tracker.Charge(id, 130, 0); err != nil {
		t.Fatalf("second charge: %v", err)
	}
	if err := tracker.Charge(id, 140, 0); !errors.Is(err, ErrQuotaRequestsExceeded) {
		t.Fatalf("expected request cap, got %v", err)
	}
	if err := tracker.Charge(id, 180, 0); err != nil {
		t.Fatalf("next epoch should reset: %v", err)
	}
	if err := tracker.Charge([20]byte{2}, 180, 0); err != nil {
		t.Fatalf("other identity: %v", err)
	}
}

func TestGuard(t *testing.T) {
	if err := Guard(nil, "otc"); err != nil {
		t.Fatalf("nil view: %v", err)
	}
	if err := Guard(pausedView{"otc": true}, "otc"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected paused, got %v", err)
	}
	if err := Guard(pausedView{"otc": true}, ""); err != nil {
		t.Fatalf("empty module: %v", err)
	}
}

type pausedView map[string]bool

func (p pausedView) IsPaused(module string) bool { return p[module] }

func TestQuotaTrackerRefundRestoresVolume(t *testing.T) {
	tracker := NewQuotaTracker(Quota{MaxVolumePerEpoch: 500, EpochSeconds: 3_600})
	id := [20]byte{1}
	const now = 7_200

	if err := tracker.Charge(id, now, 400); err != nil {
		t.Fatalf("charge: %v", err)
	}
	if err := tracker.Charge(id, now, 200); !errors.Is(err, ErrQuotaVolumeExceeded) {
		t.Fatalf("expected volume cap, got %v", err)
	}
	tracker.Refund(id, now, 400)
	if err := tracker.Charge(id, now, 500); err != nil {
		t.Fatalf("charge after refund: %v", err)
	}
	// Refunds never push usage below zero.
	tracker.Refund(id, now, 10_000)
	if used := tracker.usage[id]; used.Volume != 0 || used.ReqCount != 2 {
		t.Fatalf("unexpected usage after refund: %+v", used)
	}
	// A refund aimed at a past epoch is ignored.
	tracker.Refund(id, now-3_600, 10)
	if used := tracker.usage[id]; used.Volume != 0 {
		t.Fatalf("stale refund changed usage: %+v", used)
	}
}
