package common

import (
	"errors"
	"math"
	"sync"
)

var (
	ErrQuotaRequestsExceeded = errors.New("quota requests exceeded")
	ErrQuotaVolumeExceeded   = errors.New("quota volume cap exceeded")
	ErrQuotaCounterOverflow  = errors.New("quota counter overflow")
)

// QuotaNow captures the current quota usage counters for an identity.
type QuotaNow struct {
	ReqCount uint32
	Volume   uint64
	EpochID  uint64
}

// Quota defines the per-identity limits enforced within one epoch. A zero
// limit disables that dimension.
type Quota struct {
	MaxRequestsPerEpoch uint32
	MaxVolumePerEpoch   uint64
	EpochSeconds        uint32
}

// Epoch maps a unix timestamp to the quota epoch it falls in.
func (q Quota) Epoch(unix int64) uint64 {
	if unix <= 0 {
		return 0
	}
	if q.EpochSeconds == 0 {
		return uint64(unix) / 60
	}
	return uint64(unix) / uint64(q.EpochSeconds)
}

// CheckQuota verifies whether the additional request and volume fit within the
// configured quota. The returned QuotaNow reflects the updated counters when the
// quota is not exceeded.
func CheckQuota(q Quota, nowEpoch uint64, prev QuotaNow, addReq uint32, addVolume uint64) (QuotaNow, error) {
	next := prev
	if prev.EpochID != nowEpoch {
		next = QuotaNow{EpochID: nowEpoch}
	}

	if addReq > 0 {
		if next.ReqCount > math.MaxUint32-addReq {
			return prev, ErrQuotaCounterOverflow
		}
		next.ReqCount += addReq
	}
	if q.MaxRequestsPerEpoch > 0 && next.ReqCount > q.MaxRequestsPerEpoch {
		return prev, ErrQuotaRequestsExceeded
	}

	if addVolume > 0 {
		if next.Volume > math.MaxUint64-addVolume {
			return prev, ErrQuotaCounterOverflow
		}
		next.Volume += addVolume
	}
	if q.MaxVolumePerEpoch > 0 && next.Volume > q.MaxVolumePerEpoch {
		return prev, ErrQuotaVolumeExceeded
	}

	return next, nil
}

// QuotaTracker keeps quota counters per identity. It is safe for concurrent use.
type QuotaTracker struct {
	quota Quota

	mu    sync.Mutex
	usage map[[20]byte]QuotaNow
}

// NewQuotaTracker creates a tracker enforcing q.
func NewQuotaTracker(q Quota) *QuotaTracker {
	return &QuotaTracker{quota: q, usage: make(map[[20]byte]QuotaNow)}
}

// Charge records one request carrying volume for id at unix time now. Counters
// are left untouched when the charge is refused.
func (t *QuotaTracker) Charge(id [20]byte, now int64, volume uint64) error {
	if t == nil {
		return nil
	}
	epoch := t.quota.Epoch(now)
	t.mu.Lock()
	defer t.mu.Unlock()
	next, err := CheckQuota(t.quota, epoch, t.usage[id], 1, volume)
	if err != nil {
		return err
	}
	t.usage[id] = next
	for other, used := range t.usage {
		if used.EpochID < epoch {
			delete(t.usage, other)
		}
	}
	return nil
}

// Refund returns volume previously charged for id in the epoch containing now.
// The request count is kept: a refused request still counts as an attempt.
// Charges from an earlier epoch are not refunded.
func (t *QuotaTracker) Refund(id [20]byte, now int64, volume uint64) {
	if t == nil || volume == 0 {
		return
	}
	epoch := t.quota.Epoch(now)
	t.mu.Lock()
	defer t.mu.Unlock()
	used, ok := t.usage[id]
	if !ok || used.EpochID != epoch {
		return
	}
	if volume > used.Volume {
		volume = used.Volume
	}
	used.Volume -= volume
	t.usage[id] = used
}
