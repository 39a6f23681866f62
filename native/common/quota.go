package common

import (
	"errors"
	"math"
	"sync"
	"time"
)

var (
	ErrQuotaRequestsExceeded = errors.New("quota requests exceeded")
	ErrQuotaValueCapExceeded = errors.New("quota value cap exceeded")
	ErrQuotaCounterOverflow  = errors.New("quota counter overflow")
)

// QuotaNow captures the current quota usage counters for an account.
type QuotaNow struct {
	ReqCount  uint32
	ValueUsed uint64
	EpochID   uint64
}

// Quota defines the limits enforced for a module interaction per account.
// Value is measured in whole units of the price oracle's quote currency.
type Quota struct {
	MaxRequestsPerEpoch uint32 `yaml:"max_requests_per_epoch"`
	MaxValuePerEpoch    uint64 `yaml:"max_value_per_epoch"`
	EpochSeconds        uint32 `yaml:"epoch_seconds"`
}

// Epoch returns the epoch id containing now. A zero EpochSeconds counts per
// minute.
func (q Quota) Epoch(now time.Time) uint64 {
	secs := int64(q.EpochSeconds)
	if secs <= 0 {
		secs = 60
	}
	unix := now.Unix()
	if unix < 0 {
		return 0
	}
	return uint64(unix / secs)
}

// CheckQuota verifies whether the additional request and value fit within the
// configured quota. The returned QuotaNow reflects the updated counters when the
// quota is not exceeded.
func CheckQuota(q Quota, nowEpoch uint64, prev QuotaNow, addReq uint32, addValue uint64) (QuotaNow, error) {
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

	if addValue > 0 {
		if next.ValueUsed > math.MaxUint64-addValue {
			return prev, ErrQuotaCounterOverflow
		}
		next.ValueUsed += addValue
	}
	if q.MaxValuePerEpoch > 0 && next.ValueUsed > q.MaxValuePerEpoch {
		return prev, ErrQuotaValueCapExceeded
	}

	return next, nil
}

// QuotaTracker keeps per-account counters for one quota.
type QuotaTracker struct {
	mu       sync.Mutex
	quota    Quota
	counters map[string]QuotaNow
}

func NewQuotaTracker(q Quota) *QuotaTracker {
	return &QuotaTracker{quota: q, counters: make(map[string]QuotaNow)}
}

// Charge records one request of the given value for account. Counters are
// left untouched when the quota would be exceeded.
func (t *QuotaTracker) Charge(account string, now time.Time, value uint64) error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	epoch := t.quota.Epoch(now)
	next, err := CheckQuota(t.quota, epoch, t.counters[account], 1, value)
	if err != nil {
		return err
	}
	t.counters[account] = next
	t.prune(epoch)
	return nil
}

// Usage returns the counters recorded for account.
func (t *QuotaTracker) Usage(account string) QuotaNow {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counters[account]
}

// prune drops counters from earlier epochs.
func (t *QuotaTracker) prune(epoch uint64) {
	for account, c := range t.counters {
		if c.EpochID < epoch {
			delete(t.counters, account)
		}
	}
}
