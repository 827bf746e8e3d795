// Package guard gates classifier invocations: a per-device daily rate
// limiter and a per-request item/character budget. Both are advisory checks
// the canonicalization service consults before reaching for the LLM.
package guard

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Clock abstracts wall time so tests can pin the calendar day.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the real-time clock.
func SystemClock() Clock { return systemClock{} }

// counterTTL keeps a day's counters around long enough to span any timezone
// skew, then lets the cache evict them.
const counterTTL = 48 * time.Hour

// DailyLimiter counts classifier requests per (device, UTC calendar day).
// State is in-process only: a horizontally scaled deployment needs a shared
// counter instead, which this type deliberately does not attempt.
type DailyLimiter struct {
	clock    Clock
	counters *gocache.Cache
}

// NewDailyLimiter creates a limiter on the given clock (nil = system clock).
func NewDailyLimiter(clock Clock) *DailyLimiter {
	if clock == nil {
		clock = systemClock{}
	}
	return &DailyLimiter{
		clock:    clock,
		counters: gocache.New(counterTTL, counterTTL),
	}
}

// Check registers one classifier request for the device and reports whether
// it is allowed today. The first check of a new day starts the count at 1;
// check maxPerDay+1 and later return ok=false with remaining=0. Counter
// increments are serialized by the underlying cache, so concurrent requests
// from one device cannot exceed maxPerDay.
func (l *DailyLimiter) Check(deviceID string, maxPerDay int) (ok bool, remaining int) {
	if maxPerDay <= 0 {
		return false, 0
	}

	key := deviceID + "|" + l.clock.Now().UTC().Format("2006-01-02")

	// Add is a no-op when the key exists; together with the atomic
	// increment this keeps day-rollover and concurrent first requests
	// correct without an external lock.
	_ = l.counters.Add(key, 0, counterTTL)
	count, err := l.counters.IncrementInt(key, 1)
	if err != nil {
		// Entry expired between Add and Increment. Re-seed and retry once.
		l.counters.SetDefault(key, 1)
		count = 1
	}

	if count > maxPerDay {
		return false, 0
	}
	return true, maxPerDay - count
}
