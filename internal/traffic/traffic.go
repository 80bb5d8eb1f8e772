package traffic

import (
	"sync"
	"time"
)

// DefaultRetention bounds how far back outcomes are kept.
const DefaultRetention = 30 * time.Minute

// Tracker keeps sliding windows of request outcomes. It backs the /health degraded
// check (ErrorRate) and the rate-limit gauges (RequestCount, DenialCount).
// The zero value is not usable; call NewTracker.
type Tracker struct {
	mu           sync.Mutex
	retention    time.Duration
	now          func() time.Time
	successTimes []time.Time
	errorTimes   []time.Time
	deniedTimes  []time.Time
}

// NewTracker returns a Tracker that forgets outcomes older than retention.
// Non-positive retention uses DefaultRetention.
func NewTracker(retention time.Duration) *Tracker {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Tracker{retention: retention, now: time.Now}
}

// RecordSuccess records a forecast served without error.
func (t *Tracker) RecordSuccess() {
	t.record(&t.successTimes)
}

// RecordError records a failed forecast (upstream error, malformed body, timeout).
func (t *Tracker) RecordError() {
	t.record(&t.errorTimes)
}

// RecordDenied records a rate-limit denial (429).
func (t *Tracker) RecordDenied() {
	t.record(&t.deniedTimes)
}

func (t *Tracker) record(slice *[]time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	*slice = append(*slice, now)
	t.pruneLocked(now)
}

// RequestCount returns success + error + denied outcomes within the window.
func (t *Tracker) RequestCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	return countSince(t.successTimes, cutoff) +
		countSince(t.errorTimes, cutoff) +
		countSince(t.deniedTimes, cutoff)
}

// DenialCount returns the number of denials within the window.
func (t *Tracker) DenialCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return countSince(t.deniedTimes, t.now().Add(-window))
}

// ErrorRate returns (errors, total) within the window. Denials are excluded from total.
func (t *Tracker) ErrorRate(window time.Duration) (errors, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	errors = countSince(t.errorTimes, cutoff)
	total = errors + countSince(t.successTimes, cutoff)
	return errors, total
}

// countSince counts timestamps at or after cutoff. Slices are in append (time) order.
func countSince(times []time.Time, cutoff time.Time) int {
	n := 0
	for i := len(times) - 1; i >= 0 && !times[i].Before(cutoff); i-- {
		n++
	}
	return n
}

func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-t.retention)
	t.successTimes = pruneBefore(t.successTimes, cutoff)
	t.errorTimes = pruneBefore(t.errorTimes, cutoff)
	t.deniedTimes = pruneBefore(t.deniedTimes, cutoff)
}

func pruneBefore(times []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for ; i < len(times) && times[i].Before(cutoff); i++ {
	}
	if i == 0 {
		return times
	}
	return append(times[:0], times[i:]...)
}
