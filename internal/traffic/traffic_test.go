package traffic

import (
	"testing"
	"time"
)

func newTestTracker() (*Tracker, *time.Time) {
	now := time.Date(2025, 9, 1, 19, 0, 0, 0, time.UTC)
	tr := NewTracker(10 * time.Minute)
	tr.now = func() time.Time { return now }
	return tr, &now
}

func TestRequestCount_Empty(t *testing.T) {
	tr := NewTracker(0)
	if n := tr.RequestCount(time.Minute); n != 0 {
		t.Errorf("RequestCount() = %d, want 0", n)
	}
	if tr.retention != DefaultRetention {
		t.Errorf("retention = %v, want %v", tr.retention, DefaultRetention)
	}
}

func TestRecordDenied_AndCounts(t *testing.T) {
	tr, _ := newTestTracker()
	tr.RecordDenied()
	tr.RecordDenied()
	tr.RecordSuccess()
	if n := tr.DenialCount(time.Minute); n != 2 {
		t.Errorf("DenialCount() = %d, want 2", n)
	}
	if n := tr.RequestCount(time.Minute); n != 3 {
		t.Errorf("RequestCount() = %d, want 3", n)
	}
}

// TestErrorRate_DeniedExcluded verifies denials do not count toward the error-rate denominator.
func TestErrorRate_DeniedExcluded(t *testing.T) {
	tr, _ := newTestTracker()
	tr.RecordSuccess()
	tr.RecordSuccess()
	tr.RecordError()
	tr.RecordDenied()
	errors, total := tr.ErrorRate(time.Minute)
	if errors != 1 || total != 3 {
		t.Errorf("ErrorRate() = (%d, %d), want (1, 3)", errors, total)
	}
}

func TestWindowAndRetention(t *testing.T) {
	tr, now := newTestTracker()
	tr.RecordError()
	*now = now.Add(2 * time.Minute)
	tr.RecordSuccess()

	if errors, total := tr.ErrorRate(time.Minute); errors != 0 || total != 1 {
		t.Errorf("ErrorRate(1m) = (%d, %d), want (0, 1)", errors, total)
	}
	if errors, total := tr.ErrorRate(5 * time.Minute); errors != 1 || total != 2 {
		t.Errorf("ErrorRate(5m) = (%d, %d), want (1, 2)", errors, total)
	}

	*now = now.Add(11 * time.Minute)
	tr.RecordSuccess() // triggers pruning past retention
	if len(tr.errorTimes) != 0 || len(tr.successTimes) != 1 {
		t.Errorf("after retention: errors=%d successes=%d, want 0 and 1", len(tr.errorTimes), len(tr.successTimes))
	}
}
