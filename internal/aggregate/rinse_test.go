package aggregate

import (
	"testing"
	"time"
)

func addIdleSender(a *Aggregator, addr string, pending int64, idle time.Duration, now time.Time) {
	a.senders[addr] = &SenderStats{
		Nrcpt:        pending,
		LastActivity: StampAt(now.Add(-idle)),
	}
}

func TestRinseEvictsIdleDrained(t *testing.T) {
	a := newTestAggregator() // 8h interval
	now := testNow.Add(9 * time.Hour)
	addIdleSender(a, "done@x.com", 0, 9*time.Hour, now)
	addIdleSender(a, "busy@x.com", 5, 2*time.Hour, now)

	if got := a.Rinse(now, false); got != 1 {
		t.Fatalf("Rinse removed %d, want 1", got)
	}
	if a.Sender("done@x.com") != nil {
		t.Error("drained idle sender should be evicted")
	}
	if a.Sender("busy@x.com") == nil {
		t.Error("active sender with pending mail must be kept")
	}
}

func TestRinseKeepsPendingUntilMaxInactive(t *testing.T) {
	a := newTestAggregator()
	now := testNow.Add(30 * time.Hour)
	addIdleSender(a, "stuck@x.com", 5, 25*time.Hour, now)
	addIdleSender(a, "slow@x.com", 5, 9*time.Hour, now)

	a.Rinse(now, true)

	if a.Sender("stuck@x.com") != nil {
		t.Error("sender idle past the inactivity horizon must go even with pending mail")
	}
	if a.Sender("slow@x.com") == nil {
		t.Error("pending sender inside the horizon must be kept")
	}
}

func TestRinseGatedByInterval(t *testing.T) {
	a := newTestAggregator()
	now := testNow.Add(1 * time.Hour)
	addIdleSender(a, "done@x.com", 0, 10*time.Hour, now)

	if got := a.Rinse(now, false); got != 0 {
		t.Fatalf("Rinse before the interval removed %d, want 0", got)
	}
	if a.Sender("done@x.com") == nil {
		t.Error("gated rinse must not touch the table")
	}

	if got := a.Rinse(now, true); got != 1 {
		t.Errorf("forced rinse removed %d, want 1", got)
	}
}

func TestRinseAdvancesItsClock(t *testing.T) {
	a := newTestAggregator()
	t1 := testNow.Add(9 * time.Hour)
	a.Rinse(t1, false)

	addIdleSender(a, "done@x.com", 0, 10*time.Hour, t1)
	if got := a.Rinse(t1.Add(time.Hour), false); got != 0 {
		t.Errorf("rinse inside the fresh window removed %d, want 0", got)
	}
}
