package aggregate

import (
	"time"

	"github.com/mailops/pfwatch/internal/metrics"
)

// MaxInactive is the unconditional eviction horizon: a sender idle this
// long is dropped even with a nonzero pending count, bounding table
// growth when a queue entry gets stuck.
const MaxInactive = 24 * time.Hour

// Rinse evicts stale senders. Unless forced, it is a no-op until the
// configured rinse interval has elapsed since the previous run. A sender
// is dropped when it has nothing pending and has been idle one rinse
// interval, or when it has been idle past MaxInactive regardless of
// pending. Returns the number of senders removed.
func (a *Aggregator) Rinse(now time.Time, forced bool) int {
	if !forced && now.Sub(a.lastRinse) < a.rinseEvery {
		return 0
	}
	a.lastRinse = now

	removed := 0
	for addr, st := range a.senders {
		idle := now.Sub(st.LastActivity.Resolve(now))
		if (st.Pending() <= 0 && idle >= a.rinseEvery) || idle >= MaxInactive {
			delete(a.senders, addr)
			removed++
		}
	}
	metrics.RinseRuns.Inc()
	metrics.RinseEvictions.Add(float64(removed))
	return removed
}
