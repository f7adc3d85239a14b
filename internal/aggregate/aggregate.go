// Package aggregate maintains the two linked tables behind the report:
// in-flight queue entries keyed by queue id and cumulative counters
// keyed by sender address. Events from the classifier drive all
// mutation; unknown queue ids and senders are expected when a log window
// starts mid-stream and are silently ignored.
package aggregate

import (
	"time"

	"github.com/mailops/pfwatch/internal/classify"
)

// QueueEntry is one in-flight message: who queued it, how many
// recipients it was accepted for, and how many have resolved so far.
type QueueEntry struct {
	Sender  string
	Nrcpt   int64
	Sent    int64
	Bounced int64
}

// SenderStats is the counter vector for one sender address: lifetime
// totals, since-last-clear deltas, and the last activity stamp.
// Counters are signed so the requeue correction can drive Nrcpt
// transiently negative instead of wrapping.
type SenderStats struct {
	Nrcpt    int64
	Sent     int64
	Bounced  int64
	Deferred int64
	Axed     int64

	DeltaNrcpt    int64
	DeltaSent     int64
	DeltaBounced  int64
	DeltaDeferred int64
	DeltaAxed     int64

	LastActivity Stamp
}

// Pending is the outstanding-recipient estimate: accepted recipients not
// yet sent, bounced or axed.
func (s *SenderStats) Pending() int64 {
	return s.Nrcpt - s.Sent - s.Bounced - s.Axed
}

// DeltaPending is Pending over the delta counters only.
func (s *SenderStats) DeltaPending() int64 {
	return s.DeltaNrcpt - s.DeltaSent - s.DeltaBounced - s.DeltaAxed
}

// Aggregator owns the queue and sender tables and the rinse clock. It is
// not safe for concurrent use; the ingest loop is the only mutator.
type Aggregator struct {
	queue      map[string]*QueueEntry
	senders    map[string]*SenderStats
	rinseEvery time.Duration
	lastRinse  time.Time
}

// New returns an empty aggregator. rinseHours is clamped to [1,12].
func New(rinseHours int, now time.Time) *Aggregator {
	if rinseHours < 1 {
		rinseHours = 1
	} else if rinseHours > 12 {
		rinseHours = 12
	}
	return &Aggregator{
		queue:      make(map[string]*QueueEntry),
		senders:    make(map[string]*SenderStats),
		rinseEvery: time.Duration(rinseHours) * time.Hour,
		lastRinse:  now,
	}
}

// SetRinseHours updates the eviction interval, clamped to [1,12].
func (a *Aggregator) SetRinseHours(hours int) {
	if hours < 1 {
		hours = 1
	} else if hours > 12 {
		hours = 12
	}
	a.rinseEvery = time.Duration(hours) * time.Hour
}

// Apply folds one classified event into the tables. now supplies the
// activity stamp for any sender the event touches.
func (a *Aggregator) Apply(ev classify.Event, now time.Time) {
	switch ev.Kind {
	case classify.Enqueue:
		a.applyEnqueue(ev, now)
	case classify.Delivery:
		a.applyDelivery(ev, now)
	case classify.Requeue:
		a.applyRequeue(ev, now)
	case classify.Removal:
		a.applyRemoval(ev, now)
	}
}

func (a *Aggregator) applyEnqueue(ev classify.Event, now time.Time) {
	if _, dup := a.queue[ev.QueueID]; dup {
		return
	}
	a.queue[ev.QueueID] = &QueueEntry{Sender: ev.Sender, Nrcpt: ev.Nrcpt}

	st, ok := a.senders[ev.Sender]
	if !ok {
		a.senders[ev.Sender] = &SenderStats{
			Nrcpt:        ev.Nrcpt,
			DeltaNrcpt:   ev.Nrcpt,
			LastActivity: StampAt(now),
		}
		return
	}
	st.Nrcpt += ev.Nrcpt
	st.DeltaNrcpt += ev.Nrcpt
	st.LastActivity = StampAt(now)
}

func (a *Aggregator) applyDelivery(ev classify.Event, now time.Time) {
	entry, ok := a.queue[ev.QueueID]
	if !ok {
		return
	}
	st, ok := a.senders[entry.Sender]
	if !ok {
		return
	}
	switch ev.Status {
	case "sent":
		st.Sent++
		st.DeltaSent++
		entry.Sent++
	case "bounced":
		st.Bounced++
		st.DeltaBounced++
		entry.Bounced++
	case "deferred":
		st.Deferred++
		st.DeltaDeferred++
	default:
		return
	}
	st.LastActivity = StampAt(now)
}

func (a *Aggregator) applyRequeue(ev classify.Event, now time.Time) {
	entry, ok := a.queue[ev.OldQueueID]
	if !ok {
		return
	}
	// Recipients still pending under the old id will be re-enqueued
	// under the new one; back them out so they are not counted twice.
	// The new id gets its own entry from the subsequent enqueue line.
	numPending := entry.Nrcpt - entry.Sent - entry.Bounced
	if st, ok := a.senders[entry.Sender]; ok {
		st.Nrcpt -= numPending
		st.DeltaNrcpt -= numPending
		st.LastActivity = StampAt(now)
	}
	delete(a.queue, ev.OldQueueID)
}

func (a *Aggregator) applyRemoval(ev classify.Event, now time.Time) {
	entry, ok := a.queue[ev.QueueID]
	if !ok {
		return
	}
	if ev.Purge {
		// Administrative purge: whatever had not resolved yet was axed.
		// Ordinary queue-manager removal is already accounted through
		// the per-recipient delivery lines.
		numPending := entry.Nrcpt - entry.Sent - entry.Bounced
		if st, ok := a.senders[entry.Sender]; ok {
			st.Axed += numPending
			st.DeltaAxed += numPending
			st.LastActivity = StampAt(now)
		}
	}
	delete(a.queue, ev.QueueID)
}

// ClearDeltas zeroes the since-last-clear counters of every sender.
// Called at the top of each report cycle.
func (a *Aggregator) ClearDeltas() {
	for _, st := range a.senders {
		st.DeltaNrcpt = 0
		st.DeltaSent = 0
		st.DeltaBounced = 0
		st.DeltaDeferred = 0
		st.DeltaAxed = 0
	}
}

// Tables exposes the live maps for the snapshot codec. Callers must not
// mutate through them.
func (a *Aggregator) Tables() (map[string]*QueueEntry, map[string]*SenderStats) {
	return a.queue, a.senders
}

// Install replaces both tables, normally with the result of a snapshot
// decode.
func (a *Aggregator) Install(queue map[string]*QueueEntry, senders map[string]*SenderStats) {
	a.queue = queue
	a.senders = senders
}

// Reset discards both tables. A failed snapshot load must never leave a
// partially populated state behind.
func (a *Aggregator) Reset() {
	a.queue = make(map[string]*QueueEntry)
	a.senders = make(map[string]*SenderStats)
}

// QueueLen reports the number of in-flight queue entries.
func (a *Aggregator) QueueLen() int { return len(a.queue) }

// SenderLen reports the number of tracked senders.
func (a *Aggregator) SenderLen() int { return len(a.senders) }

// Sender returns the stats row for one address, or nil.
func (a *Aggregator) Sender(addr string) *SenderStats { return a.senders[addr] }

// Entry returns the queue entry for one queue id, or nil.
func (a *Aggregator) Entry(id string) *QueueEntry { return a.queue[id] }
