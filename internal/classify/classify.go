// Package classify turns raw postfix log lines into typed queue
// lifecycle events. Classification is pure: a line either yields exactly
// one event or none, and malformed lines are dropped without error.
package classify

import "strings"

// Kind identifies the lifecycle event a log line describes.
type Kind int

const (
	// NoEvent means the line matched no marker family or failed a
	// positional sub-match.
	NoEvent Kind = iota
	// Enqueue is the queue manager accepting a message.
	Enqueue
	// Delivery is a delivery agent reporting a per-recipient status.
	Delivery
	// Requeue is the pickup daemon re-reading a message under a new
	// queue id.
	Requeue
	// Removal is a queue entry leaving the queue, either by ordinary
	// queue-manager drain or by administrative purge.
	Removal
)

func (k Kind) String() string {
	switch k {
	case Enqueue:
		return "enqueue"
	case Delivery:
		return "delivery"
	case Requeue:
		return "requeue"
	case Removal:
		return "removal"
	default:
		return "none"
	}
}

// Event is one classified log line. Which fields are populated depends
// on Kind: Delivery carries QueueID and Status, Enqueue carries QueueID,
// Sender and Nrcpt, Requeue carries QueueID (the new id), Sender and
// OldQueueID, Removal carries QueueID and Purge.
type Event struct {
	Kind       Kind
	QueueID    string
	Sender     string
	Nrcpt      int64
	Status     string
	OldQueueID string
	Purge      bool
}

// The first four whitespace tokens of a syslog line are the timestamp
// (month, day, time) and hostname; markers are scanned from the fifth.
const preamble = 4

// capture is one positional field a marker family requires: the token at
// marker+offset must satisfy match, which returns the extracted value.
// With fallbackScan set, a failed positional match retries against every
// token after the marker before the family is rejected.
type capture struct {
	offset       int
	match        func(tok string) (string, bool)
	fallbackScan bool
}

// family is one recognizable line shape: a capture list evaluated
// uniformly, then a constructor over the captured values.
type family struct {
	captures []capture
	build    func(vals []string) Event
}

// families maps a postfix subsystem name to the line shapes it can emit,
// tried in order. Subsystems absent from the map never produce events.
var families = map[string][]family{
	"qmgr":      {qmgrRemoval, qmgrEnqueue},
	"pickup":    {pickupRequeue},
	"postsuper": {postsuperRemoval},
	"smtp":      {agentDelivery},
	"lmtp":      {agentDelivery},
	"local":     {agentDelivery},
	"virtual":   {agentDelivery},
	"pipe":      {agentDelivery},
	"error":     {agentDelivery},
}

var (
	// postfix/smtp[2342]: 4FA21B3C9D: to=<u@d>, relay=..., delay=...,
	// delays=..., dsn=..., status=sent (250 ok). The status token sits
	// seven tokens past the marker on current postfix; older layouts
	// are caught by the whole-line fallback.
	agentDelivery = family{
		captures: []capture{
			{offset: 1, match: matchQueueID},
			{offset: 7, match: matchStatus, fallbackScan: true},
		},
		build: func(v []string) Event {
			return Event{Kind: Delivery, QueueID: v[0], Status: v[1]}
		},
	}

	// postfix/qmgr[2104]: 4FA21B3C9D: from=<a@b>, size=5120, nrcpt=3
	// (queue active)
	qmgrEnqueue = family{
		captures: []capture{
			{offset: 1, match: matchQueueID},
			{offset: 2, match: matchFrom(true)},
			{offset: 4, match: matchNrcpt},
		},
		build: func(v []string) Event {
			return Event{Kind: Enqueue, QueueID: v[0], Sender: v[1], Nrcpt: parseCount(v[2])}
		},
	}

	// postfix/qmgr[2104]: 4FA21B3C9D: removed
	qmgrRemoval = family{
		captures: []capture{
			{offset: 1, match: matchQueueID},
			{offset: 2, match: matchLiteral("removed")},
		},
		build: func(v []string) Event {
			return Event{Kind: Removal, QueueID: v[0]}
		},
	}

	// postfix/pickup[1873]: 7BC44D1EF0: uid=0 from=<a@b> orig_id=4FA21B3C9D
	pickupRequeue = family{
		captures: []capture{
			{offset: 1, match: matchQueueID},
			{offset: 3, match: matchFrom(false)},
			{offset: 4, match: matchHexRef},
		},
		build: func(v []string) Event {
			return Event{Kind: Requeue, QueueID: v[0], Sender: v[1], OldQueueID: v[2]}
		},
	}

	// postfix/postsuper[9921]: 4FA21B3C9D: removed
	postsuperRemoval = family{
		captures: []capture{
			{offset: 1, match: matchQueueID},
			{offset: 2, match: matchLiteral("removed")},
		},
		build: func(v []string) Event {
			return Event{Kind: Removal, QueueID: v[0], Purge: true}
		},
	}
)

// Classify returns the event described by one raw log line, or an event
// with Kind NoEvent when the line matches nothing.
func Classify(line string) Event {
	tokens := strings.Fields(line)
	if len(tokens) <= preamble {
		return Event{}
	}
	for i := preamble; i < len(tokens); i++ {
		name, ok := markerSubsystem(tokens[i])
		if !ok {
			continue
		}
		shapes, ok := families[name]
		if !ok {
			return Event{}
		}
		for _, f := range shapes {
			if ev, ok := f.eval(tokens, i); ok {
				return ev
			}
		}
		return Event{}
	}
	return Event{}
}

// eval applies the family's captures at the marker position. Every
// capture must succeed for the family to match; a capture whose token is
// missing or mismatched rejects the whole family.
func (f family) eval(tokens []string, at int) (Event, bool) {
	vals := make([]string, len(f.captures))
	for i, c := range f.captures {
		idx := at + c.offset
		var v string
		var ok bool
		if idx < len(tokens) {
			v, ok = c.match(tokens[idx])
		}
		if !ok && c.fallbackScan {
			v, ok = scanFor(tokens, at+1, c.match)
		}
		if !ok {
			return Event{}, false
		}
		vals[i] = v
	}
	return f.build(vals), true
}

func scanFor(tokens []string, from int, match func(string) (string, bool)) (string, bool) {
	for i := from; i < len(tokens); i++ {
		if v, ok := match(tokens[i]); ok {
			return v, true
		}
	}
	return "", false
}

// markerSubsystem recognizes tokens of the shape postfix/<name>[<pid>]:
// and returns the subsystem name.
func markerSubsystem(tok string) (string, bool) {
	rest, ok := strings.CutPrefix(tok, "postfix/")
	if !ok {
		return "", false
	}
	open := strings.IndexByte(rest, '[')
	if open <= 0 || !strings.HasSuffix(rest, "]:") {
		return "", false
	}
	pid := rest[open+1 : len(rest)-2]
	if !isDigits(pid) {
		return "", false
	}
	return rest[:open], true
}

// matchQueueID accepts a hex queue-id token terminated by a colon, for
// example "4FA21B3C9D:". Queue ids are case sensitive and postfix emits
// them uppercase.
func matchQueueID(tok string) (string, bool) {
	id, ok := strings.CutSuffix(tok, ":")
	if !ok || !isUpperHex(id) {
		return "", false
	}
	return id, true
}

// matchStatus accepts "status=<word>" and returns the word.
func matchStatus(tok string) (string, bool) {
	word, ok := strings.CutPrefix(tok, "status=")
	if !ok || word == "" {
		return "", false
	}
	return word, true
}

// matchFrom accepts "from=<addr>" (with a trailing comma when comma is
// true) and returns the bare address. The address must contain an @;
// bounce envelopes (from=<>) carry no accountable sender.
func matchFrom(comma bool) func(string) (string, bool) {
	return func(tok string) (string, bool) {
		if comma {
			var ok bool
			tok, ok = strings.CutSuffix(tok, ",")
			if !ok {
				return "", false
			}
		}
		addr, ok := strings.CutPrefix(tok, "from=")
		if !ok {
			return "", false
		}
		addr = strings.TrimPrefix(addr, "<")
		addr = strings.TrimSuffix(addr, ">")
		if !strings.Contains(addr, "@") {
			return "", false
		}
		return addr, true
	}
}

// matchNrcpt accepts "nrcpt=<digits>".
func matchNrcpt(tok string) (string, bool) {
	n, ok := strings.CutPrefix(tok, "nrcpt=")
	if !ok || !isDigits(n) {
		return "", false
	}
	return n, true
}

func matchLiteral(want string) func(string) (string, bool) {
	return func(tok string) (string, bool) {
		if tok != want {
			return "", false
		}
		return tok, true
	}
}

// matchHexRef extracts the first run of at least six uppercase hex
// characters from a token such as "orig_id=4FA21B3C9D". Pickup lines
// reference the original queue id this way during a requeue.
func matchHexRef(tok string) (string, bool) {
	start := -1
	for i := 0; i <= len(tok); i++ {
		if i < len(tok) && isUpperHexByte(tok[i]) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 && i-start >= 6 {
			return tok[start:i], true
		}
		start = -1
	}
	return "", false
}

func parseCount(s string) int64 {
	var n int64
	for i := 0; i < len(s); i++ {
		n = n*10 + int64(s[i]-'0')
	}
	return n
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func isUpperHex(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isUpperHexByte(s[i]) {
			return false
		}
	}
	return true
}

func isUpperHexByte(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'A' && b <= 'F')
}
