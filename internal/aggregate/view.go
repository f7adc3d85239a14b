package aggregate

import (
	"fmt"
	"sort"
)

// Field selects the counter a report view sorts by.
type Field int

const (
	ByNrcpt Field = iota
	ByPending
	BySent
	ByBounced
	ByDeferred
	ByAxed
	ByDeltaNrcpt
	ByDeltaPending
	ByDeltaSent
	ByDeltaBounced
	ByDeltaDeferred
	ByDeltaAxed
)

var fieldNames = map[string]Field{
	"nrcpt":      ByNrcpt,
	"pending":    ByPending,
	"sent":       BySent,
	"bounced":    ByBounced,
	"deferred":   ByDeferred,
	"axed":       ByAxed,
	"d_nrcpt":    ByDeltaNrcpt,
	"d_pending":  ByDeltaPending,
	"d_sent":     ByDeltaSent,
	"d_bounced":  ByDeltaBounced,
	"d_deferred": ByDeltaDeferred,
	"d_axed":     ByDeltaAxed,
}

// ParseField maps a field name (as accepted on the command line) to a
// Field.
func ParseField(name string) (Field, error) {
	f, ok := fieldNames[name]
	if !ok {
		return 0, fmt.Errorf("unknown sort field %q", name)
	}
	return f, nil
}

func (f Field) String() string {
	for name, ff := range fieldNames {
		if ff == f {
			return name
		}
	}
	return "nrcpt"
}

// Value extracts the sort key from one stats row.
func (f Field) Value(s *SenderStats) int64 {
	switch f {
	case ByPending:
		return s.Pending()
	case BySent:
		return s.Sent
	case ByBounced:
		return s.Bounced
	case ByDeferred:
		return s.Deferred
	case ByAxed:
		return s.Axed
	case ByDeltaNrcpt:
		return s.DeltaNrcpt
	case ByDeltaPending:
		return s.DeltaPending()
	case ByDeltaSent:
		return s.DeltaSent
	case ByDeltaBounced:
		return s.DeltaBounced
	case ByDeltaDeferred:
		return s.DeltaDeferred
	case ByDeltaAxed:
		return s.DeltaAxed
	default:
		return s.Nrcpt
	}
}

// Row is one line of a report view: the sender address or domain plus a
// copy of its counters.
type Row struct {
	Key   string
	Stats SenderStats
}

// TopSenders returns up to n sender rows sorted descending by field,
// ties broken ascending by address.
func (a *Aggregator) TopSenders(field Field, n int) []Row {
	return top(a.senders, field, n)
}

// TopDomains is TopSenders over the rebuilt domain roll-up.
func (a *Aggregator) TopDomains(field Field, n int) []Row {
	return top(a.Domains(), field, n)
}

func top(m map[string]*SenderStats, field Field, n int) []Row {
	rows := make([]Row, 0, len(m))
	for key, st := range m {
		rows = append(rows, Row{Key: key, Stats: *st})
	}
	sort.Slice(rows, func(i, j int) bool {
		vi, vj := field.Value(&rows[i].Stats), field.Value(&rows[j].Stats)
		if vi != vj {
			return vi > vj
		}
		return rows[i].Key < rows[j].Key
	})
	if n > 0 && len(rows) > n {
		rows = rows[:n]
	}
	return rows
}
