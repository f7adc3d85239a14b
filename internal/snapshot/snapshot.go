// Package snapshot persists and restores the aggregator tables. The
// format is line oriented text in two sections: queue entries, an END
// terminator, then sender counters. Decoding is transactional; the
// first malformed line aborts the load and the caller's tables are
// reset so a partially loaded state is never observable.
package snapshot

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/mailops/pfwatch/internal/aggregate"
	"github.com/mailops/pfwatch/internal/metrics"
)

const endMarker = "END"

const (
	queueFields  = 5
	senderFields = 14
)

// Encode writes both tables. Keys are emitted in ascending order so
// decoding and re-encoding an unchanged table is byte identical.
func Encode(w io.Writer, queue map[string]*aggregate.QueueEntry, senders map[string]*aggregate.SenderStats) error {
	bw := bufio.NewWriter(w)

	for _, id := range sortedKeys(queue) {
		e := queue[id]
		fmt.Fprintf(bw, "%s %s %d %d %d\n", id, e.Sender, e.Nrcpt, e.Sent, e.Bounced)
	}
	fmt.Fprintln(bw, endMarker)

	for _, addr := range sortedKeys(senders) {
		s := senders[addr]
		fmt.Fprintf(bw, "%s %d %d %d %d %d %d %d %d %d %d %s\n",
			addr,
			s.Nrcpt, s.Sent, s.Bounced, s.Deferred, s.Axed,
			s.DeltaNrcpt, s.DeltaSent, s.DeltaBounced, s.DeltaDeferred, s.DeltaAxed,
			s.LastActivity)
	}
	return bw.Flush()
}

// Decode parses a snapshot stream into fresh tables. Any malformed line
// fails the whole decode; the error names the line.
func Decode(r io.Reader) (map[string]*aggregate.QueueEntry, map[string]*aggregate.SenderStats, error) {
	queue := make(map[string]*aggregate.QueueEntry)
	senders := make(map[string]*aggregate.SenderStats)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	inSenders := false
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()

		if !inSenders {
			if line == endMarker {
				inSenders = true
				continue
			}
			entryID, entry, err := decodeQueueLine(line)
			if err != nil {
				return nil, nil, decodeError(lineNo, line, err)
			}
			queue[entryID] = entry
			continue
		}

		addr, st, err := decodeSenderLine(line)
		if err != nil {
			return nil, nil, decodeError(lineNo, line, err)
		}
		senders[addr] = st
	}
	if err := sc.Err(); err != nil {
		return nil, nil, fmt.Errorf("read snapshot: %w", err)
	}
	if !inSenders {
		return nil, nil, fmt.Errorf("snapshot truncated: missing %s terminator", endMarker)
	}
	return queue, senders, nil
}

func decodeQueueLine(line string) (string, *aggregate.QueueEntry, error) {
	f := strings.Fields(line)
	if len(f) != queueFields {
		return "", nil, fmt.Errorf("want %d fields, got %d", queueFields, len(f))
	}
	if !isUpperHex(f[0]) {
		return "", nil, fmt.Errorf("bad queue id %q", f[0])
	}
	if !strings.Contains(f[1], "@") {
		return "", nil, fmt.Errorf("bad sender %q", f[1])
	}
	nums, err := counters(f[2:5])
	if err != nil {
		return "", nil, err
	}
	return f[0], &aggregate.QueueEntry{
		Sender:  f[1],
		Nrcpt:   nums[0],
		Sent:    nums[1],
		Bounced: nums[2],
	}, nil
}

func decodeSenderLine(line string) (string, *aggregate.SenderStats, error) {
	f := strings.Fields(line)
	if len(f) != senderFields {
		return "", nil, fmt.Errorf("want %d fields, got %d", senderFields, len(f))
	}
	if !strings.Contains(f[0], "@") {
		return "", nil, fmt.Errorf("bad sender %q", f[0])
	}
	nums, err := counters(f[1:11])
	if err != nil {
		return "", nil, err
	}
	stamp, err := aggregate.ParseStamp(f[11], f[12], f[13])
	if err != nil {
		return "", nil, err
	}
	return f[0], &aggregate.SenderStats{
		Nrcpt:         nums[0],
		Sent:          nums[1],
		Bounced:       nums[2],
		Deferred:      nums[3],
		Axed:          nums[4],
		DeltaNrcpt:    nums[5],
		DeltaSent:     nums[6],
		DeltaBounced:  nums[7],
		DeltaDeferred: nums[8],
		DeltaAxed:     nums[9],
		LastActivity:  stamp,
	}, nil
}

// counters parses decimal counter tokens. A leading minus is accepted:
// the requeue correction is unclamped, so delta counters can be negative
// at snapshot time.
func counters(fields []string) ([]int64, error) {
	out := make([]int64, len(fields))
	for i, f := range fields {
		if !isDigits(strings.TrimPrefix(f, "-")) {
			return nil, fmt.Errorf("bad counter %q", f)
		}
		n, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad counter %q: %w", f, err)
		}
		out[i] = n
	}
	return out, nil
}

func decodeError(lineNo int, line string, err error) error {
	return fmt.Errorf("snapshot line %d %q: %w", lineNo, line, err)
}

// Restore decodes r into the aggregator. On failure both tables are
// reset to empty before the error is returned.
func Restore(r io.Reader, a *aggregate.Aggregator) error {
	queue, senders, err := Decode(r)
	if err != nil {
		a.Reset()
		metrics.SnapshotFailures.Inc()
		return err
	}
	a.Install(queue, senders)
	metrics.SnapshotLoads.Inc()
	return nil
}

// Save encodes the aggregator's tables to path via a temp file and
// rename, so a crash mid-write never clobbers the previous snapshot.
func Save(path string, a *aggregate.Aggregator) error {
	queue, senders := a.Tables()

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	if err := Encode(f, queue, senders); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	metrics.SnapshotSaves.Inc()
	return nil
}

// Load restores the aggregator from the snapshot at path.
func Load(path string, a *aggregate.Aggregator) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return Restore(f, a)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
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
		b := s[i]
		if (b < '0' || b > '9') && (b < 'A' || b > 'F') {
			return false
		}
	}
	return true
}
