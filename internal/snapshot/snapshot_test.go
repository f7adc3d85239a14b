package snapshot

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mailops/pfwatch/internal/aggregate"
	"github.com/mailops/pfwatch/internal/classify"
)

var testNow = time.Date(2026, time.March, 14, 12, 0, 0, 0, time.UTC)

func populatedAggregator(t *testing.T) *aggregate.Aggregator {
	t.Helper()
	a := aggregate.New(8, testNow)
	a.Apply(classify.Event{Kind: classify.Enqueue, QueueID: "4FA21B3C9D", Sender: "alice@example.com", Nrcpt: 3}, testNow)
	a.Apply(classify.Event{Kind: classify.Enqueue, QueueID: "7BC44D1EF0", Sender: "bob@example.net", Nrcpt: 1}, testNow)
	a.Apply(classify.Event{Kind: classify.Delivery, QueueID: "4FA21B3C9D", Status: "sent"}, testNow)
	a.Apply(classify.Event{Kind: classify.Delivery, QueueID: "7BC44D1EF0", Status: "deferred"}, testNow)
	return a
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	a := populatedAggregator(t)

	queue0, senders0 := a.Tables()
	var first bytes.Buffer
	if err := Encode(&first, queue0, senders0); err != nil {
		t.Fatalf("encode: %v", err)
	}

	queue, senders, err := Decode(bytes.NewReader(first.Bytes()))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	var second bytes.Buffer
	if err := Encode(&second, queue, senders); err != nil {
		t.Fatalf("re-encode: %v", err)
	}
	if first.String() != second.String() {
		t.Errorf("re-encode differs:\n--- first\n%s--- second\n%s", first.String(), second.String())
	}
}

func TestRoundTripNegativeDelta(t *testing.T) {
	// An entry enqueued in an earlier cycle and requeued after a delta
	// clear leaves DeltaNrcpt negative; the snapshot must carry it.
	a := aggregate.New(8, testNow)
	a.Apply(classify.Event{Kind: classify.Enqueue, QueueID: "4FA21B3C9D", Sender: "alice@example.com", Nrcpt: 5}, testNow)
	a.ClearDeltas()
	a.Apply(classify.Event{Kind: classify.Requeue, QueueID: "7BC44D1EF0", OldQueueID: "4FA21B3C9D"}, testNow)

	if got := a.Sender("alice@example.com").DeltaNrcpt; got != -5 {
		t.Fatalf("fixture DeltaNrcpt = %d, want -5", got)
	}

	queue, senders := a.Tables()
	var first bytes.Buffer
	if err := Encode(&first, queue, senders); err != nil {
		t.Fatalf("encode: %v", err)
	}

	q2, s2, err := Decode(bytes.NewReader(first.Bytes()))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := s2["alice@example.com"].DeltaNrcpt; got != -5 {
		t.Errorf("decoded DeltaNrcpt = %d, want -5", got)
	}

	var second bytes.Buffer
	if err := Encode(&second, q2, s2); err != nil {
		t.Fatalf("re-encode: %v", err)
	}
	if first.String() != second.String() {
		t.Errorf("re-encode differs:\n--- first\n%s--- second\n%s", first.String(), second.String())
	}
}

func TestDecodeContent(t *testing.T) {
	in := strings.Join([]string{
		"4FA21B3C9D alice@example.com 3 1 0",
		"END",
		"alice@example.com 3 1 0 0 0 3 1 0 0 0 Mar 14 12:00:00",
		"",
	}, "\n")

	queue, senders, err := Decode(strings.NewReader(in))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	e := queue["4FA21B3C9D"]
	if e == nil || e.Sender != "alice@example.com" || e.Nrcpt != 3 || e.Sent != 1 {
		t.Errorf("queue entry = %+v", e)
	}
	st := senders["alice@example.com"]
	if st == nil || st.Nrcpt != 3 || st.Sent != 1 || st.DeltaNrcpt != 3 {
		t.Errorf("sender = %+v", st)
	}
	want := aggregate.Stamp{Month: time.March, Day: 14, Hour: 12}
	if st.LastActivity != want {
		t.Errorf("stamp = %+v, want %+v", st.LastActivity, want)
	}
}

func TestDecodeEmptySnapshot(t *testing.T) {
	queue, senders, err := Decode(strings.NewReader("END\n"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(queue) != 0 || len(senders) != 0 {
		t.Error("empty snapshot should decode to empty tables")
	}
}

func TestDecodeRejects(t *testing.T) {
	cases := map[string]string{
		"queue field count":   "4FA21B3C9D alice@example.com 3 1\nEND\n",
		"lowercase queue id":  "4fa21b3c9d alice@example.com 3 1 0\nEND\n",
		"queue sender no at":  "4FA21B3C9D alice 3 1 0\nEND\n",
		"queue bad counter":   "4FA21B3C9D alice@example.com 3 one 0\nEND\n",
		"bare minus counter":  "4FA21B3C9D alice@example.com - 0 0\nEND\n",
		"double minus":        "4FA21B3C9D alice@example.com --3 0 0\nEND\n",
		"sender field count":  "END\nalice@example.com 3 1 0 0 0 3 1 0 0 0 Mar 14\n",
		"sender no at":        "END\nalice 3 1 0 0 0 3 1 0 0 0 Mar 14 12:00:00\n",
		"sender bad month":    "END\nalice@example.com 3 1 0 0 0 3 1 0 0 0 Mars 14 12:00:00\n",
		"sender bad clock":    "END\nalice@example.com 3 1 0 0 0 3 1 0 0 0 Mar 14 12:00\n",
		"missing terminator":  "4FA21B3C9D alice@example.com 3 1 0\n",
		"junk after one good": "4FA21B3C9D alice@example.com 3 1 0\ngarbage\nEND\n",
	}
	for name, in := range cases {
		if _, _, err := Decode(strings.NewReader(in)); err == nil {
			t.Errorf("%s: decode accepted malformed input", name)
		}
	}
}

func TestRestoreFailureResetsTables(t *testing.T) {
	a := populatedAggregator(t)
	if a.SenderLen() == 0 {
		t.Fatal("fixture should have senders")
	}

	bad := "4FA21B3C9D alice@example.com 3 1 0\nEND\nbroken line\n"
	if err := Restore(strings.NewReader(bad), a); err == nil {
		t.Fatal("restore accepted a malformed snapshot")
	}
	if a.SenderLen() != 0 || a.QueueLen() != 0 {
		t.Error("failed restore must leave both tables empty")
	}
}

func TestSaveLoad(t *testing.T) {
	a := populatedAggregator(t)
	path := filepath.Join(t.TempDir(), "state")

	if err := Save(path, a); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind after save")
	}

	b := aggregate.New(8, testNow)
	if err := Load(path, b); err != nil {
		t.Fatalf("load: %v", err)
	}
	if b.SenderLen() != a.SenderLen() || b.QueueLen() != a.QueueLen() {
		t.Errorf("loaded %d senders / %d queue, want %d / %d",
			b.SenderLen(), b.QueueLen(), a.SenderLen(), a.QueueLen())
	}
	st := b.Sender("alice@example.com")
	if st == nil || st.Nrcpt != 3 || st.Sent != 1 {
		t.Errorf("alice = %+v", st)
	}
}
