package report

import (
	"strings"
	"testing"

	"github.com/mailops/pfwatch/internal/aggregate"
)

func TestRenderPlain(t *testing.T) {
	r := &Renderer{Plain: true}
	rows := []aggregate.Row{
		{Key: "alice@example.com", Stats: aggregate.SenderStats{Nrcpt: 10, Sent: 7, Bounced: 1}},
		{Key: "bob@example.net", Stats: aggregate.SenderStats{Nrcpt: 3}},
	}

	out := r.Render("pfwatch: top senders by nrcpt", aggregate.ByNrcpt, rows)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines:\n%s", len(lines), out)
	}
	if lines[0] != "pfwatch: top senders by nrcpt" {
		t.Errorf("title = %q", lines[0])
	}
	for _, want := range []string{"WHO", "NRCPT", "PEND", "SENT", "BOUNCE", "DEFER", "AXED", "dNRCPT", "dSENT"} {
		if !strings.Contains(lines[1], want) {
			t.Errorf("header missing %q: %q", want, lines[1])
		}
	}
	if !strings.HasPrefix(lines[2], "alice@example.com") {
		t.Errorf("row order wrong: %q", lines[2])
	}
	if !strings.Contains(lines[2], "10") || !strings.Contains(lines[2], "7") {
		t.Errorf("alice counters missing: %q", lines[2])
	}
	if strings.Contains(out, "\x1b[") {
		t.Error("plain output contains escape sequences")
	}
}

func TestRenderAlignsColumns(t *testing.T) {
	r := &Renderer{Plain: true}
	rows := []aggregate.Row{
		{Key: "a@x.com", Stats: aggregate.SenderStats{Nrcpt: 1}},
		{Key: "much-longer-address@example.org", Stats: aggregate.SenderStats{Nrcpt: 2}},
	}
	out := r.Render("t", aggregate.ByNrcpt, rows)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	// Every row, header included, has the same width.
	want := len(lines[1])
	for i := 2; i < len(lines); i++ {
		if len(lines[i]) != want {
			t.Errorf("line %d width %d, want %d: %q", i, len(lines[i]), want, lines[i])
		}
	}
}

func TestRenderTruncatesLongKeys(t *testing.T) {
	r := &Renderer{Plain: true, Width: 90}
	long := strings.Repeat("x", 60) + "@example.com"
	out := r.Render("t", aggregate.ByNrcpt, []aggregate.Row{
		{Key: long, Stats: aggregate.SenderStats{Nrcpt: 1}},
	})
	if strings.Contains(out, long) {
		t.Error("over-wide key rendered untruncated")
	}
	if !strings.Contains(out, "…") {
		t.Error("truncated key lacks ellipsis")
	}
}

func TestRenderEmpty(t *testing.T) {
	r := &Renderer{Plain: true}
	out := r.Render("t", aggregate.ByNrcpt, nil)
	if lines := strings.Split(strings.TrimRight(out, "\n"), "\n"); len(lines) != 2 {
		t.Errorf("empty table should be title plus header, got:\n%s", out)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdef", 4); got != "abc…" {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("abc", 4); got != "abc" {
		t.Errorf("truncate = %q", got)
	}
}
