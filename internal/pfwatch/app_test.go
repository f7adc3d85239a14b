package pfwatch

import (
	"testing"
	"time"
)

func TestWithCarriageReturns(t *testing.T) {
	if got := withCarriageReturns("a\nb\n"); got != "a\r\nb\r\n" {
		t.Errorf("got %q", got)
	}
	if got := withCarriageReturns("no newline"); got != "no newline" {
		t.Errorf("got %q", got)
	}
}

func TestApplyConfigUpdatesTunables(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Plain = true
	cfg.Once = true
	app, err := NewApp(cfg)
	if err != nil {
		t.Fatal(err)
	}

	next := cfg
	next.Interval = time.Minute
	next.SortField = "d_sent"
	next.TopN = 5
	next.DomainMode = true
	app.applyConfig(next)

	if app.cfg.Interval != time.Minute || app.cfg.TopN != 5 || !app.cfg.DomainMode {
		t.Errorf("cfg = %+v", app.cfg)
	}
	if app.field.String() != "d_sent" {
		t.Errorf("field = %s", app.field)
	}
}

func TestApplyConfigKeepsFieldOnBadSort(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Plain = true
	app, err := NewApp(cfg)
	if err != nil {
		t.Fatal(err)
	}
	next := cfg
	next.SortField = "bogus"
	app.applyConfig(next)
	if app.field.String() != "nrcpt" {
		t.Errorf("field = %s, want nrcpt kept", app.field)
	}
}

func TestNewAppRejectsBadSortField(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SortField = "bogus"
	if _, err := NewApp(cfg); err == nil {
		t.Error("bad sort field accepted")
	}
}
