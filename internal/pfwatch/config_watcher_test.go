package pfwatch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfigWatcherDeliversReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("rinse_hours = 8\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	w := NewConfigWatcher(path, DefaultConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	// Give the watcher a moment to register before the write.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("rinse_hours = 4\nsort_field = \"d_sent\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-w.Updates():
		if cfg.RinseHours != 4 || cfg.SortField != "d_sent" {
			t.Errorf("reloaded cfg = %+v", cfg)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload delivered")
	}
}

func TestConfigWatcherReloadRevertsDeletedKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("sort_field = \"d_sent\"\nrinse_hours = 4\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	w := NewConfigWatcher(path, DefaultConfig(), nil)
	w.reload()
	cfg := <-w.Updates()
	if cfg.SortField != "d_sent" || cfg.RinseHours != 4 {
		t.Fatalf("first reload = %+v", cfg)
	}

	// Dropping a key from the file reverts it to the base value.
	if err := os.WriteFile(path, []byte("rinse_hours = 4\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	w.reload()
	cfg = <-w.Updates()
	if cfg.SortField != "nrcpt" {
		t.Errorf("deleted sort_field kept stale value: %q", cfg.SortField)
	}
	if cfg.RinseHours != 4 {
		t.Errorf("surviving key lost: %d", cfg.RinseHours)
	}
}

func TestConfigWatcherReloadKeepsEnvOverFile(t *testing.T) {
	t.Setenv("PFWATCH_SORT_FIELD", "bounced")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("sort_field = \"d_sent\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	base := DefaultConfig()
	if err := ApplyEnvConfig(&base, nil); err != nil {
		t.Fatal(err)
	}
	w := NewConfigWatcher(path, base, nil)
	w.reload()
	cfg := <-w.Updates()
	if cfg.SortField != "bounced" {
		t.Errorf("file overrode env on reload: %q", cfg.SortField)
	}
}

func TestConfigWatcherRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("rinse_hours = 8\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	w := NewConfigWatcher(path, DefaultConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("sort_field = \"bogus\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-w.Updates():
		t.Errorf("invalid config delivered: %+v", cfg)
	case <-time.After(500 * time.Millisecond):
	}
}
