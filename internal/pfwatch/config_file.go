package pfwatch

import (
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// fileConfig mirrors Config but uses strings for durations to make TOML
// friendly.
type fileConfig struct {
	LogFiles      []string `toml:"log_files"`
	SnapshotFile  string   `toml:"snapshot_file"`
	CursorFile    string   `toml:"cursor_file"`
	Interval      string   `toml:"interval"`
	RinseHours    int      `toml:"rinse_hours"`
	DomainMode    *bool    `toml:"domain_mode"`
	SortField     string   `toml:"sort_field"`
	TopN          int      `toml:"top"`
	MetricsListen string   `toml:"metrics_listen"`
	Plain         *bool    `toml:"plain"`
	Once          *bool    `toml:"once"`
}

// LoadFileConfig reads and parses a TOML config file.
func LoadFileConfig(path string) (fileConfig, error) {
	var fc fileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns ~/.pfwatch/config.toml if the user home
// directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".pfwatch", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies file-sourced values to cfg, skipping any
// setting pinned by an explicitly set flag.
func ApplyFileConfig(cfg *Config, fc fileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setStrings("log-file", fc.LogFiles, &cfg.LogFiles)
	s.setString("snapshot", fc.SnapshotFile, &cfg.SnapshotFile)
	s.setString("cursor-file", fc.CursorFile, &cfg.CursorFile)
	s.setString("sort", fc.SortField, &cfg.SortField)
	s.setString("metrics-listen", fc.MetricsListen, &cfg.MetricsListen)

	if err := s.setDuration("interval", fc.Interval, &cfg.Interval); err != nil {
		return err
	}

	s.setInt("rinse-hours", fc.RinseHours, &cfg.RinseHours)
	s.setInt("top", fc.TopN, &cfg.TopN)

	s.setBool("domain", fc.DomainMode, &cfg.DomainMode)
	s.setBool("plain", fc.Plain, &cfg.Plain)
	s.setBool("once", fc.Once, &cfg.Once)

	return nil
}

// ApplyEnvConfig applies configuration from PFWATCH_* environment
// variables, again respecting explicitly set flags.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	if v := os.Getenv("PFWATCH_LOG_FILES"); v != "" {
		s.setStrings("log-file", splitList(v), &cfg.LogFiles)
	}
	s.setString("snapshot", os.Getenv("PFWATCH_SNAPSHOT_FILE"), &cfg.SnapshotFile)
	s.setString("cursor-file", os.Getenv("PFWATCH_CURSOR_FILE"), &cfg.CursorFile)
	s.setString("sort", os.Getenv("PFWATCH_SORT_FIELD"), &cfg.SortField)
	s.setString("metrics-listen", os.Getenv("PFWATCH_METRICS_LISTEN"), &cfg.MetricsListen)

	if err := s.setDuration("interval", os.Getenv("PFWATCH_INTERVAL"), &cfg.Interval); err != nil {
		return err
	}
	if err := s.setIntFromString("rinse-hours", os.Getenv("PFWATCH_RINSE_HOURS"), &cfg.RinseHours); err != nil {
		return err
	}
	if err := s.setIntFromString("top", os.Getenv("PFWATCH_TOP"), &cfg.TopN); err != nil {
		return err
	}

	s.setBoolFromString("domain", os.Getenv("PFWATCH_DOMAIN_MODE"), &cfg.DomainMode)
	s.setBoolFromString("plain", os.Getenv("PFWATCH_PLAIN"), &cfg.Plain)
	s.setBoolFromString("once", os.Getenv("PFWATCH_ONCE"), &cfg.Once)

	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ":")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
