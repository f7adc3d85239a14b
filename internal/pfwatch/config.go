package pfwatch

import (
	"fmt"
	"strconv"
	"time"

	"github.com/mailops/pfwatch/internal/aggregate"
)

const (
	// DefaultRinseHours is the eviction interval when none is configured.
	DefaultRinseHours = 8

	minRinseHours = 1
	maxRinseHours = 12
)

// Config is the full runtime configuration, populated from defaults,
// config file, environment and flags in ascending precedence.
type Config struct {
	// LogFiles are the mail log paths to tail. A path may embed the
	// date token 2006-01-02 (or 20060102); it is re-resolved each cycle
	// so day rotation follows automatically.
	LogFiles []string

	// SnapshotFile is where the queue and sender tables are persisted
	// between runs. Empty disables persistence.
	SnapshotFile string

	// CursorFile stores per-log read offsets. Defaults to the snapshot
	// path with a .cursors suffix.
	CursorFile string

	Interval   time.Duration
	RinseHours int

	DomainMode bool
	SortField  string
	TopN       int

	MetricsListen string
	Plain         bool
	Once          bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		LogFiles:   []string{"/var/log/maillog"},
		Interval:   5 * time.Minute,
		RinseHours: DefaultRinseHours,
		SortField:  "nrcpt",
		TopN:       20,
	}
}

// Validate checks the configuration and sets derived defaults.
func (c *Config) Validate() error {
	if len(c.LogFiles) == 0 {
		return fmt.Errorf("at least one log file is required")
	}
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}
	if c.TopN <= 0 {
		return fmt.Errorf("top row count must be positive")
	}
	if c.RinseHours < minRinseHours {
		c.RinseHours = minRinseHours
	} else if c.RinseHours > maxRinseHours {
		c.RinseHours = maxRinseHours
	}
	if _, err := aggregate.ParseField(c.SortField); err != nil {
		return err
	}
	if c.CursorFile == "" && c.SnapshotFile != "" {
		c.CursorFile = c.SnapshotFile + ".cursors"
	}
	return nil
}

// configSetter helps apply configuration values while respecting flag
// precedence. It only applies values if the corresponding flag hasn't
// been explicitly set.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setStrings sets a string slice if non-empty and flag not changed.
func (s *configSetter) setStrings(flag string, value []string, dst *[]string) {
	if len(value) == 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag
// not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not
// changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if
// valid. Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
