package aggregate

import (
	"fmt"
	"time"
)

// Stamp is a sender's last-activity time as postfix logs it: month, day
// and time of day, with no year. The year is inferred when the stamp is
// resolved against a reference instant.
type Stamp struct {
	Month time.Month
	Day   int
	Hour  int
	Min   int
	Sec   int
}

// StampAt reduces a full instant to a Stamp.
func StampAt(t time.Time) Stamp {
	return Stamp{
		Month: t.Month(),
		Day:   t.Day(),
		Hour:  t.Hour(),
		Min:   t.Minute(),
		Sec:   t.Second(),
	}
}

// Resolve turns the stamp into a concrete instant using now's year,
// rolled back one year when the result would lie in the future. A
// December entry read in January resolves to the previous year.
func (s Stamp) Resolve(now time.Time) time.Time {
	t := time.Date(now.Year(), s.Month, s.Day, s.Hour, s.Min, s.Sec, 0, now.Location())
	if t.After(now) {
		t = t.AddDate(-1, 0, 0)
	}
	return t
}

// String renders the stamp as the three snapshot tokens: a capitalized
// three-letter month, the day, and hh:mm:ss.
func (s Stamp) String() string {
	return fmt.Sprintf("%s %d %02d:%02d:%02d", s.Month.String()[:3], s.Day, s.Hour, s.Min, s.Sec)
}

var monthByName = map[string]time.Month{
	"Jan": time.January, "Feb": time.February, "Mar": time.March,
	"Apr": time.April, "May": time.May, "Jun": time.June,
	"Jul": time.July, "Aug": time.August, "Sep": time.September,
	"Oct": time.October, "Nov": time.November, "Dec": time.December,
}

// ParseStamp builds a Stamp from the three snapshot date tokens. The
// month must be a capitalized three-letter abbreviation, the day decimal
// digits, and the clock hh:mm:ss.
func ParseStamp(month, day, clock string) (Stamp, error) {
	m, ok := monthByName[month]
	if !ok {
		return Stamp{}, fmt.Errorf("bad month %q", month)
	}
	d, err := parseDigits(day)
	if err != nil || d < 1 || d > 31 {
		return Stamp{}, fmt.Errorf("bad day %q", day)
	}
	if len(clock) != 8 || clock[2] != ':' || clock[5] != ':' {
		return Stamp{}, fmt.Errorf("bad time %q", clock)
	}
	hh, err1 := parseDigits(clock[0:2])
	mm, err2 := parseDigits(clock[3:5])
	ss, err3 := parseDigits(clock[6:8])
	if err1 != nil || err2 != nil || err3 != nil || hh > 23 || mm > 59 || ss > 59 {
		return Stamp{}, fmt.Errorf("bad time %q", clock)
	}
	return Stamp{Month: m, Day: int(d), Hour: int(hh), Min: int(mm), Sec: int(ss)}, nil
}

func parseDigits(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty number")
	}
	var n int64
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, fmt.Errorf("bad digit in %q", s)
		}
		n = n*10 + int64(s[i]-'0')
	}
	return n, nil
}
