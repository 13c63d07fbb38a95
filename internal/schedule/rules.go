// internal/schedule/rules.go
package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	clockLayout = "15:04"
	dateLayout  = "2006-01-02"
)

// Settings is the persisted scheduler configuration.
type Settings struct {
	// TimeToStart is the HH:MM wall-clock time a delayed start begins.
	TimeToStart string `yaml:"time_to_start"`
	// HoursToRun bounds a run. Zero means no deadline.
	HoursToRun int        `yaml:"hours_to_run"`
	DayRules   []DayRule  `yaml:"day_rules,omitempty"`
	DateRules  []DateRule `yaml:"date_rules,omitempty"`
}

// DayRule restricts runs on a weekday to a time window.
type DayRule struct {
	Day       string `yaml:"day"`
	StartTime string `yaml:"start_time"`
	EndTime   string `yaml:"end_time"`
}

// DateRule restricts runs on one calendar date to a time window.
type DateRule struct {
	Date      string `yaml:"date"`
	StartTime string `yaml:"start_time"`
	EndTime   string `yaml:"end_time"`
}

// ParseClock parses an HH:MM time into minutes after midnight.
func ParseClock(s string) (int, error) {
	t, err := time.Parse(clockLayout, strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid time %q, want HH:MM", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// ValidClock reports whether s is a valid HH:MM time.
func ValidClock(s string) bool {
	_, err := ParseClock(s)
	return err == nil
}

var weekdays = map[string]time.Weekday{}

func init() {
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		weekdays[name] = d
		weekdays[name[:3]] = d
	}
}

// ParseWeekday accepts English weekday names and their three letter
// abbreviations, in any case.
func ParseWeekday(s string) (time.Weekday, error) {
	d, ok := weekdays[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("invalid weekday %q", s)
	}
	return d, nil
}

func validateWindow(start, end string) error {
	s, err := ParseClock(start)
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}
	e, err := ParseClock(end)
	if err != nil {
		return fmt.Errorf("end: %w", err)
	}
	if s >= e {
		return fmt.Errorf("start %s must precede end %s", start, end)
	}
	return nil
}

// Validate checks every field and rule. All problems are reported together.
func (s Settings) Validate() error {
	var errs []error
	if s.TimeToStart != "" && !ValidClock(s.TimeToStart) {
		errs = append(errs, fmt.Errorf("time_to_start: invalid time %q, want HH:MM", s.TimeToStart))
	}
	if s.HoursToRun < 0 {
		errs = append(errs, fmt.Errorf("hours_to_run must not be negative (got %d)", s.HoursToRun))
	}
	for i, r := range s.DayRules {
		if _, err := ParseWeekday(r.Day); err != nil {
			errs = append(errs, fmt.Errorf("day rule %d: %w", i+1, err))
		}
		if err := validateWindow(r.StartTime, r.EndTime); err != nil {
			errs = append(errs, fmt.Errorf("day rule %d: %w", i+1, err))
		}
	}
	for i, r := range s.DateRules {
		if _, err := time.Parse(dateLayout, strings.TrimSpace(r.Date)); err != nil {
			errs = append(errs, fmt.Errorf("date rule %d: invalid date %q, want YYYY-MM-DD", i+1, r.Date))
		}
		if err := validateWindow(r.StartTime, r.EndTime); err != nil {
			errs = append(errs, fmt.Errorf("date rule %d: %w", i+1, err))
		}
	}
	return errors.Join(errs...)
}

// inWindow reports whether minute lies in [start, end). Unparseable windows never match.
func inWindow(minute int, start, end string) bool {
	s, err := ParseClock(start)
	if err != nil {
		return false
	}
	e, err := ParseClock(end)
	if err != nil {
		return false
	}
	return s <= minute && minute < e
}

// ActiveAt reports whether runs are allowed at t. Date rules for t's date
// take precedence over day rules for its weekday. A day without rules is unrestricted.
func (s Settings) ActiveAt(t time.Time) bool {
	minute := t.Hour()*60 + t.Minute()

	date := t.Format(dateLayout)
	matched := false
	for _, r := range s.DateRules {
		if strings.TrimSpace(r.Date) != date {
			continue
		}
		matched = true
		if inWindow(minute, r.StartTime, r.EndTime) {
			return true
		}
	}
	if matched {
		return false
	}

	for _, r := range s.DayRules {
		d, err := ParseWeekday(r.Day)
		if err != nil || d != t.Weekday() {
			continue
		}
		matched = true
		if inWindow(minute, r.StartTime, r.EndTime) {
			return true
		}
	}
	return !matched
}

// NextStart returns the next occurrence of TimeToStart after now: today if
// still ahead, tomorrow otherwise.
func (s Settings) NextStart(now time.Time) (time.Time, error) {
	minute, err := ParseClock(s.TimeToStart)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := now.Date()
	start := time.Date(y, m, d, minute/60, minute%60, 0, 0, now.Location())
	if !start.After(now) {
		start = time.Date(y, m, d+1, minute/60, minute%60, 0, 0, now.Location())
	}
	return start, nil
}

// Deadline returns when a run begun at start must end. ok is false when
// HoursToRun is zero and the run is unbounded.
func (s Settings) Deadline(start time.Time) (deadline time.Time, ok bool) {
	if s.HoursToRun <= 0 {
		return time.Time{}, false
	}
	return start.Add(time.Duration(s.HoursToRun) * time.Hour), true
}

// AddDayRule appends r.
func (s *Settings) AddDayRule(r DayRule) { s.DayRules = append(s.DayRules, r) }

// AddDateRule appends r.
func (s *Settings) AddDateRule(r DateRule) { s.DateRules = append(s.DateRules, r) }

// RemoveDayRule deletes the i-th day rule. It reports false for an out of range index.
func (s *Settings) RemoveDayRule(i int) bool {
	if i < 0 || i >= len(s.DayRules) {
		return false
	}
	s.DayRules = append(s.DayRules[:i:i], s.DayRules[i+1:]...)
	return true
}

// RemoveDateRule deletes the i-th date rule. It reports false for an out of range index.
func (s *Settings) RemoveDateRule(i int) bool {
	if i < 0 || i >= len(s.DateRules) {
		return false
	}
	s.DateRules = append(s.DateRules[:i:i], s.DateRules[i+1:]...)
	return true
}

// Clone returns a deep copy.
func (s Settings) Clone() Settings {
	out := s
	out.DayRules = append([]DayRule(nil), s.DayRules...)
	out.DateRules = append([]DateRule(nil), s.DateRules...)
	return out
}
