package slotgrid

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Interval is a half-open [Start, End) range within one day.
type Interval struct {
	Start Clock
	End   Clock
}

func (iv Interval) String() string {
	return iv.Start.String() + "-" + iv.End.String()
}

// Spoken renders the interval for prompts, e.g. "10:00 AM to 10:30 AM".
func (iv Interval) Spoken() string {
	return iv.Start.Spoken() + " to " + iv.End.Spoken()
}

// Overlaps reports whether the two ranges share any minute.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start < other.End && other.Start < iv.End
}

// Contains reports whether c falls inside the range.
func (iv Interval) Contains(c Clock) bool {
	return c >= iv.Start && c < iv.End
}

// ParseInterval parses the stored "HH:MM-HH:MM" form.
func ParseInterval(raw string) (Interval, error) {
	parts := strings.Split(strings.TrimSpace(raw), "-")
	if len(parts) != 2 {
		return Interval{}, fmt.Errorf("slotgrid: invalid interval %q", raw)
	}
	start, err := ParseClock(parts[0])
	if err != nil {
		return Interval{}, err
	}
	end, err := ParseClock(parts[1])
	if err != nil {
		return Interval{}, err
	}
	if start >= end {
		return Interval{}, fmt.Errorf("slotgrid: interval %q ends before it starts", raw)
	}
	return Interval{Start: start, End: end}, nil
}

// HourPolicy decides how hour-only values without a meridiem are read.
// Values below PMCutoff are taken as afternoon hours when that keeps the
// range ordered.
type HourPolicy struct {
	PMCutoff int
}

// DefaultHourPolicy treats 1..7 as PM.
var DefaultHourPolicy = HourPolicy{PMCutoff: 8}

// Hour resolves a caller-spoken bare hour.
func (p HourPolicy) Hour(h int) int {
	if h > 0 && h < p.PMCutoff {
		return h + 12
	}
	return h
}

func (p HourPolicy) resolve(start, end clockToken) (Clock, Clock) {
	s, e := start.clock(), end.clock()
	if end.bare && end.hour < p.PMCutoff && e+12*60 > s {
		e += 12 * 60
	}
	if start.bare && start.hour < p.PMCutoff && s+12*60 < e {
		s += 12 * 60
	}
	return s, e
}

var rangeSeparator = regexp.MustCompile(`\s+to\s+|\s*[-–]\s*`)

// ParseWindow parses working hours such as "10 to 13", "10:00 to 13:30",
// "7:00 AM to 11:00 AM" or "9am-1pm".
func ParseWindow(raw string, policy HourPolicy) (Interval, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	parts := rangeSeparator.Split(s, -1)
	if len(parts) != 2 {
		return Interval{}, fmt.Errorf("slotgrid: invalid working hours %q", raw)
	}
	start, err := parseClockToken(parts[0])
	if err != nil {
		return Interval{}, err
	}
	end, err := parseClockToken(parts[1])
	if err != nil {
		return Interval{}, err
	}
	s0, e0 := policy.resolve(start, end)
	if s0 >= e0 || e0 > minutesPerDay {
		return Interval{}, fmt.Errorf("slotgrid: working hours %q do not form a range", raw)
	}
	return Interval{Start: s0, End: e0}, nil
}

// ParseBreak parses an optional break. Empty or "none" yields nil.
func ParseBreak(raw string, policy HourPolicy) (*Interval, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" || s == "none" || s == "no" {
		return nil, nil
	}
	iv, err := ParseWindow(s, policy)
	if err != nil {
		return nil, err
	}
	return &iv, nil
}

// Generate walks the working window in width steps and drops every interval
// that overlaps the break. A trailing partial interval is not produced.
func Generate(work Interval, brk *Interval, width time.Duration) []Interval {
	step := Clock(width / time.Minute)
	if step <= 0 {
		return nil
	}
	var out []Interval
	for s := work.Start; s+step <= work.End; s += step {
		iv := Interval{Start: s, End: s + step}
		if brk != nil && iv.Overlaps(*brk) {
			continue
		}
		out = append(out, iv)
	}
	return out
}
