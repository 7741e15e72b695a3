// Package slotgrid turns provider working hours into ordered bookable intervals.
package slotgrid

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Clock is a time of day in minutes since midnight.
type Clock int

const minutesPerDay = 24 * 60

// NewClock builds a Clock from hour and minute.
func NewClock(hour, minute int) Clock {
	return Clock(hour*60 + minute)
}

func (c Clock) Hour() int   { return int(c) / 60 }
func (c Clock) Minute() int { return int(c) % 60 }

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

// Spoken renders the clock for text-to-speech, e.g. "10:30 AM".
func (c Clock) Spoken() string {
	h := c.Hour()
	suffix := "AM"
	if h >= 12 {
		suffix = "PM"
	}
	h12 := h % 12
	if h12 == 0 {
		h12 = 12
	}
	return fmt.Sprintf("%d:%02d %s", h12, c.Minute(), suffix)
}

var clockPattern = regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))?\s*(am|pm|a\.m\.|p\.m\.)?$`)

// clockToken is one side of a working-hours string before hour disambiguation.
type clockToken struct {
	hour     int
	minute   int
	meridiem string
	// bare is true for hour-only values without a meridiem.
	bare bool
}

func parseClockToken(raw string) (clockToken, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	m := clockPattern.FindStringSubmatch(s)
	if m == nil {
		return clockToken{}, fmt.Errorf("slotgrid: invalid time %q", raw)
	}
	hour, _ := strconv.Atoi(m[1])
	minute := 0
	if m[2] != "" {
		minute, _ = strconv.Atoi(m[2])
	}
	meridiem := strings.ReplaceAll(m[3], ".", "")
	if minute > 59 {
		return clockToken{}, fmt.Errorf("slotgrid: invalid minute in %q", raw)
	}
	if meridiem != "" {
		if hour < 1 || hour > 12 {
			return clockToken{}, fmt.Errorf("slotgrid: invalid 12-hour value %q", raw)
		}
	} else if hour > 24 || (hour == 24 && minute > 0) {
		return clockToken{}, fmt.Errorf("slotgrid: invalid hour in %q", raw)
	}
	return clockToken{
		hour:     hour,
		minute:   minute,
		meridiem: meridiem,
		bare:     m[2] == "" && meridiem == "",
	}, nil
}

func (t clockToken) clock() Clock {
	h := t.hour
	switch t.meridiem {
	case "am":
		if h == 12 {
			h = 0
		}
	case "pm":
		if h != 12 {
			h += 12
		}
	}
	return NewClock(h, t.minute)
}

// ParseClock parses "HH:MM", "H", "9am" or "7:00 PM".
func ParseClock(raw string) (Clock, error) {
	tok, err := parseClockToken(raw)
	if err != nil {
		return 0, err
	}
	return tok.clock(), nil
}
