package availability

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MinutesPerDay is the length of a calendar day in minutes.
const MinutesPerDay = 24 * 60

// EndOfDay is the normalized value of a window ending at "00:00".
const EndOfDay Clock = MinutesPerDay

// ErrInvalidClock is returned for time-of-day strings that are not HH:MM.
var ErrInvalidClock = errors.New("invalid clock time")

// Clock is a time of day expressed in minutes since midnight.
type Clock int

// NewClock builds a Clock from an hour and minute.
func NewClock(hour, minute int) Clock {
	return Clock(hour*60 + minute)
}

// ParseClock parses "H:MM" or "HH:MM" in 24-hour form.
func ParseClock(raw string) (Clock, error) {
	raw = strings.TrimSpace(raw)
	parts := strings.Split(raw, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, raw)
	}
	hourPart, minutePart := parts[0], parts[1]
	if len(hourPart) < 1 || len(hourPart) > 2 || len(minutePart) != 2 || !isDigits(hourPart) || !isDigits(minutePart) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, raw)
	}
	hour, _ := strconv.Atoi(hourPart)
	minute, _ := strconv.Atoi(minutePart)
	if hour > 23 || minute > 59 {
		return 0, fmt.Errorf("%w: %q out of range", ErrInvalidClock, raw)
	}
	return NewClock(hour, minute), nil
}

// Hour returns the hour component.
func (c Clock) Hour() int { return int(c) / 60 }

// Minute returns the minute component.
func (c Clock) Minute() int { return int(c) % 60 }

// String renders the clock as HH:MM. Values past midnight render past 24:00.
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

// MarshalText implements encoding.TextMarshaler.
func (c Clock) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
