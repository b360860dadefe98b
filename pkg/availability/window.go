package availability

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidWindow is returned for window specs that cannot be used for matching.
var ErrInvalidWindow = errors.New("invalid availability window")

// Window is a bookable interval [Start, End) within a single day.
type Window struct {
	Start Clock
	End   Clock
}

// ParseWindow parses a "HH:MM-HH:MM" spec. An end of "00:00" means end of day.
// Windows that cross midnight are rejected.
func ParseWindow(spec string) (Window, error) {
	parts := strings.Split(spec, "-")
	if len(parts) != 2 {
		return Window{}, fmt.Errorf("%w: %q is not start-end", ErrInvalidWindow, spec)
	}
	start, err := ParseClock(parts[0])
	if err != nil {
		return Window{}, fmt.Errorf("%w: start of %q: %v", ErrInvalidWindow, spec, err)
	}
	end, err := ParseClock(parts[1])
	if err != nil {
		return Window{}, fmt.Errorf("%w: end of %q: %v", ErrInvalidWindow, spec, err)
	}
	if end == 0 {
		end = EndOfDay
	}
	if start >= end {
		return Window{}, fmt.Errorf("%w: %q ends before it starts", ErrInvalidWindow, spec)
	}
	return Window{Start: start, End: end}, nil
}

// Contains reports whether [start, end) lies entirely inside the window.
func (w Window) Contains(start, end Clock) bool {
	return start >= w.Start && end <= w.End
}

// Minutes returns the window length.
func (w Window) Minutes() int {
	return int(w.End - w.Start)
}

// String renders the window in its authored form; end of day renders as 00:00.
func (w Window) String() string {
	end := w.End
	if end == EndOfDay {
		end = 0
	}
	return w.Start.String() + "-" + end.String()
}

// MarshalText implements encoding.TextMarshaler.
func (w Window) MarshalText() ([]byte, error) {
	return []byte(w.String()), nil
}
