// Package availability decides whether a booking request fits a teacher's
// recurring weekly availability. All calendar arithmetic happens in UTC.
package availability

import "time"

// Reason tags the outcome of an availability check.
type Reason string

const (
	ReasonAvailable           Reason = "available"
	ReasonInvalidAvailability Reason = "invalid_availability"
	ReasonInvalidRequest      Reason = "invalid_request"
	ReasonNoDayAvailability   Reason = "no_availability_for_day"
	ReasonNoMatchingWindow    Reason = "no_matching_window"
)

// Reasons lists every outcome tag.
func Reasons() []Reason {
	return []Reason{ReasonAvailable, ReasonInvalidAvailability, ReasonInvalidRequest, ReasonNoDayAvailability, ReasonNoMatchingWindow}
}

// Decision is the result of Check.
type Decision struct {
	Available    bool          `json:"available"`
	Reason       Reason        `json:"reason"`
	Weekday      string        `json:"weekday,omitempty"`
	RequestStart Clock         `json:"request_start"`
	RequestEnd   Clock         `json:"request_end"`
	Matched      *Window       `json:"matched_window,omitempty"`
	Skipped      []WindowError `json:"skipped_windows,omitempty"`
}

// Check reports whether [start, start+durationMinutes) lies entirely inside one
// window declared for start's UTC weekday. Windows are tried in authored order and
// the first containing window wins. Malformed windows are skipped and recorded.
// Seconds of start are ignored. A request running past midnight never matches.
// RequestEnd saturates one day after RequestStart for durations longer than a day.
func Check(av WeeklyAvailability, start time.Time, durationMinutes int) Decision {
	if !av.valid {
		return Decision{Reason: ReasonInvalidAvailability}
	}
	if durationMinutes <= 0 {
		return Decision{Reason: ReasonInvalidRequest}
	}

	utc := start.UTC()
	reqStart := NewClock(utc.Hour(), utc.Minute())
	// Compare against the room left in the day before adding, so huge durations cannot wrap.
	fitsInDay := durationMinutes <= MinutesPerDay-int(reqStart)
	span := durationMinutes
	if span > MinutesPerDay {
		span = MinutesPerDay
	}
	decision := Decision{
		Weekday:      DayKey(utc.Weekday()),
		RequestStart: reqStart,
		RequestEnd:   reqStart + Clock(span),
	}

	entries := av.days[utc.Weekday()]
	if len(entries) == 0 {
		decision.Reason = ReasonNoDayAvailability
		return decision
	}

	for i, e := range entries {
		if e.err != nil {
			decision.Skipped = append(decision.Skipped, WindowError{Day: decision.Weekday, Index: i, Spec: e.spec, Err: e.err})
			continue
		}
		if fitsInDay && e.window.Contains(decision.RequestStart, decision.RequestEnd) {
			matched := e.window
			decision.Available = true
			decision.Reason = ReasonAvailable
			decision.Matched = &matched
			return decision
		}
	}

	decision.Reason = ReasonNoMatchingWindow
	return decision
}

// IsAvailable parses a raw availability document and checks the request.
// It never fails: malformed documents are simply unavailable.
func IsAvailable(raw []byte, start time.Time, durationMinutes int) bool {
	av, err := Parse(raw)
	if err != nil {
		return false
	}
	return Check(av, start, durationMinutes).Available
}
