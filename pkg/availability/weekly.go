package availability

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMalformedAvailability is returned when the availability document is not a JSON object.
var ErrMalformedAvailability = errors.New("malformed weekly availability")

var dayKeys = [7]string{"sun", "mon", "tue", "wed", "thu", "fri", "sat"}

// DayKey returns the document key for a weekday, e.g. "mon".
func DayKey(day time.Weekday) string {
	if day < time.Sunday || day > time.Saturday {
		return ""
	}
	return dayKeys[day]
}

// ParseDay resolves a document key into a weekday.
func ParseDay(key string) (time.Weekday, bool) {
	for i, k := range dayKeys {
		if k == key {
			return time.Weekday(i), true
		}
	}
	return 0, false
}

// DayKeys lists the accepted document keys, Sunday first.
func DayKeys() []string {
	keys := make([]string, len(dayKeys))
	copy(keys, dayKeys[:])
	return keys
}

type entry struct {
	spec   string
	window Window
	err    error
}

func newEntry(spec string) entry {
	w, err := ParseWindow(spec)
	return entry{spec: spec, window: w, err: err}
}

// WeeklyAvailability is a validated snapshot of a teacher's recurring weekly schedule.
// The zero value is not valid and never matches a request.
type WeeklyAvailability struct {
	valid bool
	days  [7][]entry
}

// Parse reads a JSON document mapping day keys to arrays of window specs.
// Anything other than a JSON object fails with ErrMalformedAvailability. Inside the
// object, unknown keys are ignored, non-array day values mean no availability that
// day, and malformed windows are kept so matching can skip and report them.
func Parse(raw []byte) (WeeklyAvailability, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return WeeklyAvailability{}, ErrMalformedAvailability
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return WeeklyAvailability{}, fmt.Errorf("%w: %v", ErrMalformedAvailability, err)
	}

	av := WeeklyAvailability{valid: true}
	for key, value := range doc {
		day, ok := ParseDay(key)
		if !ok {
			continue
		}
		var items []json.RawMessage
		if err := json.Unmarshal(value, &items); err != nil {
			continue
		}
		entries := make([]entry, 0, len(items))
		for _, item := range items {
			var spec string
			if err := json.Unmarshal(item, &spec); err != nil {
				entries = append(entries, entry{spec: string(item), err: fmt.Errorf("%w: %s is not a string", ErrInvalidWindow, item)})
				continue
			}
			entries = append(entries, newEntry(spec))
		}
		av.days[day] = entries
	}
	return av, nil
}

// FromDays builds availability from typed data. Unknown keys are ignored.
func FromDays(days map[string][]string) WeeklyAvailability {
	av := WeeklyAvailability{valid: true}
	for key, specs := range days {
		day, ok := ParseDay(key)
		if !ok {
			continue
		}
		entries := make([]entry, 0, len(specs))
		for _, spec := range specs {
			entries = append(entries, newEntry(spec))
		}
		av.days[day] = entries
	}
	return av
}

// Valid reports whether the snapshot came from a well-formed document.
func (a WeeklyAvailability) Valid() bool {
	return a.valid
}

// Windows returns the well-formed windows for a day in authored order.
func (a WeeklyAvailability) Windows(day time.Weekday) []Window {
	if day < time.Sunday || day > time.Saturday {
		return nil
	}
	var out []Window
	for _, e := range a.days[day] {
		if e.err == nil {
			out = append(out, e.window)
		}
	}
	return out
}

// WeeklyMinutes sums the length of all well-formed windows.
func (a WeeklyAvailability) WeeklyMinutes() int {
	total := 0
	for day := time.Sunday; day <= time.Saturday; day++ {
		for _, w := range a.Windows(day) {
			total += w.Minutes()
		}
	}
	return total
}

// Validate is the strict authoring check: every window must parse.
func (a WeeklyAvailability) Validate() error {
	if !a.valid {
		return ErrMalformedAvailability
	}
	var errs []error
	for day, entries := range a.days {
		for i, e := range entries {
			if e.err != nil {
				errs = append(errs, WindowError{Day: dayKeys[day], Index: i, Spec: e.spec, Err: e.err})
			}
		}
	}
	return errors.Join(errs...)
}

// Days returns the authored window specs keyed by day. Days without entries are omitted.
func (a WeeklyAvailability) Days() map[string][]string {
	out := make(map[string][]string)
	for day, entries := range a.days {
		if len(entries) == 0 {
			continue
		}
		specs := make([]string, 0, len(entries))
		for _, e := range entries {
			specs = append(specs, e.spec)
		}
		out[dayKeys[day]] = specs
	}
	return out
}

// Canonical returns a copy whose windows are re-rendered as zero-padded "HH:MM-HH:MM".
// Malformed entries keep their authored text, so callers should Validate first.
func (a WeeklyAvailability) Canonical() WeeklyAvailability {
	out := WeeklyAvailability{valid: a.valid}
	for day, entries := range a.days {
		if len(entries) == 0 {
			continue
		}
		canon := make([]entry, len(entries))
		for i, e := range entries {
			canon[i] = e
			if e.err == nil {
				canon[i].spec = e.window.String()
			}
		}
		out.days[day] = canon
	}
	return out
}

// MarshalJSON writes the document form.
func (a WeeklyAvailability) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Days())
}

// UnmarshalJSON accepts the same documents as Parse.
func (a *WeeklyAvailability) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// WindowError records a window that was skipped because it could not be parsed.
type WindowError struct {
	Day   string
	Index int
	Spec  string
	Err   error
}

func (e WindowError) Error() string {
	return fmt.Sprintf("%s[%d] %q: %v", e.Day, e.Index, e.Spec, e.Err)
}

func (e WindowError) Unwrap() error {
	return e.Err
}

// MarshalJSON flattens the wrapped error into a message.
func (e WindowError) MarshalJSON() ([]byte, error) {
	msg := ""
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return json.Marshal(struct {
		Day   string `json:"day"`
		Index int    `json:"index"`
		Spec  string `json:"spec"`
		Error string `json:"error"`
	}{e.Day, e.Index, e.Spec, msg})
}
