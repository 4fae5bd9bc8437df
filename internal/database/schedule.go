package database

import (
	"fmt"
	"strings"
	"time"
)

// TimeRange is an inclusive wall-clock interval in "HH:MM" form.
type TimeRange struct {
	Start string
	End   string
}

// ParseTimeRange parses "09:00-10:30".
func ParseTimeRange(s string) (TimeRange, error) {
	start, end, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return TimeRange{}, fmt.Errorf("%w: time range %q must look like HH:MM-HH:MM", ErrInvalidInput, s)
	}
	from, err := parseClock(start)
	if err != nil {
		return TimeRange{}, fmt.Errorf("%w: time %q in range %q", ErrInvalidInput, strings.TrimSpace(start), s)
	}
	to, err := parseClock(end)
	if err != nil {
		return TimeRange{}, fmt.Errorf("%w: time %q in range %q", ErrInvalidInput, strings.TrimSpace(end), s)
	}
	if to.Before(from) {
		return TimeRange{}, fmt.Errorf("%w: range %q ends before it starts", ErrInvalidInput, s)
	}
	// Contains compares strings, so both ends are stored zero padded.
	return TimeRange{Start: from.Format(clockLayout), End: to.Format(clockLayout)}, nil
}

const clockLayout = "15:04"

// parseClock accepts "9:30" as well as "09:30".
func parseClock(v string) (time.Time, error) {
	return time.Parse(clockLayout, strings.TrimSpace(v))
}

func (r TimeRange) String() string {
	return r.Start + "-" + r.End
}

// Contains reports whether the "HH:MM" wall clock value lies within the range, bounds included.
func (r TimeRange) Contains(hhmm string) bool {
	return r.Start <= hhmm && hhmm <= r.End
}

// ClassSchedule is the weekly timetable of a class.
type ClassSchedule struct {
	ClassID string
	Name    string
	Slots   map[time.Weekday][]TimeRange
}

// InSession reports whether t falls inside one of the slots for t's weekday.
// A weekday without slots is never in session.
func (c *ClassSchedule) InSession(t time.Time) bool {
	slots := c.Slots[t.Weekday()]
	if len(slots) == 0 {
		return false
	}
	now := t.Format(clockLayout)
	for _, r := range slots {
		if r.Contains(now) {
			return true
		}
	}
	return false
}

// ParseWeekday accepts full or three-letter English day names in any case.
func ParseWeekday(s string) (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if name == full || name == full[:3] {
			return d, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown weekday %q", ErrInvalidInput, s)
}

// ScheduleFromStrings builds slots from {"monday": ["09:00-10:30"]}.
func ScheduleFromStrings(raw map[string][]string) (map[time.Weekday][]TimeRange, error) {
	slots := make(map[time.Weekday][]TimeRange, len(raw))
	for day, ranges := range raw {
		wd, err := ParseWeekday(day)
		if err != nil {
			return nil, err
		}
		for _, s := range ranges {
			r, err := ParseTimeRange(s)
			if err != nil {
				return nil, err
			}
			slots[wd] = append(slots[wd], r)
		}
	}
	return slots, nil
}

// ScheduleToStrings is the inverse of ScheduleFromStrings with lowercase day names.
func ScheduleToStrings(slots map[time.Weekday][]TimeRange) map[string][]string {
	raw := make(map[string][]string, len(slots))
	for day, ranges := range slots {
		key := strings.ToLower(day.String())
		for _, r := range ranges {
			raw[key] = append(raw[key], r.String())
		}
	}
	return raw
}
