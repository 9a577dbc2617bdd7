// Package eventtime turns the free-text date and time labels entered in
// WordPress into comparable timestamps.
//
// A label such as "Thursday, February 27, 2025" is combined with optional
// start and end times like "11:10 am". Anything that fails to parse resolves
// to nil rather than an error; callers treat an unknown end as "still
// upcoming" so that bad data never hides an event.
package eventtime

import (
	"regexp"
	"strings"
	"time"
)

// DefaultDuration is assumed for events that have a start time but no usable
// end time.
const DefaultDuration = 60 * time.Minute

const (
	sortKeyFormat = time.RFC3339
	dayKeyFormat  = "2006-01-02"
)

var (
	weekdayPrefix = regexp.MustCompile(`^[A-Za-z]+,\s*`)
	ordinalSuffix = regexp.MustCompile(`(\d)(st|nd|rd|th)\b`)
	spaces        = regexp.MustCompile(`\s+`)

	dateLayouts = []string{
		"January 2, 2006",
		"Jan 2, 2006",
		"January 2 2006",
		"Jan 2 2006",
		"2 January 2006",
		"2006-01-02",
		"01/02/2006",
		"1/2/2006",
		"20060102",
	}

	clockLayouts = []string{
		"3:04 pm",
		"3:04pm",
		"3 pm",
		"3pm",
		"15:04",
	}
)

// Times is the resolved span of an event. Either bound may be nil.
type Times struct {
	Start *time.Time
	End   *time.Time
}

// Resolver parses labels in a fixed location.
type Resolver struct {
	Location        *time.Location
	DefaultDuration time.Duration
}

// NewResolver creates a resolver for loc. A nil loc means time.Local and a
// non-positive duration means DefaultDuration.
func NewResolver(loc *time.Location, duration time.Duration) *Resolver {
	if loc == nil {
		loc = time.Local
	}
	if duration <= 0 {
		duration = DefaultDuration
	}
	return &Resolver{Location: loc, DefaultDuration: duration}
}

// Resolve computes start and end for an event.
//
// The start is the date combined with startTime. A date without a start time
// resolves to midnight so it still sorts within its day, but such a start is
// not used to derive an end. An unparseable startTime leaves the start nil.
//
// The end is the explicit endTime when it parses and is not before the start;
// otherwise start plus the default duration when a start time was given;
// otherwise nil.
func (r *Resolver) Resolve(dateLabel, startTime, endTime string) Times {
	date, ok := r.parseDate(dateLabel)
	if !ok {
		return Times{}
	}

	var out Times
	startClockKnown := false

	if strings.TrimSpace(startTime) == "" {
		midnight := date
		out.Start = &midnight
	} else if h, m, ok := parseClock(startTime); ok {
		start := r.at(date, h, m)
		out.Start = &start
		startClockKnown = true
	}

	if h, m, ok := parseClock(endTime); ok {
		end := r.at(date, h, m)
		if out.Start == nil || !end.Before(*out.Start) {
			out.End = &end
			return out
		}
	}

	if startClockKnown {
		end := out.Start.Add(r.duration())
		out.End = &end
	}
	return out
}

// IsUpcoming reports whether an event ending at end has not finished by now.
// An unknown end always counts as upcoming.
func IsUpcoming(end *time.Time, now time.Time) bool {
	return end == nil || !end.Before(now)
}

// SortKey formats a start time as an ISO-8601 timestamp. Keys produced in the
// same location compare lexically in chronological order.
func SortKey(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(sortKeyFormat)
}

// DayKey is the date-only part of a start time, or "" when unknown.
func DayKey(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(dayKeyFormat)
}

// CleanDateLabel strips a leading weekday name and comma, so
// "Thursday, February 27, 2025" becomes "February 27, 2025".
func CleanDateLabel(label string) string {
	return weekdayPrefix.ReplaceAllString(strings.TrimSpace(label), "")
}

func (r *Resolver) parseDate(label string) (time.Time, bool) {
	s := CleanDateLabel(label)
	if s == "" {
		return time.Time{}, false
	}
	s = ordinalSuffix.ReplaceAllString(s, "$1")
	s = spaces.ReplaceAllString(s, " ")

	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, r.location()); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseClock(s string) (hour, minute int, ok bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, 0, false
	}
	s = strings.NewReplacer("a.m.", "am", "p.m.", "pm").Replace(s)
	s = spaces.ReplaceAllString(s, " ")

	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Hour(), t.Minute(), true
		}
	}
	return 0, 0, false
}

func (r *Resolver) at(date time.Time, hour, minute int) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, r.location())
}

func (r *Resolver) location() *time.Location {
	if r.Location == nil {
		return time.Local
	}
	return r.Location
}

func (r *Resolver) duration() time.Duration {
	if r.DefaultDuration <= 0 {
		return DefaultDuration
	}
	return r.DefaultDuration
}
