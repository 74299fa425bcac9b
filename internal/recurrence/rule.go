// Package recurrence models weekly reminder rules (a local time-of-day plus a
// set of weekdays) and computes their next occurrence in a fixed timezone.
package recurrence

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var timeOfDayPattern = regexp.MustCompile(`^([0-1][0-9]|2[0-3]):[0-5][0-9]$`)

var ErrInvalidTimeOfDay = errors.New("time of day must be HH:mm (00:00-23:59)")

// TimeOfDay is a wall-clock minute in the target timezone.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses a strict "HH:mm" string.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	if !timeOfDayPattern.MatchString(s) {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}
	h, _ := strconv.Atoi(s[:2])
	m, _ := strconv.Atoi(s[3:])
	return TimeOfDay{Hour: h, Minute: m}, nil
}

// ValidTimeOfDay reports whether s is a well-formed "HH:mm" value.
func ValidTimeOfDay(s string) bool {
	return timeOfDayPattern.MatchString(s)
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Rule fires at Time on every weekday present in Days.
// An empty Days set never fires.
type Rule struct {
	Time TimeOfDay
	Days WeekdaySet
}

// ParseRule builds a Rule from stored fields. Out-of-range days are dropped.
// A rule with no days is returned without error; Next reports it as never firing.
func ParseRule(timeOfDay string, days []int) (Rule, error) {
	tod, err := ParseTimeOfDay(timeOfDay)
	if err != nil {
		return Rule{}, err
	}
	return Rule{Time: tod, Days: NewWeekdaySet(days...)}, nil
}

// Next returns the first instant strictly after now at which the rule fires,
// evaluated on the local calendar of loc. The result is in UTC.
// The boolean is false when the rule can never fire.
func (r Rule) Next(now time.Time, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	today := int(local.Weekday())

	// Offsets 0..7: today plus a full week, so today's slot is retried next week.
	for offset := 0; offset <= 7; offset++ {
		day := (today + offset) % 7
		if !r.Days.Contains(day) {
			continue
		}
		// Built from calendar fields so a 09:00 rule stays 09:00 across DST shifts.
		candidate := time.Date(local.Year(), local.Month(), local.Day()+offset,
			r.Time.Hour, r.Time.Minute, 0, 0, loc)
		if !candidate.After(now) {
			continue
		}
		return candidate.UTC(), true
	}
	return time.Time{}, false
}

// Matches reports whether the rule is due on local's weekday at local's
// hour and minute. Used by the polling runtime.
func (r Rule) Matches(local time.Time) bool {
	return r.Days.Contains(int(local.Weekday())) &&
		local.Hour() == r.Time.Hour && local.Minute() == r.Time.Minute
}

// ScheduledAt returns the rule's slot on the calendar day of local.
func (r Rule) ScheduledAt(local time.Time) time.Time {
	return time.Date(local.Year(), local.Month(), local.Day(), r.Time.Hour, r.Time.Minute, 0, 0, local.Location())
}

// NextOccurrence parses the stored fields and returns the next fire instant.
// Malformed input and empty weekday sets both yield ok == false.
func NextOccurrence(timeOfDay string, days []int, now time.Time, loc *time.Location) (time.Time, bool) {
	rule, err := ParseRule(timeOfDay, days)
	if err != nil {
		return time.Time{}, false
	}
	return rule.Next(now, loc)
}
