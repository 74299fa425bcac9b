package recurrence

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

var dayNames = map[string]int{
	"sun": 0, "sunday": 0,
	"mon": 1, "monday": 1,
	"tue": 2, "tues": 2, "tuesday": 2,
	"wed": 3, "wednesday": 3,
	"thu": 4, "thur": 4, "thurs": 4, "thursday": 4,
	"fri": 5, "friday": 5,
	"sat": 6, "saturday": 6,
}

// WeekdaySet is a bitmask of weekdays, bit 0 = Sunday.
type WeekdaySet uint8

// NewWeekdaySet builds a set from day numbers, ignoring values outside 0..6.
func NewWeekdaySet(days ...int) WeekdaySet {
	var s WeekdaySet
	for _, d := range days {
		if d >= 0 && d <= 6 {
			s |= 1 << uint(d)
		}
	}
	return s
}

func (s WeekdaySet) Contains(day int) bool {
	if day < 0 || day > 6 {
		return false
	}
	return s&(1<<uint(day)) != 0
}

func (s WeekdaySet) Empty() bool { return s == 0 }

// Days returns the members in ascending order.
func (s WeekdaySet) Days() []int {
	out := make([]int, 0, 7)
	for d := 0; d <= 6; d++ {
		if s.Contains(d) {
			out = append(out, d)
		}
	}
	return out
}

// NormalizeWeekdays converts loosely typed weekday input into sorted, unique
// day numbers. Accepted: integers 0..6, integral floats (JSON numbers),
// numeric strings, and English day names or abbreviations in any case.
// Anything else is dropped.
func NormalizeWeekdays(raw []any) []int {
	seen := make(map[int]struct{}, len(raw))
	for _, v := range raw {
		if d, ok := parseWeekday(v); ok {
			seen[d] = struct{}{}
		}
	}
	out := make([]int, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Ints(out)
	return out
}

func parseWeekday(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return inRange(x)
	case int32:
		return inRange(int(x))
	case int64:
		return inRange(int(x))
	case float64:
		if x != math.Trunc(x) {
			return 0, false
		}
		return inRange(int(x))
	case string:
		s := strings.ToLower(strings.TrimSpace(x))
		if n, err := strconv.Atoi(s); err == nil {
			return inRange(n)
		}
		d, ok := dayNames[s]
		return d, ok
	default:
		return 0, false
	}
}

func inRange(d int) (int, bool) {
	if d < 0 || d > 6 {
		return 0, false
	}
	return d, true
}
