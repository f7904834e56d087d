// Package schedule evaluates free-text pickup point operating schedules.
//
// Courier APIs return schedules as uncontrolled strings mixing Russian and
// English day tokens with time ranges ("Пн-Пт 09:00-18:00; Сб 10:00-16:00",
// "daily 10:00-22:00"). Parsing is best-effort: unusual phrasing may produce
// false positives or negatives, which callers must tolerate.
package schedule

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// TimeRange is a window within a day expressed in minutes since midnight.
// End may be smaller than Start for overnight windows ("22:00-06:00").
type TimeRange struct {
	Start int
	End   int
}

// Contains reports whether the minute-of-day m falls inside the range,
// handling overnight wraparound.
func (r TimeRange) Contains(m int) bool {
	if r.Start <= r.End {
		return m >= r.Start && m <= r.End
	}
	return m >= r.Start || m <= r.End
}

// Segment is one parsed clause of a schedule: a set of weekdays and an
// optional time window. Days are indexed Monday=0 through Sunday=6.
type Segment struct {
	Days   [7]bool
	Window *TimeRange
}

// Schedule is the parsed intermediate representation of a raw schedule string.
type Schedule struct {
	Raw      string
	Closed   bool
	Segments []Segment
}

var (
	timeRangeRe = regexp.MustCompile(`(\d{1,2})[:.](\d{2})\s*[-–—]\s*(\d{1,2})[:.](\d{2})`)
	dayRangeRe  = regexp.MustCompile(`([a-zа-яё]+|\d)\s*[-–—]\s*([a-zа-яё]+|\d)`)
	dayTokenRe  = regexp.MustCompile(`[a-zа-яё]+|\d`)
)

var dayAliases = map[string]int{
	"пн": 0, "понедельник": 0, "пон": 0, "mon": 0, "monday": 0, "1": 0,
	"вт": 1, "вторник": 1, "tue": 1, "tues": 1, "tuesday": 1, "2": 1,
	"ср": 2, "среда": 2, "сре": 2, "wed": 2, "wednesday": 2, "3": 2,
	"чт": 3, "четверг": 3, "чет": 3, "thu": 3, "thur": 3, "thurs": 3, "thursday": 3, "4": 3,
	"пт": 4, "пятница": 4, "пят": 4, "fri": 4, "friday": 4, "5": 4,
	"сб": 5, "суббота": 5, "суб": 5, "sat": 5, "saturday": 5, "6": 5,
	"вс": 6, "воскресенье": 6, "вос": 6, "вск": 6, "sun": 6, "sunday": 6, "7": 6,
}

var dailyTokens = []string{
	"ежедневно",
	"без выходных",
	"круглосуточно",
	"daily",
	"everyday",
	"every day",
	"24/7",
}

const closedToken = "закрыт"

// Parse converts a raw schedule string into its structured representation.
// The result is safe to evaluate repeatedly without re-scanning the text.
func Parse(raw string) Schedule {
	s := Schedule{Raw: raw}
	lower := strings.ToLower(strings.TrimSpace(raw))
	if lower == "" {
		return s
	}
	if strings.Contains(lower, closedToken) {
		s.Closed = true
		return s
	}
	for _, part := range strings.Split(lower, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		s.Segments = append(s.Segments, parseSegment(part))
	}
	return s
}

func parseSegment(part string) Segment {
	var seg Segment

	var window *TimeRange
	if m := timeRangeRe.FindStringSubmatch(part); m != nil {
		sh, _ := strconv.Atoi(m[1])
		sm, _ := strconv.Atoi(m[2])
		eh, _ := strconv.Atoi(m[3])
		em, _ := strconv.Atoi(m[4])
		if sh < 24 && sm < 60 && eh < 25 && em < 60 {
			window = &TimeRange{Start: sh*60 + sm, End: (eh % 24 * 60) + em}
		}
	}
	seg.Window = window

	// strip the time range so its digits are not mistaken for day numbers
	dayPart := timeRangeRe.ReplaceAllString(part, " ")

	for _, token := range dailyTokens {
		if strings.Contains(dayPart, token) {
			seg.Days = allDays()
			return seg
		}
	}

	matched := false
	consumed := map[string]bool{}
	for _, m := range dayRangeRe.FindAllStringSubmatch(dayPart, -1) {
		start, okStart := dayAliases[m[1]]
		end, okEnd := dayAliases[m[2]]
		if !okStart || !okEnd {
			continue
		}
		matched = true
		consumed[m[1]] = true
		consumed[m[2]] = true
		for d := 0; d < 7; d++ {
			if inDayRange(d, start, end) {
				seg.Days[d] = true
			}
		}
	}
	for _, token := range dayTokenRe.FindAllString(dayPart, -1) {
		if consumed[token] {
			continue
		}
		if d, ok := dayAliases[token]; ok {
			// bare digits outside an explicit range are too ambiguous to trust
			if len(token) == 1 && token[0] >= '0' && token[0] <= '9' {
				continue
			}
			matched = true
			seg.Days[d] = true
		}
	}

	if !matched {
		// no recognisable day tokens: treat the clause as applying daily
		seg.Days = allDays()
	}
	return seg
}

// inDayRange reports whether day lies inside [start, end], wrapping across
// the week boundary when end precedes start ("Fri-Mon").
func inDayRange(day, start, end int) bool {
	if start <= end {
		return day >= start && day <= end
	}
	return day >= start || day <= end
}

func allDays() [7]bool {
	return [7]bool{true, true, true, true, true, true, true}
}

// OpenAt reports whether the schedule covers the given instant. A segment with
// no time window counts as open for the whole matched day.
func (s Schedule) OpenAt(t time.Time) bool {
	if s.Closed {
		return false
	}
	day := (int(t.Weekday()) + 6) % 7 // Monday=0 .. Sunday=6
	minute := t.Hour()*60 + t.Minute()
	for _, seg := range s.Segments {
		if !seg.Days[day] {
			continue
		}
		if seg.Window == nil || seg.Window.Contains(minute) {
			return true
		}
	}
	return false
}

// OpenToday reports whether the schedule covers the current instant.
func (s Schedule) OpenToday(now func() time.Time) bool {
	if now == nil {
		now = time.Now
	}
	return s.OpenAt(now())
}
