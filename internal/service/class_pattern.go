package service

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/noah-isme/sma-admission-api/internal/dto"
	"github.com/noah-isme/sma-admission-api/internal/models"
	appErrors "github.com/noah-isme/sma-admission-api/pkg/errors"
)

const (
	maxPatternEntries   = 4
	maxHoursPerWeek     = 4
	maxHoursPerWeekday  = 2
	patternSessionHours = 1
)

var weekdayNames = [8]string{"", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

var weekdayIndex = map[string]int{
	"MONDAY":    1,
	"TUESDAY":   2,
	"WEDNESDAY": 3,
	"THURSDAY":  4,
	"FRIDAY":    5,
	"SATURDAY":  6,
	"SUNDAY":    7,
}

// isoWeekday maps time.Weekday onto Monday=1 .. Sunday=7.
func isoWeekday(day time.Weekday) int {
	if day == time.Sunday {
		return 7
	}
	return int(day)
}

func parseWeekday(raw string) (int, bool) {
	idx, ok := weekdayIndex[strings.ToUpper(strings.TrimSpace(raw))]
	return idx, ok
}

// clockTime is a time of day in minutes after midnight.
type clockTime int

func parseClock(raw string) (clockTime, error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time %q", raw)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid time %q", raw)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid time %q", raw)
	}
	if len(parts) == 3 {
		if second, err := strconv.Atoi(parts[2]); err != nil || second != 0 {
			return 0, fmt.Errorf("invalid time %q", raw)
		}
	}
	return clockTime(hour*60 + minute), nil
}

// clockKey normalizes a time of day for equality checks.
func clockKey(raw string) string {
	if at, err := parseClock(raw); err == nil {
		return at.String()
	}
	return "raw:" + strings.TrimSpace(raw)
}

func (c clockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// weeklySlot is a validated pattern entry.
type weeklySlot struct {
	position int
	weekday  int
	start    clockTime
	end      clockTime
}

func (s weeklySlot) hours() int {
	return int(s.end-s.start) / 60
}

func (s weeklySlot) toModel() models.PatternActivity {
	return models.PatternActivity{
		Position:  s.position,
		DayOfWeek: weekdayNames[s.weekday],
		StartTime: s.start.String(),
		EndTime:   s.end.String(),
	}
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func patternError(format string, args ...interface{}) error {
	return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf(format, args...))
}

// validatePattern checks a class creation request's start date and weekly pattern,
// stopping at the first violated rule.
func validatePattern(today, startDate time.Time, entries []dto.PatternActivityRequest) ([]weeklySlot, error) {
	start := dateOf(startDate)
	if start.Before(dateOf(today)) {
		return nil, patternError("start date %s is in the past", start.Format("2006-01-02"))
	}
	if len(entries) == 0 || len(entries) > maxPatternEntries {
		return nil, patternError("between 1 and %d weekly pattern entries are required", maxPatternEntries)
	}

	slots := make([]weeklySlot, len(entries))
	for i, entry := range entries {
		day, ok := parseWeekday(entry.DayOfWeek)
		if !ok {
			return nil, patternError("pattern entry %d has invalid day of week %q", i+1, entry.DayOfWeek)
		}
		slots[i] = weeklySlot{position: i, weekday: day}
	}

	startDay := isoWeekday(start.Weekday())
	if slots[0].weekday != startDay {
		return nil, patternError("first pattern entry must fall on the start date's weekday (%s)", weekdayNames[startDay])
	}
	for i := 1; i < len(slots); i++ {
		if slots[i].weekday < slots[i-1].weekday || slots[i].weekday < startDay {
			return nil, patternError("pattern entry %d (%s) is out of weekday order", i+1, weekdayNames[slots[i].weekday])
		}
	}

	// Entries compare by parsed time so "8:00" and "08:00:00" are the same slot. An
	// unparseable time keys on its raw text and is rejected by the time rules below.
	seen := make(map[string]struct{}, len(entries))
	for i, entry := range entries {
		key := fmt.Sprintf("%d|%s|%s", slots[i].weekday, clockKey(entry.StartTime), clockKey(entry.EndTime))
		if _, dup := seen[key]; dup {
			return nil, patternError("pattern entry %d duplicates %s %s-%s", i+1, weekdayNames[slots[i].weekday], entry.StartTime, entry.EndTime)
		}
		seen[key] = struct{}{}
	}

	perDay := make(map[int]int)
	for i, entry := range entries {
		startAt, err := parseClock(entry.StartTime)
		if err != nil {
			return nil, patternError("pattern entry %d: %s", i+1, err.Error())
		}
		endAt, err := parseClock(entry.EndTime)
		if err != nil {
			return nil, patternError("pattern entry %d: %s", i+1, err.Error())
		}
		if startAt%60 != 0 || endAt%60 != 0 {
			return nil, patternError("pattern entry %d must start and end on the hour", i+1)
		}
		if endAt-startAt != patternSessionHours*60 {
			return nil, patternError("pattern entry %d must last exactly one hour", i+1)
		}
		slots[i].start = startAt
		slots[i].end = endAt
		perDay[slots[i].weekday] += slots[i].hours()
	}

	for i, slot := range slots {
		if perDay[slot.weekday] > maxHoursPerWeekday {
			return nil, patternError("pattern entry %d exceeds %d hours on %s", i+1, maxHoursPerWeekday, weekdayNames[slot.weekday])
		}
	}
	return slots, nil
}

// expandedCalendar is the dated calendar produced from a weekly pattern.
type expandedCalendar struct {
	Schedules     []models.Schedule
	EndDate       time.Time
	NumberOfWeeks int
	TotalHours    int
}

// expandPattern lays the weekly pattern over successive 7-day windows anchored at the
// start date until totalHours sessions have been emitted.
func expandPattern(startDate time.Time, slots []weeklySlot, totalHours int) expandedCalendar {
	var calendar expandedCalendar
	if len(slots) == 0 || totalHours <= 0 {
		return calendar
	}
	start := dateOf(startDate)

	for week := 0; calendar.TotalHours < totalHours; week++ {
		anchor := start.AddDate(0, 0, 7*week)
		monday := anchor.AddDate(0, 0, 1-isoWeekday(anchor.Weekday()))
		schedule := models.Schedule{
			WeekNumber: week + 1,
			Title:      fmt.Sprintf("Week - %d", week+1),
			StartDate:  monday,
			EndDate:    monday.AddDate(0, 0, 6),
		}

		weekHours := 0
		for _, slot := range slots {
			if weekHours >= maxHoursPerWeek || calendar.TotalHours >= totalHours {
				break
			}
			offset := (slot.weekday - isoWeekday(anchor.Weekday()) + 7) % 7
			date := anchor.AddDate(0, 0, offset)
			schedule.Activities = append(schedule.Activities, models.Activity{
				PatternPosition: slot.position,
				DayOfWeek:       weekdayNames[slot.weekday],
				StartTime:       slot.start.String(),
				EndTime:         slot.end.String(),
				Date:            date,
			})
			weekHours += slot.hours()
			calendar.TotalHours += slot.hours()
			calendar.EndDate = date
		}
		if len(schedule.Activities) == 0 {
			break
		}
		calendar.Schedules = append(calendar.Schedules, schedule)
	}

	calendar.NumberOfWeeks = len(calendar.Schedules)
	return calendar
}
