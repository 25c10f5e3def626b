package service

import (
	"fmt"
	"time"

	"github.com/noah-isme/sma-admission-api/internal/dto"
	"github.com/noah-isme/sma-admission-api/internal/models"
)

// findTeacherConflict returns the first existing occurrence of the teacher's other classes
// that shares a weekday and start time with the candidate pattern inside [start, end].
func findTeacherConflict(slots []weeklySlot, start, end time.Time, existing []models.TeacherActivity) *dto.ClassConflict {
	from, to := dateOf(start), dateOf(end)
	for _, occurrence := range existing {
		date := dateOf(occurrence.Date)
		if date.Before(from) || date.After(to) {
			continue
		}
		day, ok := parseWeekday(occurrence.DayOfWeek)
		if !ok {
			continue
		}
		startAt, err := parseClock(occurrence.StartTime)
		if err != nil {
			continue
		}
		for _, slot := range slots {
			if slot.weekday != day || slot.start != startAt {
				continue
			}
			return &dto.ClassConflict{
				ClassID:   occurrence.ClassID,
				ClassName: occurrence.ClassName,
				DayOfWeek: weekdayNames[day],
				StartTime: startAt.String(),
				Message: fmt.Sprintf("teacher already teaches %s on %s at %s (%s)",
					occurrence.ClassName, weekdayNames[day], startAt.String(), date.Format("2006-01-02")),
			}
		}
	}
	return nil
}

// findSelectionConflict checks a candidate class against the classes already selected for
// one student. Classes whose date ranges do not overlap are skipped.
func findSelectionConflict(candidate models.Class, selected []models.Class) *dto.ClassConflict {
	for _, existing := range selected {
		if existing.ID == candidate.ID {
			return &dto.ClassConflict{
				ClassID:   existing.ID,
				ClassName: existing.Name,
				Message:   fmt.Sprintf("class %s is already selected", existing.Name),
			}
		}
	}

	for _, existing := range selected {
		if dateOf(candidate.StartDate).After(dateOf(existing.EndDate)) || dateOf(existing.StartDate).After(dateOf(candidate.EndDate)) {
			continue
		}
		for _, mine := range candidate.Patterns {
			myDay, myStart, myEnd, ok := patternWindow(mine)
			if !ok {
				continue
			}
			for _, theirs := range existing.Patterns {
				theirDay, theirStart, theirEnd, ok := patternWindow(theirs)
				if !ok || myDay != theirDay {
					continue
				}
				if myStart < theirEnd && theirStart < myEnd {
					return &dto.ClassConflict{
						ClassID:   existing.ID,
						ClassName: existing.Name,
						DayOfWeek: weekdayNames[theirDay],
						StartTime: theirStart.String(),
						EndTime:   theirEnd.String(),
						Message: fmt.Sprintf("class %s overlaps %s on %s %s-%s",
							candidate.Name, existing.Name, weekdayNames[theirDay], theirStart.String(), theirEnd.String()),
					}
				}
			}
		}
	}
	return nil
}

func patternWindow(pattern models.PatternActivity) (int, clockTime, clockTime, bool) {
	day, ok := parseWeekday(pattern.DayOfWeek)
	if !ok {
		return 0, 0, 0, false
	}
	start, err := parseClock(pattern.StartTime)
	if err != nil {
		return 0, 0, 0, false
	}
	end, err := parseClock(pattern.EndTime)
	if err != nil {
		return 0, 0, 0, false
	}
	return day, start, end, true
}
