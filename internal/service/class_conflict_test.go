package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-admission-api/internal/models"
)

func slot(day int, startHour int) weeklySlot {
	return weeklySlot{weekday: day, start: clockTime(startHour * 60), end: clockTime((startHour + 1) * 60)}
}

func TestFindTeacherConflict(t *testing.T) {
	end := monday.AddDate(0, 0, 20)
	slots := []weeklySlot{slot(1, 8), slot(3, 9)}

	t.Run("same weekday and start inside range", func(t *testing.T) {
		existing := []models.TeacherActivity{
			{ClassID: 7, ClassName: "Class Math_2026_v1", DayOfWeek: "Wednesday", StartTime: "09:00", Date: monday.AddDate(0, 0, 9)},
		}
		conflict := findTeacherConflict(slots, monday, end, existing)
		require.NotNil(t, conflict)
		assert.Equal(t, int64(7), conflict.ClassID)
		assert.Equal(t, "Wednesday", conflict.DayOfWeek)
		assert.Equal(t, "09:00", conflict.StartTime)
		assert.Contains(t, conflict.Message, "Class Math_2026_v1")
	})

	t.Run("different start time", func(t *testing.T) {
		existing := []models.TeacherActivity{
			{ClassID: 7, DayOfWeek: "Wednesday", StartTime: "10:00", Date: monday.AddDate(0, 0, 2)},
		}
		assert.Nil(t, findTeacherConflict(slots, monday, end, existing))
	})

	t.Run("occurrence outside range", func(t *testing.T) {
		existing := []models.TeacherActivity{
			{ClassID: 7, DayOfWeek: "Monday", StartTime: "08:00", Date: monday.AddDate(0, 0, -7)},
			{ClassID: 8, DayOfWeek: "Monday", StartTime: "08:00:00", Date: end.AddDate(0, 0, 1)},
		}
		assert.Nil(t, findTeacherConflict(slots, monday, end, existing))
	})

	t.Run("range bounds are inclusive", func(t *testing.T) {
		existing := []models.TeacherActivity{
			{ClassID: 9, DayOfWeek: "MONDAY", StartTime: "08:00:00", Date: monday.Add(14 * time.Hour)},
		}
		conflict := findTeacherConflict(slots, monday, end, existing)
		require.NotNil(t, conflict)
		assert.Equal(t, int64(9), conflict.ClassID)
		assert.Equal(t, "Monday", conflict.DayOfWeek)
	})
}

func selectable(id int64, start time.Time, weeks int, patterns ...models.PatternActivity) models.Class {
	return models.Class{
		ID:        id,
		Name:      models.FormatClassName("Course", 2026, int(id)),
		StartDate: start,
		EndDate:   start.AddDate(0, 0, weeks*7-1),
		Patterns:  patterns,
	}
}

func pattern(day, start, end string) models.PatternActivity {
	return models.PatternActivity{DayOfWeek: day, StartTime: start, EndTime: end}
}

func TestFindSelectionConflict(t *testing.T) {
	t.Run("already selected", func(t *testing.T) {
		existing := selectable(1, monday, 4, pattern("Monday", "08:00", "09:00"))
		conflict := findSelectionConflict(existing, []models.Class{existing})
		require.NotNil(t, conflict)
		assert.Equal(t, int64(1), conflict.ClassID)
		assert.Contains(t, conflict.Message, "already selected")
	})

	t.Run("overlapping interval on same weekday", func(t *testing.T) {
		existing := selectable(1, monday, 4, pattern("Monday", "08:00", "09:00"), pattern("Wednesday", "09:00", "10:00"))
		candidate := selectable(2, monday.AddDate(0, 0, 7), 4, pattern("Wednesday", "09:00", "10:00"))
		conflict := findSelectionConflict(candidate, []models.Class{existing})
		require.NotNil(t, conflict)
		assert.Equal(t, int64(1), conflict.ClassID)
		assert.Equal(t, "Wednesday", conflict.DayOfWeek)
		assert.Equal(t, "09:00", conflict.StartTime)
		assert.Equal(t, "10:00", conflict.EndTime)
	})

	t.Run("adjacent sessions do not clash", func(t *testing.T) {
		existing := selectable(1, monday, 4, pattern("Monday", "08:00", "09:00"))
		candidate := selectable(2, monday, 4, pattern("Monday", "09:00", "10:00"))
		assert.Nil(t, findSelectionConflict(candidate, []models.Class{existing}))
	})

	t.Run("different weekday", func(t *testing.T) {
		existing := selectable(1, monday, 4, pattern("Monday", "08:00", "09:00"))
		candidate := selectable(2, monday, 4, pattern("Tuesday", "08:00", "09:00"))
		assert.Nil(t, findSelectionConflict(candidate, []models.Class{existing}))
	})

	t.Run("non overlapping date ranges are skipped", func(t *testing.T) {
		existing := selectable(1, monday, 2, pattern("Monday", "08:00", "09:00"))
		candidate := selectable(2, monday.AddDate(0, 0, 28), 2, pattern("Monday", "08:00", "09:00"))
		assert.Nil(t, findSelectionConflict(candidate, []models.Class{existing}))
	})

	t.Run("first clash in selection order wins", func(t *testing.T) {
		first := selectable(1, monday, 4, pattern("Friday", "13:00", "14:00"))
		second := selectable(3, monday, 4, pattern("Friday", "13:00", "14:00"))
		candidate := selectable(2, monday, 4, pattern("Friday", "13:00", "14:00"))
		conflict := findSelectionConflict(candidate, []models.Class{first, second})
		require.NotNil(t, conflict)
		assert.Equal(t, int64(1), conflict.ClassID)
	})
}
