package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-admission-api/internal/models"
)

const classColumns = `id, name, teacher_id, syllabus_id, academic_year, version, enrolled_count, start_date, end_date, number_of_weeks, status, created_at, updated_at`

// ErrClassNotFound is returned by ReserveSeat when the class does not exist.
var ErrClassNotFound = errors.New("class not found")

// ClassRepository manages persistence for classes and their generated calendars.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs a new class repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

func (r *ClassRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// TeacherScheduleCheck vets a teacher's existing occurrences before a new class is stored.
type TeacherScheduleCheck func(existing []models.TeacherActivity) error

// CreateVersioned inserts the class aggregate, assigning the next version for its
// (academic year, syllabus) pair and synthesizing the class name from it. The teacher's
// schedule is locked for the rest of the transaction and handed to check; an error from
// check is returned unchanged and nothing is written.
func (r *ClassRepository) CreateVersioned(ctx context.Context, class *models.Class, check TeacherScheduleCheck) (err error) {
	if class == nil {
		return fmt.Errorf("class payload is nil")
	}
	if class.Status == "" {
		class.Status = models.ClassStatusOpen
	}
	now := time.Now().UTC()
	class.CreatedAt = now
	class.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create class tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// Lock order is teacher, then version pair.
	if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, class.TeacherID); err != nil {
		return fmt.Errorf("lock teacher schedule: %w", err)
	}
	if check != nil {
		var existing []models.TeacherActivity
		if existing, err = r.ListTeacherActivities(ctx, tx, class.TeacherID, class.StartDate); err != nil {
			return err
		}
		if err = check(existing); err != nil {
			return err
		}
	}
	if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1, $2)`, class.AcademicYear, class.SyllabusID); err != nil {
		return fmt.Errorf("lock class version: %w", err)
	}
	const nextVersionQuery = `SELECT COALESCE(MAX(version), 0) + 1 FROM classes WHERE academic_year = $1 AND syllabus_id = $2`
	if err = tx.GetContext(ctx, &class.Version, nextVersionQuery, class.AcademicYear, class.SyllabusID); err != nil {
		return fmt.Errorf("compute next class version: %w", err)
	}
	class.Name = models.FormatClassName(class.SyllabusName, class.AcademicYear, class.Version)

	const insertClass = `INSERT INTO classes (name, teacher_id, syllabus_id, academic_year, version, enrolled_count, start_date, end_date, number_of_weeks, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) RETURNING id`
	if err = tx.QueryRowxContext(ctx, insertClass, class.Name, class.TeacherID, class.SyllabusID, class.AcademicYear, class.Version,
		class.EnrolledCount, class.StartDate, class.EndDate, class.NumberOfWeeks, class.Status, class.CreatedAt, class.UpdatedAt).Scan(&class.ID); err != nil {
		return fmt.Errorf("insert class: %w", err)
	}

	const insertPattern = `INSERT INTO class_pattern_activities (class_id, position, day_of_week, start_time, end_time) VALUES ($1, $2, $3, $4, $5) RETURNING id`
	for i := range class.Patterns {
		pattern := &class.Patterns[i]
		pattern.ClassID = class.ID
		if err = tx.QueryRowxContext(ctx, insertPattern, pattern.ClassID, pattern.Position, pattern.DayOfWeek, pattern.StartTime, pattern.EndTime).Scan(&pattern.ID); err != nil {
			return fmt.Errorf("insert class pattern activity: %w", err)
		}
	}

	const insertSchedule = `INSERT INTO class_schedules (class_id, week_number, title, start_date, end_date) VALUES ($1, $2, $3, $4, $5) RETURNING id`
	const insertActivity = `INSERT INTO class_activities (schedule_id, class_id, pattern_position, day_of_week, start_time, end_time, activity_date)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`
	for i := range class.Schedules {
		schedule := &class.Schedules[i]
		schedule.ClassID = class.ID
		if err = tx.QueryRowxContext(ctx, insertSchedule, schedule.ClassID, schedule.WeekNumber, schedule.Title, schedule.StartDate, schedule.EndDate).Scan(&schedule.ID); err != nil {
			return fmt.Errorf("insert class schedule: %w", err)
		}
		for j := range schedule.Activities {
			activity := &schedule.Activities[j]
			activity.ScheduleID = schedule.ID
			activity.ClassID = class.ID
			if err = tx.QueryRowxContext(ctx, insertActivity, activity.ScheduleID, activity.ClassID, activity.PatternPosition,
				activity.DayOfWeek, activity.StartTime, activity.EndTime, activity.Date).Scan(&activity.ID); err != nil {
				return fmt.Errorf("insert class activity: %w", err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create class tx: %w", err)
	}
	return nil
}

// FindByID returns a class row without its calendar.
func (r *ClassRepository) FindByID(ctx context.Context, id int64) (*models.Class, error) {
	query := `SELECT ` + classColumns + ` FROM classes WHERE id = $1`
	var class models.Class
	if err := r.db.GetContext(ctx, &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// FindWithSchedules returns a class with its pattern, weekly schedules and activities.
func (r *ClassRepository) FindWithSchedules(ctx context.Context, id int64) (*models.Class, error) {
	class, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	patterns, err := r.listPatterns(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	class.Patterns = patterns[id]

	const schedulesQuery = `SELECT id, class_id, week_number, title, start_date, end_date FROM class_schedules WHERE class_id = $1 ORDER BY week_number`
	var schedules []models.Schedule
	if err := r.db.SelectContext(ctx, &schedules, schedulesQuery, id); err != nil {
		return nil, fmt.Errorf("list class schedules: %w", err)
	}

	const activitiesQuery = `SELECT id, schedule_id, class_id, pattern_position, day_of_week, start_time, end_time, activity_date
FROM class_activities WHERE class_id = $1 ORDER BY activity_date, start_time`
	var activities []models.Activity
	if err := r.db.SelectContext(ctx, &activities, activitiesQuery, id); err != nil {
		return nil, fmt.Errorf("list class activities: %w", err)
	}

	bySchedule := make(map[int64][]models.Activity, len(schedules))
	for _, activity := range activities {
		bySchedule[activity.ScheduleID] = append(bySchedule[activity.ScheduleID], activity)
	}
	for i := range schedules {
		schedules[i].Activities = bySchedule[schedules[i].ID]
	}
	class.Schedules = schedules
	return class, nil
}

// ListByIDs returns the requested classes with their weekly patterns. Unknown ids are skipped.
func (r *ClassRepository) ListByIDs(ctx context.Context, ids []int64) ([]models.Class, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + classColumns + ` FROM classes WHERE id = ANY($1) ORDER BY id`
	var classes []models.Class
	if err := r.db.SelectContext(ctx, &classes, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("list classes by ids: %w", err)
	}
	patterns, err := r.listPatterns(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range classes {
		classes[i].Patterns = patterns[classes[i].ID]
	}
	return classes, nil
}

func (r *ClassRepository) listPatterns(ctx context.Context, classIDs []int64) (map[int64][]models.PatternActivity, error) {
	const query = `SELECT id, class_id, position, day_of_week, start_time, end_time FROM class_pattern_activities WHERE class_id = ANY($1) ORDER BY class_id, position`
	var rows []models.PatternActivity
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(classIDs)); err != nil {
		return nil, fmt.Errorf("list class pattern activities: %w", err)
	}
	result := make(map[int64][]models.PatternActivity, len(classIDs))
	for _, row := range rows {
		result[row.ClassID] = append(result[row.ClassID], row)
	}
	return result, nil
}

// ListTeacherActivities returns every generated occurrence of the teacher's classes that
// have not ended before the given date.
func (r *ClassRepository) ListTeacherActivities(ctx context.Context, exec sqlx.ExtContext, teacherID int64, from time.Time) ([]models.TeacherActivity, error) {
	const query = `SELECT c.id AS class_id, c.name AS class_name, a.day_of_week, a.start_time, a.activity_date
FROM class_activities a
JOIN classes c ON c.id = a.class_id
WHERE c.teacher_id = $1 AND c.end_date >= $2
ORDER BY a.activity_date, a.start_time`
	var activities []models.TeacherActivity
	if err := sqlx.SelectContext(ctx, r.exec(exec), &activities, query, teacherID, from); err != nil {
		return nil, fmt.Errorf("list teacher activities: %w", err)
	}
	return activities, nil
}

// ReserveSeat atomically increments the enrolled counter when the class is below capacity.
// It reports false when the class is full and ErrClassNotFound when it does not exist.
func (r *ClassRepository) ReserveSeat(ctx context.Context, exec sqlx.ExtContext, classID int64, capacity int) (bool, error) {
	target := r.exec(exec)
	const reserve = `UPDATE classes SET enrolled_count = enrolled_count + 1,
status = CASE WHEN enrolled_count + 1 >= $2 THEN $3 ELSE status END, updated_at = $4
WHERE id = $1 AND enrolled_count < $2 RETURNING enrolled_count`
	var enrolled int
	err := sqlx.GetContext(ctx, target, &enrolled, reserve, classID, capacity, models.ClassStatusFull, time.Now().UTC())
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("reserve class seat: %w", err)
	}

	var current int
	if err := sqlx.GetContext(ctx, target, &current, `SELECT enrolled_count FROM classes WHERE id = $1`, classID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, ErrClassNotFound
		}
		return false, fmt.Errorf("load class seat count: %w", err)
	}
	return false, nil
}
