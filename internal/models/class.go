package models

import (
	"fmt"
	"time"
)

// ClassStatus tracks whether a class still accepts enrollment.
type ClassStatus string

const (
	ClassStatusOpen ClassStatus = "open"
	ClassStatusFull ClassStatus = "full"
)

// DefaultClassCapacity caps the enrolled-student counter of a class.
const DefaultClassCapacity = 30

// Class is a teacher's run of a syllabus, expanded from a weekly pattern into dated schedules.
type Class struct {
	ID            int64             `db:"id" json:"id"`
	Name          string            `db:"name" json:"name"`
	TeacherID     int64             `db:"teacher_id" json:"teacher_id"`
	SyllabusID    int64             `db:"syllabus_id" json:"syllabus_id"`
	AcademicYear  int               `db:"academic_year" json:"academic_year"`
	Version       int               `db:"version" json:"version"`
	EnrolledCount int               `db:"enrolled_count" json:"enrolled_count"`
	StartDate     time.Time         `db:"start_date" json:"start_date"`
	EndDate       time.Time         `db:"end_date" json:"end_date"`
	NumberOfWeeks int               `db:"number_of_weeks" json:"number_of_weeks"`
	Status        ClassStatus       `db:"status" json:"status"`
	CreatedAt     time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time         `db:"updated_at" json:"updated_at"`
	SyllabusName  string            `db:"-" json:"syllabus_name,omitempty"`
	TeacherName   string            `db:"-" json:"teacher_name,omitempty"`
	Patterns      []PatternActivity `db:"-" json:"patterns,omitempty"`
	Schedules     []Schedule        `db:"-" json:"schedules,omitempty"`
}

// FormatClassName synthesizes the display name scoped by academic year and version.
func FormatClassName(syllabusName string, academicYear, version int) string {
	return fmt.Sprintf("Class %s_%d_v%d", syllabusName, academicYear, version)
}

// PatternActivity is a weekly recurring template a class's sessions follow.
type PatternActivity struct {
	ID        int64  `db:"id" json:"id"`
	ClassID   int64  `db:"class_id" json:"class_id"`
	Position  int    `db:"position" json:"position"`
	DayOfWeek string `db:"day_of_week" json:"day_of_week"`
	StartTime string `db:"start_time" json:"start_time"`
	EndTime   string `db:"end_time" json:"end_time"`
}

// Syllabus is the read-only curriculum reference a class is built from.
type Syllabus struct {
	ID              int64  `db:"id" json:"id"`
	Name            string `db:"name" json:"name"`
	HoursOfSyllabus int    `db:"hours_of_syllabus" json:"hours_of_syllabus"`
	Cost            int64  `db:"cost" json:"cost"`
}

// TeacherActivity is an existing dated session owned by a teacher, used for conflict checks.
type TeacherActivity struct {
	ClassID   int64     `db:"class_id" json:"class_id"`
	ClassName string    `db:"class_name" json:"class_name"`
	DayOfWeek string    `db:"day_of_week" json:"day_of_week"`
	StartTime string    `db:"start_time" json:"start_time"`
	Date      time.Time `db:"activity_date" json:"date"`
}
