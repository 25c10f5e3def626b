package dto

import "time"

// PatternActivityRequest is one weekly recurring session template.
type PatternActivityRequest struct {
	DayOfWeek string `json:"dayOfWeek" validate:"required"`
	StartTime string `json:"startTime" validate:"required"`
	EndTime   string `json:"endTime" validate:"required"`
}

// CreateClassRequest builds a class from a syllabus and a weekly pattern.
type CreateClassRequest struct {
	TeacherID    int64                    `json:"teacherId" validate:"required,min=1"`
	SyllabusID   int64                    `json:"syllabusId" validate:"required,min=1"`
	AcademicYear int                      `json:"academicYear" validate:"required,min=2000"`
	StartDate    time.Time                `json:"startDate" validate:"required"`
	Patterns     []PatternActivityRequest `json:"patterns"`
}

// SelectClassRequest adds a candidate class to a student's current selection.
type SelectClassRequest struct {
	ClassID          int64   `json:"classId" validate:"required,min=1"`
	SelectedClassIDs []int64 `json:"selectedClassIds" validate:"omitempty,dive,min=1"`
}

// ClassConflict describes the first clash found between two weekly patterns.
type ClassConflict struct {
	ClassID   int64  `json:"classId"`
	ClassName string `json:"className,omitempty"`
	DayOfWeek string `json:"dayOfWeek"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime,omitempty"`
	Message   string `json:"message"`
}

// SelectClassResponse returns the accumulated selection, or the conflict that blocked it.
type SelectClassResponse struct {
	ClassIDs []int64        `json:"classIds"`
	Conflict *ClassConflict `json:"conflict,omitempty"`
}
