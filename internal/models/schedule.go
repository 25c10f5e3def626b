package models

import "time"

// Schedule is one Monday–Sunday week of a class's dated sessions.
type Schedule struct {
	ID         int64      `db:"id" json:"id"`
	ClassID    int64      `db:"class_id" json:"class_id"`
	WeekNumber int        `db:"week_number" json:"week_number"`
	Title      string     `db:"title" json:"title"`
	StartDate  time.Time  `db:"start_date" json:"start_date"`
	EndDate    time.Time  `db:"end_date" json:"end_date"`
	Activities []Activity `db:"-" json:"activities"`
}

// Activity is a single dated, timed occurrence generated from one PatternActivity.
type Activity struct {
	ID              int64     `db:"id" json:"id"`
	ScheduleID      int64     `db:"schedule_id" json:"schedule_id"`
	ClassID         int64     `db:"class_id" json:"class_id"`
	PatternPosition int       `db:"pattern_position" json:"pattern_position"`
	DayOfWeek       string    `db:"day_of_week" json:"day_of_week"`
	StartTime       string    `db:"start_time" json:"start_time"`
	EndTime         string    `db:"end_time" json:"end_time"`
	Date            time.Time `db:"activity_date" json:"date"`
}
