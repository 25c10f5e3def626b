package models

import "time"

// TermStatus tracks an admission window through its time-driven lifecycle.
type TermStatus string

const (
	TermStatusPending    TermStatus = "pending"
	TermStatusProcessing TermStatus = "processing"
	TermStatusDone       TermStatus = "done"
	TermStatusBlocked    TermStatus = "blocked"
)

// IsTerminal reports whether no further transition is possible.
func (s TermStatus) IsTerminal() bool {
	return s == TermStatusDone || s == TermStatusBlocked
}

// SeatsPerClass is the registration capacity contributed by one expected class.
const SeatsPerClass = 30

// AdmissionTerm groups grade-scoped admission windows.
type AdmissionTerm struct {
	ID                int64      `db:"id" json:"id"`
	Name              string     `db:"name" json:"name"`
	AcademicYear      string     `db:"academic_year" json:"academic_year"`
	StartDate         time.Time  `db:"start_date" json:"start_date"`
	EndDate           time.Time  `db:"end_date" json:"end_date"`
	Status            TermStatus `db:"status" json:"status"`
	MaxRegistration   int        `db:"max_registration" json:"max_registration"`
	CurrentRegistered int        `db:"current_registered" json:"current_registered"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
	Items             []TermItem `db:"-" json:"items,omitempty"`
}

// RemainingSeats returns how many registrations the term can still accept.
func (t *AdmissionTerm) RemainingSeats() int {
	remaining := t.MaxRegistration - t.CurrentRegistered
	if remaining < 0 {
		return 0
	}
	return remaining
}

// TermItem is one grade's enrollment window within an admission term.
type TermItem struct {
	ID                int64      `db:"id" json:"id"`
	AdmissionTermID   int64      `db:"admission_term_id" json:"admission_term_id"`
	Grade             string     `db:"grade" json:"grade"`
	StartDate         time.Time  `db:"start_date" json:"start_date"`
	EndDate           time.Time  `db:"end_date" json:"end_date"`
	ExpectedClasses   int        `db:"expected_classes" json:"expected_classes"`
	MaxRegistration   int        `db:"max_registration" json:"max_registration"`
	CurrentRegistered int        `db:"current_registered" json:"current_registered"`
	Status            TermStatus `db:"status" json:"status"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// IsOpen reports whether the window currently accepts submissions.
func (i *TermItem) IsOpen() bool {
	return i.Status == TermStatusProcessing
}

// RemainingSeats returns how many more students the window can take.
func (i *TermItem) RemainingSeats() int {
	remaining := i.MaxRegistration - i.CurrentRegistered
	if remaining < 0 {
		return 0
	}
	return remaining
}

// TermStatusChange records a single applied transition.
type TermStatusChange struct {
	ID   int64      `json:"id"`
	From TermStatus `json:"from"`
	To   TermStatus `json:"to"`
}
