package dto

import "time"

// CreateTermItemRequest describes one grade-scoped enrollment window.
type CreateTermItemRequest struct {
	Grade           string    `json:"grade" validate:"required"`
	StartDate       time.Time `json:"startDate" validate:"required"`
	EndDate         time.Time `json:"endDate" validate:"required"`
	ExpectedClasses int       `json:"expectedClasses" validate:"required,min=1"`
}

// CreateAdmissionTermRequest creates a term together with its items.
type CreateAdmissionTermRequest struct {
	Name         string                  `json:"name" validate:"required"`
	AcademicYear string                  `json:"academicYear" validate:"required"`
	StartDate    time.Time               `json:"startDate" validate:"required"`
	EndDate      time.Time               `json:"endDate" validate:"required"`
	Items        []CreateTermItemRequest `json:"items" validate:"required,min=1,dive"`
}

// SubmitAdmissionFormRequest is a parent's application for a student.
type SubmitAdmissionFormRequest struct {
	TermItemID int64   `json:"termItemId" validate:"required,min=1"`
	StudentID  int64   `json:"studentId" validate:"required,min=1"`
	ParentID   int64   `json:"parentId" validate:"required,min=1"`
	ClassIDs   []int64 `json:"classIds" validate:"omitempty,dive,min=1"`
}

// Decision actions accepted by the form decision endpoint.
const (
	DecisionApprove = "approve"
	DecisionReject  = "reject"
)

// DecideAdmissionFormRequest approves or rejects a submitted form.
type DecideAdmissionFormRequest struct {
	Action string `json:"action" validate:"required"`
	Reason string `json:"reason"`
}

// BeginPaymentRequest marks a form as handed off to the payment gateway.
type BeginPaymentRequest struct {
	TxnRef string `json:"txnRef"`
}
