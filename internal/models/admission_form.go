package models

import (
	"time"

	"github.com/lib/pq"
)

// AdmissionFormStatus represents the approval/payment lifecycle of a form.
type AdmissionFormStatus string

const (
	FormStatusWaitingForApprove AdmissionFormStatus = "waiting_for_approve"
	FormStatusWaitingForPayment AdmissionFormStatus = "waiting_for_payment"
	FormStatusPaymentInProgress AdmissionFormStatus = "payment_in_progress"
	FormStatusApproved          AdmissionFormStatus = "approved"
	FormStatusRejected          AdmissionFormStatus = "rejected"
	FormStatusOverDueDate       AdmissionFormStatus = "over_due_date"
)

// IsTerminal reports whether the form can no longer change state.
func (s AdmissionFormStatus) IsTerminal() bool {
	switch s {
	case FormStatusApproved, FormStatusRejected, FormStatusOverDueDate:
		return true
	}
	return false
}

// OpenFormStatuses lists statuses that block a duplicate submission.
var OpenFormStatuses = []AdmissionFormStatus{
	FormStatusWaitingForApprove,
	FormStatusWaitingForPayment,
	FormStatusPaymentInProgress,
}

// ExpirableFormStatuses lists statuses the expiry job moves to over_due_date.
var ExpirableFormStatuses = []AdmissionFormStatus{
	FormStatusWaitingForApprove,
	FormStatusWaitingForPayment,
}

// DefaultRejectReason is stamped when an administrator rejects without a reason.
const DefaultRejectReason = "Your admission form has been rejected"

// AdmissionForm is one student's application against a term item.
type AdmissionForm struct {
	ID               int64               `db:"id" json:"id"`
	TermItemID       int64               `db:"term_item_id" json:"term_item_id"`
	StudentID        int64               `db:"student_id" json:"student_id"`
	ParentID         int64               `db:"parent_id" json:"parent_id"`
	StudentName      string              `db:"student_name" json:"student_name"`
	ClassIDs         pq.Int64Array       `db:"class_ids" json:"class_ids"`
	EnrolledClassIDs pq.Int64Array       `db:"enrolled_class_ids" json:"enrolled_class_ids"`
	Status           AdmissionFormStatus `db:"status" json:"status"`
	SubmittedAt      time.Time           `db:"submitted_at" json:"submitted_at"`
	ApprovedAt       *time.Time          `db:"approved_at" json:"approved_at,omitempty"`
	CancelReason     *string             `db:"cancel_reason" json:"cancel_reason,omitempty"`
	PaymentExpiresAt *time.Time          `db:"payment_expires_at" json:"payment_expires_at,omitempty"`
	TxnRef           *string             `db:"txn_ref" json:"txn_ref,omitempty"`
	CreatedAt        time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time           `db:"updated_at" json:"updated_at"`
}

// Approve moves the form to waiting_for_payment, stamping the approval time and the
// payment deadline (the owning window's end date).
func (f *AdmissionForm) Approve(now, paymentDeadline time.Time) {
	f.Status = FormStatusWaitingForPayment
	approved := now
	f.ApprovedAt = &approved
	if !paymentDeadline.IsZero() {
		deadline := paymentDeadline
		f.PaymentExpiresAt = &deadline
	}
}

// Reject moves the form to rejected with the given reason or the default one.
func (f *AdmissionForm) Reject(reason string) {
	if reason == "" {
		reason = DefaultRejectReason
	}
	f.Status = FormStatusRejected
	f.CancelReason = &reason
}

// BeginPayment marks the payment as handed to the gateway.
func (f *AdmissionForm) BeginPayment(txnRef string) {
	f.Status = FormStatusPaymentInProgress
	if txnRef != "" {
		f.TxnRef = &txnRef
	}
}

// RevertPayment undoes BeginPayment after a gateway timeout.
func (f *AdmissionForm) RevertPayment() {
	f.Status = FormStatusWaitingForPayment
}

// CompleteEnrollment records the classes that hold a seat. Without any seat the form is rejected.
func (f *AdmissionForm) CompleteEnrollment(enrolled []int64, reason string) {
	f.EnrolledClassIDs = pq.Int64Array(enrolled)
	if len(enrolled) == 0 {
		f.Reject(reason)
		return
	}
	f.Status = FormStatusApproved
}
