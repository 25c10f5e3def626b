package dto

import "time"

// PaymentSuccessEvent is emitted by the payment subdomain once a transaction settles.
type PaymentSuccessEvent struct {
	AdmissionFormID int64      `json:"admissionFormId" validate:"required,min=1"`
	ClassIDs        []int64    `json:"classIds" validate:"required,min=1,dive,min=1"`
	Amount          int64      `json:"amount" validate:"min=0"`
	TxnRef          string     `json:"txnRef" validate:"required"`
	PayDate         *time.Time `json:"payDate,omitempty"`
}

// PaymentTimeoutEvent signals that the payment window for a form lapsed without settlement.
type PaymentTimeoutEvent struct {
	AdmissionFormID int64 `json:"admissionFormId" validate:"required,min=1"`
}

// ClassProcessResultEvent reports which classes actually hold a seat after a payment.
type ClassProcessResultEvent struct {
	AdmissionFormID    int64   `json:"admissionFormId"`
	SuccessfulClassIDs []int64 `json:"successfulClassIds"`
	FailedClassIDs     []int64 `json:"failedClassIds"`
	TxnRef             string  `json:"txnRef"`
	Amount             int64   `json:"amount"`
	Reason             string  `json:"reason"`
}

// AllOK reports whether every requested class was enrolled.
func (e ClassProcessResultEvent) AllOK() bool {
	return len(e.FailedClassIDs) == 0
}
