package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// ProcessedPayment is the idempotency record for a handled payment-success event.
type ProcessedPayment struct {
	AdmissionFormID int64          `db:"admission_form_id" json:"admission_form_id"`
	TxnRef          string         `db:"txn_ref" json:"txn_ref"`
	Result          types.JSONText `db:"result" json:"result"`
	ProcessedAt     time.Time      `db:"processed_at" json:"processed_at"`
}
