package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/sma-admission-api/internal/models"
)

// ProcessedPaymentRepository stores the idempotency ledger for payment-success events.
type ProcessedPaymentRepository struct {
	db *sqlx.DB
}

// NewProcessedPaymentRepository constructs the repository.
func NewProcessedPaymentRepository(db *sqlx.DB) *ProcessedPaymentRepository {
	return &ProcessedPaymentRepository{db: db}
}

func (r *ProcessedPaymentRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Claim records the (form, txnRef) pair. It reports false when the pair was already claimed.
func (r *ProcessedPaymentRepository) Claim(ctx context.Context, exec sqlx.ExtContext, formID int64, txnRef string) (bool, error) {
	const query = `INSERT INTO processed_payments (admission_form_id, txn_ref, result, processed_at) VALUES ($1, $2, $3, $4)
ON CONFLICT (admission_form_id, txn_ref) DO NOTHING`
	result, err := r.exec(exec).ExecContext(ctx, query, formID, txnRef, types.JSONText(`{}`), time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("claim processed payment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("processed payment rows affected: %w", err)
	}
	return affected > 0, nil
}

// SaveResult stores the published outcome for later replays.
func (r *ProcessedPaymentRepository) SaveResult(ctx context.Context, exec sqlx.ExtContext, formID int64, txnRef string, payload types.JSONText) error {
	const query = `UPDATE processed_payments SET result = $1 WHERE admission_form_id = $2 AND txn_ref = $3`
	if _, err := r.exec(exec).ExecContext(ctx, query, payload, formID, txnRef); err != nil {
		return fmt.Errorf("save processed payment result: %w", err)
	}
	return nil
}

// Find loads a previously processed payment.
func (r *ProcessedPaymentRepository) Find(ctx context.Context, formID int64, txnRef string) (*models.ProcessedPayment, error) {
	const query = `SELECT admission_form_id, txn_ref, result, processed_at FROM processed_payments WHERE admission_form_id = $1 AND txn_ref = $2`
	var payment models.ProcessedPayment
	if err := r.db.GetContext(ctx, &payment, query, formID, txnRef); err != nil {
		return nil, err
	}
	return &payment, nil
}
