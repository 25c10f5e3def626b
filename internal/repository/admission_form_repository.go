package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-admission-api/internal/models"
)

const admissionFormColumns = `id, term_item_id, student_id, parent_id, student_name, class_ids, enrolled_class_ids, status, submitted_at, approved_at, cancel_reason, payment_expires_at, txn_ref, created_at, updated_at`

// ErrOpenFormExists is returned by Create when the student already holds an open form
// for the term item.
var ErrOpenFormExists = errors.New("open admission form already exists")

const openFormIndex = "uq_admission_forms_open_item_student"

// AdmissionFormRepository persists admission forms.
type AdmissionFormRepository struct {
	db *sqlx.DB
}

// NewAdmissionFormRepository constructs an admission form repository.
func NewAdmissionFormRepository(db *sqlx.DB) *AdmissionFormRepository {
	return &AdmissionFormRepository{db: db}
}

// Create inserts a new form and assigns its identifier.
func (r *AdmissionFormRepository) Create(ctx context.Context, form *models.AdmissionForm) error {
	now := time.Now().UTC()
	if form.SubmittedAt.IsZero() {
		form.SubmittedAt = now
	}
	form.CreatedAt = now
	form.UpdatedAt = now
	if form.ClassIDs == nil {
		form.ClassIDs = pq.Int64Array{}
	}
	if form.EnrolledClassIDs == nil {
		form.EnrolledClassIDs = pq.Int64Array{}
	}

	const query = `INSERT INTO admission_forms (term_item_id, student_id, parent_id, student_name, class_ids, enrolled_class_ids, status, submitted_at, created_at, updated_at)
VALUES (:term_item_id, :student_id, :parent_id, :student_name, :class_ids, :enrolled_class_ids, :status, :submitted_at, :created_at, :updated_at) RETURNING id`
	rows, err := r.db.NamedQueryContext(ctx, query, form)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" && pqErr.Constraint == openFormIndex {
			return ErrOpenFormExists
		}
		return fmt.Errorf("create admission form: %w", err)
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&form.ID); err != nil {
			return fmt.Errorf("scan admission form id: %w", err)
		}
	}
	return rows.Err()
}

// FindByID loads a form by identifier.
func (r *AdmissionFormRepository) FindByID(ctx context.Context, id int64) (*models.AdmissionForm, error) {
	query := `SELECT ` + admissionFormColumns + ` FROM admission_forms WHERE id = $1`
	var form models.AdmissionForm
	if err := r.db.GetContext(ctx, &form, query, id); err != nil {
		return nil, err
	}
	return &form, nil
}

// ExistsOpen reports whether the student already has a non-terminal form for the term item.
func (r *AdmissionFormRepository) ExistsOpen(ctx context.Context, termItemID, studentID int64) (bool, error) {
	statuses := make([]string, 0, len(models.OpenFormStatuses))
	for _, status := range models.OpenFormStatuses {
		statuses = append(statuses, string(status))
	}
	const query = `SELECT EXISTS (SELECT 1 FROM admission_forms WHERE term_item_id = $1 AND student_id = $2 AND status = ANY($3))`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, termItemID, studentID, pq.Array(statuses)); err != nil {
		return false, fmt.Errorf("check open admission form: %w", err)
	}
	return exists, nil
}

// Update writes the mutable lifecycle fields of a form, guarded on its previous status.
// It reports false when another writer changed the status first.
func (r *AdmissionFormRepository) Update(ctx context.Context, form *models.AdmissionForm, expected models.AdmissionFormStatus) (bool, error) {
	form.UpdatedAt = time.Now().UTC()
	if form.EnrolledClassIDs == nil {
		form.EnrolledClassIDs = pq.Int64Array{}
	}
	const query = `UPDATE admission_forms SET status = $1, approved_at = $2, cancel_reason = $3, payment_expires_at = $4, txn_ref = $5, enrolled_class_ids = $6, updated_at = $7
WHERE id = $8 AND status = $9`
	result, err := r.db.ExecContext(ctx, query, form.Status, form.ApprovedAt, form.CancelReason, form.PaymentExpiresAt,
		form.TxnRef, form.EnrolledClassIDs, form.UpdatedAt, form.ID, expected)
	if err != nil {
		return false, fmt.Errorf("update admission form: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("admission form rows affected: %w", err)
	}
	return affected > 0, nil
}

// ExpireOverdue moves every waiting form whose owning window ended before now to
// over_due_date and returns the affected ids.
func (r *AdmissionFormRepository) ExpireOverdue(ctx context.Context, now time.Time) ([]int64, error) {
	statuses := make([]string, 0, len(models.ExpirableFormStatuses))
	for _, status := range models.ExpirableFormStatuses {
		statuses = append(statuses, string(status))
	}
	const query = `UPDATE admission_forms f SET status = $1, updated_at = $2
FROM admission_term_items ti
WHERE ti.id = f.term_item_id AND ti.end_date < $2 AND f.status = ANY($3)
RETURNING f.id`
	var ids []int64
	if err := r.db.SelectContext(ctx, &ids, query, models.FormStatusOverDueDate, now, pq.Array(statuses)); err != nil {
		return nil, fmt.Errorf("expire overdue admission forms: %w", err)
	}
	return ids, nil
}
