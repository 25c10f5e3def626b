package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-admission-api/internal/models"
)

const (
	admissionTermColumns = `id, name, academic_year, start_date, end_date, status, max_registration, current_registered, created_at, updated_at`
	termItemColumns      = `id, admission_term_id, grade, start_date, end_date, expected_classes, max_registration, current_registered, status, created_at, updated_at`
)

// AdmissionTermRepository persists admission terms and their grade items.
type AdmissionTermRepository struct {
	db *sqlx.DB
}

// NewAdmissionTermRepository instantiates an admission term repository.
func NewAdmissionTermRepository(db *sqlx.DB) *AdmissionTermRepository {
	return &AdmissionTermRepository{db: db}
}

func (r *AdmissionTermRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// CreateWithItems inserts a term and all of its items in one transaction.
func (r *AdmissionTermRepository) CreateWithItems(ctx context.Context, term *models.AdmissionTerm) (err error) {
	if term == nil {
		return fmt.Errorf("admission term payload is nil")
	}
	now := time.Now().UTC()
	term.CreatedAt = now
	term.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create admission term tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insertTerm = `INSERT INTO admission_terms (name, academic_year, start_date, end_date, status, max_registration, current_registered, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`
	if err = tx.QueryRowxContext(ctx, insertTerm, term.Name, term.AcademicYear, term.StartDate, term.EndDate, term.Status,
		term.MaxRegistration, term.CurrentRegistered, term.CreatedAt, term.UpdatedAt).Scan(&term.ID); err != nil {
		return fmt.Errorf("insert admission term: %w", err)
	}

	const insertItem = `INSERT INTO admission_term_items (admission_term_id, grade, start_date, end_date, expected_classes, max_registration, current_registered, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`
	for i := range term.Items {
		item := &term.Items[i]
		item.AdmissionTermID = term.ID
		item.CreatedAt = now
		item.UpdatedAt = now
		if err = tx.QueryRowxContext(ctx, insertItem, item.AdmissionTermID, item.Grade, item.StartDate, item.EndDate,
			item.ExpectedClasses, item.MaxRegistration, item.CurrentRegistered, item.Status, item.CreatedAt, item.UpdatedAt).Scan(&item.ID); err != nil {
			return fmt.Errorf("insert admission term item: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create admission term tx: %w", err)
	}
	return nil
}

// FindByID loads a term with its items.
func (r *AdmissionTermRepository) FindByID(ctx context.Context, id int64) (*models.AdmissionTerm, error) {
	query := `SELECT ` + admissionTermColumns + ` FROM admission_terms WHERE id = $1`
	var term models.AdmissionTerm
	if err := r.db.GetContext(ctx, &term, query, id); err != nil {
		return nil, err
	}
	items, err := r.ListItems(ctx, id)
	if err != nil {
		return nil, err
	}
	term.Items = items
	return &term, nil
}

// ListItems returns the items of a term ordered by window start.
func (r *AdmissionTermRepository) ListItems(ctx context.Context, termID int64) ([]models.TermItem, error) {
	query := `SELECT ` + termItemColumns + ` FROM admission_term_items WHERE admission_term_id = $1 ORDER BY start_date, id`
	var items []models.TermItem
	if err := r.db.SelectContext(ctx, &items, query, termID); err != nil {
		return nil, fmt.Errorf("list admission term items: %w", err)
	}
	return items, nil
}

// FindActive returns the most recent term currently in processing. When exec is a
// transaction the row is locked until it ends.
func (r *AdmissionTermRepository) FindActive(ctx context.Context, exec sqlx.ExtContext) (*models.AdmissionTerm, error) {
	query := `SELECT ` + admissionTermColumns + ` FROM admission_terms WHERE status = $1 ORDER BY start_date DESC, id DESC LIMIT 1`
	if exec != nil {
		query += ` FOR UPDATE`
	}
	var term models.AdmissionTerm
	if err := sqlx.GetContext(ctx, r.exec(exec), &term, query, models.TermStatusProcessing); err != nil {
		return nil, err
	}
	return &term, nil
}

// FindItemByID loads a single term item.
func (r *AdmissionTermRepository) FindItemByID(ctx context.Context, id int64) (*models.TermItem, error) {
	query := `SELECT ` + termItemColumns + ` FROM admission_term_items WHERE id = $1`
	var item models.TermItem
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		return nil, err
	}
	return &item, nil
}

// ListOpenTerms returns every term that has not reached a terminal status.
func (r *AdmissionTermRepository) ListOpenTerms(ctx context.Context) ([]models.AdmissionTerm, error) {
	query := `SELECT ` + admissionTermColumns + ` FROM admission_terms WHERE status IN ($1, $2) ORDER BY id`
	var terms []models.AdmissionTerm
	if err := r.db.SelectContext(ctx, &terms, query, models.TermStatusPending, models.TermStatusProcessing); err != nil {
		return nil, fmt.Errorf("list open admission terms: %w", err)
	}
	return terms, nil
}

// ListOpenItems returns every term item that has not reached a terminal status.
func (r *AdmissionTermRepository) ListOpenItems(ctx context.Context) ([]models.TermItem, error) {
	query := `SELECT ` + termItemColumns + ` FROM admission_term_items WHERE status IN ($1, $2) ORDER BY id`
	var items []models.TermItem
	if err := r.db.SelectContext(ctx, &items, query, models.TermStatusPending, models.TermStatusProcessing); err != nil {
		return nil, fmt.Errorf("list open admission term items: %w", err)
	}
	return items, nil
}

// TransitionTerm moves a term from one status to another. It reports false when the
// term was no longer in the expected status.
func (r *AdmissionTermRepository) TransitionTerm(ctx context.Context, id int64, from, to models.TermStatus) (bool, error) {
	const query = `UPDATE admission_terms SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`
	return r.transition(ctx, query, "admission term", id, from, to)
}

// TransitionItem moves a term item from one status to another. It reports false when the
// item was no longer in the expected status.
func (r *AdmissionTermRepository) TransitionItem(ctx context.Context, id int64, from, to models.TermStatus) (bool, error) {
	const query = `UPDATE admission_term_items SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`
	return r.transition(ctx, query, "admission term item", id, from, to)
}

func (r *AdmissionTermRepository) transition(ctx context.Context, query, label string, id int64, from, to models.TermStatus) (bool, error) {
	result, err := r.db.ExecContext(ctx, query, to, time.Now().UTC(), id, from)
	if err != nil {
		return false, fmt.Errorf("transition %s: %w", label, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s rows affected: %w", label, err)
	}
	return affected > 0, nil
}

// IncrementRegistered adds n registrations to the term without exceeding its maximum.
// It reports false when the increment would overflow the capacity.
func (r *AdmissionTermRepository) IncrementRegistered(ctx context.Context, exec sqlx.ExtContext, termID int64, n int) (bool, error) {
	if n <= 0 {
		return true, nil
	}
	const query = `UPDATE admission_terms SET current_registered = current_registered + $1, updated_at = $2
WHERE id = $3 AND current_registered + $1 <= max_registration`
	result, err := r.exec(exec).ExecContext(ctx, query, n, time.Now().UTC(), termID)
	if err != nil {
		return false, fmt.Errorf("increment admission term registrations: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("admission term registrations rows affected: %w", err)
	}
	return affected > 0, nil
}

// FindItemForForm locks the term item an admission form was submitted against.
func (r *AdmissionTermRepository) FindItemForForm(ctx context.Context, exec sqlx.ExtContext, formID int64) (*models.TermItem, error) {
	query := `SELECT ` + termItemColumns + ` FROM admission_term_items
WHERE id = (SELECT term_item_id FROM admission_forms WHERE id = $1) FOR UPDATE`
	var item models.TermItem
	if err := sqlx.GetContext(ctx, r.exec(exec), &item, query, formID); err != nil {
		return nil, err
	}
	return &item, nil
}

// IncrementItemRegistered adds n registrations to a grade window without exceeding its maximum.
func (r *AdmissionTermRepository) IncrementItemRegistered(ctx context.Context, exec sqlx.ExtContext, itemID int64, n int) (bool, error) {
	if n <= 0 {
		return true, nil
	}
	const query = `UPDATE admission_term_items SET current_registered = current_registered + $1, updated_at = $2
WHERE id = $3 AND current_registered + $1 <= max_registration`
	result, err := r.exec(exec).ExecContext(ctx, query, n, time.Now().UTC(), itemID)
	if err != nil {
		return false, fmt.Errorf("increment term item registrations: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("term item registrations rows affected: %w", err)
	}
	return affected > 0, nil
}
