package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-admission-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestAdmissionTermRepositoryCreateWithItems(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAdmissionTermRepository(db)

	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	term := &models.AdmissionTerm{
		Name:            "Intake 2026",
		AcademicYear:    "2026/2027",
		StartDate:       start,
		EndDate:         start.AddDate(0, 1, 0),
		Status:          models.TermStatusPending,
		MaxRegistration: 60,
		Items: []models.TermItem{
			{Grade: "10", StartDate: start, EndDate: start.AddDate(0, 0, 14), ExpectedClasses: 2, MaxRegistration: 60, Status: models.TermStatusPending},
		},
	}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO admission_terms")).
		WithArgs("Intake 2026", "2026/2027", start, start.AddDate(0, 1, 0), "pending", 60, 0, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO admission_term_items")).
		WithArgs(int64(7), "10", sqlmock.AnyArg(), sqlmock.AnyArg(), 2, 60, 0, "pending", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(70)))
	mock.ExpectCommit()

	require.NoError(t, repo.CreateWithItems(context.Background(), term))
	assert.Equal(t, int64(7), term.ID)
	assert.Equal(t, int64(70), term.Items[0].ID)
	assert.Equal(t, int64(7), term.Items[0].AdmissionTermID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdmissionTermRepositoryCreateWithItemsRollsBack(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAdmissionTermRepository(db)

	term := &models.AdmissionTerm{Name: "Intake", Status: models.TermStatusPending, Items: []models.TermItem{{Grade: "10"}}}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO admission_terms")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO admission_term_items")).
		WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	err := repo.CreateWithItems(context.Background(), term)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdmissionTermRepositoryFindActiveLocksInTx(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAdmissionTermRepository(db)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM admission_terms WHERE status = $1 ORDER BY start_date DESC, id DESC LIMIT 1 FOR UPDATE")).
		WithArgs("processing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "academic_year", "start_date", "end_date", "status", "max_registration", "current_registered", "created_at", "updated_at"}).
			AddRow(int64(3), "Intake", "2026/2027", now, now, "processing", 60, 12, now, now))
	mock.ExpectRollback()

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)
	term, err := repo.FindActive(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), term.ID)
	assert.Equal(t, 48, term.RemainingSeats())
	require.NoError(t, tx.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdmissionTermRepositoryFindActiveNone(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAdmissionTermRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM admission_terms WHERE status = $1")).
		WithArgs("processing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindActive(context.Background(), nil)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdmissionTermRepositoryTransitionItemGuarded(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAdmissionTermRepository(db)

	query := regexp.QuoteMeta("UPDATE admission_term_items SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4")
	mock.ExpectExec(query).
		WithArgs("processing", sqlmock.AnyArg(), int64(5), "pending").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(query).
		WithArgs("processing", sqlmock.AnyArg(), int64(5), "pending").
		WillReturnResult(sqlmock.NewResult(0, 0))

	changed, err := repo.TransitionItem(context.Background(), 5, models.TermStatusPending, models.TermStatusProcessing)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.TransitionItem(context.Background(), 5, models.TermStatusPending, models.TermStatusProcessing)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdmissionTermRepositoryIncrementRegistered(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAdmissionTermRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE admission_terms SET current_registered = current_registered + $1")).
		WithArgs(2, sqlmock.AnyArg(), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.IncrementRegistered(context.Background(), nil, 3, 2)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.IncrementRegistered(context.Background(), nil, 3, 0)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdmissionTermRepositoryFindItemForFormLocksRow(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAdmissionTermRepository(db)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM admission_term_items\nWHERE id = (SELECT term_item_id FROM admission_forms WHERE id = $1) FOR UPDATE")).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "admission_term_id", "grade", "start_date", "end_date", "expected_classes", "max_registration", "current_registered", "status", "created_at", "updated_at"}).
			AddRow(int64(70), int64(3), "10", now, now, 2, 60, 58, "processing", now, now))
	mock.ExpectRollback()

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)
	item, err := repo.FindItemForForm(context.Background(), tx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(70), item.ID)
	assert.Equal(t, 2, item.RemainingSeats())
	require.NoError(t, tx.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdmissionTermRepositoryIncrementItemRegistered(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAdmissionTermRepository(db)

	query := regexp.QuoteMeta("UPDATE admission_term_items SET current_registered = current_registered + $1, updated_at = $2\nWHERE id = $3 AND current_registered + $1 <= max_registration")
	mock.ExpectExec(query).
		WithArgs(2, sqlmock.AnyArg(), int64(70)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(query).
		WithArgs(3, sqlmock.AnyArg(), int64(70)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.IncrementItemRegistered(context.Background(), nil, 70, 2)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.IncrementItemRegistered(context.Background(), nil, 70, 3)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}
