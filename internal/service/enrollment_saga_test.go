package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-admission-api/internal/dto"
	"github.com/noah-isme/sma-admission-api/internal/models"
	"github.com/noah-isme/sma-admission-api/internal/repository"
	"github.com/noah-isme/sma-admission-api/pkg/bus"
)

type sagaDB struct {
	db *sqlx.DB
}

func (s sagaDB) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return s.db.BeginTxx(ctx, opts)
}

type termLedgerFake struct {
	term *models.AdmissionTerm
	item *models.TermItem
}

func (f *termLedgerFake) FindActive(ctx context.Context, exec sqlx.ExtContext) (*models.AdmissionTerm, error) {
	if f.term == nil {
		return nil, sql.ErrNoRows
	}
	cp := *f.term
	return &cp, nil
}

func (f *termLedgerFake) IncrementRegistered(ctx context.Context, exec sqlx.ExtContext, termID int64, n int) (bool, error) {
	if n <= 0 {
		return true, nil
	}
	if f.term.CurrentRegistered+n > f.term.MaxRegistration {
		return false, nil
	}
	f.term.CurrentRegistered += n
	return true, nil
}

func (f *termLedgerFake) FindItemForForm(ctx context.Context, exec sqlx.ExtContext, formID int64) (*models.TermItem, error) {
	if f.item == nil {
		return nil, sql.ErrNoRows
	}
	cp := *f.item
	return &cp, nil
}

func (f *termLedgerFake) IncrementItemRegistered(ctx context.Context, exec sqlx.ExtContext, itemID int64, n int) (bool, error) {
	if n <= 0 {
		return true, nil
	}
	if f.item.CurrentRegistered+n > f.item.MaxRegistration {
		return false, nil
	}
	f.item.CurrentRegistered += n
	return true, nil
}

type seatLedgerFake struct {
	enrolled map[int64]int
}

func (f *seatLedgerFake) ReserveSeat(ctx context.Context, exec sqlx.ExtContext, classID int64, capacity int) (bool, error) {
	count, ok := f.enrolled[classID]
	if !ok {
		return false, repository.ErrClassNotFound
	}
	if count >= capacity {
		return false, nil
	}
	f.enrolled[classID] = count + 1
	return true, nil
}

type paymentKey struct {
	formID int64
	txnRef string
}

type paymentLedgerFake struct {
	results map[paymentKey]types.JSONText
}

func (f *paymentLedgerFake) Claim(ctx context.Context, exec sqlx.ExtContext, formID int64, txnRef string) (bool, error) {
	key := paymentKey{formID, txnRef}
	if _, ok := f.results[key]; ok {
		return false, nil
	}
	f.results[key] = types.JSONText(`{}`)
	return true, nil
}

func (f *paymentLedgerFake) SaveResult(ctx context.Context, exec sqlx.ExtContext, formID int64, txnRef string, payload types.JSONText) error {
	f.results[paymentKey{formID, txnRef}] = payload
	return nil
}

func (f *paymentLedgerFake) Find(ctx context.Context, formID int64, txnRef string) (*models.ProcessedPayment, error) {
	result, ok := f.results[paymentKey{formID, txnRef}]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &models.ProcessedPayment{AdmissionFormID: formID, TxnRef: txnRef, Result: result}, nil
}

type publisherFake struct {
	streams []string
	events  []*dto.ClassProcessResultEvent
}

func (p *publisherFake) Publish(ctx context.Context, stream string, event interface{}) error {
	p.streams = append(p.streams, stream)
	if result, ok := event.(*dto.ClassProcessResultEvent); ok {
		p.events = append(p.events, result)
	}
	return nil
}

type compensatorFake struct {
	calls []int64
}

func (c *compensatorFake) CompensatePayment(ctx context.Context, id int64) (bool, error) {
	c.calls = append(c.calls, id)
	return len(c.calls) == 1, nil
}

type sagaFixture struct {
	saga        *EnrollmentSaga
	mock        sqlmock.Sqlmock
	terms       *termLedgerFake
	seats       *seatLedgerFake
	payments    *paymentLedgerFake
	publisher   *publisherFake
	compensator *compensatorFake
}

func newSagaFixture(t *testing.T, term *models.AdmissionTerm, enrolled map[int64]int) *sagaFixture {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &sagaFixture{
		mock:        mock,
		terms:       &termLedgerFake{term: term},
		seats:       &seatLedgerFake{enrolled: enrolled},
		payments:    &paymentLedgerFake{results: map[paymentKey]types.JSONText{}},
		publisher:   &publisherFake{},
		compensator: &compensatorFake{},
	}
	f.saga = NewEnrollmentSaga(
		sagaDB{db: sqlx.NewDb(db, "sqlmock")},
		f.terms, f.seats, f.payments, f.publisher, f.compensator,
		EnrollmentSagaConfig{ClassCapacity: 30, ResultStream: "classes.process_result"},
		nil, zap.NewNop(),
	)
	return f
}

func activeTerm(max, current int) *models.AdmissionTerm {
	return &models.AdmissionTerm{ID: 1, Status: models.TermStatusProcessing, MaxRegistration: max, CurrentRegistered: current}
}

func paymentEvent(classIDs ...int64) dto.PaymentSuccessEvent {
	return dto.PaymentSuccessEvent{AdmissionFormID: 7, ClassIDs: classIDs, Amount: 500000, TxnRef: "txn-7"}
}

func TestEnrollmentSagaReservesSeatsWithinCapacity(t *testing.T) {
	f := newSagaFixture(t, activeTerm(90, 10), map[int64]int{1: 29, 2: 30})
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	result, err := f.saga.HandlePaymentSuccess(context.Background(), paymentEvent(1, 2))
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, result.SuccessfulClassIDs)
	assert.Equal(t, []int64{2}, result.FailedClassIDs)
	assert.Equal(t, "classes full: 2", result.Reason)
	assert.Equal(t, "txn-7", result.TxnRef)
	assert.Equal(t, int64(500000), result.Amount)

	assert.Equal(t, 30, f.seats.enrolled[1])
	assert.Equal(t, 30, f.seats.enrolled[2])
	assert.Equal(t, 11, f.terms.term.CurrentRegistered)
	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, []string{"classes.process_result"}, f.publisher.streams)

	var stored dto.ClassProcessResultEvent
	require.NoError(t, json.Unmarshal(f.payments.results[paymentKey{7, "txn-7"}], &stored))
	assert.Equal(t, *result, stored)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestEnrollmentSagaAllOK(t *testing.T) {
	f := newSagaFixture(t, activeTerm(90, 0), map[int64]int{1: 0, 2: 5})
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	result, err := f.saga.HandlePaymentSuccess(context.Background(), paymentEvent(1, 2, 1))
	require.NoError(t, err)
	assert.True(t, result.AllOK())
	assert.Equal(t, ReasonAllOK, result.Reason)
	assert.Equal(t, []int64{1, 2}, result.SuccessfulClassIDs)
	assert.Empty(t, result.FailedClassIDs)
	assert.Equal(t, 1, f.seats.enrolled[1])
	assert.Equal(t, 2, f.terms.term.CurrentRegistered)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestEnrollmentSagaReplaysDuplicateDelivery(t *testing.T) {
	f := newSagaFixture(t, activeTerm(90, 0), map[int64]int{1: 0})
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	first, err := f.saga.HandlePaymentSuccess(context.Background(), paymentEvent(1))
	require.NoError(t, err)

	second, err := f.saga.HandlePaymentSuccess(context.Background(), paymentEvent(1))
	require.NoError(t, err)
	assert.Equal(t, *first, *second)

	assert.Equal(t, 1, f.seats.enrolled[1])
	assert.Equal(t, 1, f.terms.term.CurrentRegistered)
	assert.Len(t, f.publisher.events, 2)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestEnrollmentSagaWithoutActiveTerm(t *testing.T) {
	f := newSagaFixture(t, nil, map[int64]int{1: 0, 2: 0})
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	result, err := f.saga.HandlePaymentSuccess(context.Background(), paymentEvent(1, 2))
	require.NoError(t, err)
	assert.Empty(t, result.SuccessfulClassIDs)
	assert.Equal(t, []int64{1, 2}, result.FailedClassIDs)
	assert.Equal(t, "no active admission term", result.Reason)
	assert.Zero(t, f.seats.enrolled[1])
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestEnrollmentSagaStopsAtTermCapacity(t *testing.T) {
	f := newSagaFixture(t, activeTerm(60, 59), map[int64]int{1: 0, 2: 0, 3: 0})
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	result, err := f.saga.HandlePaymentSuccess(context.Background(), paymentEvent(9, 1, 2))
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, result.SuccessfulClassIDs)
	assert.Equal(t, []int64{9, 2}, result.FailedClassIDs)
	assert.Equal(t, "classes not found: 9; admission term full: 2", result.Reason)
	assert.Equal(t, 60, f.terms.term.CurrentRegistered)
	assert.Zero(t, f.seats.enrolled[2])
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestEnrollmentSagaCountsGradeWindowRegistrations(t *testing.T) {
	f := newSagaFixture(t, activeTerm(90, 10), map[int64]int{1: 0, 2: 0})
	f.terms.item = &models.TermItem{ID: 70, AdmissionTermID: 1, MaxRegistration: 30, CurrentRegistered: 4}
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	result, err := f.saga.HandlePaymentSuccess(context.Background(), paymentEvent(1, 2))
	require.NoError(t, err)
	assert.True(t, result.AllOK())
	assert.Equal(t, 12, f.terms.term.CurrentRegistered)
	assert.Equal(t, 6, f.terms.item.CurrentRegistered)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestEnrollmentSagaStopsAtGradeWindowCapacity(t *testing.T) {
	f := newSagaFixture(t, activeTerm(90, 10), map[int64]int{1: 0, 2: 0})
	f.terms.item = &models.TermItem{ID: 70, AdmissionTermID: 1, MaxRegistration: 12, CurrentRegistered: 11}
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	result, err := f.saga.HandlePaymentSuccess(context.Background(), paymentEvent(1, 2))
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, result.SuccessfulClassIDs)
	assert.Equal(t, []int64{2}, result.FailedClassIDs)
	assert.Equal(t, "admission term full: 2", result.Reason)
	assert.Equal(t, 12, f.terms.item.CurrentRegistered)
	assert.Equal(t, 11, f.terms.term.CurrentRegistered)
	assert.Zero(t, f.seats.enrolled[2])
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestEnrollmentSagaIgnoresWindowOfAnotherTerm(t *testing.T) {
	f := newSagaFixture(t, activeTerm(90, 0), map[int64]int{1: 0})
	f.terms.item = &models.TermItem{ID: 70, AdmissionTermID: 2, MaxRegistration: 1, CurrentRegistered: 1}
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	result, err := f.saga.HandlePaymentSuccess(context.Background(), paymentEvent(1))
	require.NoError(t, err)
	assert.True(t, result.AllOK())
	assert.Equal(t, 1, f.terms.item.CurrentRegistered)
	assert.Equal(t, 1, f.terms.term.CurrentRegistered)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestEnrollmentSagaRejectsInvalidEvent(t *testing.T) {
	f := newSagaFixture(t, activeTerm(90, 0), map[int64]int{1: 0})

	_, err := f.saga.HandlePaymentSuccess(context.Background(), dto.PaymentSuccessEvent{AdmissionFormID: 7, TxnRef: "txn-7"})
	require.Error(t, err)

	handler := f.saga.PaymentSuccessHandler()
	assert.NoError(t, handler(context.Background(), bus.Message{ID: "1-0", Stream: "payments.success", Payload: []byte(`{"admissionFormId":7}`)}))
	assert.NoError(t, handler(context.Background(), bus.Message{ID: "2-0", Stream: "payments.success", Payload: []byte("not json")}))
	assert.Empty(t, f.publisher.events)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestEnrollmentSagaPaymentTimeout(t *testing.T) {
	f := newSagaFixture(t, activeTerm(90, 0), map[int64]int{})
	handler := f.saga.PaymentTimeoutHandler()

	payload, err := json.Marshal(dto.PaymentTimeoutEvent{AdmissionFormID: 7})
	require.NoError(t, err)
	require.NoError(t, handler(context.Background(), bus.Message{ID: "1-0", Payload: payload}))
	require.NoError(t, f.saga.HandlePaymentTimeout(context.Background(), dto.PaymentTimeoutEvent{AdmissionFormID: 7}))
	assert.Equal(t, []int64{7, 7}, f.compensator.calls)
}

func TestDescribeSeatOutcome(t *testing.T) {
	assert.Equal(t, ReasonAllOK, describeSeatOutcome(seatOutcome{}))
	assert.Equal(t, "classes full: 1, 2", describeSeatOutcome(seatOutcome{full: []int64{1, 2}}))
	assert.Equal(t, "classes not found: 4; classes full: 1", describeSeatOutcome(seatOutcome{full: []int64{1}, missing: []int64{4}}))
	assert.Equal(t, "classes not found: 4; classes full: 1; admission term full: 6",
		describeSeatOutcome(seatOutcome{termFull: []int64{6}, full: []int64{1}, missing: []int64{4}}))
	assert.Equal(t, reasonNoActiveTerm, describeSeatOutcome(seatOutcome{noTerm: true, full: []int64{1}}))
}
